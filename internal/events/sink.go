package events

import "log/slog"

// Sink receives cycle lifecycle events. The orchestrator emits to whichever
// sink is registered; absence of a subscriber is not an error, so NoopSink is
// a valid production configuration.
type Sink interface {
	Emit(event string, payload any)
}

// NoopSink drops every event.
type NoopSink struct{}

func (NoopSink) Emit(string, any) {}

// LogSink writes events to the structured log. It is the default sink when
// no real-time channel is wired in.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Emit(event string, payload any) {
	s.logger.Info("event", slog.String("name", event), slog.Any("payload", payload))
}
