package breaker

import (
	"sync"
	"time"
)

// Tracker maintains per-endpoint circuit-breaker state derived from
// consecutive fetch failures. The orchestrator consults IsOpen before
// spending cycle time on an endpoint; an open circuit means the endpoint is
// skipped entirely until the cooldown elapses or a success is recorded.
type Tracker struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration
	states    map[string]*state
	now       func() time.Time
}

type state struct {
	failures    int
	open        bool
	lastFailure time.Time
}

// Snapshot reports the externally visible state for one endpoint.
type Snapshot struct {
	ConsecutiveFailures int
	Open                bool
	LastFailure         time.Time
}

// New creates a Tracker that opens after threshold consecutive failures and
// closes again after cooldown.
func New(threshold int, cooldown time.Duration) *Tracker {
	if threshold <= 0 {
		threshold = 3
	}
	if cooldown <= 0 {
		cooldown = 5 * time.Minute
	}
	return &Tracker{
		threshold: threshold,
		cooldown:  cooldown,
		states:    make(map[string]*state),
		now:       time.Now,
	}
}

// RecordFailure increments the consecutive-failure counter and opens the
// circuit once the threshold is exceeded.
func (t *Tracker) RecordFailure(endpointID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.states[endpointID]
	if s == nil {
		s = &state{}
		t.states[endpointID] = s
	}
	s.failures++
	s.lastFailure = t.now()
	if s.failures >= t.threshold {
		s.open = true
	}
}

// RecordSuccess closes the circuit and resets the failure counter.
func (t *Tracker) RecordSuccess(endpointID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.states, endpointID)
}

// IsOpen reports whether the endpoint should be skipped this cycle. An open
// circuit transitions back to closed once the cooldown has elapsed since the
// last failure.
func (t *Tracker) IsOpen(endpointID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.states[endpointID]
	if s == nil || !s.open {
		return false
	}
	if t.now().Sub(s.lastFailure) >= t.cooldown {
		s.open = false
		s.failures = 0
		return false
	}
	return true
}

// State returns the snapshot for an endpoint; the zero Snapshot means the
// endpoint has no recorded failures.
func (t *Tracker) State(endpointID string) Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.states[endpointID]
	if s == nil {
		return Snapshot{}
	}
	return Snapshot{
		ConsecutiveFailures: s.failures,
		Open:                s.open,
		LastFailure:         s.lastFailure,
	}
}

// Reset clears state for a single endpoint (manual operator reset).
func (t *Tracker) Reset(endpointID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.states, endpointID)
}

// ResetAll clears all breaker state; used by tests.
func (t *Tracker) ResetAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.states = make(map[string]*state)
}
