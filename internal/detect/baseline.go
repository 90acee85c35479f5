package detect

import (
	"math"
	"sync"

	"github.com/orcastack/orca-monitor/internal/models"
)

// BaselineTracker maintains a bounded rolling window of samples per
// (container, metric) pair, feeding both the adaptive detector and the
// capacity forecaster. It is populated once per cycle from the batch metrics
// read, so no per-container network calls are needed.
type BaselineTracker struct {
	mu     sync.RWMutex
	window int
	series map[string][]float64
}

// NewBaselineTracker creates a tracker keeping up to window samples per pair.
func NewBaselineTracker(window int) *BaselineTracker {
	if window <= 0 {
		window = 20
	}
	return &BaselineTracker{
		window: window,
		series: make(map[string][]float64),
	}
}

// PairKey builds the canonical "containerID:metric" map key used across the
// detection pipeline.
func PairKey(containerID string, metric models.MetricType) string {
	return containerID + ":" + string(metric)
}

// Observe appends a sample, evicting the oldest once the window is full.
func (b *BaselineTracker) Observe(containerID string, metric models.MetricType, value float64) {
	key := PairKey(containerID, metric)

	b.mu.Lock()
	defer b.mu.Unlock()
	samples := append(b.series[key], value)
	if len(samples) > b.window {
		samples = samples[len(samples)-b.window:]
	}
	b.series[key] = samples
}

// ObserveBatch records a full cycle's batch in one call.
func (b *BaselineTracker) ObserveBatch(items []BatchItem) {
	for _, item := range items {
		b.Observe(item.ContainerID, item.Metric, item.Value)
	}
}

// Stats returns the rolling mean and population standard deviation for the
// pair. ok is false when no samples have been observed.
func (b *BaselineTracker) Stats(containerID string, metric models.MetricType) (models.RollingStats, bool) {
	b.mu.RLock()
	samples := b.series[PairKey(containerID, metric)]
	b.mu.RUnlock()

	if len(samples) == 0 {
		return models.RollingStats{}, false
	}

	mean := 0.0
	for _, v := range samples {
		mean += v
	}
	mean /= float64(len(samples))

	variance := 0.0
	for _, v := range samples {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(samples))

	return models.RollingStats{
		Mean:        mean,
		StdDev:      math.Sqrt(variance),
		SampleCount: len(samples),
	}, true
}

// Series returns a copy of the stored samples, oldest first.
func (b *BaselineTracker) Series(containerID string, metric models.MetricType) []float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	samples := b.series[PairKey(containerID, metric)]
	if len(samples) == 0 {
		return nil
	}
	return append([]float64(nil), samples...)
}

// Reset drops all recorded history; used by tests.
func (b *BaselineTracker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.series = make(map[string][]float64)
}
