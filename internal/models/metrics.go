package models

import "time"

// MetricType enumerates the metric families tracked per container.
type MetricType string

const (
	MetricCPU         MetricType = "cpu"
	MetricMemory      MetricType = "memory"
	MetricMemoryBytes MetricType = "memory_bytes"
	MetricNetworkRx   MetricType = "network_rx"
	MetricNetworkTx   MetricType = "network_tx"
)

// TrackedMetrics lists the metric families evaluated by the detectors each cycle.
var TrackedMetrics = []MetricType{MetricCPU, MetricMemory}

// MetricSample is a single latest-value observation for a container metric.
type MetricSample struct {
	ContainerID string
	Metric      MetricType
	Value       float64
	Timestamp   time.Time
}

// RollingStats summarises a rolling window of samples for one container metric.
type RollingStats struct {
	Mean        float64
	StdDev      float64
	SampleCount int
}
