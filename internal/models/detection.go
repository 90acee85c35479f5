package models

// DetectionMethod identifies which detector flagged a sample.
type DetectionMethod string

const (
	MethodHardThreshold   DetectionMethod = "hard_threshold"
	MethodAdaptive        DetectionMethod = "adaptive"
	MethodIsolationForest DetectionMethod = "isolation_forest"
)

// AnomalyResult describes one anomalous (container, metric) observation.
// Results live for a single monitoring cycle only.
type AnomalyResult struct {
	ContainerID   string
	ContainerName string
	Metric        MetricType
	CurrentValue  float64
	BaselineMean  float64
	BaselineStdev float64
	Score         float64
	IsAnomalous   bool
	Method        DetectionMethod
}

// Trend classifies the direction of a fitted capacity line.
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
)

// Confidence grades how well the fitted line explains the samples.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// CapacityForecast is the fitted trend for one container metric, ephemeral per cycle.
// TimeToThreshold is nil when the trend never reaches the critical threshold.
type CapacityForecast struct {
	ContainerID     string
	ContainerName   string
	Metric          MetricType
	Trend           Trend
	Slope           float64
	RSquared        float64
	TimeToThreshold *float64
	Confidence      Confidence
}
