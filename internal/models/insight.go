package models

import "time"

// Category groups insights by the subsystem that produced them.
type Category string

const (
	CategoryAnomaly    Category = "anomaly"
	CategoryPredictive Category = "predictive"
)

// Severity ranks insight urgency.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Insight is the durable record of a detected or forecasted condition.
// ID and DedupKey are derived deterministically from the triggering condition
// so that semantically identical detections collide within a cooldown window.
type Insight struct {
	ID            string
	Category      Category
	Severity      Severity
	ContainerID   string
	ContainerName string
	Description   string
	DedupKey      string
	CreatedAt     time.Time
}

// Incident groups correlated insights believed to share a root cause.
type Incident struct {
	ID         string
	InsightIDs []string
	CreatedAt  time.Time
}

// CorrelationSummary reports what the correlator produced for one cycle.
type CorrelationSummary struct {
	IncidentsCreated int
	InsightsGrouped  int
}

// CycleSummary is emitted to the real-time sink after every completed cycle.
type CycleSummary struct {
	Duration       time.Duration
	EndpointCount  int
	ContainerCount int
	InsightCount   int
	SkippedOpen    int
	FetchFailures  int
}
