package insight

import (
	"fmt"
	"hash/fnv"
	"math"
	"time"

	"github.com/orcastack/orca-monitor/internal/models"
)

// valueBucketSize groups nearby readings so that a container hovering around
// the same level keeps colliding on one dedup key instead of emitting a new
// insight per fractional change.
const valueBucketSize = 5

// DedupKey derives the deterministic identity of a detected condition.
func DedupKey(category models.Category, containerID string, metric models.MetricType, value float64) string {
	bucket := 0
	if !math.IsInf(value, 0) && !math.IsNaN(value) {
		bucket = int(math.Floor(value/valueBucketSize)) * valueBucketSize
	}
	return fmt.Sprintf("%s:%s:%s:%d", category, containerID, metric, bucket)
}

// InsightID maps a dedup key to a short stable identifier, so the same
// condition resolves to the same id across cycles.
func InsightID(dedupKey string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(dedupKey))
	return fmt.Sprintf("ins-%016x", h.Sum64())
}

// FromAnomaly drafts an insight for an anomalous observation.
func FromAnomaly(a models.AnomalyResult, now time.Time) models.Insight {
	severity := models.SeverityWarning
	if a.Method == models.MethodHardThreshold || math.IsInf(a.Score, 0) || math.Abs(a.Score) >= 4 {
		severity = models.SeverityCritical
	}

	var description string
	switch a.Method {
	case models.MethodHardThreshold:
		description = fmt.Sprintf("%s %s at %.1f%% exceeds the configured threshold", a.ContainerName, a.Metric, a.CurrentValue)
	case models.MethodIsolationForest:
		description = fmt.Sprintf("%s %s reading %.1f is an outlier across the fleet (score %.2f)", a.ContainerName, a.Metric, a.CurrentValue, a.Score)
	default:
		description = fmt.Sprintf("%s %s at %.1f deviates from its baseline %.1f±%.1f (z=%.2f)", a.ContainerName, a.Metric, a.CurrentValue, a.BaselineMean, a.BaselineStdev, a.Score)
	}

	key := DedupKey(models.CategoryAnomaly, a.ContainerID, a.Metric, a.CurrentValue)
	return models.Insight{
		ID:            InsightID(key),
		Category:      models.CategoryAnomaly,
		Severity:      severity,
		ContainerID:   a.ContainerID,
		ContainerName: a.ContainerName,
		Description:   description,
		DedupKey:      key,
		CreatedAt:     now,
	}
}

// FromForecast drafts a predictive insight for a surviving forecast.
func FromForecast(fc models.CapacityForecast, severity models.Severity, now time.Time) models.Insight {
	description := fmt.Sprintf("%s %s is trending %s", fc.ContainerName, fc.Metric, fc.Trend)
	bucketValue := 0.0
	if fc.TimeToThreshold != nil {
		description = fmt.Sprintf("%s %s is projected to breach its threshold in %.1f hours (%s confidence)",
			fc.ContainerName, fc.Metric, *fc.TimeToThreshold, fc.Confidence)
		bucketValue = *fc.TimeToThreshold
	}

	key := DedupKey(models.CategoryPredictive, fc.ContainerID, fc.Metric, bucketValue)
	return models.Insight{
		ID:            InsightID(key),
		Category:      models.CategoryPredictive,
		Severity:      severity,
		ContainerID:   fc.ContainerID,
		ContainerName: fc.ContainerName,
		Description:   description,
		DedupKey:      key,
		CreatedAt:     now,
	}
}
