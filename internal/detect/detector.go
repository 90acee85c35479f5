package detect

import (
	"log/slog"
	"math"

	"github.com/orcastack/orca-monitor/internal/config"
	"github.com/orcastack/orca-monitor/internal/models"
)

// BatchItem is one (container, metric, current value) tuple of the cycle's
// batch. The orchestrator builds the full batch once per cycle and hands it
// over in a single call.
type BatchItem struct {
	ContainerID   string
	ContainerName string
	Metric        models.MetricType
	Value         float64
}

// Detector flags anomalous batch items using a hard-threshold check, an
// adaptive z-score check over rolling baselines, and optionally an isolation
// forest. All checks are in-memory and synchronous.
type Detector struct {
	logger   *slog.Logger
	cfg      config.AnomalyConfig
	baseline *BaselineTracker
	forest   *isolationForest
}

// NewDetector constructs a Detector. The baseline tracker is shared with the
// forecaster and advanced by the orchestrator once per cycle, so Detect only
// reads it; passing nil creates a private tracker.
func NewDetector(logger *slog.Logger, cfg config.AnomalyConfig, baseline *BaselineTracker) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	if baseline == nil {
		baseline = NewBaselineTracker(cfg.AdaptiveWindow)
	}
	d := &Detector{
		logger:   logger,
		cfg:      cfg,
		baseline: baseline,
	}
	if cfg.IsolationForestEnabled {
		d.forest = newIsolationForest(defaultForestTrees, defaultForestSubsample)
	}
	return d
}

// Baseline exposes the rolling history so the forecaster can share it.
func (d *Detector) Baseline() *BaselineTracker {
	return d.baseline
}

// Detect scores the whole batch and returns only the anomalous entries,
// keyed by "containerID:metric". Items are scored against the baseline
// accumulated in previous cycles; recording the new samples is the
// orchestrator's job after the detector and forecaster have both run.
func (d *Detector) Detect(items []BatchItem) map[string]models.AnomalyResult {
	results := make(map[string]models.AnomalyResult)

	for _, item := range items {
		key := PairKey(item.ContainerID, item.Metric)

		// Hard threshold first: O(1) and needs no history.
		if d.cfg.HardThresholdEnabled && item.Value > d.cfg.ThresholdPct {
			results[key] = models.AnomalyResult{
				ContainerID:   item.ContainerID,
				ContainerName: item.ContainerName,
				Metric:        item.Metric,
				CurrentValue:  item.Value,
				Score:         roundScore(item.Value),
				IsAnomalous:   true,
				Method:        models.MethodHardThreshold,
			}
			continue
		}

		if d.cfg.Method == "disabled" {
			continue
		}

		stats, ok := d.baseline.Stats(item.ContainerID, item.Metric)
		if !ok || stats.SampleCount < d.cfg.MinSamples {
			// Not enough history for a trustworthy signal.
			continue
		}

		score := ZScore(item.Value, stats.Mean, stats.StdDev)
		if math.Abs(score) > d.cfg.ZScoreThreshold {
			results[key] = models.AnomalyResult{
				ContainerID:   item.ContainerID,
				ContainerName: item.ContainerName,
				Metric:        item.Metric,
				CurrentValue:  item.Value,
				BaselineMean:  stats.Mean,
				BaselineStdev: stats.StdDev,
				Score:         roundScore(score),
				IsAnomalous:   true,
				Method:        models.MethodAdaptive,
			}
		}
	}

	if d.forest != nil {
		d.detectOutliers(items, results)
	}

	return results
}

// detectOutliers merges isolation-forest hits into results. A tuple already
// flagged keeps its original method.
func (d *Detector) detectOutliers(items []BatchItem, results map[string]models.AnomalyResult) {
	byMetric := make(map[models.MetricType][]BatchItem)
	for _, item := range items {
		byMetric[item.Metric] = append(byMetric[item.Metric], item)
	}

	for metric, group := range byMetric {
		values := make([]float64, len(group))
		for i, item := range group {
			values[i] = item.Value
		}
		scores := d.forest.Scores(values)
		for i, s := range scores {
			if s < outlierScoreThreshold {
				continue
			}
			item := group[i]
			key := PairKey(item.ContainerID, metric)
			if _, seen := results[key]; seen {
				continue
			}
			results[key] = models.AnomalyResult{
				ContainerID:   item.ContainerID,
				ContainerName: item.ContainerName,
				Metric:        metric,
				CurrentValue:  item.Value,
				Score:         roundScore(s),
				IsAnomalous:   true,
				Method:        models.MethodIsolationForest,
			}
		}
	}
}

// ZScore computes (value - mean) / stddev with the zero-stddev convention:
// a value equal to the mean scores 0, any other value scores infinity.
func ZScore(value, mean, stddev float64) float64 {
	if stddev == 0 {
		if value == mean {
			return 0
		}
		if value < mean {
			return math.Inf(-1)
		}
		return math.Inf(1)
	}
	return (value - mean) / stddev
}

// roundScore rounds to 2 decimal places for display stability; infinities
// pass through untouched.
func roundScore(score float64) float64 {
	if math.IsInf(score, 0) {
		return score
	}
	return math.Round(score*100) / 100
}
