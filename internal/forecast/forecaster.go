package forecast

import (
	"time"

	"github.com/orcastack/orca-monitor/internal/config"
	"github.com/orcastack/orca-monitor/internal/detect"
	"github.com/orcastack/orca-monitor/internal/models"
)

// Forecaster fits a linear trend per (container, metric) over the rolling
// history and estimates time-to-threshold. Forecasts are ephemeral and
// recomputed every cycle.
type Forecaster struct {
	cfg            config.PredictiveConfig
	sampleInterval time.Duration
	baseline       *detect.BaselineTracker
}

// NewForecaster builds a Forecaster sharing the detector's baseline history.
// sampleInterval is the scheduler interval, used to convert per-sample slope
// into hours.
func NewForecaster(cfg config.PredictiveConfig, sampleInterval time.Duration, baseline *detect.BaselineTracker) *Forecaster {
	if sampleInterval <= 0 {
		sampleInterval = 30 * time.Second
	}
	return &Forecaster{cfg: cfg, sampleInterval: sampleInterval, baseline: baseline}
}

// Forecast evaluates every batch item with sufficient history. Stable-trend
// and low-confidence fits are computed but filtered out before the insight
// stage, so the returned slice only holds actionable forecasts.
func (f *Forecaster) Forecast(items []detect.BatchItem) []models.CapacityForecast {
	var forecasts []models.CapacityForecast

	for _, item := range items {
		history := f.baseline.Series(item.ContainerID, item.Metric)
		if len(history) < f.cfg.MinSamples {
			continue
		}
		series := append(history, item.Value)

		fc := f.fit(item, series)
		if fc.Trend == models.TrendStable || fc.Confidence == models.ConfidenceLow {
			continue
		}
		forecasts = append(forecasts, fc)
	}

	return forecasts
}

// fit runs least squares over the series, classifies the trend, and
// extrapolates to the critical threshold when the line is rising.
func (f *Forecaster) fit(item detect.BatchItem, series []float64) models.CapacityForecast {
	slope, intercept, r2 := linearFit(series)
	_ = intercept

	trend := models.TrendStable
	switch {
	case slope > f.cfg.SlopeNoiseFloor:
		trend = models.TrendIncreasing
	case slope < -f.cfg.SlopeNoiseFloor:
		trend = models.TrendDecreasing
	}

	confidence := models.ConfidenceLow
	switch {
	case r2 >= f.cfg.HighFitQuality:
		confidence = models.ConfidenceHigh
	case r2 >= f.cfg.MinFitQuality:
		confidence = models.ConfidenceMedium
	}

	fc := models.CapacityForecast{
		ContainerID:   item.ContainerID,
		ContainerName: item.ContainerName,
		Metric:        item.Metric,
		Trend:         trend,
		Slope:         slope,
		RSquared:      r2,
		Confidence:    confidence,
	}

	if trend == models.TrendIncreasing && f.cfg.ThresholdPct > 0 {
		current := series[len(series)-1]
		if current >= f.cfg.ThresholdPct {
			zero := 0.0
			fc.TimeToThreshold = &zero
		} else {
			samplesToThreshold := (f.cfg.ThresholdPct - current) / slope
			hours := samplesToThreshold * f.sampleInterval.Hours()
			if hours <= f.cfg.AlertHours {
				fc.TimeToThreshold = &hours
			}
		}
	}

	return fc
}

// Severity buckets a forecast by how soon it breaches the threshold. The
// cutoffs are configuration, not contract.
func (f *Forecaster) Severity(fc models.CapacityForecast) models.Severity {
	if fc.TimeToThreshold == nil {
		return models.SeverityInfo
	}
	switch hours := *fc.TimeToThreshold; {
	case hours < f.cfg.CriticalHours:
		return models.SeverityCritical
	case hours < f.cfg.WarningHours:
		return models.SeverityWarning
	default:
		return models.SeverityInfo
	}
}

// linearFit returns slope, intercept, and r-squared for y over x = 0..n-1.
func linearFit(values []float64) (slope, intercept, r2 float64) {
	n := float64(len(values))
	if n < 2 {
		return 0, 0, 0
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, y := range values {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, sumY / n, 0
	}
	slope = (n*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / n

	meanY := sumY / n
	var ssTot, ssRes float64
	for i, y := range values {
		predicted := intercept + slope*float64(i)
		ssTot += (y - meanY) * (y - meanY)
		ssRes += (y - predicted) * (y - predicted)
	}
	if ssTot == 0 {
		// A perfectly flat series is explained perfectly by a flat line.
		return slope, intercept, 1
	}
	r2 = 1 - ssRes/ssTot
	if r2 < 0 {
		r2 = 0
	}
	return slope, intercept, r2
}
