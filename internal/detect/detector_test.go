package detect

import (
	"math"
	"testing"

	"github.com/orcastack/orca-monitor/internal/config"
	"github.com/orcastack/orca-monitor/internal/models"
)

func adaptiveConfig() config.AnomalyConfig {
	return config.AnomalyConfig{
		HardThresholdEnabled: false,
		AdaptiveWindow:       20,
		MinSamples:           4,
		ZScoreThreshold:      2.5,
	}
}

// seedBaseline feeds alternating 40/60 samples, giving mean 50 and
// population stddev 10 exactly.
func seedBaseline(d *Detector, containerID string) {
	for i := 0; i < 10; i++ {
		value := 40.0
		if i%2 == 1 {
			value = 60.0
		}
		d.baseline.Observe(containerID, models.MetricCPU, value)
	}
}

func TestZScoreConventions(t *testing.T) {
	cases := []struct {
		name   string
		value  float64
		mean   float64
		stddev float64
		want   float64
	}{
		{"above", 80, 50, 10, 3.0},
		{"below", 20, 50, 10, -3.0},
		{"boundary", 75, 50, 10, 2.5},
		{"zero stddev equal", 50, 50, 0, 0},
	}
	for _, tc := range cases {
		if got := ZScore(tc.value, tc.mean, tc.stddev); got != tc.want {
			t.Errorf("%s: ZScore(%v, %v, %v) = %v, want %v", tc.name, tc.value, tc.mean, tc.stddev, got, tc.want)
		}
	}
	if got := ZScore(60, 50, 0); !math.IsInf(got, 1) {
		t.Errorf("zero stddev unequal: expected +Inf, got %v", got)
	}
}

func TestDetectAdaptive(t *testing.T) {
	cases := []struct {
		name      string
		value     float64
		anomalous bool
	}{
		{"three sigma above", 80, true},
		{"one sigma above", 60, false},
		{"boundary exclusive", 75, false},
		{"three sigma below", 20, true},
	}

	for _, tc := range cases {
		detector := NewDetector(nil, adaptiveConfig(), nil)
		seedBaseline(detector, "c1")

		results := detector.Detect([]BatchItem{{
			ContainerID:   "c1",
			ContainerName: "web",
			Metric:        models.MetricCPU,
			Value:         tc.value,
		}})

		_, flagged := results[PairKey("c1", models.MetricCPU)]
		if flagged != tc.anomalous {
			t.Errorf("%s: value %v flagged=%v, want %v", tc.name, tc.value, flagged, tc.anomalous)
		}
	}
}

func TestDetectZeroStddev(t *testing.T) {
	detector := NewDetector(nil, adaptiveConfig(), nil)
	for i := 0; i < 6; i++ {
		detector.baseline.Observe("c1", models.MetricMemory, 42)
	}

	// Equal to the flat baseline: score 0, not anomalous.
	results := detector.Detect([]BatchItem{{ContainerID: "c1", Metric: models.MetricMemory, Value: 42}})
	if len(results) != 0 {
		t.Fatalf("flat baseline, equal value: expected no anomaly, got %v", results)
	}

	// Different from the flat baseline: unbounded score, always anomalous.
	results = detector.Detect([]BatchItem{{ContainerID: "c1", Metric: models.MetricMemory, Value: 43}})
	result, ok := results[PairKey("c1", models.MetricMemory)]
	if !ok {
		t.Fatal("expected anomaly for divergence from flat baseline")
	}
	if !math.IsInf(result.Score, 1) {
		t.Fatalf("expected infinite score, got %v", result.Score)
	}
	if result.Method != models.MethodAdaptive {
		t.Fatalf("unexpected method %q", result.Method)
	}
}

func TestDetectMinSamplesGate(t *testing.T) {
	detector := NewDetector(nil, adaptiveConfig(), nil)
	detector.baseline.Observe("c1", models.MetricCPU, 10)
	detector.baseline.Observe("c1", models.MetricCPU, 10)

	results := detector.Detect([]BatchItem{{ContainerID: "c1", Metric: models.MetricCPU, Value: 99}})
	if len(results) != 0 {
		t.Fatalf("expected no signal below min sample count, got %v", results)
	}
}

func TestDetectHardThresholdFirst(t *testing.T) {
	cfg := adaptiveConfig()
	cfg.HardThresholdEnabled = true
	cfg.ThresholdPct = 90
	detector := NewDetector(nil, cfg, nil)

	results := detector.Detect([]BatchItem{
		{ContainerID: "c1", ContainerName: "web", Metric: models.MetricCPU, Value: 95},
		{ContainerID: "c2", ContainerName: "db", Metric: models.MetricCPU, Value: 90},
	})

	result, ok := results[PairKey("c1", models.MetricCPU)]
	if !ok {
		t.Fatal("expected hard-threshold anomaly for 95 > 90")
	}
	if result.Method != models.MethodHardThreshold {
		t.Fatalf("unexpected method %q", result.Method)
	}
	// The threshold itself is not above the threshold.
	if _, ok := results[PairKey("c2", models.MetricCPU)]; ok {
		t.Fatal("value equal to threshold must not be flagged")
	}
}

func TestDetectScoreRounding(t *testing.T) {
	detector := NewDetector(nil, adaptiveConfig(), nil)
	seedBaseline(detector, "c1")

	results := detector.Detect([]BatchItem{{ContainerID: "c1", Metric: models.MetricCPU, Value: 77.77}})
	result, ok := results[PairKey("c1", models.MetricCPU)]
	if !ok {
		t.Fatal("expected anomaly")
	}
	if result.Score != 2.78 {
		t.Fatalf("expected score rounded to 2.78, got %v", result.Score)
	}
}

func TestDetectIsolationForestMerges(t *testing.T) {
	cfg := adaptiveConfig()
	cfg.IsolationForestEnabled = true
	detector := NewDetector(nil, cfg, nil)

	items := make([]BatchItem, 0, 21)
	for i := 0; i < 20; i++ {
		items = append(items, BatchItem{
			ContainerID: containerID(i),
			Metric:      models.MetricCPU,
			Value:       20 + float64(i%3),
		})
	}
	items = append(items, BatchItem{ContainerID: "outlier", Metric: models.MetricCPU, Value: 99})

	results := detector.Detect(items)
	result, ok := results[PairKey("outlier", models.MetricCPU)]
	if !ok {
		t.Fatalf("expected isolation forest to flag the outlier, got %v", results)
	}
	if result.Method != models.MethodIsolationForest {
		t.Fatalf("unexpected method %q", result.Method)
	}
}

func TestBaselineWindowBounded(t *testing.T) {
	tracker := NewBaselineTracker(5)
	for i := 0; i < 50; i++ {
		tracker.Observe("c1", models.MetricCPU, float64(i))
	}
	series := tracker.Series("c1", models.MetricCPU)
	if len(series) != 5 {
		t.Fatalf("expected bounded window of 5, got %d", len(series))
	}
	if series[0] != 45 || series[4] != 49 {
		t.Fatalf("expected newest samples retained, got %v", series)
	}
}

func containerID(i int) string {
	return "c" + string(rune('a'+i%26)) + string(rune('a'+(i/26)%26))
}
