package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	if cfg.Scheduler.Interval != 30*time.Second {
		t.Fatalf("unexpected default interval: %s", cfg.Scheduler.Interval)
	}
	if cfg.Insights.Cooldown() != 30*time.Minute {
		t.Fatalf("unexpected default cooldown: %s", cfg.Insights.Cooldown())
	}
	if cfg.Anomaly.Method != "adaptive" {
		t.Fatalf("unexpected default detection method: %s", cfg.Anomaly.Method)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("scheduler:\n  interval: 10s\nanomaly:\n  zScoreThreshold: 3.5\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Scheduler.Interval != 10*time.Second {
		t.Fatalf("file override ignored: %s", cfg.Scheduler.Interval)
	}
	if cfg.Anomaly.ZScoreThreshold != 3.5 {
		t.Fatalf("file override ignored: %v", cfg.Anomaly.ZScoreThreshold)
	}
	// Untouched values keep their defaults.
	if cfg.Insights.MaxPerCycle != 25 {
		t.Fatalf("default lost: %d", cfg.Insights.MaxPerCycle)
	}
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	t.Setenv("MAX_INSIGHTS_PER_CYCLE", "7")
	t.Setenv("ANOMALY_COOLDOWN_MINUTES", "5")
	t.Setenv("METRICS_COLLECTION_INTERVAL_SECONDS", "60")
	t.Setenv("ANOMALY_DETECTION_METHOD", "DISABLED")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Insights.MaxPerCycle != 7 {
		t.Fatalf("env cap ignored: %d", cfg.Insights.MaxPerCycle)
	}
	if cfg.Insights.CooldownMinutes != 5 {
		t.Fatalf("env cooldown ignored: %d", cfg.Insights.CooldownMinutes)
	}
	if cfg.Scheduler.Interval != time.Minute {
		t.Fatalf("env interval ignored: %s", cfg.Scheduler.Interval)
	}
	if cfg.Anomaly.Method != "disabled" {
		t.Fatalf("env method ignored: %s", cfg.Anomaly.Method)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Setenv("MAX_INSIGHTS_PER_CYCLE", "0")
	if _, err := Load(""); err == nil {
		t.Fatal("expected validation error for zero cap")
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
