package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the monitoring engine.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Clients     ClientsConfig     `yaml:"clients"`
	Logging     LoggingConfig     `yaml:"logging"`
	Cache       CacheConfig       `yaml:"cache"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	Breaker     BreakerConfig     `yaml:"breaker"`
	Anomaly     AnomalyConfig     `yaml:"anomaly"`
	Predictive  PredictiveConfig  `yaml:"predictive"`
	Explanation ExplanationConfig `yaml:"explanation"`
	Insights    InsightsConfig    `yaml:"insights"`
}

// ServerConfig controls the control-plane listeners.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// ClientsConfig groups upstream collaborator endpoints.
type ClientsConfig struct {
	Inventory    InventoryClientConfig `yaml:"inventory"`
	MetricsStore StoreClientConfig     `yaml:"metricsStore"`
	InsightStore StoreClientConfig     `yaml:"insightStore"`
	Explainer    StoreClientConfig     `yaml:"explainer"`
}

// InventoryClientConfig configures access to the orchestrator inventory API.
type InventoryClientConfig struct {
	BaseURL        string        `yaml:"baseURL"`
	EndpointsPath  string        `yaml:"endpointsPath"`
	ContainersPath string        `yaml:"containersPath"`
	Timeout        time.Duration `yaml:"timeout"`
}

// StoreClientConfig configures a generic JSON-over-HTTP collaborator.
type StoreClientConfig struct {
	BaseURL string        `yaml:"baseURL"`
	Timeout time.Duration `yaml:"timeout"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// CacheConfig controls the tiered inventory cache.
type CacheConfig struct {
	Enabled       bool          `yaml:"enabled"`
	EndpointsTTL  time.Duration `yaml:"endpointsTTL"`
	ContainersTTL time.Duration `yaml:"containersTTL"`
	StaleGrace    time.Duration `yaml:"staleGrace"`
	Valkey        ValkeyConfig  `yaml:"valkey"`
}

// ValkeyConfig holds connection parameters for the optional distributed tier.
type ValkeyConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	MaxRetries   int           `yaml:"maxRetries"`
	TLS          bool          `yaml:"tls"`
}

// SchedulerConfig drives the periodic monitoring cycle.
type SchedulerConfig struct {
	Interval     time.Duration `yaml:"interval"`
	FetchWorkers int           `yaml:"fetchWorkers"`
}

// BreakerConfig tunes the per-endpoint circuit breaker.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failureThreshold"`
	Cooldown         time.Duration `yaml:"cooldown"`
}

// AnomalyConfig tunes the batch anomaly detector. Method selects the
// statistical check: "adaptive" (default) or "disabled" to run the hard
// threshold alone.
type AnomalyConfig struct {
	HardThresholdEnabled   bool    `yaml:"hardThresholdEnabled"`
	ThresholdPct           float64 `yaml:"thresholdPct"`
	Method                 string  `yaml:"method"`
	AdaptiveWindow         int     `yaml:"adaptiveWindow"`
	MinSamples             int     `yaml:"minSamples"`
	ZScoreThreshold        float64 `yaml:"zScoreThreshold"`
	IsolationForestEnabled bool    `yaml:"isolationForestEnabled"`
}

// PredictiveConfig tunes capacity forecasting. Severity bucket cutoffs are
// policy, so they live here rather than in the forecaster.
type PredictiveConfig struct {
	Enabled         bool    `yaml:"enabled"`
	ThresholdPct    float64 `yaml:"thresholdPct"`
	AlertHours      float64 `yaml:"alertHours"`
	CriticalHours   float64 `yaml:"criticalHours"`
	WarningHours    float64 `yaml:"warningHours"`
	SlopeNoiseFloor float64 `yaml:"slopeNoiseFloor"`
	MinFitQuality   float64 `yaml:"minFitQuality"`
	HighFitQuality  float64 `yaml:"highFitQuality"`
	MinSamples      int     `yaml:"minSamples"`
}

// ExplanationConfig gates AI-generated insight enrichment.
type ExplanationConfig struct {
	Enabled     bool `yaml:"enabled"`
	MaxPerCycle int  `yaml:"maxPerCycle"`
}

// InsightsConfig bounds insight persistence per cycle.
type InsightsConfig struct {
	MaxPerCycle     int           `yaml:"maxPerCycle"`
	CooldownMinutes int           `yaml:"cooldownMinutes"`
	SweepInterval   time.Duration `yaml:"sweepInterval"`
}

// Cooldown returns the dedup window as a duration.
func (c InsightsConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownMinutes) * time.Minute
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("ORCA_MONITOR_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":50061",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Clients: ClientsConfig{
			Inventory: InventoryClientConfig{
				EndpointsPath:  "/api/v1/endpoints",
				ContainersPath: "/api/v1/endpoints/%s/containers",
				Timeout:        5 * time.Second,
			},
			MetricsStore: StoreClientConfig{Timeout: 5 * time.Second},
			InsightStore: StoreClientConfig{Timeout: 5 * time.Second},
			Explainer:    StoreClientConfig{Timeout: 10 * time.Second},
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Cache: CacheConfig{
			Enabled:       true,
			EndpointsTTL:  30 * time.Second,
			ContainersTTL: 30 * time.Second,
			StaleGrace:    60 * time.Second,
			Valkey: ValkeyConfig{
				DialTimeout:  2 * time.Second,
				ReadTimeout:  500 * time.Millisecond,
				WriteTimeout: 500 * time.Millisecond,
				MaxRetries:   2,
			},
		},
		Scheduler: SchedulerConfig{
			Interval:     30 * time.Second,
			FetchWorkers: 8,
		},
		Breaker: BreakerConfig{
			FailureThreshold: 3,
			Cooldown:         5 * time.Minute,
		},
		Anomaly: AnomalyConfig{
			HardThresholdEnabled: true,
			ThresholdPct:         90,
			Method:               "adaptive",
			AdaptiveWindow:       20,
			MinSamples:           5,
			ZScoreThreshold:      2.5,
		},
		Predictive: PredictiveConfig{
			Enabled:         true,
			ThresholdPct:    95,
			AlertHours:      24,
			CriticalHours:   5,
			WarningHours:    15,
			SlopeNoiseFloor: 0.01,
			MinFitQuality:   0.5,
			HighFitQuality:  0.8,
			MinSamples:      6,
		},
		Explanation: ExplanationConfig{Enabled: false, MaxPerCycle: 3},
		Insights: InsightsConfig{
			MaxPerCycle:     25,
			CooldownMinutes: 30,
			SweepInterval:   10 * time.Minute,
		},
	}
}

func validate(cfg *Config) error {
	if cfg.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler interval must be positive, got %s", cfg.Scheduler.Interval)
	}
	if cfg.Scheduler.FetchWorkers <= 0 {
		cfg.Scheduler.FetchWorkers = 8
	}
	if cfg.Insights.MaxPerCycle <= 0 {
		return fmt.Errorf("insights maxPerCycle must be positive, got %d", cfg.Insights.MaxPerCycle)
	}
	if cfg.Anomaly.AdaptiveWindow < cfg.Anomaly.MinSamples {
		return fmt.Errorf("anomaly adaptiveWindow (%d) must cover minSamples (%d)",
			cfg.Anomaly.AdaptiveWindow, cfg.Anomaly.MinSamples)
	}
	if cfg.Predictive.CriticalHours > cfg.Predictive.WarningHours {
		return fmt.Errorf("predictive criticalHours (%.1f) must not exceed warningHours (%.1f)",
			cfg.Predictive.CriticalHours, cfg.Predictive.WarningHours)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ORCA_MONITOR_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("ORCA_MONITOR_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("ORCA_MONITOR_INVENTORY_URL"); v != "" {
		cfg.Clients.Inventory.BaseURL = v
	}
	if v := os.Getenv("ORCA_MONITOR_METRICS_STORE_URL"); v != "" {
		cfg.Clients.MetricsStore.BaseURL = v
	}
	if v := os.Getenv("ORCA_MONITOR_INSIGHT_STORE_URL"); v != "" {
		cfg.Clients.InsightStore.BaseURL = v
	}
	if v := os.Getenv("ORCA_MONITOR_EXPLAINER_URL"); v != "" {
		cfg.Clients.Explainer.BaseURL = v
	}
	if v := os.Getenv("ORCA_MONITOR_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("ORCA_MONITOR_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = envBool(v)
	}
	if v := os.Getenv("ORCA_MONITOR_VALKEY_ADDR"); v != "" {
		cfg.Cache.Valkey.Addr = v
		cfg.Cache.Valkey.Enabled = true
	}
	if v := os.Getenv("ORCA_MONITOR_VALKEY_PASSWORD"); v != "" {
		cfg.Cache.Valkey.Password = v
	}
	if v := os.Getenv("METRICS_COLLECTION_INTERVAL_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.Scheduler.Interval = time.Duration(secs) * time.Second
		}
	}
	if v := os.Getenv("ANOMALY_HARD_THRESHOLD_ENABLED"); v != "" {
		cfg.Anomaly.HardThresholdEnabled = envBool(v)
	}
	if v := os.Getenv("ANOMALY_THRESHOLD_PCT"); v != "" {
		if pct, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Anomaly.ThresholdPct = pct
		}
	}
	if v := os.Getenv("ANOMALY_DETECTION_METHOD"); v != "" {
		cfg.Anomaly.Method = strings.ToLower(v)
	}
	if v := os.Getenv("ANOMALY_ZSCORE_THRESHOLD"); v != "" {
		if z, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Anomaly.ZScoreThreshold = z
		}
	}
	if v := os.Getenv("ANOMALY_ADAPTIVE_WINDOW"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Anomaly.AdaptiveWindow = n
		}
	}
	if v := os.Getenv("ANOMALY_MIN_SAMPLES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Anomaly.MinSamples = n
		}
	}
	if v := os.Getenv("ISOLATION_FOREST_ENABLED"); v != "" {
		cfg.Anomaly.IsolationForestEnabled = envBool(v)
	}
	if v := os.Getenv("PREDICTIVE_ALERTING_ENABLED"); v != "" {
		cfg.Predictive.Enabled = envBool(v)
	}
	if v := os.Getenv("PREDICTIVE_ALERT_THRESHOLD_HOURS"); v != "" {
		if hours, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Predictive.AlertHours = hours
		}
	}
	if v := os.Getenv("ANOMALY_EXPLANATION_ENABLED"); v != "" {
		cfg.Explanation.Enabled = envBool(v)
	}
	if v := os.Getenv("ANOMALY_EXPLANATION_MAX_PER_CYCLE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Explanation.MaxPerCycle = n
		}
	}
	if v := os.Getenv("MAX_INSIGHTS_PER_CYCLE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Insights.MaxPerCycle = n
		}
	}
	if v := os.Getenv("ANOMALY_COOLDOWN_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Insights.CooldownMinutes = n
		}
	}
}

func envBool(v string) bool {
	return strings.EqualFold(v, "true") || strings.EqualFold(v, "1")
}
