package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/orcastack/orca-monitor/internal/api"
	"github.com/orcastack/orca-monitor/internal/breaker"
	"github.com/orcastack/orca-monitor/internal/cache"
	"github.com/orcastack/orca-monitor/internal/config"
	"github.com/orcastack/orca-monitor/internal/correlate"
	"github.com/orcastack/orca-monitor/internal/detect"
	"github.com/orcastack/orca-monitor/internal/engine"
	"github.com/orcastack/orca-monitor/internal/events"
	"github.com/orcastack/orca-monitor/internal/forecast"
	"github.com/orcastack/orca-monitor/internal/insight"
	"github.com/orcastack/orca-monitor/internal/metrics"
	"github.com/orcastack/orca-monitor/internal/repo"
	"github.com/orcastack/orca-monitor/internal/utils"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting orca-monitor", slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	var sharedProvider cache.Provider = cache.NoopProvider{}
	if cfg.Cache.Valkey.Enabled && cfg.Cache.Valkey.Addr != "" {
		provider, err := cache.NewValkeyProvider(cache.ValkeyConfig{
			Addr:         cfg.Cache.Valkey.Addr,
			Username:     cfg.Cache.Valkey.Username,
			Password:     cfg.Cache.Valkey.Password,
			DB:           cfg.Cache.Valkey.DB,
			DialTimeout:  cfg.Cache.Valkey.DialTimeout,
			ReadTimeout:  cfg.Cache.Valkey.ReadTimeout,
			WriteTimeout: cfg.Cache.Valkey.WriteTimeout,
			MaxRetries:   cfg.Cache.Valkey.MaxRetries,
			TLS:          cfg.Cache.Valkey.TLS,
		})
		if err != nil {
			logger.Warn("valkey cache unavailable, running with in-process tier only", slog.Any("error", err))
		} else {
			sharedProvider = provider
			defer provider.Close()
		}
	}

	var tiered *cache.Tiered
	if cfg.Cache.Enabled {
		tiered = cache.NewTiered(logger, sharedProvider, cfg.Cache.StaleGrace)
	} else {
		logger.Info("inventory cache disabled, every cycle hits the origin")
	}

	inventory := repo.NewInventoryClient(cfg.Clients.Inventory)
	metricsStore := repo.NewMetricsStoreClient(cfg.Clients.MetricsStore)

	var store insight.Store
	var investigator engine.Investigator
	if cfg.Clients.InsightStore.BaseURL != "" {
		client := repo.NewInsightStoreClient(cfg.Clients.InsightStore)
		store = client
		investigator = client
	} else {
		logger.Warn("no insight store configured, persisting in process memory only")
		store = insight.NewMemoryStore()
	}

	var explainer engine.Explainer
	if cfg.Explanation.Enabled && cfg.Clients.Explainer.BaseURL != "" {
		explainer = repo.NewExplainerClient(cfg.Clients.Explainer)
	}

	baseline := detect.NewBaselineTracker(cfg.Anomaly.AdaptiveWindow)
	writer := insight.NewWriter(logger, store, nil, cfg.Insights.Cooldown(), cfg.Insights.MaxPerCycle)

	eng := engine.New(logger, cfg, engine.Deps{
		Inventory:    inventory,
		Metrics:      metricsStore,
		Writer:       writer,
		Detector:     detect.NewDetector(logger, cfg.Anomaly, baseline),
		Forecaster:   forecast.NewForecaster(cfg.Predictive, cfg.Scheduler.Interval, baseline),
		Baseline:     baseline,
		Breaker:      breaker.New(cfg.Breaker.FailureThreshold, cfg.Breaker.Cooldown),
		Correlator:   correlate.NewCorrelator(logger),
		Explainer:    explainer,
		Investigator: investigator,
		Cache:        tiered,
		Sink:         events.NewLogSink(logger),
	})

	server, err := api.NewServer(cfg.Server)
	if err != nil {
		logger.Error("failed to create gRPC server", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("gRPC server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	scheduler := engine.NewScheduler(logger, eng, cfg.Scheduler.Interval, cfg.Insights.SweepInterval, cfg.Insights.Cooldown())
	go scheduler.Run(ctx)

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	server.Shutdown(shutdownCtx)

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	// Give remaining goroutines time to finish logging
	time.Sleep(100 * time.Millisecond)
	logger.Info("orca-monitor stopped")
}
