package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/orcastack/orca-monitor/internal/breaker"
	"github.com/orcastack/orca-monitor/internal/cache"
	"github.com/orcastack/orca-monitor/internal/config"
	"github.com/orcastack/orca-monitor/internal/detect"
	"github.com/orcastack/orca-monitor/internal/events"
	"github.com/orcastack/orca-monitor/internal/forecast"
	"github.com/orcastack/orca-monitor/internal/insight"
	"github.com/orcastack/orca-monitor/internal/metrics"
	"github.com/orcastack/orca-monitor/internal/models"
)

// ErrCycleInProgress is returned when RunCycle finds the previous cycle
// still holding the run mutex. The cycle is skipped, never queued.
var ErrCycleInProgress = errors.New("monitoring cycle already in progress")

const (
	endpointsCacheKey    = "inventory:endpoints"
	containersCachePfx   = "inventory:containers:"
	eventCycleSummary    = "cycle_summary"
	investigateThreshold = models.SeverityCritical
)

// Inventory lists endpoints and their containers.
type Inventory interface {
	ListEndpoints(ctx context.Context) ([]models.Endpoint, error)
	ListContainers(ctx context.Context, endpointID string) ([]models.Container, error)
}

// MetricsReader provides the single batched metric read per cycle.
type MetricsReader interface {
	GetLatestBatch(ctx context.Context, containerIDs []string) (map[string]map[models.MetricType]float64, error)
}

// Explainer optionally annotates anomaly insights; failure never blocks a cycle.
type Explainer interface {
	IsAvailable(ctx context.Context) bool
	Explain(ctx context.Context, insights []models.Insight) (map[string]string, error)
}

// Investigator is notified about inserted insights worth digging into.
type Investigator interface {
	TriggerInvestigation(ctx context.Context, ins models.Insight) error
}

// Correlator groups inserted insights into incidents.
type Correlator interface {
	Correlate(insights []models.Insight, now time.Time) ([]models.Incident, models.CorrelationSummary)
}

// Deps bundles the collaborators the engine drives each cycle. Explainer and
// Investigator are optional; everything else is required.
type Deps struct {
	Inventory    Inventory
	Metrics      MetricsReader
	Writer       *insight.Writer
	Detector     *detect.Detector
	Forecaster   *forecast.Forecaster
	Baseline     *detect.BaselineTracker
	Breaker      *breaker.Tracker
	Correlator   Correlator
	Explainer    Explainer
	Investigator Investigator
	Cache        *cache.Tiered
	Sink         events.Sink
}

// Engine runs the monitoring pipeline: discovery through the cache, one batch
// metric read, parallel detection and forecasting, dedup-gated persistence,
// then correlation and investigation against only the inserted set.
type Engine struct {
	logger *slog.Logger
	cfg    *config.Config
	deps   Deps

	mu sync.Mutex
}

func New(logger *slog.Logger, cfg *config.Config, deps Deps) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Sink == nil {
		deps.Sink = events.NoopSink{}
	}
	return &Engine{logger: logger, cfg: cfg, deps: deps}
}

// RunCycle executes one monitoring cycle. If the previous cycle is still
// running it returns ErrCycleInProgress without side effects. Collaborator
// failures inside the cycle are logged and degrade the result; they never
// leave the mutex held.
func (e *Engine) RunCycle(ctx context.Context) (models.CycleSummary, error) {
	if !e.mu.TryLock() {
		e.logger.Warn("previous cycle still running, skipping")
		metrics.ObserveCycle(0, metrics.OutcomeSkipped)
		return models.CycleSummary{}, ErrCycleInProgress
	}
	defer e.mu.Unlock()

	start := time.Now()
	summary, err := e.runLocked(ctx, start)
	summary.Duration = time.Since(start)

	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeError
	}
	metrics.ObserveCycle(summary.Duration, outcome)
	e.deps.Sink.Emit(eventCycleSummary, summary)

	e.logger.Info("cycle finished",
		slog.Duration("duration", summary.Duration),
		slog.Int("endpoints", summary.EndpointCount),
		slog.Int("containers", summary.ContainerCount),
		slog.Int("insights", summary.InsightCount),
		slog.Int("breaker_skipped", summary.SkippedOpen),
		slog.Int("fetch_failures", summary.FetchFailures))
	return summary, err
}

func (e *Engine) runLocked(ctx context.Context, start time.Time) (models.CycleSummary, error) {
	var summary models.CycleSummary

	endpoints, err := e.cachedEndpoints(ctx)
	if err != nil {
		e.logger.Error("endpoint discovery failed", slog.Any("error", err))
		return summary, fmt.Errorf("list endpoints: %w", err)
	}
	summary.EndpointCount = len(endpoints)

	containers, skipped, failures := e.fetchContainers(ctx, endpoints)
	summary.SkippedOpen = skipped
	summary.FetchFailures = len(failures)
	if len(failures) > 0 {
		// One aggregated warning instead of per-endpoint error spam.
		e.logger.Warn("container fetch failed for some endpoints",
			slog.Int("failed", len(failures)),
			slog.Int("total", len(endpoints)),
			slog.Any("endpoints", failures))
	}

	running := make([]models.Container, 0, len(containers))
	for _, ct := range containers {
		if ct.Running() {
			running = append(running, ct)
		}
	}
	summary.ContainerCount = len(running)
	if len(running) == 0 {
		return summary, nil
	}

	items := e.collectBatch(ctx, running)
	if len(items) == 0 {
		return summary, nil
	}

	// Detection and forecasting read the same baseline concurrently; new
	// samples are recorded only after both have finished.
	var (
		anomalies map[string]models.AnomalyResult
		forecasts []models.CapacityForecast
		wg        sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		anomalies = e.deps.Detector.Detect(items)
	}()
	if e.cfg.Predictive.Enabled && e.deps.Forecaster != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			forecasts = e.deps.Forecaster.Forecast(items)
		}()
	}
	wg.Wait()
	e.deps.Baseline.ObserveBatch(items)

	drafts := e.draftInsights(ctx, anomalies, forecasts, start)
	if len(drafts) == 0 {
		return summary, nil
	}

	inserted, err := e.deps.Writer.InsertBatch(ctx, drafts)
	if err != nil {
		e.logger.Error("insight persistence failed", slog.Any("error", err))
		return summary, fmt.Errorf("insert insights: %w", err)
	}
	summary.InsightCount = len(inserted)
	for _, ins := range inserted {
		metrics.CountInsight(string(ins.Category))
	}

	// Everything downstream sees only what the store actually accepted.
	e.correlate(inserted, start)
	e.investigate(ctx, inserted)

	return summary, nil
}

func (e *Engine) cachedEndpoints(ctx context.Context) ([]models.Endpoint, error) {
	fetch := func(ctx context.Context) ([]models.Endpoint, error) {
		return e.deps.Inventory.ListEndpoints(ctx)
	}
	if e.deps.Cache == nil {
		return fetch(ctx)
	}
	return cache.GetOrFetch(ctx, e.deps.Cache, endpointsCacheKey, e.cfg.Cache.EndpointsTTL, fetch)
}

// fetchContainers fans container discovery out over a bounded worker pool,
// consulting the circuit breaker before spending time on an endpoint.
func (e *Engine) fetchContainers(ctx context.Context, endpoints []models.Endpoint) ([]models.Container, int, []string) {
	workers := e.cfg.Scheduler.FetchWorkers
	if workers <= 0 {
		workers = 8
	}

	type fetchResult struct {
		endpointID string
		containers []models.Container
		err        error
	}

	eligible := make([]models.Endpoint, 0, len(endpoints))
	skipped := 0
	for _, ep := range endpoints {
		if ep.Status == models.EndpointDown {
			continue
		}
		if e.deps.Breaker.IsOpen(ep.ID) {
			skipped++
			metrics.CountSkippedEndpoint()
			continue
		}
		eligible = append(eligible, ep)
	}

	jobs := make(chan models.Endpoint)
	results := make(chan fetchResult, len(eligible))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ep := range jobs {
				containers, err := e.cachedContainers(ctx, ep.ID)
				results <- fetchResult{endpointID: ep.ID, containers: containers, err: err}
			}
		}()
	}
	for _, ep := range eligible {
		jobs <- ep
	}
	close(jobs)
	wg.Wait()
	close(results)

	var all []models.Container
	var failed []string
	for res := range results {
		if res.err != nil {
			e.deps.Breaker.RecordFailure(res.endpointID)
			failed = append(failed, res.endpointID)
			continue
		}
		e.deps.Breaker.RecordSuccess(res.endpointID)
		all = append(all, res.containers...)
	}
	sort.Strings(failed)
	return all, skipped, failed
}

func (e *Engine) cachedContainers(ctx context.Context, endpointID string) ([]models.Container, error) {
	fetch := func(ctx context.Context) ([]models.Container, error) {
		return e.deps.Inventory.ListContainers(ctx, endpointID)
	}
	if e.deps.Cache == nil {
		return fetch(ctx)
	}
	return cache.GetOrFetch(ctx, e.deps.Cache, containersCachePfx+endpointID, e.cfg.Cache.ContainersTTL, fetch)
}

// collectBatch issues the cycle's single batched metric read and flattens the
// response into (container, metric, value) tuples. A metrics-store failure
// degrades to an empty batch; the cycle still completes.
func (e *Engine) collectBatch(ctx context.Context, running []models.Container) []detect.BatchItem {
	ids := make([]string, 0, len(running))
	names := make(map[string]string, len(running))
	for _, ct := range running {
		ids = append(ids, ct.ID)
		names[ct.ID] = ct.Name
	}

	batch, err := e.deps.Metrics.GetLatestBatch(ctx, ids)
	if err != nil {
		e.logger.Warn("batch metrics read failed, skipping detection this cycle", slog.Any("error", err))
		return nil
	}

	var items []detect.BatchItem
	for _, id := range ids {
		values, ok := batch[id]
		if !ok {
			continue
		}
		for _, metric := range models.TrackedMetrics {
			value, ok := values[metric]
			if !ok {
				continue
			}
			items = append(items, detect.BatchItem{
				ContainerID:   id,
				ContainerName: names[id],
				Metric:        metric,
				Value:         value,
			})
		}
	}
	return items
}

// draftInsights turns detection output into insight drafts, enriching anomaly
// descriptions through the optional explainer.
func (e *Engine) draftInsights(ctx context.Context, anomalies map[string]models.AnomalyResult, forecasts []models.CapacityForecast, now time.Time) []models.Insight {
	var drafts []models.Insight

	keys := make([]string, 0, len(anomalies))
	for key := range anomalies {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var anomalyDrafts []models.Insight
	for _, key := range keys {
		anomalyDrafts = append(anomalyDrafts, insight.FromAnomaly(anomalies[key], now))
	}
	e.explain(ctx, anomalyDrafts)
	drafts = append(drafts, anomalyDrafts...)

	for _, fc := range forecasts {
		drafts = append(drafts, insight.FromForecast(fc, e.deps.Forecaster.Severity(fc), now))
	}
	return drafts
}

// explain swaps in AI-generated descriptions for up to MaxPerCycle anomaly
// drafts. Any failure leaves the originals untouched.
func (e *Engine) explain(ctx context.Context, drafts []models.Insight) {
	if !e.cfg.Explanation.Enabled || e.deps.Explainer == nil || len(drafts) == 0 {
		return
	}
	if !e.deps.Explainer.IsAvailable(ctx) {
		return
	}

	limit := e.cfg.Explanation.MaxPerCycle
	if limit <= 0 || limit > len(drafts) {
		limit = len(drafts)
	}
	explanations, err := e.deps.Explainer.Explain(ctx, drafts[:limit])
	if err != nil {
		e.logger.Warn("explanation enrichment failed", slog.Any("error", err))
		return
	}
	for i := range drafts[:limit] {
		if text, ok := explanations[drafts[i].ID]; ok && text != "" {
			drafts[i].Description = text
		}
	}
}

func (e *Engine) correlate(inserted []models.Insight, now time.Time) {
	if e.deps.Correlator == nil || len(inserted) == 0 {
		return
	}
	incidents, corr := e.deps.Correlator.Correlate(inserted, now)
	if corr.IncidentsCreated > 0 {
		e.logger.Info("correlation complete",
			slog.Int("incidents", len(incidents)),
			slog.Int("grouped", corr.InsightsGrouped))
	}
}

func (e *Engine) investigate(ctx context.Context, inserted []models.Insight) {
	if e.deps.Investigator == nil {
		return
	}
	failures := 0
	for _, ins := range inserted {
		if ins.Severity != investigateThreshold {
			continue
		}
		if err := e.deps.Investigator.TriggerInvestigation(ctx, ins); err != nil {
			failures++
		}
	}
	if failures > 0 {
		e.logger.Warn("investigation triggers failed", slog.Int("failed", failures))
	}
}
