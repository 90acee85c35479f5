package repo

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/orcastack/orca-monitor/internal/config"
	"github.com/orcastack/orca-monitor/internal/models"
)

// MetricsStoreClient reads container resource metrics from the metrics
// backend. The pipeline issues exactly one batch read per cycle; per-container
// reads exist only for ad-hoc baseline queries.
type MetricsStoreClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewMetricsStoreClient(cfg config.StoreClientConfig) *MetricsStoreClient {
	return &MetricsStoreClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// GetLatestBatch returns the most recent value of every tracked metric for
// the given containers, keyed by container id.
func (c *MetricsStoreClient) GetLatestBatch(ctx context.Context, containerIDs []string) (map[string]map[models.MetricType]float64, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("metrics store base URL not configured")
	}

	payload := map[string]any{
		"container_ids": containerIDs,
		"metrics":       models.TrackedMetrics,
	}
	var response struct {
		Containers map[string]map[string]float64 `json:"containers"`
	}
	if err := postJSON(ctx, c.httpClient, resolvePath(c.baseURL, "/api/v1/metrics/latest"), payload, &response); err != nil {
		return nil, fmt.Errorf("metrics store batch request failed: %w", err)
	}

	batch := make(map[string]map[models.MetricType]float64, len(response.Containers))
	for containerID, values := range response.Containers {
		metrics := make(map[models.MetricType]float64, len(values))
		for metric, value := range values {
			metrics[models.MetricType(metric)] = value
		}
		batch[containerID] = metrics
	}
	return batch, nil
}

// GetRollingStats returns the backend-computed rolling statistics for one
// (container, metric) pair, or nil when the backend has no history for it.
func (c *MetricsStoreClient) GetRollingStats(ctx context.Context, containerID string, metric models.MetricType, window time.Duration) (*models.RollingStats, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("metrics store base URL not configured")
	}

	payload := map[string]any{
		"container_id":   containerID,
		"metric":         metric,
		"window_seconds": int(window.Seconds()),
	}
	var response struct {
		Stats *struct {
			Mean        float64 `json:"mean"`
			StdDev      float64 `json:"stddev"`
			SampleCount int     `json:"sample_count"`
		} `json:"stats"`
	}
	if err := postJSON(ctx, c.httpClient, resolvePath(c.baseURL, "/api/v1/metrics/rolling-stats"), payload, &response); err != nil {
		return nil, fmt.Errorf("metrics store rolling-stats request failed: %w", err)
	}
	if response.Stats == nil {
		return nil, nil
	}
	return &models.RollingStats{
		Mean:        response.Stats.Mean,
		StdDev:      response.Stats.StdDev,
		SampleCount: response.Stats.SampleCount,
	}, nil
}
