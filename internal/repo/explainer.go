package repo

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/orcastack/orca-monitor/internal/config"
	"github.com/orcastack/orca-monitor/internal/models"
)

// ExplainerClient asks an optional explanation service to annotate anomaly
// insights with human-readable context. Everything about it is best-effort:
// unavailability or failure leaves insights unchanged.
type ExplainerClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewExplainerClient(cfg config.StoreClientConfig) *ExplainerClient {
	return &ExplainerClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// IsAvailable probes the service health endpoint.
func (c *ExplainerClient) IsAvailable(ctx context.Context) bool {
	if c == nil || c.baseURL == "" {
		return false
	}
	return getJSON(ctx, c.httpClient, resolvePath(c.baseURL, "/healthz"), nil) == nil
}

// Explain returns explanation text keyed by insight id. Ids missing from the
// result simply keep their original descriptions.
func (c *ExplainerClient) Explain(ctx context.Context, insights []models.Insight) (map[string]string, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("explainer base URL not configured")
	}

	items := make([]map[string]any, 0, len(insights))
	for _, ins := range insights {
		items = append(items, map[string]any{
			"insight_id":     ins.ID,
			"container_name": ins.ContainerName,
			"description":    ins.Description,
		})
	}

	var response struct {
		Explanations map[string]string `json:"explanations"`
	}
	if err := postJSON(ctx, c.httpClient, resolvePath(c.baseURL, "/api/v1/explain"), map[string]any{"insights": items}, &response); err != nil {
		return nil, fmt.Errorf("explain request failed: %w", err)
	}
	return response.Explanations, nil
}
