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

// InsightStoreClient persists insights in the external insight service. It
// satisfies insight.Store: the service deduplicates by insight id and reports
// back which ids it actually inserted.
type InsightStoreClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewInsightStoreClient(cfg config.StoreClientConfig) *InsightStoreClient {
	return &InsightStoreClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

type insightPayload struct {
	ID            string `json:"id"`
	Category      string `json:"category"`
	Severity      string `json:"severity"`
	ContainerID   string `json:"container_id"`
	ContainerName string `json:"container_name"`
	Description   string `json:"description"`
	DedupKey      string `json:"dedup_key"`
	CreatedAt     string `json:"created_at"`
}

// InsertBatch uploads the drafts and returns the ids the service accepted.
func (c *InsightStoreClient) InsertBatch(ctx context.Context, insights []models.Insight) ([]string, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("insight store base URL not configured")
	}

	items := make([]insightPayload, 0, len(insights))
	for _, ins := range insights {
		items = append(items, insightPayload{
			ID:            ins.ID,
			Category:      string(ins.Category),
			Severity:      string(ins.Severity),
			ContainerID:   ins.ContainerID,
			ContainerName: ins.ContainerName,
			Description:   ins.Description,
			DedupKey:      ins.DedupKey,
			CreatedAt:     ins.CreatedAt.Format(time.RFC3339),
		})
	}

	var response struct {
		InsertedIDs []string `json:"inserted_ids"`
	}
	if err := postJSON(ctx, c.httpClient, resolvePath(c.baseURL, "/api/v1/insights/batch"), map[string]any{"insights": items}, &response); err != nil {
		return nil, fmt.Errorf("insight store insert failed: %w", err)
	}
	return response.InsertedIDs, nil
}

// GetRecent fetches insights created since the given time, newest last.
func (c *InsightStoreClient) GetRecent(ctx context.Context, since time.Time, limit int) ([]models.Insight, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("insight store base URL not configured")
	}

	payload := map[string]any{
		"since": since.Format(time.RFC3339),
		"limit": limit,
	}
	var response struct {
		Insights []insightPayload `json:"insights"`
	}
	if err := postJSON(ctx, c.httpClient, resolvePath(c.baseURL, "/api/v1/insights/recent"), payload, &response); err != nil {
		return nil, fmt.Errorf("insight store recent request failed: %w", err)
	}

	insights := make([]models.Insight, 0, len(response.Insights))
	for _, item := range response.Insights {
		createdAt, _ := time.Parse(time.RFC3339, item.CreatedAt)
		insights = append(insights, models.Insight{
			ID:            item.ID,
			Category:      models.Category(item.Category),
			Severity:      models.Severity(item.Severity),
			ContainerID:   item.ContainerID,
			ContainerName: item.ContainerName,
			Description:   item.Description,
			DedupKey:      item.DedupKey,
			CreatedAt:     createdAt,
		})
	}
	return insights, nil
}

// TriggerInvestigation notifies the investigation service about one inserted
// insight. Callers treat failures as non-fatal.
func (c *InsightStoreClient) TriggerInvestigation(ctx context.Context, ins models.Insight) error {
	if c == nil || c.baseURL == "" {
		return fmt.Errorf("insight store base URL not configured")
	}
	payload := map[string]any{
		"insight_id":   ins.ID,
		"container_id": ins.ContainerID,
		"severity":     string(ins.Severity),
	}
	if err := postJSON(ctx, c.httpClient, resolvePath(c.baseURL, "/api/v1/investigations"), payload, nil); err != nil {
		return fmt.Errorf("investigation trigger failed: %w", err)
	}
	return nil
}
