package repo

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/orcastack/orca-monitor/internal/config"
	"github.com/orcastack/orca-monitor/internal/models"
)

// InventoryClient reads the orchestrator inventory: which endpoints exist and
// which containers each one runs. The pipeline treats both as read-only.
type InventoryClient struct {
	baseURL        string
	endpointsPath  string
	containersPath string
	httpClient     *http.Client
}

// NewInventoryClient constructs a client for the configured inventory API.
func NewInventoryClient(cfg config.InventoryClientConfig) *InventoryClient {
	return &InventoryClient{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		endpointsPath:  cfg.EndpointsPath,
		containersPath: cfg.ContainersPath,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// ListEndpoints returns every registered orchestration endpoint.
func (c *InventoryClient) ListEndpoints(ctx context.Context) ([]models.Endpoint, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("inventory base URL not configured")
	}

	var response struct {
		Endpoints []struct {
			ID           string `json:"id"`
			Name         string `json:"name"`
			Status       string `json:"status"`
			SupportsLive bool   `json:"supports_live"`
		} `json:"endpoints"`
	}
	if err := getJSON(ctx, c.httpClient, resolvePath(c.baseURL, c.endpointsPath), &response); err != nil {
		return nil, fmt.Errorf("inventory endpoints request failed: %w", err)
	}

	endpoints := make([]models.Endpoint, 0, len(response.Endpoints))
	for _, e := range response.Endpoints {
		endpoints = append(endpoints, models.Endpoint{
			ID:           e.ID,
			Name:         e.Name,
			Status:       models.EndpointStatus(e.Status),
			SupportsLive: e.SupportsLive,
		})
	}
	return endpoints, nil
}

// ListContainers returns the containers hosted by one endpoint.
func (c *InventoryClient) ListContainers(ctx context.Context, endpointID string) ([]models.Container, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("inventory base URL not configured")
	}

	var response struct {
		Containers []struct {
			ID    string `json:"id"`
			Name  string `json:"name"`
			State string `json:"state"`
		} `json:"containers"`
	}
	path := fmt.Sprintf(c.containersPath, endpointID)
	if err := getJSON(ctx, c.httpClient, resolvePath(c.baseURL, path), &response); err != nil {
		return nil, fmt.Errorf("inventory containers request failed for %s: %w", endpointID, err)
	}

	containers := make([]models.Container, 0, len(response.Containers))
	for _, ct := range response.Containers {
		containers = append(containers, models.Container{
			ID:         ct.ID,
			Name:       ct.Name,
			State:      ct.State,
			EndpointID: endpointID,
		})
	}
	return containers, nil
}
