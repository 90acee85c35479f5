package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/orcastack/orca-monitor/internal/config"
	"github.com/orcastack/orca-monitor/internal/models"
)

func jsonResponse(t *testing.T, payload any) *http.Response {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(bytes.NewReader(data)),
		Header:     make(http.Header),
	}
}

func TestListEndpoints(t *testing.T) {
	client := NewInventoryClient(config.InventoryClientConfig{
		BaseURL:        "https://inventory.example.com",
		EndpointsPath:  "/api/v1/endpoints",
		ContainersPath: "/api/v1/endpoints/%s/containers",
		Timeout:        time.Second,
	})
	client.httpClient = newTestClient(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/api/v1/endpoints" {
			t.Fatalf("unexpected path: %s", req.URL.Path)
		}
		return jsonResponse(t, map[string]any{
			"endpoints": []map[string]any{
				{"id": "ep-1", "name": "prod-east", "status": "up", "supports_live": true},
				{"id": "ep-2", "name": "prod-west", "status": "degraded"},
			},
		}), nil
	})

	endpoints, err := client.ListEndpoints(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(endpoints) != 2 {
		t.Fatalf("expected 2 endpoints, got %d", len(endpoints))
	}
	if endpoints[0].Status != models.EndpointUp || !endpoints[0].SupportsLive {
		t.Fatalf("unexpected first endpoint: %+v", endpoints[0])
	}
}

func TestListContainersInterpolatesEndpointID(t *testing.T) {
	client := NewInventoryClient(config.InventoryClientConfig{
		BaseURL:        "https://inventory.example.com",
		EndpointsPath:  "/api/v1/endpoints",
		ContainersPath: "/api/v1/endpoints/%s/containers",
		Timeout:        time.Second,
	})
	client.httpClient = newTestClient(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/api/v1/endpoints/ep-7/containers" {
			t.Fatalf("unexpected path: %s", req.URL.Path)
		}
		return jsonResponse(t, map[string]any{
			"containers": []map[string]any{
				{"id": "c1", "name": "web", "state": "running"},
			},
		}), nil
	})

	containers, err := client.ListContainers(context.Background(), "ep-7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(containers) != 1 || containers[0].EndpointID != "ep-7" {
		t.Fatalf("unexpected containers: %+v", containers)
	}
}

func TestGetLatestBatch(t *testing.T) {
	client := NewMetricsStoreClient(config.StoreClientConfig{
		BaseURL: "https://metrics.example.com",
		Timeout: time.Second,
	})
	client.httpClient = newTestClient(func(req *http.Request) (*http.Response, error) {
		var body struct {
			ContainerIDs []string `json:"container_ids"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(body.ContainerIDs) != 2 {
			t.Fatalf("expected a single batched request for both containers, got %v", body.ContainerIDs)
		}
		return jsonResponse(t, map[string]any{
			"containers": map[string]any{
				"c1": map[string]float64{"cpu": 81.5, "memory": 40},
				"c2": map[string]float64{"cpu": 12, "memory": 95.2},
			},
		}), nil
	})

	batch, err := client.GetLatestBatch(context.Background(), []string{"c1", "c2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if batch["c1"][models.MetricCPU] != 81.5 {
		t.Fatalf("unexpected batch: %+v", batch)
	}
}

func TestGetRollingStatsNoHistory(t *testing.T) {
	client := NewMetricsStoreClient(config.StoreClientConfig{
		BaseURL: "https://metrics.example.com",
		Timeout: time.Second,
	})
	client.httpClient = newTestClient(func(*http.Request) (*http.Response, error) {
		return jsonResponse(t, map[string]any{"stats": nil}), nil
	})

	stats, err := client.GetRollingStats(context.Background(), "c1", models.MetricCPU, time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats != nil {
		t.Fatalf("expected nil stats for missing history, got %+v", stats)
	}
}

func TestInsightStoreInsertBatchReturnsAcceptedIDs(t *testing.T) {
	client := NewInsightStoreClient(config.StoreClientConfig{
		BaseURL: "https://insights.example.com",
		Timeout: time.Second,
	})
	client.httpClient = newTestClient(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/api/v1/insights/batch" {
			t.Fatalf("unexpected path: %s", req.URL.Path)
		}
		// The service deduplicates: it accepts one of the two drafts.
		return jsonResponse(t, map[string]any{"inserted_ids": []string{"ins-a"}}), nil
	})

	ids, err := client.InsertBatch(context.Background(), []models.Insight{
		{ID: "ins-a", CreatedAt: time.Now()},
		{ID: "ins-b", CreatedAt: time.Now()},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 1 || ids[0] != "ins-a" {
		t.Fatalf("unexpected inserted ids: %v", ids)
	}
}

func TestExplainerUnavailableWithoutBaseURL(t *testing.T) {
	client := NewExplainerClient(config.StoreClientConfig{})
	if client.IsAvailable(context.Background()) {
		t.Fatal("unconfigured explainer must report unavailable")
	}
}

func TestExplainReturnsPerInsightText(t *testing.T) {
	client := NewExplainerClient(config.StoreClientConfig{
		BaseURL: "https://explain.example.com",
		Timeout: time.Second,
	})
	client.httpClient = newTestClient(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(t, map[string]any{
			"explanations": map[string]string{"ins-a": "memory leak suspected"},
		}), nil
	})

	out, err := client.Explain(context.Background(), []models.Insight{{ID: "ins-a"}, {ID: "ins-b"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["ins-a"] != "memory leak suspected" {
		t.Fatalf("unexpected explanations: %v", out)
	}
	if _, ok := out["ins-b"]; ok {
		t.Fatal("ins-b has no explanation and must be absent")
	}
}

func TestClientErrorsOnNon200(t *testing.T) {
	client := NewInventoryClient(config.InventoryClientConfig{
		BaseURL:       "https://inventory.example.com",
		EndpointsPath: "/api/v1/endpoints",
		Timeout:       time.Second,
	})
	client.httpClient = newTestClient(func(*http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusBadGateway,
			Status:     "502 Bad Gateway",
			Body:       io.NopCloser(bytes.NewReader(nil)),
			Header:     make(http.Header),
		}, nil
	})

	if _, err := client.ListEndpoints(context.Background()); err == nil {
		t.Fatal("expected error on 502")
	}
}
