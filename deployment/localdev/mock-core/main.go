package main

import (
	"encoding/json"
	"log"
	"math"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"
)

// mock upstream for local development: serves the inventory, metrics-store,
// insight-store and explainer APIs the engine expects, with one container
// that drifts upward so anomalies and forecasts actually fire.

type endpointInfo struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Status       string `json:"status"`
	SupportsLive bool   `json:"supports_live"`
}

type containerInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	State string `json:"state"`
}

type insightRecord struct {
	ID          string `json:"id"`
	Category    string `json:"category"`
	Severity    string `json:"severity"`
	ContainerID string `json:"container_id"`
	Description string `json:"description"`
	DedupKey    string `json:"dedup_key"`
	CreatedAt   string `json:"created_at"`
}

type insightStore struct {
	mu   sync.Mutex
	seen map[string]insightRecord
}

func (s *insightStore) insert(records []insightRecord) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var inserted []string
	for _, rec := range records {
		if _, dup := s.seen[rec.ID]; dup {
			continue
		}
		s.seen[rec.ID] = rec
		inserted = append(inserted, rec.ID)
	}
	return inserted
}

func main() {
	boot := time.Now()
	store := &insightStore{seen: make(map[string]insightRecord)}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/api/v1/endpoints", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{
			"endpoints": []endpointInfo{
				{ID: "ep-local", Name: "local-docker", Status: "up", SupportsLive: true},
				{ID: "ep-staging", Name: "staging-cluster", Status: "up"},
				{ID: "ep-flaky", Name: "flaky-edge", Status: "degraded"},
			},
		})
	})

	mux.HandleFunc("/api/v1/endpoints/", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/containers") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		switch {
		case strings.Contains(r.URL.Path, "ep-local"):
			writeJSON(w, map[string]any{
				"containers": []containerInfo{
					{ID: "c-web", Name: "web", State: "running"},
					{ID: "c-db", Name: "postgres", State: "running"},
					{ID: "c-old", Name: "retired-job", State: "exited"},
				},
			})
		case strings.Contains(r.URL.Path, "ep-staging"):
			writeJSON(w, map[string]any{
				"containers": []containerInfo{
					{ID: "c-api", Name: "api", State: "running"},
				},
			})
		default:
			// The flaky endpoint fails half the time to exercise the breaker.
			if rand.Intn(2) == 0 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			writeJSON(w, map[string]any{"containers": []containerInfo{}})
		}
	})

	mux.HandleFunc("/api/v1/metrics/latest", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		var body struct {
			ContainerIDs []string `json:"container_ids"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)

		// c-web memory climbs steadily toward 95%; everything else hovers.
		minutes := time.Since(boot).Minutes()
		containers := make(map[string]map[string]float64)
		for _, id := range body.ContainerIDs {
			switch id {
			case "c-web":
				containers[id] = map[string]float64{
					"cpu":    35 + 5*math.Sin(minutes/3),
					"memory": math.Min(40+minutes*1.5, 99),
				}
			default:
				containers[id] = map[string]float64{
					"cpu":    20 + rand.Float64()*4,
					"memory": 50 + rand.Float64()*3,
				}
			}
		}
		writeJSON(w, map[string]any{"containers": containers})
	})

	mux.HandleFunc("/api/v1/metrics/rolling-stats", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		writeJSON(w, map[string]any{
			"stats": map[string]any{"mean": 42.0, "stddev": 6.5, "sample_count": 20},
		})
	})

	mux.HandleFunc("/api/v1/insights/batch", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		var body struct {
			Insights []insightRecord `json:"insights"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		writeJSON(w, map[string]any{"inserted_ids": store.insert(body.Insights)})
	})

	mux.HandleFunc("/api/v1/insights/recent", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		store.mu.Lock()
		recent := make([]insightRecord, 0, len(store.seen))
		for _, rec := range store.seen {
			recent = append(recent, rec)
		}
		store.mu.Unlock()
		writeJSON(w, map[string]any{"insights": recent})
	})

	mux.HandleFunc("/api/v1/investigations", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		writeJSON(w, map[string]any{"accepted": true})
	})

	mux.HandleFunc("/api/v1/explain", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		var body struct {
			Insights []struct {
				InsightID string `json:"insight_id"`
			} `json:"insights"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		explanations := make(map[string]string)
		for _, ins := range body.Insights {
			explanations[ins.InsightID] = "mock explanation: sustained load increase since last deploy"
		}
		writeJSON(w, map[string]any{"explanations": explanations})
	})

	logger := log.New(log.Writer(), "core-mock ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:    ":8080",
		Handler: logRequests(logger, mux),
	}

	logger.Println("listening on :8080")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

func enforcePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
