package insight

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/orcastack/orca-monitor/internal/models"
)

func TestDedupKeyBucketsNearbyValues(t *testing.T) {
	a := DedupKey(models.CategoryAnomaly, "c1", models.MetricCPU, 91.2)
	b := DedupKey(models.CategoryAnomaly, "c1", models.MetricCPU, 93.8)
	if a != b {
		t.Fatalf("values in the same bucket must collide: %s vs %s", a, b)
	}

	c := DedupKey(models.CategoryAnomaly, "c1", models.MetricCPU, 96.0)
	if a == c {
		t.Fatal("values in different buckets must not collide")
	}

	d := DedupKey(models.CategoryPredictive, "c1", models.MetricCPU, 91.2)
	if a == d {
		t.Fatal("category must be part of the identity")
	}
}

func TestDedupKeyInfiniteScoreValue(t *testing.T) {
	key := DedupKey(models.CategoryAnomaly, "c1", models.MetricMemory, math.Inf(1))
	if key != "anomaly:c1:memory:0" {
		t.Fatalf("unexpected key for infinite value: %s", key)
	}
}

func TestInsightIDStable(t *testing.T) {
	key := DedupKey(models.CategoryAnomaly, "c1", models.MetricCPU, 92)
	if InsightID(key) != InsightID(key) {
		t.Fatal("id derivation must be deterministic")
	}
}

func TestCooldownSuppression(t *testing.T) {
	ledger := NewCooldownLedger()
	ledger.Mark("k1")

	if !ledger.Suppressed("k1", time.Hour) {
		t.Fatal("fresh entry must suppress")
	}
	if ledger.Suppressed("k2", time.Hour) {
		t.Fatal("unknown key must not suppress")
	}
	if ledger.Suppressed("k1", 0) {
		t.Fatal("zero cooldown never suppresses")
	}
}

func TestSweepExpired(t *testing.T) {
	ledger := NewCooldownLedger()
	ledger.Mark("k1")
	ledger.Mark("k2")

	if removed := ledger.SweepExpired(24 * time.Hour); removed != 0 {
		t.Fatalf("expected nothing swept under a large cooldown, got %d", removed)
	}
	if removed := ledger.SweepExpired(0); removed != 2 {
		t.Fatalf("expected all entries swept with zero cooldown, got %d", removed)
	}
	if ledger.Len() != 0 {
		t.Fatalf("expected empty ledger, got %d entries", ledger.Len())
	}
}

func draft(container string, value float64, severity models.Severity) models.Insight {
	key := DedupKey(models.CategoryAnomaly, container, models.MetricCPU, value)
	return models.Insight{
		ID:          InsightID(key),
		Category:    models.CategoryAnomaly,
		Severity:    severity,
		ContainerID: container,
		DedupKey:    key,
		CreatedAt:   time.Now(),
	}
}

func TestWriterCapsBatchDeterministically(t *testing.T) {
	store := NewMemoryStore()
	writer := NewWriter(nil, store, nil, time.Hour, 2)

	drafts := []models.Insight{
		draft("c1", 90, models.SeverityWarning),
		draft("c2", 91, models.SeverityCritical),
		draft("c3", 92, models.SeverityWarning),
	}
	inserted, err := writer.InsertBatch(context.Background(), drafts)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if len(inserted) != 2 {
		t.Fatalf("expected exactly 2 persisted under cap, got %d", len(inserted))
	}
	// Critical sorts first; the remaining slot goes to the lowest dedup key.
	if inserted[0].ContainerID != "c2" {
		t.Fatalf("expected critical insight first, got %s", inserted[0].ContainerID)
	}
	if inserted[1].ContainerID != "c1" {
		t.Fatalf("expected deterministic tie-break by dedup key, got %s", inserted[1].ContainerID)
	}
	if store.Len() != 2 {
		t.Fatalf("expected 2 stored, got %d", store.Len())
	}
}

func TestWriterSuppressesRepeatCycle(t *testing.T) {
	store := NewMemoryStore()
	writer := NewWriter(nil, store, nil, 30*time.Minute, 10)

	drafts := []models.Insight{draft("c1", 90, models.SeverityWarning)}

	first, err := writer.InsertBatch(context.Background(), drafts)
	if err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("expected first emission, got %d", len(first))
	}

	// The identical condition within the cooldown window is fully suppressed.
	second, err := writer.InsertBatch(context.Background(), drafts)
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if len(second) != 0 {
		t.Fatalf("expected full suppression, got %d", len(second))
	}

	// After the sweep clears the ledger the condition can emit again, and
	// the store-side id dedup still rejects the duplicate row.
	writer.Ledger().SweepExpired(0)
	third, err := writer.InsertBatch(context.Background(), drafts)
	if err != nil {
		t.Fatalf("third insert: %v", err)
	}
	if len(third) != 0 {
		t.Fatalf("store must reject duplicate ids, got %d", len(third))
	}
}

// partialStore simulates a backend that deduplicates half the batch.
type partialStore struct{}

func (partialStore) InsertBatch(_ context.Context, insights []models.Insight) ([]string, error) {
	var ids []string
	for i, ins := range insights {
		if i%2 == 0 {
			ids = append(ids, ins.ID)
		}
	}
	return ids, nil
}

func (partialStore) GetRecent(context.Context, time.Time, int) ([]models.Insight, error) {
	return nil, nil
}

func TestWriterReturnsOnlyStoreAcceptedInsights(t *testing.T) {
	writer := NewWriter(nil, partialStore{}, nil, time.Hour, 10)

	var drafts []models.Insight
	for i := 0; i < 4; i++ {
		drafts = append(drafts, draft(fmt.Sprintf("c%d", i), float64(10*i), models.SeverityWarning))
	}

	inserted, err := writer.InsertBatch(context.Background(), drafts)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if len(inserted) != 2 {
		t.Fatalf("expected only store-accepted insights, got %d", len(inserted))
	}
	// Only accepted insights enter cooldown; rejected ones may retry next cycle.
	if writer.Ledger().Len() != 2 {
		t.Fatalf("expected 2 cooldown entries, got %d", writer.Ledger().Len())
	}
}
