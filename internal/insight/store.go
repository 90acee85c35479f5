package insight

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/orcastack/orca-monitor/internal/models"
)

// Store is the persistence contract. InsertBatch may reject any insight as a
// duplicate; only the returned ids were actually persisted, and every
// downstream consumer must filter against that set.
type Store interface {
	InsertBatch(ctx context.Context, insights []models.Insight) ([]string, error)
	GetRecent(ctx context.Context, since time.Time, limit int) ([]models.Insight, error)
}

// Writer applies cooldown gating and the per-cycle cap before handing
// drafts to the store, and reports which insights actually landed.
type Writer struct {
	logger      *slog.Logger
	store       Store
	ledger      *CooldownLedger
	cooldown    time.Duration
	maxPerCycle int
}

// NewWriter wires the dedup pipeline in front of a store.
func NewWriter(logger *slog.Logger, store Store, ledger *CooldownLedger, cooldown time.Duration, maxPerCycle int) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	if ledger == nil {
		ledger = NewCooldownLedger()
	}
	if maxPerCycle <= 0 {
		maxPerCycle = 25
	}
	return &Writer{
		logger:      logger,
		store:       store,
		ledger:      ledger,
		cooldown:    cooldown,
		maxPerCycle: maxPerCycle,
	}
}

// Ledger exposes the cooldown ledger for the periodic sweep.
func (w *Writer) Ledger() *CooldownLedger {
	return w.ledger
}

// InsertBatch persists the drafts that survive cooldown gating and the
// per-cycle cap, returning only the insights the store actually inserted.
func (w *Writer) InsertBatch(ctx context.Context, drafts []models.Insight) ([]models.Insight, error) {
	suppressed := 0
	accepted := make([]models.Insight, 0, len(drafts))
	for _, draft := range drafts {
		if w.ledger.Suppressed(draft.DedupKey, w.cooldown) {
			suppressed++
			continue
		}
		accepted = append(accepted, draft)
	}

	// Deterministic order before the cap: most severe first, dedup key as
	// tie-break, so tests can assert exact survivors.
	sort.SliceStable(accepted, func(i, j int) bool {
		ri, rj := severityRank(accepted[i].Severity), severityRank(accepted[j].Severity)
		if ri != rj {
			return ri > rj
		}
		return accepted[i].DedupKey < accepted[j].DedupKey
	})
	if len(accepted) > w.maxPerCycle {
		w.logger.Warn("insight cap reached, truncating",
			slog.Int("drafted", len(accepted)), slog.Int("cap", w.maxPerCycle))
		accepted = accepted[:w.maxPerCycle]
	}

	if len(accepted) == 0 {
		if suppressed > 0 {
			w.logger.Debug("all drafts suppressed by cooldown", slog.Int("suppressed", suppressed))
		}
		return nil, nil
	}

	insertedIDs, err := w.store.InsertBatch(ctx, accepted)
	if err != nil {
		return nil, err
	}

	idSet := make(map[string]struct{}, len(insertedIDs))
	for _, id := range insertedIDs {
		idSet[id] = struct{}{}
	}

	inserted := make([]models.Insight, 0, len(insertedIDs))
	for _, candidate := range accepted {
		if _, ok := idSet[candidate.ID]; !ok {
			continue
		}
		w.ledger.Mark(candidate.DedupKey)
		inserted = append(inserted, candidate)
	}
	return inserted, nil
}

func severityRank(s models.Severity) int {
	switch s {
	case models.SeverityCritical:
		return 2
	case models.SeverityWarning:
		return 1
	default:
		return 0
	}
}

// MemoryStore keeps insights in process memory. It backs tests and
// single-node deployments without an external insight service.
type MemoryStore struct {
	mu       sync.Mutex
	insights map[string]models.Insight
	order    []string
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{insights: make(map[string]models.Insight)}
}

// InsertBatch stores the insights whose ids are not already present and
// returns the ids of those actually inserted.
func (s *MemoryStore) InsertBatch(_ context.Context, insights []models.Insight) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var inserted []string
	for _, ins := range insights {
		if _, exists := s.insights[ins.ID]; exists {
			continue
		}
		s.insights[ins.ID] = ins
		s.order = append(s.order, ins.ID)
		inserted = append(inserted, ins.ID)
	}
	return inserted, nil
}

// GetRecent returns up to limit insights created at or after since, newest
// last.
func (s *MemoryStore) GetRecent(_ context.Context, since time.Time, limit int) ([]models.Insight, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var recent []models.Insight
	for _, id := range s.order {
		ins := s.insights[id]
		if ins.CreatedAt.Before(since) {
			continue
		}
		recent = append(recent, ins)
	}
	if limit > 0 && len(recent) > limit {
		recent = recent[len(recent)-limit:]
	}
	return recent, nil
}

// Len reports the number of stored insights.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.insights)
}
