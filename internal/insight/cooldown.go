package insight

import (
	"sync"
	"time"
)

// CooldownLedger tracks, per dedup key, when an insight was last emitted.
// A present, non-expired entry suppresses re-emission; a periodic sweep
// removes expired entries so the map does not grow unbounded.
type CooldownLedger struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewCooldownLedger creates an empty ledger.
func NewCooldownLedger() *CooldownLedger {
	return &CooldownLedger{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Suppressed reports whether key was emitted within the cooldown period.
func (l *CooldownLedger) Suppressed(key string, cooldown time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	emitted, ok := l.entries[key]
	if !ok {
		return false
	}
	return l.now().Sub(emitted) < cooldown
}

// Mark records that key was emitted now.
func (l *CooldownLedger) Mark(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[key] = l.now()
}

// SweepExpired removes entries older than cooldown and returns the count
// removed. A zero cooldown removes everything.
func (l *CooldownLedger) SweepExpired(cooldown time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, emitted := range l.entries {
		if now.Sub(emitted) >= cooldown {
			delete(l.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of live entries.
func (l *CooldownLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Reset clears the ledger; used by tests.
func (l *CooldownLedger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make(map[string]time.Time)
}
