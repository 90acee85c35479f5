package cache

import (
	"strings"
	"sync"
	"time"
)

// Memory is the fast in-process tier. Entries keep their insertion time so
// the tiered cache can distinguish fresh, stale-within-grace, and dead reads.
type Memory struct {
	mu   sync.RWMutex
	data map[string]memoryEntry
}

type memoryEntry struct {
	value    any
	storedAt time.Time
	ttl      time.Duration
}

// age reports how long the entry has been cached.
func (e memoryEntry) age(now time.Time) time.Duration {
	return now.Sub(e.storedAt)
}

// NewMemory creates an empty in-process tier.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]memoryEntry)}
}

// get returns the entry for key even when expired; the caller applies
// freshness policy. The second return reports presence.
func (m *Memory) get(key string) (memoryEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.data[key]
	return entry, ok
}

// set stores a value with the supplied TTL, stamping the insertion time.
func (m *Memory) set(key string, value any, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = memoryEntry{value: value, storedAt: time.Now(), ttl: ttl}
}

// deletePrefix removes every key starting with prefix and returns the count.
func (m *Memory) deletePrefix(prefix string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for key := range m.data {
		if strings.HasPrefix(key, prefix) {
			delete(m.data, key)
			removed++
		}
	}
	return removed
}

// clear drops all entries.
func (m *Memory) clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string]memoryEntry)
}

// size returns the number of entries, expired ones included.
func (m *Memory) size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
