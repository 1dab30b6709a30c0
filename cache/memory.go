package cache

import (
	"context"
	"sync"
	"time"
)

// store is the per-backend dispatch target used by Cache.
type store interface {
	load(ctx context.Context, key string) (*Entry, bool)
	save(ctx context.Context, key string, e *Entry, maxEntries int) error
	remove(ctx context.Context, key string)
	clear(ctx context.Context)
	size(ctx context.Context) int
	sweep(ctx context.Context, now time.Time) int
}

type memoryEntry struct {
	entry Entry
	seq   uint64
}

// memoryStore is the bounded in-process backend. When full it evicts the
// entry with the oldest StoredAt; insertion order breaks ties.
type memoryStore struct {
	mu         sync.Mutex
	entries    map[string]*memoryEntry
	maxEntries int
	seq        uint64
}

func newMemoryStore(maxEntries int) *memoryStore {
	return &memoryStore{
		entries:    make(map[string]*memoryEntry),
		maxEntries: maxEntries,
	}
}

func (m *memoryStore) load(_ context.Context, key string) (*Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	me, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	e := me.entry
	e.Data = append([]byte(nil), me.entry.Data...)
	return &e, true
}

func (m *memoryStore) save(_ context.Context, key string, e *Entry, maxEntries int) error {
	if maxEntries <= 0 {
		maxEntries = m.maxEntries
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[key]; !exists {
		for len(m.entries) >= maxEntries && len(m.entries) > 0 {
			m.evictOldestLocked()
		}
	}

	m.seq++
	m.entries[key] = &memoryEntry{entry: *e, seq: m.seq}
	return nil
}

// evictOldestLocked drops the single oldest entry. O(n) over a small bound.
func (m *memoryStore) evictOldestLocked() {
	var (
		oldestKey string
		oldest    *memoryEntry
	)
	for k, me := range m.entries {
		if oldest == nil ||
			me.entry.StoredAt.Before(oldest.entry.StoredAt) ||
			(me.entry.StoredAt.Equal(oldest.entry.StoredAt) && me.seq < oldest.seq) {
			oldestKey, oldest = k, me
		}
	}
	if oldest != nil {
		delete(m.entries, oldestKey)
	}
}

func (m *memoryStore) remove(_ context.Context, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
}

// removeFallback deletes key only if it was written on behalf of b.
func (m *memoryStore) removeFallback(key string, b Backend) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if me, ok := m.entries[key]; ok && me.entry.fallbackFor == b {
		delete(m.entries, key)
	}
}

// clearFallbacks deletes every entry written on behalf of b.
func (m *memoryStore) clearFallbacks(b Backend) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, me := range m.entries {
		if me.entry.fallbackFor == b {
			delete(m.entries, k)
		}
	}
}

func (m *memoryStore) clear(_ context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]*memoryEntry)
}

func (m *memoryStore) size(_ context.Context) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *memoryStore) sweep(_ context.Context, now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for k, me := range m.entries {
		if me.entry.Expired(now) {
			delete(m.entries, k)
			removed++
		}
	}
	return removed
}
