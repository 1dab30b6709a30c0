// Package cache provides a uniform TTL cache over three interchangeable
// backends: an in-process memory store and two persistent key/value stores.
//
// Reads enforce expiry lazily; a background sweep removes expired entries
// that are never read again. The cache is a best-effort layer: no operation
// returns an error to its caller, storage failures degrade to misses or to
// a fallback write into memory.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

const (
	// DefaultTTL is applied when a Config leaves TTL unset.
	DefaultTTL = 5 * time.Minute

	// DefaultMaxEntries bounds the memory backend when no limit is configured.
	DefaultMaxEntries = 100

	// DefaultSweepInterval is how often the background sweep runs.
	DefaultSweepInterval = time.Minute

	// KeyPrefix namespaces this cache's records in persistent storage.
	KeyPrefix = "cache_"
)

var (
	// ErrQuotaExceeded is returned by a Storage that has no room for a write.
	ErrQuotaExceeded = errors.New("storage quota exceeded")
)

// Backend selects where an entry lives.
type Backend string

const (
	// Memory is the transient in-process backend.
	Memory Backend = "memory"
	// Local is the long-lived persistent backend (file system by default).
	Local Backend = "local"
	// Session is the second persistent backend (SQLite or Postgres).
	Session Backend = "session"
)

// Backends lists every backend in sweep and clear order.
var Backends = []Backend{Memory, Local, Session}

// ParseBackend maps a name to a Backend. The empty string selects Memory.
func ParseBackend(s string) (Backend, bool) {
	switch Backend(s) {
	case "", Memory:
		return Memory, true
	case Local:
		return Local, true
	case Session:
		return Session, true
	}
	return "", false
}

// Entry is a cached payload with its validity window.
type Entry struct {
	Data     json.RawMessage `json:"data"`
	StoredAt time.Time       `json:"stored_at"`
	TTL      time.Duration   `json:"ttl"`

	// fallbackFor is set on memory entries written because a persistent
	// backend refused the write.
	fallbackFor Backend
}

// Expired reports whether the entry is dead at now.
func (e *Entry) Expired(now time.Time) bool {
	return now.Sub(e.StoredAt) > e.TTL
}

// Config is the per-call cache configuration.
type Config struct {
	TTL        time.Duration
	Backend    Backend
	MaxEntries int
}

// Storage is a persistent key/value store. Implementations must be safe for
// concurrent use.
type Storage interface {
	// GetItem returns the value and true, or false when the key is absent.
	GetItem(ctx context.Context, key string) ([]byte, bool, error)

	// SetItem stores value under key, replacing any previous value.
	SetItem(ctx context.Context, key string, value []byte) error

	// RemoveItem deletes key. Removing an absent key is not an error.
	RemoveItem(ctx context.Context, key string) error

	// Keys lists every key currently held, including ones this cache did not write.
	Keys(ctx context.Context) ([]string, error)
}

// Stats is a diagnostic snapshot of the cache.
type Stats struct {
	Memory  MemoryStats  `json:"memory"`
	Local   StorageStats `json:"local"`
	Session StorageStats `json:"session"`
	Hits    int64        `json:"hits"`
	Misses  int64        `json:"misses"`
}

// MemoryStats describes the memory backend.
type MemoryStats struct {
	Size    int `json:"size"`
	MaxSize int `json:"max_size"`
}

// StorageStats describes a persistent backend.
type StorageStats struct {
	Size int `json:"size"`
}
