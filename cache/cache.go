package cache

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Cache dispatches operations to its three backends. It is safe for
// concurrent use.
type Cache struct {
	memory *memoryStore
	stores map[Backend]store

	defaultTTL    time.Duration
	maxEntries    int
	sweepInterval time.Duration
	now           func() time.Time
	log           zerolog.Logger

	hits   atomic.Int64
	misses atomic.Int64

	mu        sync.Mutex
	scheduler *cron.Cron
}

// Option configures a Cache.
type Option func(*settings)

type settings struct {
	local         Storage
	session       Storage
	maxEntries    int
	defaultTTL    time.Duration
	sweepInterval time.Duration
	now           func() time.Time
	log           zerolog.Logger
}

// WithLocal sets the storage behind the Local backend.
func WithLocal(s Storage) Option {
	return func(o *settings) { o.local = s }
}

// WithSession sets the storage behind the Session backend.
func WithSession(s Storage) Option {
	return func(o *settings) { o.session = s }
}

// WithMaxEntries sets the default capacity of the memory backend.
func WithMaxEntries(n int) Option {
	return func(o *settings) {
		if n > 0 {
			o.maxEntries = n
		}
	}
}

// WithDefaultTTL sets the TTL used when a Config leaves it unset.
func WithDefaultTTL(d time.Duration) Option {
	return func(o *settings) {
		if d > 0 {
			o.defaultTTL = d
		}
	}
}

// MinSweepInterval is the shortest period the sweep scheduler supports.
const MinSweepInterval = time.Second

// WithSweepInterval sets the period of the background sweep. Periods shorter
// than MinSweepInterval are raised to it.
func WithSweepInterval(d time.Duration) Option {
	return func(o *settings) {
		if d > 0 {
			o.sweepInterval = max(d, MinSweepInterval)
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *settings) { o.now = now }
}

// WithLogger sets the logger used for storage failures and sweeps.
func WithLogger(l zerolog.Logger) Option {
	return func(o *settings) { o.log = l }
}

// New creates a Cache. Backends without a configured Storage keep their
// entries in process. The background sweep does not run until Start.
func New(opts ...Option) *Cache {
	o := settings{
		maxEntries:    DefaultMaxEntries,
		defaultTTL:    DefaultTTL,
		sweepInterval: DefaultSweepInterval,
		now:           time.Now,
		log:           zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.local == nil {
		o.local = NewMapStorage()
	}
	if o.session == nil {
		o.session = NewMapStorage()
	}

	c := &Cache{
		memory:        newMemoryStore(o.maxEntries),
		defaultTTL:    o.defaultTTL,
		maxEntries:    o.maxEntries,
		sweepInterval: o.sweepInterval,
		now:           o.now,
		log:           o.log.With().Str("component", "cache").Logger(),
	}
	c.stores = map[Backend]store{
		Memory:  c.memory,
		Local:   &persistentStore{backend: Local, storage: o.local, log: c.log},
		Session: &persistentStore{backend: Session, storage: o.session, log: c.log},
	}
	return c
}

// withDefaults fills unset fields of cfg.
func (c *Cache) withDefaults(cfg Config) Config {
	if cfg.TTL <= 0 {
		cfg.TTL = c.defaultTTL
	}
	if b, ok := ParseBackend(string(cfg.Backend)); ok {
		cfg.Backend = b
	} else {
		c.log.Warn().Str("backend", string(cfg.Backend)).Msg("unknown cache backend, using memory")
		cfg.Backend = Memory
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = c.maxEntries
	}
	return cfg
}

func (c *Cache) store(b Backend) (store, bool) {
	b, ok := ParseBackend(string(b))
	if !ok {
		return nil, false
	}
	return c.stores[b], true
}

// Set stores data under key. It never fails: data that cannot be encoded is
// dropped, and a persistent write that fails lands in memory instead.
func (c *Cache) Set(ctx context.Context, key string, data any, cfg Config) {
	cfg = c.withDefaults(cfg)

	raw, err := json.Marshal(data)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache value not encodable")
		return
	}

	e := &Entry{Data: raw, StoredAt: c.now(), TTL: cfg.TTL}
	if err := c.stores[cfg.Backend].save(ctx, key, e, cfg.MaxEntries); err != nil {
		c.log.Warn().Err(err).Str("key", key).Str("backend", string(cfg.Backend)).
			Msg("cache write failed, falling back to memory")
		e.fallbackFor = cfg.Backend
		_ = c.memory.save(ctx, key, e, cfg.MaxEntries)
		return
	}

	if cfg.Backend != Memory {
		c.memory.removeFallback(key, cfg.Backend)
	}
}

// Get returns the live payload stored under key. Expired entries are deleted
// on the way out.
func (c *Cache) Get(ctx context.Context, key string, b Backend) (json.RawMessage, bool) {
	s, ok := c.store(b)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	b, _ = ParseBackend(string(b))

	e, ok := c.live(ctx, s, key)
	if !ok && b != Memory {
		e, ok = c.fallback(ctx, key, b)
	}
	if !ok {
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	return e.Data, true
}

func (c *Cache) live(ctx context.Context, s store, key string) (*Entry, bool) {
	e, ok := s.load(ctx, key)
	if !ok {
		return nil, false
	}
	if e.Expired(c.now()) {
		s.remove(ctx, key)
		return nil, false
	}
	return e, true
}

// fallback finds an entry written to memory because b refused it.
func (c *Cache) fallback(ctx context.Context, key string, b Backend) (*Entry, bool) {
	e, ok := c.memory.load(ctx, key)
	if !ok || e.fallbackFor != b {
		return nil, false
	}
	if e.Expired(c.now()) {
		c.memory.removeFallback(key, b)
		return nil, false
	}
	return e, true
}

// Lookup is a typed Get. A payload that does not decode into T is a miss.
func Lookup[T any](ctx context.Context, c *Cache, key string, b Backend) (T, bool) {
	var out T
	raw, ok := c.Get(ctx, key, b)
	if !ok {
		return out, false
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		c.log.Debug().Err(err).Str("key", key).Msg("cached value does not match requested type")
		var zero T
		return zero, false
	}
	return out, true
}

// GetOrFetch returns the cached value for key or calls fetch and caches its
// result. Fetch errors are returned and nothing is cached.
func GetOrFetch[T any](ctx context.Context, c *Cache, key string, cfg Config, fetch func(context.Context) (T, error)) (T, error) {
	cfg = c.withDefaults(cfg)
	if v, ok := Lookup[T](ctx, c, key, cfg.Backend); ok {
		return v, nil
	}
	v, err := fetch(ctx)
	if err != nil {
		return v, err
	}
	c.Set(ctx, key, v, cfg)
	return v, nil
}

// Delete removes key from b. Deleting an absent key is a no-op.
func (c *Cache) Delete(ctx context.Context, key string, b Backend) {
	s, ok := c.store(b)
	if !ok {
		return
	}
	s.remove(ctx, key)
	if b, _ := ParseBackend(string(b)); b != Memory {
		c.memory.removeFallback(key, b)
	}
}

// Has reports whether a live entry exists. Like Get, it deletes expired entries.
func (c *Cache) Has(ctx context.Context, key string, b Backend) bool {
	_, ok := c.Get(ctx, key, b)
	return ok
}

// Clear empties the given backends, or all of them when none is given.
// Persistent backends lose only keys carrying KeyPrefix.
func (c *Cache) Clear(ctx context.Context, backends ...Backend) {
	if len(backends) == 0 {
		backends = Backends
	}
	for _, b := range backends {
		s, ok := c.store(b)
		if !ok {
			continue
		}
		s.clear(ctx)
		if b, _ := ParseBackend(string(b)); b != Memory {
			c.memory.clearFallbacks(b)
		}
	}
}

// Stats returns a snapshot of backend sizes and hit counters.
func (c *Cache) Stats(ctx context.Context) Stats {
	return Stats{
		Memory: MemoryStats{
			Size:    c.memory.size(ctx),
			MaxSize: c.maxEntries,
		},
		Local:   StorageStats{Size: c.stores[Local].size(ctx)},
		Session: StorageStats{Size: c.stores[Session].size(ctx)},
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}
}
