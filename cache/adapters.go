package cache

import (
	"context"
	"encoding/json"
	"time"
)

// Preset TTLs for the scoped views used by the bundled clients.
const (
	ContactsTTL = 5 * time.Minute
	WeatherTTL  = 10 * time.Minute
	APITTL      = 2 * time.Minute
)

// Scoped binds a Cache to one backend and TTL.
type Scoped struct {
	cache  *Cache
	config Config
}

// NewScoped creates a view of c that reads and writes with cfg.
func NewScoped(c *Cache, cfg Config) *Scoped {
	return &Scoped{cache: c, config: c.withDefaults(cfg)}
}

// Contacts keeps entries in the Local backend for ContactsTTL.
func Contacts(c *Cache) *Scoped {
	return NewScoped(c, Config{TTL: ContactsTTL, Backend: Local})
}

// Weather keeps entries in the Session backend for WeatherTTL.
func Weather(c *Cache) *Scoped {
	return NewScoped(c, Config{TTL: WeatherTTL, Backend: Session})
}

// API keeps entries in memory for APITTL.
func API(c *Cache) *Scoped {
	return NewScoped(c, Config{TTL: APITTL, Backend: Memory})
}

// Cache returns the underlying cache.
func (s *Scoped) Cache() *Cache {
	return s.cache
}

// Config returns the bound configuration.
func (s *Scoped) Config() Config {
	return s.config
}

// Set stores data with the bound configuration.
func (s *Scoped) Set(ctx context.Context, key string, data any) {
	s.cache.Set(ctx, key, data, s.config)
}

// SetTTL stores data with an explicit TTL.
func (s *Scoped) SetTTL(ctx context.Context, key string, data any, ttl time.Duration) {
	cfg := s.config
	if ttl > 0 {
		cfg.TTL = ttl
	}
	s.cache.Set(ctx, key, data, cfg)
}

// Get reads key from the bound backend.
func (s *Scoped) Get(ctx context.Context, key string) (json.RawMessage, bool) {
	return s.cache.Get(ctx, key, s.config.Backend)
}

// Delete removes key from the bound backend.
func (s *Scoped) Delete(ctx context.Context, key string) {
	s.cache.Delete(ctx, key, s.config.Backend)
}

// Clear empties the bound backend.
func (s *Scoped) Clear(ctx context.Context) {
	s.cache.Clear(ctx, s.config.Backend)
}
