package cache

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// persistentStore adapts a Storage to the store dispatch interface. It owns
// only keys carrying KeyPrefix and never returns storage errors.
type persistentStore struct {
	backend Backend
	storage Storage
	log     zerolog.Logger
}

func (p *persistentStore) load(ctx context.Context, key string) (*Entry, bool) {
	raw, ok, err := p.storage.GetItem(ctx, KeyPrefix+key)
	if err != nil {
		p.log.Warn().Err(err).Str("key", key).Msg("cache read failed")
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		p.log.Warn().Err(err).Str("key", key).Msg("dropping corrupt cache record")
		p.remove(ctx, key)
		return nil, false
	}
	return &e, true
}

func (p *persistentStore) save(ctx context.Context, key string, e *Entry, _ int) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return p.storage.SetItem(ctx, KeyPrefix+key, raw)
}

func (p *persistentStore) remove(ctx context.Context, key string) {
	if err := p.storage.RemoveItem(ctx, KeyPrefix+key); err != nil {
		p.log.Warn().Err(err).Str("key", key).Msg("cache delete failed")
	}
}

func (p *persistentStore) ownedKeys(ctx context.Context) []string {
	keys, err := p.storage.Keys(ctx)
	if err != nil {
		p.log.Warn().Err(err).Msg("cache key listing failed")
		return nil
	}
	owned := keys[:0]
	for _, k := range keys {
		if strings.HasPrefix(k, KeyPrefix) {
			owned = append(owned, k)
		}
	}
	return owned
}

func (p *persistentStore) clear(ctx context.Context) {
	for _, k := range p.ownedKeys(ctx) {
		if err := p.storage.RemoveItem(ctx, k); err != nil {
			p.log.Warn().Err(err).Str("key", k).Msg("cache clear failed")
		}
	}
}

func (p *persistentStore) size(ctx context.Context) int {
	return len(p.ownedKeys(ctx))
}

// sweep deletes expired and unparseable records.
func (p *persistentStore) sweep(ctx context.Context, now time.Time) int {
	removed := 0
	for _, k := range p.ownedKeys(ctx) {
		raw, ok, err := p.storage.GetItem(ctx, k)
		if err != nil || !ok {
			continue
		}
		var e Entry
		if err := json.Unmarshal(raw, &e); err == nil && !e.Expired(now) {
			continue
		}
		if err := p.storage.RemoveItem(ctx, k); err != nil {
			p.log.Warn().Err(err).Str("key", k).Msg("cache sweep delete failed")
			continue
		}
		removed++
	}
	return removed
}

// MapStorage is an in-process Storage. A positive Limit caps the number of
// items it accepts.
type MapStorage struct {
	Limit int

	mu    sync.RWMutex
	items map[string][]byte
}

// NewMapStorage creates an empty MapStorage.
func NewMapStorage() *MapStorage {
	return &MapStorage{items: make(map[string][]byte)}
}

func (s *MapStorage) GetItem(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (s *MapStorage) SetItem(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.items == nil {
		s.items = make(map[string][]byte)
	}
	if _, exists := s.items[key]; !exists && s.Limit > 0 && len(s.items) >= s.Limit {
		return ErrQuotaExceeded
	}
	s.items[key] = append([]byte(nil), value...)
	return nil
}

func (s *MapStorage) RemoveItem(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}

func (s *MapStorage) Keys(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.items))
	for k := range s.items {
		keys = append(keys, k)
	}
	return keys, nil
}

var _ Storage = (*MapStorage)(nil)
