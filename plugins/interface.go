// Package plugins defines the common interface for data sources exposed by the CLI and API
package plugins

import (
	"context"
	"sort"
	"sync"
)

// Source is a named, cached data source that renders its results as text
type Source interface {
	// Name returns the name of the source (e.g., "weather", "contacts")
	Name() string

	// GetLatest retrieves and renders the default view of the source
	GetLatest(ctx context.Context) (string, error)

	// Get retrieves and renders a single item by ID
	Get(ctx context.Context, id string) (string, error)
}

// Registry manages available sources
type Registry struct {
	mu      sync.RWMutex
	sources map[string]Source
}

// NewRegistry creates a new source registry
func NewRegistry() *Registry {
	return &Registry{
		sources: make(map[string]Source),
	}
}

// Register adds a source, replacing any source with the same name
func (r *Registry) Register(s Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[s.Name()] = s
}

// Source retrieves a source by name
func (r *Registry) Source(name string) (Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, exists := r.sources[name]
	return s, exists
}

// List returns all registered source names in sorted order
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
