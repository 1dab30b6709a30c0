// Package providers builds the cache, API clients and source registry from configuration
package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/briangreenhill/fetchkit/cache"
	"github.com/briangreenhill/fetchkit/contacts"
	"github.com/briangreenhill/fetchkit/internal/config"
	"github.com/briangreenhill/fetchkit/plugins"
	"github.com/briangreenhill/fetchkit/weather"
)

// Set is everything a binary needs to serve requests
type Set struct {
	Cache    *cache.Cache
	Registry *plugins.Registry
	Weather  *weather.Client  // nil when no API key is configured
	Contacts *contacts.Client // nil when no endpoint is configured

	closers []func()
}

// Option adjusts Setup
type Option func(*setupOptions)

type setupOptions struct {
	http *http.Client
	log  zerolog.Logger
}

// WithHTTPClient sets the client used by every API client
func WithHTTPClient(h *http.Client) Option {
	return func(o *setupOptions) { o.http = h }
}

// WithLogger sets the logger passed to every component
func WithLogger(l zerolog.Logger) Option {
	return func(o *setupOptions) { o.log = l }
}

// Setup creates the cache and registers every configured source
func Setup(ctx context.Context, cfg *config.Config, opts ...Option) (*Set, error) {
	o := setupOptions{http: http.DefaultClient, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Set{Registry: plugins.NewRegistry()}

	cacheOpts := []cache.Option{
		cache.WithDefaultTTL(cfg.Cache.DefaultTTL),
		cache.WithMaxEntries(cfg.Cache.MaxEntries),
		cache.WithSweepInterval(cfg.Cache.SweepInterval),
		cache.WithLogger(o.log),
	}

	local, err := cache.NewFileStorage(cfg.Cache.Dir)
	if err != nil {
		return nil, fmt.Errorf("local storage: %w", err)
	}
	cacheOpts = append(cacheOpts, cache.WithLocal(local))

	session, err := s.openSession(ctx, cfg.Cache.SessionDSN)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("session storage: %w", err)
	}
	if session != nil {
		cacheOpts = append(cacheOpts, cache.WithSession(session))
	}

	s.Cache = cache.New(cacheOpts...)

	if cfg.HasWeather() {
		w, err := weather.New(cfg.Weather.APIKey,
			weather.WithBaseURL(cfg.Weather.APIURL),
			weather.WithHTTPClient(o.http),
			weather.WithCache(s.Cache),
			weather.WithRetry(cfg.Fetch.RetryAttempts, cfg.Fetch.RetryDelay),
			weather.WithLogger(o.log),
		)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("weather client: %w", err)
		}
		s.Weather = w
		s.Registry.Register(weather.NewPlugin(w))
	}

	if cfg.HasContacts() {
		s.Contacts = contacts.New(
			contacts.WithEndpoint(cfg.Contacts.Endpoint),
			contacts.WithToken(cfg.Contacts.Token),
			contacts.WithHTTPClient(o.http),
			contacts.WithCache(s.Cache),
			contacts.WithRetry(cfg.Fetch.RetryAttempts, cfg.Fetch.RetryDelay),
			contacts.WithLogger(o.log),
		)
		s.Registry.Register(contacts.NewPlugin(s.Contacts))
	}

	o.log.Debug().Strs("sources", s.Registry.List()).Msg("providers ready")
	return s, nil
}

// openSession picks the Session storage for dsn: nothing for an empty DSN,
// Postgres for postgres:// URLs and a SQLite file otherwise.
func (s *Set) openSession(ctx context.Context, dsn string) (cache.Storage, error) {
	switch {
	case dsn == "":
		return nil, nil
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		pg, err := cache.NewPostgresStorage(ctx, dsn)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, pg.Close)
		return pg, nil
	default:
		lite, err := cache.NewSQLiteStorage(filepath.Clean(dsn))
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func() { _ = lite.Close() })
		return lite, nil
	}
}

// Source returns the registered source called name
func (s *Set) Source(name string) (plugins.Source, error) {
	src, ok := s.Registry.Source(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q (configured: %v)", ErrUnknownSource, name, s.Registry.List())
	}
	return src, nil
}

// ErrUnknownSource is returned by Source for names nothing registered
var ErrUnknownSource = errors.New("source not configured")

// Close stops the background sweep and releases storage handles
func (s *Set) Close() {
	if s.Cache != nil {
		<-s.Cache.Stop().Done()
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
