package fetcher

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"

	"github.com/briangreenhill/fetchkit/cache"
)

const (
	// DefaultGraphQLEndpoint is used when neither the request nor the
	// Fetcher names an endpoint.
	DefaultGraphQLEndpoint = "http://localhost:4001/graphql"

	// DefaultRetryDelay is the base of the exponential backoff.
	DefaultRetryDelay = time.Second
)

type settings struct {
	http            *http.Client
	graphqlEndpoint string
	headers         map[string]string
	retryAttempts   int
	retryDelay      time.Duration
	isRetryable     func(error) bool
	cache           *cache.Cache
	cacheConfig     cache.Config
	boundKey        string
	onError         func(*APIError)
	tokenSource     oauth2.TokenSource
	tracer          trace.Tracer
	log             zerolog.Logger
}

func defaultSettings() settings {
	return settings{
		http:            http.DefaultClient,
		graphqlEndpoint: DefaultGraphQLEndpoint,
		headers:         map[string]string{"Content-Type": "application/json"},
		retryDelay:      DefaultRetryDelay,
		isRetryable:     RetryAll,
		log:             zerolog.Nop(),
	}
}

// Option configures a Fetcher.
type Option func(*settings)

// WithHTTPClient sets the transport.
func WithHTTPClient(h *http.Client) Option {
	return func(s *settings) {
		if h != nil {
			s.http = h
		}
	}
}

// WithGraphQLEndpoint sets the endpoint used by GraphQL requests that do not
// name one.
func WithGraphQLEndpoint(endpoint string) Option {
	return func(s *settings) {
		if endpoint != "" {
			s.graphqlEndpoint = endpoint
		}
	}
}

// WithDefaultHeaders replaces the headers sent with every request.
func WithDefaultHeaders(h map[string]string) Option {
	return func(s *settings) {
		s.headers = make(map[string]string, len(h))
		for k, v := range h {
			s.headers[k] = v
		}
	}
}

// WithRetry retries a failed request up to attempts more times, waiting
// delay*2^i before retry i.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(s *settings) {
		if attempts >= 0 {
			s.retryAttempts = attempts
		}
		if delay >= 0 {
			s.retryDelay = delay
		}
	}
}

// WithRetryPolicy decides which failures are retried. The default is RetryAll.
func WithRetryPolicy(fn func(error) bool) Option {
	return func(s *settings) {
		if fn != nil {
			s.isRetryable = fn
		}
	}
}

// WithCache enables cache-augmented calls against c using cfg.
func WithCache(c *cache.Cache, cfg cache.Config) Option {
	return func(s *settings) { s.cache, s.cacheConfig = c, cfg }
}

// WithScopedCache enables cache-augmented calls against a preset view.
func WithScopedCache(sc *cache.Scoped) Option {
	return func(s *settings) { s.cache, s.cacheConfig = sc.Cache(), sc.Config() }
}

// WithCacheKey binds a key used by InvalidateCache and RefreshFromCache
// when they are called without one.
func WithCacheKey(key string) Option {
	return func(s *settings) { s.boundKey = key }
}

// WithOnError registers a callback for failed calls.
func WithOnError(fn func(*APIError)) Option {
	return func(s *settings) { s.onError = fn }
}

// WithTokenSource authorizes every request with tokens from ts.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(s *settings) { s.tokenSource = ts }
}

// WithTracer sets the tracer used for request spans.
func WithTracer(t trace.Tracer) Option {
	return func(s *settings) { s.tracer = t }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *settings) { s.log = l }
}

// CallOption adjusts a single call.
type CallOption func(*callSettings)

type callSettings struct {
	useCache bool
	key      string
}

// UseCache consults the cache before the network and stores the result
// after a successful call.
func UseCache() CallOption {
	return func(c *callSettings) { c.useCache = true }
}

// CacheKey is UseCache under an explicit key instead of the derived one.
func CacheKey(key string) CallOption {
	return func(c *callSettings) {
		c.useCache = true
		c.key = key
	}
}
