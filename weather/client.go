// Package weather fetches current conditions from an OpenWeather-compatible API.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/briangreenhill/fetchkit/cache"
	"github.com/briangreenhill/fetchkit/fetcher"
)

const (
	DefaultBaseURL = "https://api.openweathermap.org/data/2.5/weather"
	DefaultCity    = "Bhubaneshwar"
)

// ErrNotConfigured is returned when the client has no API key.
var ErrNotConfigured = errors.New("weather: API key required")

type Client struct {
	baseURL string
	apiKey  string
	units   string

	fetcher *fetcher.Fetcher[json.RawMessage]
	cached  bool
}

type options struct {
	baseURL string
	units   string
	http    *http.Client
	cache   *cache.Scoped
	retry   int
	delay   time.Duration
	log     zerolog.Logger
}

type Option func(*options)

func WithHTTPClient(h *http.Client) Option {
	return func(o *options) { o.http = h }
}

func WithBaseURL(raw string) Option {
	return func(o *options) {
		if raw != "" {
			o.baseURL = raw
		}
	}
}

// WithUnits selects metric (default), imperial or standard units.
func WithUnits(units string) Option {
	return func(o *options) {
		if units != "" {
			o.units = units
		}
	}
}

// WithCache caches responses through the Weather preset of c.
func WithCache(c *cache.Cache) Option {
	return func(o *options) {
		if c != nil {
			o.cache = cache.Weather(c)
		}
	}
}

// WithRetry retries failed transient requests up to attempts times, waiting
// delay, 2*delay, ... between tries.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(o *options) {
		o.retry = attempts
		o.delay = delay
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.log = l }
}

func New(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, ErrNotConfigured
	}
	o := options{
		baseURL: DefaultBaseURL,
		units:   "metric",
		http:    http.DefaultClient,
		delay:   fetcher.DefaultRetryDelay,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	fopts := []fetcher.Option{
		fetcher.WithHTTPClient(o.http),
		fetcher.WithDefaultHeaders(map[string]string{"Accept": "application/json"}),
		fetcher.WithRetry(o.retry, o.delay),
		fetcher.WithRetryPolicy(fetcher.RetryTransient),
		fetcher.WithLogger(o.log.With().Str("client", "weather").Logger()),
	}
	if o.cache != nil {
		fopts = append(fopts, fetcher.WithScopedCache(o.cache))
	}

	return &Client{
		baseURL: o.baseURL,
		apiKey:  apiKey,
		units:   o.units,
		fetcher: fetcher.New[json.RawMessage](fopts...),
		cached:  o.cache != nil,
	}, nil
}

// Current returns the conditions for city, or DefaultCity when empty.
func (c *Client) Current(ctx context.Context, city string) (*Report, error) {
	if city == "" {
		city = DefaultCity
	}
	params := map[string]string{
		"q":     city,
		"units": c.units,
		"appid": c.apiKey,
	}

	var opts []fetcher.CallOption
	if c.cached {
		opts = append(opts, fetcher.CacheKey(cache.CreateKey("weather", city, c.units)))
	}

	raw, err := c.fetcher.Get(ctx, c.baseURL, params, nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("weather for %q: %w", city, err)
	}
	return project(raw)
}

// Invalidate drops the cached conditions for city.
func (c *Client) Invalidate(ctx context.Context, city string) {
	if city == "" {
		city = DefaultCity
	}
	c.fetcher.InvalidateCache(ctx, cache.CreateKey("weather", city, c.units))
}

// project extracts the report fields from a raw OpenWeather document.
func project(raw []byte) (*Report, error) {
	if !gjson.ValidBytes(raw) {
		return nil, errors.New("weather: response is not JSON")
	}
	doc := gjson.ParseBytes(raw)

	temp := doc.Get("main.temp")
	cond := doc.Get("weather.0")
	if !temp.Exists() || !cond.Exists() {
		return nil, errors.New("weather: response is missing main.temp or weather[0]")
	}

	return &Report{
		Temp:        temp.Float(),
		Description: cond.Get("description").String(),
		City:        doc.Get("name").String(),
		Icon:        IconURL(cond.Get("icon").String()),
	}, nil
}
