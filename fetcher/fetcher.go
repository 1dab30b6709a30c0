// Package fetcher executes REST and GraphQL requests with retry and an
// optional cache sandwich, exposing the outcome as an observable
// {Data, Loading, Error} state.
package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/briangreenhill/fetchkit/cache"
)

const tracerName = "github.com/briangreenhill/fetchkit/fetcher"

// Fetcher is one request session. Calls may overlap; only the most recently
// started call publishes its outcome to State.
type Fetcher[T any] struct {
	cfg       settings
	onSuccess func(T)
	sf        singleflight.Group

	mu      sync.Mutex
	state   State[T]
	seq     uint64
	lastKey string
	flights map[string]*flight
}

// flight is the context of a shared request. It is cancelled once every
// caller waiting on it has returned.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// New creates a Fetcher decoding responses into T.
func New[T any](opts ...Option) *Fetcher[T] {
	cfg := defaultSettings()
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.tokenSource != nil {
		client := *cfg.http
		client.Transport = &oauth2.Transport{Source: cfg.tokenSource, Base: cfg.http.Transport}
		cfg.http = &client
	}
	if cfg.tracer == nil {
		cfg.tracer = otel.Tracer(tracerName)
	}
	cfg.log = cfg.log.With().Str("component", "fetcher").Logger()

	return &Fetcher[T]{cfg: cfg}
}

// OnSuccess registers a callback for successful calls, replacing any earlier
// one. It returns f.
func (f *Fetcher[T]) OnSuccess(fn func(T)) *Fetcher[T] {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onSuccess = fn
	return f
}

// State returns a snapshot of the observable state.
func (f *Fetcher[T]) State() State[T] {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Reset returns to the idle state. Calls still in flight will not publish.
func (f *Fetcher[T]) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	f.state = State[T]{}
}

// Execute runs req. With UseCache or CacheKey a live cache entry is
// returned without touching the network or passing through Loading; a
// network result is cached on success only. The returned error, when
// non-nil, is the *APIError also published to State.
func (f *Fetcher[T]) Execute(ctx context.Context, req Request, opts ...CallOption) (T, error) {
	var zero T
	var call callSettings
	for _, opt := range opts {
		opt(&call)
	}

	p, err := f.cfg.prepare(req)
	if err != nil {
		apiErr := asAPIError(err)
		f.fail(f.begin(), apiErr)
		return zero, apiErr
	}

	key := ""
	if call.useCache && f.cfg.cache != nil {
		key = call.key
		if key == "" {
			key = p.key
		}
		f.remember(key)

		if v, ok := cache.Lookup[T](ctx, f.cfg.cache, key, f.cfg.cacheConfig.Backend); ok {
			f.cfg.log.Debug().Str("key", key).Msg("served from cache")
			f.succeed(f.next(), v)
			return v, nil
		}
	}

	id := f.begin()

	var v T
	if key != "" {
		v, err = f.shared(ctx, key, p)
	} else {
		v, err = f.run(ctx, p)
	}

	if err != nil {
		apiErr := asAPIError(err)
		f.fail(id, apiErr)
		return zero, apiErr
	}

	if key != "" {
		f.cfg.cache.Set(ctx, key, v, f.cfg.cacheConfig)
	}
	f.succeed(id, v)
	return v, nil
}

// REST executes a REST request.
func (f *Fetcher[T]) REST(ctx context.Context, req RESTRequest, opts ...CallOption) (T, error) {
	return f.Execute(ctx, req, opts...)
}

// GraphQL executes a GraphQL operation.
func (f *Fetcher[T]) GraphQL(ctx context.Context, req GraphQLRequest, opts ...CallOption) (T, error) {
	return f.Execute(ctx, req, opts...)
}

// Get issues a GET with query params.
func (f *Fetcher[T]) Get(ctx context.Context, url string, params, headers map[string]string, opts ...CallOption) (T, error) {
	return f.REST(ctx, RESTRequest{URL: url, Method: http.MethodGet, Params: params, Headers: headers}, opts...)
}

// Post issues a POST.
func (f *Fetcher[T]) Post(ctx context.Context, url string, body any, headers map[string]string, opts ...CallOption) (T, error) {
	return f.REST(ctx, RESTRequest{URL: url, Method: http.MethodPost, Body: body, Headers: headers}, opts...)
}

// Put issues a PUT.
func (f *Fetcher[T]) Put(ctx context.Context, url string, body any, headers map[string]string, opts ...CallOption) (T, error) {
	return f.REST(ctx, RESTRequest{URL: url, Method: http.MethodPut, Body: body, Headers: headers}, opts...)
}

// Patch issues a PATCH.
func (f *Fetcher[T]) Patch(ctx context.Context, url string, body any, headers map[string]string, opts ...CallOption) (T, error) {
	return f.REST(ctx, RESTRequest{URL: url, Method: http.MethodPatch, Body: body, Headers: headers}, opts...)
}

// Delete issues a DELETE.
func (f *Fetcher[T]) Delete(ctx context.Context, url string, headers map[string]string, opts ...CallOption) (T, error) {
	return f.REST(ctx, RESTRequest{URL: url, Method: http.MethodDelete, Headers: headers}, opts...)
}

// InvalidateCache deletes key, or the bound key when none is given.
func (f *Fetcher[T]) InvalidateCache(ctx context.Context, key ...string) {
	k := f.resolveKey(key)
	if k == "" || f.cfg.cache == nil {
		return
	}
	f.cfg.cache.Delete(ctx, k, f.cfg.cacheConfig.Backend)
}

// ClearAllCache empties the backend this Fetcher caches into.
func (f *Fetcher[T]) ClearAllCache(ctx context.Context) {
	if f.cfg.cache == nil {
		return
	}
	f.cfg.cache.Clear(ctx, f.cfg.cacheConfig.Backend)
}

// CacheStats proxies the cache's diagnostic snapshot.
func (f *Fetcher[T]) CacheStats(ctx context.Context) cache.Stats {
	if f.cfg.cache == nil {
		return cache.Stats{}
	}
	return f.cfg.cache.Stats(ctx)
}

// RefreshFromCache copies the cached value for key (or the bound key) into
// State.Data without a network call. It reports whether a value was found.
func (f *Fetcher[T]) RefreshFromCache(ctx context.Context, key ...string) bool {
	k := f.resolveKey(key)
	if k == "" || f.cfg.cache == nil {
		return false
	}
	v, ok := cache.Lookup[T](ctx, f.cfg.cache, k, f.cfg.cacheConfig.Backend)
	if !ok {
		return false
	}

	f.mu.Lock()
	f.state.Data = &v
	f.mu.Unlock()
	return true
}

func (f *Fetcher[T]) resolveKey(key []string) string {
	if len(key) > 0 && key[0] != "" {
		return key[0]
	}
	if f.cfg.boundKey != "" {
		return f.cfg.boundKey
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastKey
}

func (f *Fetcher[T]) remember(key string) {
	f.mu.Lock()
	f.lastKey = key
	f.mu.Unlock()
}

// next claims a call id without changing state.
func (f *Fetcher[T]) next() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	return f.seq
}

// begin claims a call id and enters Loading. Data is kept.
func (f *Fetcher[T]) begin() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	f.state.Loading = true
	f.state.Error = nil
	return f.seq
}

func (f *Fetcher[T]) succeed(id uint64, v T) {
	f.mu.Lock()
	if id == f.seq {
		data := v
		f.state = State[T]{Data: &data}
	}
	onSuccess := f.onSuccess
	f.mu.Unlock()

	if onSuccess != nil {
		onSuccess(v)
	}
}

func (f *Fetcher[T]) fail(id uint64, err *APIError) {
	f.mu.Lock()
	if id == f.seq {
		f.state = State[T]{Error: err}
	}
	f.mu.Unlock()

	if f.cfg.onError != nil {
		f.cfg.onError(err)
	}
}

// shared runs p once for all concurrent callers of key. Each caller waits on
// its own ctx; the request is cancelled only when no caller is left waiting.
func (f *Fetcher[T]) shared(ctx context.Context, key string, p *prepared) (T, error) {
	var zero T
	fl, ch := f.join(ctx, key, p)
	defer f.leave(key, fl)

	select {
	case res := <-ch:
		if res.Shared {
			f.cfg.log.Debug().Str("key", key).Msg("joined in-flight request")
		}
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	case <-ctx.Done():
		return zero, transportError(ctx, ctx.Err())
	}
}

// join registers a waiter on the flight for key and attaches it to the
// request in progress, starting one if there is none.
func (f *Fetcher[T]) join(ctx context.Context, key string, p *prepared) (*flight, <-chan singleflight.Result) {
	f.mu.Lock()
	defer f.mu.Unlock()

	fl, ok := f.flights[key]
	if ok {
		fl.waiters++
	} else {
		if f.flights == nil {
			f.flights = make(map[string]*flight)
		}
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		fl = &flight{ctx: fctx, cancel: cancel, waiters: 1}
		f.flights[key] = fl
	}
	ch := f.sf.DoChan(key, func() (any, error) {
		return f.run(fl.ctx, p)
	})
	return fl, ch
}

func (f *Fetcher[T]) leave(key string, fl *flight) {
	f.mu.Lock()
	defer f.mu.Unlock()

	fl.waiters--
	if fl.waiters > 0 {
		return
	}
	fl.cancel()
	if f.flights[key] == fl {
		delete(f.flights, key)
	}
	f.sf.Forget(key)
}

// run performs p, retrying per the configured policy.
func (f *Fetcher[T]) run(ctx context.Context, p *prepared) (T, error) {
	ctx, span := f.cfg.tracer.Start(ctx, "fetcher."+string(p.kind),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", p.method),
			attribute.String("url.full", p.url),
		),
	)
	defer span.End()

	tries := 0
	op := func() (T, error) {
		tries++
		v, err := f.attempt(ctx, p)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil || !f.cfg.isRetryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}

	v, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(f.backOff()),
		backoff.WithMaxTries(uint(f.cfg.retryAttempts+1)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			f.cfg.log.Warn().Err(err).Str("url", p.url).Int("attempt", tries).
				Dur("wait", wait).Msg("retrying request")
		}),
	)
	span.SetAttributes(attribute.Int("fetcher.attempts", tries))
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Unwrap()
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			err = transportError(ctx, err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		f.cfg.log.Debug().Err(err).Str("url", p.url).Int("attempts", tries).Msg("request failed")
		var zero T
		return zero, asAPIError(err)
	}
	return v, nil
}

// backOff yields delay, 2*delay, 4*delay, ... with no jitter.
func (f *Fetcher[T]) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.cfg.retryDelay
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = time.Duration(math.MaxInt64)
	return b
}

// attempt performs one network round trip.
func (f *Fetcher[T]) attempt(ctx context.Context, p *prepared) (T, error) {
	var zero T

	var body io.Reader
	if p.body != nil {
		body = bytes.NewReader(p.body)
	}
	req, err := http.NewRequestWithContext(ctx, p.method, p.url, body)
	if err != nil {
		return zero, asAPIError(err)
	}
	for k, v := range p.headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := f.cfg.http.Do(req)
	if err != nil {
		return zero, transportError(ctx, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return zero, transportError(ctx, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text := strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)+" ")
		if text == "" || text == resp.Status {
			text = http.StatusText(resp.StatusCode)
		}
		return zero, httpError(resp.StatusCode, text)
	}

	if p.kind == kindGraphQL {
		return decodeGraphQL[T](raw)
	}
	return decodeREST[T](resp.Header.Get("Content-Type"), raw)
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []GraphQLError  `json:"errors"`
}

func decodeGraphQL[T any](raw []byte) (T, error) {
	var out T
	var resp graphQLResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return out, &APIError{Message: "invalid GraphQL response", Details: err, err: err}
	}
	if len(resp.Errors) > 0 {
		return out, graphQLError(resp.Errors)
	}
	if len(resp.Data) == 0 || string(resp.Data) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(resp.Data, &out); err != nil {
		return out, &APIError{Message: "unexpected GraphQL data shape", Details: err, err: err}
	}
	return out, nil
}

func decodeREST[T any](contentType string, raw []byte) (T, error) {
	var out T
	if strings.Contains(contentType, "application/json") {
		if len(bytes.TrimSpace(raw)) == 0 {
			return out, nil
		}
		if err := json.Unmarshal(raw, &out); err != nil {
			return out, &APIError{Message: "invalid JSON response", Details: err, err: err}
		}
		return out, nil
	}

	switch dst := any(&out).(type) {
	case *string:
		*dst = string(raw)
	case *[]byte:
		*dst = raw
	case *any:
		*dst = string(raw)
	default:
		if err := json.Unmarshal(raw, &out); err != nil {
			return out, &APIError{
				Message: "response is not JSON: " + contentType,
				Details: string(raw),
				err:     err,
			}
		}
	}
	return out, nil
}
