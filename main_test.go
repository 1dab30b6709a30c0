package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briangreenhill/fetchkit/cache"
)

// setupEnv points the CLI at a private cache directory
func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("FETCHKIT_CACHE_DIR", filepath.Join(dir, "local"))
	for _, key := range []string{"FETCHKIT_CONFIG", "FETCHKIT_SESSION_DSN", "WEATHER_API_KEY", "WEATHER_API_URL", "CONTACTS_GRAPHQL_URL", "FETCHKIT_RETRY_ATTEMPTS"} {
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	err := run(context.Background(), args, &out, &errOut)
	return out.String(), err
}

type upstream struct {
	*httptest.Server
	calls atomic.Int32
}

func newUpstream(t *testing.T) *upstream {
	t.Helper()
	u := &upstream{}
	r := chi.NewRouter()
	r.Get("/items", func(w http.ResponseWriter, r *http.Request) {
		u.calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"q": r.URL.Query().Get("q"), "n": u.calls.Load()})
	})
	r.Get("/text", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("plain body"))
	})
	r.Get("/weather", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"Rome","main":{"temp":25},"weather":[{"description":"sunny","icon":"01d"}]}`))
	})
	r.Post("/graphql", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Query string `json:"query"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		ada := map[string]any{"id": "7", "name": "Ada", "email": "ada@example.com", "subject": "Hi"}
		switch {
		case strings.Contains(req.Query, "contacts("):
			_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"contacts": map[string]any{
				"contacts": []any{ada}, "total": 1, "page": 1, "limit": 10, "totalPages": 1,
			}}})
		case strings.Contains(req.Query, "contact("):
			_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"contact": ada}})
		default:
			_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"hello": "world"}})
		}
	})
	u.Server = httptest.NewServer(r)
	t.Cleanup(u.Close)
	return u
}

func TestVersion(t *testing.T) {
	setupEnv(t)
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "fetchkit dev\n", out)
}

func TestGet(t *testing.T) {
	setupEnv(t)
	u := newUpstream(t)

	out, err := execute(t, "get", u.URL+"/items", "-p", "q=go")
	require.NoError(t, err)
	assert.JSONEq(t, `{"q":"go","n":1}`, out)

	out, err = execute(t, "get", u.URL+"/text")
	require.NoError(t, err)
	assert.Equal(t, "plain body\n", out)
}

func TestGetBadParam(t *testing.T) {
	setupEnv(t)
	_, err := execute(t, "get", "http://example.invalid", "-p", "novalue")
	assert.Error(t, err)
}

func TestGetCachePersistsAcrossRuns(t *testing.T) {
	setupEnv(t)
	u := newUpstream(t)

	first, err := execute(t, "get", u.URL+"/items", "--cache")
	require.NoError(t, err)
	second, err := execute(t, "get", u.URL+"/items", "--cache")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, u.calls.Load())

	out, err := execute(t, "cache", "stats", "--json")
	require.NoError(t, err)
	var st cache.Stats
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, 1, st.Local.Size)

	out, err = execute(t, "cache", "clear", "--backend", "local")
	require.NoError(t, err)
	assert.Contains(t, out, "local cache entries cleared")

	_, err = execute(t, "get", u.URL+"/items", "--cache")
	require.NoError(t, err)
	assert.EqualValues(t, 2, u.calls.Load())
}

func TestGetUnknownBackend(t *testing.T) {
	setupEnv(t)
	_, err := execute(t, "get", "http://example.invalid", "--cache", "--backend", "cookies")
	assert.ErrorContains(t, err, "unknown backend")
}

func TestGraphQL(t *testing.T) {
	setupEnv(t)
	u := newUpstream(t)

	out, err := execute(t, "graphql", "--endpoint", u.URL+"/graphql", "-q", "{ hello }", "--variables", `{"a":1}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"hello":"world"}`, out)

	_, err = execute(t, "graphql", "--endpoint", u.URL+"/graphql", "-q", "{ hello }", "--variables", `[`)
	assert.Error(t, err)
}

func TestWeather(t *testing.T) {
	setupEnv(t)
	u := newUpstream(t)

	_, err := execute(t, "weather")
	assert.Error(t, err, "no API key configured")

	t.Setenv("WEATHER_API_KEY", "k")
	t.Setenv("WEATHER_API_URL", u.URL+"/weather")
	out, err := execute(t, "weather", "Rome")
	require.NoError(t, err)
	assert.Contains(t, out, "## Weather: Rome")
	assert.Contains(t, out, "sunny")
}

func TestContacts(t *testing.T) {
	setupEnv(t)
	u := newUpstream(t)
	t.Setenv("CONTACTS_GRAPHQL_URL", u.URL+"/graphql")

	out, err := execute(t, "contacts", "list", "--sort", "name", "--desc", "--limit", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "| 7 | Ada | ada@example.com | Hi |")

	out, err = execute(t, "contacts", "get", "7")
	require.NoError(t, err)
	assert.Contains(t, out, "## Ada")
}

func TestCacheSweepAndClear(t *testing.T) {
	setupEnv(t)

	out, err := execute(t, "cache", "sweep")
	require.NoError(t, err)
	assert.Equal(t, "Removed 0 expired entries.\n", out)

	out, err = execute(t, "cache", "clear")
	require.NoError(t, err)
	assert.Equal(t, "All cache entries cleared.\n", out)

	out, err = execute(t, "cache", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Memory:  0/100")
}

func TestParsePairs(t *testing.T) {
	tests := []struct {
		in      []string
		want    map[string]string
		wantErr bool
	}{
		{nil, nil, false},
		{[]string{"a=1", "b=x=y"}, map[string]string{"a": "1", "b": "x=y"}, false},
		{[]string{"a="}, map[string]string{"a": ""}, false},
		{[]string{"=1"}, nil, true},
		{[]string{"a"}, nil, true},
	}
	for _, tt := range tests {
		got, err := parsePairs(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}
