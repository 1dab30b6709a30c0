package weather

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briangreenhill/fetchkit/cache"
	"github.com/briangreenhill/fetchkit/fetcher"
)

const sample = `{
	"name": "Paris",
	"main": {"temp": 18.4, "humidity": 60},
	"weather": [{"id": 800, "description": "clear sky", "icon": "01d"}]
}`

func newUpstream(t *testing.T, calls *atomic.Int32, query *string) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	r.Get("/weather", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if query != nil {
			*query = r.URL.RawQuery
		}
		if r.URL.Query().Get("q") == "Nowhere" {
			http.Error(w, `{"cod":"404","message":"city not found"}`, http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sample))
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestNewRequiresKey(t *testing.T) {
	_, err := New("")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestCurrentProjectsResponse(t *testing.T) {
	var calls atomic.Int32
	var query string
	srv := newUpstream(t, &calls, &query)

	c, err := New("secret", WithBaseURL(srv.URL+"/weather"))
	require.NoError(t, err)

	got, err := c.Current(context.Background(), "Paris")
	require.NoError(t, err)
	assert.Equal(t, &Report{
		Temp:        18.4,
		Description: "clear sky",
		City:        "Paris",
		Icon:        "https://openweathermap.org/img/wn/01d.png",
	}, got)
	assert.Equal(t, "appid=secret&q=Paris&units=metric", query)
}

func TestCurrentDefaultsCity(t *testing.T) {
	var calls atomic.Int32
	var query string
	srv := newUpstream(t, &calls, &query)

	c, err := New("k", WithBaseURL(srv.URL+"/weather"), WithUnits("imperial"))
	require.NoError(t, err)

	_, err = c.Current(context.Background(), "")
	require.NoError(t, err)
	assert.Contains(t, query, "q="+DefaultCity)
	assert.Contains(t, query, "units=imperial")
}

func TestCurrentIsCachedInSession(t *testing.T) {
	var calls atomic.Int32
	srv := newUpstream(t, &calls, nil)

	store := cache.New()
	c, err := New("k", WithBaseURL(srv.URL+"/weather"), WithCache(store))
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := c.Current(ctx, "Paris")
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, calls.Load())
	assert.Equal(t, 1, store.Stats(ctx).Session.Size)

	c.Invalidate(ctx, "Paris")
	_, err = c.Current(ctx, "Paris")
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())
}

func TestCurrentHTTPError(t *testing.T) {
	var calls atomic.Int32
	srv := newUpstream(t, &calls, nil)

	c, err := New("k", WithBaseURL(srv.URL+"/weather"), WithRetry(2, time.Millisecond))
	require.NoError(t, err)

	_, err = c.Current(context.Background(), "Nowhere")
	require.Error(t, err)

	var apiErr *fetcher.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "404", apiErr.Code)
	assert.EqualValues(t, 1, calls.Load(), "client errors are not retried")
}

func TestProject(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"valid", sample, false},
		{"not json", "<html>", true},
		{"missing main", `{"weather":[{"description":"x"}]}`, true},
		{"empty weather", `{"main":{"temp":1},"weather":[]}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := project([]byte(tt.raw))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPluginFormats(t *testing.T) {
	var calls atomic.Int32
	srv := newUpstream(t, &calls, nil)

	c, err := New("k", WithBaseURL(srv.URL+"/weather"))
	require.NoError(t, err)
	p := NewPlugin(c)

	assert.Equal(t, "weather", p.Name())
	out, err := p.Get(context.Background(), "Paris")
	require.NoError(t, err)
	assert.Contains(t, out, "## Weather: Paris")
	assert.Contains(t, out, "clear sky")

	_, err = p.GetLatest(context.Background())
	require.NoError(t, err)
}
