package routes

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/briangreenhill/fetchkit/cache"
	"github.com/briangreenhill/fetchkit/contacts"
	"github.com/briangreenhill/fetchkit/fetcher"
	appmw "github.com/briangreenhill/fetchkit/internal/http/middleware"
	"github.com/briangreenhill/fetchkit/internal/providers"
)

type Server struct {
	Router *chi.Mux
	P      *providers.Set
	Log    zerolog.Logger
}

type ServerOptions struct {
	Providers  *providers.Set
	Log        zerolog.Logger
	AdminToken string
}

func New(opts ServerOptions) *Server {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(hlog.NewHandler(opts.Log))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, d time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", d).
			Msg("request")
	}))
	r.Use(hlog.RequestIDHandler("req_id", "X-Request-ID"))
	r.Use(chimw.Recoverer)

	s := &Server{Router: r, P: opts.Providers, Log: opts.Log}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("ok")); err != nil {
			hlog.FromRequest(r).Error().Err(err).Msg("write health check response")
		}
	})

	r.Route("/cache", func(cr chi.Router) {
		cr.Get("/stats", s.handleCacheStats)
		cr.Group(func(pr chi.Router) {
			pr.Use(appmw.RequireToken(opts.AdminToken))
			pr.Delete("/", s.handleCacheClear)
			pr.Delete("/{backend}/{key}", s.handleCacheDelete)
			pr.Post("/sweep", s.handleCacheSweep)
		})
	})

	r.Get("/weather", s.handleWeather)
	r.Get("/contacts", s.handleContacts)
	r.Get("/contacts/{id}", s.handleContact)

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, s.P.Cache.Stats(r.Context()))
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("backend")
	if raw == "" {
		s.P.Cache.Clear(r.Context())
		w.WriteHeader(http.StatusNoContent)
		return
	}
	b, ok := parseBackend(raw)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "unknown backend "+strconv.Quote(raw))
		return
	}
	s.P.Cache.Clear(r.Context(), b)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCacheDelete(w http.ResponseWriter, r *http.Request) {
	b, ok := parseBackend(chi.URLParam(r, "backend"))
	if !ok {
		writeError(w, r, http.StatusBadRequest, "unknown backend "+strconv.Quote(chi.URLParam(r, "backend")))
		return
	}
	key, err := keyParam(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "malformed key")
		return
	}
	s.P.Cache.Delete(r.Context(), key, b)
	w.WriteHeader(http.StatusNoContent)
}

// keyParam returns the decoded {key} segment. chi matches on the raw path
// when the request carries escapes such as %2F, leaving the param encoded.
func keyParam(r *http.Request) (string, error) {
	key := chi.URLParam(r, "key")
	if r.URL.RawPath == "" {
		return key, nil
	}
	return url.PathUnescape(key)
}

func (s *Server) handleCacheSweep(w http.ResponseWriter, r *http.Request) {
	n := s.P.Cache.Sweep(r.Context())
	hlog.FromRequest(r).Info().Int("removed", n).Msg("manual cache sweep")
	writeJSON(w, r, http.StatusOK, map[string]int{"removed": n})
}

func (s *Server) handleWeather(w http.ResponseWriter, r *http.Request) {
	if s.P.Weather == nil {
		writeError(w, r, http.StatusServiceUnavailable, "weather is not configured")
		return
	}
	report, err := s.P.Weather.Current(r.Context(), r.URL.Query().Get("city"))
	if err != nil {
		writeUpstreamError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, report)
}

func (s *Server) handleContacts(w http.ResponseWriter, r *http.Request) {
	if s.P.Contacts == nil {
		writeError(w, r, http.StatusServiceUnavailable, "contacts are not configured")
		return
	}
	q, err := contactsQuery(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	page, err := s.P.Contacts.List(r.Context(), q)
	if err != nil {
		writeUpstreamError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, page)
}

func (s *Server) handleContact(w http.ResponseWriter, r *http.Request) {
	if s.P.Contacts == nil {
		writeError(w, r, http.StatusServiceUnavailable, "contacts are not configured")
		return
	}
	c, err := s.P.Contacts.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, contacts.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "contact not found")
		return
	}
	if err != nil {
		writeUpstreamError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, c)
}

// contactsQuery reads page, limit, sort, order and name from the query string.
func contactsQuery(r *http.Request) (contacts.Query, error) {
	var q contacts.Query
	v := r.URL.Query()

	if v.Has("page") || v.Has("limit") {
		p := contacts.Pagination{Page: 1, Limit: 10}
		if raw := v.Get("page"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				return q, errors.New("page must be a positive integer")
			}
			p.Page = n
		}
		if raw := v.Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				return q, errors.New("limit must be a positive integer")
			}
			p.Limit = n
		}
		q.Pagination = &p
	}

	if field := v.Get("sort"); field != "" {
		order := contacts.Asc
		if v.Get("order") == string(contacts.Desc) {
			order = contacts.Desc
		}
		q.Sort = &contacts.Sort{Field: contacts.SortField(field), Order: order}
	}

	if name := v.Get("name"); name != "" {
		q.Filter = &contacts.Filter{Name: &name}
	}
	return q, nil
}

func parseBackend(raw string) (cache.Backend, bool) {
	if raw == "" {
		return "", false
	}
	return cache.ParseBackend(raw)
}

type errorBody struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("encode response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, errorBody{Name: "Error", Message: msg})
}

// writeUpstreamError reports a failed upstream call as 502, or 504 when it
// was aborted.
func writeUpstreamError(w http.ResponseWriter, r *http.Request, err error) {
	hlog.FromRequest(r).Warn().Err(err).Msg("upstream call failed")

	var apiErr *fetcher.APIError
	if !errors.As(err, &apiErr) {
		writeError(w, r, http.StatusBadGateway, err.Error())
		return
	}
	status := http.StatusBadGateway
	if apiErr.Code == fetcher.CodeAbort {
		status = http.StatusGatewayTimeout
	}
	writeJSON(w, r, status, errorBody{Name: apiErr.Name(), Message: apiErr.Message, Code: apiErr.Code})
}
