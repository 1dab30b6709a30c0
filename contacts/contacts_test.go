package contacts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briangreenhill/fetchkit/cache"
	"github.com/briangreenhill/fetchkit/fetcher"
)

// fakeServer is an in-memory contacts GraphQL service.
type fakeServer struct {
	mu       sync.Mutex
	contacts []Contact
	nextID   int
	reads    atomic.Int32
	auth     string
}

type gqlRequest struct {
	Query     string          `json:"query"`
	Variables json.RawMessage `json:"variables"`
}

func (s *fakeServer) handler(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.auth = r.Header.Get("Authorization")

	var req gqlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var vars struct {
		ID     string  `json:"id"`
		Input  Input   `json:"input"`
		Filter *Filter `json:"filter"`
	}
	_ = json.Unmarshal(req.Variables, &vars)

	var data any
	var gqlErr string
	switch {
	case strings.Contains(req.Query, "addContact"):
		if s.indexByEmail(vars.Input.Email) >= 0 {
			gqlErr = "Email already exists"
			break
		}
		s.nextID++
		c := contactFrom(strconv.Itoa(s.nextID), vars.Input)
		s.contacts = append(s.contacts, c)
		data = map[string]any{"addContact": c}
	case strings.Contains(req.Query, "updateContact"):
		if i := s.indexByEmail(vars.Input.Email); i >= 0 && s.contacts[i].ID != vars.ID {
			gqlErr = "Another contact with this email already exists"
			break
		}
		i := s.indexByID(vars.ID)
		if i < 0 {
			gqlErr = "Contact not found"
			break
		}
		s.contacts[i] = contactFrom(vars.ID, vars.Input)
		data = map[string]any{"updateContact": s.contacts[i]}
	case strings.Contains(req.Query, "deleteContact"):
		i := s.indexByID(vars.ID)
		if i >= 0 {
			s.contacts = append(s.contacts[:i], s.contacts[i+1:]...)
		}
		data = map[string]any{"deleteContact": i >= 0}
	case strings.Contains(req.Query, "contacts("):
		s.reads.Add(1)
		list := []Contact{}
		for _, c := range s.contacts {
			if vars.Filter != nil && vars.Filter.Name != nil && !strings.Contains(c.Name, *vars.Filter.Name) {
				continue
			}
			list = append(list, c)
		}
		data = map[string]any{"contacts": Page{Contacts: list, Total: len(list), Page: 1, Limit: 10, TotalPages: 1}}
	case strings.Contains(req.Query, "contact("):
		s.reads.Add(1)
		var found *Contact
		if i := s.indexByID(vars.ID); i >= 0 {
			found = &s.contacts[i]
		}
		data = map[string]any{"contact": found}
	}

	w.Header().Set("Content-Type", "application/json")
	if gqlErr != "" {
		_ = json.NewEncoder(w).Encode(map[string]any{"data": nil, "errors": []map[string]any{{"message": gqlErr}}})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
}

func (s *fakeServer) indexByID(id string) int {
	for i, c := range s.contacts {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func (s *fakeServer) indexByEmail(email string) int {
	for i, c := range s.contacts {
		if c.Email == email {
			return i
		}
	}
	return -1
}

func contactFrom(id string, in Input) Contact {
	return Contact{ID: id, Name: in.Name, Email: in.Email, Phone: in.Phone, Subject: in.Subject, Message: in.Message, Consent: in.Consent}
}

func newTestClient(t *testing.T, opts ...Option) (*Client, *fakeServer) {
	t.Helper()
	fs := &fakeServer{}
	r := chi.NewRouter()
	r.Post("/graphql", fs.handler)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	opts = append([]Option{WithEndpoint(srv.URL + "/graphql")}, opts...)
	return New(opts...), fs
}

var john = Input{
	Name:    "John Doe",
	Email:   "john@example.com",
	Phone:   "1234567890",
	Subject: "Hello",
	Message: "Test message",
	Consent: true,
}

func TestAddAndGet(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	added, err := c.Add(ctx, john)
	require.NoError(t, err)
	require.NotEmpty(t, added.ID)
	assert.Equal(t, "John Doe", added.Name)

	found, err := c.Get(ctx, added.ID)
	require.NoError(t, err)
	assert.Equal(t, added, found)
}

func TestAddDuplicateEmail(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	_, err := c.Add(ctx, john)
	require.NoError(t, err)

	_, err = c.Add(ctx, john)
	require.ErrorIs(t, err, ErrDuplicateEmail)

	var apiErr *fetcher.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, fetcher.CodeGraphQL, apiErr.Code)
}

func TestUpdate(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	a, err := c.Add(ctx, john)
	require.NoError(t, err)
	jane := john
	jane.Name, jane.Email = "Jane", "jane@example.com"
	b, err := c.Add(ctx, jane)
	require.NoError(t, err)

	in := john
	in.Name = "Updated"
	updated, err := c.Update(ctx, a.ID, in)
	require.NoError(t, err)
	assert.Equal(t, "Updated", updated.Name)

	_, err = c.Update(ctx, b.ID, john)
	assert.ErrorIs(t, err, ErrDuplicateEmail)

	_, err = c.Update(ctx, "404", Input{Email: "nobody@example.com"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDuplicateEmail)
}

func TestDeleteAndNotFound(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	a, err := c.Add(ctx, john)
	require.NoError(t, err)

	ok, err := c.Delete(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Delete(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = c.Get(ctx, a.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	all, err := c.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestListFilter(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	_, err := c.Add(ctx, john)
	require.NoError(t, err)
	jane := john
	jane.Name, jane.Email = "Jane Roe", "jane@example.com"
	_, err = c.Add(ctx, jane)
	require.NoError(t, err)

	name := "Jane"
	p, err := c.List(ctx, Query{
		Filter:     &Filter{Name: &name},
		Sort:       &Sort{Field: SortName, Order: Asc},
		Pagination: &Pagination{Page: 1, Limit: 10},
	})
	require.NoError(t, err)
	require.Len(t, p.Contacts, 1)
	assert.Equal(t, "Jane Roe", p.Contacts[0].Name)
	assert.Equal(t, 1, p.Total)
}

func TestReadsAreCachedAndMutationsInvalidate(t *testing.T) {
	store := cache.New()
	c, fs := newTestClient(t, WithCache(store))
	ctx := context.Background()

	_, err := c.Add(ctx, john)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		all, err := c.All(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	}
	assert.EqualValues(t, 1, fs.reads.Load())
	assert.Equal(t, 1, store.Stats(ctx).Local.Size)

	jane := john
	jane.Email = "jane@example.com"
	_, err = c.Add(ctx, jane)
	require.NoError(t, err)
	assert.Zero(t, store.Stats(ctx).Local.Size)

	all, err := c.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.EqualValues(t, 2, fs.reads.Load())
}

func TestTokenIsSent(t *testing.T) {
	c, fs := newTestClient(t, WithToken("s3cret"))
	_, err := c.All(context.Background())
	require.NoError(t, err)

	fs.mu.Lock()
	defer fs.mu.Unlock()
	assert.Equal(t, "Bearer s3cret", fs.auth)
}

func TestPlugin(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	a, err := c.Add(ctx, john)
	require.NoError(t, err)

	p := NewPlugin(c)
	assert.Equal(t, "contacts", p.Name())

	out, err := p.GetLatest(ctx)
	require.NoError(t, err)
	assert.Contains(t, out, "| "+a.ID+" | John Doe | john@example.com | Hello |")

	out, err = p.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "## John Doe")
	assert.Contains(t, out, "Test message")
}
