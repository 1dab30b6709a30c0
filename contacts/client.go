// Package contacts is a GraphQL client for the contacts service. Reads are
// cached in the Local backend; successful mutations invalidate them.
package contacts

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/briangreenhill/fetchkit/cache"
	"github.com/briangreenhill/fetchkit/fetcher"
)

var (
	// ErrDuplicateEmail is returned by Add and Update when another contact
	// already uses the email address.
	ErrDuplicateEmail = errors.New("contacts: email already in use")
	ErrNotFound       = errors.New("contacts: not found")
)

// server messages that signal an email conflict
var duplicateMessages = []string{
	"Email already exists",
	"Another contact with this email already exists",
}

type Client struct {
	cache *cache.Scoped
	log   zerolog.Logger

	list   *fetcher.Fetcher[listData]
	get    *fetcher.Fetcher[getData]
	add    *fetcher.Fetcher[addData]
	update *fetcher.Fetcher[updateData]
	remove *fetcher.Fetcher[deleteData]
}

type options struct {
	endpoint string
	http     *http.Client
	token    oauth2.TokenSource
	cache    *cache.Scoped
	retry    int
	delay    time.Duration
	log      zerolog.Logger
}

type Option func(*options)

func WithHTTPClient(h *http.Client) Option {
	return func(o *options) { o.http = h }
}

// WithEndpoint sets the GraphQL endpoint. The default is
// fetcher.DefaultGraphQLEndpoint.
func WithEndpoint(url string) Option {
	return func(o *options) {
		if url != "" {
			o.endpoint = url
		}
	}
}

// WithToken authorizes requests with a static bearer token.
func WithToken(token string) Option {
	return func(o *options) {
		if token != "" {
			o.token = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		}
	}
}

// WithCache caches reads through the Contacts preset of c.
func WithCache(c *cache.Cache) Option {
	return func(o *options) {
		if c != nil {
			o.cache = cache.Contacts(c)
		}
	}
}

// WithRetry sets how many times a failed read is retried and the first wait
// between tries. Mutations are never retried.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(o *options) {
		o.retry = attempts
		o.delay = delay
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.log = l }
}

func New(opts ...Option) *Client {
	o := options{
		endpoint: fetcher.DefaultGraphQLEndpoint,
		http:     http.DefaultClient,
		delay:    fetcher.DefaultRetryDelay,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	log := o.log.With().Str("client", "contacts").Logger()

	base := []fetcher.Option{
		fetcher.WithHTTPClient(o.http),
		fetcher.WithGraphQLEndpoint(o.endpoint),
		fetcher.WithLogger(log),
	}
	if o.token != nil {
		base = append(base, fetcher.WithTokenSource(o.token))
	}
	reads := append(base[:len(base):len(base)],
		fetcher.WithRetry(o.retry, o.delay),
		fetcher.WithRetryPolicy(fetcher.RetryTransient),
	)
	if o.cache != nil {
		reads = append(reads, fetcher.WithScopedCache(o.cache))
	}

	return &Client{
		cache:  o.cache,
		log:    log,
		list:   fetcher.New[listData](reads...),
		get:    fetcher.New[getData](reads...),
		add:    fetcher.New[addData](base...),
		update: fetcher.New[updateData](base...),
		remove: fetcher.New[deleteData](base...),
	}
}

// List returns one page of contacts matching q.
func (c *Client) List(ctx context.Context, q Query) (*Page, error) {
	d, err := c.list.GraphQL(ctx, fetcher.GraphQLRequest{Query: listQuery, Variables: q.variables()}, c.cached()...)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	return &d.Contacts, nil
}

// All returns the contacts of the first page with server defaults.
func (c *Client) All(ctx context.Context) ([]Contact, error) {
	p, err := c.List(ctx, Query{})
	if err != nil {
		return nil, err
	}
	return p.Contacts, nil
}

// Get returns the contact with id, or ErrNotFound.
func (c *Client) Get(ctx context.Context, id string) (*Contact, error) {
	d, err := c.get.GraphQL(ctx, fetcher.GraphQLRequest{
		Query:     getQuery,
		Variables: map[string]any{"id": id},
	}, c.cached()...)
	if err != nil {
		return nil, fmt.Errorf("get contact %s: %w", id, err)
	}
	if d.Contact == nil {
		return nil, fmt.Errorf("get contact %s: %w", id, ErrNotFound)
	}
	return d.Contact, nil
}

// Add creates a contact.
func (c *Client) Add(ctx context.Context, in Input) (*Contact, error) {
	d, err := c.add.GraphQL(ctx, fetcher.GraphQLRequest{
		Query:     addMutation,
		Variables: map[string]any{"input": in},
	})
	if err != nil {
		return nil, fmt.Errorf("add contact: %w", duplicate(err))
	}
	c.invalidate(ctx)
	return &d.AddContact, nil
}

// Update replaces the fields of contact id.
func (c *Client) Update(ctx context.Context, id string, in Input) (*Contact, error) {
	d, err := c.update.GraphQL(ctx, fetcher.GraphQLRequest{
		Query:     updateMutation,
		Variables: map[string]any{"id": id, "input": in},
	})
	if err != nil {
		return nil, fmt.Errorf("update contact %s: %w", id, duplicate(err))
	}
	c.invalidate(ctx)
	return &d.UpdateContact, nil
}

// Delete removes contact id and reports whether the server deleted it.
func (c *Client) Delete(ctx context.Context, id string) (bool, error) {
	d, err := c.remove.GraphQL(ctx, fetcher.GraphQLRequest{
		Query:     deleteMutation,
		Variables: map[string]any{"id": id},
	})
	if err != nil {
		return false, fmt.Errorf("delete contact %s: %w", id, err)
	}
	c.invalidate(ctx)
	return d.DeleteContact, nil
}

func (c *Client) cached() []fetcher.CallOption {
	if c.cache == nil {
		return nil
	}
	return []fetcher.CallOption{fetcher.UseCache()}
}

// invalidate drops every cached read. The Local backend holds only
// contacts entries.
func (c *Client) invalidate(ctx context.Context) {
	if c.cache == nil {
		return
	}
	c.cache.Clear(ctx)
	c.log.Debug().Msg("contacts cache invalidated")
}

func duplicate(err error) error {
	var apiErr *fetcher.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != fetcher.CodeGraphQL {
		return err
	}
	for _, msg := range duplicateMessages {
		if strings.Contains(apiErr.Message, msg) {
			return fmt.Errorf("%w: %w", ErrDuplicateEmail, err)
		}
	}
	return err
}
