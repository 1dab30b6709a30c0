package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/briangreenhill/fetchkit/cache"
	"github.com/briangreenhill/fetchkit/fetcher"
)

// cacheFlags are shared by the commands that can go through the cache.
type cacheFlags struct {
	enabled bool
	key     string
	backend string
	ttl     time.Duration
	retry   int
}

func (f *cacheFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.enabled, "cache", false, "serve from and store into the cache")
	cmd.Flags().StringVar(&f.key, "key", "", "explicit cache key (implies --cache)")
	cmd.Flags().StringVar(&f.backend, "backend", string(cache.Local), "cache backend: memory, local or session")
	cmd.Flags().DurationVar(&f.ttl, "ttl", cache.APITTL, "time to live of cached responses")
	cmd.Flags().IntVar(&f.retry, "retry", -1, "retry attempts (default from config)")
}

func (f *cacheFlags) callOptions() []fetcher.CallOption {
	switch {
	case f.key != "":
		return []fetcher.CallOption{fetcher.CacheKey(f.key)}
	case f.enabled:
		return []fetcher.CallOption{fetcher.UseCache()}
	default:
		return nil
	}
}

// fetcher builds a Fetcher for a one-off command.
func (f *cacheFlags) fetcher(cmd *cobra.Command, a *app, extra ...fetcher.Option) (*fetcher.Fetcher[any], error) {
	backend, ok := cache.ParseBackend(f.backend)
	if !ok {
		return nil, fmt.Errorf("unknown backend %q", f.backend)
	}
	set, err := a.providers(cmd.Context())
	if err != nil {
		return nil, err
	}
	retry := f.retry
	if retry < 0 {
		retry = a.cfg.Fetch.RetryAttempts
	}

	opts := []fetcher.Option{
		fetcher.WithRetry(retry, a.cfg.Fetch.RetryDelay),
		fetcher.WithLogger(a.log),
		fetcher.WithCache(set.Cache, cache.Config{TTL: f.ttl, Backend: backend}),
	}
	return fetcher.New[any](append(opts, extra...)...), nil
}

func newGetCmd(a *app) *cobra.Command {
	var (
		cf      cacheFlags
		method  string
		body    string
		params  []string
		headers []string
	)

	cmd := &cobra.Command{
		Use:   "get <url>",
		Short: "Perform a REST request and print the response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parsePairs(params)
			if err != nil {
				return fmt.Errorf("--param: %w", err)
			}
			h, err := parsePairs(headers)
			if err != nil {
				return fmt.Errorf("--header: %w", err)
			}
			f, err := cf.fetcher(cmd, a)
			if err != nil {
				return err
			}

			req := fetcher.RESTRequest{URL: args[0], Method: method, Params: p, Headers: h}
			if body != "" {
				req.Body = body
			}
			v, err := f.REST(cmd.Context(), req, cf.callOptions()...)
			if err != nil {
				return err
			}
			return printValue(cmd.OutOrStdout(), v)
		},
	}
	cmd.Flags().StringVarP(&method, "method", "X", http.MethodGet, "HTTP method")
	cmd.Flags().StringVarP(&body, "data", "d", "", "request body")
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "query parameter key=value (repeatable)")
	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "header key=value (repeatable)")
	cf.register(cmd)
	return cmd
}

func newGraphQLCmd(a *app) *cobra.Command {
	var (
		cf        cacheFlags
		query     string
		variables string
		endpoint  string
	)

	cmd := &cobra.Command{
		Use:   "graphql",
		Short: "Perform a GraphQL operation and print its data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var vars map[string]any
			if variables != "" {
				if err := json.Unmarshal([]byte(variables), &vars); err != nil {
					return fmt.Errorf("--variables: %w", err)
				}
			}
			if _, err := a.config(); err != nil {
				return err
			}
			if endpoint == "" {
				endpoint = a.cfg.Fetch.GraphQLEndpoint
			}

			f, err := cf.fetcher(cmd, a, fetcher.WithGraphQLEndpoint(endpoint))
			if err != nil {
				return err
			}
			v, err := f.GraphQL(cmd.Context(), fetcher.GraphQLRequest{Query: query, Variables: vars}, cf.callOptions()...)
			if err != nil {
				return err
			}
			return printValue(cmd.OutOrStdout(), v)
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "GraphQL document")
	cmd.Flags().StringVar(&variables, "variables", "", "variables as a JSON object")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "GraphQL endpoint (default from config)")
	_ = cmd.MarkFlagRequired("query")
	cf.register(cmd)
	return cmd
}

// printValue writes strings as is and everything else as indented JSON.
func printValue(w io.Writer, v any) error {
	if s, ok := v.(string); ok {
		_, err := fmt.Fprintln(w, s)
		return err
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
