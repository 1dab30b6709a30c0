package fetcher

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/briangreenhill/fetchkit/cache"
)

// Request is either a RESTRequest or a GraphQLRequest.
type Request interface {
	request()
}

// RESTRequest describes a plain HTTP call.
type RESTRequest struct {
	URL string
	// Method defaults to GET.
	Method  string
	Headers map[string]string
	// Body is sent for every method except GET. Strings and byte slices are
	// sent as is; anything else is encoded as JSON.
	Body any
	// Params are appended to the URL query.
	Params map[string]string
}

// GraphQLRequest describes a GraphQL operation.
type GraphQLRequest struct {
	Query     string
	Variables map[string]any
	// Endpoint defaults to the Fetcher's GraphQL endpoint.
	Endpoint string
}

func (RESTRequest) request()    {}
func (GraphQLRequest) request() {}

type requestKind string

const (
	kindREST    requestKind = "rest"
	kindGraphQL requestKind = "graphql"
)

// prepared is a Request resolved into wire form.
type prepared struct {
	kind    requestKind
	method  string
	url     string
	headers map[string]string
	body    []byte
	key     string
}

func (f *settings) prepare(req Request) (*prepared, error) {
	switch r := req.(type) {
	case RESTRequest:
		return f.prepareREST(r)
	case *RESTRequest:
		return f.prepareREST(*r)
	case GraphQLRequest:
		return f.prepareGraphQL(r)
	case *GraphQLRequest:
		return f.prepareGraphQL(*r)
	case nil:
		return nil, fmt.Errorf("nil request")
	default:
		return nil, fmt.Errorf("unsupported request type %T", req)
	}
}

func (f *settings) prepareREST(r RESTRequest) (*prepared, error) {
	method := strings.ToUpper(r.Method)
	if method == "" {
		method = http.MethodGet
	}

	resolved, err := buildURL(r.URL, r.Params)
	if err != nil {
		return nil, err
	}

	var body []byte
	if r.Body != nil && method != http.MethodGet {
		switch b := r.Body.(type) {
		case string:
			body = []byte(b)
		case []byte:
			body = b
		default:
			body, err = json.Marshal(b)
			if err != nil {
				return nil, fmt.Errorf("encode request body: %w", err)
			}
		}
	}

	headers := make(map[string]string, len(f.headers)+len(r.Headers))
	for k, v := range f.headers {
		headers[k] = v
	}
	for k, v := range r.Headers {
		headers[k] = v
	}

	return &prepared{
		kind:    kindREST,
		method:  method,
		url:     resolved,
		headers: headers,
		body:    body,
		key:     cache.RESTKey(method, resolved, body),
	}, nil
}

func (f *settings) prepareGraphQL(r GraphQLRequest) (*prepared, error) {
	endpoint := r.Endpoint
	if endpoint == "" {
		endpoint = f.graphqlEndpoint
	}

	variables := r.Variables
	if variables == nil {
		variables = map[string]any{}
	}
	vars, err := json.Marshal(variables)
	if err != nil {
		return nil, fmt.Errorf("encode variables: %w", err)
	}
	body, err := json.Marshal(struct {
		Query     string          `json:"query"`
		Variables json.RawMessage `json:"variables"`
	}{r.Query, vars})
	if err != nil {
		return nil, fmt.Errorf("encode graphql body: %w", err)
	}

	headers := make(map[string]string, len(f.headers)+1)
	for k, v := range f.headers {
		headers[k] = v
	}
	headers["Content-Type"] = "application/json"

	return &prepared{
		kind:    kindGraphQL,
		method:  http.MethodPost,
		url:     endpoint,
		headers: headers,
		body:    body,
		key:     cache.GraphQLKey(endpoint, r.Query, vars),
	}, nil
}

// buildURL appends params to raw. Parameters are encoded in key order, so
// the result does not depend on map iteration.
func buildURL(raw string, params map[string]string) (string, error) {
	if len(params) == 0 {
		return raw, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	q := u.Query()
	for k, v := range params {
		q.Add(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
