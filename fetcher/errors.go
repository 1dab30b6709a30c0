package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
)

// Error codes that are not HTTP statuses.
const (
	CodeGraphQL = "GRAPHQL_ERROR"
	CodeNetwork = "NETWORK_ERROR"
	CodeAbort   = "ABORT_ERROR"
)

// APIError is the single error type surfaced by a Fetcher.
type APIError struct {
	Message string
	// Code is an HTTP status ("404"), one of the Code constants, or empty.
	Code string
	// Details carries the underlying cause, e.g. the GraphQL errors array.
	Details any

	err error
}

// Name identifies the error kind.
func (e *APIError) Name() string { return "ApiError" }

func (e *APIError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

func (e *APIError) Unwrap() error { return e.err }

// StatusCode returns the HTTP status carried in Code, or 0.
func (e *APIError) StatusCode() int {
	n, err := strconv.Atoi(e.Code)
	if err != nil {
		return 0
	}
	return n
}

func httpError(status int, statusText string) *APIError {
	return &APIError{
		Message: fmt.Sprintf("HTTP Error: %d %s", status, statusText),
		Code:    strconv.Itoa(status),
	}
}

// GraphQLError is one element of a GraphQL response's errors array.
type GraphQLError struct {
	Message    string         `json:"message"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

func graphQLError(errs []GraphQLError) *APIError {
	msg := errs[0].Message
	if msg == "" {
		msg = "GraphQL Error"
	}
	return &APIError{Message: msg, Code: CodeGraphQL, Details: errs}
}

// transportError classifies a failure from the HTTP client.
func transportError(ctx context.Context, err error) *APIError {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
		return &APIError{Message: "Request was cancelled.", Code: CodeAbort, Details: err, err: err}
	}
	return &APIError{
		Message: "Network connection failed. Please check your internet connection or try again later.",
		Code:    CodeNetwork,
		Details: err,
		err:     err,
	}
}

// asAPIError wraps any other failure, keeping the cause in Details.
func asAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return &APIError{Message: err.Error(), Details: err, err: err}
}

// RetryAll is the default retry policy: every failure is retried.
func RetryAll(error) bool { return true }

// RetryTransient retries network failures, 5xx, 429 and 408 responses.
func RetryTransient(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		var netErr net.Error
		var urlErr *url.Error
		return errors.As(err, &netErr) || errors.As(err, &urlErr)
	}
	if apiErr.Code == CodeNetwork {
		return true
	}
	status := apiErr.StatusCode()
	return status >= 500 || status == 429 || status == 408
}
