package cache

import (
	"fmt"
	"strings"
)

// KeyDelimiter separates the parts of a key built by CreateKey.
const KeyDelimiter = "_"

var keyEscaper = strings.NewReplacer(`\`, `\\`, KeyDelimiter, `\`+KeyDelimiter)

// CreateKey joins the non-nil parts with KeyDelimiter. Backslashes and
// delimiters inside a part are escaped, so distinct part lists never
// produce the same key.
func CreateKey(parts ...any) string {
	escaped := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == nil {
			continue
		}
		escaped = append(escaped, keyEscaper.Replace(fmt.Sprint(p)))
	}
	return strings.Join(escaped, KeyDelimiter)
}

// CreateKey is the method form of the package-level CreateKey.
func (c *Cache) CreateKey(parts ...any) string {
	return CreateKey(parts...)
}

// RESTKey derives the key of a REST request from its method, fully resolved
// URL (query included) and serialized body.
func RESTKey(method, resolvedURL string, body []byte) string {
	return CreateKey("rest", strings.ToUpper(method), resolvedURL, string(body))
}

// GraphQLKey derives the key of a GraphQL operation from its endpoint, query
// text and serialized variables.
func GraphQLKey(endpoint, query string, variables []byte) string {
	return CreateKey("graphql", endpoint, query, string(variables))
}
