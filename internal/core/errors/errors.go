// Package errors provides centralized error definitions for the resolver.
// Errors are organized by kind so callers can classify a failure with errors.Is
// regardless of which strategy produced it.
//
// Naming conventions:
//   - Kind errors (ErrDecode, ErrNetwork, ErrParse, ErrValidation) are the roots
//   - Specific errors wrap a kind so errors.Is matches both
//   - Use fmt.Errorf with %w to add context to sentinel errors
package errors

import (
	"errors"
	"fmt"
)

// Error kinds.
var (
	// ErrDecode indicates a malformed Base64 or binary identifier structure.
	ErrDecode = errors.New("decode error")

	// ErrNetwork indicates a timeout, connection failure or non-success HTTP status.
	ErrNetwork = errors.New("network error")

	// ErrParse indicates a missing signature/timestamp, malformed RPC envelope or malformed JSON.
	ErrParse = errors.New("parse error")

	// ErrValidation indicates a candidate that is not an absolute URL or points back to the aggregator.
	ErrValidation = errors.New("validation error")
)

// Network errors.
var (
	// ErrHTTPStatusNotOK indicates an HTTP response with a non-200 status code.
	ErrHTTPStatusNotOK = fmt.Errorf("%w: HTTP status not OK", ErrNetwork)

	// ErrTooManyRedirects indicates the redirect budget was exhausted.
	ErrTooManyRedirects = fmt.Errorf("%w: too many redirects", ErrNetwork)

	// ErrNoRedirect indicates the effective URL equals the requested one.
	ErrNoRedirect = errors.New("no redirect occurred")
)

// Parse errors.
var (
	// ErrMissingParams indicates the article page carried no signature or timestamp.
	ErrMissingParams = fmt.Errorf("%w: decoding params not found", ErrParse)

	// ErrProtocolShape indicates the aggregator response no longer matches the expected shape.
	ErrProtocolShape = fmt.Errorf("%w: unexpected protocol shape", ErrParse)
)

// Validation errors.
var (
	// ErrNotAbsoluteURL indicates a candidate string is not an absolute http(s) URL.
	ErrNotAbsoluteURL = fmt.Errorf("%w: not an absolute URL", ErrValidation)

	// ErrAggregatorHost indicates a candidate resolves back to the aggregator's own domain.
	ErrAggregatorHost = fmt.Errorf("%w: aggregator host", ErrValidation)

	// ErrNotRedirectLink indicates the input is not an aggregator redirect link.
	ErrNotRedirectLink = fmt.Errorf("%w: not a redirect link", ErrValidation)
)

// Cache errors.
var (
	// ErrCacheNotFound indicates a cache entry was not found.
	ErrCacheNotFound = errors.New("cache entry not found")

	// ErrCacheExpired indicates a cache entry has expired.
	ErrCacheExpired = errors.New("cache entry expired")
)

// Is is a convenience wrapper around errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As is a convenience wrapper around errors.As.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
