package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Kind is the stable classification of a normalized gateway error
type Kind string

const (
	KindUnavailable Kind = "upstream_unavailable" // retries exhausted on transient failure
	KindAuth        Kind = "upstream_auth"        // credentials missing or rejected
	KindMalformed   Kind = "upstream_malformed"   // provider returned unusable content
	KindCancelled   Kind = "cancelled"            // caller cancelled the request
)

// Error is a normalized gateway error. Raw provider errors stay wrapped
// inside and are never shown to clients directly.
type Error struct {
	Kind     Kind
	Provider string
	Model    string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%s/%s): %v", e.Kind, e.Provider, e.Model, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a gateway error, or "" for other errors
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return ""
}

// IsCancelled reports whether err is a cancellation
func IsCancelled(err error) bool {
	return KindOf(err) == KindCancelled || errors.Is(err, context.Canceled)
}

// Provider SDK errors arrive as flattened strings, so classification works
// on markers rather than typed errors.
var (
	transientMarkers = []string{
		"429",
		"rate limit",
		"too many requests",
		"timeout",
		"timed out",
		"deadline exceeded",
		"connection refused",
		"connection reset",
		"broken pipe",
		"no such host",
		"eof",
		"overloaded",
		"service unavailable",
		"internal server error",
		"bad gateway",
		"status code: 500",
		"status code: 502",
		"status code: 503",
		"status code: 504",
	}

	authMarkers = []string{
		"401",
		"403",
		"unauthorized",
		"forbidden",
		"authentication",
		"invalid api key",
		"incorrect api key",
		"permission denied",
	}
)

// isTransient reports whether an upstream failure should be retried:
// connection errors, timeouts, HTTP 429 and HTTP >= 500.
func isTransient(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// isAuthFailure reports whether the provider rejected our credentials
func isAuthFailure(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range authMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
