// Package stream implements resilient consumption of incremental
// completion streams: per-attempt timeout monitoring, error
// classification, bounded retries with backoff, and preservation of
// partial output across attempts.
package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/yacinebz/relay/internal/source"
)

// ErrInvalidState is returned when an operation is not valid for the
// session's current status (e.g. Start while a session is active, or
// Extend on a terminal session).
var ErrInvalidState = errors.New("invalid session state")

// ErrorKind is the closed failure taxonomy used for retry decisions.
type ErrorKind string

const (
	ErrorNetwork        ErrorKind = "network"
	ErrorAuthentication ErrorKind = "authentication"
	ErrorRateLimit      ErrorKind = "rate_limit"
	ErrorTimeout        ErrorKind = "timeout"
	ErrorServer         ErrorKind = "server"
	ErrorUnknown        ErrorKind = "unknown"
)

// Classification is the result of mapping a raw stream failure into
// the taxonomy.
type Classification struct {
	Kind        ErrorKind     `json:"kind"`
	Recoverable bool          `json:"recoverable"`
	Message     string        `json:"message"`
	RetryAfter  time.Duration `json:"retry_after,omitempty"` // Server-provided hint, 0 if absent
	Expiry      ExpiryKind    `json:"expiry,omitempty"`      // Set when Kind is ErrorTimeout
}

// Classify maps an arbitrary failure into the taxonomy. It is total:
// any input yields a classification, and unrecognized failures come
// back as Unknown/non-recoverable so unmodeled errors are never
// retried indefinitely.
func Classify(err error) Classification {
	if err == nil {
		return Classification{Kind: ErrorUnknown, Message: "no error"}
	}

	// Timeout expiries carry their window kind through.
	var exp *ExpiryError
	if errors.As(err, &exp) {
		return Classification{
			Kind:        ErrorTimeout,
			Recoverable: true,
			Message:     exp.Error(),
			Expiry:      exp.Kind,
		}
	}

	// Source adapters attach transport metadata; prefer it over
	// string matching when present.
	var srcErr *source.Error
	if errors.As(err, &srcErr) {
		if c, ok := classifyStatus(srcErr); ok {
			return c
		}
	}

	msg := err.Error()
	errStr := strings.ToLower(msg)

	switch {
	// Rate limit signals: recoverable, may carry a Retry-After hint.
	case strings.Contains(errStr, "429"),
		strings.Contains(errStr, "rate limit"),
		strings.Contains(errStr, "too many requests"):
		return Classification{
			Kind:        ErrorRateLimit,
			Recoverable: true,
			Message:     msg,
			RetryAfter:  extractRetryAfter(err),
		}

	// Authentication: never retried.
	case strings.Contains(errStr, "401"),
		strings.Contains(errStr, "403"),
		strings.Contains(errStr, "unauthorized"),
		strings.Contains(errStr, "forbidden"),
		strings.Contains(errStr, "invalid api key"),
		strings.Contains(errStr, "authentication"):
		return Classification{Kind: ErrorAuthentication, Message: msg}

	// Server-side failures: recoverable.
	case strings.Contains(errStr, "500"),
		strings.Contains(errStr, "502"),
		strings.Contains(errStr, "503"),
		strings.Contains(errStr, "504"),
		strings.Contains(errStr, "internal server error"),
		strings.Contains(errStr, "bad gateway"),
		strings.Contains(errStr, "service unavailable"),
		strings.Contains(errStr, "overloaded"):
		return Classification{Kind: ErrorServer, Recoverable: true, Message: msg}

	// Connectivity failures: recoverable.
	case strings.Contains(errStr, "connection reset"),
		strings.Contains(errStr, "connection refused"),
		strings.Contains(errStr, "broken pipe"),
		strings.Contains(errStr, "no such host"),
		strings.Contains(errStr, "network"),
		strings.Contains(errStr, "dns"),
		strings.Contains(errStr, "i/o timeout"),
		strings.Contains(errStr, "unexpected eof"),
		strings.Contains(errStr, "temporary failure"):
		return Classification{Kind: ErrorNetwork, Recoverable: true, Message: msg}

	// Context deadline from the transport counts as a timeout.
	case errors.Is(err, context.DeadlineExceeded),
		strings.Contains(errStr, "deadline exceeded"):
		return Classification{Kind: ErrorTimeout, Recoverable: true, Message: msg}
	}

	return Classification{Kind: ErrorUnknown, Message: msg}
}

// classifyStatus resolves a source.Error from its HTTP status alone.
func classifyStatus(e *source.Error) (Classification, bool) {
	msg := e.Error()
	switch {
	case e.HTTPStatus == http.StatusTooManyRequests:
		return Classification{
			Kind:        ErrorRateLimit,
			Recoverable: true,
			Message:     msg,
			RetryAfter:  parseRetryAfter(e.RetryAfter),
		}, true
	case e.HTTPStatus == http.StatusUnauthorized || e.HTTPStatus == http.StatusForbidden:
		return Classification{Kind: ErrorAuthentication, Message: msg}, true
	case e.HTTPStatus >= 500:
		return Classification{Kind: ErrorServer, Recoverable: true, Message: msg}, true
	}
	return Classification{}, false
}

// extractRetryAfter pulls a retry-after hint out of an error chain.
// Returns 0 if no usable hint is present.
func extractRetryAfter(err error) time.Duration {
	var srcErr *source.Error
	if errors.As(err, &srcErr) && srcErr.RetryAfter != "" {
		if d := parseRetryAfter(srcErr.RetryAfter); d > 0 {
			return d
		}
	}

	errStr := strings.ToLower(err.Error())
	if idx := strings.Index(errStr, "retry after "); idx >= 0 {
		var seconds int
		if _, scanErr := fmt.Sscanf(errStr[idx:], "retry after %d", &seconds); scanErr == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return 0
}

// parseRetryAfter parses a Retry-After value, either delta-seconds or
// an HTTP date.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	var seconds int
	if _, err := fmt.Sscanf(v, "%d", &seconds); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if t, err := time.Parse(time.RFC1123, v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
