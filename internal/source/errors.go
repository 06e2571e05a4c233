package source

import (
	"fmt"
	"net/http"
	"strings"
)

// Error wraps a provider failure with the transport metadata the
// stream classifier needs: HTTP status and any Retry-After value.
type Error struct {
	Provider   string
	Err        error
	HTTPStatus int    // 0 if not an HTTP-level failure
	RetryAfter string // Raw Retry-After value if the provider supplied one
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("%s: stream failed (status %d)", e.Provider, e.HTTPStatus)
}

func (e *Error) Unwrap() error { return e.Err }

// streamFailure carries an in-stream error event reported through a
// provider callback rather than a returned error.
type streamFailure struct {
	provider string
	message  string
}

func (e *streamFailure) Error() string {
	return fmt.Sprintf("%s: %s", e.provider, e.message)
}

// wrapProviderError attaches whatever HTTP status and Retry-After can
// be recovered from the SDK error. The SDKs flatten transport details
// into the message, so this falls back to scanning it.
func wrapProviderError(provider string, err error) error {
	status, retryAfter := extractErrorMetadata(err)
	return &Error{Provider: provider, Err: err, HTTPStatus: status, RetryAfter: retryAfter}
}

// extractErrorMetadata scans an SDK error message for an HTTP status
// code and a Retry-After value.
func extractErrorMetadata(err error) (int, string) {
	if err == nil {
		return 0, ""
	}

	errStr := err.Error()
	var httpStatus int
	var retryAfter string

	switch {
	case strings.Contains(errStr, "429"):
		httpStatus = http.StatusTooManyRequests
	case strings.Contains(errStr, "500"):
		httpStatus = http.StatusInternalServerError
	case strings.Contains(errStr, "502"):
		httpStatus = http.StatusBadGateway
	case strings.Contains(errStr, "503"):
		httpStatus = http.StatusServiceUnavailable
	case strings.Contains(errStr, "504"):
		httpStatus = http.StatusGatewayTimeout
	case strings.Contains(errStr, "401"):
		httpStatus = http.StatusUnauthorized
	case strings.Contains(errStr, "403"):
		httpStatus = http.StatusForbidden
	}

	lower := strings.ToLower(errStr)
	if idx := strings.Index(lower, "retry-after:"); idx != -1 {
		fields := strings.Fields(errStr[idx+len("retry-after:"):])
		if len(fields) > 0 {
			retryAfter = fields[0]
		}
	} else if idx := strings.Index(lower, "retry after "); idx != -1 {
		fields := strings.Fields(errStr[idx+len("retry after "):])
		if len(fields) > 0 {
			retryAfter = strings.TrimSuffix(fields[0], "s")
		}
	}

	return httpStatus, retryAfter
}

// trySendErr delivers err without blocking; a second error for the
// same attempt is dropped, the first signal wins.
func trySendErr(ch chan<- error, err error) {
	select {
	case ch <- err:
	default:
	}
}
