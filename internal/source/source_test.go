package source

import (
	"errors"
	"net/http"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTailOf(t *testing.T) {
	t.Run("short content unchanged", func(t *testing.T) {
		if got := tailOf("hello"); got != "hello" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("long content keeps the tail", func(t *testing.T) {
		content := strings.Repeat("a", resumeTail+100) + "END"
		got := tailOf(content)
		if len(got) > resumeTail {
			t.Errorf("tail length %d exceeds %d", len(got), resumeTail)
		}
		if !strings.HasSuffix(got, "END") {
			t.Error("tail lost the end of the content")
		}
	})

	t.Run("cut lands mid rune", func(t *testing.T) {
		// Three-byte runes guarantee the byte cut falls inside one.
		content := strings.Repeat("€", resumeTail)
		got := tailOf(content)
		if !utf8.ValidString(got) {
			t.Errorf("tail is not valid UTF-8: %q...", got[:12])
		}
		if !strings.HasSuffix(content, got) {
			t.Error("tail is not a suffix of the content")
		}
	})
}

func TestErrorUnwrap(t *testing.T) {
	inner := errors.New("boom")
	err := &Error{Provider: "openai", Err: inner, HTTPStatus: 500}
	if !errors.Is(err, inner) {
		t.Error("Error must unwrap to the provider error")
	}
	if !strings.Contains(err.Error(), "openai") {
		t.Errorf("message %q should name the provider", err.Error())
	}
}

func TestExtractErrorMetadata(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantRetry  string
	}{
		{"nil", nil, 0, ""},
		{"rate limited with header", errors.New("status 429, Retry-After: 30"), http.StatusTooManyRequests, "30"},
		{"rate limited with prose", errors.New("error 429: retry after 12s"), http.StatusTooManyRequests, "12"},
		{"server error", errors.New("received 503 from upstream"), http.StatusServiceUnavailable, ""},
		{"auth", errors.New("401 unauthorized"), http.StatusUnauthorized, ""},
		{"no metadata", errors.New("broken pipe"), 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, retry := extractErrorMetadata(tt.err)
			if status != tt.wantStatus {
				t.Errorf("status = %d, want %d", status, tt.wantStatus)
			}
			if retry != tt.wantRetry {
				t.Errorf("retry-after = %q, want %q", retry, tt.wantRetry)
			}
		})
	}
}

func TestWrapProviderError(t *testing.T) {
	inner := errors.New("HTTP 429 Too Many Requests, Retry-After: 60")
	err := wrapProviderError("anthropic", inner)

	var srcErr *Error
	if !errors.As(err, &srcErr) {
		t.Fatalf("wrapProviderError returned %T", err)
	}
	if srcErr.HTTPStatus != http.StatusTooManyRequests {
		t.Errorf("status = %d", srcErr.HTTPStatus)
	}
	if srcErr.RetryAfter != "60" {
		t.Errorf("retry-after = %q", srcErr.RetryAfter)
	}
	if !errors.Is(err, inner) {
		t.Error("wrapped error must unwrap to the SDK error")
	}
}
