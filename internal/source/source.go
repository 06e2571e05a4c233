// Package source abstracts the providers that produce incremental
// completion streams. The stream manager treats a source as opaque: an
// ordered sequence of chunks ending with a completion marker or an
// error.
package source

import (
	"context"
	"unicode/utf8"
)

// Chunk is one increment of streamed content, or a completion marker.
type Chunk struct {
	Text string // Incremental content delta, empty for a completion marker
	Done bool   // True when the source signals normal completion
}

// Request describes what a stream attempt should produce.
type Request struct {
	Prompt string // Original user input, immutable for the session
	Resume string // Content already confirmed; non-empty on retried attempts
	Model  string // Optional model override; empty selects the source default
}

// Source opens one streaming attempt. Implementations must close the
// chunk channel when the stream ends and deliver at most one error on
// the error channel. Both channels must unblock promptly when ctx is
// cancelled.
type Source interface {
	Open(ctx context.Context, req Request) (<-chan Chunk, <-chan error)
}

// continuationPrompt instructs the model to pick up exactly where a
// truncated response left off, without repeating confirmed output.
const continuationPrompt = "Continue your previous answer exactly where it stopped. " +
	"Do not repeat anything already written, do not apologize, do not summarize; " +
	"emit only the remaining text."

// resumeTail bounds how much confirmed content is replayed to the
// model as an assistant prefill on a resumed attempt.
const resumeTail = 4096

// tailOf returns at most resumeTail bytes from the end of content,
// trimmed to a rune boundary.
func tailOf(content string) string {
	if len(content) <= resumeTail {
		return content
	}
	tail := content[len(content)-resumeTail:]
	// Drop leading continuation bytes if the cut landed mid-rune.
	i := 0
	for i < len(tail) && !utf8.RuneStart(tail[i]) {
		i++
	}
	return tail[i:]
}
