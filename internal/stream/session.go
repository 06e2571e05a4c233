package stream

import (
	"time"
)

// Status represents the lifecycle state of a streaming session.
type Status string

const (
	StatusPending        Status = "pending"         // Created, no attempt started yet
	StatusStreaming      Status = "streaming"       // An attempt is actively consuming chunks
	StatusPartialFailure Status = "partial_failure" // Attempt failed with partial content, retry possible
	StatusFailed         Status = "failed"          // Terminal failure
	StatusSucceeded      Status = "succeeded"       // Terminal success
	StatusCancelled      Status = "cancelled"       // Terminal, caller-initiated
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusFailed, StatusSucceeded, StatusCancelled:
		return true
	}
	return false
}

// Timing records the observable timestamps of a session.
// FirstChunkAt/LastChunkAt/EndedAt are zero until the event occurs.
type Timing struct {
	StartedAt    time.Time `json:"started_at"`
	FirstChunkAt time.Time `json:"first_chunk_at,omitempty"`
	LastChunkAt  time.Time `json:"last_chunk_at,omitempty"`
	EndedAt      time.Time `json:"ended_at,omitempty"`
}

// RetryAttempt is one entry in the append-only attempt history.
// Records are never mutated after creation.
type RetryAttempt struct {
	Attempt   int           `json:"attempt"`
	Delay     time.Duration `json:"delay"`   // Backoff applied before this attempt (0 for the first)
	StartedAt time.Time     `json:"started_at"`
	Outcome   string        `json:"outcome"` // "succeeded", "cancelled", or the classified error kind
	Extended  bool          `json:"extended,omitempty"` // True for attempts re-armed via Extend
}

// Session is the stateful record of one logical streaming request
// across all of its retry attempts.
//
// Mutable fields follow a single-writer discipline: the consumer
// mutates AccumulatedContent and Timing during an active attempt, the
// coordinator mutates everything between attempts. Callers only ever
// see immutable Snapshot copies.
type Session struct {
	ID                 string          `json:"id"`
	Prompt             string          `json:"prompt"`
	AccumulatedContent string          `json:"accumulated_content"`
	Status             Status          `json:"status"`
	AttemptCount       int             `json:"attempt_count"`
	Timing             Timing          `json:"timing"`
	Attempts           []RetryAttempt  `json:"attempts,omitempty"`
	LastError          *Classification `json:"last_error,omitempty"`
}

// Snapshot is an immutable copy of a Session published to subscribers
// after every state transition.
type Snapshot struct {
	ID                 string
	Prompt             string
	AccumulatedContent string
	Status             Status
	AttemptCount       int
	Timing             Timing
	Attempts           []RetryAttempt
	LastError          *Classification
}

// snapshot deep-copies the session's mutable parts.
func (s *Session) snapshot() Snapshot {
	attempts := make([]RetryAttempt, len(s.Attempts))
	copy(attempts, s.Attempts)

	var lastErr *Classification
	if s.LastError != nil {
		c := *s.LastError
		lastErr = &c
	}

	return Snapshot{
		ID:                 s.ID,
		Prompt:             s.Prompt,
		AccumulatedContent: s.AccumulatedContent,
		Status:             s.Status,
		AttemptCount:       s.AttemptCount,
		Timing:             s.Timing,
		Attempts:           attempts,
		LastError:          lastErr,
	}
}
