package stream

import (
	"fmt"
	"sync"
	"time"
)

// ExpiryKind identifies which timeout window expired.
type ExpiryKind string

const (
	ExpiryOverall    ExpiryKind = "overall"
	ExpiryFirstChunk ExpiryKind = "first_chunk"
	ExpiryInterChunk ExpiryKind = "inter_chunk"
)

// ExpiryError is the terminal signal of a Monitor.
type ExpiryError struct {
	Kind  ExpiryKind
	After time.Duration // The window that elapsed
}

func (e *ExpiryError) Error() string {
	return fmt.Sprintf("stream timed out (%s window, %s)", e.Kind, e.After)
}

// TimeoutWindows configures the three countdowns of a Monitor. A zero
// or negative duration disables that window.
type TimeoutWindows struct {
	Overall    time.Duration `json:"overall"`
	FirstChunk time.Duration `json:"first_chunk"`
	InterChunk time.Duration `json:"inter_chunk"`
}

// Monitor watches one stream attempt for stalls. It arms up to three
// single-shot countdowns: an overall deadline fixed at attempt start,
// a first-chunk deadline disarmed permanently once any chunk arrives,
// and an inter-chunk deadline rearmed on every chunk.
//
// At most one expiry fires per attempt; the first signal wins and all
// other countdowns are stopped. Cancel suppresses any expiry that has
// not yet been delivered.
type Monitor struct {
	mu       sync.Mutex
	windows  TimeoutWindows
	overall  *time.Timer
	first    *time.Timer
	inter    *time.Timer
	gotChunk bool
	done     bool
	expired  chan *ExpiryError
}

// NewMonitor arms a monitor for one attempt.
func NewMonitor(w TimeoutWindows) *Monitor {
	m := &Monitor{
		windows: w,
		expired: make(chan *ExpiryError, 1),
	}
	// Arm under the lock: a window short enough to fire during
	// construction would otherwise race stopAllLocked over the timer
	// fields being written here.
	m.mu.Lock()
	defer m.mu.Unlock()
	if w.Overall > 0 {
		m.overall = time.AfterFunc(w.Overall, func() { m.fire(ExpiryOverall, w.Overall) })
	}
	if w.FirstChunk > 0 {
		m.first = time.AfterFunc(w.FirstChunk, func() { m.fire(ExpiryFirstChunk, w.FirstChunk) })
	}
	// The inter-chunk window only starts counting once the first chunk
	// has arrived; before that the first-chunk window governs.
	return m
}

// Expired delivers the single expiry signal, if any fires.
func (m *Monitor) Expired() <-chan *ExpiryError { return m.expired }

// Progress records that a chunk arrived. The first call disarms the
// first-chunk countdown permanently; every call rearms the inter-chunk
// countdown. The overall countdown is never reset.
func (m *Monitor) Progress() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done {
		return
	}

	if !m.gotChunk {
		m.gotChunk = true
		if m.first != nil {
			m.first.Stop()
			m.first = nil
		}
	}

	if m.windows.InterChunk > 0 {
		if m.inter != nil {
			m.inter.Stop()
		}
		w := m.windows.InterChunk
		m.inter = time.AfterFunc(w, func() { m.fire(ExpiryInterChunk, w) })
	}
}

// Cancel stops all countdowns and suppresses any in-flight expiry.
// Safe to call more than once.
func (m *Monitor) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done {
		return
	}
	m.done = true
	m.stopAllLocked()
}

// fire delivers the expiry if no other terminal signal won the race.
func (m *Monitor) fire(kind ExpiryKind, after time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done {
		return
	}
	m.done = true
	m.stopAllLocked()
	// Buffered, and only one fire can reach here.
	m.expired <- &ExpiryError{Kind: kind, After: after}
}

func (m *Monitor) stopAllLocked() {
	for _, t := range []*time.Timer{m.overall, m.first, m.inter} {
		if t != nil {
			t.Stop()
		}
	}
	m.overall, m.first, m.inter = nil, nil, nil
}
