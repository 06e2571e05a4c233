package stream

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yacinebz/relay/internal/source"
)

// phase tracks what the run goroutine is currently doing, for
// validating RetryNow and Extend.
type phase int

const (
	phaseIdle    phase = iota // No session, or session terminal
	phaseRunning              // An attempt is consuming the stream
	phaseWaiting              // Backoff wait before the next attempt
	phaseParked               // Retries exhausted after an overall expiry; awaiting Extend or Cancel
)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.log = l }
}

// WithRand injects the randomness source used by jittered backoff
// strategies, for deterministic tests.
func WithRand(r *rand.Rand) Option {
	return func(c *Coordinator) { c.rng = r }
}

// WithDeltaFunc registers a callback invoked for every content delta
// as it is folded into the session, for incremental rendering.
func WithDeltaFunc(fn func(delta string)) Option {
	return func(c *Coordinator) { c.onDelta = fn }
}

// Coordinator orchestrates repeated stream attempts against a single
// session: it classifies failures, schedules bounded retries with
// backoff, preserves partial output across attempts, and publishes an
// immutable snapshot after every state transition.
//
// A Coordinator manages one session at a time. Start fails with
// ErrInvalidState while a session is active.
type Coordinator struct {
	cfg     Config
	src     source.Source
	log     *slog.Logger
	rng     *rand.Rand
	onDelta func(string)

	mu           sync.Mutex
	sess         *Session
	phase        phase
	cancelRun    context.CancelFunc
	overallExtra time.Duration // Accumulated Extend time applied to the next attempt's overall window
	retryNow     chan struct{}
	extendCh     chan time.Duration
	subs         []chan Snapshot
}

// New creates a Coordinator streaming from src with the given config.
func New(cfg Config, src source.Source, opts ...Option) *Coordinator {
	c := &Coordinator{
		cfg:      cfg.normalize(),
		src:      src,
		log:      slog.Default(),
		retryNow: make(chan struct{}, 1),
		extendCh: make(chan time.Duration, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start creates a new session for prompt and begins attempt 1. It
// returns the session ID, or ErrInvalidState if a session is still
// active.
func (c *Coordinator) Start(ctx context.Context, prompt string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sess != nil && !c.sess.Status.Terminal() {
		return "", ErrInvalidState
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.sess = &Session{
		ID:     uuid.NewString(),
		Prompt: prompt,
		Status: StatusPending,
		Timing: Timing{StartedAt: time.Now()},
	}
	c.cancelRun = cancel
	c.overallExtra = 0
	c.publishLocked()

	go c.run(runCtx, c.sess)
	return c.sess.ID, nil
}

// Cancel terminates the session and every in-flight sub-task (the
// consuming attempt and any armed countdown or backoff wait). It is a
// silent no-op if the session is already terminal, and idempotent.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sess == nil || c.sess.Status.Terminal() {
		return
	}
	c.sess.Status = StatusCancelled
	c.sess.Timing.EndedAt = time.Now()
	c.phase = phaseIdle
	if c.cancelRun != nil {
		c.cancelRun()
	}
	c.log.Info("session cancelled", "session", c.sess.ID, "attempts", c.sess.AttemptCount)
	c.publishLocked()
}

// RetryNow skips the remaining backoff wait and starts the next
// attempt immediately. Valid only while the coordinator is waiting
// between attempts.
func (c *Coordinator) RetryNow() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase != phaseWaiting {
		return ErrInvalidState
	}
	select {
	case c.retryNow <- struct{}{}:
	default:
	}
	return nil
}

// Extend grants the session extra overall-timeout budget and re-arms
// an attempt that resumes from the partial content. Valid only when
// the session sits in PartialFailure caused by an overall expiry with
// non-empty content. Extended attempts do not count against
// MaxRetries.
func (c *Coordinator) Extend(extra time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if extra <= 0 {
		return ErrInvalidState
	}
	if c.sess == nil || c.sess.Status != StatusPartialFailure {
		return ErrInvalidState
	}
	if c.phase != phaseParked && c.phase != phaseWaiting {
		return ErrInvalidState
	}
	if c.sess.LastError == nil || c.sess.LastError.Expiry != ExpiryOverall {
		return ErrInvalidState
	}
	if c.sess.AccumulatedContent == "" {
		return ErrInvalidState
	}

	select {
	case c.extendCh <- extra:
		return nil
	default:
		return ErrInvalidState
	}
}

// Subscribe returns a channel receiving a Snapshot after every state
// transition. The channel is buffered; intermediate snapshots are
// dropped rather than blocking the coordinator when a subscriber falls
// behind, but a terminal snapshot is always delivered.
func (c *Coordinator) Subscribe() <-chan Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan Snapshot, 16)
	c.subs = append(c.subs, ch)
	return ch
}

// SetConfig replaces the retry and timeout settings. The new values
// take effect from the next attempt; the attempt in flight keeps the
// windows it was armed with.
func (c *Coordinator) SetConfig(cfg Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = cfg.normalize()
}

// Session returns a snapshot of the current session, if one exists.
func (c *Coordinator) Session() (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return Snapshot{}, false
	}
	return c.sess.snapshot(), true
}

// run is the session's single driver goroutine. Between attempts it is
// the only writer of the session; during an attempt content mutation
// goes through appendTo. Every mutation is bound to sess, so a run
// goroutine that outlives a cancellation can never touch a session
// started after it.
func (c *Coordinator) run(ctx context.Context, sess *Session) {
	var delay time.Duration // Backoff applied before the upcoming attempt
	extended := false       // True when the upcoming attempt was re-armed via Extend

	for {
		c.mu.Lock()
		if c.sess != sess || sess.Status.Terminal() {
			c.mu.Unlock()
			return
		}
		if !extended {
			sess.AttemptCount++
		}
		attempt := sess.AttemptCount
		sess.Status = StatusStreaming
		c.phase = phaseRunning
		req := source.Request{Prompt: sess.Prompt, Resume: sess.AccumulatedContent}
		cfg := c.cfg
		windows := cfg.Timeouts
		if windows.Overall > 0 {
			windows.Overall += c.overallExtra
		}
		started := time.Now()
		sessID := sess.ID
		c.publishLocked()
		c.mu.Unlock()

		c.log.Info("stream attempt started",
			"session", sessID, "attempt", attempt, "resuming", req.Resume != "", "extended", extended)

		cons := &consumer{src: c.src, windows: windows, append: func(text string) { c.appendTo(sess, text) }}
		err := cons.run(ctx, req)

		record := RetryAttempt{Attempt: attempt, Delay: delay, StartedAt: started, Extended: extended}
		extended = false

		if err == nil {
			record.Outcome = "succeeded"
			c.finish(sess, StatusSucceeded, nil, record)
			return
		}
		if ctx.Err() != nil {
			// Either Cancel already drove the terminal transition, or
			// the caller's context ended; the session must land in
			// Cancelled either way.
			c.cancelFromContext(sess)
			return
		}

		// No valid RetryNow/Extend can be issued while the attempt was
		// running, so anything buffered is stale from a previous wait.
		c.drainSignals()

		cls := Classify(err)
		record.Outcome = string(cls.Kind)

		c.mu.Lock()
		if c.sess != sess || sess.Status.Terminal() {
			c.mu.Unlock()
			return
		}
		sess.LastError = &cls
		sess.Attempts = append(sess.Attempts, record)
		hasContent := sess.AccumulatedContent != ""
		exhausted := sess.AttemptCount >= cfg.MaxRetries+1
		c.mu.Unlock()

		c.log.Warn("stream attempt failed",
			"session", sessID, "attempt", attempt, "kind", cls.Kind,
			"recoverable", cls.Recoverable, "error", cls.Message)

		if !cls.Recoverable {
			c.finish(sess, StatusFailed, &cls)
			return
		}

		if exhausted {
			// An overall expiry with partial output parks the session
			// so the caller can Extend; any other exhaustion is final.
			if cls.Expiry == ExpiryOverall && hasContent {
				c.transition(sess, StatusPartialFailure, phaseParked)
				select {
				case extra := <-c.extendCh:
					c.grantExtension(sess, extra)
					extended = true
					delay = 0
					continue
				case <-ctx.Done():
					c.cancelFromContext(sess)
					return
				}
			}
			c.finish(sess, StatusFailed, &cls)
			return
		}

		delay = Delay(attempt, cfg.Strategy, cfg.BaseDelay, cfg.MaxDelay, c.rng)
		if cls.RetryAfter > 0 {
			// Server-provided hint overrides the computed backoff.
			delay = cls.RetryAfter
			if delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}
		}

		if hasContent {
			c.transition(sess, StatusPartialFailure, phaseWaiting)
		} else {
			c.transition(sess, StatusPending, phaseWaiting)
		}

		c.log.Info("backing off before retry",
			"session", sessID, "next_attempt", attempt+1, "delay", delay)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-c.retryNow:
			timer.Stop()
		case extra := <-c.extendCh:
			timer.Stop()
			c.grantExtension(sess, extra)
			extended = true
			delay = 0
		case <-ctx.Done():
			timer.Stop()
			c.cancelFromContext(sess)
			return
		}
	}
}

// appendTo folds one content delta into sess. It refuses to mutate a
// session that is no longer current or no longer streaming, so a chunk
// racing a cancellation or expiry is discarded.
func (c *Coordinator) appendTo(sess *Session, text string) {
	c.mu.Lock()
	if c.sess != sess || sess.Status != StatusStreaming {
		c.mu.Unlock()
		return
	}
	now := time.Now()
	if sess.Timing.FirstChunkAt.IsZero() {
		sess.Timing.FirstChunkAt = now
	}
	sess.Timing.LastChunkAt = now
	sess.AccumulatedContent += text
	onDelta := c.onDelta
	c.mu.Unlock()

	if onDelta != nil {
		onDelta(text)
	}
}

// transition moves sess to a non-terminal status and publishes.
func (c *Coordinator) transition(sess *Session, st Status, ph phase) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess != sess || sess.Status.Terminal() {
		return
	}
	sess.Status = st
	c.phase = ph
	c.publishLocked()
}

// finish drives sess to a terminal status, appending the final attempt
// record when one is supplied.
func (c *Coordinator) finish(sess *Session, st Status, cls *Classification, records ...RetryAttempt) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess != sess || sess.Status.Terminal() {
		return
	}
	sess.Status = st
	sess.Timing.EndedAt = time.Now()
	if cls != nil {
		sess.LastError = cls
	}
	sess.Attempts = append(sess.Attempts, records...)
	c.phase = phaseIdle
	c.log.Info("session finished",
		"session", sess.ID, "status", st, "attempts", sess.AttemptCount,
		"content_bytes", len(sess.AccumulatedContent))
	c.publishLocked()
}

// cancelFromContext terminates sess when the caller's context ends
// without an explicit Cancel, so the coordinator is released for the
// next Start. No-op if Cancel got there first.
func (c *Coordinator) cancelFromContext(sess *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess != sess || sess.Status.Terminal() {
		return
	}
	sess.Status = StatusCancelled
	sess.Timing.EndedAt = time.Now()
	c.phase = phaseIdle
	c.log.Info("session cancelled by context", "session", sess.ID, "attempts", sess.AttemptCount)
	c.publishLocked()
}

func (c *Coordinator) grantExtension(sess *Session, extra time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.overallExtra += extra
	c.log.Info("overall window extended", "session", sess.ID, "extra", extra)
}

// drainSignals clears stale RetryNow/Extend signals left over from a
// previous wait, so they cannot skip a future one.
func (c *Coordinator) drainSignals() {
	select {
	case <-c.retryNow:
	default:
	}
	select {
	case <-c.extendCh:
	default:
	}
}

// publishLocked sends the current snapshot to every subscriber.
// Callers must hold c.mu, which also makes this the only sender: when
// a buffer is full, evicting one stale snapshot is guaranteed to make
// room. Eviction only happens for terminal snapshots, so a subscriber
// that falls behind still observes the end of the session.
func (c *Coordinator) publishLocked() {
	snap := c.sess.snapshot()
	for _, sub := range c.subs {
		select {
		case sub <- snap:
			continue
		default:
		}
		if !snap.Status.Terminal() {
			continue
		}
		select {
		case <-sub:
		default:
		}
		select {
		case sub <- snap:
		default:
		}
	}
}
