package stream

import (
	"context"

	"github.com/yacinebz/relay/internal/source"
)

// consumer drives a single stream attempt: it opens the source, folds
// deltas into the session through the append callback, keeps the
// timeout monitor fed, and resolves the race between source error and
// expiry by taking whichever signal occurs first.
type consumer struct {
	src     source.Source
	windows TimeoutWindows
	append  func(text string) // sole mutation path for accumulated content during the attempt
}

// run executes one attempt. A nil return means the source signalled
// completion; otherwise the error is the attempt's losing signal (a
// source failure, an *ExpiryError, or ctx's error on cancellation).
func (cs *consumer) run(ctx context.Context, req source.Request) error {
	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	mon := NewMonitor(cs.windows)
	defer mon.Cancel()

	chunkCh, errCh := cs.src.Open(attemptCtx, req)

	for {
		select {
		case ch, ok := <-chunkCh:
			if !ok {
				// Channel closed without a marker. Prefer a pending
				// error over assuming success.
				select {
				case err := <-errCh:
					if err != nil {
						return err
					}
				default:
				}
				return nil
			}
			if ch.Done {
				return nil
			}
			mon.Progress()
			if ch.Text != "" {
				cs.append(ch.Text)
			}

		case err, ok := <-errCh:
			if !ok || err == nil {
				// Closed or nil means the source has nothing to report;
				// keep draining chunks.
				errCh = nil
				continue
			}
			cancel()
			return err

		case exp := <-mon.Expired():
			// Abort the source; its late error, if any, is discarded.
			cancel()
			return exp

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
