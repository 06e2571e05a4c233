package stream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yacinebz/relay/internal/source"
)

// fakeSource runs a scripted body per attempt. The body owns the
// channels and must return when ctx is done; both channels are closed
// when it returns.
type fakeSource struct {
	body func(ctx context.Context, req source.Request, chunks chan<- source.Chunk, errs chan<- error)
}

func (f *fakeSource) Open(ctx context.Context, req source.Request) (<-chan source.Chunk, <-chan error) {
	chunks := make(chan source.Chunk, 8)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)
		f.body(ctx, req, chunks, errs)
	}()
	return chunks, errs
}

func collectConsumer(src source.Source, windows TimeoutWindows) (string, error) {
	var got string
	cs := &consumer{src: src, windows: windows, append: func(text string) { got += text }}
	err := cs.run(context.Background(), source.Request{Prompt: "hi"})
	return got, err
}

func TestConsumerAccumulatesUntilDone(t *testing.T) {
	src := &fakeSource{body: func(ctx context.Context, req source.Request, chunks chan<- source.Chunk, errs chan<- error) {
		chunks <- source.Chunk{Text: "Hello"}
		chunks <- source.Chunk{Text: ", "}
		chunks <- source.Chunk{Text: "world"}
		chunks <- source.Chunk{Done: true}
	}}
	got, err := collectConsumer(src, TimeoutWindows{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Hello, world" {
		t.Errorf("content = %q, want %q", got, "Hello, world")
	}
}

func TestConsumerClosedChannelMeansCompletion(t *testing.T) {
	src := &fakeSource{body: func(ctx context.Context, req source.Request, chunks chan<- source.Chunk, errs chan<- error) {
		chunks <- source.Chunk{Text: "done without marker"}
	}}
	got, err := collectConsumer(src, TimeoutWindows{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "done without marker" {
		t.Errorf("content = %q", got)
	}
}

func TestConsumerClosedChannelPrefersPendingError(t *testing.T) {
	boom := errors.New("connection reset by peer")
	src := &fakeSource{body: func(ctx context.Context, req source.Request, chunks chan<- source.Chunk, errs chan<- error) {
		errs <- boom
		// Closing chunks races the error delivery; the pending error
		// must still win.
	}}
	// Run a few times to exercise both select orders.
	for i := 0; i < 20; i++ {
		_, err := collectConsumer(src, TimeoutWindows{})
		if err == nil {
			t.Fatal("expected the pending error, got success")
		}
		if !errors.Is(err, boom) {
			t.Fatalf("err = %v, want %v", err, boom)
		}
	}
}

func TestConsumerMidStreamErrorPreservesPartial(t *testing.T) {
	boom := errors.New("unexpected EOF")
	src := &fakeSource{body: func(ctx context.Context, req source.Request, chunks chan<- source.Chunk, errs chan<- error) {
		chunks <- source.Chunk{Text: "partial "}
		chunks <- source.Chunk{Text: "output"}
		time.Sleep(10 * time.Millisecond)
		errs <- boom
		<-ctx.Done()
	}}
	got, err := collectConsumer(src, TimeoutWindows{})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if got != "partial output" {
		t.Errorf("content = %q, want %q", got, "partial output")
	}
}

func TestConsumerFirstChunkExpiry(t *testing.T) {
	src := &fakeSource{body: func(ctx context.Context, req source.Request, chunks chan<- source.Chunk, errs chan<- error) {
		<-ctx.Done()
	}}
	_, err := collectConsumer(src, TimeoutWindows{FirstChunk: 30 * time.Millisecond})
	var exp *ExpiryError
	if !errors.As(err, &exp) {
		t.Fatalf("err = %v, want *ExpiryError", err)
	}
	if exp.Kind != ExpiryFirstChunk {
		t.Errorf("kind = %s, want %s", exp.Kind, ExpiryFirstChunk)
	}
}

func TestConsumerInterChunkExpiryKeepsPartial(t *testing.T) {
	src := &fakeSource{body: func(ctx context.Context, req source.Request, chunks chan<- source.Chunk, errs chan<- error) {
		chunks <- source.Chunk{Text: "Hello "}
		<-ctx.Done()
	}}
	got, err := collectConsumer(src, TimeoutWindows{InterChunk: 30 * time.Millisecond})
	var exp *ExpiryError
	if !errors.As(err, &exp) {
		t.Fatalf("err = %v, want *ExpiryError", err)
	}
	if exp.Kind != ExpiryInterChunk {
		t.Errorf("kind = %s, want %s", exp.Kind, ExpiryInterChunk)
	}
	if got != "Hello " {
		t.Errorf("content = %q, want %q", got, "Hello ")
	}
}

func TestConsumerSourceErrorBeatsLaterTimeout(t *testing.T) {
	boom := errors.New("service unavailable")
	src := &fakeSource{body: func(ctx context.Context, req source.Request, chunks chan<- source.Chunk, errs chan<- error) {
		errs <- boom
		<-ctx.Done()
	}}
	_, err := collectConsumer(src, TimeoutWindows{FirstChunk: 500 * time.Millisecond})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want the source error", err)
	}
}

func TestConsumerContextCancellation(t *testing.T) {
	src := &fakeSource{body: func(ctx context.Context, req source.Request, chunks chan<- source.Chunk, errs chan<- error) {
		<-ctx.Done()
	}}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	cs := &consumer{src: src, windows: TimeoutWindows{}, append: func(string) {}}
	err := cs.run(ctx, source.Request{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestConsumerNilErrorKeepsDraining(t *testing.T) {
	src := &fakeSource{body: func(ctx context.Context, req source.Request, chunks chan<- source.Chunk, errs chan<- error) {
		errs <- nil
		chunks <- source.Chunk{Text: "still here"}
		chunks <- source.Chunk{Done: true}
	}}
	got, err := collectConsumer(src, TimeoutWindows{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "still here" {
		t.Errorf("content = %q", got)
	}
}
