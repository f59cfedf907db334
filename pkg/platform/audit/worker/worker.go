// Package worker moves audit events from the emitting request path to a
// store on a background goroutine so domain flows never block on sink
// latency.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"verigate/pkg/platform/audit"
)

// ErrInboxFull is returned by Emit when the buffer is saturated. The
// event is dropped rather than blocking the request path.
var ErrInboxFull = errors.New("audit inbox full")

// Worker consumes audit events from a channel and persists them.
type Worker struct {
	store  audit.Store
	inbox  <-chan audit.Event
	logger *slog.Logger
}

func NewWorker(store audit.Store, inbox <-chan audit.Event, logger *slog.Logger) *Worker {
	return &Worker{store: store, inbox: inbox, logger: logger}
}

// Run drains the inbox until the context is cancelled. Store failures are
// logged and skipped; one bad event must not stall the pipeline.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return
		case event, ok := <-w.inbox:
			if !ok {
				return
			}
			w.persist(event)
		}
	}
}

// drain flushes whatever is still buffered at shutdown.
func (w *Worker) drain() {
	for {
		select {
		case event, ok := <-w.inbox:
			if !ok {
				return
			}
			w.persist(event)
		default:
			return
		}
	}
}

func (w *Worker) persist(event audit.Event) {
	if err := w.store.Append(context.Background(), event); err != nil && w.logger != nil {
		w.logger.Error("failed to persist audit event",
			"action", event.Action, "error", err)
	}
}

// Pipeline is an audit.Publisher backed by a buffered channel and a
// single persisting worker.
type Pipeline struct {
	inbox     chan audit.Event
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// NewPipeline starts the worker goroutine. Close stops it and flushes the
// remaining buffer.
func NewPipeline(store audit.Store, buffer int, logger *slog.Logger) *Pipeline {
	if buffer <= 0 {
		buffer = 256
	}
	inbox := make(chan audit.Event, buffer)
	ctx, cancel := context.WithCancel(context.Background())

	p := &Pipeline{inbox: inbox, cancel: cancel, done: make(chan struct{})}
	w := NewWorker(store, inbox, logger)
	go func() {
		defer close(p.done)
		w.Run(ctx)
	}()
	return p
}

// Emit enqueues the event without blocking. A full buffer drops the event
// and reports ErrInboxFull so callers can count the loss.
func (p *Pipeline) Emit(_ context.Context, event audit.Event) error {
	select {
	case p.inbox <- event:
		return nil
	default:
		return ErrInboxFull
	}
}

// Close stops the worker after flushing buffered events.
func (p *Pipeline) Close() error {
	p.closeOnce.Do(func() {
		p.cancel()
		<-p.done
	})
	return nil
}
