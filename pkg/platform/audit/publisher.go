package audit

import (
	"context"
	"sync"
	"time"
)

// Publisher delivers audit events to a sink. Emit must not block domain
// flows on sink latency beyond the caller's context deadline.
type Publisher interface {
	Emit(ctx context.Context, event Event) error
	Close() error
}

// NopPublisher drops every event. Used when auditing is not configured.
type NopPublisher struct{}

func (NopPublisher) Emit(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                      { return nil }

// MemoryPublisher buffers events in memory for tests and dev mode.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

func (p *MemoryPublisher) Emit(_ context.Context, event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	p.events = append(p.events, event)
	return nil
}

// Events returns a copy of all emitted events.
func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event{}, p.events...)
}

// ByAction returns all emitted events with the given action.
func (p *MemoryPublisher) ByAction(action Action) []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Event
	for _, e := range p.events {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

func (p *MemoryPublisher) Close() error { return nil }
