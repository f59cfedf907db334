package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"verigate/pkg/platform/audit"
)

// InMemoryStore keeps audit events per user. Events are appended in
// arrival order, which follows emission order under the single worker.
type InMemoryStore struct {
	mu      sync.RWMutex
	byUser  map[uuid.UUID][]audit.Event
	ordered []audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byUser: make(map[uuid.UUID][]audit.Event)}
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byUser[event.UserID] = append(s.byUser[event.UserID], event)
	s.ordered = append(s.ordered, event)
	return nil
}

func (s *InMemoryStore) ListByUser(_ context.Context, userID uuid.UUID) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event{}, s.byUser[userID]...), nil
}

// ListRecent returns the most recent events, newest first.
func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.ordered)
	if limit > n {
		limit = n
	}
	out := make([]audit.Event, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.ordered[i])
	}
	return out, nil
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byUser = make(map[uuid.UUID][]audit.Event)
	s.ordered = nil
}
