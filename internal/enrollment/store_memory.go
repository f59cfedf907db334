package enrollment

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"verigate/pkg/platform/sentinel"
)

// InMemoryStore keeps enrollment records in memory, newest last per user.
type InMemoryStore struct {
	mu     sync.RWMutex
	byUser map[uuid.UUID][]*Record
	byID   map[uuid.UUID]*Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byUser: make(map[uuid.UUID][]*Record),
		byID:   make(map[uuid.UUID]*Record),
	}
}

func (s *InMemoryStore) Save(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.byUser[rec.UserID] {
		if !existing.Status.Terminal() {
			return sentinel.ErrConflict
		}
	}

	stored := rec
	s.byUser[rec.UserID] = append(s.byUser[rec.UserID], &stored)
	s.byID[rec.ID] = &stored
	return nil
}

func (s *InMemoryStore) FindLatestByUser(_ context.Context, userID uuid.UUID) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.byUser[userID]
	if len(records) == 0 {
		return Record{}, sentinel.ErrNotFound
	}
	return *records[len(records)-1], nil
}

func (s *InMemoryStore) FindCompletedByUser(_ context.Context, userID uuid.UUID) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.byUser[userID] {
		if rec.Status == StatusCompleted {
			return *rec, nil
		}
	}
	return Record{}, sentinel.ErrNotFound
}

func (s *InMemoryStore) UpdateStatus(_ context.Context, id uuid.UUID, status Status, completedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	if rec.Status.Terminal() {
		return sentinel.ErrTerminal
	}

	rec.Status = status
	rec.CompletedAt = completedAt
	return nil
}
