package registry

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"verigate/internal/provider"
	"verigate/pkg/platform/sentinel"
)

// InMemoryStore keeps operation bindings in memory for tests and
// single-instance deployments. One mutex covers both indexes so
// check-and-bind is atomic.
type InMemoryStore struct {
	mu     sync.RWMutex
	byID   map[string]*Operation
	active map[activeKey]string // (user, purpose) -> operation id
}

type activeKey struct {
	userID  uuid.UUID
	purpose provider.Purpose
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byID:   make(map[string]*Operation),
		active: make(map[activeKey]string),
	}
}

func (s *InMemoryStore) Bind(_ context.Context, op Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := activeKey{userID: op.UserID, purpose: op.Purpose}
	if existingID, ok := s.active[key]; ok {
		if existing, ok := s.byID[existingID]; ok && !existing.Terminal() {
			return sentinel.ErrConflict
		}
	}

	stored := op
	s.byID[op.OperationID] = &stored
	s.active[key] = op.OperationID
	return nil
}

func (s *InMemoryStore) FindByOperationID(_ context.Context, operationID string) (Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if op, ok := s.byID[operationID]; ok {
		return *op, nil
	}
	return Operation{}, sentinel.ErrNotFound
}

func (s *InMemoryStore) FindActiveByUser(_ context.Context, userID uuid.UUID, purpose provider.Purpose) (Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	operationID, ok := s.active[activeKey{userID: userID, purpose: purpose}]
	if !ok {
		return Operation{}, sentinel.ErrNotFound
	}
	op, ok := s.byID[operationID]
	if !ok || op.Terminal() {
		return Operation{}, sentinel.ErrNotFound
	}
	if !op.ExpiresAt.IsZero() && time.Now().After(op.ExpiresAt) {
		return Operation{}, sentinel.ErrExpired
	}
	return *op, nil
}

func (s *InMemoryStore) MarkTerminal(_ context.Context, operationID string, state provider.State, result provider.Result, completedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, ok := s.byID[operationID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if op.Terminal() {
		return sentinel.ErrTerminal
	}

	op.State = state
	op.Result = result
	op.CompletedAt = completedAt
	delete(s.active, activeKey{userID: op.UserID, purpose: op.Purpose})
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, operationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, ok := s.byID[operationID]
	if !ok {
		return sentinel.ErrNotFound
	}
	delete(s.byID, operationID)

	key := activeKey{userID: op.UserID, purpose: op.Purpose}
	if s.active[key] == operationID {
		delete(s.active, key)
	}
	return nil
}

func (s *InMemoryStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for id, op := range s.byID {
		if !op.ExpiresAt.IsZero() && op.ExpiresAt.Before(now) {
			delete(s.byID, id)
			key := activeKey{userID: op.UserID, purpose: op.Purpose}
			if s.active[key] == id {
				delete(s.active, key)
			}
			deleted++
		}
	}
	return deleted, nil
}
