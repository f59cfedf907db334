// Package user holds the local user directory the gateway authenticates
// against. Accounts are provisioned out of band; this service only reads
// them to gate enrollment and login.
package user

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"

	dErrors "verigate/pkg/domain-errors"
	"verigate/pkg/platform/sentinel"
)

type User struct {
	ID          uuid.UUID
	Email       string
	Name        string
	Role        string
	AccessLevel int
	Department  string
	Active      bool
}

// Store is the user lookup contract. Implementations return sentinel
// errors.
type Store interface {
	FindByID(ctx context.Context, id uuid.UUID) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
	Save(ctx context.Context, u User) error
}

// InMemoryStore indexes users by id and lowercased email.
type InMemoryStore struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]User
	byEmail map[string]uuid.UUID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byID:    make(map[uuid.UUID]User),
		byEmail: make(map[string]uuid.UUID),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *InMemoryStore) FindByID(_ context.Context, id uuid.UUID) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.byID[id]; ok {
		return u, nil
	}
	return User{}, sentinel.ErrNotFound
}

func (s *InMemoryStore) FindByEmail(_ context.Context, email string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id, ok := s.byEmail[normalizeEmail(email)]; ok {
		return s.byID[id], nil
	}
	return User{}, sentinel.ErrNotFound
}

func (s *InMemoryStore) Save(_ context.Context, u User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[u.ID] = u
	s.byEmail[normalizeEmail(u.Email)] = u.ID
	return nil
}

// Service translates store sentinels into coded domain errors.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

func (s *Service) ByID(ctx context.Context, id uuid.UUID) (User, error) {
	u, err := s.store.FindByID(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return User{}, dErrors.Wrap(err, dErrors.CodeNotFound, "user not found")
	}
	if err != nil {
		return User{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	return u, nil
}

func (s *Service) ByEmail(ctx context.Context, email string) (User, error) {
	if strings.TrimSpace(email) == "" {
		return User{}, dErrors.New(dErrors.CodeInvalidInput, "email is required")
	}
	u, err := s.store.FindByEmail(ctx, email)
	if errors.Is(err, sentinel.ErrNotFound) {
		return User{}, dErrors.Wrap(err, dErrors.CodeNotFound, "user not found")
	}
	if err != nil {
		return User{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	return u, nil
}
