package registry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"verigate/internal/provider"
	"verigate/pkg/platform/sentinel"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemoryStore()
}

func (s *InMemoryStoreSuite) newOperation(userID uuid.UUID, purpose provider.Purpose) Operation {
	return Operation{
		OperationID: uuid.NewString(),
		UserID:      userID,
		Purpose:     purpose,
		State:       provider.StatePending,
		Result:      provider.ResultNone,
		CreatedAt:   time.Now(),
		ExpiresAt:   time.Now().Add(5 * time.Minute),
	}
}

func (s *InMemoryStoreSuite) TestBind() {
	ctx := context.Background()
	userID := uuid.New()

	s.Run("binds and resolves", func() {
		op := s.newOperation(userID, provider.PurposeLogin)
		s.Require().NoError(s.store.Bind(ctx, op))

		found, err := s.store.FindByOperationID(ctx, op.OperationID)
		s.NoError(err)
		s.Equal(op.UserID, found.UserID)

		active, err := s.store.FindActiveByUser(ctx, userID, provider.PurposeLogin)
		s.NoError(err)
		s.Equal(op.OperationID, active.OperationID)
	})

	s.Run("second non-terminal bind for same purpose conflicts", func() {
		err := s.store.Bind(ctx, s.newOperation(userID, provider.PurposeLogin))
		s.ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("different purpose binds fine", func() {
		s.NoError(s.store.Bind(ctx, s.newOperation(userID, provider.PurposeEnrollment)))
	})

	s.Run("rebind allowed after terminal transition", func() {
		active, err := s.store.FindActiveByUser(ctx, userID, provider.PurposeLogin)
		s.Require().NoError(err)

		now := time.Now()
		s.Require().NoError(s.store.MarkTerminal(ctx, active.OperationID, provider.StateCompleted, provider.ResultSuccess, &now))
		s.NoError(s.store.Bind(ctx, s.newOperation(userID, provider.PurposeLogin)))
	})
}

func (s *InMemoryStoreSuite) TestMarkTerminal() {
	ctx := context.Background()
	userID := uuid.New()
	op := s.newOperation(userID, provider.PurposeLogin)
	s.Require().NoError(s.store.Bind(ctx, op))

	s.Run("transitions pending to terminal and clears the active binding", func() {
		s.Require().NoError(s.store.MarkTerminal(ctx, op.OperationID, provider.StateFailed, provider.ResultFailure, nil))

		found, err := s.store.FindByOperationID(ctx, op.OperationID)
		s.Require().NoError(err)
		s.Equal(provider.StateFailed, found.State)

		_, err = s.store.FindActiveByUser(ctx, userID, provider.PurposeLogin)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("terminal states are absorbing", func() {
		now := time.Now()
		err := s.store.MarkTerminal(ctx, op.OperationID, provider.StateCompleted, provider.ResultSuccess, &now)
		s.ErrorIs(err, sentinel.ErrTerminal)

		found, err := s.store.FindByOperationID(ctx, op.OperationID)
		s.Require().NoError(err)
		s.Equal(provider.StateFailed, found.State, "state must not change after terminal")
	})

	s.Run("unknown operation is not found", func() {
		err := s.store.MarkTerminal(ctx, "missing", provider.StateExpired, provider.ResultNone, nil)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *InMemoryStoreSuite) TestFindActiveByUserExpired() {
	ctx := context.Background()
	userID := uuid.New()

	op := s.newOperation(userID, provider.PurposeLogin)
	op.ExpiresAt = time.Now().Add(-time.Minute)
	s.Require().NoError(s.store.Bind(ctx, op))

	_, err := s.store.FindActiveByUser(ctx, userID, provider.PurposeLogin)
	s.ErrorIs(err, sentinel.ErrExpired)
}

func (s *InMemoryStoreSuite) TestDeleteExpired() {
	ctx := context.Background()
	now := time.Now()

	expired := s.newOperation(uuid.New(), provider.PurposeLogin)
	expired.ExpiresAt = now.Add(-time.Minute)
	fresh := s.newOperation(uuid.New(), provider.PurposeLogin)

	s.Require().NoError(s.store.Bind(ctx, expired))
	s.Require().NoError(s.store.Bind(ctx, fresh))

	deleted, err := s.store.DeleteExpired(ctx, now)
	s.Require().NoError(err)
	s.Equal(1, deleted)

	_, err = s.store.FindByOperationID(ctx, expired.OperationID)
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.FindByOperationID(ctx, fresh.OperationID)
	s.NoError(err)
}

// Concurrent binds for the same user must produce exactly one winner.
func (s *InMemoryStoreSuite) TestConcurrentBind() {
	ctx := context.Background()
	userID := uuid.New()

	const goroutines = 32
	var wg sync.WaitGroup
	conflicts := make(chan error, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conflicts <- s.store.Bind(ctx, s.newOperation(userID, provider.PurposeLogin))
		}()
	}
	wg.Wait()
	close(conflicts)

	winners := 0
	for err := range conflicts {
		if err == nil {
			winners++
		} else {
			s.ErrorIs(err, sentinel.ErrConflict)
		}
	}
	s.Equal(1, winners)
}
