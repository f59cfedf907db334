// Package registry binds external verification operation identifiers to
// local user identity and purpose. It is the only mutable shared state in
// the core: stores must provide atomic check-and-bind semantics so two
// concurrent initiations cannot create duplicate provider operations for
// the same user.
package registry

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"verigate/internal/provider"
	dErrors "verigate/pkg/domain-errors"
	"verigate/pkg/platform/sentinel"
)

// Operation binds a provider operation to a local user and purpose.
// State transitions only Pending -> {Completed, Failed, Expired} and never
// revert; CompletedAt is set if and only if the state is Completed.
type Operation struct {
	OperationID string
	UserID      uuid.UUID
	Purpose     provider.Purpose
	State       provider.State
	Result      provider.Result
	CreatedAt   time.Time
	ExpiresAt   time.Time
	CompletedAt *time.Time
}

// Terminal reports whether the operation reached an absorbing state.
func (o Operation) Terminal() bool { return o.State.Terminal() }

// Store is the persistence contract. Implementations return sentinel
// errors; the Registry translates them into coded domain errors.
type Store interface {
	// Bind records the operation unless the user already holds a
	// non-terminal operation of the same purpose (sentinel.ErrConflict).
	// The check and the write are atomic.
	Bind(ctx context.Context, op Operation) error
	FindByOperationID(ctx context.Context, operationID string) (Operation, error)
	// FindActiveByUser returns the user's current non-terminal operation
	// for the purpose. It fails with sentinel.ErrNotFound when there is
	// none and sentinel.ErrExpired when the binding lapsed before the
	// sweep collected it.
	FindActiveByUser(ctx context.Context, userID uuid.UUID, purpose provider.Purpose) (Operation, error)
	// MarkTerminal transitions the operation into a terminal state. It
	// fails with sentinel.ErrTerminal when the operation already is.
	MarkTerminal(ctx context.Context, operationID string, state provider.State, result provider.Result, completedAt *time.Time) error
	Delete(ctx context.Context, operationID string) error
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// Registry exposes the operation binding operations coordinators use.
type Registry struct {
	store Store
}

func New(store Store) *Registry {
	return &Registry{store: store}
}

// Bind creates a new pending binding for the user.
func (r *Registry) Bind(ctx context.Context, operationID string, userID uuid.UUID, purpose provider.Purpose, now, expiresAt time.Time) error {
	if operationID == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "operation id is required")
	}
	if !purpose.Valid() {
		return dErrors.New(dErrors.CodeInvalidInput, "unknown operation purpose")
	}

	err := r.store.Bind(ctx, Operation{
		OperationID: operationID,
		UserID:      userID,
		Purpose:     purpose,
		State:       provider.StatePending,
		Result:      provider.ResultNone,
		CreatedAt:   now,
		ExpiresAt:   expiresAt,
	})
	if errors.Is(err, sentinel.ErrConflict) {
		return dErrors.Wrap(err, dErrors.CodeConflict, "user already has a pending operation for this purpose")
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to bind operation")
	}
	return nil
}

// ResolveByOperationID returns the binding for an operation identifier.
func (r *Registry) ResolveByOperationID(ctx context.Context, operationID string) (Operation, error) {
	op, err := r.store.FindByOperationID(ctx, operationID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return Operation{}, dErrors.Wrap(err, dErrors.CodeNotFound, "unknown operation")
	}
	if err != nil {
		return Operation{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve operation")
	}
	return op, nil
}

// ResolveByUserID returns the user's active operation for the purpose.
func (r *Registry) ResolveByUserID(ctx context.Context, userID uuid.UUID, purpose provider.Purpose) (Operation, error) {
	op, err := r.store.FindActiveByUser(ctx, userID, purpose)
	if errors.Is(err, sentinel.ErrNotFound) {
		return Operation{}, dErrors.Wrap(err, dErrors.CodeNotFound, "no active operation for user")
	}
	if errors.Is(err, sentinel.ErrExpired) {
		return Operation{}, dErrors.Wrap(err, dErrors.CodeExpired, "active operation expired")
	}
	if err != nil {
		return Operation{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve operation")
	}
	return op, nil
}

// MarkTerminal records the operation's final state. Terminal states are
// absorbing: a second transition is a provider anomaly, not a valid update.
func (r *Registry) MarkTerminal(ctx context.Context, operationID string, state provider.State, result provider.Result, completedAt *time.Time) error {
	if !state.Terminal() {
		return dErrors.New(dErrors.CodeInvalidInput, "state is not terminal")
	}
	if state == provider.StateCompleted && completedAt == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "completed operations require a completion time")
	}
	if state != provider.StateCompleted && completedAt != nil {
		return dErrors.New(dErrors.CodeInvalidInput, "only completed operations carry a completion time")
	}

	err := r.store.MarkTerminal(ctx, operationID, state, result, completedAt)
	if errors.Is(err, sentinel.ErrTerminal) {
		return dErrors.Wrap(err, dErrors.CodeInvariantViolation, "operation is already terminal")
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeNotFound, "unknown operation")
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to mark operation terminal")
	}
	return nil
}

// Clear removes a binding once the coordinator is done with it.
func (r *Registry) Clear(ctx context.Context, operationID string) error {
	err := r.store.Delete(ctx, operationID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to clear operation")
	}
	return nil
}

// DeleteExpired garbage-collects bindings past their expiry.
func (r *Registry) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	return r.store.DeleteExpired(ctx, now)
}
