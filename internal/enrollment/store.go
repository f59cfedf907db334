package enrollment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store persists enrollment records. Implementations return
// pkg/platform/sentinel errors; the service translates them.
type Store interface {
	// Save inserts a new record. It fails with sentinel.ErrConflict when
	// the user already holds a non-terminal record.
	Save(ctx context.Context, rec Record) error
	// FindLatestByUser returns the user's most recent record.
	FindLatestByUser(ctx context.Context, userID uuid.UUID) (Record, error)
	// FindCompletedByUser returns the user's completed record, if any.
	FindCompletedByUser(ctx context.Context, userID uuid.UUID) (Record, error)
	// UpdateStatus transitions a record out of initiated. Terminal records
	// are absorbing (sentinel.ErrTerminal).
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status, completedAt *time.Time) error
}
