package audit

import (
	"context"

	"github.com/google/uuid"
)

// Store persists audit events for local querying. Used when no broker is
// configured; with Kafka the downstream pipeline owns persistence.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}
