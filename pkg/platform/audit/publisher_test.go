package audit

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryPublisher(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryPublisher()
	userID := uuid.New()

	require.NoError(t, p.Emit(ctx, Event{
		Action:      EventLoginVerified,
		UserID:      userID,
		OperationID: "op-1",
	}))
	require.NoError(t, p.Emit(ctx, Event{
		Action:   EventLoginRejected,
		UserID:   userID,
		Reason:   "liveness check failed",
		Severity: SeverityWarning,
	}))

	events := p.Events()
	require.Len(t, events, 2)
	assert.False(t, events[0].Timestamp.IsZero(), "timestamp defaulted on emit")

	rejected := p.ByAction(EventLoginRejected)
	require.Len(t, rejected, 1)
	assert.Equal(t, "liveness check failed", rejected[0].Reason)
}

func TestActionCategory(t *testing.T) {
	assert.Equal(t, CategorySecurity, EventLoginUnverifiedCompletion.Category())
	assert.Equal(t, CategoryOperations, EventTokenRefreshed.Category())
	assert.Equal(t, CategoryOperations, Action("unknown_action").Category())
}
