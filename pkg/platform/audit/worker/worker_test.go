package worker

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verigate/pkg/platform/audit"
	"verigate/pkg/platform/audit/store/memory"
)

func TestPipelinePersistsEvents(t *testing.T) {
	store := memory.NewInMemoryStore()
	p := NewPipeline(store, 8, nil)

	userID := uuid.New()
	require.NoError(t, p.Emit(context.Background(), audit.Event{
		Timestamp: time.Now(),
		Action:    audit.EventLoginVerified,
		UserID:    userID,
	}))
	require.NoError(t, p.Emit(context.Background(), audit.Event{
		Timestamp: time.Now(),
		Action:    audit.EventLoginRejected,
		UserID:    userID,
		Severity:  audit.SeverityCritical,
	}))

	require.NoError(t, p.Close())

	events, err := store.ListByUser(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, audit.EventLoginVerified, events[0].Action)
	assert.Equal(t, audit.EventLoginRejected, events[1].Action)
}

func TestPipelineDropsWhenFull(t *testing.T) {
	// No worker attached so the buffer never drains.
	p := &Pipeline{inbox: make(chan audit.Event, 1), cancel: func() {}, done: make(chan struct{})}
	close(p.done)

	require.NoError(t, p.Emit(context.Background(), audit.Event{Action: audit.EventLoginInitiated}))
	err := p.Emit(context.Background(), audit.Event{Action: audit.EventLoginInitiated})
	assert.ErrorIs(t, err, ErrInboxFull)
}

func TestPipelineCloseIsIdempotent(t *testing.T) {
	p := NewPipeline(memory.NewInMemoryStore(), 1, nil)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
}

func TestListRecentNewestFirst(t *testing.T) {
	store := memory.NewInMemoryStore()
	p := NewPipeline(store, 8, nil)

	for _, action := range []audit.Action{
		audit.EventEnrollmentInitiated,
		audit.EventEnrollmentCompleted,
		audit.EventLoginInitiated,
	} {
		require.NoError(t, p.Emit(context.Background(), audit.Event{
			Timestamp: time.Now(),
			Action:    action,
			UserID:    uuid.New(),
		}))
	}
	require.NoError(t, p.Close())

	recent, err := store.ListRecent(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, audit.EventLoginInitiated, recent[0].Action)
	assert.Equal(t, audit.EventEnrollmentCompleted, recent[1].Action)
}
