package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/furniture-store/internal/domain"
)

func TestTimelineRepository_PostgresAppendAndList(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	now := time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()
	timeline := store.Timeline()

	created := now.Add(-time.Minute)
	require.NoError(t, timeline.Append(ctx, domain.TimelineEvent{
		OrderID:  "timeline-order",
		Type:     domain.EventOrderCreated,
		Reason:   "created",
		Occurred: created,
	}))
	// нулевой Occurred берётся из часов store
	require.NoError(t, timeline.Append(ctx, domain.TimelineEvent{
		OrderID: "timeline-order",
		Type:    domain.EventOrderUpdated,
	}))
	require.NoError(t, timeline.Append(ctx, domain.TimelineEvent{
		OrderID: "other-order",
		Type:    domain.EventOrderCreated,
	}))

	events, err := timeline.List(ctx, "timeline-order")
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, domain.EventOrderCreated, events[0].Type)
	assert.Equal(t, "created", events[0].Reason)
	assert.True(t, events[0].Occurred.Equal(created))
	assert.Equal(t, time.UTC, events[0].Occurred.Location())

	assert.Equal(t, domain.EventOrderUpdated, events[1].Type)
	assert.True(t, events[1].Occurred.Equal(now))
}

func TestTimelineRepository_PostgresJoinsTransaction(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ctx := context.Background()

	err := store.WithinTx(ctx, func(ctx context.Context, tx domain.Store) error {
		require.NoError(t, tx.Timeline().Append(ctx, domain.TimelineEvent{OrderID: "tx-order", Type: domain.EventOrderCreated}))
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	events, err := store.Timeline().List(ctx, "tx-order")
	require.NoError(t, err)
	assert.Empty(t, events, "rolled back events must disappear")
}
