package loomsync_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomhq/loomsync/pkg/constants"
	"github.com/loomhq/loomsync/pkg/models"
	"github.com/loomhq/loomsync/pkg/store"
)

func TestNotificationsCount(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	owner := newTestClient(t, mem, "u1", "owner@co.com")
	invitee := newTestClient(t, mem, "u2", "a.lee@co.com")

	var counts []int
	_, err := invitee.Notifications().Subscribe(ctx, func(pending int) {
		counts = append(counts, pending)
	})
	require.NoError(t, err)

	// Current state delivered on subscribe.
	assert.Equal(t, []int{0}, counts)

	ws, err := owner.Workspaces().Create(ctx, "Roadmap")
	require.NoError(t, err)
	sent, err := owner.Invites().Send(ctx, ws.ID, "a.lee@co.com")
	require.NoError(t, err)

	require.NotEmpty(t, counts)
	assert.Equal(t, 1, counts[len(counts)-1])

	require.NoError(t, invitee.Invites().Respond(ctx, sent.ID, ws.ID, models.ActionAccept))
	assert.Equal(t, 0, counts[len(counts)-1])

	// A second invite raises the count again.
	_, err = owner.Invites().Send(ctx, ws.ID, "a.lee@co.com")
	require.NoError(t, err)
	assert.Equal(t, 1, counts[len(counts)-1])
}

func TestNotificationsUnauthenticated(t *testing.T) {
	c := newSignedOutClient(t, store.NewMemoryStore())
	_, err := c.Notifications().Subscribe(context.Background(), func(int) {})
	assert.ErrorIs(t, err, constants.ErrUnauthenticated)
}

func TestNotificationsSingleSubscription(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t, store.NewMemoryStore(), "u1", "a@b.com")

	_, err := c.Notifications().Subscribe(ctx, func(int) {})
	require.NoError(t, err)

	_, err = c.Notifications().Subscribe(ctx, func(int) {})
	assert.ErrorIs(t, err, constants.ErrAlreadySubscribed)

	c.Notifications().Unsubscribe()
	_, err = c.Notifications().Subscribe(ctx, func(int) {})
	assert.NoError(t, err)
}

func TestNotificationsStopDelivery(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	owner := newTestClient(t, mem, "u1", "owner@co.com")
	invitee := newTestClient(t, mem, "u2", "a.lee@co.com")

	var counts []int
	_, err := invitee.Notifications().Subscribe(ctx, func(pending int) {
		counts = append(counts, pending)
	})
	require.NoError(t, err)

	invitee.Notifications().Unsubscribe()
	seen := len(counts)

	ws, err := owner.Workspaces().Create(ctx, "Roadmap")
	require.NoError(t, err)
	_, err = owner.Invites().Send(ctx, ws.ID, "a.lee@co.com")
	require.NoError(t, err)

	assert.Len(t, counts, seen)
}
