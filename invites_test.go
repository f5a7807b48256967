package loomsync_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomhq/loomsync/pkg/constants"
	"github.com/loomhq/loomsync/pkg/models"
	"github.com/loomhq/loomsync/pkg/store"
)

func TestSendInvite(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	owner := newTestClient(t, mem, "u1", "owner@co.com")

	ws, err := owner.Workspaces().Create(ctx, "Roadmap")
	require.NoError(t, err)

	invite, err := owner.Invites().Send(ctx, ws.ID, "a.lee@co.com")
	require.NoError(t, err)
	require.NotNil(t, invite)
	assert.Equal(t, models.StatusPending, invite.Status)
	assert.Equal(t, "Roadmap", invite.WorkspaceName)
	assert.Equal(t, "u1", invite.InvitedBy)
	assert.Equal(t, "owner@co.com", invite.InviterEmail)

	// The global index key uses the escaped email with literal commas.
	raw, err := mem.Read(ctx, "invites/a,lee@co,com/"+invite.ID)
	require.NoError(t, err)
	require.NotNil(t, raw)
	var indexCopy models.Invite
	require.NoError(t, json.Unmarshal(raw, &indexCopy))
	assert.Equal(t, models.StatusPending, indexCopy.Status)
	assert.Equal(t, ws.ID, indexCopy.WorkspaceID)

	// Both copies share id, status and timestamp.
	raw, err = mem.Read(ctx, "workspaces/"+ws.ID+"/invites/"+invite.ID)
	require.NoError(t, err)
	require.NotNil(t, raw)
	var workspaceCopy models.WorkspaceInvite
	require.NoError(t, json.Unmarshal(raw, &workspaceCopy))
	assert.Equal(t, "a.lee@co.com", workspaceCopy.Email)
	assert.Equal(t, indexCopy.Status, workspaceCopy.Status)
	assert.Equal(t, indexCopy.Timestamp, workspaceCopy.Timestamp)
}

func TestSendInviteUnauthenticated(t *testing.T) {
	c := newSignedOutClient(t, store.NewMemoryStore())
	_, err := c.Invites().Send(context.Background(), "w1", "a@b.com")
	assert.ErrorIs(t, err, constants.ErrUnauthenticated)
}

func TestSendInviteRequiresArguments(t *testing.T) {
	c := newTestClient(t, store.NewMemoryStore(), "u1", "a@b.com")

	_, err := c.Invites().Send(context.Background(), "", "a@b.com")
	assert.ErrorIs(t, err, constants.ErrInvalidArgument)

	_, err = c.Invites().Send(context.Background(), "w1", "")
	assert.ErrorIs(t, err, constants.ErrInvalidArgument)
}

func TestPendingInvites(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	owner := newTestClient(t, mem, "u1", "owner@co.com")
	invitee := newTestClient(t, mem, "u2", "a.lee@co.com")

	ws, err := owner.Workspaces().Create(ctx, "Roadmap")
	require.NoError(t, err)

	sent, err := owner.Invites().Send(ctx, ws.ID, "a.lee@co.com")
	require.NoError(t, err)

	pending, err := invitee.Invites().Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, sent.ID, pending[0].ID)
	assert.Equal(t, ws.ID, pending[0].WorkspaceID)
	assert.Equal(t, "Roadmap", pending[0].WorkspaceName)
}

func TestPendingInvitesSignedOut(t *testing.T) {
	c := newSignedOutClient(t, store.NewMemoryStore())
	pending, err := c.Invites().Pending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestAcceptInvite(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	owner := newTestClient(t, mem, "u1", "owner@co.com")
	invitee := newTestClient(t, mem, "u2", "a.lee@co.com")

	ws, err := owner.Workspaces().Create(ctx, "Roadmap")
	require.NoError(t, err)
	sent, err := owner.Invites().Send(ctx, ws.ID, "a.lee@co.com")
	require.NoError(t, err)

	require.NoError(t, invitee.Invites().Respond(ctx, sent.ID, ws.ID, models.ActionAccept))

	// Invitee appears in the workspace members as a plain member.
	after, err := owner.Workspaces().Get(ctx, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleMember, after.Members["u2"])
	assert.Equal(t, models.RoleOwner, after.Members["u1"])

	// Invitee's membership index entry exists.
	list, err := invitee.Workspaces().List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, ws.ID, list[0].WorkspaceID)
	assert.Equal(t, "Roadmap", list[0].Name)
	assert.Equal(t, models.RoleMember, list[0].Role)

	// Both invite copies are terminal.
	invites, err := owner.Invites().ListForWorkspace(ctx, ws.ID)
	require.NoError(t, err)
	require.Len(t, invites, 1)
	assert.Equal(t, models.StatusAccepted, invites[0].Status)

	raw, err := mem.Read(ctx, "invites/a,lee@co,com/"+sent.ID+"/status")
	require.NoError(t, err)
	assert.JSONEq(t, `"accepted"`, string(raw))

	// And the invite no longer shows as pending.
	pending, err := invitee.Invites().Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRejectInvite(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	owner := newTestClient(t, mem, "u1", "owner@co.com")
	invitee := newTestClient(t, mem, "u2", "a.lee@co.com")

	ws, err := owner.Workspaces().Create(ctx, "Roadmap")
	require.NoError(t, err)
	sent, err := owner.Invites().Send(ctx, ws.ID, "a.lee@co.com")
	require.NoError(t, err)

	require.NoError(t, invitee.Invites().Respond(ctx, sent.ID, ws.ID, models.ActionReject))

	// No membership was granted.
	after, err := owner.Workspaces().Get(ctx, ws.ID)
	require.NoError(t, err)
	assert.NotContains(t, after.Members, "u2")

	list, err := invitee.Workspaces().List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	invites, err := owner.Invites().ListForWorkspace(ctx, ws.ID)
	require.NoError(t, err)
	require.Len(t, invites, 1)
	assert.Equal(t, models.StatusRejected, invites[0].Status)
}

// Terminal invite statuses are one-way: a second response must not be able
// to move an invite to a different terminal value.
func TestRespondIsMonotonic(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	owner := newTestClient(t, mem, "u1", "owner@co.com")
	invitee := newTestClient(t, mem, "u2", "a.lee@co.com")

	ws, err := owner.Workspaces().Create(ctx, "Roadmap")
	require.NoError(t, err)
	sent, err := owner.Invites().Send(ctx, ws.ID, "a.lee@co.com")
	require.NoError(t, err)

	require.NoError(t, invitee.Invites().Respond(ctx, sent.ID, ws.ID, models.ActionAccept))

	err = invitee.Invites().Respond(ctx, sent.ID, ws.ID, models.ActionReject)
	assert.ErrorIs(t, err, constants.ErrInviteResolved)

	// Repeating the same action is also rejected.
	err = invitee.Invites().Respond(ctx, sent.ID, ws.ID, models.ActionAccept)
	assert.ErrorIs(t, err, constants.ErrInviteResolved)

	// Status stayed accepted.
	raw, err := mem.Read(ctx, "invites/a,lee@co,com/"+sent.ID+"/status")
	require.NoError(t, err)
	assert.JSONEq(t, `"accepted"`, string(raw))
}

func TestRespondUnknownInvite(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t, store.NewMemoryStore(), "u2", "a.lee@co.com")

	err := c.Invites().Respond(ctx, "nope", "w1", models.ActionAccept)
	assert.ErrorIs(t, err, constants.ErrInvalidArgument)
}

func TestRespondRejectsUnknownAction(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t, store.NewMemoryStore(), "u2", "a.lee@co.com")

	err := c.Invites().Respond(ctx, "i1", "w1", models.InviteAction("shrug"))
	assert.ErrorIs(t, err, constants.ErrInvalidArgument)
}

func TestListForWorkspaceUnfiltered(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	owner := newTestClient(t, mem, "u1", "owner@co.com")
	invitee := newTestClient(t, mem, "u2", "a.lee@co.com")

	ws, err := owner.Workspaces().Create(ctx, "Roadmap")
	require.NoError(t, err)

	first, err := owner.Invites().Send(ctx, ws.ID, "a.lee@co.com")
	require.NoError(t, err)
	_, err = owner.Invites().Send(ctx, ws.ID, "b.ray@co.com")
	require.NoError(t, err)

	require.NoError(t, invitee.Invites().Respond(ctx, first.ID, ws.ID, models.ActionReject))

	// Team-management views see resolved and pending invites alike.
	invites, err := owner.Invites().ListForWorkspace(ctx, ws.ID)
	require.NoError(t, err)
	assert.Len(t, invites, 2)
}
