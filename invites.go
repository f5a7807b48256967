package loomsync

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/loomhq/loomsync/pkg/constants"
	"github.com/loomhq/loomsync/pkg/logger"
	"github.com/loomhq/loomsync/pkg/models"
	"github.com/loomhq/loomsync/pkg/store"
)

// Invites drives the invitation lifecycle. Each logical invite is stored
// twice under one shared id: once below its workspace for team-management
// views, once below the target's escaped email for the invitee's queries.
// The two copies are written sequentially with no transaction; a crash
// between them leaves a divergence that Client.Reconcile repairs.
//
// Status transitions are one-way: pending to accepted, or pending to
// rejected. Responding to an invite that is already terminal fails with
// ErrInviteResolved.
type Invites struct {
	store store.Store
	id    *Identity
	log   logger.Logger
}

func newInvites(st store.Store, id *Identity, log logger.Logger) *Invites {
	return &Invites{store: st, id: id, log: log}
}

// Send invites email to the workspace. The invite carries a denormalized
// snapshot of the workspace name and a single client-side timestamp shared
// verbatim by both copies.
func (inv *Invites) Send(ctx context.Context, workspaceID, email string) (*models.Invite, error) {
	p := inv.id.Principal()
	if p == nil {
		return nil, fmt.Errorf("%w: send invite", constants.ErrUnauthenticated)
	}
	if workspaceID == "" || email == "" {
		return nil, fmt.Errorf("%w: workspace id and email required", constants.ErrInvalidArgument)
	}

	nameRaw, err := inv.store.Read(ctx, store.Join(store.WorkspacePath(workspaceID), "name"))
	if err != nil {
		return nil, err
	}
	var workspaceName string
	if nameRaw != nil {
		if err := json.Unmarshal(nameRaw, &workspaceName); err != nil {
			return nil, err
		}
	}

	inviteID := inv.store.PushKey(store.WorkspaceInvitesPath(workspaceID))
	timestamp := models.Millis(time.Now())

	workspaceCopy := models.WorkspaceInvite{
		Email:        email,
		Status:       models.StatusPending,
		InvitedBy:    p.ID,
		InviterEmail: p.Email,
		Timestamp:    timestamp,
	}
	if err := inv.store.Write(ctx, store.WorkspaceInvitePath(workspaceID, inviteID), workspaceCopy); err != nil {
		return nil, err
	}

	indexCopy := models.Invite{
		WorkspaceID:   workspaceID,
		WorkspaceName: workspaceName,
		InvitedBy:     p.ID,
		InviterEmail:  p.Email,
		Status:        models.StatusPending,
		Timestamp:     timestamp,
	}
	if err := inv.store.Write(ctx, store.InvitePath(email, inviteID), indexCopy); err != nil {
		return nil, err
	}

	indexCopy.ID = inviteID
	inv.log.Info("invite sent", "workspace", workspaceID, "invite", inviteID)
	return &indexCopy, nil
}

// Pending lists the current principal's pending invites from the global
// email index. Signed out means an empty list, not an error.
func (inv *Invites) Pending(ctx context.Context) ([]models.Invite, error) {
	p := inv.id.Principal()
	if p == nil {
		return []models.Invite{}, nil
	}

	raw, err := inv.store.Read(ctx, store.InviteIndexPath(p.Email))
	if err != nil {
		return nil, err
	}
	index, err := decodeInviteIndex(raw)
	if err != nil {
		return nil, err
	}

	pending := index[:0]
	for _, invite := range index {
		if invite.Status == models.StatusPending {
			pending = append(pending, invite)
		}
	}
	return pending, nil
}

// Respond applies the invitee's decision. On accept it writes the new
// membership into the workspace and into the invitee's index; in all cases
// it marks both invite copies with the terminal status. Up to four
// sequential writes, no rollback on partial failure.
func (inv *Invites) Respond(ctx context.Context, inviteID, workspaceID string, action models.InviteAction) error {
	p := inv.id.Principal()
	if p == nil {
		return fmt.Errorf("%w: respond to invite", constants.ErrUnauthenticated)
	}
	if inviteID == "" || workspaceID == "" {
		return fmt.Errorf("%w: invite id and workspace id required", constants.ErrInvalidArgument)
	}
	if action != models.ActionAccept && action != models.ActionReject {
		return fmt.Errorf("%w: unknown action %q", constants.ErrInvalidArgument, action)
	}

	raw, err := inv.store.Read(ctx, store.InvitePath(p.Email, inviteID))
	if err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("%w: invite %s not found", constants.ErrInvalidArgument, inviteID)
	}
	var invite models.Invite
	if err := json.Unmarshal(raw, &invite); err != nil {
		return err
	}
	if invite.Status.Terminal() {
		return fmt.Errorf("%w: invite %s is %s", constants.ErrInviteResolved, inviteID, invite.Status)
	}

	if action == models.ActionAccept {
		memberPath := store.Join(store.WorkspacePath(workspaceID), "members", p.ID)
		if err := inv.store.Write(ctx, memberPath, models.RoleMember); err != nil {
			return err
		}

		entry := map[string]any{
			"name":     invite.WorkspaceName,
			"role":     models.RoleMember,
			"joinedAt": store.ServerTimestamp(),
		}
		if err := inv.store.Write(ctx, store.MembershipPath(p.ID, workspaceID), entry); err != nil {
			return err
		}
	}

	status := action.Status()
	statusPath := store.Join(store.WorkspaceInvitePath(workspaceID, inviteID), "status")
	if err := inv.store.Write(ctx, statusPath, status); err != nil {
		return err
	}
	indexStatusPath := store.Join(store.InvitePath(p.Email, inviteID), "status")
	if err := inv.store.Write(ctx, indexStatusPath, status); err != nil {
		return err
	}

	inv.log.Info("invite resolved", "invite", inviteID, "status", status)
	return nil
}

// ListForWorkspace reads a workspace's invite subtree unfiltered, for
// team-management views.
func (inv *Invites) ListForWorkspace(ctx context.Context, workspaceID string) ([]models.WorkspaceInvite, error) {
	if workspaceID == "" {
		return nil, fmt.Errorf("%w: workspace id required", constants.ErrInvalidArgument)
	}

	raw, err := inv.store.Read(ctx, store.WorkspaceInvitesPath(workspaceID))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return []models.WorkspaceInvite{}, nil
	}

	var index map[string]models.WorkspaceInvite
	if err := json.Unmarshal(raw, &index); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(index))
	for id := range index {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	invites := make([]models.WorkspaceInvite, 0, len(index))
	for _, id := range ids {
		invite := index[id]
		invite.ID = id
		invites = append(invites, invite)
	}
	return invites, nil
}

// decodeInviteIndex turns the raw global index subtree into invites in
// store-native key order.
func decodeInviteIndex(raw json.RawMessage) ([]models.Invite, error) {
	if raw == nil {
		return []models.Invite{}, nil
	}

	var index map[string]models.Invite
	if err := json.Unmarshal(raw, &index); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(index))
	for id := range index {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	invites := make([]models.Invite, 0, len(index))
	for _, id := range ids {
		invite := index[id]
		invite.ID = id
		invites = append(invites, invite)
	}
	return invites, nil
}
