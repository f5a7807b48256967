package loomsync

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/loomhq/loomsync/internal/localstate"
	"github.com/loomhq/loomsync/pkg/constants"
	"github.com/loomhq/loomsync/pkg/logger"
	"github.com/loomhq/loomsync/pkg/models"
	"github.com/loomhq/loomsync/pkg/store"
)

// Workspaces creates workspaces and maintains the per-user membership
// index that makes listing a user's workspaces a single subtree read.
type Workspaces struct {
	store store.Store
	id    *Identity
	log   logger.Logger

	state *localstate.State

	mu        sync.Mutex
	currentID string
}

func newWorkspaces(st store.Store, id *Identity, state *localstate.State, log logger.Logger) *Workspaces {
	return &Workspaces{
		store:     st,
		id:        id,
		log:       log,
		state:     state,
		currentID: state.CurrentWorkspaceID(),
	}
}

// Create allocates a workspace owned by the current principal and writes
// the owner's membership index entry.
//
// The two writes are sequential, not atomic: a failure after the first one
// leaves a workspace record without its index entry. That divergence is
// accepted here and repaired by Client.Reconcile.
func (w *Workspaces) Create(ctx context.Context, name string) (*models.Workspace, error) {
	p := w.id.Principal()
	if p == nil {
		return nil, fmt.Errorf("%w: create workspace", constants.ErrUnauthenticated)
	}

	workspaceID := w.store.PushKey(store.WorkspacesPath())

	record := map[string]any{
		"name":  name,
		"owner": p.ID,
		"members": map[string]models.Role{
			p.ID: models.RoleOwner,
		},
		"content": models.Document{
			Title:  name,
			Blocks: []models.Block{},
		},
		"createdAt": store.ServerTimestamp(),
		"updatedAt": store.ServerTimestamp(),
	}
	if err := w.store.Write(ctx, store.WorkspacePath(workspaceID), record); err != nil {
		return nil, err
	}

	entry := map[string]any{
		"name":     name,
		"role":     models.RoleOwner,
		"joinedAt": store.ServerTimestamp(),
	}
	if err := w.store.Write(ctx, store.MembershipPath(p.ID, workspaceID), entry); err != nil {
		return nil, err
	}

	created, err := w.Get(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	w.log.Info("workspace created", "workspace", workspaceID, "owner", p.ID)
	return created, nil
}

// List reads the membership index of the current principal. It returns an
// empty slice when signed out or when the subtree is absent, never an
// error for either case. Entries come back in store-native key order.
func (w *Workspaces) List(ctx context.Context) ([]models.Membership, error) {
	p := w.id.Principal()
	if p == nil {
		return []models.Membership{}, nil
	}

	raw, err := w.store.Read(ctx, store.UserWorkspacesPath(p.ID))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return []models.Membership{}, nil
	}

	var index map[string]models.Membership
	if err := json.Unmarshal(raw, &index); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(index))
	for id := range index {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	memberships := make([]models.Membership, 0, len(index))
	for _, id := range ids {
		entry := index[id]
		entry.WorkspaceID = id
		memberships = append(memberships, entry)
	}
	return memberships, nil
}

// Get is a point read. A missing workspace returns (nil, nil).
func (w *Workspaces) Get(ctx context.Context, workspaceID string) (*models.Workspace, error) {
	if workspaceID == "" {
		return nil, fmt.Errorf("%w: workspace id required", constants.ErrInvalidArgument)
	}

	raw, err := w.store.Read(ctx, store.WorkspacePath(workspaceID))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}

	workspace := &models.Workspace{}
	if err := json.Unmarshal(raw, workspace); err != nil {
		return nil, err
	}
	workspace.ID = workspaceID
	return workspace, nil
}

// SetCurrent records the active workspace for this device, durably, so the
// next session resumes where this one left off. Purely local state.
func (w *Workspaces) SetCurrent(workspaceID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.currentID = workspaceID
	return w.state.SetCurrentWorkspaceID(workspaceID)
}

// CurrentID returns the active workspace id, restored from durable local
// state at session start.
func (w *Workspaces) CurrentID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.currentID
}
