package loomsync

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/loomhq/loomsync/pkg/models"
	"github.com/loomhq/loomsync/pkg/store"
)

// ReconcileReport summarizes one consistency sweep.
type ReconcileReport struct {
	WorkspacesScanned   int
	MembershipsRepaired int
	InvitesRepaired     int
}

// workspaceRecord is the full workspace node as stored, including the
// invite subtree that lives under it.
type workspaceRecord struct {
	Name      string                            `json:"name"`
	Owner     string                            `json:"owner"`
	Members   map[string]models.Role            `json:"members"`
	CreatedAt int64                             `json:"createdAt"`
	Invites   map[string]models.WorkspaceInvite `json:"invites"`
}

// Reconcile repairs the denormalized indexes from the source-of-truth
// workspace records: every member gets a matching membership index entry,
// every workspace invite gets a matching global index copy. The pass is
// idempotent and purely re-derivable, so it is safe to run at any time and
// after any partial multi-write failure.
//
// Divergence in the other direction (an index entry whose workspace no
// longer vouches for it) is reported in logs but not deleted; this layer
// never deletes.
func (c *Client) Reconcile(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport

	raw, err := c.store.Read(ctx, store.WorkspacesPath())
	if err != nil {
		return report, err
	}
	if raw == nil {
		return report, nil
	}

	var workspaces map[string]workspaceRecord
	if err := json.Unmarshal(raw, &workspaces); err != nil {
		return report, err
	}

	ids := make([]string, 0, len(workspaces))
	for id := range workspaces {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, workspaceID := range ids {
		record := workspaces[workspaceID]
		report.WorkspacesScanned++

		repaired, err := c.reconcileMemberships(ctx, workspaceID, record)
		if err != nil {
			return report, err
		}
		report.MembershipsRepaired += repaired

		repaired, err = c.reconcileInvites(ctx, workspaceID, record)
		if err != nil {
			return report, err
		}
		report.InvitesRepaired += repaired
	}

	c.log.Info("reconcile finished",
		"workspaces", report.WorkspacesScanned,
		"memberships_repaired", report.MembershipsRepaired,
		"invites_repaired", report.InvitesRepaired,
	)
	return report, nil
}

func (c *Client) reconcileMemberships(ctx context.Context, workspaceID string, record workspaceRecord) (int, error) {
	repaired := 0
	for uid, role := range record.Members {
		raw, err := c.store.Read(ctx, store.MembershipPath(uid, workspaceID))
		if err != nil {
			return repaired, err
		}

		var current models.Membership
		if raw != nil {
			if err := json.Unmarshal(raw, &current); err != nil {
				return repaired, err
			}
			if current.Name == record.Name && current.Role == role {
				continue
			}
		}

		joinedAt := current.JoinedAt
		if joinedAt == 0 {
			// Entry was missing entirely; the workspace creation time is
			// the best available approximation.
			joinedAt = record.CreatedAt
		}
		entry := models.Membership{Name: record.Name, Role: role, JoinedAt: joinedAt}
		if err := c.store.Write(ctx, store.MembershipPath(uid, workspaceID), entry); err != nil {
			return repaired, err
		}

		c.log.Warn("membership index repaired", "workspace", workspaceID, "uid", uid)
		repaired++
	}
	return repaired, nil
}

func (c *Client) reconcileInvites(ctx context.Context, workspaceID string, record workspaceRecord) (int, error) {
	repaired := 0
	for inviteID, workspaceCopy := range record.Invites {
		raw, err := c.store.Read(ctx, store.InvitePath(workspaceCopy.Email, inviteID))
		if err != nil {
			return repaired, err
		}

		if raw != nil {
			var current models.Invite
			if err := json.Unmarshal(raw, &current); err != nil {
				return repaired, err
			}
			if current.Status == workspaceCopy.Status &&
				current.WorkspaceID == workspaceID &&
				current.WorkspaceName == record.Name {
				continue
			}
		}

		expected := models.Invite{
			WorkspaceID:   workspaceID,
			WorkspaceName: record.Name,
			InvitedBy:     workspaceCopy.InvitedBy,
			InviterEmail:  workspaceCopy.InviterEmail,
			Status:        workspaceCopy.Status,
			Timestamp:     workspaceCopy.Timestamp,
		}
		if err := c.store.Write(ctx, store.InvitePath(workspaceCopy.Email, inviteID), expected); err != nil {
			return repaired, err
		}

		c.log.Warn("invite index repaired", "workspace", workspaceID, "invite", inviteID)
		repaired++
	}
	return repaired, nil
}
