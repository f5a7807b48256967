// Package models defines the persisted data model of the workspace sync
// layer. Everything here is stored as JSON under slash-separated paths in the
// remote store; see the path helpers in pkg/store.
package models

import (
	"encoding/json"
	"time"
)

// Role of a workspace member.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleMember Role = "member"
)

// InviteStatus is the lifecycle state of an invitation. Transitions out of
// StatusPending are terminal and one-way.
type InviteStatus string

const (
	StatusPending  InviteStatus = "pending"
	StatusAccepted InviteStatus = "accepted"
	StatusRejected InviteStatus = "rejected"
)

// Terminal reports whether the status can no longer change.
func (s InviteStatus) Terminal() bool {
	return s == StatusAccepted || s == StatusRejected
}

// InviteAction is the response of an invitee to a pending invitation.
type InviteAction string

const (
	ActionAccept InviteAction = "accept"
	ActionReject InviteAction = "reject"
)

// Status returns the terminal status the action transitions to.
func (a InviteAction) Status() InviteStatus {
	if a == ActionAccept {
		return StatusAccepted
	}
	return StatusRejected
}

// Principal is an authenticated user identity.
type Principal struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Profile is the stored user profile at users/{uid}/profile.
type Profile struct {
	DisplayName string `json:"displayName,omitempty"`
	Email       string `json:"email"`
	PhotoURL    string `json:"photoURL,omitempty"`
	LastLogin   int64  `json:"lastLogin,omitempty"`
}

// Block is an opaque content block owned by the external editor. The sync
// layer never inspects its structure.
type Block = json.RawMessage

// Document is the replicated body of a workspace. It is replaced wholesale
// on every save; there is no partial-block diffing at this layer.
type Document struct {
	Title  string  `json:"title"`
	Blocks []Block `json:"blocks"`
}

// EmptyDocument is what loads resolve to when the content subtree is absent.
func EmptyDocument() Document {
	return Document{Title: "Untitled", Blocks: []Block{}}
}

// Workspace is the source-of-truth record at workspaces/{wsId}.
type Workspace struct {
	ID        string          `json:"-"`
	Name      string          `json:"name"`
	Owner     string          `json:"owner"`
	Members   map[string]Role `json:"members"`
	Content   Document        `json:"content"`
	CreatedAt int64           `json:"createdAt"`
	UpdatedAt int64           `json:"updatedAt"`
}

// Membership is the denormalized per-user index entry at
// users/{uid}/workspaces/{wsId}. It must stay consistent with
// Workspace.Members; divergence after a partial write is repaired by the
// reconciliation sweep.
type Membership struct {
	WorkspaceID string `json:"-"`
	Name        string `json:"name"`
	Role        Role   `json:"role"`
	JoinedAt    int64  `json:"joinedAt"`
}

// WorkspaceInvite is the workspace-scoped invite copy at
// workspaces/{wsId}/invites/{inviteId}.
type WorkspaceInvite struct {
	ID           string       `json:"-"`
	Email        string       `json:"email"`
	Status       InviteStatus `json:"status"`
	InvitedBy    string       `json:"invitedBy"`
	InviterEmail string       `json:"inviterEmail"`
	Timestamp    int64        `json:"timestamp"`
}

// Invite is the email-indexed invite copy at
// invites/{escapedEmail}/{inviteId}. It shares its id, status and timestamp
// with the WorkspaceInvite written in the same operation.
type Invite struct {
	ID            string       `json:"-"`
	WorkspaceID   string       `json:"workspaceId"`
	WorkspaceName string       `json:"workspaceName"`
	InvitedBy     string       `json:"invitedBy"`
	InviterEmail  string       `json:"inviterEmail"`
	Status        InviteStatus `json:"status"`
	Timestamp     int64        `json:"timestamp"`
}

// Millis converts a time to the unix-millisecond representation used for
// every persisted timestamp.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}
