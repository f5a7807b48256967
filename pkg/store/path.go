package store

import "strings"

// The backing keyspace treats "." as a structural character, so an email
// used as a path segment has every dot replaced with a comma. The scheme is
// not bijective: "a.b@x.com" and "a,b@x.com" escape to the same key. The
// collision is inherited from the original data layout and left as is.

// EscapeEmail turns an email address into a store-safe key segment.
func EscapeEmail(email string) string {
	return strings.ReplaceAll(email, ".", ",")
}

// UnescapeEmail reverses EscapeEmail under the assumption the original
// contained no literal commas.
func UnescapeEmail(key string) string {
	return strings.ReplaceAll(key, ",", ".")
}

// Join builds a slash-separated path from its segments.
func Join(segments ...string) string {
	return strings.Join(segments, "/")
}

// Canonical paths of the persisted layout. Keys are stable across clients.

func UserProfilePath(uid string) string {
	return Join("users", uid, "profile")
}

func UserWorkspacesPath(uid string) string {
	return Join("users", uid, "workspaces")
}

func MembershipPath(uid, workspaceID string) string {
	return Join("users", uid, "workspaces", workspaceID)
}

func WorkspacePath(workspaceID string) string {
	return Join("workspaces", workspaceID)
}

func WorkspacesPath() string {
	return "workspaces"
}

func ContentPath(workspaceID string) string {
	return Join("workspaces", workspaceID, "content")
}

func WorkspaceInvitesPath(workspaceID string) string {
	return Join("workspaces", workspaceID, "invites")
}

func WorkspaceInvitePath(workspaceID, inviteID string) string {
	return Join("workspaces", workspaceID, "invites", inviteID)
}

func InviteIndexPath(email string) string {
	return Join("invites", EscapeEmail(email))
}

func InvitePath(email, inviteID string) string {
	return Join("invites", EscapeEmail(email), inviteID)
}
