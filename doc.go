// Package loomsync is the client SDK that keeps a multi-user collaborative
// workspace consistent across sessions through a remote, eventually
// consistent document store.
//
// A Client owns one store connection and exposes the sync components:
//
//	c, err := loomsync.New(ctx, cfg)
//	...
//	ws, err := c.Workspaces().Create(ctx, "Roadmap")
//	sub, err := c.Content().Subscribe(ctx, ws.ID, onDocument)
//
// The layer is deliberately simple about conflicts: documents are replaced
// wholesale under last-writer-wins, and the denormalized indexes (per-user
// membership, per-email invites) are maintained with best-effort sequential
// writes. Divergence left behind by a partial failure is repaired by
// Client.Reconcile rather than by rollback, since the store has no
// multi-path transactions.
package loomsync
