package loomsync

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/loomhq/loomsync/pkg/constants"
	"github.com/loomhq/loomsync/pkg/logger"
	"github.com/loomhq/loomsync/pkg/models"
	"github.com/loomhq/loomsync/pkg/store"
)

// Content persists and streams the document body of a workspace. Saves
// replace the whole content subtree: the last completed write wins, with no
// merge and no version check, so two concurrent savers clobber each other.
// That trade-off is deliberate.
type Content struct {
	store store.Store
	log   logger.Logger

	mu   sync.Mutex
	subs map[string]*store.Subscription
}

func newContent(st store.Store, log logger.Logger) *Content {
	return &Content{
		store: st,
		log:   log,
		subs:  make(map[string]*store.Subscription),
	}
}

// Save overwrites the workspace's content and bumps updatedAt to server
// time. The two writes are sequential and not rolled back on failure.
func (c *Content) Save(ctx context.Context, workspaceID string, doc models.Document) error {
	if workspaceID == "" {
		return fmt.Errorf("%w: workspace id required", constants.ErrInvalidArgument)
	}
	if doc.Blocks == nil {
		doc.Blocks = []models.Block{}
	}

	if err := c.store.Write(ctx, store.ContentPath(workspaceID), doc); err != nil {
		return err
	}

	updatedAtPath := store.Join(store.WorkspacePath(workspaceID), "updatedAt")
	return c.store.Write(ctx, updatedAtPath, store.ServerTimestamp())
}

// Load is a point read. An empty workspace id or an absent subtree loads
// the default empty document; Load never fails for either.
func (c *Content) Load(ctx context.Context, workspaceID string) (models.Document, error) {
	if workspaceID == "" {
		return models.EmptyDocument(), nil
	}

	raw, err := c.store.Read(ctx, store.ContentPath(workspaceID))
	if err != nil {
		return models.Document{}, err
	}
	if raw == nil {
		return models.EmptyDocument(), nil
	}

	var doc models.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return models.Document{}, err
	}
	if doc.Blocks == nil {
		doc.Blocks = []models.Block{}
	}
	return doc, nil
}

// Subscribe attaches a live listener to the workspace's content. The
// callback fires with the current document immediately and on every remote
// write to the subtree, including the echo of this client's own saves.
//
// One subscription per workspace: a second Subscribe for the same id fails
// with ErrAlreadySubscribed instead of silently replacing (and leaking) the
// prior remote listener. Call Unsubscribe first to rebind.
func (c *Content) Subscribe(ctx context.Context, workspaceID string, fn func(models.Document)) (*store.Subscription, error) {
	if workspaceID == "" {
		return nil, fmt.Errorf("%w: workspace id required", constants.ErrInvalidArgument)
	}

	c.mu.Lock()
	if _, ok := c.subs[workspaceID]; ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: workspace %s", constants.ErrAlreadySubscribed, workspaceID)
	}
	// Reserve the slot before the store call so a concurrent Subscribe for
	// the same workspace cannot slip in while the listen RPC is in flight.
	c.subs[workspaceID] = nil
	c.mu.Unlock()

	sub, err := c.store.Subscribe(ctx, store.ContentPath(workspaceID), func(raw json.RawMessage) {
		var doc models.Document
		if raw == nil {
			doc = models.EmptyDocument()
		} else if err := json.Unmarshal(raw, &doc); err != nil {
			c.log.Error("unparsable content notification", "workspace", workspaceID, "error", err)
			return
		}
		if doc.Blocks == nil {
			doc.Blocks = []models.Block{}
		}
		fn(doc)
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		delete(c.subs, workspaceID)
		return nil, err
	}
	c.subs[workspaceID] = sub
	return sub, nil
}

// Unsubscribe stops the live subscription for a workspace. Unknown ids are
// a no-op.
func (c *Content) Unsubscribe(workspaceID string) {
	c.mu.Lock()
	sub := c.subs[workspaceID]
	delete(c.subs, workspaceID)
	c.mu.Unlock()

	if sub != nil {
		sub.Stop()
	}
}

// Close stops every live content subscription.
func (c *Content) Close() {
	c.mu.Lock()
	subs := make([]*store.Subscription, 0, len(c.subs))
	for _, sub := range c.subs {
		if sub != nil {
			subs = append(subs, sub)
		}
	}
	c.subs = make(map[string]*store.Subscription)
	c.mu.Unlock()

	for _, sub := range subs {
		sub.Stop()
	}
}
