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

// Notifications derives a live pending-invite count for the current
// principal. The count is recomputed from the full index value on every
// change rather than maintained incrementally; invite volumes per user are
// small enough that the recompute is free.
type Notifications struct {
	store store.Store
	id    *Identity
	log   logger.Logger

	mu  sync.Mutex
	sub *store.Subscription
}

func newNotifications(st store.Store, id *Identity, log logger.Logger) *Notifications {
	return &Notifications{store: st, id: id, log: log}
}

// Subscribe watches the principal's global invite index and delivers the
// pending count on every change, starting with the current value. Only one
// feed subscription exists per session; a second Subscribe fails with
// ErrAlreadySubscribed until Unsubscribe is called.
func (n *Notifications) Subscribe(ctx context.Context, fn func(pending int)) (*store.Subscription, error) {
	p := n.id.Principal()
	if p == nil {
		return nil, fmt.Errorf("%w: subscribe to notifications", constants.ErrUnauthenticated)
	}

	// The lock is held across the listen RPC so a concurrent Subscribe
	// cannot slip in and leak a second remote listener.
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sub != nil {
		return nil, fmt.Errorf("%w: notification feed", constants.ErrAlreadySubscribed)
	}

	sub, err := n.store.Subscribe(ctx, store.InviteIndexPath(p.Email), func(raw json.RawMessage) {
		invites, err := decodeInviteIndex(raw)
		if err != nil {
			n.log.Error("unparsable invite index", "error", err)
			return
		}

		pending := 0
		for _, invite := range invites {
			if invite.Status == models.StatusPending {
				pending++
			}
		}
		fn(pending)
	})
	if err != nil {
		return nil, err
	}

	n.sub = sub
	return sub, nil
}

// Unsubscribe stops the feed. No-op when nothing is subscribed.
func (n *Notifications) Unsubscribe() {
	n.mu.Lock()
	sub := n.sub
	n.sub = nil
	n.mu.Unlock()

	if sub != nil {
		sub.Stop()
	}
}
