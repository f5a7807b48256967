// Package store provides the client for the remote, key-path-addressed
// document database that backs the sync layer. Values are JSON documents
// addressed by slash-separated paths; subscriptions always deliver the full
// value at the subscribed path, never a delta.
package store

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
)

// Store is the primitive contract everything above it is built on.
//
// Read returns the raw JSON value at path, or nil with a nil error when the
// path does not exist. Write replaces the value at path wholesale. PushKey
// allocates a globally-unique, lexicographically-sortable key without
// performing any I/O. Subscribe delivers the current value immediately and
// again on every subsequent remote change (at-least-once).
//
// Operations fail with errors wrapping constants.ErrStoreUnavailable on
// transport or permission failures. No retries happen at this layer; values
// written through it must be idempotent so callers may retry safely.
type Store interface {
	Read(ctx context.Context, path string) (json.RawMessage, error)
	Write(ctx context.Context, path string, value any) error
	PushKey(path string) string
	Subscribe(ctx context.Context, path string, fn func(json.RawMessage)) (*Subscription, error)
}

// ServerTimestamp returns the placeholder value the store resolves to its
// own clock at write time, as unix milliseconds.
func ServerTimestamp() any {
	return map[string]string{".sv": "timestamp"}
}

// Subscription is the handle for one live listener. Handles are returned by
// Subscribe and detached with Stop; there is no way to reattach one, which
// keeps the subscribe/replace leak impossible by construction.
type Subscription struct {
	// ID identifies the subscription on the wire.
	ID uuid.UUID
	// Path is the subtree the subscription watches.
	Path string

	once sync.Once
	stop func()
}

func newSubscription(path string, stop func()) *Subscription {
	return &Subscription{ID: uuid.New(), Path: path, stop: stop}
}

// Stop detaches the remote listener. It is idempotent; callbacks may still
// be in flight when it returns but none start afterwards.
func (s *Subscription) Stop() {
	s.once.Do(s.stop)
}
