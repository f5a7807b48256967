package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/loomhq/loomsync/pkg/constants"
)

// MemoryStore is an in-process Store. It backs the test suites and the
// sweep CLI's dry-run mode, and mirrors the remote semantics: whole-value
// writes, full-value notifications, server-timestamp resolution at write
// time, and injectable write failures for exercising partial multi-write
// sequences.
type MemoryStore struct {
	mu   sync.Mutex
	root map[string]any

	subs map[*Subscription]func(json.RawMessage)

	// clock is swappable so tests can pin server time.
	clock func() time.Time

	failErr       error
	failCountdown int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		root:  make(map[string]any),
		subs:  make(map[*Subscription]func(json.RawMessage)),
		clock: time.Now,
	}
}

// SetClock pins the server clock used to resolve timestamp placeholders.
func (m *MemoryStore) SetClock(clock func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock = clock
}

// FailWritesAfter lets the next n writes succeed and fails every write
// after that with err, until ClearFailures is called.
func (m *MemoryStore) FailWritesAfter(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failCountdown = n
	m.failErr = err
}

func (m *MemoryStore) ClearFailures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = nil
	m.failCountdown = 0
}

func (m *MemoryStore) Read(_ context.Context, path string) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.valueAt(path), nil
}

func (m *MemoryStore) Write(_ context.Context, path string, value any) error {
	if path == "" {
		return fmt.Errorf("%w: empty path", constants.ErrInvalidArgument)
	}

	m.mu.Lock()

	if m.failErr != nil {
		if m.failCountdown <= 0 {
			err := m.failErr
			m.mu.Unlock()
			return fmt.Errorf("%w: %v", constants.ErrStoreUnavailable, err)
		}
		m.failCountdown--
	}

	decoded, err := reencode(value)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	decoded = m.resolveServerValues(decoded)

	m.set(strings.Split(path, "/"), decoded)

	// Snapshot affected listeners and their values before unlocking so a
	// callback can call back into the store.
	type delivery struct {
		fn    func(json.RawMessage)
		value json.RawMessage
	}
	var deliveries []delivery
	for sub, fn := range m.subs {
		if related(sub.Path, path) {
			deliveries = append(deliveries, delivery{fn: fn, value: m.valueAt(sub.Path)})
		}
	}
	m.mu.Unlock()

	for _, d := range deliveries {
		d.fn(d.value)
	}
	return nil
}

func (m *MemoryStore) PushKey(string) string {
	return NewPushKey()
}

// Subscribe delivers the current value synchronously before returning, then
// again after every write touching the subscribed subtree.
func (m *MemoryStore) Subscribe(_ context.Context, path string, fn func(json.RawMessage)) (*Subscription, error) {
	var sub *Subscription
	sub = newSubscription(path, func() {
		m.mu.Lock()
		delete(m.subs, sub)
		m.mu.Unlock()
	})

	m.mu.Lock()
	m.subs[sub] = fn
	initial := m.valueAt(path)
	m.mu.Unlock()

	fn(initial)
	return sub, nil
}

// Snapshot returns the entire tree, for backups and sweep dry runs.
func (m *MemoryStore) Snapshot() json.RawMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, err := json.Marshal(m.root)
	if err != nil {
		panic("unreachable")
	}
	return data
}

// valueAt returns the JSON value at path, or nil when absent. Caller holds
// the lock.
func (m *MemoryStore) valueAt(path string) json.RawMessage {
	var node any = m.root
	if path != "" {
		for _, segment := range strings.Split(path, "/") {
			child, ok := node.(map[string]any)
			if !ok {
				return nil
			}
			node, ok = child[segment]
			if !ok {
				return nil
			}
		}
	}

	data, err := json.Marshal(node)
	if err != nil {
		return nil
	}
	if string(data) == "null" {
		return nil
	}
	return data
}

func (m *MemoryStore) set(segments []string, value any) {
	node := m.root
	for _, segment := range segments[:len(segments)-1] {
		child, ok := node[segment].(map[string]any)
		if !ok {
			child = make(map[string]any)
			node[segment] = child
		}
		node = child
	}
	node[segments[len(segments)-1]] = value
}

// resolveServerValues replaces {".sv":"timestamp"} placeholders with the
// current server clock in unix milliseconds.
func (m *MemoryStore) resolveServerValues(value any) any {
	obj, ok := value.(map[string]any)
	if !ok {
		return value
	}
	if sv, ok := obj[".sv"]; ok && sv == "timestamp" && len(obj) == 1 {
		return m.clock().UnixMilli()
	}
	for k, v := range obj {
		obj[k] = m.resolveServerValues(v)
	}
	return obj
}

// reencode normalizes an arbitrary Go value into the generic JSON tree the
// store keeps.
func reencode(value any) (any, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", constants.ErrInvalidArgument, err)
	}
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", constants.ErrInvalidArgument, err)
	}
	return decoded, nil
}

// related reports whether a write at writePath affects a listener at
// subPath: true when either is an ancestor of the other.
func related(subPath, writePath string) bool {
	if subPath == writePath || subPath == "" {
		return true
	}
	return strings.HasPrefix(writePath, subPath+"/") || strings.HasPrefix(subPath, writePath+"/")
}

var _ Store = (*MemoryStore)(nil)
