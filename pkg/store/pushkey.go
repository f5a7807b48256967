package store

import (
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var pushEntropy = struct {
	sync.Mutex
	entropy *ulid.MonotonicEntropy
}{
	//nolint:gosec // keys need sortability and uniqueness, not secrecy
	entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
}

// NewPushKey returns a ULID: globally unique and lexicographically ordered
// by creation time, so store-native key order doubles as insertion order.
// Generation is purely local; nothing is written.
func NewPushKey() string {
	pushEntropy.Lock()
	defer pushEntropy.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), pushEntropy.entropy).String()
}
