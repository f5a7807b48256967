// Package rand generates the short random ids attached to RPC requests.
package rand

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
	"sync"
)

const (
	bytesInUint64 = 8
	charset       = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

var charsetLen = len(charset)

var defaultRNG = newLockedRNG()

func newLockedRNG() *lockedRNG {
	seed := make([]byte, bytesInUint64*2)
	if _, err := cryptorand.Read(seed); err != nil {
		panic("unreachable")
	}
	return &lockedRNG{
		//nolint:gosec // request ids are not security sensitive
		rng: rand.New(rand.NewPCG(
			binary.LittleEndian.Uint64(seed[:8]),
			binary.LittleEndian.Uint64(seed[8:]),
		)),
	}
}

type lockedRNG struct {
	mut sync.Mutex
	rng *rand.Rand
}

// NewRequestID returns a base62 string of the given length. Distribution is
// slightly non-uniform, which is acceptable for correlation ids.
func NewRequestID(length int) string {
	buf := make([]byte, length)

	defaultRNG.mut.Lock()
	for i := range buf {
		buf[i] = charset[defaultRNG.rng.IntN(charsetLen)]
	}
	defaultRNG.mut.Unlock()

	return string(buf)
}
