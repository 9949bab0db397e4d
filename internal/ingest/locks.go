package ingest

import (
	"hash/fnv"
	"sync"
)

// lockStripes is the number of mutexes in a keyed lock. Power of two
// so the modulo compiles to a mask.
const lockStripes = 64

// keyedLock serialises work per key with a fixed pool of striped
// mutexes. Messages from the same device hash to the same stripe, so
// presence writes for one device apply in arrival order while distinct
// devices proceed in parallel.
//
// Unrelated keys can share a stripe; that costs throughput, never
// correctness.
type keyedLock struct {
	stripes [lockStripes]sync.Mutex
}

// Lock acquires the stripe for key.
func (l *keyedLock) Lock(key string) {
	l.stripes[stripeFor(key)].Lock()
}

// Unlock releases the stripe for key.
func (l *keyedLock) Unlock(key string) {
	l.stripes[stripeFor(key)].Unlock()
}

func stripeFor(key string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(key)) //nolint:errcheck // fnv.Write never fails
	return h.Sum32() % lockStripes
}
