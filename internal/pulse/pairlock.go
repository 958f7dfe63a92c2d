package pulse

import (
	"sync"

	"github.com/pulseapp/pulse-backend/internal/models"
)

// pairLocks serializes reveal transactions per unordered user pair.
// Entries are reference-counted and removed once the last holder leaves,
// so the map stays bounded by in-flight pairs.
type pairLocks struct {
	mu    sync.Mutex
	locks map[string]*pairLock
}

type pairLock struct {
	mu   sync.Mutex
	refs int
}

func newPairLocks() *pairLocks {
	return &pairLocks{locks: make(map[string]*pairLock)}
}

func pairLockKey(a, b string) string {
	lo, hi := models.PairKey(a, b)
	return lo + "\x00" + hi
}

// Lock acquires the mutex for the unordered pair {a, b} and returns the
// matching unlock func.
func (p *pairLocks) Lock(a, b string) func() {
	key := pairLockKey(a, b)

	p.mu.Lock()
	l, ok := p.locks[key]
	if !ok {
		l = &pairLock{}
		p.locks[key] = l
	}
	l.refs++
	p.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		p.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(p.locks, key)
		}
		p.mu.Unlock()
	}
}
