// Package keyedmutex provides a registry of mutexes indexed by key.
package keyedmutex

import (
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

type entry struct {
	mu   sync.Mutex
	refs int // holders and waiters, guarded by the map bucket
}

// Map hands out one mutex per key. A key's mutex is created on first use
// and dropped once nobody holds or waits for it, so the Map stays as small
// as the set of keys in use.
type Map[K comparable] struct {
	m *xsync.MapOf[K, *entry]
}

// New returns an empty Map.
func New[K comparable]() *Map[K] {
	return &Map[K]{m: xsync.NewMapOf[K, *entry]()}
}

// Lock locks the mutex for key and returns its unlock function, which must
// be called exactly once.
func (m *Map[K]) Lock(key K) (unlock func()) {
	e, _ := m.m.Compute(key, func(e *entry, loaded bool) (*entry, bool) {
		if !loaded {
			e = new(entry)
		}
		e.refs++
		return e, false
	})
	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		m.m.Compute(key, func(e *entry, _ bool) (*entry, bool) {
			e.refs--
			return e, e.refs == 0
		})
	}
}

// Len returns the number of keys currently held or waited for.
func (m *Map[K]) Len() int { return m.m.Size() }
