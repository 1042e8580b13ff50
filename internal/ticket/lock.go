package ticket

import (
	"sort"
	"sync"
)

// keyedMutex is a map of per-key mutexes with reference counting, so a lock
// is released from the map (not just unlocked) once nobody holds it. This
// keeps the map from growing unbounded across the ticket ID space, the
// pattern the teacher uses for its per-connection WebSocket locks, adapted
// here to release-on-zero instead of connection refcounting.
type keyedMutex struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu  sync.Mutex
	ref int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{entries: make(map[string]*lockEntry)}
}

// Lock acquires the mutex for key, creating it on first use, and returns an
// unlock function that must be called exactly once to release it.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &lockEntry{}
		k.entries[key] = e
	}
	e.ref++
	k.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		k.mu.Lock()
		e.ref--
		if e.ref == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}
}

// LockSorted acquires locks for every key in ascending order, to prevent
// deadlock on cross-ticket operations (bulk delete, trash reap). Returns a
// single unlock function that releases them all in reverse order.
func (k *keyedMutex) LockSorted(keys []string) func() {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	unlocks := make([]func(), 0, len(sorted))
	for _, key := range sorted {
		unlocks = append(unlocks, k.Lock(key))
	}

	return func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
}
