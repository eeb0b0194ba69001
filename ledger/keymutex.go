package ledger

import "sync"

// =============================================================================
// KEYED MUTEX - per (vehicle, grade) exclusion region
// =============================================================================

// keyMutex serializes work per ledger key. Recomputation over a log being
// mutated could read a torn intermediate state, so the service guarantees
// at most one in-flight recomputation per (vehicle, grade). Different keys
// proceed in parallel.
type keyMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyMutex() *keyMutex {
	return &keyMutex{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for a key and returns its unlock function.
// Mutexes are retained for the process lifetime; the key space is bounded
// by the fleet size times the grade set.
func (km *keyMutex) Lock(vehicle Vehicle, grade Grade) func() {
	key := string(vehicle) + "|" + string(grade)

	km.mu.Lock()
	m, ok := km.locks[key]
	if !ok {
		m = &sync.Mutex{}
		km.locks[key] = m
	}
	km.mu.Unlock()

	m.Lock()
	return m.Unlock
}
