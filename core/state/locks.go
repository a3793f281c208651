package state

import (
	"sort"
	"sync"
)

// keyLocks hands out one mutex per key. Entries are reference counted and
// dropped once no caller holds or waits on them.
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[string]*keyLock)}
}

// acquire locks every key in sorted order and returns the release function.
// Duplicate keys are locked once.
func (k *keyLocks) acquire(keys [][]byte) func() {
	names := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		name := string(key)
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	sort.Strings(names)

	held := make([]*keyLock, 0, len(names))
	for _, name := range names {
		k.mu.Lock()
		lock, ok := k.locks[name]
		if !ok {
			lock = &keyLock{}
			k.locks[name] = lock
		}
		lock.refs++
		k.mu.Unlock()
		lock.mu.Lock()
		held = append(held, lock)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
			k.mu.Lock()
			held[i].refs--
			if held[i].refs == 0 {
				delete(k.locks, names[i])
			}
			k.mu.Unlock()
		}
	}
}

func (k *keyLocks) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
