package buffers

import "sync"

// keyMutexes hands out one dedicated mutex per destination key, created
// on first use and reused for the life of the router. Unrelated
// destinations therefore never contend on each other's lock.
type keyMutexes struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyMutexes() *keyMutexes {
	return &keyMutexes{locks: make(map[string]*sync.Mutex)}
}

func (k *keyMutexes) get(key string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	return m
}
