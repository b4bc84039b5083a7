package store

import "sync"

// KeyLocks hands out one mutex per session key. The engagement engine and the
// report runner both write sessions; holding the key's lock across every
// read-modify-write is what linearizes their updates against each other.
type KeyLocks struct {
	locks sync.Map // session id -> *sync.Mutex
}

func NewKeyLocks() *KeyLocks {
	return &KeyLocks{}
}

// For returns the lock for a session key, creating it on first use.
func (k *KeyLocks) For(id string) *sync.Mutex {
	if mu, ok := k.locks.Load(id); ok {
		return mu.(*sync.Mutex)
	}
	mu, _ := k.locks.LoadOrStore(id, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Forget drops the lock for a key whose session has been evicted. A late
// writer for the same key re-creates the lock; by then the session is gone
// or closed, so the only reachable path is the early return.
func (k *KeyLocks) Forget(id string) {
	k.locks.Delete(id)
}

// Len reports how many keys currently hold a lock.
func (k *KeyLocks) Len() int {
	n := 0
	k.locks.Range(func(any, any) bool {
		n++
		return true
	})
	return n
}
