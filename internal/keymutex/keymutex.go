// Package keymutex provides mutual exclusion scoped to a string key.
//
// It makes the "one writer per event" discipline explicit in-process instead
// of relying solely on a database row lock, so the same guarantee holds no
// matter which storage backend sits underneath.
package keymutex

import (
	"context"
	"sync"
)

// KeyedMutex serialises callers per key while letting distinct keys proceed
// in parallel. The zero value is not usable; call New.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	sem  chan struct{} // capacity 1, holding the token means holding the lock
	refs int
}

// New returns an empty KeyedMutex.
func New() *KeyedMutex {
	return &KeyedMutex{entries: make(map[string]*entry)}
}

// Lock acquires exclusive access for key, blocking until the key is free or
// ctx is done. On success it returns a release func; the caller must invoke
// it exactly once. On error no lock is held and nothing must be rolled back.
func (m *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	e, ok := m.entries[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		m.entries[key] = e
	}
	e.refs++
	m.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		m.release(key, e, false)
		return nil, ctx.Err()
	}

	var once sync.Once
	unlock := func() {
		once.Do(func() { m.release(key, e, true) })
	}
	return unlock, nil
}

// release drops a waiter's reference and, when held, frees the lock. Entries
// with no remaining references are removed so the map stays bounded by the
// number of keys currently in use.
func (m *KeyedMutex) release(key string, e *entry, held bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if held {
		<-e.sem
	}
	e.refs--
	if e.refs == 0 {
		delete(m.entries, key)
	}
}
