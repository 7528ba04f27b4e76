// Package lock serializes work on one document identifier.
package lock

import (
	"context"
	"sync"
)

// Unlock releases a held lock. It is safe to call more than once.
type Unlock func()

// Locker hands out exclusive and shared locks by key.
type Locker interface {
	// Lock blocks until key is held exclusively or ctx is done.
	Lock(ctx context.Context, key string) (Unlock, error)
	// RLock blocks until key is held shared or ctx is done.
	RLock(ctx context.Context, key string) (Unlock, error)
}

type keyedEntry struct {
	mu   sync.RWMutex
	refs int
}

// Keyed is an in-process Locker with one RWMutex per key. Entries are freed
// once no goroutine holds or waits for them.
type Keyed struct {
	mu      sync.Mutex
	entries map[string]*keyedEntry
}

var _ Locker = (*Keyed)(nil)

// NewKeyed creates an empty in-process locker.
func NewKeyed() *Keyed {
	return &Keyed{entries: make(map[string]*keyedEntry)}
}

// Lock acquires key exclusively.
func (k *Keyed) Lock(ctx context.Context, key string) (Unlock, error) {
	return k.acquire(ctx, key, false)
}

// RLock acquires key shared.
func (k *Keyed) RLock(ctx context.Context, key string) (Unlock, error) {
	return k.acquire(ctx, key, true)
}

func (k *Keyed) acquire(ctx context.Context, key string, shared bool) (Unlock, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e := k.ref(key)
	lock, unlock := e.mu.Lock, e.mu.Unlock
	if shared {
		lock, unlock = e.mu.RLock, e.mu.RUnlock
	}

	acquired := make(chan struct{})
	go func() {
		lock()
		close(acquired)
	}()

	release := func() {
		unlock()
		k.unref(key)
	}

	select {
	case <-acquired:
		var once sync.Once
		return func() { once.Do(release) }, nil
	case <-ctx.Done():
		// Give the lock back as soon as the pending acquisition lands.
		go func() {
			<-acquired
			release()
		}()
		return nil, ctx.Err()
	}
}

func (k *Keyed) ref(key string) *keyedEntry {
	k.mu.Lock()
	defer k.mu.Unlock()

	e, ok := k.entries[key]
	if !ok {
		e = &keyedEntry{}
		k.entries[key] = e
	}
	e.refs++
	return e
}

func (k *Keyed) unref(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if e, ok := k.entries[key]; ok {
		e.refs--
		if e.refs == 0 {
			delete(k.entries, key)
		}
	}
}

// size reports how many keys are tracked.
func (k *Keyed) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
