package services

import (
	"context"
	"sync"
)

// KeyLockTable is an in-process single-flight lock table: at most one
// holder per key at a time. It is injectable so tests and independent
// subsystems get isolated instances instead of sharing ambient state.
type KeyLockTable struct {
	mu       sync.Mutex
	inFlight map[string]chan struct{}
}

// NewKeyLockTable creates an empty lock table
func NewKeyLockTable() *KeyLockTable {
	return &KeyLockTable{
		inFlight: make(map[string]chan struct{}),
	}
}

// TryAcquire attempts to take the lock for key. On success it returns
// (release, nil, true); release must be called on every exit path. On
// failure it returns the current holder's done channel, which is closed
// when the holder releases.
func (t *KeyLockTable) TryAcquire(key string) (release func(), done <-chan struct{}, acquired bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if ch, ok := t.inFlight[key]; ok {
		return nil, ch, false
	}

	ch := make(chan struct{})
	t.inFlight[key] = ch

	var once sync.Once
	release = func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.inFlight, key)
			t.mu.Unlock()
			close(ch)
		})
	}
	return release, nil, true
}

// Acquire blocks until the lock for key is held or ctx is done
func (t *KeyLockTable) Acquire(ctx context.Context, key string) (release func(), err error) {
	for {
		release, done, acquired := t.TryAcquire(key)
		if acquired {
			return release, nil
		}
		select {
		case <-done:
			// Holder released; race for the lock again
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Locked reports whether key currently has a holder
func (t *KeyLockTable) Locked(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.inFlight[key]
	return ok
}
