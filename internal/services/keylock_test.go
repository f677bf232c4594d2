package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestKeyLockTable_TryAcquire_Exclusive(t *testing.T) {
	locks := NewKeyLockTable()

	release, _, acquired := locks.TryAcquire("a")
	if !acquired {
		t.Fatal("first TryAcquire should succeed")
	}
	if !locks.Locked("a") {
		t.Error("key should report locked while held")
	}

	_, done, acquired := locks.TryAcquire("a")
	if acquired {
		t.Fatal("second TryAcquire for the same key should fail")
	}
	if done == nil {
		t.Fatal("failed TryAcquire should return the holder's done channel")
	}

	// Independent key is unaffected
	releaseB, _, acquired := locks.TryAcquire("b")
	if !acquired {
		t.Fatal("TryAcquire for a different key should succeed")
	}
	releaseB()

	release()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("done channel should close on release")
	}
	if locks.Locked("a") {
		t.Error("key should be free after release")
	}
}

func TestKeyLockTable_ReleaseIdempotent(t *testing.T) {
	locks := NewKeyLockTable()

	release, _, acquired := locks.TryAcquire("a")
	if !acquired {
		t.Fatal("TryAcquire should succeed")
	}
	release()
	release() // second call must be a no-op

	if _, _, acquired := locks.TryAcquire("a"); !acquired {
		t.Fatal("key should be acquirable after release")
	}
}

func TestKeyLockTable_Acquire_Blocks(t *testing.T) {
	locks := NewKeyLockTable()

	release, _, acquired := locks.TryAcquire("a")
	if !acquired {
		t.Fatal("TryAcquire should succeed")
	}

	var entered int32
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r, err := locks.Acquire(context.Background(), "a")
		if err != nil {
			t.Errorf("Acquire failed: %v", err)
			return
		}
		atomic.StoreInt32(&entered, 1)
		r()
	}()

	time.Sleep(50 * time.Millisecond)
	if atomic.LoadInt32(&entered) != 0 {
		t.Fatal("Acquire should block while the lock is held")
	}

	release()
	wg.Wait()
	if atomic.LoadInt32(&entered) != 1 {
		t.Fatal("Acquire should proceed after release")
	}
}

func TestKeyLockTable_Acquire_ContextCancel(t *testing.T) {
	locks := NewKeyLockTable()

	release, _, _ := locks.TryAcquire("a")
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := locks.Acquire(ctx, "a"); err == nil {
		t.Fatal("Acquire should fail when the context expires")
	}
}
