package redisx

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func newTestMutex(t *testing.T, hold, wait time.Duration, opts ...MutexOption) (*Mutex, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	m, err := NewMutex(client, hold, wait, opts...)
	if err != nil {
		t.Fatalf("NewMutex() error = %v", err)
	}
	return m, mr
}

func TestMutexRejectsSecondHolderWhileHeld(t *testing.T) {
	t.Parallel()

	m, _ := newTestMutex(t, time.Minute, 0)
	id := uuid.New()

	lease, err := m.Acquire(context.Background(), id)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	if _, err := m.Acquire(context.Background(), id); !errors.Is(err, ErrLockNotAcquired) {
		t.Fatalf("second Acquire() error = %v, want ErrLockNotAcquired", err)
	}

	if err := lease.Release(context.Background()); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if _, err := m.Acquire(context.Background(), id); err != nil {
		t.Fatalf("Acquire() after release error = %v", err)
	}
}

func TestMutexAcquireWaitsForRelease(t *testing.T) {
	t.Parallel()

	m, _ := newTestMutex(t, time.Minute, time.Second, WithRetryInterval(5*time.Millisecond))
	id := uuid.New()

	lease, err := m.Acquire(context.Background(), id)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = lease.Release(context.Background())
	}()

	second, err := m.Acquire(context.Background(), id)
	if err != nil {
		t.Fatalf("Acquire() while polling error = %v", err)
	}
	if err := second.Release(context.Background()); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
}

func TestMutexReleaseKeepsAnotherHoldersLock(t *testing.T) {
	t.Parallel()

	m, mr := newTestMutex(t, 50*time.Millisecond, 0)
	id := uuid.New()
	key := defaultLockKeyPrefix + id.String()

	stale, err := m.Acquire(context.Background(), id)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	// First hold expires; a new holder takes the lock with a fresh token.
	mr.FastForward(100 * time.Millisecond)

	current, err := m.Acquire(context.Background(), id)
	if err != nil {
		t.Fatalf("Acquire() after expiry error = %v", err)
	}

	if err := stale.Release(context.Background()); err != nil {
		t.Fatalf("stale Release() error = %v", err)
	}
	if !mr.Exists(key) {
		t.Fatal("stale release must not delete the current holder's lock")
	}

	if err := current.Release(context.Background()); err != nil {
		t.Fatalf("current Release() error = %v", err)
	}
	if mr.Exists(key) {
		t.Fatal("current holder's release must delete the lock")
	}
}
