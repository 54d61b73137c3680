package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/stakepact/stakepact/test/mocks"
)

func setupTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	return NewRedisCacheFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()})), mr
}

func TestRedisCacheGetSet(t *testing.T) {
	c, _ := setupTestCache(t)
	ctx := context.Background()

	// Missing key reads as empty, not an error.
	val, err := c.Get(ctx, "missing")
	if err != nil {
		t.Fatalf("Get on missing key failed: %v", err)
	}
	if val != "" {
		t.Errorf("Get = %q, want empty", val)
	}

	if err := c.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	val, err = c.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if val != "v" {
		t.Errorf("Get = %q, want v", val)
	}
}

func TestRedisCacheSetNX(t *testing.T) {
	c, _ := setupTestCache(t)
	ctx := context.Background()

	ok, err := c.SetNX(ctx, "k", "1", time.Minute)
	if err != nil {
		t.Fatalf("SetNX failed: %v", err)
	}
	if !ok {
		t.Error("First SetNX should succeed")
	}

	ok, err = c.SetNX(ctx, "k", "2", time.Minute)
	if err != nil {
		t.Fatalf("SetNX failed: %v", err)
	}
	if ok {
		t.Error("Second SetNX on a held key should fail")
	}
}

func TestKeyedLockerTryAcquire(t *testing.T) {
	c, _ := setupTestCache(t)
	locker := NewKeyedLocker(c, "lock:", time.Minute)
	ctx := context.Background()

	if err := locker.TryAcquire(ctx, "user:1"); err != nil {
		t.Fatalf("TryAcquire failed: %v", err)
	}

	err := locker.TryAcquire(ctx, "user:1")
	if !errors.Is(err, ErrLockHeld) {
		t.Errorf("Error = %v, want ErrLockHeld", err)
	}

	// A different key is independent.
	if err := locker.TryAcquire(ctx, "user:2"); err != nil {
		t.Errorf("Other key should not be blocked: %v", err)
	}

	locker.Release(ctx, "user:1")
	if err := locker.TryAcquire(ctx, "user:1"); err != nil {
		t.Errorf("TryAcquire after release failed: %v", err)
	}
}

func TestKeyedLockerAcquireWaitsForRelease(t *testing.T) {
	c, _ := setupTestCache(t)
	locker := NewKeyedLocker(c, "lock:", time.Minute)
	ctx := context.Background()

	if err := locker.TryAcquire(ctx, "user:1"); err != nil {
		t.Fatalf("TryAcquire failed: %v", err)
	}

	go func() {
		time.Sleep(100 * time.Millisecond)
		locker.Release(context.Background(), "user:1")
	}()

	// Acquire retries until the holder releases.
	if err := locker.Acquire(ctx, "user:1"); err != nil {
		t.Errorf("Acquire should succeed once released: %v", err)
	}
}

func TestKeyedLockerExpiredLockIsReacquirable(t *testing.T) {
	c, mr := setupTestCache(t)
	locker := NewKeyedLocker(c, "lock:", time.Second)
	ctx := context.Background()

	if err := locker.TryAcquire(ctx, "user:1"); err != nil {
		t.Fatalf("TryAcquire failed: %v", err)
	}

	// A crashed holder's lock frees itself after the TTL.
	mr.FastForward(2 * time.Second)

	if err := locker.TryAcquire(ctx, "user:1"); err != nil {
		t.Errorf("TryAcquire after TTL expiry failed: %v", err)
	}
}

func TestKeyedLockerStaleReleaseKeepsNewHoldersLock(t *testing.T) {
	c, mr := setupTestCache(t)
	first := NewKeyedLocker(c, "lock:", time.Second)
	second := NewKeyedLocker(c, "lock:", time.Minute)
	ctx := context.Background()

	if err := first.TryAcquire(ctx, "user:1"); err != nil {
		t.Fatalf("TryAcquire failed: %v", err)
	}

	// The first holder's lock expires and another instance takes over.
	mr.FastForward(2 * time.Second)
	if err := second.TryAcquire(ctx, "user:1"); err != nil {
		t.Fatalf("TryAcquire after expiry failed: %v", err)
	}

	// The stale holder releasing must not free the new holder's lock.
	first.Release(ctx, "user:1")

	err := first.TryAcquire(ctx, "user:1")
	if !errors.Is(err, ErrLockHeld) {
		t.Errorf("Error = %v, want ErrLockHeld (lock still held by new owner)", err)
	}
}

func TestKeyedLockerOverMockCache(t *testing.T) {
	// The locker works over any Cache implementation, not just Redis.
	locker := NewKeyedLocker(mocks.NewMockCache(), "lock:", time.Minute)
	ctx := context.Background()

	if err := locker.TryAcquire(ctx, "user:1"); err != nil {
		t.Fatalf("TryAcquire failed: %v", err)
	}
	if err := locker.TryAcquire(ctx, "user:1"); !errors.Is(err, ErrLockHeld) {
		t.Errorf("Error = %v, want ErrLockHeld", err)
	}
	locker.Release(ctx, "user:1")
	if err := locker.TryAcquire(ctx, "user:1"); err != nil {
		t.Errorf("TryAcquire after release failed: %v", err)
	}
}

func TestKeyedLockerAcquireRespectsContext(t *testing.T) {
	c, _ := setupTestCache(t)
	locker := NewKeyedLocker(c, "lock:", time.Minute)

	if err := locker.TryAcquire(context.Background(), "user:1"); err != nil {
		t.Fatalf("TryAcquire failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := locker.Acquire(ctx, "user:1")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Error = %v, want context deadline", err)
	}
}
