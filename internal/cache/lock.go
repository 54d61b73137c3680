package cache

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrLockHeld is returned when a keyed lock could not be acquired.
var ErrLockHeld = errors.New("lock already held")

// KeyedLocker serializes operations on a shared key across instances using
// SET NX with a TTL. The TTL bounds how long a crashed holder can block
// other instances. Each acquisition stores a random token as the lock value
// so a holder whose TTL already expired cannot release the next holder's
// lock.
type KeyedLocker struct {
	cache  Cache
	prefix string
	ttl    time.Duration
	tokens sync.Map // key -> token of the held lock
}

// NewKeyedLocker creates a locker with the given key prefix and lock TTL.
func NewKeyedLocker(cache Cache, prefix string, ttl time.Duration) *KeyedLocker {
	return &KeyedLocker{cache: cache, prefix: prefix, ttl: ttl}
}

func newLockToken() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// Acquire takes the lock for key, retrying briefly before giving up with
// ErrLockHeld.
func (l *KeyedLocker) Acquire(ctx context.Context, key string) error {
	fullKey := l.prefix + key
	token := newLockToken()

	const attempts = 50
	for i := 0; i < attempts; i++ {
		ok, err := l.cache.SetNX(ctx, fullKey, token, l.ttl)
		if err != nil {
			return fmt.Errorf("failed to acquire lock %s: %w", fullKey, err)
		}
		if ok {
			l.tokens.Store(key, token)
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(20 * time.Millisecond):
		}
	}
	return fmt.Errorf("%w: %s", ErrLockHeld, fullKey)
}

// TryAcquire takes the lock without retrying. Returns ErrLockHeld if it is
// already taken.
func (l *KeyedLocker) TryAcquire(ctx context.Context, key string) error {
	fullKey := l.prefix + key
	token := newLockToken()
	ok, err := l.cache.SetNX(ctx, fullKey, token, l.ttl)
	if err != nil {
		return fmt.Errorf("failed to acquire lock %s: %w", fullKey, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrLockHeld, fullKey)
	}
	l.tokens.Store(key, token)
	return nil
}

// Release frees the lock for key, but only if this locker's token is still
// the stored value. After a TTL expiry the key belongs to whoever acquired
// it next, and must be left alone.
func (l *KeyedLocker) Release(ctx context.Context, key string) {
	token, ok := l.tokens.LoadAndDelete(key)
	if !ok {
		return
	}
	fullKey := l.prefix + key
	val, err := l.cache.Get(ctx, fullKey)
	if err != nil || val != token.(string) {
		return
	}
	_ = l.cache.Del(ctx, fullKey)
}
