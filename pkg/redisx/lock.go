package redisx

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultLockKeyPrefix = "conv:lock:"

// Release deletes the key only while this holder's token is still in place,
// so a lock that expired and was re-acquired is never deleted from under the
// new holder.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

var ErrLockNotAcquired = errors.New("lock not acquired")

// MutexOption customizes a Mutex.
type MutexOption func(*Mutex)

func WithLockKeyPrefix(prefix string) MutexOption {
	return func(m *Mutex) {
		if trimmed := strings.TrimSpace(prefix); trimmed != "" {
			m.keyPrefix = trimmed
		}
	}
}

func WithRetryInterval(interval time.Duration) MutexOption {
	return func(m *Mutex) {
		if interval > 0 {
			m.retryInterval = interval
		}
	}
}

// Mutex is a distributed per-key mutual exclusion primitive: SET NX PX with
// a random holder token, bounded hold time, and compare-and-delete release.
type Mutex struct {
	client        *redis.Client
	keyPrefix     string
	hold          time.Duration
	wait          time.Duration
	retryInterval time.Duration
}

// NewMutex builds a mutex whose locks expire after hold; Acquire polls for
// up to wait before giving up.
func NewMutex(client *redis.Client, hold, wait time.Duration, opts ...MutexOption) (*Mutex, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if hold <= 0 {
		return nil, errors.New("lock hold time must be > 0")
	}

	m := &Mutex{
		client:        client,
		keyPrefix:     defaultLockKeyPrefix,
		hold:          hold,
		wait:          wait,
		retryInterval: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m, nil
}

// Lease is one held lock.
type Lease struct {
	client *redis.Client
	key    string
	token  string
}

func (l *Lease) Release(ctx context.Context) error {
	if l == nil {
		return nil
	}
	if err := l.client.Eval(ctx, releaseScript, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("release lock %s: %w", l.key, err)
	}
	return nil
}

// Acquire takes the lock for id, blocking up to the configured wait. The
// returned lease must be released by the same goroutine chain that acquired
// it; expiry is the backstop for crashed holders.
func (m *Mutex) Acquire(ctx context.Context, id uuid.UUID) (*Lease, error) {
	key := m.keyPrefix + id.String()
	token := uuid.NewString()
	deadline := time.Now().Add(m.wait)

	for {
		ok, err := m.client.SetNX(ctx, key, token, m.hold).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return &Lease{client: m.client, key: key, token: token}, nil
		}
		if m.wait <= 0 || time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrLockNotAcquired, key)
		}

		select {
		case <-time.After(m.retryInterval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
