package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	contractx "github.com/cloudflow/support-agents/agent/contract"
	redisx "github.com/cloudflow/support-agents/pkg/redisx"
)

// RedisLocker adapts the Redis mutex to the conversation locker port.
type RedisLocker struct {
	mutex *redisx.Mutex
}

func NewRedisLocker(mutex *redisx.Mutex) (*RedisLocker, error) {
	if mutex == nil {
		return nil, errors.New("redis mutex is required")
	}
	return &RedisLocker{mutex: mutex}, nil
}

func (l *RedisLocker) Acquire(ctx context.Context, conversationID uuid.UUID) (contractx.Lease, error) {
	lease, err := l.mutex.Acquire(ctx, conversationID)
	if err != nil {
		if errors.Is(err, redisx.ErrLockNotAcquired) {
			return nil, fmt.Errorf("%w: conversation %s", contractx.ErrConversationBusy, conversationID)
		}
		return nil, err
	}
	return lease, nil
}

// noopLocker serializes nothing; used when no Redis client is wired.
type noopLocker struct{}

type noopLease struct{}

func (noopLease) Release(context.Context) error { return nil }

func (noopLocker) Acquire(context.Context, uuid.UUID) (contractx.Lease, error) {
	return noopLease{}, nil
}
