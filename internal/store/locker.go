package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nimasrn/debt-ledger/pkg/logger"
	"github.com/nimasrn/debt-ledger/pkg/redis"
)

const (
	lockRetryBase = 5 * time.Millisecond
	lockRetryMax  = 200 * time.Millisecond
)

// RedisLocker serializes mutations of a debt across processes with
// SET NX PX. The TTL bounds how long a crashed holder can block others.
type RedisLocker struct {
	adapter redis.RedisAdapter
	ttl     time.Duration
	prefix  string
}

func NewRedisLocker(adapter redis.RedisAdapter, namespace string, ttl time.Duration) *RedisLocker {
	return &RedisLocker{
		adapter: adapter,
		ttl:     ttl,
		prefix:  namespaced(namespace, "lock:debt:"),
	}
}

func (l *RedisLocker) Lock(ctx context.Context, debtID uint64) (func(), error) {
	key := fmt.Sprintf("%s%d", l.prefix, debtID)
	token := []byte(uuid.NewString())

	delay := lockRetryBase
	for {
		acquired, err := l.adapter.SetNX(ctx, key, token, l.ttl)
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if acquired {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		if delay *= 2; delay > lockRetryMax {
			delay = lockRetryMax
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(key, token) })
	}, nil
}

func (l *RedisLocker) release(key string, token []byte) {
	ok, err := l.adapter.CompareAndDelete(context.Background(), key, token)
	if err != nil {
		logger.Error("failed to release debt lock", "key", key, "error", err)
		return
	}
	if !ok {
		logger.Warn("debt lock expired before release", "key", key, "ttl", l.ttl)
	}
}
