package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nimasrn/debt-ledger/internal/model"
	"github.com/nimasrn/debt-ledger/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
)

// RedisStore keeps each ledger record under its own redis key. A
// transaction stages writes and flushes them in a single MULTI/EXEC block.
type RedisStore struct {
	adapter   redis.RedisAdapter
	namespace string
}

type redisTxKey struct{ store *RedisStore }

type redisTx struct {
	mu     sync.Mutex
	writes map[model.Key][]byte
}

func NewRedisStore(adapter redis.RedisAdapter, namespace string) *RedisStore {
	return &RedisStore{adapter: adapter, namespace: namespace}
}

func (s *RedisStore) key(k model.Key) string {
	return namespaced(s.namespace, k.String())
}

// namespaced joins ns and key with a colon; an empty ns leaves key as is.
func namespaced(ns, key string) string {
	if ns == "" {
		return key
	}
	return ns + ":" + key
}

func (s *RedisStore) Get(ctx context.Context, key model.Key) ([]byte, bool, error) {
	if tx := s.tx(ctx); tx != nil {
		tx.mu.Lock()
		v, ok := tx.writes[key]
		tx.mu.Unlock()
		if ok {
			return bytes.Clone(v), true, nil
		}
	}

	v, err := s.adapter.Get(ctx, s.key(key))
	if errors.Is(err, redis.NilError) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key model.Key, value []byte) error {
	if tx := s.tx(ctx); tx != nil {
		tx.mu.Lock()
		tx.writes[key] = bytes.Clone(value)
		tx.mu.Unlock()
		return nil
	}

	if err := s.adapter.Set(ctx, s.key(key), value, 0); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.tx(ctx) != nil {
		return fn(ctx)
	}

	tx := &redisTx{writes: make(map[model.Key][]byte)}
	if err := fn(context.WithValue(ctx, redisTxKey{s}, tx)); err != nil {
		return err
	}
	if len(tx.writes) == 0 {
		return nil
	}

	_, err := s.adapter.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		for k, v := range tx.writes {
			p.Set(ctx, s.adapter.Key(s.key(k)), v, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis commit: %w", err)
	}
	return nil
}

func (s *RedisStore) tx(ctx context.Context) *redisTx {
	tx, _ := ctx.Value(redisTxKey{s}).(*redisTx)
	return tx
}
