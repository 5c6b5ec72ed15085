package store

import (
	"bytes"
	"context"
	"sync"

	"github.com/nimasrn/debt-ledger/internal/model"
)

// MemoryStore keeps ledger state in a map. Writes inside WithinTransaction
// are staged on the context and applied under one lock on success.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[model.Key][]byte
}

type memTxKey struct{ store *MemoryStore }

type memTx struct {
	writes map[model.Key][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[model.Key][]byte)}
}

func (s *MemoryStore) Get(ctx context.Context, key model.Key) ([]byte, bool, error) {
	if tx := s.tx(ctx); tx != nil {
		if v, ok := tx.writes[key]; ok {
			return bytes.Clone(v), true, nil
		}
	}

	s.mu.RLock()
	v, ok := s.data[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	return bytes.Clone(v), true, nil
}

func (s *MemoryStore) Set(ctx context.Context, key model.Key, value []byte) error {
	v := bytes.Clone(value)
	if tx := s.tx(ctx); tx != nil {
		tx.writes[key] = v
		return nil
	}

	s.mu.Lock()
	s.data[key] = v
	s.mu.Unlock()
	return nil
}

// WithinTransaction discards staged writes when fn fails. Nested calls join
// the outer transaction.
func (s *MemoryStore) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.tx(ctx) != nil {
		return fn(ctx)
	}

	tx := &memTx{writes: make(map[model.Key][]byte)}
	if err := fn(context.WithValue(ctx, memTxKey{s}, tx)); err != nil {
		return err
	}

	s.mu.Lock()
	for k, v := range tx.writes {
		s.data[k] = v
	}
	s.mu.Unlock()
	return nil
}

// Len reports the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

func (s *MemoryStore) tx(ctx context.Context) *memTx {
	tx, _ := ctx.Value(memTxKey{s}).(*memTx)
	return tx
}
