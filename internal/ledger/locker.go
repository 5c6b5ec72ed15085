package ledger

import (
	"context"
	"sync"
)

// LocalLocker is an in-process Locker. Entries are dropped once no caller
// holds or waits for them.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[uint64]*debtLock
}

type debtLock struct {
	sem  chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[uint64]*debtLock)}
}

func (l *LocalLocker) Lock(ctx context.Context, debtID uint64) (func(), error) {
	l.mu.Lock()
	dl, ok := l.locks[debtID]
	if !ok {
		dl = &debtLock{sem: make(chan struct{}, 1)}
		l.locks[debtID] = dl
	}
	dl.refs++
	l.mu.Unlock()

	select {
	case dl.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(debtID, dl)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-dl.sem
			l.release(debtID, dl)
		})
	}, nil
}

func (l *LocalLocker) release(debtID uint64, dl *debtLock) {
	l.mu.Lock()
	dl.refs--
	if dl.refs == 0 {
		delete(l.locks, debtID)
	}
	l.mu.Unlock()
}
