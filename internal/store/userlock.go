package store

import (
	"context"
	"sync"
)

// userLocker serializes work per user id inside one process. Entries are
// reference counted and removed once no goroutine holds or waits on them.
type userLocker struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	ch   chan struct{}
	refs int
}

func newUserLocker() *userLocker {
	return &userLocker{locks: make(map[string]*userLock)}
}

// Lock acquires the lock for id or returns ctx.Err() if ctx ends first.
func (l *userLocker) Lock(ctx context.Context, id string) (func(), error) {
	l.mu.Lock()
	ul, ok := l.locks[id]
	if !ok {
		ul = &userLock{ch: make(chan struct{}, 1)}
		l.locks[id] = ul
	}
	ul.refs++
	l.mu.Unlock()

	select {
	case ul.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(id, ul)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-ul.ch
			l.release(id, ul)
		})
	}, nil
}

func (l *userLocker) release(id string, ul *userLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ul.refs--
	if ul.refs == 0 {
		delete(l.locks, id)
	}
}

// size reports the number of live entries.
func (l *userLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
