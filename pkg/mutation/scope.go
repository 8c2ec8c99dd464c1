package mutation

import (
	"context"
	"sync"
)

// fifoLock is a single-slot channel semaphore. Go's runtime wakes
// goroutines blocked on the same channel in the order they started
// waiting, which gives Lock the "first arrived, first admitted"
// property scoped mutations need — a plain sync.Mutex makes no such
// ordering promise (the runtime may let a goroutine barge a long-queued
// waiter to avoid a handoff).
type fifoLock struct {
	ch chan struct{}
}

func newFifoLock() *fifoLock {
	l := &fifoLock{ch: make(chan struct{}, 1)}
	l.ch <- struct{}{}
	return l
}

func (l *fifoLock) Lock(ctx context.Context) error {
	select {
	case <-l.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *fifoLock) Unlock() {
	l.ch <- struct{}{}
}

// scopeKey identifies one serialization scope: a scope id is only
// meaningful relative to the client its mutations run against.
type scopeKey struct {
	client any
	id     string
}

var scopeRegistry sync.Map // map[scopeKey]*fifoLock

// scopeLockFor returns the shared FIFO lock for (client, id), creating
// it on first use. Every MutationObserver constructed against the same
// client with the same scope id serializes through this one lock,
// matching "all mutations with the same scope id run serially across
// observers sharing the client".
func scopeLockFor(client any, id string) *fifoLock {
	key := scopeKey{client: client, id: id}
	v, _ := scopeRegistry.LoadOrStore(key, newFifoLock())
	return v.(*fifoLock)
}
