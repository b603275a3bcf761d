package orchestration

import (
	"log/slog"
	"sync"
)

// Feed is a cached-snapshot publisher for one observable domain. Mutations
// invalidate the cache and synchronously notify subscribers; the snapshot is
// recomputed at most once per invalidation, so repeated reads between
// mutations observe the same value.
type Feed[T any] struct {
	mu        sync.Mutex
	compute   func() T
	cached    T
	valid     bool
	nextID    int
	listeners []feedListener
}

type feedListener struct {
	id     int
	notify func()
}

func newFeed[T any](compute func() T) *Feed[T] {
	return &Feed[T]{compute: compute}
}

// Subscribe registers listener to run on every invalidation and returns its
// removal handle. Listeners run synchronously on the mutating call, in
// subscription order; a panicking listener does not prevent the others from
// running.
func (f *Feed[T]) Subscribe(listener func()) (unsubscribe func()) {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.listeners = append(f.listeners, feedListener{id: id, notify: listener})
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		for i, registered := range f.listeners {
			if registered.id == id {
				f.listeners = append(f.listeners[:i], f.listeners[i+1:]...)
				return
			}
		}
	}
}

// Snapshot returns the cached value, recomputing it only when a mutation has
// invalidated the cache since the last read.
func (f *Feed[T]) Snapshot() T {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.valid {
		f.cached = f.compute()
		f.valid = true
	}
	return f.cached
}

// invalidate drops the cached value and notifies subscribers. Callers must
// not hold locks that the compute function needs.
func (f *Feed[T]) invalidate() {
	f.mu.Lock()
	f.valid = false
	var zero T
	f.cached = zero
	notify := make([]feedListener, len(f.listeners))
	copy(notify, f.listeners)
	f.mu.Unlock()

	for _, listener := range notify {
		notifyIsolated(listener.notify)
	}
}

func notifyIsolated(notify func()) {
	defer func() {
		if recovered := recover(); recovered != nil {
			logger.Warn("feed listener panicked", slog.Any("panic", recovered))
		}
	}()

	notify()
}
