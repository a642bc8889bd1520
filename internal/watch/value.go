package watch

import (
	"context"
	"sync"
)

// Value is an observable cell holding the latest value of type T.
// Watchers always see the newest value; intermediate values may be
// dropped if a watcher is slow (latest-value-wins delivery).
type Value[T any] struct {
	mu       sync.Mutex
	current  T
	watchers map[chan T]struct{}
}

// NewValue creates a Value seeded with an initial value.
func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{
		current:  initial,
		watchers: make(map[chan T]struct{}),
	}
}

// Get returns the current value.
func (v *Value[T]) Get() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current
}

// Set stores a new value and publishes it to all watchers.
func (v *Value[T]) Set(val T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.current = val
	for ch := range v.watchers {
		// Replace any stale value sitting in the buffer.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- val:
		default:
		}
	}
}

// Watch returns a channel that delivers the current value immediately
// and every subsequent value until ctx is cancelled. The channel has a
// buffer of one; a pending unread value is overwritten by newer ones.
func (v *Value[T]) Watch(ctx context.Context) <-chan T {
	ch := make(chan T, 1)

	v.mu.Lock()
	ch <- v.current
	v.watchers[ch] = struct{}{}
	v.mu.Unlock()

	go func() {
		<-ctx.Done()
		v.mu.Lock()
		delete(v.watchers, ch)
		v.mu.Unlock()
	}()

	return ch
}
