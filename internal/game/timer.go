package game

import (
	"context"
	"sync"
	"time"
)

// Countdown emits from-1, from-2, ..., 0, one value per interval, and then
// closes. It closes early when ctx is done. Each round uses a fresh one.
func Countdown(ctx context.Context, from int, interval time.Duration) <-chan int {
	ch := make(chan int)

	go func() {
		defer close(ch)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for remaining := from - 1; remaining >= 0; remaining-- {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			select {
			case <-ctx.Done():
				return
			case ch <- remaining:
			}
		}
	}()

	return ch
}

// Latest holds the most recent value of a stream. Readers never block on
// Get; Wait blocks only until the first value arrives.
type Latest[T any] struct {
	mu    sync.Mutex
	value T
	at    time.Time
	set   bool
	ready chan struct{}
}

// NewLatest creates an empty mailbox.
func NewLatest[T any]() *Latest[T] {
	return &Latest[T]{ready: make(chan struct{})}
}

// Set replaces the held value.
func (l *Latest[T]) Set(v T) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.value = v
	l.at = time.Now()
	if !l.set {
		l.set = true
		close(l.ready)
	}
}

// Get returns the held value and whether one was ever set.
func (l *Latest[T]) Get() (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.value, l.set
}

// Updated returns when the held value was last set.
func (l *Latest[T]) Updated() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.at
}

// Wait returns the held value, blocking until one exists or ctx is done.
func (l *Latest[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-l.ready:
		v, _ := l.Get()
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
