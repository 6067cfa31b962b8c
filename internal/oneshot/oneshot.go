// Package oneshot provides a single-use handoff of one value between a
// producer and a consumer.
//
// A Chan is settled exactly once: by the first Send, or by Close when the
// producer goes away without answering. Every later Send or Close is a no-op
// that reports false, so producers may call them freely from several code
// paths without coordinating.
package oneshot

import (
	"context"
	"sync"
)

// Chan carries at most one value of type T.
type Chan[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
	ok    bool
}

// New returns an unsettled channel.
func New[T any]() *Chan[T] {
	return &Chan[T]{done: make(chan struct{})}
}

// Send settles the channel with v. It returns false if the channel was
// already settled, in which case v is dropped.
func (c *Chan[T]) Send(v T) bool {
	sent := false
	c.once.Do(func() {
		c.value = v
		c.ok = true
		sent = true
		close(c.done)
	})
	return sent
}

// Close settles the channel without a value. It returns false if the
// channel was already settled.
func (c *Chan[T]) Close() bool {
	closed := false
	c.once.Do(func() {
		closed = true
		close(c.done)
	})
	return closed
}

// Done is closed once the channel is settled.
func (c *Chan[T]) Done() <-chan struct{} {
	return c.done
}

// Recv blocks until the channel is settled or ctx ends. ok is false when the
// producer closed the channel without sending.
func (c *Chan[T]) Recv(ctx context.Context) (value T, ok bool, err error) {
	select {
	case <-c.done:
		return c.value, c.ok, nil
	case <-ctx.Done():
		var zero T
		return zero, false, ctx.Err()
	}
}

// TryRecv returns the settled value without blocking. settled is false while
// the channel is still open.
func (c *Chan[T]) TryRecv() (value T, ok bool, settled bool) {
	select {
	case <-c.done:
		return c.value, c.ok, true
	default:
		var zero T
		return zero, false, false
	}
}
