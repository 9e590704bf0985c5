// Package monotonic provides a generation-counter primitive for "wait until
// the count passes X" with an arbitrary number of waiters, without lost
// wakeups. It generalizes a listener-map pattern (register a channel,
// recheck under lock, close to notify) to an in-memory counter suitable for
// OutputBuffer's revision tracking and, in a future revision, server-push
// Status notifications.
package monotonic

import (
	"context"
	"sync"

	"github.com/tjper/jobworker/internal/errors"
)

// NewCounter creates a Counter starting at revision 0.
func NewCounter() *Counter {
	return &Counter{
		listeners: make(map[uint64]chan struct{}),
	}
}

// Counter is a strictly increasing revision counter with a "wait until
// advanced past N" primitive. The zero value is not usable; use NewCounter.
type Counter struct {
	mutex     sync.Mutex
	value     uint64
	nextKey   uint64
	listeners map[uint64]chan struct{}
}

// Value returns the current revision. Non-blocking.
func (c *Counter) Value() uint64 {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.value
}

// Advance increments the counter and wakes every waiter registered before
// the call returns.
func (c *Counter) Advance() {
	c.mutex.Lock()
	c.value++
	for _, listener := range c.listeners {
		select {
		case listener <- struct{}{}:
		default:
		}
	}
	c.mutex.Unlock()
}

// WaitUntilAfter blocks until Value() > last, or ctx is canceled. If the
// counter has already advanced past last by the time WaitUntilAfter is
// called, it returns immediately: registration happens before the recheck,
// so a concurrent Advance can never be missed between the two.
func (c *Counter) WaitUntilAfter(ctx context.Context, last uint64) error {
	c.mutex.Lock()
	if c.value > last {
		c.mutex.Unlock()
		return nil
	}

	key := c.nextKey
	c.nextKey++
	notify := make(chan struct{}, 1)
	c.listeners[key] = notify

	// Recheck under the same critical section used to register: if another
	// Advance happened between the caller's observation of `last` and this
	// registration, catch it here instead of blocking forever.
	if c.value > last {
		delete(c.listeners, key)
		c.mutex.Unlock()
		return nil
	}
	c.mutex.Unlock()

	defer func() {
		c.mutex.Lock()
		delete(c.listeners, key)
		c.mutex.Unlock()
	}()

	select {
	case <-ctx.Done():
		return errors.Wrap(ctx.Err())
	case <-notify:
		return nil
	}
}
