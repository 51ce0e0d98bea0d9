// Package refcount provides a minimal iface.ReferenceCounter: a map of
// one-shot callbacks keyed by object id, fired (and removed) the first
// time the object is marked out of scope. Adapted from the teacher's
// pkg/lib/waiter.go one-shot-channel pattern, but callback-based since the
// reference counter's contract is "register a callback, or report that the
// object is already free" rather than "block until free."
package refcount

import "sync"

type Counter struct {
	mu        sync.Mutex
	freed     map[string]bool
	callbacks map[string][]func()
}

func New() *Counter {
	return &Counter{
		freed:     make(map[string]bool),
		callbacks: make(map[string][]func()),
	}
}

// AddOutOfScopeOrFreedCallback registers cb to run once objectID is marked
// free. If it is already free, cb is not registered and not invoked; false
// is returned and the caller invokes cb itself.
func (c *Counter) AddOutOfScopeOrFreedCallback(objectID string, cb func()) bool {
	c.mu.Lock()
	if c.freed[objectID] {
		c.mu.Unlock()
		return false
	}
	c.callbacks[objectID] = append(c.callbacks[objectID], cb)
	c.mu.Unlock()
	return true
}

// MarkFree marks objectID out of scope and fires every callback registered
// for it, outside the lock.
func (c *Counter) MarkFree(objectID string) {
	c.mu.Lock()
	c.freed[objectID] = true
	cbs := c.callbacks[objectID]
	delete(c.callbacks, objectID)
	c.mu.Unlock()

	for _, cb := range cbs {
		cb()
	}
}
