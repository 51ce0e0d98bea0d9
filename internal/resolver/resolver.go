// Package resolver implements an in-memory iface.DependencyResolver. Real
// dependency resolution waits on object transfers; this one resolves on
// the next executor tick and supports cancellation of an outstanding
// resolution, which is enough to drive the submitter end-to-end in tests.
package resolver

import (
	"sync"

	"actorsub/internal/iface"
)

type Resolver struct {
	mu       sync.Mutex
	canceled map[iface.TaskID]bool
	executor iface.Executor
}

// New creates a Resolver that resolves every task on the next executor
// tick, unless CancelDependencyResolution is called first.
func New(executor iface.Executor) *Resolver {
	return &Resolver{
		canceled: make(map[iface.TaskID]bool),
		executor: executor,
	}
}

func (r *Resolver) Resolve(spec iface.TaskSpec, done func(err error)) {
	taskID := spec.TaskID()
	r.executor.Post("resolve", func() {
		r.mu.Lock()
		canceled := r.canceled[taskID]
		delete(r.canceled, taskID)
		r.mu.Unlock()
		if canceled {
			return
		}
		done(nil)
	})
}

func (r *Resolver) CancelDependencyResolution(taskID iface.TaskID) {
	r.mu.Lock()
	r.canceled[taskID] = true
	r.mu.Unlock()
}
