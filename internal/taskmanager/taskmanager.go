// Package taskmanager implements an in-memory iface.TaskManager. It owns
// the decision of whether a failed task gets retried (spec.md §7: "the
// submitter never decides on its own whether to retry") and answers
// IsTaskPending for the submitter's cancel and dedup checks, and
// GetTaskSpec for any caller that needs a pending task's spec.
package taskmanager

import (
	"sync"

	"actorsub/internal/iface"
	"actorsub/pkg/glog"

	"go.uber.org/zap"
)

// DefaultMaxRetries is used for a task whose caller did not specify one.
const DefaultMaxRetries = 3

type entry struct {
	spec        iface.TaskSpec
	retriesLeft int
	canceled    bool
}

type Manager struct {
	mu      sync.Mutex
	pending map[iface.TaskID]*entry
}

func New() *Manager {
	return &Manager{pending: make(map[iface.TaskID]*entry)}
}

// Submit registers a task as pending with the given retry budget. The
// caller registers each task once, before handing it to the submitter; the
// submitter itself never calls Submit.
func (m *Manager) Submit(spec iface.TaskSpec, maxRetries int) {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	m.mu.Lock()
	m.pending[spec.TaskID()] = &entry{spec: spec, retriesLeft: maxRetries}
	m.mu.Unlock()
}

func (m *Manager) MarkDependenciesResolved(taskID iface.TaskID) {
	glog.Debug("taskmanager: dependencies resolved", zap.String("task", string(taskID)))
}

func (m *Manager) MarkTaskWaitingForExecution(taskID iface.TaskID, addr iface.Address) {
	glog.Debug("taskmanager: waiting for execution", zap.String("task", string(taskID)), zap.String("worker", addr.WorkerID))
}

func (m *Manager) MarkTaskCanceled(taskID iface.TaskID) {
	m.mu.Lock()
	if e, ok := m.pending[taskID]; ok {
		e.canceled = true
	}
	m.mu.Unlock()
}

func (m *Manager) IsTaskPending(taskID iface.TaskID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.pending[taskID]
	return ok && !e.canceled
}

func (m *Manager) GetTaskSpec(taskID iface.TaskID) (iface.TaskSpec, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.pending[taskID]
	if !ok {
		return iface.TaskSpec{}, false
	}
	return e.spec, true
}

func (m *Manager) CompletePendingTask(taskID iface.TaskID, reply iface.PushTaskReply, addr iface.Address, isApplicationError bool) {
	m.mu.Lock()
	delete(m.pending, taskID)
	m.mu.Unlock()
	glog.Debug("taskmanager: task completed",
		zap.String("task", string(taskID)),
		zap.Bool("applicationError", isApplicationError))
}

func (m *Manager) FailPendingTask(taskID iface.TaskID, errType iface.ErrorType, info *iface.ErrorInfo) {
	m.mu.Lock()
	delete(m.pending, taskID)
	m.mu.Unlock()
	glog.Warn("taskmanager: task failed",
		zap.String("task", string(taskID)),
		zap.String("type", errType.String()))
}

// FailOrRetryPendingTask decrements the task's retry budget and reports
// whether a retry was granted. This in-memory manager only keeps the
// budget; it does not resubmit the task itself. A canceled task or one with
// no budget left is failed outright.
func (m *Manager) FailOrRetryPendingTask(taskID iface.TaskID, errType iface.ErrorType, info *iface.ErrorInfo, opts iface.FailOrRetryOptions) bool {
	m.mu.Lock()
	e, ok := m.pending[taskID]
	if !ok || e.canceled || opts.FailImmediately || e.retriesLeft <= 0 {
		delete(m.pending, taskID)
		m.mu.Unlock()
		glog.Warn("taskmanager: task failed, no retry",
			zap.String("task", string(taskID)),
			zap.String("type", errType.String()))
		return false
	}
	e.retriesLeft--
	willRetry := e.retriesLeft >= 0
	m.mu.Unlock()

	glog.Info("taskmanager: retrying task",
		zap.String("task", string(taskID)),
		zap.String("type", errType.String()))
	return willRetry
}

func (m *Manager) MarkGeneratorFailedAndResubmit(taskID iface.TaskID) {
	glog.Info("taskmanager: generator failed, will resubmit", zap.String("task", string(taskID)))
}
