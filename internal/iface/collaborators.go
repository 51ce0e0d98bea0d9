package iface

import "time"

// DependencyResolver resolves a task's argument dependencies before it is
// eligible for dispatch. Resolve invokes done exactly once, with a non-nil
// error if resolution failed (e.g. an upstream object errored).
type DependencyResolver interface {
	Resolve(spec TaskSpec, done func(err error))
	CancelDependencyResolution(taskID TaskID)
}

// FailOrRetryOptions carries the extra context FailOrRetryPendingTask needs
// to decide whether a task gets another attempt.
type FailOrRetryOptions struct {
	MarkObjectFailed bool
	FailImmediately  bool
}

// TaskManager owns task lifecycle bookkeeping and the retry policy; the
// submitter only ever reports outcomes to it and asks whether a task is
// still pending.
type TaskManager interface {
	MarkDependenciesResolved(taskID TaskID)
	MarkTaskWaitingForExecution(taskID TaskID, addr Address)
	MarkTaskCanceled(taskID TaskID)
	IsTaskPending(taskID TaskID) bool
	GetTaskSpec(taskID TaskID) (TaskSpec, bool)
	CompletePendingTask(taskID TaskID, reply PushTaskReply, addr Address, isApplicationError bool)
	FailPendingTask(taskID TaskID, errType ErrorType, info *ErrorInfo)
	// FailOrRetryPendingTask reports failure and returns true if the task
	// manager scheduled a retry. Resubmitting a retried task is the task
	// manager's job; the submitter does not resubmit it.
	FailOrRetryPendingTask(taskID TaskID, errType ErrorType, info *ErrorInfo, opts FailOrRetryOptions) bool
	MarkGeneratorFailedAndResubmit(taskID TaskID)
}

// ActorDirectory is the client's view of the global actor registry (GCS in
// the original). CreateActor and the restart/out-of-scope calls are
// asynchronous; every callback fires on an arbitrary goroutine and must be
// re-posted onto the Executor before touching submitter state.
type ActorDirectory interface {
	CreateActor(spec TaskSpec, done func(CreateActorResult))
	RestartForLineage(actorID ActorID, generation uint64, done func(error))
	ReportOutOfScope(actorID ActorID, generation uint64, done func(error))
}

// RpcClient is a connection to one actor's current worker process.
type RpcClient interface {
	Addr() Address
	PushActorTask(req PushActorTaskRequest, skipQueue bool, done func(err error, reply PushTaskReply))
	CancelTask(req CancelTaskRequest, done func(err error, reply CancelTaskReply))
}

// RpcClientPool hands out (and caches) RpcClient connections by address.
type RpcClientPool interface {
	GetOrConnect(addr Address) RpcClient
	Disconnect(workerID string)
}

// ReferenceCounter tracks object ownership. AddOutOfScopeOrFreedCallback
// registers cb to fire once the object identified by objectID is no longer
// reachable; it returns false and does not register if the object is
// already out of scope, in which case the caller is expected to invoke cb
// itself.
type ReferenceCounter interface {
	AddOutOfScopeOrFreedCallback(objectID string, cb func()) bool
}

// Timer is a cancelable handle to a delayed Executor post.
type Timer interface {
	Stop() bool
}

// Executor is the single-threaded cooperative run loop every submitter
// callback is posted onto; spec.md §5 requires all ClientQueue/actor-state
// mutation to happen on this one logical thread.
type Executor interface {
	Post(tag string, fn func())
	ExecuteAfter(d time.Duration, fn func()) Timer
}

// Clock abstracts wall-clock reads so tests can control elapsed time.
type Clock interface {
	NowMS() int64
}
