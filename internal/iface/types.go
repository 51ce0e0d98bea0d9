// Package iface defines the collaborator interfaces and wire types the
// actor task submitter depends on: the dependency resolver, task manager,
// actor directory, rpc client pool and reference counter are all external
// to the submitter and only ever touched through these interfaces.
package iface

// ActorID is an opaque identifier for a long-lived remote actor.
type ActorID string

// TaskID is an opaque identifier derived from a task spec.
type TaskID string

// TaskAttempt pairs a task with one of its (re)execution attempts.
type TaskAttempt struct {
	TaskID        TaskID
	AttemptNumber uint64
}

// Address identifies a reachable worker process.
type Address struct {
	NodeID   string
	WorkerID string
	IP       string
	Port     int
}

// ActorState mirrors the lifecycle states a ClientQueue can be in.
type ActorState int32

const (
	PendingCreation ActorState = iota
	Alive
	Restarting
	Dead
)

func (s ActorState) String() string {
	switch s {
	case PendingCreation:
		return "PENDING_CREATION"
	case Alive:
		return "ALIVE"
	case Restarting:
		return "RESTARTING"
	case Dead:
		return "DEAD"
	default:
		return "UNKNOWN"
	}
}

// NodeDeathReason distinguishes why the node hosting an actor went away,
// used only to synthesize the preemption-timeout error (spec.md S4).
type NodeDeathReason int32

const (
	NodeDeathReasonUnspecified NodeDeathReason = iota
	NodeDeathReasonAutoscalerDrainPreempted
)

// DeathCauseKind classifies why an actor died.
type DeathCauseKind int32

const (
	DeathCauseUnspecified DeathCauseKind = iota
	DeathCauseActorError                // actor process raised/exited on its own
	DeathCauseOOM                       // killed by the out-of-memory monitor
	DeathCauseNodeDied                  // the node hosting it died or was preempted
)

// DeathCause carries the authoritative reason an actor became DEAD.
type DeathCause struct {
	Kind             DeathCauseKind
	Message          string
	FailImmediately  bool // set for an OOM cause; skips the death-info grace period
	NodeDeathReason  NodeDeathReason
}

// TaskSpec is an immutable descriptor of one actor method invocation.
// Construct with NewTaskSpec / NewActorCreationTaskSpec; fields are read
// only through accessors so a TaskSpec can be passed by value and shared
// across goroutines without synchronization.
type TaskSpec struct {
	taskID          TaskID
	actorID         ActorID
	sequenceNumber  uint64
	attemptNumber   uint64
	isActorCreation bool
	callerWorkerID  string
	body            []byte
}

func NewTaskSpec(taskID TaskID, actorID ActorID, sequenceNumber uint64, attemptNumber uint64, callerWorkerID string, body []byte) TaskSpec {
	return TaskSpec{
		taskID:         taskID,
		actorID:        actorID,
		sequenceNumber: sequenceNumber,
		attemptNumber:  attemptNumber,
		callerWorkerID: callerWorkerID,
		body:           body,
	}
}

func NewActorCreationTaskSpec(taskID TaskID, actorID ActorID, callerWorkerID string, body []byte) TaskSpec {
	spec := NewTaskSpec(taskID, actorID, 0, 0, callerWorkerID, body)
	spec.isActorCreation = true
	return spec
}

func (t TaskSpec) TaskID() TaskID            { return t.taskID }
func (t TaskSpec) ActorID() ActorID          { return t.actorID }
func (t TaskSpec) SequenceNumber() uint64    { return t.sequenceNumber }
func (t TaskSpec) AttemptNumber() uint64     { return t.attemptNumber }
func (t TaskSpec) IsActorCreation() bool     { return t.isActorCreation }
func (t TaskSpec) CallerWorkerID() string    { return t.callerWorkerID }
func (t TaskSpec) Body() []byte              { return t.body }
func (t TaskSpec) Attempt() TaskAttempt {
	return TaskAttempt{TaskID: t.taskID, AttemptNumber: t.attemptNumber}
}

// WithNextAttempt returns a copy of the spec bumped to the next attempt
// number. Neither the submitter nor the in-memory task manager calls it.
func (t TaskSpec) WithNextAttempt() TaskSpec {
	t.attemptNumber++
	return t
}

// PushTaskReply is the receiver's answer to a PushActorTask call.
type PushTaskReply struct {
	IsRetryableError   bool
	IsApplicationError bool
	TaskExecutionError string
	BorrowedRefs       interface{}
	DeathCause         *DeathCause
}

// CreateActorResult is the directory's answer to CreateActor.
type CreateActorResult struct {
	Err                   error
	IsCreationTaskError   bool
	IsSchedulingCancelled bool
	Reply                 PushTaskReply
	Address               Address
}

// PushActorTaskRequest is what the submitter hands to an RpcClient.
type PushActorTaskRequest struct {
	TaskSpec         TaskSpec
	IntendedWorkerID string
	SequenceNumber   uint64
}

// CancelTaskRequest is what the submitter hands to an RpcClient to cancel
// an already-sent task.
type CancelTaskRequest struct {
	TaskID         TaskID
	ForceKill      bool
	Recursive      bool
	CallerWorkerID string
}

// CancelTaskReply is the receiver's answer to a CancelTask call.
type CancelTaskReply struct {
	AttemptSucceeded bool
}
