package submit

import (
	"time"

	"actorsub/internal/iface"
)

// inflightSend tracks one task the dispatcher has handed to the rpc
// client and is waiting to hear back about. generation pins the actor
// generation the task was sent under, so a reply that arrives after the
// actor has since restarted can be recognized as stale and ignored.
type inflightSend struct {
	generation uint64
	spec       iface.TaskSpec
}

// pendingWait is a task that failed on an apparently-dead connection and
// is stashed for up to the death-info grace period, waiting for the actor
// directory to deliver an authoritative DeathCause before it is finally
// failed.
type pendingWait struct {
	taskID           iface.TaskID
	spec             iface.TaskSpec
	stashedAt        time.Time
	timeoutErrorInfo iface.ErrorInfo // ACTOR_UNAVAILABLE info captured when the wait was stashed, used if no death cause and no preemption arrive before the deadline
}

// cancelAttempt tracks an in-flight cancellation's retry schedule.
type cancelAttempt struct {
	forceKill bool
	recursive bool
	attempt   int
	timer     iface.Timer
}

// clientQueue is the per-actor state the submitter mutates: its lifecycle
// state, its current connection, its ordered submit queue, and the set of
// tasks it has sent but not yet heard back about.
type clientQueue struct {
	actorID         iface.ActorID
	state           iface.ActorState
	generation      uint64 // num_restarts; bumped on every successful reconnect
	lineageRestarts uint64 // num_restarts_due_to_lineage; independent, owner-initiated
	owned           bool
	restartable     bool
	failIfUnreachable bool

	// pendingOutOfScopeDeath is set once the owner's out-of-scope callback
	// has fired and the directory has been asked to mark the actor out of
	// scope. While set, the dispatcher holds every queued task rather than
	// sending it, since the actor is expected to become DEAD shortly.
	pendingOutOfScopeDeath bool

	client iface.RpcClient // nil while PENDING_CREATION/RESTARTING/DEAD

	submitQueue     ActorSubmitQueue
	nextSeqNo       uint64
	taskToSeq       map[iface.TaskID]uint64
	inflight        map[iface.TaskID]inflightSend
	generatorsRetry map[iface.TaskID]struct{}
	waiting         []pendingWait
	cancels         map[iface.TaskID]*cancelAttempt

	maxPendingCalls int
	backpressureAt  int
	deathCause      *iface.DeathCause

	// preempted mirrors an autoscaler drain notification for the node
	// hosting this actor. It arrives independently of DisconnectActor (the
	// GCS may know the node is being drained before it confirms the actor
	// is dead) and is consulted only when a stashed task's death-info grace
	// period expires without an authoritative DeathCause ever arriving.
	preempted bool
}

// newClientQueue treats maxPendingCalls <= 0 as unlimited (spec.md §3):
// it is stored as 0 and both the backpressure warning and PendingTasksFull
// are disabled for the life of the queue.
func newClientQueue(actorID iface.ActorID, owned, restartable, outOfOrder, failIfUnreachable bool, maxPendingCalls int) *clientQueue {
	if maxPendingCalls < 0 {
		maxPendingCalls = 0
	}
	q := &clientQueue{
		actorID:           actorID,
		state:             iface.PendingCreation,
		owned:             owned,
		restartable:       restartable,
		failIfUnreachable: failIfUnreachable,
		submitQueue:       newSubmitQueue(outOfOrder),
		taskToSeq:         make(map[iface.TaskID]uint64),
		inflight:          make(map[iface.TaskID]inflightSend),
		generatorsRetry:   make(map[iface.TaskID]struct{}),
		cancels:           make(map[iface.TaskID]*cancelAttempt),
		maxPendingCalls:   maxPendingCalls,
	}
	if maxPendingCalls > 0 {
		q.backpressureAt = maxPendingCalls
	}
	return q
}

// curPendingCalls mirrors spec.md's cur_pending_calls: the externally
// observable count of outstanding work for this actor (queued + inflight +
// awaiting death info).
func (q *clientQueue) curPendingCalls() int {
	return q.submitQueue.Size() + len(q.inflight) + len(q.waiting)
}

// staleForConnect reports whether a ConnectActor notification carrying
// generation is about an actor version already superseded. A reconnect at
// the same generation (e.g. the initial connection after PENDING_CREATION)
// is accepted, not just a strictly newer one.
func (q *clientQueue) staleForConnect(generation uint64) bool {
	return generation < q.generation
}

// staleForDisconnect reports whether a non-dead DisconnectActor
// notification carrying generation is about a restart already superseded.
// A dead notification is never considered stale by generation.
func (q *clientQueue) staleForDisconnect(generation uint64, dead bool) bool {
	if dead {
		return false
	}
	return generation <= q.generation
}

func (q *clientQueue) nextSequenceNumber() uint64 {
	seq := q.nextSeqNo
	q.nextSeqNo++
	return seq
}
