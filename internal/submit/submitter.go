// Package submit implements the actor task submitter: the client-side
// component that owns each actor's ordered task queue, tracks its
// lifecycle state, dispatches ready tasks over rpc, and translates
// transport and application failures into the task manager's error
// taxonomy. It never executes a task itself and never decides whether a
// failed task is retried — both are delegated to the external
// collaborators in internal/iface.
package submit

import (
	"strconv"
	"sync"
	"time"

	"actorsub/internal/errs"
	"actorsub/internal/iface"
	"actorsub/pkg/glog"

	"github.com/duke-git/lancet/v2/maputil"
	"go.uber.org/zap"
)

// Config covers the submitter's own tunables, independent of how its
// collaborators are wired (that is internal/config's job at the process
// level).
type Config struct {
	// DeathInfoTimeout is how long a task stays stashed waiting for an
	// authoritative DeathCause after a connection failure. <= 0 fails
	// the task immediately instead of stashing it.
	DeathInfoTimeout time.Duration
	// CancelRetryIntervals holds two fixed delays, indexed by scenario
	// rather than retry count: [0] before retrying CancelTask when the
	// actor has no rpc client yet, [1] before resending a CancelTaskRequest
	// that the actor did not acknowledge as succeeded.
	CancelRetryIntervals []time.Duration
}

func DefaultConfig() Config {
	return Config{
		DeathInfoTimeout:     0,
		CancelRetryIntervals: []time.Duration{1000 * time.Millisecond, 2000 * time.Millisecond},
	}
}

// Submitter is the public façade spec.md §6 describes: the only type
// callers outside this package ever touch.
type Submitter struct {
	mu     sync.Mutex
	queues map[iface.ActorID]*clientQueue

	cfg Config

	executor    iface.Executor
	clock       iface.Clock
	resolver    iface.DependencyResolver
	taskManager iface.TaskManager
	directory   iface.ActorDirectory
	clientPool  iface.RpcClientPool
	refCounter  iface.ReferenceCounter

	workerID string

	sweepTimer iface.Timer
}

// Deps bundles the external collaborators a Submitter needs. All are
// required; none have a usable nil default.
type Deps struct {
	Executor    iface.Executor
	Clock       iface.Clock
	Resolver    iface.DependencyResolver
	TaskManager iface.TaskManager
	Directory   iface.ActorDirectory
	ClientPool  iface.RpcClientPool
	RefCounter  iface.ReferenceCounter
	WorkerID    string
}

func New(cfg Config, deps Deps) *Submitter {
	s := &Submitter{
		queues:      make(map[iface.ActorID]*clientQueue),
		cfg:         cfg,
		executor:    deps.Executor,
		clock:       deps.Clock,
		resolver:    deps.Resolver,
		taskManager: deps.TaskManager,
		directory:   deps.Directory,
		clientPool:  deps.ClientPool,
		refCounter:  deps.RefCounter,
		workerID:    deps.WorkerID,
	}
	return s
}

// Start arms the periodic timeout sweep that fails tasks whose
// death-info grace period has expired (spec.md §4.6).
func (s *Submitter) Start(interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	s.armSweep(interval)
}

func (s *Submitter) armSweep(interval time.Duration) {
	s.sweepTimer = s.executor.ExecuteAfter(interval, func() {
		s.CheckTimeoutTasks()
		s.armSweep(interval)
	})
}

func (s *Submitter) Stop() {
	if s.sweepTimer != nil {
		s.sweepTimer.Stop()
	}
}

// AddActorQueueIfNotExists registers a new actor with the submitter. It is
// idempotent: a second call for an actor already present is a no-op, and
// in particular only the call that actually inserts the queue arms the
// out-of-scope callback (matching the original's `inserted` guard) — and
// only when the caller owns the actor; a non-owning handle never reports
// the actor out of scope, since it is not the one responsible for telling
// the directory to kill it.
func (s *Submitter) AddActorQueueIfNotExists(actorID iface.ActorID, owned, restartable, executeOutOfOrder, failIfUnreachable bool, maxPendingCalls int) {
	s.mu.Lock()
	_, exists := s.queues[actorID]
	var q *clientQueue
	if !exists {
		q = newClientQueue(actorID, owned, restartable, executeOutOfOrder, failIfUnreachable, maxPendingCalls)
		s.queues[actorID] = q
	}
	s.mu.Unlock()

	if exists {
		return
	}
	glog.Info("submit: actor queue added", zap.String("actor", string(actorID)))
	if owned {
		s.armOutOfScope(actorID, 0)
	}
}

func (s *Submitter) armOutOfScope(actorID iface.ActorID, generation uint64) {
	objectID := outOfScopeObjectID(actorID)
	registered := s.refCounter.AddOutOfScopeOrFreedCallback(objectID, func() {
		s.executor.Post("out-of-scope", func() {
			s.onActorOutOfScope(actorID, generation)
		})
	})
	if !registered {
		s.onActorOutOfScope(actorID, generation)
	}
}

func outOfScopeObjectID(actorID iface.ActorID) string {
	return "actor:" + string(actorID)
}

// onActorOutOfScope fires once the actor handle's own creation-return
// object is no longer reachable. lineageGeneration is the lineage-restart
// counter the callback was armed under (0 for the initial arm from
// AddActorQueueIfNotExists), passed straight through to the directory —
// it is not compared against anything, since a stale re-arm from an old
// lineage generation is impossible: each restart re-arms exactly once, on
// success, after the previous arm already fired.
func (s *Submitter) onActorOutOfScope(actorID iface.ActorID, lineageGeneration uint64) {
	s.mu.Lock()
	if q, ok := s.queues[actorID]; ok && q.state != iface.Dead {
		q.pendingOutOfScopeDeath = true
	}
	s.mu.Unlock()

	s.directory.ReportOutOfScope(actorID, lineageGeneration, func(err error) {
		if err != nil {
			glog.Warn("submit: report out-of-scope failed", zap.String("actor", string(actorID)), zap.Error(err))
		}
	})
}

// ConnectActor transitions an actor's queue to ALIVE at the given address
// and generation, short-circuiting if the address is already current or the
// actor is already confirmed DEAD, and flushes every queued-and-resolved
// task to the new connection. Tasks stashed in wait_for_death_info are left
// untouched here: only an authoritative DisconnectActor or the timeout
// sweep resolves them, never a reconnect.
func (s *Submitter) ConnectActor(actorID iface.ActorID, addr iface.Address, generation uint64) {
	s.mu.Lock()
	q, ok := s.queues[actorID]
	if !ok {
		s.mu.Unlock()
		return
	}
	if q.staleForConnect(generation) {
		glog.Info("submit: stale ConnectActor ignored",
			zap.String("actor", string(actorID)), zap.Uint64("generation", generation), zap.Uint64("current", q.generation))
		s.mu.Unlock()
		return
	}
	if q.client != nil && q.client.Addr() == addr {
		s.mu.Unlock()
		return
	}
	if q.state == iface.Dead {
		s.mu.Unlock()
		return
	}
	q.generation = generation
	// A reconnect over an already-connected client (the previous address
	// dropped without ever sending a DisconnectActor) flushes whatever was
	// still in flight the same way a restart notification would.
	inflightSends := q.inflight
	q.inflight = make(map[iface.TaskID]inflightSend)
	q.state = iface.Alive
	q.client = s.clientPool.GetOrConnect(addr)
	s.mu.Unlock()

	glog.Info("submit: actor connected", zap.String("actor", string(actorID)), zap.Uint64("generation", generation))

	for taskID, sent := range inflightSends {
		s.resolver.CancelDependencyResolution(taskID)
		s.handleTransportFailure(actorID, taskID, sent.spec, iface.Alive, nil)
	}
	s.sendPendingTasks(actorID)
}

// DisconnectActor transitions an actor's queue away from ALIVE, closing its
// rpc client either way. Every in-flight callback is always flushed with a
// synthetic transport failure (spec.md §4.2's "move inflight_callbacks to
// failure fan-out") — that is true whether the actor merely restarted or
// died outright. A DEAD, non-restartable-or-unowned actor additionally has
// its whole submit queue and death-info wait list failed outright; an
// owned, restartable DEAD actor that still has tasks queued instead
// triggers lineage reconstruction immediately (the same transition
// SubmitTask triggers when a caller submits to an already-DEAD actor).
func (s *Submitter) DisconnectActor(actorID iface.ActorID, generation uint64, isDead bool, deathCause *iface.DeathCause) {
	s.mu.Lock()
	q, ok := s.queues[actorID]
	if !ok {
		s.mu.Unlock()
		return
	}
	if q.staleForDisconnect(generation, isDead) {
		s.mu.Unlock()
		return
	}
	q.client = nil
	q.deathCause = deathCause

	inflightSends := q.inflight
	q.inflight = make(map[iface.TaskID]inflightSend)

	var drained []queueEntry
	var waiting []pendingWait
	restartLineage := false
	if isDead {
		q.state = iface.Dead
		q.pendingOutOfScopeDeath = false
		if q.restartable && q.owned {
			restartLineage = q.submitQueue.Size() > 0
		} else {
			drained = q.submitQueue.DrainAll()
			waiting = q.waiting
			q.waiting = nil
		}
	} else if q.state != iface.Dead {
		q.state = iface.Restarting
		q.generation = generation
	}
	if restartLineage {
		s.restartForLineage(actorID, q)
	}
	newState := q.state
	s.mu.Unlock()

	if len(drained) > 0 || len(waiting) > 0 {
		info := deathInfoFor(deathCause)
		for _, e := range drained {
			s.taskManager.MarkTaskCanceled(e.spec.TaskID())
			s.resolver.CancelDependencyResolution(e.spec.TaskID())
			s.taskManager.FailOrRetryPendingTask(e.spec.TaskID(), iface.ActorDied, &info, iface.FailOrRetryOptions{MarkObjectFailed: true, FailImmediately: true})
		}
		for _, w := range waiting {
			s.taskManager.FailPendingTask(w.taskID, iface.ActorDied, &info)
		}
	}

	for taskID, sent := range inflightSends {
		s.resolver.CancelDependencyResolution(taskID)
		s.handleTransportFailure(actorID, taskID, sent.spec, newState, deathCause)
	}

	glog.Info("submit: actor disconnected", zap.String("actor", string(actorID)), zap.Bool("dead", isDead))
}

func deathInfoFor(cause *iface.DeathCause) iface.ErrorInfo {
	if cause == nil {
		return iface.ErrorInfo{Type: iface.ActorDied, Message: "actor died"}
	}
	return iface.ErrorInfo{Type: iface.ActorDied, Message: cause.Message, DeathCause: cause}
}

// restartForLineage implements the DEAD -> RESTARTING transition (spec.md
// §4.2), triggered either by SubmitTask (a new task submitted against an
// already-DEAD owned, restartable actor) or by DisconnectActor itself (the
// actor died with tasks still queued from before). The queue's own
// lineage-restart counter is independent of the connection generation, and
// — unlike a reconnect — the state flips synchronously. The directory call
// is asynchronous: a failure is only logged, and a success re-arms the
// out-of-scope callback; the actor becoming reachable again arrives later
// as an ordinary ConnectActor. Caller must hold s.mu and the queue must be
// owned, restartable and DEAD.
func (s *Submitter) restartForLineage(actorID iface.ActorID, q *clientQueue) {
	q.state = iface.Restarting
	q.lineageRestarts++
	lineageGen := q.lineageRestarts

	s.directory.RestartForLineage(actorID, lineageGen, func(err error) {
		if err != nil {
			glog.Warn("submit: restart for lineage failed", zap.String("actor", string(actorID)), zap.Error(errs.ErrRestartForLineageFailed(string(actorID), err)))
			return
		}
		s.armOutOfScope(actorID, lineageGen)
	})
}

// SetActorPreempted records that the node hosting actorID has been marked
// for autoscaler drain, independent of any DisconnectActor notification —
// the GCS can learn a node is draining before it confirms the actor on it
// has actually died. It only affects tasks that are later found stashed in
// wait_for_death_info when their grace period expires (spec.md §4.6, S4).
func (s *Submitter) SetActorPreempted(actorID iface.ActorID, preempted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q, ok := s.queues[actorID]; ok {
		q.preempted = preempted
	}
}

// GetLocalActorState reports the caller's last-known lifecycle state for
// actorID, or false if this submitter has never heard of it.
func (s *Submitter) GetLocalActorState(actorID iface.ActorID) (iface.ActorState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.queues[actorID]
	if !ok {
		return 0, false
	}
	return q.state, true
}

// IsActorAlive reports whether actorID's queue is currently ALIVE.
func (s *Submitter) IsActorAlive(actorID iface.ActorID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.queues[actorID]
	return ok && q.state == iface.Alive
}

// GetActorAddress returns the address of actorID's current rpc client, if
// it has one.
func (s *Submitter) GetActorAddress(actorID iface.ActorID) (iface.Address, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.queues[actorID]
	if !ok || q.client == nil {
		return iface.Address{}, false
	}
	return q.client.Addr(), true
}

// PendingTasksFull reports whether actorID's queue has reached its
// configured max_pending_calls. A queue configured as unlimited (<= 0) is
// never full.
func (s *Submitter) PendingTasksFull(actorID iface.ActorID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.queues[actorID]
	if !ok || q.maxPendingCalls <= 0 {
		return false
	}
	return q.curPendingCalls() >= q.maxPendingCalls
}

// NumPendingTasks reports actorID's cur_pending_calls: queued + inflight +
// awaiting-death-info.
func (s *Submitter) NumPendingTasks(actorID iface.ActorID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.queues[actorID]
	if !ok {
		return 0
	}
	return q.curPendingCalls()
}

// CheckActorExists reports whether add_actor_queue has ever been called
// for actorID.
func (s *Submitter) CheckActorExists(actorID iface.ActorID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.queues[actorID]
	return ok
}

// DebugString summarizes every tracked actor's queue depth and state, the
// way the original's DebugString() does for operator diagnostics.
func (s *Submitter) DebugString() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	actorIDs := maputil.Keys(s.queues)
	out := ""
	for _, actorID := range actorIDs {
		q := s.queues[actorID]
		out += string(actorID) + ": state=" + q.state.String() +
			" queued=" + strconv.Itoa(q.submitQueue.Size()) +
			" inflight=" + strconv.Itoa(len(q.inflight)) + "\n"
	}
	return out
}
