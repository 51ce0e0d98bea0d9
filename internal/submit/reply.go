package submit

import (
	"time"

	"actorsub/internal/errs"
	"actorsub/internal/iface"
	"actorsub/pkg/glog"

	pkgerrors "github.com/pkg/errors"
	"go.uber.org/zap"
)

// QueueGeneratorForResubmit marks spec's task so that the next reply
// received for it — if that reply arrives without a transport error — is
// treated as a generator that needs resubmitting rather than a normal
// completion. It exists for object-recovery callers (outside this package)
// that need to force a streaming generator to re-run even though its
// original attempt is still in flight. Always returns true (spec.md §9:
// the original never fails this call; whether an already-canceled task
// should refuse it is an open question we do not guess at).
func (s *Submitter) QueueGeneratorForResubmit(spec iface.TaskSpec) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.queues[spec.ActorID()]
	if !ok {
		return true
	}
	q.generatorsRetry[spec.TaskID()] = struct{}{}
	return true
}

// handlePushTaskReply is the single entry point every PushActorTask
// callback funnels through, on the executor's logical thread. It
// implements the dedup guard (a reply for a task no longer tracked as
// in-flight — because a disconnect already flushed it, or a second reply
// somehow arrived — is dropped) and then the full success/failure
// decision tree from spec.md §4.5.
func (s *Submitter) handlePushTaskReply(actorID iface.ActorID, spec iface.TaskSpec, sentGeneration uint64, transportErr error, reply iface.PushTaskReply) {
	taskID := spec.TaskID()

	s.mu.Lock()
	q, ok := s.queues[actorID]
	if !ok {
		s.mu.Unlock()
		return
	}
	sent, inflight := q.inflight[taskID]
	if !inflight || sent.generation != sentGeneration {
		// Already handled via another path (disconnect flush, a stale
		// reply after reconnect) — the dedup guard fires exactly once.
		s.mu.Unlock()
		return
	}
	delete(q.inflight, taskID)

	// Decision point 1 (spec.md §4.5): a task queued for object-recovery
	// resubmission takes priority over every other outcome, as long as
	// this reply did not itself fail in transport.
	_, wasQueuedForResubmit := q.generatorsRetry[taskID]
	resubmitGenerator := wasQueuedForResubmit && transportErr == nil
	if resubmitGenerator {
		delete(q.generatorsRetry, taskID)
	}
	currentGeneration := q.generation
	currentState := q.state
	deathCause := q.deathCause
	s.mu.Unlock()

	if resubmitGenerator {
		s.taskManager.MarkGeneratorFailedAndResubmit(taskID)
		return
	}

	if transportErr == nil {
		s.handleReplySuccessPath(actorID, taskID, reply)
		s.sendPendingTasks(actorID)
		return
	}

	if sentGeneration != currentGeneration {
		// The actor has since restarted under a new connection; whatever
		// happens to this stale attempt no longer matters to the current
		// generation's bookkeeping.
		glog.Debug("submit: dropping stale reply", zap.String("task", string(taskID)))
		return
	}

	if pkgerrors.Is(transportErr, errs.ErrSchedulingCancelled) {
		info := iface.ErrorInfo{Type: iface.TaskCancelled, Message: "task scheduling was cancelled"}
		s.taskManager.FailPendingTask(taskID, iface.TaskCancelled, &info)
		return
	}

	s.resolver.CancelDependencyResolution(taskID)
	s.handleTransportFailure(actorID, taskID, spec, currentState, deathCause)
	s.sendPendingTasks(actorID)
}

func (s *Submitter) handleReplySuccessPath(actorID iface.ActorID, taskID iface.TaskID, reply iface.PushTaskReply) {
	client := iface.Address{}
	s.mu.Lock()
	if q, ok := s.queues[actorID]; ok && q.client != nil {
		client = q.client.Addr()
	}
	s.mu.Unlock()

	if reply.IsRetryableError {
		// A retryable user exception is still resolved with the task
		// manager's own retry policy, never resubmitted directly by this
		// package: whether and when the task runs again is entirely the
		// task manager's decision (it is the one that re-enters SubmitTask
		// if it decides to retry).
		info := iface.ErrorInfo{Type: iface.TaskExecutionException, Message: reply.TaskExecutionError}
		willRetry := s.taskManager.FailOrRetryPendingTask(taskID, iface.TaskExecutionException, &info, iface.FailOrRetryOptions{})
		if !willRetry {
			s.taskManager.CompletePendingTask(taskID, reply, client, reply.IsApplicationError)
		}
		return
	}

	s.taskManager.CompletePendingTask(taskID, reply, client, reply.IsApplicationError)
}

// handleTransportFailure deals with a push that never got a reply because
// the connection failed. It always asks the task manager whether the task
// gets another attempt; a confirmed-dead actor stops there regardless of
// the answer (spec.md §4.5 point 4), since there is nothing left to wait
// for. Otherwise, if the task manager declines a retry, the task is either
// stashed to wait for an authoritative DeathCause to arrive via
// DisconnectActor, or — with no grace period configured — failed outright.
func (s *Submitter) handleTransportFailure(actorID iface.ActorID, taskID iface.TaskID, spec iface.TaskSpec, state iface.ActorState, deathCause *iface.DeathCause) {
	isDead := state == iface.Dead

	var errType iface.ErrorType
	var info iface.ErrorInfo
	failImmediately := false
	if isDead {
		errType = iface.ActorDied
		info = deathInfoFor(deathCause)
		failImmediately = deathCause != nil && deathCause.FailImmediately
	} else {
		errType = iface.ActorUnavailable
		info = iface.ErrorInfo{Type: iface.ActorUnavailable, Message: "connection to actor failed"}
	}

	willRetry := s.taskManager.FailOrRetryPendingTask(taskID, errType, &info, iface.FailOrRetryOptions{MarkObjectFailed: isDead, FailImmediately: failImmediately})
	if isDead || willRetry {
		return
	}

	if s.cfg.DeathInfoTimeout > 0 {
		s.stashForDeathInfo(actorID, taskID, spec, info)
		return
	}
	s.taskManager.FailPendingTask(taskID, errType, &info)
}

func (s *Submitter) stashForDeathInfo(actorID iface.ActorID, taskID iface.TaskID, spec iface.TaskSpec, timeoutErrorInfo iface.ErrorInfo) {
	s.mu.Lock()
	q, ok := s.queues[actorID]
	if !ok {
		s.mu.Unlock()
		return
	}
	q.waiting = append(q.waiting, pendingWait{
		taskID:           taskID,
		spec:             spec,
		stashedAt:        s.now(),
		timeoutErrorInfo: timeoutErrorInfo,
	})
	s.mu.Unlock()

	glog.Warn("submit: stashing task pending death info", zap.String("actor", string(actorID)), zap.String("task", string(taskID)))
}

func (s *Submitter) now() time.Time {
	if s.clock == nil {
		return time.Now()
	}
	return time.UnixMilli(s.clock.NowMS())
}
