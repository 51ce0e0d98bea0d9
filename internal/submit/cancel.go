package submit

import (
	"time"

	"actorsub/internal/errs"
	"actorsub/internal/iface"
	"actorsub/pkg/glog"

	"go.uber.org/zap"
)

const defaultCancelRetryDelay = time.Second

// CancelTask cancels a task against the given actor. forceKill is not acted
// on here; it is forwarded unchanged in the CancelTaskRequest. A task still
// waiting in the submit queue (never sent) is simply dropped, no rpc
// involved. A task already in flight gets a CancelTaskRequest, retried
// after a fixed delay until the actor confirms the attempt succeeded or the
// task manager reports the task is no longer pending.
func (s *Submitter) CancelTask(actorID iface.ActorID, taskID iface.TaskID, forceKill, recursive bool) error {
	if !s.taskManager.IsTaskPending(taskID) {
		s.taskManager.MarkTaskCanceled(taskID)
		return nil
	}

	s.mu.Lock()
	q, ok := s.queues[actorID]
	if !ok {
		s.mu.Unlock()
		return errs.ErrActorQueueNotFound
	}

	// Cancellation dominates a pending generator resubmission.
	delete(q.generatorsRetry, taskID)

	if q.state == iface.Dead {
		s.mu.Unlock()
		return nil
	}

	seqNo := taskIDToSeqNo(q, taskID)
	queued := q.submitQueue.Contains(seqNo)
	if queued {
		s.resolver.CancelDependencyResolution(taskID)
		q.submitQueue.MarkCanceled(seqNo)
	}
	stashed := !queued && removeStashed(q, taskID)
	client := q.client
	s.mu.Unlock()

	if queued {
		info := iface.ErrorInfo{Type: iface.TaskCancelled, Message: "task canceled before it executed"}
		s.taskManager.FailOrRetryPendingTask(taskID, iface.TaskCancelled, &info, iface.FailOrRetryOptions{})
		return nil
	}
	if stashed {
		s.taskManager.MarkTaskCanceled(taskID)
		return nil
	}

	if client == nil {
		s.executor.ExecuteAfter(s.cancelRetryDelay(0), func() {
			_ = s.CancelTask(actorID, taskID, forceKill, recursive)
		})
		return nil
	}

	s.sendCancel(actorID, taskID, forceKill, recursive, 0)
	return nil
}

// taskIDToSeqNo is a placeholder seam: the queue is keyed by sequence
// number, so CancelTask needs the caller's original sequence number to
// remove an unsent entry. Callers that go through Submitter.SubmitTask
// always know it; tests construct it directly.
func taskIDToSeqNo(q *clientQueue, taskID iface.TaskID) uint64 {
	if seq, ok := q.taskToSeq[taskID]; ok {
		return seq
	}
	return ^uint64(0)
}

func removeStashed(q *clientQueue, taskID iface.TaskID) bool {
	for i, w := range q.waiting {
		if w.taskID == taskID {
			q.waiting = append(q.waiting[:i], q.waiting[i+1:]...)
			return true
		}
	}
	return false
}

func (s *Submitter) sendCancel(actorID iface.ActorID, taskID iface.TaskID, forceKill, recursive bool, attempt int) {
	s.mu.Lock()
	q, ok := s.queues[actorID]
	if !ok {
		s.mu.Unlock()
		return
	}
	client := q.client
	if client == nil {
		s.mu.Unlock()
		return
	}
	q.cancels[taskID] = &cancelAttempt{forceKill: forceKill, recursive: recursive, attempt: attempt}
	s.mu.Unlock()

	req := iface.CancelTaskRequest{TaskID: taskID, ForceKill: forceKill, Recursive: recursive, CallerWorkerID: s.workerID}
	client.CancelTask(req, func(err error, reply iface.CancelTaskReply) {
		s.executor.Post("cancel-reply", func() {
			s.handleCancelReply(actorID, taskID, forceKill, recursive, attempt, err, reply)
		})
	})
}

func (s *Submitter) handleCancelReply(actorID iface.ActorID, taskID iface.TaskID, forceKill, recursive bool, attempt int, transportErr error, reply iface.CancelTaskReply) {
	if !s.taskManager.IsTaskPending(taskID) {
		// The task already completed, failed, or was canceled through
		// another path; nothing left to cancel.
		s.clearCancelState(actorID, taskID)
		return
	}

	if reply.AttemptSucceeded {
		s.clearCancelState(actorID, taskID)
		return
	}

	glog.Debug("submit: cancel RPC response received",
		zap.String("task", string(taskID)), zap.Error(transportErr))
	glog.Info("submit: retrying cancellation", zap.String("task", string(taskID)), zap.Int("attempt", attempt+1))
	s.scheduleRetryCancel(actorID, taskID, forceKill, recursive, attempt+1)
}

func (s *Submitter) scheduleRetryCancel(actorID iface.ActorID, taskID iface.TaskID, forceKill, recursive bool, nextAttempt int) {
	// Every retry of an already-sent cancellation waits the same fixed
	// delay (spec.md §5: "2000 ms otherwise") — this is not a growing
	// backoff sequence, unlike the single one-shot 1000 ms delay used when
	// there is no rpc client yet.
	delay := s.cancelRetryDelay(1)
	timer := s.executor.ExecuteAfter(delay, func() {
		s.sendCancel(actorID, taskID, forceKill, recursive, nextAttempt)
	})

	s.mu.Lock()
	if q, ok := s.queues[actorID]; ok {
		if ca, ok := q.cancels[taskID]; ok {
			ca.timer = timer
			ca.attempt = nextAttempt
		}
	}
	s.mu.Unlock()
}

// cancelRetryDelay looks up a fixed retry delay by scenario index: 0 for
// "no rpc client yet" (spec.md default 1000 ms), 1 for "sent but not yet
// acknowledged" (default 2000 ms). Neither grows with the retry count.
func (s *Submitter) cancelRetryDelay(idx int) time.Duration {
	intervals := s.cfg.CancelRetryIntervals
	if idx < 0 || idx >= len(intervals) {
		return defaultCancelRetryDelay
	}
	return intervals[idx]
}

func (s *Submitter) clearCancelState(actorID iface.ActorID, taskID iface.TaskID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.queues[actorID]
	if !ok {
		return
	}
	if ca, ok := q.cancels[taskID]; ok && ca.timer != nil {
		ca.timer.Stop()
	}
	delete(q.cancels, taskID)
}
