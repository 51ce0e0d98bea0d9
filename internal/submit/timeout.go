package submit

import (
	"actorsub/internal/iface"
	"actorsub/pkg/glog"

	"go.uber.org/zap"
)

// CheckTimeoutTasks sweeps every actor's stashed-for-death-info tasks and
// fails any whose grace period has elapsed without an authoritative
// DeathCause arriving. It is the TimeoutSweeper of spec.md §4.6, normally
// driven by the periodic timer armed in Start, but safe to call directly
// from tests.
func (s *Submitter) CheckTimeoutTasks() {
	now := s.now()
	type expired struct {
		taskID    iface.TaskID
		preempted bool
		info      iface.ErrorInfo
	}

	s.mu.Lock()
	var toFail []expired
	for _, q := range s.queues {
		if len(q.waiting) == 0 {
			continue
		}
		remaining := q.waiting[:0]
		for _, w := range q.waiting {
			if now.Sub(w.stashedAt) >= s.cfg.DeathInfoTimeout {
				// Snapshot whether the node has been reported preempted
				// while still holding the lock, matching the original's
				// `actor_preempted = client_queue.preempted` before the
				// deque entry is handed off outside the lock.
				toFail = append(toFail, expired{taskID: w.taskID, preempted: q.preempted, info: w.timeoutErrorInfo})
				continue
			}
			remaining = append(remaining, w)
		}
		q.waiting = remaining
	}
	s.mu.Unlock()

	for _, e := range toFail {
		info := e.info
		if e.preempted {
			// The grace period expired without an authoritative death
			// cause, but the node hosting the actor is known to be
			// draining: treat that as good enough evidence the actor is
			// dead rather than merely unavailable.
			cause := &iface.DeathCause{
				Kind:            iface.DeathCauseNodeDied,
				Message:         "the node was inferred to be dead due to draining",
				NodeDeathReason: iface.NodeDeathReasonAutoscalerDrainPreempted,
			}
			info = deathInfoFor(cause)
		}
		glog.Info("submit: death-info grace period expired", zap.String("task", string(e.taskID)), zap.Bool("preempted", e.preempted))
		s.taskManager.FailPendingTask(e.taskID, info.Type, &info)
	}
}
