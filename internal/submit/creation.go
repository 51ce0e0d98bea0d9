package submit

import (
	"actorsub/internal/errs"
	"actorsub/internal/iface"
	"actorsub/pkg/glog"

	"go.uber.org/zap"
)

// SubmitTask enqueues spec on its actor's submit queue and starts
// resolving its dependencies. The caller is expected to have already
// registered the task with the TaskManager (spec.md's TaskManager owns
// task registration; the submitter only ever reports outcomes back to
// it). Returns an error if the actor has no queue yet. A task submitted to
// an actor that is confirmed dead, with no lineage reconstruction started,
// is marked canceled and failed through the task manager with ACTOR_DIED
// and the recorded death cause; SubmitTask then returns nil.
func (s *Submitter) SubmitTask(spec iface.TaskSpec) error {
	actorID := spec.ActorID()

	s.mu.Lock()
	q, ok := s.queues[actorID]
	if !ok {
		s.mu.Unlock()
		return errs.ErrActorQueueNotFound
	}
	if q.state == iface.Dead && q.restartable && q.owned {
		s.restartForLineage(actorID, q)
	}
	if q.state == iface.Dead {
		deathCause := q.deathCause
		s.mu.Unlock()
		s.taskManager.MarkTaskCanceled(spec.TaskID())
		info := deathInfoFor(deathCause)
		failImmediately := deathCause != nil && deathCause.FailImmediately
		s.taskManager.FailOrRetryPendingTask(spec.TaskID(), iface.ActorDied, &info, iface.FailOrRetryOptions{MarkObjectFailed: true, FailImmediately: failImmediately})
		return nil
	}
	seqNo := q.nextSequenceNumber()
	q.taskToSeq[spec.TaskID()] = seqNo
	q.submitQueue.Add(seqNo, spec)
	s.mu.Unlock()

	s.resolver.Resolve(spec, func(err error) {
		s.executor.Post("dependencies-resolved", func() {
			s.onDependenciesResolved(actorID, seqNo, spec, err)
		})
	})
	return nil
}

func (s *Submitter) onDependenciesResolved(actorID iface.ActorID, seqNo uint64, spec iface.TaskSpec, err error) {
	s.mu.Lock()
	q, ok := s.queues[actorID]
	if !ok {
		s.mu.Unlock()
		return
	}
	if err != nil {
		_, removed := q.submitQueue.MarkDependencyFailed(seqNo)
		delete(q.taskToSeq, spec.TaskID())
		s.mu.Unlock()
		if removed {
			info := iface.ErrorInfo{Type: iface.DependencyResolutionFailed, Message: err.Error()}
			s.taskManager.FailOrRetryPendingTask(spec.TaskID(), iface.DependencyResolutionFailed, &info, iface.FailOrRetryOptions{})
		}
		return
	}
	q.submitQueue.MarkResolved(seqNo)
	s.mu.Unlock()

	s.taskManager.MarkDependenciesResolved(spec.TaskID())
	s.sendPendingTasks(actorID)
}

// SubmitActorCreationTask is the one path that bypasses the ordered
// submit queue entirely: the actor does not exist yet, so there is
// nothing to queue against. Like SubmitTask, it still resolves
// dependencies first; only once those resolve does it call the directory,
// and on success connects the actor queue to the address handed back.
func (s *Submitter) SubmitActorCreationTask(spec iface.TaskSpec) error {
	if !spec.IsActorCreation() {
		return errs.ErrUnexpectedState(string(spec.ActorID()), "not-a-creation-task")
	}
	actorID := spec.ActorID()

	s.resolver.Resolve(spec, func(err error) {
		s.executor.Post("actor-creation-dependencies-resolved", func() {
			s.onActorCreationDependenciesResolved(actorID, spec, err)
		})
	})
	return nil
}

func (s *Submitter) onActorCreationDependenciesResolved(actorID iface.ActorID, spec iface.TaskSpec, err error) {
	s.taskManager.MarkDependenciesResolved(spec.TaskID())
	if err != nil {
		glog.Warn("submit: resolving actor creation task dependencies failed", zap.String("actor", string(actorID)), zap.Error(err))
		info := iface.ErrorInfo{Type: iface.DependencyResolutionFailed, Message: err.Error()}
		s.taskManager.FailOrRetryPendingTask(spec.TaskID(), iface.DependencyResolutionFailed, &info, iface.FailOrRetryOptions{})
		return
	}

	s.directory.CreateActor(spec, func(result iface.CreateActorResult) {
		s.executor.Post("create-actor-result", func() {
			s.onActorCreated(actorID, spec, result)
		})
	})
}

func (s *Submitter) onActorCreated(actorID iface.ActorID, spec iface.TaskSpec, result iface.CreateActorResult) {
	if result.Err == nil || result.IsCreationTaskError {
		// A creation-task application error still completes the task: GCS
		// does not retry it, so it is reported as a failed application
		// result rather than a retryable submitter-side outcome.
		s.taskManager.CompletePendingTask(spec.TaskID(), result.Reply, result.Address, result.IsCreationTaskError)
		if result.Err == nil {
			s.ConnectActor(actorID, result.Address, 0)
		}
		return
	}

	// Either the rpc call itself failed or actor scheduling was cancelled.
	// Creation retries happen inside GCS, not here, so this is always
	// terminal.
	info := iface.ErrorInfo{Type: iface.ActorCreationFailed, Message: result.Err.Error()}
	if result.IsSchedulingCancelled {
		glog.Info("submit: actor creation scheduling cancelled", zap.String("actor", string(actorID)))
		s.taskManager.MarkTaskCanceled(spec.TaskID())
		if result.Reply.DeathCause != nil {
			info = deathInfoFor(result.Reply.DeathCause)
		}
	} else {
		glog.Info("submit: actor creation failed", zap.String("actor", string(actorID)), zap.Error(result.Err))
	}
	s.taskManager.FailPendingTask(spec.TaskID(), info.Type, &info)
}
