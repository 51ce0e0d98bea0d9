package submit

import (
	"actorsub/internal/iface"
	"actorsub/pkg/glog"

	"go.uber.org/zap"
)

// sendPendingTasks drains as many ready tasks as the actor's queue will
// give up and hands each to pushActorTask, stopping as soon as the queue
// has nothing left to send (spec.md §4.3). It is safe to call whenever an
// actor might have become newly eligible to send: on connect, after a
// dependency resolves, and after a reply frees up an in-flight slot.
func (s *Submitter) sendPendingTasks(actorID iface.ActorID) {
	s.mu.Lock()
	q, ok := s.queues[actorID]
	if !ok || q.pendingOutOfScopeDeath {
		s.mu.Unlock()
		return
	}
	// spec.md §4.3: a RESTARTING queue configured to fail fast on an
	// unreachable actor drains and synthesizes IO-error replies for
	// everything it's holding, instead of waiting for a reconnect.
	if q.state == iface.Restarting && q.failIfUnreachable {
		drained := q.submitQueue.DrainAll()
		s.mu.Unlock()
		for _, e := range drained {
			spec := e.spec
			s.executor.Post("fail-if-unreachable", func() {
				s.resolver.CancelDependencyResolution(spec.TaskID())
				s.handleTransportFailure(actorID, spec.TaskID(), spec, iface.Restarting, nil)
			})
		}
		return
	}
	s.mu.Unlock()

	for {
		s.mu.Lock()
		q, ok := s.queues[actorID]
		if !ok || q.pendingOutOfScopeDeath || q.client == nil || q.state != iface.Alive {
			s.mu.Unlock()
			return
		}
		entry, hasNext := q.submitQueue.PopNextToSend()
		if !hasNext {
			s.mu.Unlock()
			return
		}
		s.warnBackpressureLocked(q)
		s.mu.Unlock()

		s.pushActorTask(actorID, entry.spec, false)
	}
}

// warnBackpressureLocked logs once the queue crosses the configured
// threshold, then doubles the threshold so the warning does not repeat on
// every single task at a sustained high watermark (spec.md §4.4). A queue
// configured with an unlimited max_pending_calls never warns.
func (s *Submitter) warnBackpressureLocked(q *clientQueue) {
	if q.backpressureAt <= 0 {
		return
	}
	size := q.submitQueue.Size()
	if size < q.backpressureAt {
		return
	}
	glog.Warn("submit: actor queue backpressure",
		zap.String("actor", string(q.actorID)), zap.Int("queued", size), zap.Int("threshold", q.backpressureAt))
	q.backpressureAt *= 2
}

// pushActorTask sends one task to the actor's current rpc client,
// forwarding skipQueue to the client unchanged. Its only caller,
// sendPendingTasks, always passes false.
func (s *Submitter) pushActorTask(actorID iface.ActorID, spec iface.TaskSpec, skipQueue bool) {
	s.mu.Lock()
	q, ok := s.queues[actorID]
	if !ok || q.client == nil {
		s.mu.Unlock()
		return
	}
	client := q.client
	generation := q.generation
	q.inflight[spec.TaskID()] = inflightSend{generation: generation, spec: spec}
	s.mu.Unlock()

	s.taskManager.MarkTaskWaitingForExecution(spec.TaskID(), client.Addr())

	req := iface.PushActorTaskRequest{
		TaskSpec:         spec,
		IntendedWorkerID: client.Addr().WorkerID,
		SequenceNumber:   spec.SequenceNumber(),
	}
	client.PushActorTask(req, skipQueue, func(err error, reply iface.PushTaskReply) {
		s.executor.Post("push-reply", func() {
			s.handlePushTaskReply(actorID, spec, generation, err, reply)
		})
	})
}
