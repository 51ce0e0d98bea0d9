package submit

import (
	"actorsub/internal/iface"

	"golang.org/x/exp/slices"
)

type entryState int32

const (
	entryPendingDeps entryState = iota
	entryResolved
)

// queueEntry is one task waiting in an actor's submit queue, keyed by the
// sequence number the caller assigned it. Canceled and dependency-failed
// entries are deleted outright rather than left in a terminal state.
type queueEntry struct {
	seqNo uint64
	spec  iface.TaskSpec
	state entryState
}

// ActorSubmitQueue holds tasks for one actor between SubmitTask and the
// moment the Dispatcher actually sends them. Two variants exist: an
// in-order queue, used for actors that must execute tasks in submission
// order, and an out-of-order queue, used for actors that may run tasks
// concurrently or in any order dependency resolution finishes.
type ActorSubmitQueue interface {
	// Add enqueues a new task, initially blocked on dependency resolution.
	Add(seqNo uint64, spec iface.TaskSpec)
	// Contains reports whether seqNo is still queued, resolved or not; a
	// task already popped for sending is no longer contained.
	Contains(seqNo uint64) bool
	// MarkResolved flips a task to eligible-for-send. Returns false if the
	// sequence number is not queued (already sent, canceled, or unknown).
	MarkResolved(seqNo uint64) bool
	// MarkDependencyFailed removes a task that will never become eligible
	// because its dependencies failed. Returns the removed entry's spec.
	MarkDependencyFailed(seqNo uint64) (iface.TaskSpec, bool)
	// MarkCanceled removes a task before it was sent. Returns true if the
	// task was actually queued (so no cancel RPC needs to reach the
	// actor — it never left the client).
	MarkCanceled(seqNo uint64) bool
	// PopNextToSend removes and returns the next task ready to send, or
	// false if none is currently eligible.
	PopNextToSend() (queueEntry, bool)
	// Size returns the number of tasks currently queued, eligible or not.
	Size() int
	// DrainAll removes and returns every remaining entry, in queue order,
	// used when an actor queue is torn down (DisconnectActor with no
	// lineage reconstruction, or a non-restartable actor dying).
	DrainAll() []queueEntry
}

// inOrderQueue delivers tasks to the actor strictly in ascending sequence
// number order: a lower, still-unresolved sequence number blocks every
// higher one behind it.
type inOrderQueue struct {
	entries   map[uint64]*queueEntry
	next      uint64
	highWater uint64 // one past the highest sequence number ever added
}

func newInOrderQueue() *inOrderQueue {
	return &inOrderQueue{entries: make(map[uint64]*queueEntry)}
}

func (q *inOrderQueue) Add(seqNo uint64, spec iface.TaskSpec) {
	q.entries[seqNo] = &queueEntry{seqNo: seqNo, spec: spec, state: entryPendingDeps}
	if seqNo+1 > q.highWater {
		q.highWater = seqNo + 1
	}
}

func (q *inOrderQueue) Contains(seqNo uint64) bool {
	_, ok := q.entries[seqNo]
	return ok
}

func (q *inOrderQueue) MarkResolved(seqNo uint64) bool {
	e, ok := q.entries[seqNo]
	if !ok {
		return false
	}
	e.state = entryResolved
	return true
}

func (q *inOrderQueue) MarkDependencyFailed(seqNo uint64) (iface.TaskSpec, bool) {
	e, ok := q.entries[seqNo]
	if !ok {
		return iface.TaskSpec{}, false
	}
	delete(q.entries, seqNo)
	q.skipGaps()
	return e.spec, true
}

func (q *inOrderQueue) MarkCanceled(seqNo uint64) bool {
	_, ok := q.entries[seqNo]
	if !ok {
		return false
	}
	delete(q.entries, seqNo)
	q.skipGaps()
	return true
}

// skipGaps advances the send cursor past sequence numbers that were
// assigned but later removed (canceled or dependency-failed) before ever
// being sent, so a hole at the front of the queue does not block every
// task behind it forever. It stops as soon as it reaches either a still-
// queued entry or the highest sequence number handed out so far.
func (q *inOrderQueue) skipGaps() {
	for q.next < q.highWater {
		if _, ok := q.entries[q.next]; ok {
			return
		}
		q.next++
	}
}

func (q *inOrderQueue) PopNextToSend() (queueEntry, bool) {
	q.skipGaps()
	e, ok := q.entries[q.next]
	if !ok {
		return queueEntry{}, false
	}
	if e.state != entryResolved {
		return queueEntry{}, false
	}
	delete(q.entries, q.next)
	q.next++
	return *e, true
}

func (q *inOrderQueue) Size() int { return len(q.entries) }

func (q *inOrderQueue) DrainAll() []queueEntry {
	seqs := make([]uint64, 0, len(q.entries))
	for seq := range q.entries {
		seqs = append(seqs, seq)
	}
	slices.Sort(seqs)
	out := make([]queueEntry, 0, len(seqs))
	for _, seq := range seqs {
		out = append(out, *q.entries[seq])
		delete(q.entries, seq)
	}
	return out
}

// outOfOrderQueue delivers any resolved, non-canceled task as soon as it
// is ready, regardless of the order in which tasks were submitted.
type outOfOrderQueue struct {
	order   []uint64
	entries map[uint64]*queueEntry
}

func newOutOfOrderQueue() *outOfOrderQueue {
	return &outOfOrderQueue{entries: make(map[uint64]*queueEntry)}
}

func (q *outOfOrderQueue) Add(seqNo uint64, spec iface.TaskSpec) {
	q.entries[seqNo] = &queueEntry{seqNo: seqNo, spec: spec, state: entryPendingDeps}
	q.order = append(q.order, seqNo)
}

func (q *outOfOrderQueue) Contains(seqNo uint64) bool {
	_, ok := q.entries[seqNo]
	return ok
}

func (q *outOfOrderQueue) MarkResolved(seqNo uint64) bool {
	e, ok := q.entries[seqNo]
	if !ok {
		return false
	}
	e.state = entryResolved
	return true
}

func (q *outOfOrderQueue) MarkDependencyFailed(seqNo uint64) (iface.TaskSpec, bool) {
	e, ok := q.entries[seqNo]
	if !ok {
		return iface.TaskSpec{}, false
	}
	delete(q.entries, seqNo)
	return e.spec, true
}

func (q *outOfOrderQueue) MarkCanceled(seqNo uint64) bool {
	_, ok := q.entries[seqNo]
	if !ok {
		return false
	}
	delete(q.entries, seqNo)
	return true
}

func (q *outOfOrderQueue) PopNextToSend() (queueEntry, bool) {
	for i, seq := range q.order {
		e, ok := q.entries[seq]
		if !ok {
			continue // already removed (canceled or dep-failed); drop the slot below
		}
		if e.state != entryResolved {
			continue
		}
		delete(q.entries, seq)
		q.order = append(q.order[:i:i], q.order[i+1:]...)
		return *e, true
	}
	q.compact()
	return queueEntry{}, false
}

// compact drops every order-slot whose entry is already gone, so
// PopNextToSend's scan does not grow unbounded on a busy, long-lived
// actor.
func (q *outOfOrderQueue) compact() {
	live := q.order[:0]
	for _, seq := range q.order {
		if _, ok := q.entries[seq]; ok {
			live = append(live, seq)
		}
	}
	q.order = live
}

func (q *outOfOrderQueue) Size() int { return len(q.entries) }

func (q *outOfOrderQueue) DrainAll() []queueEntry {
	out := make([]queueEntry, 0, len(q.entries))
	for _, seq := range q.order {
		if e, ok := q.entries[seq]; ok {
			out = append(out, *e)
			delete(q.entries, seq)
		}
	}
	q.order = q.order[:0]
	return out
}

func newSubmitQueue(executeOutOfOrder bool) ActorSubmitQueue {
	if executeOutOfOrder {
		return newOutOfOrderQueue()
	}
	return newInOrderQueue()
}
