// Package executor implements the single-threaded cooperative run loop the
// submitter posts all its state-mutating work onto (spec.md §5's
// "io_service"). It is adapted from the teacher's actor mailbox: an MPSC
// queue of posted closures drained by at most one goroutine at a time,
// scheduled via a CAS flag rather than a dedicated worker goroutine per
// executor.
package executor

import (
	"runtime"
	"sync/atomic"
	"time"

	"actorsub/internal/iface"
	"actorsub/pkg/glog"
	"actorsub/pkg/lib"
	"actorsub/pkg/lib/timex/asynctime"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

const (
	idle int32 = iota
	running
)

// Executor is an iface.Executor backed by an MPSC queue and an ants
// goroutine pool. Posted closures run strictly one at a time, in FIFO
// order, matching spec.md §5's single-logical-thread requirement.
type Executor struct {
	queue        *lib.Mpsc
	pool         *ants.Pool
	throughput   int
	dispatchStat atomic.Int32
}

// New creates an Executor. throughput bounds how many posted closures run
// before the drain loop yields via runtime.Gosched, and pool is the ants
// pool used to run the drain loop itself (so a panic in one closure can't
// pin a raw goroutine forever without the pool's recovery).
func New(pool *ants.Pool, throughput int) *Executor {
	if throughput <= 0 {
		throughput = 256
	}
	return &Executor{
		queue:      lib.NewMpsc(),
		pool:       pool,
		throughput: throughput,
	}
}

type postedFunc struct {
	tag string
	fn  func()
}

// Post enqueues fn to run on the executor's single logical thread. tag is
// used only for the panic log line.
func (e *Executor) Post(tag string, fn func()) {
	if fn == nil {
		return
	}
	e.queue.Push(&postedFunc{tag: tag, fn: fn})
	e.schedule()
}

// ExecuteAfter schedules fn to be Post'd after d elapses, backed by the
// shared timing wheel rather than a per-call time.Timer.
func (e *Executor) ExecuteAfter(d time.Duration, fn func()) iface.Timer {
	t := asynctime.AfterFunc(d, func() {
		e.Post("timer", fn)
	})
	return timerHandle{t}
}

type timerHandle struct {
	t interface{ Stop() bool }
}

func (h timerHandle) Stop() bool { return h.t.Stop() }

func (e *Executor) schedule() {
	if !e.dispatchStat.CompareAndSwap(idle, running) {
		return
	}
	if err := e.pool.Submit(e.process); err != nil {
		e.dispatchStat.Store(idle)
		glog.Error("executor: submit to pool failed", zap.Error(err))
	}
}

func (e *Executor) process() {
	defer e.dispatchStat.CompareAndSwap(running, idle)
	e.run()
}

func (e *Executor) run() {
	processed := 0
	for {
		if e.queue.Empty() {
			return
		}
		if processed >= e.throughput {
			processed = 0
			runtime.Gosched()
			continue
		}
		processed++
		v := e.queue.Pop()
		if v == nil {
			return
		}
		pf := v.(*postedFunc)
		e.runOne(pf)
	}
}

func (e *Executor) runOne(pf *postedFunc) {
	defer func() {
		if r := recover(); r != nil {
			glog.Error("executor: posted closure panicked", zap.String("tag", pf.tag), zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	pf.fn()
}
