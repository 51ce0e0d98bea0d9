package submit

import (
	"sync"
	"time"

	"actorsub/internal/iface"
	"actorsub/internal/taskmanager"
)

// fakeExecutor runs Post callbacks synchronously on the calling goroutine,
// which is what every test in this package wants: a deterministic, single-
// threaded run loop with no need to pump an event queue. ExecuteAfter
// callbacks are captured instead of run immediately, since tests need to
// control exactly when a timer fires (cancel retries, the sweep timer).
type fakeExecutor struct {
	mu      sync.Mutex
	delayed []func()
}

func (e *fakeExecutor) Post(tag string, fn func()) {
	fn()
}

type fakeTimer struct{ stopped bool }

func (t *fakeTimer) Stop() bool { t.stopped = true; return true }

func (e *fakeExecutor) ExecuteAfter(d time.Duration, fn func()) iface.Timer {
	e.mu.Lock()
	e.delayed = append(e.delayed, fn)
	e.mu.Unlock()
	return &fakeTimer{}
}

// runDelayed fires every ExecuteAfter callback queued so far, in order, and
// clears the queue. Delayed calls made as a side effect of these are not
// re-run; call runDelayed again if the test needs another round.
func (e *fakeExecutor) runDelayed() {
	e.mu.Lock()
	fns := e.delayed
	e.delayed = nil
	e.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// fakeClock lets a test move wall-clock time forward in fixed steps instead
// of racing against a real timer.
type fakeClock struct {
	mu sync.Mutex
	ms int64
}

func (c *fakeClock) NowMS() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ms
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.ms += d.Milliseconds()
	c.mu.Unlock()
}

// fakeResolver holds one pending completion per task until the test decides
// to resolve or fail it, instead of resolving dependencies for real.
type fakeResolver struct {
	mu       sync.Mutex
	pending  map[iface.TaskID]func(error)
	canceled map[iface.TaskID]bool
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{
		pending:  make(map[iface.TaskID]func(error)),
		canceled: make(map[iface.TaskID]bool),
	}
}

func (r *fakeResolver) Resolve(spec iface.TaskSpec, done func(error)) {
	r.mu.Lock()
	r.pending[spec.TaskID()] = done
	r.mu.Unlock()
}

func (r *fakeResolver) CancelDependencyResolution(taskID iface.TaskID) {
	r.mu.Lock()
	r.canceled[taskID] = true
	delete(r.pending, taskID)
	r.mu.Unlock()
}

func (r *fakeResolver) resolveOK(taskID iface.TaskID) { r.complete(taskID, nil) }

func (r *fakeResolver) complete(taskID iface.TaskID, err error) {
	r.mu.Lock()
	done, ok := r.pending[taskID]
	delete(r.pending, taskID)
	r.mu.Unlock()
	if ok {
		done(err)
	}
}

func (r *fakeResolver) wasCanceled(taskID iface.TaskID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.canceled[taskID]
}

// fakeDirectory records every call instead of actually placing an actor or
// talking to a registry. CreateActor's callback is captured rather than
// invoked immediately, so tests can drive its result explicitly the same
// way a fake rpc client's reply is driven.
type fakeDirectory struct {
	mu              sync.Mutex
	restartCalls    []iface.ActorID
	outOfScopeCalls []iface.ActorID
	createCalls     []iface.TaskSpec
	createDone      map[iface.TaskID]func(iface.CreateActorResult)
}

func (d *fakeDirectory) CreateActor(spec iface.TaskSpec, done func(iface.CreateActorResult)) {
	d.mu.Lock()
	d.createCalls = append(d.createCalls, spec)
	if d.createDone == nil {
		d.createDone = make(map[iface.TaskID]func(iface.CreateActorResult))
	}
	d.createDone[spec.TaskID()] = done
	d.mu.Unlock()
}

// completeCreate fires the CreateActor callback captured for taskID.
func (d *fakeDirectory) completeCreate(taskID iface.TaskID, result iface.CreateActorResult) {
	d.mu.Lock()
	done := d.createDone[taskID]
	delete(d.createDone, taskID)
	d.mu.Unlock()
	if done != nil {
		done(result)
	}
}

func (d *fakeDirectory) RestartForLineage(actorID iface.ActorID, generation uint64, done func(error)) {
	d.mu.Lock()
	d.restartCalls = append(d.restartCalls, actorID)
	d.mu.Unlock()
	done(nil)
}

func (d *fakeDirectory) ReportOutOfScope(actorID iface.ActorID, generation uint64, done func(error)) {
	d.mu.Lock()
	d.outOfScopeCalls = append(d.outOfScopeCalls, actorID)
	d.mu.Unlock()
	done(nil)
}

func (d *fakeDirectory) restartCount(actorID iface.ActorID) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, a := range d.restartCalls {
		if a == actorID {
			n++
		}
	}
	return n
}

// pushCall and cancelCall record one outbound rpc, keeping the caller's
// callback so the test can deliver a reply whenever it chooses to.
type pushCall struct {
	req  iface.PushActorTaskRequest
	done func(err error, reply iface.PushTaskReply)
}

type cancelCall struct {
	req  iface.CancelTaskRequest
	done func(err error, reply iface.CancelTaskReply)
}

// fakeRpcClient stands in for one connection to one actor worker.
type fakeRpcClient struct {
	addr iface.Address

	mu      sync.Mutex
	pushes  []*pushCall
	cancels []*cancelCall
}

func (c *fakeRpcClient) Addr() iface.Address { return c.addr }

func (c *fakeRpcClient) PushActorTask(req iface.PushActorTaskRequest, skipQueue bool, done func(err error, reply iface.PushTaskReply)) {
	c.mu.Lock()
	c.pushes = append(c.pushes, &pushCall{req: req, done: done})
	c.mu.Unlock()
}

func (c *fakeRpcClient) CancelTask(req iface.CancelTaskRequest, done func(err error, reply iface.CancelTaskReply)) {
	c.mu.Lock()
	c.cancels = append(c.cancels, &cancelCall{req: req, done: done})
	c.mu.Unlock()
}

func (c *fakeRpcClient) pushCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pushes)
}

func (c *fakeRpcClient) push(i int) *pushCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pushes[i]
}

func (c *fakeRpcClient) replyToPush(i int, err error, reply iface.PushTaskReply) {
	c.push(i).done(err, reply)
}

func (c *fakeRpcClient) cancelCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cancels)
}

func (c *fakeRpcClient) replyToCancel(i int, err error, reply iface.CancelTaskReply) {
	c.mu.Lock()
	call := c.cancels[i]
	c.mu.Unlock()
	call.done(err, reply)
}

// fakeRpcClientPool hands out one fakeRpcClient per worker id, caching it
// the way the real pool caches dialed connections.
type fakeRpcClientPool struct {
	mu      sync.Mutex
	clients map[string]*fakeRpcClient
}

func newFakeRpcClientPool() *fakeRpcClientPool {
	return &fakeRpcClientPool{clients: make(map[string]*fakeRpcClient)}
}

func (p *fakeRpcClientPool) GetOrConnect(addr iface.Address) iface.RpcClient {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[addr.WorkerID]; ok {
		return c
	}
	c := &fakeRpcClient{addr: addr}
	p.clients[addr.WorkerID] = c
	return c
}

func (p *fakeRpcClientPool) Disconnect(workerID string) {
	p.mu.Lock()
	delete(p.clients, workerID)
	p.mu.Unlock()
}

func (p *fakeRpcClientPool) client(workerID string) *fakeRpcClient {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clients[workerID]
}

// fakeRefCounter fires an out-of-scope callback only when the test tells
// it to, instead of tracking real object references.
type fakeRefCounter struct {
	mu  sync.Mutex
	cbs map[string]func()
}

func newFakeRefCounter() *fakeRefCounter {
	return &fakeRefCounter{cbs: make(map[string]func())}
}

func (r *fakeRefCounter) AddOutOfScopeOrFreedCallback(objectID string, cb func()) bool {
	r.mu.Lock()
	r.cbs[objectID] = cb
	r.mu.Unlock()
	return true
}

func (r *fakeRefCounter) trigger(objectID string) {
	r.mu.Lock()
	cb := r.cbs[objectID]
	r.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// spyTaskManager wraps the real in-memory taskmanager.Manager so tests get
// its actual retry-budget and pending-task bookkeeping, while also counting
// terminal outcomes: a call to FailPendingTask, or a call to
// FailOrRetryPendingTask that comes back with no retry scheduled, both end
// a task's life exactly once.
type spyTaskManager struct {
	*taskmanager.Manager

	mu                sync.Mutex
	completedCount    map[iface.TaskID]int
	completedAppError map[iface.TaskID]bool
	failedCount       map[iface.TaskID]int
	lastFailInfo      map[iface.TaskID]iface.ErrorInfo
	retryAttempts     map[iface.TaskID]int
}

func newSpyTaskManager() *spyTaskManager {
	return &spyTaskManager{
		Manager:           taskmanager.New(),
		completedCount:    make(map[iface.TaskID]int),
		completedAppError: make(map[iface.TaskID]bool),
		failedCount:       make(map[iface.TaskID]int),
		lastFailInfo:      make(map[iface.TaskID]iface.ErrorInfo),
		retryAttempts:     make(map[iface.TaskID]int),
	}
}

func (s *spyTaskManager) CompletePendingTask(taskID iface.TaskID, reply iface.PushTaskReply, addr iface.Address, isApplicationError bool) {
	s.mu.Lock()
	s.completedCount[taskID]++
	s.completedAppError[taskID] = isApplicationError
	s.mu.Unlock()
	s.Manager.CompletePendingTask(taskID, reply, addr, isApplicationError)
}

func (s *spyTaskManager) FailPendingTask(taskID iface.TaskID, errType iface.ErrorType, info *iface.ErrorInfo) {
	s.mu.Lock()
	s.failedCount[taskID]++
	if info != nil {
		s.lastFailInfo[taskID] = *info
	}
	s.mu.Unlock()
	s.Manager.FailPendingTask(taskID, errType, info)
}

func (s *spyTaskManager) FailOrRetryPendingTask(taskID iface.TaskID, errType iface.ErrorType, info *iface.ErrorInfo, opts iface.FailOrRetryOptions) bool {
	willRetry := s.Manager.FailOrRetryPendingTask(taskID, errType, info, opts)
	s.mu.Lock()
	s.retryAttempts[taskID]++
	if !willRetry {
		s.failedCount[taskID]++
		if info != nil {
			s.lastFailInfo[taskID] = *info
		}
	}
	s.mu.Unlock()
	return willRetry
}

// scriptedTaskManager is a fully scripted iface.TaskManager for tests that
// need to dictate the retry decision directly rather than exercise the real
// budget-decrementing policy: the timeout/grace-period tests care about what
// the submitter does once the task manager has decided not to retry, not
// about how many retries it took to get there.
type scriptedTaskManager struct {
	mu                sync.Mutex
	pending           map[iface.TaskID]bool
	willRetry         map[iface.TaskID]bool
	completedCount    map[iface.TaskID]int
	completedAppError map[iface.TaskID]bool
	failedCount       map[iface.TaskID]int
	lastFailInfo      map[iface.TaskID]iface.ErrorInfo
	retryAttempts     map[iface.TaskID]int
	canceled          map[iface.TaskID]bool
}

func newScriptedTaskManager() *scriptedTaskManager {
	return &scriptedTaskManager{
		pending:           make(map[iface.TaskID]bool),
		willRetry:         make(map[iface.TaskID]bool),
		completedCount:    make(map[iface.TaskID]int),
		completedAppError: make(map[iface.TaskID]bool),
		failedCount:       make(map[iface.TaskID]int),
		lastFailInfo:      make(map[iface.TaskID]iface.ErrorInfo),
		retryAttempts:     make(map[iface.TaskID]int),
		canceled:          make(map[iface.TaskID]bool),
	}
}

func (m *scriptedTaskManager) track(taskID iface.TaskID) {
	m.pending[taskID] = true
}

func (m *scriptedTaskManager) setWillRetry(taskID iface.TaskID, retry bool) {
	m.mu.Lock()
	m.willRetry[taskID] = retry
	m.mu.Unlock()
}

func (m *scriptedTaskManager) MarkDependenciesResolved(taskID iface.TaskID)                     {}
func (m *scriptedTaskManager) MarkTaskWaitingForExecution(taskID iface.TaskID, addr iface.Address) {}
func (m *scriptedTaskManager) MarkGeneratorFailedAndResubmit(taskID iface.TaskID)                {}

func (m *scriptedTaskManager) MarkTaskCanceled(taskID iface.TaskID) {
	m.mu.Lock()
	m.pending[taskID] = false
	m.canceled[taskID] = true
	m.mu.Unlock()
}

func (m *scriptedTaskManager) IsTaskPending(taskID iface.TaskID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending[taskID]
}

func (m *scriptedTaskManager) GetTaskSpec(taskID iface.TaskID) (iface.TaskSpec, bool) {
	return iface.TaskSpec{}, false
}

func (m *scriptedTaskManager) CompletePendingTask(taskID iface.TaskID, reply iface.PushTaskReply, addr iface.Address, isApplicationError bool) {
	m.mu.Lock()
	m.completedCount[taskID]++
	m.completedAppError[taskID] = isApplicationError
	m.pending[taskID] = false
	m.mu.Unlock()
}

func (m *scriptedTaskManager) FailPendingTask(taskID iface.TaskID, errType iface.ErrorType, info *iface.ErrorInfo) {
	m.mu.Lock()
	m.failedCount[taskID]++
	if info != nil {
		m.lastFailInfo[taskID] = *info
	}
	m.pending[taskID] = false
	m.mu.Unlock()
}

func (m *scriptedTaskManager) FailOrRetryPendingTask(taskID iface.TaskID, errType iface.ErrorType, info *iface.ErrorInfo, opts iface.FailOrRetryOptions) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retryAttempts[taskID]++
	willRetry := !opts.FailImmediately && m.willRetry[taskID]
	if !willRetry {
		m.failedCount[taskID]++
		if info != nil {
			m.lastFailInfo[taskID] = *info
		}
		m.pending[taskID] = false
	}
	return willRetry
}

// testHarness bundles a Submitter with every fake collaborator it needs,
// wired the same way cmd/worker-demo wires the real ones. The task manager
// is supplied by the caller so tests can pick the real Manager (via
// spyTaskManager) or a fully scripted one.
type testHarness struct {
	sub        *Submitter
	resolver   *fakeResolver
	directory  *fakeDirectory
	pool       *fakeRpcClientPool
	refCounter *fakeRefCounter
	clock      *fakeClock
	executor   *fakeExecutor
}

func newHarnessWithTaskManager(cfg Config, tasks iface.TaskManager) *testHarness {
	h := &testHarness{
		resolver:   newFakeResolver(),
		directory:  &fakeDirectory{},
		pool:       newFakeRpcClientPool(),
		refCounter: newFakeRefCounter(),
		clock:      &fakeClock{},
		executor:   &fakeExecutor{},
	}
	h.sub = New(cfg, Deps{
		Executor:    h.executor,
		Clock:       h.clock,
		Resolver:    h.resolver,
		TaskManager: tasks,
		Directory:   h.directory,
		ClientPool:  h.pool,
		RefCounter:  h.refCounter,
		WorkerID:    "test-worker",
	})
	return h
}

// newHarness wires a harness backed by the real taskmanager.Manager
// (through a counting spy), for tests that exercise its actual retry
// budget and dedup semantics.
func newHarness(cfg Config) (*testHarness, *spyTaskManager) {
	tasks := newSpyTaskManager()
	return newHarnessWithTaskManager(cfg, tasks), tasks
}

// newScriptedHarness wires a harness backed by a fully scripted task
// manager, for tests that need to dictate the retry decision directly.
func newScriptedHarness(cfg Config) (*testHarness, *scriptedTaskManager) {
	tasks := newScriptedTaskManager()
	return newHarnessWithTaskManager(cfg, tasks), tasks
}

var (
	_ iface.DependencyResolver = (*fakeResolver)(nil)
	_ iface.ActorDirectory     = (*fakeDirectory)(nil)
	_ iface.RpcClient          = (*fakeRpcClient)(nil)
	_ iface.RpcClientPool      = (*fakeRpcClientPool)(nil)
	_ iface.ReferenceCounter   = (*fakeRefCounter)(nil)
	_ iface.TaskManager        = (*spyTaskManager)(nil)
	_ iface.TaskManager        = (*scriptedTaskManager)(nil)
	_ iface.Executor           = (*fakeExecutor)(nil)
	_ iface.Clock              = (*fakeClock)(nil)
)
