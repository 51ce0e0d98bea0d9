package transport

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"actorsub/internal/errs"
	"actorsub/internal/iface"
	"actorsub/pkg/glog"
	"actorsub/pkg/lib"
	"actorsub/pkg/lib/workers"

	"github.com/panjf2000/gnet/v2"
	"go.uber.org/zap"
)

// Config covers the dial side of the transport: how long to wait for a
// connection and how many rpc callback goroutines run concurrently.
type Config struct {
	DialTimeout time.Duration
	WorkerPool  int
}

// pendingCall is one outstanding request waiting for its reply frame.
type pendingCall struct {
	sentAt   time.Time
	onPush   func(err error, reply iface.PushTaskReply)
	onCancel func(err error, reply iface.CancelTaskReply)
}

// Client is one TCP connection to an actor's current worker process,
// multiplexing every PushActorTask/CancelTask call sent to that address
// over a single gnet.Conn, correlated by the frame index.
type Client struct {
	addr    iface.Address
	pool    *Pool
	mu      sync.Mutex
	conn    gnet.Conn
	dialed  bool
	dialErr error
	waiter  *lib.ChanWaiter
	nextIdx uint32
	pending map[uint32]*pendingCall
	closed  bool
}

func newClient(pool *Pool, addr iface.Address) *Client {
	return &Client{
		addr:    addr,
		pool:    pool,
		pending: make(map[uint32]*pendingCall),
	}
}

func (c *Client) Addr() iface.Address { return c.addr }

func (c *Client) dialAddr() string {
	return fmt.Sprintf("%s:%d", c.addr.IP, c.addr.Port)
}

// ensureConnected dials on first use and lets every concurrent caller
// racing to reach the same not-yet-connected address wait on the same
// in-flight dial instead of each starting one.
func (c *Client) ensureConnected() error {
	c.mu.Lock()
	if c.dialed {
		err := c.dialErr
		c.mu.Unlock()
		return err
	}
	if c.waiter != nil {
		w := c.waiter
		c.mu.Unlock()
		if err := w.Wait(); err != nil {
			return errs.ErrDialFailed(c.dialAddr(), err)
		}
		// Done wakes a single waiter; pass the signal on to the next one.
		w.Done()
		c.mu.Lock()
		derr := c.dialErr
		c.mu.Unlock()
		return derr
	}
	deadline := time.Now().Add(c.pool.cfg.DialTimeout).Unix()
	c.waiter = lib.NewChanWaiter(deadline)
	c.mu.Unlock()

	conn, err := c.pool.gnetClient.Dial("tcp", c.dialAddr())

	c.mu.Lock()
	c.dialed = true
	if err != nil {
		c.dialErr = errs.ErrDialFailed(c.dialAddr(), err)
	} else {
		c.conn = conn
		conn.SetContext(c)
	}
	derr := c.dialErr
	c.mu.Unlock()
	c.waiter.Done()
	return derr
}

func (c *Client) nextIndex() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextIdx++
	return c.nextIdx
}

func (c *Client) send(f *frame, call *pendingCall) error {
	if c.pool.shuttingDown.Load() {
		return errs.ErrPoolShuttingDown
	}
	if err := c.ensureConnected(); err != nil {
		return err
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errs.ErrClientClosed
	}
	c.pending[f.index] = call
	conn := c.conn
	c.mu.Unlock()

	if err := conn.AsyncWrite(encodeFrame(f), nil); err != nil {
		c.mu.Lock()
		delete(c.pending, f.index)
		c.mu.Unlock()
		return errs.ErrEncodeFailed(err)
	}
	return nil
}

// PushActorTask sends req and invokes done exactly once, on the pool's
// ants-backed callback pool rather than on the gnet event loop. skipQueue
// has no wire effect: it only tells the submitter this call bypassed the
// ordering queue, which is already decided before the client sees it.
func (c *Client) PushActorTask(req iface.PushActorTaskRequest, skipQueue bool, done func(err error, reply iface.PushTaskReply)) {
	idx := c.nextIndex()
	data, err := marshalPush(req)
	if err != nil {
		c.dispatch(func() { done(errs.ErrEncodeFailed(err), iface.PushTaskReply{}) })
		return
	}
	f := &frame{cmd: cmdPushActorTask, act: actRequest, index: idx, data: data}
	call := &pendingCall{sentAt: time.Now(), onPush: done}
	if err := c.send(f, call); err != nil {
		c.dispatch(func() { done(err, iface.PushTaskReply{}) })
	}
}

// CancelTask sends req and invokes done exactly once.
func (c *Client) CancelTask(req iface.CancelTaskRequest, done func(err error, reply iface.CancelTaskReply)) {
	idx := c.nextIndex()
	data, err := marshalCancel(req)
	if err != nil {
		c.dispatch(func() { done(errs.ErrEncodeFailed(err), iface.CancelTaskReply{}) })
		return
	}
	f := &frame{cmd: cmdCancelTask, act: actRequest, index: idx, data: data}
	call := &pendingCall{sentAt: time.Now(), onCancel: done}
	if err := c.send(f, call); err != nil {
		c.dispatch(func() { done(err, iface.CancelTaskReply{}) })
	}
}

func (c *Client) dispatch(fn func()) {
	workers.Submit(fn, func(r interface{}) {
		glog.Error("transport: callback panicked", zap.Any("panic", r))
	})
}

// onFrame handles one reply frame arriving off the wire, matching it to
// the pending call it answers and dropping it silently if none is found
// (a reply that arrived after a disconnect already cleared the map).
func (c *Client) onFrame(f *frame) {
	c.mu.Lock()
	call, ok := c.pending[f.index]
	if ok {
		delete(c.pending, f.index)
	}
	c.mu.Unlock()
	if !ok {
		return
	}

	switch f.cmd {
	case cmdPushActorTask:
		reply, err := unmarshalPushReply(f.data)
		if err != nil {
			err = errs.ErrDecodeFailed(err)
		}
		if rtt := time.Since(call.sentAt); rtt > time.Second {
			glog.Warn("transport: slow push_actor_task round trip", zap.Duration("rtt", rtt))
		}
		c.dispatch(func() { call.onPush(err, reply) })
	case cmdCancelTask:
		reply, err := unmarshalCancelReply(f.data)
		if err != nil {
			err = errs.ErrDecodeFailed(err)
		}
		c.dispatch(func() { call.onCancel(err, reply) })
	}
}

// onDisconnect fails every call still waiting on this connection; a fresh
// Client is built the next time the submitter calls GetOrConnect for this
// worker, since the submitter always re-resolves the address through the
// directory before reconnecting anyway.
func (c *Client) onDisconnect(cause error) {
	c.mu.Lock()
	c.closed = true
	pending := c.pending
	c.pending = make(map[uint32]*pendingCall)
	c.mu.Unlock()

	c.pool.mu.Lock()
	if cur, ok := c.pool.clients[c.addr.WorkerID]; ok && cur == c {
		delete(c.pool.clients, c.addr.WorkerID)
	}
	c.pool.mu.Unlock()

	for _, call := range pending {
		call := call
		if call.onPush != nil {
			c.dispatch(func() { call.onPush(errs.ErrClientClosed, iface.PushTaskReply{}) })
		}
		if call.onCancel != nil {
			c.dispatch(func() { call.onCancel(errs.ErrClientClosed, iface.CancelTaskReply{}) })
		}
	}
}

// Pool is the gnet-backed iface.RpcClientPool: one shared gnet.Client
// drives every outbound connection, and each distinct worker id gets its
// own multiplexed Client.
type Pool struct {
	gnet.BuiltinEventEngine

	cfg        Config
	gnetClient *gnet.Client

	mu      sync.Mutex
	clients map[string]*Client

	shuttingDown atomic.Bool
}

// New starts the shared gnet client engine and returns a ready Pool.
func New(cfg Config) (*Pool, error) {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	p := &Pool{cfg: cfg, clients: make(map[string]*Client)}
	glog.Info("transport: starting", zap.Duration("dialTimeout", cfg.DialTimeout), zap.Int("workerPool", cfg.WorkerPool))
	cli, err := gnet.NewClient(p)
	if err != nil {
		return nil, errs.ErrDialFailed("gnet-client-init", err)
	}
	if err := cli.Start(); err != nil {
		return nil, errs.ErrDialFailed("gnet-client-start", err)
	}
	p.gnetClient = cli
	return p, nil
}

// GetOrConnect hands back the multiplexed Client for addr's worker id,
// creating one if this is the first call for that worker. Dialing happens
// lazily on first send, not here.
func (p *Pool) GetOrConnect(addr iface.Address) iface.RpcClient {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[addr.WorkerID]; ok {
		return c
	}
	c := newClient(p, addr)
	p.clients[addr.WorkerID] = c
	return c
}

// Disconnect tears down and forgets the Client for workerID, if any.
func (p *Pool) Disconnect(workerID string) {
	p.mu.Lock()
	c, ok := p.clients[workerID]
	delete(p.clients, workerID)
	p.mu.Unlock()
	if !ok {
		return
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

// Stop shuts down the shared gnet client engine.
func (p *Pool) Stop() error {
	p.shuttingDown.Store(true)
	return p.gnetClient.Stop()
}

// OnTraffic decodes every complete frame buffered on c and routes it to
// the Client that owns the connection.
func (p *Pool) OnTraffic(c gnet.Conn) gnet.Action {
	client, ok := c.Context().(*Client)
	if !ok || client == nil {
		return gnet.Close
	}
	frames, err := decodeFrames(c)
	if err != nil {
		glog.Error("transport: decode failed", zap.Error(err))
		return gnet.Close
	}
	for _, f := range frames {
		client.onFrame(f)
	}
	return gnet.None
}

// OnClose fails any calls still pending on the closed connection.
func (p *Pool) OnClose(c gnet.Conn, err error) gnet.Action {
	if client, ok := c.Context().(*Client); ok && client != nil {
		client.onDisconnect(err)
	}
	return gnet.None
}
