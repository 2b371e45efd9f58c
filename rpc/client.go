package rpc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vbirds/corpc/cmn"
	"github.com/vbirds/corpc/cmn/atomic"
	"github.com/vbirds/corpc/cmn/cos"
	"github.com/vbirds/corpc/codec"
	"github.com/vbirds/corpc/rpcstats"
	"github.com/vbirds/corpc/transport"

	"golang.org/x/sync/errgroup"
)

// Client owns the set of registered Channels and the three cooperating
// goroutines. CallMethod is the public entry.
type Client struct {
	cfg       *cmn.Config
	reactor   *transport.Reactor
	router    *Router
	pipelines *PipelineFactory

	channelsMu sync.Mutex
	channels   map[uint64]*Channel // keyed by cos.HashKey("host:port"); rejects duplicate registration
	upstream   chan *CallTask
	connEvents chan connEvent
	downstream chan *CallTask

	nextCallID atomic.Uint64

	metrics *rpcstats.Metrics

	idleHKName string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewClient constructs a Client and starts its three fibers. A nil cfg
// falls back to cmn.GCO().Get().
func NewClient(cfg *cmn.Config) *Client {
	if cfg == nil {
		cfg = cmn.GCO().Get()
	}
	ctx, cancel := context.WithCancel(context.Background())

	burst := cfg.Transport.Burst
	if burst <= 0 {
		burst = 1
	}

	c := &Client{
		cfg:        cfg,
		reactor:    transport.NewReactor(),
		channels:   make(map[uint64]*Channel),
		upstream:   make(chan *CallTask, burst),
		connEvents: make(chan connEvent, burst),
		downstream: make(chan *CallTask, burst),
		ctx:        ctx,
		cancel:     cancel,
	}
	c.router = &Router{downstream: c.downstream}
	c.pipelines = newPipelineFactory(c.router, cfg)

	c.wg.Add(3)
	go c.connWorkerLoop()
	go c.upstreamLoop()
	go c.downstreamLoop()
	c.startIdleTeardown()
	return c
}

// SetMetrics attaches an rpcstats.Metrics instance; nil-safe call sites
// elsewhere in the package mean this is optional and may be called once,
// before the Client is used.
func (c *Client) SetMetrics(m *rpcstats.Metrics) { c.metrics = m }

// RegisterChannel registers a new Channel=(host, port, n connections).
// Registering the same endpoint twice is a setup-time configuration
// error.
func (c *Client) RegisterChannel(host string, port, n int) (*Channel, error) {
	key := cos.HashKey(fmt.Sprintf("%s:%d", host, port))

	c.channelsMu.Lock()
	defer c.channelsMu.Unlock()
	if _, exists := c.channels[key]; exists {
		return nil, ErrDuplicateChannel
	}
	ch := newChannel(c, host, port, n)
	c.channels[key] = ch
	return ch, nil
}

// Channel looks up a previously registered (host, port) endpoint. Callers
// that only hold the endpoint (e.g. a config-driven CLI) use this instead
// of keeping the *Channel returned by RegisterChannel around themselves.
func (c *Client) Channel(host string, port int) (*Channel, error) {
	key := cos.HashKey(fmt.Sprintf("%s:%d", host, port))

	c.channelsMu.Lock()
	defer c.channelsMu.Unlock()
	ch, ok := c.channels[key]
	if !ok {
		return nil, cos.NewErrNotFound("channel %s:%d", host, port)
	}
	return ch, nil
}

func (c *Client) postConnect(conn *Connection) {
	select {
	case c.connEvents <- connEvent{typ: evConnect, conn: conn}:
	case <-c.ctx.Done():
	}
}

func (c *Client) postClose(conn *Connection) {
	select {
	case c.connEvents <- connEvent{typ: evClose, conn: conn}:
	case <-c.ctx.Done():
	}
}

// CallMethod is the public RPC entry: build a CallTask,
// enqueue it on the upstream list, block until the engine resumes the
// caller (on reply, cancellation-by-close, or transport failure), then
// return the controller the caller inspects to distinguish success from
// failure. resp is ignored (left as the caller initialized it) when md is
// fire-and-forget.
func (c *Client) CallMethod(ch *Channel, md codec.MethodDescriptor, req, resp codec.Message) *Controller {
	if md.FireAndForget {
		resp = nil
	}
	t := newCallTask(ch, c.nextCallID.Inc(), md, req, resp)

	if c.metrics != nil {
		start := time.Now()
		c.metrics.CallStarted()
		defer c.metrics.ObserveCall(start)
	}

	select {
	case c.upstream <- t:
	case <-c.ctx.Done():
		t.Ctrl.SetFailed("rpc: client shut down")
		return t.Ctrl
	}

	<-t.done
	return t.Ctrl
}

// Shutdown drains every registered Channel's connections (closing each
// underlying transport.Conn, which in turn runs the ordinary CLOSE path so
// any in-flight calls still fail with ENETDOWN rather than hanging
// forever) and stops the three fibers. Graceful tear-down with in-flight
// calls is additive behavior layered on top of the call/response protocol.
func (c *Client) Shutdown(ctx context.Context) error {
	c.stopIdleTeardown()
	var g errgroup.Group

	c.channelsMu.Lock()
	chans := make([]*Channel, 0, len(c.channels))
	for _, ch := range c.channels {
		chans = append(chans, ch)
	}
	c.channelsMu.Unlock()

	for _, ch := range chans {
		for _, conn := range ch.connections() {
			conn := conn
			g.Go(func() error {
				conn.mu.Lock()
				tconn := conn.tconn
				conn.mu.Unlock()
				if tconn == nil {
					return nil
				}
				err := tconn.Close()
				// Drain synchronously rather than racing the reactor's async
				// onClose callback against c.cancel() below.
				c.handleClose(conn)
				return err
			})
		}
	}

	err := g.Wait()
	c.cancel()

	done := make(chan struct{})
	go func() { c.wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}
