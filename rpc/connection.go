package rpc

import (
	"sync"

	"github.com/vbirds/corpc/cmn"
	"github.com/vbirds/corpc/cmn/atomic"
	"github.com/vbirds/corpc/cmn/cos"
	"github.com/vbirds/corpc/cmn/debug"
	"github.com/vbirds/corpc/cmn/mono"
	"github.com/vbirds/corpc/transport"
)

// connState is a connection's 3-state machine.
type connState int32

const (
	StateClosed connState = iota
	StateConnecting
	StateConnected
)

func (s connState) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	default:
		return "?"
	}
}

// Connection is one TCP socket to one endpoint. All of state, the
// pending-send list, and the in-flight map live under one mutex: a
// lock-free pending list only works when the connection worker and
// upstream dispatcher share a thread, which does not hold once those
// fibers become separate goroutines, so this struct synchronizes all
// three together instead.
type Connection struct {
	mu       sync.Mutex
	state    connState
	pending  []*CallTask         // FIFO; non-empty only while CONNECTING
	inflight map[uint64]*CallTask // call id -> CallTask; mutated only under mu

	tconn   *transport.Conn // set once CONNECTED, cleared on CLOSED
	channel *Channel
	router  *Router
	sid     string // log-friendly identity, never on the wire

	// lastActive is touched on every send/decode; the hk-driven idle sweep
	// (rpc/idle.go) reads it to decide whether to tear a CONNECTED
	// connection down.
	lastActive atomic.Int64
}

func (conn *Connection) touch() { conn.lastActive.Store(mono.NanoTime()) }

func newConnection(ch *Channel, router *Router) *Connection {
	return &Connection{
		state:    StateClosed,
		inflight: make(map[uint64]*CallTask),
		channel:  ch,
		router:   router,
		sid:      cos.GenSessionID(),
	}
}

func (conn *Connection) getState() connState {
	conn.mu.Lock()
	defer conn.mu.Unlock()
	return conn.state
}

// enqueuePending appends to the pending-send list; callers must hold the
// connection in CONNECTING state (pending is only ever non-empty while
// CONNECTING).
func (conn *Connection) enqueuePending(t *CallTask) {
	conn.mu.Lock()
	debug.Assert(conn.state == StateConnecting, "enqueuePending outside CONNECTING")
	conn.pending = append(conn.pending, t)
	conn.mu.Unlock()
}

// insertInflight inserts t into the in-flight map under the connection
// mutex.
func (conn *Connection) insertInflight(t *CallTask) {
	conn.mu.Lock()
	conn.inflight[t.CallID] = t
	conn.mu.Unlock()
}

func (conn *Connection) removeInflight(callID uint64) (t *CallTask, ok bool) {
	conn.mu.Lock()
	t, ok = conn.inflight[callID]
	if ok {
		delete(conn.inflight, callID)
	}
	conn.mu.Unlock()
	return
}

// connFramer adapts a Connection to transport.Framer, binding the
// response-side pipeline configuration (head size 12, 4-byte body-size
// field, and the configured max response body size).
type connFramer struct {
	conn        *Connection
	maxBodySize uint32
}

func (f *connFramer) HeadSize() int { return respHeadSize }

func (f *connFramer) BodySize(head []byte) uint32 {
	sz, _ := decodeResponseHead(head)
	return sz
}

func (f *connFramer) MaxBodySize() uint32 { return f.maxBodySize }

func (f *connFramer) HandleFrame(head, body []byte) error {
	return f.conn.decode(head, body)
}

// PipelineFactory binds Encoder/Decoder/Router to a connection, and caps
// every built Framer at cfg.Transport.MaxResponseSize. It is stateless and
// owned by the Client; every Channel shares the one instance.
type PipelineFactory struct {
	router *Router
	cfg    *cmn.Config
}

func newPipelineFactory(router *Router, cfg *cmn.Config) *PipelineFactory {
	return &PipelineFactory{router: router, cfg: cfg}
}

func (f *PipelineFactory) build(conn *Connection) transport.Framer {
	maxBody := f.cfg.Transport.MaxResponseSize
	if maxBody < 0 {
		maxBody = 0
	}
	return &connFramer{conn: conn, maxBodySize: uint32(maxBody)}
}
