package rpc

import (
	"time"

	"github.com/vbirds/corpc/cmn/cos"
	"github.com/vbirds/corpc/cmn/debug"
	"github.com/vbirds/corpc/cmn/mono"
	"github.com/vbirds/corpc/cmn/nlog"
)

type eventType int

const (
	evConnect eventType = iota
	evClose
)

type connEvent struct {
	typ  eventType
	conn *Connection
}

// connWorkerLoop is the connection worker fiber: a single goroutine per
// Client, serializing CONNECT and CLOSE for every connection so the
// upstream dispatch fiber always observes a consistent connection state.
func (c *Client) connWorkerLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case ev := <-c.connEvents:
			switch ev.typ {
			case evConnect:
				c.handleConnect(ev.conn)
			case evClose:
				c.handleClose(ev.conn)
			}
		}
	}
}

func (c *Client) handleConnect(conn *Connection) {
	conn.mu.Lock()
	if conn.state != StateConnecting {
		// Preserved deliberately rather than "fixed": CONNECT
		// observing an already-closed socket mid-path asserts the in-flight
		// map is empty but does not drain the pending-send list here.
		debug.Assert(len(conn.inflight) == 0, "mid-path CONNECT observed non-CONNECTING with non-empty in-flight map")
		conn.mu.Unlock()
		return
	}
	conn.mu.Unlock()

	ch := conn.channel
	if ch.connectDelay.Load() {
		time.Sleep(c.cfg.Transport.ConnectDelay)
	}

	nc, err := dialNonBlocking(ch.Host, ch.Port, c.cfg.Transport.ConnectTimeout)
	if err != nil {
		conn.mu.Lock()
		debug.Assert(conn.state == StateConnecting)
		pending := conn.pending
		conn.pending = nil
		conn.state = StateClosed
		conn.mu.Unlock()

		ch.connectDelay.Store(true)
		if cos.IsRetriableConnErr(err) {
			nlog.Warningf("rpc: connect %s:%d failed (retriable): %v", ch.Host, ch.Port, err)
		} else if t := cos.UnwrapSyscallErr(err); t != nil {
			nlog.Warningf("rpc: connect %s:%d failed: %v (syscall: %v)", ch.Host, ch.Port, err, t)
		} else {
			nlog.Warningf("rpc: connect %s:%d failed: %v", ch.Host, ch.Port, err)
		}
		if c.metrics != nil {
			c.metrics.ConnectFailed()
		}
		for _, t := range pending {
			t.Ctrl.SetFailed(errConnectFail.Error())
			c.downstream <- t
		}
		return
	}

	tconn := c.reactor.AddConnection(nc, c.pipelines.build(conn), func(cerr error) {
		c.postClose(conn)
	})

	conn.mu.Lock()
	conn.tconn = tconn
	conn.state = StateConnected
	conn.lastActive.Store(mono.NanoTime())
	pending := conn.pending
	conn.pending = nil
	for _, t := range pending {
		conn.inflight[t.CallID] = t
	}
	conn.mu.Unlock()

	ch.connectDelay.Store(false)
	if c.metrics != nil {
		c.metrics.ConnectionUp()
	}

	// Drain the pending-send list in FIFO order.
	for _, t := range pending {
		c.sendTask(conn, t)
	}
}

// handleClose implements the CLOSE event: drain the in-flight
// map under the mutex, fail every task with ENETDOWN, assert the
// pending-send list is empty (it can only be non-empty in CONNECTING), and
// mark the channel's connect-delay flag.
func (c *Client) handleClose(conn *Connection) {
	conn.mu.Lock()
	debug.Assert(len(conn.pending) == 0, "pending-send list non-empty outside CONNECTING")
	wasConnected := conn.state == StateConnected
	inflight := conn.inflight
	conn.inflight = make(map[uint64]*CallTask)
	conn.state = StateClosed
	conn.tconn = nil
	conn.mu.Unlock()

	if wasConnected && c.metrics != nil {
		c.metrics.ConnectionDown()
	}
	for _, t := range inflight {
		t.Ctrl.SetFailed(errNetDown.Error())
		c.downstream <- t
	}
	conn.channel.connectDelay.Store(true)
}

// sendTask implements the write half of the call path: encode, fail the
// caller on encode error, and for a fire-and-forget call remove it from
// the in-flight map and resume the caller as soon as bytes are handed to
// the reactor — without waiting for any inbound bytes.
func (c *Client) sendTask(conn *Connection, t *CallTask) {
	buf, err := EncodeRequest(t, c.cfg)
	if err != nil {
		conn.removeInflight(t.CallID)
		t.Ctrl.SetFailed(err.Error())
		c.downstream <- t
		return
	}

	conn.mu.Lock()
	tconn := conn.tconn
	conn.mu.Unlock()
	if tconn == nil || tconn.Send(buf) != nil {
		// Closed, or the failed write just closed it: whichever of this path
		// and the CLOSE drain removes t from the in-flight map fails it with
		// ENETDOWN and posts it, so the caller is resumed exactly once.
		if _, ok := conn.removeInflight(t.CallID); ok {
			t.Ctrl.SetFailed(errNetDown.Error())
			c.downstream <- t
		}
		return
	}
	conn.touch()

	if t.FireAndForget {
		if _, ok := conn.removeInflight(t.CallID); ok {
			c.downstream <- t
		}
	}
}
