package rpc

import (
	"bufio"
	"context"
	"encoding/binary"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/vbirds/corpc/cmn"
	"github.com/vbirds/corpc/transport"
)

// newTestClient wires up enough of a Client for handleConnect/handleClose/
// sendTask to run against a real reactor and real codec pipeline, without
// starting the three fibers (tests drive the relevant method directly).
func newTestClient(cfg *cmn.Config) *Client {
	c := &Client{
		cfg:        cfg,
		reactor:    transport.NewReactor(),
		downstream: make(chan *CallTask, 64),
	}
	c.router = &Router{downstream: c.downstream}
	c.pipelines = newPipelineFactory(c.router, cfg)
	return c
}

// TestInFlightDrainOnClose verifies that after a CONNECTED->CLOSED
// transition, the in-flight map is empty and every previously in-flight
// caller is resumed with ErrorText() == ENETDOWN.
func TestInFlightDrainOnClose(t *testing.T) {
	cfg := cmn.DefaultConfig()
	c := newTestClient(cfg)

	ch := newChannel(c, "127.0.0.1", 9, 1)
	conn := newConnection(ch, c.router)
	conn.state = StateConnected

	const n = 5
	tasks := make([]*CallTask, n)
	for i := 0; i < n; i++ {
		tasks[i] = &CallTask{Ctrl: &Controller{}, CallID: uint64(i), done: make(chan struct{})}
		conn.inflight[uint64(i)] = tasks[i]
	}

	c.handleClose(conn)

	if got := conn.getState(); got != StateClosed {
		t.Fatalf("state after close = %s, want CLOSED", got)
	}
	conn.mu.Lock()
	inflightLen := len(conn.inflight)
	conn.mu.Unlock()
	if inflightLen != 0 {
		t.Fatalf("in-flight map not drained: %d entries remain", inflightLen)
	}
	if !ch.connectDelay.Load() {
		t.Fatalf("connect-delay flag not set after close")
	}
	// The drain ranges over a map, so posts arrive in no particular order.
	delivered := make(map[*CallTask]bool, n)
	for i := 0; i < n; i++ {
		select {
		case resumed := <-c.downstream:
			delivered[resumed] = true
		default:
			t.Fatalf("only %d of %d tasks posted to downstream", i, n)
		}
	}
	for i, task := range tasks {
		if !delivered[task] {
			t.Fatalf("task %d never posted to downstream", i)
		}
		if !task.Ctrl.Failed() || task.Ctrl.ErrorText() != errNetDown.Error() {
			t.Fatalf("task %d: controller = failed=%v text=%q, want failed=true text=%q",
				i, task.Ctrl.Failed(), task.Ctrl.ErrorText(), errNetDown.Error())
		}
	}
}

// TestPendingFailOnConnectFailure verifies every pending-send task fails
// with errConnectFail when the connection worker's real handleConnect dials
// a genuinely refused port.
func TestPendingFailOnConnectFailure(t *testing.T) {
	cfg := cmn.DefaultConfig()
	cfg.Transport.ConnectTimeout = 150 * time.Millisecond
	c := newTestClient(cfg)

	// Bind then immediately close a listener: the OS keeps the port free
	// for reuse, and nothing answers it, so a subsequent connect is
	// reliably refused rather than racing a real service.
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().(*net.TCPAddr)
	host, port := addr.IP.String(), addr.Port
	ln.Close()

	ch := newChannel(c, host, port, 1)
	conn := newConnection(ch, c.router)
	conn.state = StateConnecting

	const n = 3
	tasks := make([]*CallTask, n)
	for i := 0; i < n; i++ {
		tasks[i] = &CallTask{Ctrl: &Controller{}, CallID: uint64(100 + i), done: make(chan struct{})}
		conn.enqueuePending(tasks[i])
	}

	c.handleConnect(conn)

	if got := conn.getState(); got != StateClosed {
		t.Fatalf("state after failed connect = %s, want CLOSED", got)
	}
	if !ch.connectDelay.Load() {
		t.Fatalf("connect-delay flag not set after a failed connect")
	}
	for i, task := range tasks {
		select {
		case resumed := <-c.downstream:
			if resumed != task {
				t.Fatalf("task %d: downstream delivered a different task", i)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("task %d never posted to downstream", i)
		}
		if !task.Ctrl.Failed() || task.Ctrl.ErrorText() != errConnectFail.Error() {
			t.Fatalf("task %d: controller = failed=%v text=%q, want failed=true text=%q",
				i, task.Ctrl.Failed(), task.Ctrl.ErrorText(), errConnectFail.Error())
		}
	}
}

// recordingListener only counts how many TCP connections it accepts; used
// to prove a single CONNECTING slot dials exactly once even when many
// goroutines race to pick it concurrently.
type recordingListener struct {
	ln net.Listener

	mu       sync.Mutex
	accepted int
}

func newRecordingListener(t *testing.T) *recordingListener {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	r := &recordingListener{ln: ln}
	go r.acceptLoop()
	return r
}

func (r *recordingListener) acceptLoop() {
	for {
		nc, err := r.ln.Accept()
		if err != nil {
			return
		}
		r.mu.Lock()
		r.accepted++
		r.mu.Unlock()
		go func() {
			buf := make([]byte, 4096)
			for {
				if _, err := nc.Read(buf); err != nil {
					nc.Close()
					return
				}
			}
		}()
	}
}

func (r *recordingListener) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.accepted
}

func (r *recordingListener) addr() (string, int) {
	a := r.ln.Addr().(*net.TCPAddr)
	return a.IP.String(), a.Port
}

func (r *recordingListener) Close() { r.ln.Close() }

// TestConnectIssuedOnceForSlot verifies that many goroutines racing
// pickNext() against the same empty slot produce exactly one dialed
// socket: the slot is created and CONNECT is posted once, under ch.mu,
// before any racing caller can observe it as still empty.
func TestConnectIssuedOnceForSlot(t *testing.T) {
	srv := newRecordingListener(t)
	defer srv.Close()
	host, port := srv.addr()

	cfg := cmn.DefaultConfig()
	c := newTestClient(cfg)
	c.connEvents = make(chan connEvent, 64)
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.wg.Add(1)
	go c.connWorkerLoop()
	defer c.cancel()

	ch := newChannel(c, host, port, 1)

	const concurrency = 50
	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func() {
			defer wg.Done()
			ch.pickNext()
		}()
	}
	wg.Wait()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && srv.count() < 1 {
		time.Sleep(10 * time.Millisecond)
	}
	if got := srv.count(); got != 1 {
		t.Fatalf("accepted connections = %d, want exactly 1 (CONNECT issued more than once for one slot)", got)
	}
}

// orderRecordingServer records the arrival order of call ids on its one
// accepted connection, without echoing a response: it exists only to
// observe the order frames land in, not to exercise the reply path.
type orderRecordingServer struct {
	ln net.Listener

	mu  sync.Mutex
	ids []uint64
}

func newOrderRecordingServer(t *testing.T) *orderRecordingServer {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &orderRecordingServer{ln: ln}
	go s.acceptLoop()
	return s
}

func (s *orderRecordingServer) acceptLoop() {
	nc, err := s.ln.Accept()
	if err != nil {
		return
	}
	s.serve(nc)
}

func (s *orderRecordingServer) serve(nc net.Conn) {
	defer nc.Close()
	br := bufio.NewReader(nc)
	head := make([]byte, reqHeadSize)
	for {
		if _, err := io.ReadFull(br, head); err != nil {
			return
		}
		bodySize := binary.BigEndian.Uint32(head[0:4])
		callID := binary.BigEndian.Uint64(head[12:20])
		if bodySize > 0 {
			body := make([]byte, bodySize)
			if _, err := io.ReadFull(br, body); err != nil {
				return
			}
		}
		s.mu.Lock()
		s.ids = append(s.ids, callID)
		s.mu.Unlock()
	}
}

func (s *orderRecordingServer) orderedIDs() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uint64, len(s.ids))
	copy(out, s.ids)
	return out
}

func (s *orderRecordingServer) addr() (string, int) {
	a := s.ln.Addr().(*net.TCPAddr)
	return a.IP.String(), a.Port
}

func (s *orderRecordingServer) Close() { s.ln.Close() }

// TestPendingDrainFIFOOnConnectSuccess verifies that handleConnect drains
// the pending-send list to the wire in enqueue order, not call-id order,
// against a real successful connect.
func TestPendingDrainFIFOOnConnectSuccess(t *testing.T) {
	srv := newOrderRecordingServer(t)
	defer srv.Close()
	host, port := srv.addr()

	cfg := cmn.DefaultConfig()
	c := newTestClient(cfg)

	ch := newChannel(c, host, port, 1)
	conn := newConnection(ch, c.router)
	conn.state = StateConnecting

	ids := []uint64{42, 7, 99, 3, 61}
	for _, id := range ids {
		conn.enqueuePending(&CallTask{Ctrl: &Controller{}, CallID: id, done: make(chan struct{})})
	}

	c.handleConnect(conn)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && len(srv.orderedIDs()) < len(ids) {
		time.Sleep(10 * time.Millisecond)
	}

	got := srv.orderedIDs()
	if len(got) != len(ids) {
		t.Fatalf("server observed %d frames, want %d", len(got), len(ids))
	}
	for i, want := range ids {
		if got[i] != want {
			t.Fatalf("frame %d: call id = %d, want %d (pending-send list did not drain FIFO)", i, got[i], want)
		}
	}
}
