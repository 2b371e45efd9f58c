package rpc_test

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/vbirds/corpc/cmn"
	"github.com/vbirds/corpc/cmn/cos"
	"github.com/vbirds/corpc/codec"
	"github.com/vbirds/corpc/rpc"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func TestRPC(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, t.Name())
}

// payload is the simplest possible codec.Message: an opaque byte slice.
type payload struct{ Body []byte }

func (p *payload) Msgsize() int { return len(p.Body) }
func (p *payload) MarshalMsg(b []byte) ([]byte, error) {
	return append(b, p.Body...), nil
}
func (p *payload) UnmarshalMsg(b []byte) ([]byte, error) {
	p.Body = append([]byte(nil), b...)
	return nil, nil
}

const (
	reqHead  = 20
	respHead = 12
)

// echoServer implements the exact wire framing used by the client: it reads
// requests and echoes the body back under the same call id, until either
// the listener or maxEchoes is reached. It also tracks, per accepted TCP
// connection, how many requests that connection served — used to assert
// exact round-robin fan-out across a channel's connection pool.
type echoServer struct {
	ln        net.Listener
	maxEchoes int // 0 == unlimited

	mu     sync.Mutex
	counts []int
	index  map[net.Conn]int
}

func newEchoServer() (*echoServer, error) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	s := &echoServer{ln: ln, index: make(map[net.Conn]int)}
	go s.acceptLoop()
	return s, nil
}

func (s *echoServer) addr() (string, int) {
	tcpAddr := s.ln.Addr().(*net.TCPAddr)
	return tcpAddr.IP.String(), tcpAddr.Port
}

func (s *echoServer) acceptLoop() {
	for {
		nc, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		idx := len(s.counts)
		s.counts = append(s.counts, 0)
		s.index[nc] = idx
		s.mu.Unlock()
		go s.serve(nc)
	}
}

func (s *echoServer) recordServed(nc net.Conn) {
	s.mu.Lock()
	s.counts[s.index[nc]]++
	s.mu.Unlock()
}

// connCounts snapshots how many requests each accepted connection has
// served so far, in accept order.
func (s *echoServer) connCounts() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, len(s.counts))
	copy(out, s.counts)
	return out
}

func (s *echoServer) serve(nc net.Conn) {
	defer nc.Close()
	br := bufio.NewReader(nc)
	count := 0
	for {
		head := make([]byte, reqHead)
		if _, err := io.ReadFull(br, head); err != nil {
			return
		}
		bodySize := binary.BigEndian.Uint32(head[0:4])
		callID := binary.BigEndian.Uint64(head[12:20])
		body := make([]byte, bodySize)
		if bodySize > 0 {
			if _, err := io.ReadFull(br, body); err != nil {
				return
			}
		}
		if s.maxEchoes > 0 {
			count++
			if count > s.maxEchoes {
				s.ln.Close() // simulate the whole server dying mid-flight
				return
			}
		}
		s.recordServed(nc)
		resp := make([]byte, respHead+len(body))
		binary.BigEndian.PutUint32(resp[0:4], uint32(len(body)))
		binary.BigEndian.PutUint64(resp[4:12], callID)
		copy(resp[respHead:], body)
		if _, err := nc.Write(resp); err != nil {
			return
		}
	}
}

func (s *echoServer) Close() { s.ln.Close() }

var _ = Describe("Client end-to-end", func() {
	var client *rpc.Client

	BeforeEach(func() {
		client = rpc.NewClient(cmn.DefaultConfig())
	})

	AfterEach(func() {
		_ = client.Shutdown(context.Background())
	})

	It("a single call completes and returns the echoed response", func() {
		srv, err := newEchoServer()
		Expect(err).NotTo(HaveOccurred())
		defer srv.Close()
		host, port := srv.addr()

		ch, err := client.RegisterChannel(host, port, 1)
		Expect(err).NotTo(HaveOccurred())

		req := &payload{Body: []byte("hello")}
		resp := &payload{}
		ctrl := client.CallMethod(ch, codec.MethodDescriptor{ServiceID: 1, MethodIndex: 1}, req, resp)

		Expect(ctrl.Failed()).To(BeFalse())
		Expect(resp.Body).To(Equal(req.Body))
	})

	It("Channel looks up a registered endpoint and reports ErrNotFound for an unregistered one", func() {
		srv, err := newEchoServer()
		Expect(err).NotTo(HaveOccurred())
		defer srv.Close()
		host, port := srv.addr()

		registered, err := client.RegisterChannel(host, port, 1)
		Expect(err).NotTo(HaveOccurred())

		looked, err := client.Channel(host, port)
		Expect(err).NotTo(HaveOccurred())
		Expect(looked).To(BeIdenticalTo(registered))

		_, err = client.Channel(host, port+1)
		Expect(err).To(HaveOccurred())
		Expect(cos.IsErrNotFound(err)).To(BeTrue())
	})

	It("a connect failure fails every caller queued on that connection", func() {
		// A freshly-bound-then-closed listener's port is very likely refused.
		ln, err := net.Listen("tcp4", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())
		addr := ln.Addr().(*net.TCPAddr)
		host, port := addr.IP.String(), addr.Port
		ln.Close()

		ch, err := client.RegisterChannel(host, port, 1)
		Expect(err).NotTo(HaveOccurred())

		results := make(chan *rpc.Controller, 3)
		for i := 0; i < 3; i++ {
			go func() {
				ctrl := client.CallMethod(ch, codec.MethodDescriptor{ServiceID: 1, MethodIndex: 1}, &payload{}, &payload{})
				results <- ctrl
			}()
		}
		for i := 0; i < 3; i++ {
			var ctrl *rpc.Controller
			Eventually(results, 2*time.Second).Should(Receive(&ctrl))
			Expect(ctrl.Failed()).To(BeTrue())
			Expect(ctrl.ErrorText()).To(Equal("Connect fail"))
		}
	})

	It("a fire-and-forget call resumes the caller without waiting for a reply", func() {
		srv, err := newEchoServer()
		Expect(err).NotTo(HaveOccurred())
		defer srv.Close()
		host, port := srv.addr()

		ch, err := client.RegisterChannel(host, port, 1)
		Expect(err).NotTo(HaveOccurred())

		done := make(chan *rpc.Controller, 1)
		go func() {
			ctrl := client.CallMethod(ch, codec.MethodDescriptor{ServiceID: 1, MethodIndex: 2, FireAndForget: true}, &payload{Body: []byte("x")}, nil)
			done <- ctrl
		}()

		var ctrl *rpc.Controller
		Eventually(done, 2*time.Second).Should(Receive(&ctrl))
		Expect(ctrl.Failed()).To(BeFalse())
	})

	It("concurrent calls fan out round-robin across a channel's connections, each landing on its own reply", func() {
		srv, err := newEchoServer()
		Expect(err).NotTo(HaveOccurred())
		defer srv.Close()
		host, port := srv.addr()

		const n = 4
		const m = 400
		ch, err := client.RegisterChannel(host, port, n)
		Expect(err).NotTo(HaveOccurred())

		type outcome struct {
			ctrl *rpc.Controller
			req  []byte
			resp *payload
		}
		results := make(chan outcome, m)
		for i := 0; i < m; i++ {
			i := i
			go func() {
				body := []byte(fmt.Sprintf("call-%04d", i))
				req := &payload{Body: body}
				resp := &payload{}
				ctrl := client.CallMethod(ch, codec.MethodDescriptor{ServiceID: 1, MethodIndex: 1}, req, resp)
				results <- outcome{ctrl: ctrl, req: body, resp: resp}
			}()
		}
		for i := 0; i < m; i++ {
			var o outcome
			Eventually(results, 5*time.Second).Should(Receive(&o))
			Expect(o.ctrl.Failed()).To(BeFalse())
			// Every caller's response slot must hold exactly its own body,
			// not a reply meant for some other concurrently in-flight call.
			Expect(o.resp.Body).To(Equal(o.req))
		}

		counts := srv.connCounts()
		Expect(counts).To(HaveLen(n))
		for i, got := range counts {
			Expect(got).To(Equal(m/n), "connection %d served %d calls, want exactly %d", i, got, m/n)
		}
	})

	It("a mid-flight server death fails only the calls still in flight, with ENETDOWN", func() {
		srv, err := newEchoServer()
		Expect(err).NotTo(HaveOccurred())
		defer srv.Close()
		srv.maxEchoes = 3
		host, port := srv.addr()

		ch, err := client.RegisterChannel(host, port, 1)
		Expect(err).NotTo(HaveOccurred())

		const m = 10
		results := make(chan *rpc.Controller, m)
		for i := 0; i < m; i++ {
			go func() {
				ctrl := client.CallMethod(ch, codec.MethodDescriptor{ServiceID: 1, MethodIndex: 1}, &payload{Body: []byte("x")}, &payload{})
				results <- ctrl
			}()
		}

		succeeded, failed := 0, 0
		for i := 0; i < m; i++ {
			var ctrl *rpc.Controller
			Eventually(results, 5*time.Second).Should(Receive(&ctrl))
			if ctrl.Failed() {
				Expect(ctrl.ErrorText()).To(Equal(syscall.ENETDOWN.Error()))
				failed++
			} else {
				succeeded++
			}
		}
		Expect(succeeded).To(Equal(3))
		Expect(failed).To(Equal(7))
	})
})
