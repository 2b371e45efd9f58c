// Package transport is the concrete I/O reactor the rpc engine's
// connection worker hands a dialed socket to. It knows nothing about
// RPC semantics: it reads a fixed-size head, asks a Framer how big the
// body is and what to do with the finished frame, and offers a
// mutex-serialized Send that writes from the caller's goroutine.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package transport

import (
	"bufio"
	"io"
	"net"
	"sync"

	"github.com/vbirds/corpc/cmn/cos"
	"github.com/vbirds/corpc/cmn/nlog"

	"github.com/pkg/errors"
)

// Framer is the pipeline contract a registered connection is built with:
// response head size, how to extract the body length from that head, the
// max body size the pipeline accepts (0 = unbounded), and what to do once
// a complete frame has arrived.
type Framer interface {
	HeadSize() int
	BodySize(head []byte) uint32
	MaxBodySize() uint32
	HandleFrame(head, body []byte) error
}

// Conn is one registered, running connection: a read loop goroutine
// driving Framer, and a mutex-serialized, unbuffered write path for Send.
type Conn struct {
	nc      net.Conn
	framer  Framer
	onClose func(error)

	sendMu sync.Mutex
	closed bool
}

// Reactor registers dialed sockets and runs their read loops. It has no
// notion of Channels or CallTasks, keeping the transport layer decoupled
// from the rpc package's call-routing concerns.
type Reactor struct {
	wg sync.WaitGroup
}

func NewReactor() *Reactor { return &Reactor{} }

// AddConnection registers a connected socket, starting its read loop in a
// new goroutine. onClose is invoked exactly once per connection: from the
// read loop's goroutine on a read error (including a clean peer close) or
// an oversized frame, and from a new goroutine after a failed Send or an
// explicit Close.
func (r *Reactor) AddConnection(nc net.Conn, framer Framer, onClose func(error)) *Conn {
	c := &Conn{nc: nc, framer: framer, onClose: onClose}
	r.wg.Add(1)
	go c.readLoop(&r.wg)
	return c
}

func (c *Conn) readLoop(wg *sync.WaitGroup) {
	defer wg.Done()
	br := bufio.NewReader(c.nc)
	head := make([]byte, c.framer.HeadSize())
	for {
		if _, err := io.ReadFull(br, head); err != nil {
			c.fail(err)
			return
		}
		bodySize := c.framer.BodySize(head)
		if max := c.framer.MaxBodySize(); max > 0 && bodySize > max {
			c.fail(errors.Errorf("transport: response body %d exceeds max body size %d", bodySize, max))
			return
		}
		var body []byte
		if bodySize > 0 {
			body = make([]byte, bodySize)
			if _, err := io.ReadFull(br, body); err != nil {
				c.fail(err)
				return
			}
		}
		if err := c.framer.HandleFrame(head, body); err != nil {
			nlog.Warningf("transport: %s: %v", c.nc.RemoteAddr(), err)
		}
	}
}

func (c *Conn) fail(err error) {
	c.sendMu.Lock()
	already := c.closed
	c.closed = true
	c.sendMu.Unlock()
	_ = c.nc.Close()
	if !already {
		switch {
		case cos.IsErrConnectionReset(err):
			nlog.Warningf("transport: %s: connection reset: %v", c.nc.RemoteAddr(), err)
		case cos.IsErrBrokenPipe(err):
			nlog.Warningf("transport: %s: broken pipe: %v", c.nc.RemoteAddr(), err)
		case cos.IsErrSyscallTimeout(err):
			nlog.Warningf("transport: %s: read/write timeout: %v", c.nc.RemoteAddr(), err)
		}
	}
	if !already && c.onClose != nil {
		c.onClose(err)
	}
}

// Send hands a complete, already-framed payload to the reactor for
// writing. Concurrent callers are serialized; a single short write failure
// tears the connection down via the same onClose path a read error would.
func (c *Conn) Send(payload []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return errors.New("transport: send on closed connection")
	}
	if _, err := c.nc.Write(payload); err != nil {
		c.closed = true
		_ = c.nc.Close()
		if c.onClose != nil {
			go c.onClose(err)
		}
		return err
	}
	return nil
}

// Close tears the connection down from the writer's side (graceful
// shutdown), invoking onClose like any other terminal event.
func (c *Conn) Close() error {
	c.sendMu.Lock()
	if c.closed {
		c.sendMu.Unlock()
		return nil
	}
	c.closed = true
	c.sendMu.Unlock()
	err := c.nc.Close()
	if c.onClose != nil {
		go c.onClose(nil)
	}
	return err
}
