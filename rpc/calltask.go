// Package rpc is the client-side RPC engine: connection lifecycle, the
// per-connection codec pipeline, the in-flight call table, and the three
// cooperating goroutines (connection worker, upstream dispatch, downstream
// resume) that together demultiplex concurrent calls over a pool of
// reusable connections.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package rpc

import (
	"sync"

	"github.com/vbirds/corpc/codec"
)

// Controller carries one call's failure state back to its caller. The
// engine mutates it; the caller only ever reads it after being resumed.
type Controller struct {
	mu      sync.Mutex
	failed  bool
	errText string
}

func (c *Controller) SetFailed(text string) {
	c.mu.Lock()
	c.failed = true
	c.errText = text
	c.mu.Unlock()
}

func (c *Controller) Failed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failed
}

func (c *Controller) ErrorText() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errText
}

func (c *Controller) Reset() {
	c.mu.Lock()
	c.failed = false
	c.errText = ""
	c.mu.Unlock()
}

// CallTask holds one outstanding call. It is exclusively owned by the
// caller goroutine; the engine only ever borrows a reference to it while
// it sits in the upstream channel, a connection's pending-send list, or a
// connection's in-flight map — never more than one of the three at once.
type CallTask struct {
	Channel     *Channel
	Request     codec.Message
	Response    codec.Message // nil iff FireAndForget
	Ctrl        *Controller
	CallID      uint64
	ServiceID   uint32
	MethodIndex uint32

	FireAndForget bool

	done chan struct{} // closed by the downstream resume goroutine
}

func newCallTask(ch *Channel, callID uint64, md codec.MethodDescriptor, req, resp codec.Message) *CallTask {
	return &CallTask{
		Channel:       ch,
		Request:       req,
		Response:      resp,
		Ctrl:          &Controller{},
		CallID:        callID,
		ServiceID:     md.ServiceID,
		MethodIndex:   md.MethodIndex,
		FireAndForget: md.FireAndForget,
		done:          make(chan struct{}),
	}
}

// resume wakes the caller goroutine blocked in CallMethod. It is safe to
// call from any goroutine but must run exactly once per task: a second call
// panics (close of a closed channel).
func (t *CallTask) resume() { close(t.done) }
