package rpc

import (
	"fmt"
	"time"

	"github.com/vbirds/corpc/cmn/mono"
	"github.com/vbirds/corpc/hk"
)

// startIdleTeardown registers an hk sweep that closes CONNECTED
// connections idle for longer than Config.Transport.IdleTeardown. A
// closed connection runs through the ordinary CLOSE path, so the
// in-flight-drain invariant still holds — an idle connection simply has
// nothing in flight to drain.
func (c *Client) startIdleTeardown() {
	if c.cfg.Transport.IdleTeardown <= 0 {
		return
	}
	name := fmt.Sprintf("rpc-idle-teardown-%p", c)
	sweepEvery := c.cfg.Transport.IdleTeardown / 2
	if sweepEvery <= 0 {
		sweepEvery = time.Second
	}
	hk.Reg(name, sweepEvery, func() { c.sweepIdle() })
	c.idleHKName = name
}

func (c *Client) stopIdleTeardown() {
	if c.idleHKName != "" {
		hk.Unreg(c.idleHKName)
	}
}

func (c *Client) sweepIdle() {
	limit := c.cfg.Transport.IdleTeardown
	now := mono.NanoTime()

	c.channelsMu.Lock()
	chans := make([]*Channel, 0, len(c.channels))
	for _, ch := range c.channels {
		chans = append(chans, ch)
	}
	c.channelsMu.Unlock()

	for _, ch := range chans {
		for _, conn := range ch.connections() {
			conn.mu.Lock()
			isIdle := conn.state == StateConnected && time.Duration(now-conn.lastActive.Load()) > limit
			tconn := conn.tconn
			conn.mu.Unlock()
			if isIdle && tconn != nil {
				_ = tconn.Close()
			}
		}
	}
}
