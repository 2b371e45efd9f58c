package rpc

// upstreamLoop is the upstream dispatch fiber: it drains
// CallMethod's submissions one at a time, routes each to the task's
// channel's picked connection, and either appends it to that connection's
// pending-send list (still CONNECTING) or inserts it into the in-flight
// map and hands it to the reactor (already CONNECTED). Go's channel
// receive is itself the "park when empty, resume on enqueue" mechanism —
// no separate "upstream parked" flag is needed here.
func (c *Client) upstreamLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case t := <-c.upstream:
			c.dispatch(t)
		}
	}
}

func (c *Client) dispatch(t *CallTask) {
	conn := t.Channel.pickNext()

	switch conn.getState() {
	case StateConnecting:
		conn.enqueuePending(t)
	case StateConnected:
		conn.insertInflight(t)
		c.sendTask(conn, t)
	case StateClosed:
		// pickNext never returns a slot it saw CLOSED, but the connection
		// can close (failed connect or CLOSE event) between its check and
		// this read. Pick again: pickNext replaces the CLOSED slot with a
		// fresh CONNECTING connection.
		c.dispatch(t)
	}
}
