package rpc

// downstreamLoop is the downstream resume fiber: it bridges
// completions from arbitrary transport-reactor goroutines (Encoder,
// Decoder, and the connection worker all send here) back to each call's
// own blocked caller goroutine.
func (c *Client) downstreamLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case t := <-c.downstream:
			t.resume()
		}
	}
}
