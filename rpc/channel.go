package rpc

import (
	"sync"

	"github.com/vbirds/corpc/cmn/atomic"
	"github.com/vbirds/corpc/sys"
)

// Channel is one logical endpoint: (host, port, N connections), a
// round-robin picker, and a connect-delay cooldown flag.
type Channel struct {
	Host string
	Port int

	client *Client
	mu     sync.Mutex // protects conns slot replacement
	conns  []*Connection
	cursor atomic.Int64

	// connectDelay is set on any connect failure or CONNECTED->CLOSED
	// transition; the next CONNECT on this channel sleeps
	// Config.Transport.ConnectDelay (one second by default) before trying.
	connectDelay atomic.Bool
}

func newChannel(client *Client, host string, port, n int) *Channel {
	if n < 1 {
		// No explicit pool size: size off NumCPU rather than a hardcoded
		// constant, matching how per-request worker pools elsewhere in this
		// codebase get sized.
		n = sys.NumCPU()
	}
	return &Channel{
		Host:   host,
		Port:   port,
		client: client,
		conns:  make([]*Connection, n),
	}
}

// pickNext is the round-robin picker. The cursor is incremented before
// indexing — retained deliberately: the first submission against a fresh
// Channel lands on slot 1, not slot 0.
func (ch *Channel) pickNext() *Connection {
	n := int64(len(ch.conns))
	idx := ch.cursor.Add(1) % n
	if idx < 0 {
		idx += n
	}

	ch.mu.Lock()
	conn := ch.conns[idx]
	if conn != nil && conn.getState() != StateClosed {
		ch.mu.Unlock()
		return conn
	}
	conn = newConnection(ch, ch.client.router)
	conn.state = StateConnecting
	ch.conns[idx] = conn
	ch.mu.Unlock()

	ch.client.postConnect(conn)
	return conn
}

// connections returns a snapshot of every non-nil slot, used by
// Client.Shutdown to drain every connection in the channel.
func (ch *Channel) connections() []*Connection {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	out := make([]*Connection, 0, len(ch.conns))
	for _, c := range ch.conns {
		if c != nil {
			out = append(out, c)
		}
	}
	return out
}
