//go:build !linux && !darwin

package rpc

import (
	"fmt"
	"net"
	"time"
)

// dialNonBlocking falls back to the standard library's dialer on
// platforms without the x/sys/unix raw-socket primitives; behavior
// (connect-or-timeout) is equivalent, just not expressed as an explicit
// poll/getsockopt sequence.
func dialNonBlocking(host string, port int, timeout time.Duration) (net.Conn, error) {
	switch host {
	case "", "0", "0.0.0.0", "*":
		host = "0.0.0.0"
	}
	return net.DialTimeout("tcp4", fmt.Sprintf("%s:%d", host, port), timeout)
}
