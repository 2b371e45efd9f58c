//go:build linux || darwin

package rpc

import (
	"net"
	"os"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// resolveHost implements the host-string convention: empty,
// "0", "0.0.0.0", or "*" all mean INADDR_ANY; anything else is parsed as a
// dotted-quad IPv4 address.
func resolveHost(host string) ([4]byte, error) {
	switch host {
	case "", "0", "0.0.0.0", "*":
		return [4]byte{}, nil
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return [4]byte{}, errors.Errorf("rpc: cannot parse host %q as a dotted-quad address", host)
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return [4]byte{}, errors.Errorf("rpc: host %q is not IPv4", host)
	}
	var out [4]byte
	copy(out[:], ip4)
	return out, nil
}

// dialNonBlocking implements the connection worker's CONNECT path:
// create a non-blocking TCP socket, issue connect(), and on
// EALREADY/EINPROGRESS poll(POLLOUT|POLLERR|POLLHUP) with the configured
// deadline before checking SO_ERROR. On success the raw fd is handed off
// to the standard library as a *net.TCPConn so the rest of the module
// (bufio, the transport reactor) never touches a raw fd again.
func dialNonBlocking(host string, port int, timeout time.Duration) (net.Conn, error) {
	addr, err := resolveHost(host)
	if err != nil {
		return nil, err
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return nil, errors.Wrap(err, "rpc: socket")
	}
	// On any failure below, fd must not leak.
	ok := false
	defer func() {
		if !ok {
			_ = unix.Close(fd)
		}
	}()

	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, errors.Wrap(err, "rpc: set non-blocking")
	}

	sa := &unix.SockaddrInet4{Port: port, Addr: addr}
	err = unix.Connect(fd, sa)
	switch {
	case err == nil:
		// connected immediately (e.g. loopback)
	case errors.Is(err, unix.EINPROGRESS), errors.Is(err, unix.EALREADY):
		if err := pollWritable(fd, timeout); err != nil {
			return nil, err
		}
		if serr, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR); err != nil {
			return nil, errors.Wrap(err, "rpc: getsockopt(SO_ERROR)")
		} else if serr != 0 {
			return nil, errors.Wrap(unix.Errno(serr), "rpc: connect")
		}
	default:
		return nil, errors.Wrap(err, "rpc: connect")
	}

	if err := unix.SetNonblock(fd, false); err != nil {
		return nil, errors.Wrap(err, "rpc: clear non-blocking")
	}

	f := os.NewFile(uintptr(fd), "rpc-conn")
	nc, err := net.FileConn(f)
	_ = f.Close() // FileConn dup()s the fd; the original is no longer needed
	if err != nil {
		return nil, errors.Wrap(err, "rpc: FileConn")
	}
	ok = true
	return nc, nil
}

// pollWritable waits for POLLOUT|POLLERR|POLLHUP on fd, a 200ms-class
// readiness wait (the exact duration is Config.Transport.ConnectTimeout).
func pollWritable(fd int, timeout time.Duration) error {
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT | unix.POLLERR | unix.POLLHUP}}
	ms := int(timeout / time.Millisecond)
	if ms <= 0 {
		ms = 200
	}
	n, err := unix.Poll(fds, ms)
	if err != nil {
		return errors.Wrap(err, "rpc: poll")
	}
	if n == 0 {
		return errors.New("rpc: connect readiness poll timed out")
	}
	if fds[0].Revents&(unix.POLLERR|unix.POLLHUP) != 0 {
		return errors.New("rpc: connect poll reported POLLERR/POLLHUP")
	}
	return nil
}
