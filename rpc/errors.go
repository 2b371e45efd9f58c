package rpc

import (
	stderrors "errors"
	"syscall"

	"github.com/pkg/errors"
)

// errConnectFail is the controller text for a failed CONNECT: a
// transient, connect-variant transport error.
var errConnectFail = stderrors.New("Connect fail")

// errNetDown is the controller text on any CONNECTED->CLOSED transition,
// the string form of ENETDOWN.
var errNetDown = stderrors.New(syscall.ENETDOWN.Error())

// ErrDuplicateChannel is returned by Client.RegisterChannel for an
// already-registered (host, port) pair — a setup-time configuration error.
var ErrDuplicateChannel = stderrors.New("rpc: channel already registered")

// ErrNoTransport names the error of a Client without a transport reactor.
// NewClient always constructs a reactor, and no function in this package
// returns ErrNoTransport.
var ErrNoTransport = stderrors.New("rpc: client has no transport reactor configured")

// errProtocolViolation wraps a decoder-side hard error (unknown call id, or
// body parse failure): the frame is discarded, the connection is not torn
// down.
func errProtocolViolation(format string, args ...any) error {
	return errors.Errorf("rpc: protocol violation: "+format, args...)
}
