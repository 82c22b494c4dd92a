package client

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectionClosed is delivered to every request still pending when the peer
	// closes the connection or Disconnect is called. Operations on a connection that
	// is no longer connected return it too.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrRequestInFlight is returned by Queue when the connection only allows a
	// limited number of outstanding commands and that limit has been reached.
	ErrRequestInFlight = errors.New("a request is already in flight")

	ErrUnknownCommand = errors.New("unknown command")
	ErrUnknownEvent   = errors.New("unknown event")

	// ErrUnexpectedMessage describes an inbound packet nothing was waiting for.
	// It is reported through Options.OnDiagnostic and never closes the connection.
	ErrUnexpectedMessage = errors.New("unexpected message")

	ErrNotRegistered = errors.New("subscription is not registered")

	// ErrWouldBlock is returned by a Transport when a non-blocking read or write
	// cannot make progress right now.
	ErrWouldBlock = errors.New("operation would block")
)

// ConnectError is returned when the socket to the daemon cannot be opened.
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect to %s: %v", e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// TransportError is a read or write failure on an established connection. The
// connection is unusable afterwards and every pending request fails with it.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
