package client

import (
	"strings"

	"golang.org/x/sys/unix"
)

// DefaultSocket is where charon listens for VICI clients.
const DefaultSocket = "/var/run/charon.vici"

// Transport is a connected, non-blocking stream. Read and Write must return
// ErrWouldBlock instead of blocking, and Read returns 0, nil once the peer has
// closed its end.
type Transport interface {
	Fd() int
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

type fdTransport struct {
	fd int
}

// NewFDTransport switches fd to non-blocking mode and wraps it. The transport
// owns fd from now on and closes it on Close.
func NewFDTransport(fd int) (Transport, error) {
	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, err
	}

	return &fdTransport{fd: fd}, nil
}

// DialUnix connects to a unix stream socket. The connect itself blocks, which is
// fine for a local socket, the returned transport does not.
func DialUnix(path string) (Transport, error) {
	path = strings.TrimPrefix(path, "unix://")

	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}

	if err := unix.Connect(fd, &unix.SockaddrUnix{Name: path}); err != nil {
		unix.Close(fd)
		return nil, err
	}

	t, err := NewFDTransport(fd)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}

	return t, nil
}

func (t *fdTransport) Fd() int {
	return t.fd
}

func (t *fdTransport) Read(p []byte) (int, error) {
	n, err := unix.Read(t.fd, p)
	if err != nil {
		return 0, mapErrno(err)
	}

	return n, nil
}

func (t *fdTransport) Write(p []byte) (int, error) {
	n, err := unix.Write(t.fd, p)
	if err != nil {
		return 0, mapErrno(err)
	}

	return n, nil
}

func (t *fdTransport) Close() error {
	return unix.Close(t.fd)
}

func mapErrno(err error) error {
	switch err {
	case unix.EAGAIN, unix.EINTR:
		return ErrWouldBlock
	}

	return err
}
