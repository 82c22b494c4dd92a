package transport

import (
	"encoding/binary"
	"errors"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sys/unix"

	"github.com/luma/vici/client"
)

const maxEvents = 16

// Event is the readiness of one watched descriptor.
type Event struct {
	Fd       int
	Readable bool
	Writable bool

	// Hangup is set alongside Readable, a read will report the close
	Hangup bool
}

// Poller waits for readiness on a set of descriptors. Wake interrupts a
// blocked Wait from any goroutine.
type Poller struct {
	fd     int
	wakeFd int

	watched map[int]uint32
	events  []unix.EpollEvent
}

func MakePoller() (*Poller, error) {
	var (
		poller = Poller{watched: make(map[int]uint32)}
		err    error
	)

	// https://man7.org/linux/man-pages/man2/epoll_create.2.html
	poller.fd, err = unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}

	// https://man7.org/linux/man-pages/man2/eventfd.2.html
	poller.wakeFd, err = unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(poller.fd)
		return nil, err
	}

	event := &unix.EpollEvent{Fd: int32(poller.wakeFd), Events: unix.EPOLLIN}
	if err = unix.EpollCtl(poller.fd, unix.EPOLL_CTL_ADD, poller.wakeFd, event); err != nil {
		return nil, multierr.Combine(err, unix.Close(poller.wakeFd), unix.Close(poller.fd))
	}

	poller.events = make([]unix.EpollEvent, maxEvents)
	return &poller, nil
}

// Watch sets the readiness fd is watched for. InterestNone stops watching it.
func (p *Poller) Watch(fd int, interest client.Interest) error {
	var mask uint32
	if interest.Readable() {
		mask |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if interest.Writable() {
		mask |= unix.EPOLLOUT
	}

	current, ok := p.watched[fd]

	switch {
	case mask == 0 && !ok:
		return nil

	case mask == 0:
		delete(p.watched, fd)
		err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_DEL, fd, nil)
		if errors.Is(err, unix.EBADF) || errors.Is(err, unix.ENOENT) {
			// Already gone with the descriptor
			return nil
		}
		return err

	case !ok:
		p.watched[fd] = mask
		return unix.EpollCtl(p.fd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{Fd: int32(fd), Events: mask})

	case current != mask:
		p.watched[fd] = mask
		return unix.EpollCtl(p.fd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{Fd: int32(fd), Events: mask})
	}

	return nil
}

// Wait blocks until a watched descriptor is ready, Wake is called or timeout
// passes. A negative timeout waits forever. Wake-ups are not reported as events.
func (p *Poller) Wait(timeout time.Duration) ([]Event, error) {
	msec := -1
	if timeout >= 0 {
		msec = int(timeout / time.Millisecond)
	}

	n, err := unix.EpollWait(p.fd, p.events, msec)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return nil, nil
		}
		return nil, err
	}

	ready := make([]Event, 0, n)
	for _, ev := range p.events[:n] {
		fd := int(ev.Fd)

		if fd == p.wakeFd {
			p.drainWake()
			continue
		}

		hangup := ev.Events&(unix.EPOLLHUP|unix.EPOLLRDHUP|unix.EPOLLERR) != 0
		ready = append(ready, Event{
			Fd:       fd,
			Readable: hangup || ev.Events&unix.EPOLLIN != 0,
			Writable: ev.Events&unix.EPOLLOUT != 0,
			Hangup:   hangup,
		})
	}

	return ready, nil
}

// Wake interrupts a Wait that is blocked, or makes the next one return at once.
func (p *Poller) Wake() error {
	var one [8]byte
	binary.NativeEndian.PutUint64(one[:], 1)

	_, err := unix.Write(p.wakeFd, one[:])
	if errors.Is(err, unix.EAGAIN) {
		// The counter is saturated, a wake-up is pending anyway
		return nil
	}

	return err
}

func (p *Poller) drainWake() {
	var buf [8]byte
	_, _ = unix.Read(p.wakeFd, buf[:])
}

func (p *Poller) Close() error {
	return multierr.Combine(
		unix.Close(p.wakeFd),
		unix.Close(p.fd),
	)
}
