package transport

import (
	"context"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/vici/client"
)

// Loop drives a client.Conn from epoll readiness. Everything that touches the
// Conn happens on the goroutine calling Run, other goroutines hand work over
// with Post.
type Loop struct {
	poller *Poller
	conn   *client.Conn

	mu     sync.Mutex
	posted []func()
	closed bool

	// watchErr holds a failure to update the poller from the interest callback,
	// Run returns it on its next iteration.
	watchErr error

	log *zap.Logger
}

// Dial connects to the daemon socket at path and returns a Loop driving it.
func Dial(path string, options Options) (*Loop, error) {
	l, err := newLoop(options)
	if err != nil {
		return nil, err
	}

	l.conn, err = client.Dial(path, l.onInterest, options.client(l.log.Named("conn"), l.onDiagnostic))
	if err != nil {
		return nil, multierr.Append(err, l.poller.Close())
	}

	return l, nil
}

// NewLoop returns a Loop driving an already connected transport.
func NewLoop(t client.Transport, options Options) (*Loop, error) {
	l, err := newLoop(options)
	if err != nil {
		return nil, err
	}

	l.conn = client.New(t, l.onInterest, options.client(l.log.Named("conn"), l.onDiagnostic))
	return l, nil
}

func newLoop(options Options) (*Loop, error) {
	poller, err := MakePoller()
	if err != nil {
		return nil, err
	}

	return &Loop{
		poller: poller,
		log:    options.logger(),
	}, nil
}

// Conn returns the connection. It must only be used from the goroutine running
// Run, or from functions handed to Post.
func (l *Loop) Conn() *client.Conn {
	return l.conn
}

// Post schedules fn to run on the loop goroutine and wakes the loop. It returns
// client.ErrConnectionClosed once the loop has been closed.
func (l *Loop) Post(fn func()) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return client.ErrConnectionClosed
	}

	l.posted = append(l.posted, fn)
	return l.poller.Wake()
}

// Run waits for readiness and dispatches it to the connection until done
// returns true, ctx is cancelled or the connection fails. done is checked
// before every wait, so it sees the effect of every callback.
func (l *Loop) Run(ctx context.Context, done func() bool) error {
	stop := context.AfterFunc(ctx, func() {
		l.mu.Lock()
		defer l.mu.Unlock()

		if l.closed {
			return
		}

		if err := l.poller.Wake(); err != nil {
			l.log.Warn("Failed to wake loop", zap.Error(err))
		}
	})
	defer stop()

	for {
		l.runPosted()

		if l.watchErr != nil {
			err := l.watchErr
			l.watchErr = nil
			return err
		}

		if done != nil && done() {
			return nil
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		events, err := l.poller.Wait(-1)
		if err != nil {
			return err
		}

		for _, ev := range events {
			if err := l.dispatch(ev); err != nil {
				return err
			}
		}
	}
}

func (l *Loop) dispatch(ev Event) error {
	if ev.Fd != l.conn.Fd() {
		return nil
	}

	if ev.Writable && l.conn.Interest().Writable() {
		if err := l.conn.OnWritable(); err != nil {
			return err
		}
	}

	if ev.Readable && l.conn.Interest().Readable() {
		return l.conn.OnReadable()
	}

	return nil
}

func (l *Loop) runPosted() {
	l.mu.Lock()
	posted := l.posted
	l.posted = nil
	l.mu.Unlock()

	for _, fn := range posted {
		fn()
	}
}

// Close disconnects, failing everything still pending, and releases the poller.
// Like Run it must be called from the loop goroutine.
func (l *Loop) Close() error {
	err := l.conn.Disconnect()

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return err
	}
	l.closed = true
	l.posted = nil

	return multierr.Append(err, l.poller.Close())
}

func (l *Loop) onInterest(fd int, interest client.Interest) {
	l.log.Debug("Interest changed", zap.Int("fd", fd), zap.Stringer("interest", interest))

	if err := l.poller.Watch(fd, interest); err != nil {
		l.watchErr = multierr.Append(l.watchErr, err)
	}
}

func (l *Loop) onDiagnostic(err error) {
	l.log.Debug("Connection diagnostic", zap.Error(err))
}
