package transport

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/vici/client"
	"github.com/luma/vici/protocol"
	"github.com/luma/vici/storage"
)

// Session runs a Loop on its own goroutine and lets any number of goroutines
// issue commands and manage subscriptions through it. Events of subscribed names
// are handed to Options.OnEvent and appended to the store under the event name.
type Session struct {
	loop  *Loop
	store   storage.Store
	trace   bool
	onEvent func(event string, msg *protocol.Message)

	// subs is only touched on the loop goroutine
	subs map[string]*client.Subscription

	cancel context.CancelFunc
	done   chan struct{}

	// err is written before done is closed
	err error

	log *zap.Logger
}

type reply struct {
	msg    *protocol.Message
	events []*protocol.Message
	err    error
}

func NewSession(loop *Loop, options Options) *Session {
	store := options.Store
	if store == nil {
		store = storage.NewInmemoryStore(0)
	}

	return &Session{
		loop:    loop,
		store:   store,
		trace:   options.Trace,
		onEvent: options.OnEvent,
		subs:    make(map[string]*client.Subscription),
		done:    make(chan struct{}),
		log:     options.logger(),
	}
}

// Start runs the loop until ctx is cancelled, Close is called or the connection
// fails.
func (s *Session) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	go func() {
		defer close(s.done)

		err := s.loop.Run(ctx, nil)
		if errors.Is(err, context.Canceled) {
			err = nil
		}

		if err != nil {
			s.log.Error("Session loop failed", zap.Error(err))
		}

		s.err = multierr.Append(err, s.loop.Close())
		s.log.Info("Session stopped")
	}()
}

func (s *Session) Store() storage.Store {
	return s.store
}

// Done is closed once the session has stopped and every pending call failed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns why the session stopped. It is only meaningful after Done is closed.
func (s *Session) Err() error {
	return s.err
}

// Close stops the loop and waits for it to exit.
func (s *Session) Close() error {
	if s.cancel != nil {
		s.cancel()
	}

	<-s.done
	return s.err
}

// Call sends a command and waits for its response.
func (s *Session) Call(ctx context.Context, name string, msg *protocol.Message) (*protocol.Message, error) {
	replies := make(chan reply, 1)

	err := s.post(func() {
		err := s.loop.Conn().Queue(name, msg, func(err error, _ string, resp *protocol.Message, _ interface{}) {
			s.dump(name, resp)
			replies <- reply{msg: resp, err: err}
		}, nil)

		if err != nil {
			replies <- reply{err: err}
		}
	})
	if err != nil {
		return nil, err
	}

	r, err := s.wait(ctx, replies)
	return r.msg, err
}

// Stream sends a command that streams its results as events and waits for the
// final response. The events received while the command ran are returned in
// arrival order.
func (s *Session) Stream(
	ctx context.Context,
	name string,
	msg *protocol.Message,
	event string,
) (*protocol.Message, []*protocol.Message, error) {
	replies := make(chan reply, 1)

	err := s.post(func() {
		var events []*protocol.Message

		err := s.loop.Conn().QueueStreamed(name, msg,
			func(err error, _ string, resp *protocol.Message, _ interface{}) {
				s.dump(name, resp)
				replies <- reply{msg: resp, events: events, err: err}
			},
			event,
			func(err error, event string, msg *protocol.Message, _ interface{}) {
				if err != nil {
					return
				}
				s.dump(event, msg)
				events = append(events, msg)
			},
			nil,
		)

		if err != nil {
			replies <- reply{err: err}
		}
	})
	if err != nil {
		return nil, nil, err
	}

	r, err := s.wait(ctx, replies)
	return r.msg, r.events, err
}

// Subscribe starts collecting event into the store. Subscribing twice is a no-op.
// The daemon refusing the event is logged and ends the subscription.
func (s *Session) Subscribe(ctx context.Context, event string) error {
	replies := make(chan reply, 1)

	err := s.post(func() {
		if _, ok := s.subs[event]; ok {
			replies <- reply{}
			return
		}

		sub, err := s.loop.Conn().Register(event, s.collect, nil)
		if err == nil {
			s.subs[event] = sub
		}

		replies <- reply{err: err}
	})
	if err != nil {
		return err
	}

	_, err = s.wait(ctx, replies)
	return err
}

// Unsubscribe stops collecting event and waits for the daemon to confirm.
func (s *Session) Unsubscribe(ctx context.Context, event string) error {
	replies := make(chan reply, 1)

	err := s.post(func() {
		sub, ok := s.subs[event]
		if !ok {
			replies <- reply{err: fmt.Errorf("%w: %s", client.ErrNotRegistered, event)}
			return
		}

		delete(s.subs, event)

		err := s.loop.Conn().Unregister(sub, func(err error, _ string, _ *protocol.Message, _ interface{}) {
			replies <- reply{err: err}
		}, nil)

		if err != nil {
			replies <- reply{err: err}
		}
	})
	if err != nil {
		return err
	}

	_, err = s.wait(ctx, replies)
	return err
}

func (s *Session) collect(err error, event string, msg *protocol.Message, _ interface{}) {
	if err != nil {
		s.log.Warn("Subscription refused", zap.String("event", event), zap.Error(err))
		delete(s.subs, event)
		return
	}

	s.dump(event, msg)

	if s.onEvent != nil {
		s.onEvent(event, msg)
	}

	raw, err := msg.MarshalJSON()
	if err != nil {
		s.log.Warn("Failed to convert event", zap.String("event", event), zap.Error(err))
		return
	}

	if err := s.store.Append(context.Background(), protocol.EscapePath(event), raw); err != nil {
		s.log.Warn("Failed to store event", zap.String("event", event), zap.Error(err))
	}
}

func (s *Session) post(fn func()) error {
	select {
	case <-s.done:
		return s.closedErr()
	default:
	}

	return s.loop.Post(fn)
}

func (s *Session) wait(ctx context.Context, replies <-chan reply) (reply, error) {
	select {
	case r := <-replies:
		return r, r.err

	case <-ctx.Done():
		return reply{}, ctx.Err()

	case <-s.done:
		// The loop fails everything pending on its way out
		select {
		case r := <-replies:
			return r, r.err
		default:
			return reply{}, s.closedErr()
		}
	}
}

func (s *Session) closedErr() error {
	if s.err != nil {
		return fmt.Errorf("%w: %w", client.ErrConnectionClosed, s.err)
	}

	return client.ErrConnectionClosed
}

func (s *Session) dump(name string, msg *protocol.Message) {
	if !s.trace || msg == nil {
		return
	}

	if err := msg.Dump(os.Stdout, name, 2); err != nil {
		s.log.Warn("Failed to dump message", zap.Error(err))
	}
}
