package client

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/luma/vici/protocol"
)

const (
	DefaultReadSize = 4096
)

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Closing
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Closing:
		return "closing"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type Options struct {
	// MaxPending limits how many commands may be queued at once, including the one
	// awaiting its response. Queue fails with ErrRequestInFlight beyond it. Zero
	// means no limit; 1 allows a single outstanding command and nothing else.
	MaxPending int

	// MaxMessageSize bounds inbound frames. Defaults to protocol.DefaultMaxMessageSize
	MaxMessageSize int

	// ReadSize is how much a single OnReadable tries to read. Defaults to DefaultReadSize
	ReadSize int

	// OnDiagnostic is told about inbound packets that were dropped because nothing
	// was waiting for them.
	OnDiagnostic func(err error)

	Log *zap.Logger
}

type Stats struct {
	Sent      uint64
	Responses uint64
	Events    uint64
	Dropped   uint64
}

// Conn is a client connection to the daemon's management socket.
//
// A Conn never blocks and never starts goroutines. The owner polls Fd for the
// interest reported through the InterestFunc and calls OnReadable and OnWritable
// when it is ready. Callbacks run from within those calls (and from Disconnect),
// and may call back into the Conn. A Conn must only be used from one goroutine at
// a time.
type Conn struct {
	id string

	transport Transport
	fd        int
	state     State

	bufs     buffers
	queue    requestQueue
	events   eventTable
	readBuf  []byte
	interest Interest

	onInterest   InterestFunc
	onDiagnostic func(err error)

	maxPending     int
	maxMessageSize int

	stats Stats

	log *zap.Logger
}

// Dial connects to the unix socket at path and returns a connected Conn. The
// initial interest set is reported through onInterest before Dial returns.
func Dial(path string, onInterest InterestFunc, options Options) (*Conn, error) {
	t, err := DialUnix(path)
	if err != nil {
		return nil, &ConnectError{Addr: path, Err: err}
	}

	return New(t, onInterest, options), nil
}

// New returns a connected Conn driving an already connected transport.
func New(t Transport, onInterest InterestFunc, options Options) *Conn {
	c := &Conn{
		id:             uuid.New().String(),
		transport:      t,
		fd:             t.Fd(),
		state:          Connecting,
		events:         newEventTable(),
		onInterest:     onInterest,
		onDiagnostic:   options.OnDiagnostic,
		maxPending:     options.MaxPending,
		maxMessageSize: options.MaxMessageSize,
		log:            options.Log,
	}

	if c.maxMessageSize <= 0 {
		c.maxMessageSize = protocol.DefaultMaxMessageSize
	}

	readSize := options.ReadSize
	if readSize <= 0 {
		readSize = DefaultReadSize
	}
	c.readBuf = make([]byte, readSize)

	if c.log == nil {
		c.log = zap.NewNop()
	}
	c.log = c.log.With(zap.String("conn", c.id), zap.Int("fd", c.fd))

	c.state = Connected
	c.log.Debug("Connected")
	c.updateInterest()

	return c
}

func (c *Conn) ID() string {
	return c.id
}

func (c *Conn) Fd() int {
	return c.fd
}

func (c *Conn) State() State {
	return c.state
}

// Interest returns the interest set last reported to the InterestFunc.
func (c *Conn) Interest() Interest {
	return c.interest
}

// Pending returns the number of requests that have not been answered yet,
// including event registrations.
func (c *Conn) Pending() int {
	return c.queue.len()
}

func (c *Conn) Stats() Stats {
	return c.stats
}

// Queue encodes a command and queues it. done is called exactly once, with the
// response or with the error that ended the request. Encoding errors and
// ErrRequestInFlight are returned synchronously and nothing is queued.
func (c *Conn) Queue(name string, msg *protocol.Message, done ResponseFunc, token interface{}) error {
	if c.state != Connected {
		return ErrConnectionClosed
	}

	if c.maxPending > 0 && c.queue.commands >= c.maxPending {
		return fmt.Errorf("%w: %d commands pending", ErrRequestInFlight, c.queue.commands)
	}

	frame, err := protocol.Encode(protocol.CmdRequest, name, msg)
	if err != nil {
		return err
	}

	c.push(&request{
		kind:  protocol.CmdRequest,
		name:  name,
		frame: frame,
		done:  done,
		token: token,
	})

	return nil
}

// QueueStreamed queues a command whose results arrive as events while it runs,
// like list-policies streaming list-policy events. eventFn receives the events,
// done receives the final response. The event subscription only lives as long as
// the command.
func (c *Conn) QueueStreamed(
	name string,
	msg *protocol.Message,
	done ResponseFunc,
	event string,
	eventFn EventFunc,
	token interface{},
) error {
	if c.maxPending > 0 && c.queue.commands >= c.maxPending {
		return fmt.Errorf("%w: %d commands pending", ErrRequestInFlight, c.queue.commands)
	}

	sub, err := c.Register(event, eventFn, token)
	if err != nil {
		return err
	}

	err = c.Queue(name, msg, func(err error, name string, msg *protocol.Message, token interface{}) {
		// Unregister fails with ErrConnectionClosed when the connection is going
		// away, the subscription is removed locally regardless.
		_ = c.Unregister(sub, nil, nil)

		if done != nil {
			done(err, name, msg, token)
		}
	}, token)

	if err != nil {
		_ = c.Unregister(sub, nil, nil)
		return err
	}

	return nil
}

// Register subscribes fn to an event. The subscription is effective immediately,
// the daemon is asked to start sending the event when this is the first
// subscription for it.
func (c *Conn) Register(event string, fn EventFunc, token interface{}) (*Subscription, error) {
	if c.state != Connected {
		return nil, ErrConnectionClosed
	}

	frame, err := protocol.Encode(protocol.EventRegister, event, nil)
	if err != nil {
		return nil, err
	}

	sub := &Subscription{event: event, fn: fn, token: token}
	if !c.events.add(sub) {
		return sub, nil
	}

	c.push(&request{
		kind:  protocol.EventRegister,
		name:  event,
		frame: frame,
		replied: func(err error) {
			if !errors.Is(err, ErrUnknownEvent) {
				return
			}

			c.log.Warn("Event registration refused", zap.String("event", event), zap.Error(err))
			for _, s := range c.events.removeAll(event) {
				s.deliver(err, nil)
			}
		},
	})

	return sub, nil
}

// Unregister removes a subscription. It does not receive any event dispatched
// after this call. When it was the last subscription for its event the daemon
// is told to stop sending it and done is called once the daemon confirms.
// Otherwise done is called before Unregister returns.
func (c *Conn) Unregister(sub *Subscription, done ResponseFunc, token interface{}) error {
	if sub == nil {
		return ErrNotRegistered
	}

	found, last := c.events.remove(sub)
	if !found {
		return ErrNotRegistered
	}

	if c.state != Connected {
		return ErrConnectionClosed
	}

	if !last {
		if done != nil {
			done(nil, sub.event, nil, token)
		}
		return nil
	}

	frame, err := protocol.Encode(protocol.EventUnregister, sub.event, nil)
	if err != nil {
		return err
	}

	c.push(&request{
		kind:  protocol.EventUnregister,
		name:  sub.event,
		frame: frame,
		done:  done,
		token: token,
	})

	return nil
}

func (c *Conn) push(r *request) {
	c.queue.push(r)
	c.sendNext()
	c.updateInterest()
}

// sendNext moves the front request onto the outbound buffer unless it is there
// already. Later requests wait until the front one is answered.
func (c *Conn) sendNext() {
	if c.state != Connected {
		return
	}

	r := c.queue.front()
	if r == nil || r.sent {
		return
	}

	c.bufs.queueFrame(r.frame)
	r.frame = nil
	r.sent = true
	c.stats.Sent++

	c.log.Debug("Sending request",
		zap.Stringer("type", r.kind),
		zap.String("name", r.name))
}

// OnReadable performs one non-blocking read and dispatches every complete frame
// that is buffered afterwards. It returns ErrConnectionClosed when the peer has
// closed the connection, a *TransportError when reading failed and an error
// wrapping protocol.ErrMalformedFrame when the stream cannot be decoded. In all
// of those cases every pending request has been failed with the same error.
func (c *Conn) OnReadable() error {
	if c.state != Connected {
		return ErrConnectionClosed
	}

	n, err := c.transport.Read(c.readBuf)
	if err != nil {
		if errors.Is(err, ErrWouldBlock) {
			return nil
		}

		terr := &TransportError{Op: "read", Err: err}
		c.fail(terr)
		return terr
	}

	if n == 0 {
		c.log.Info("Connection closed by peer")
		c.fail(ErrConnectionClosed)
		return ErrConnectionClosed
	}

	c.bufs.received(c.readBuf[:n])

	for c.state == Connected {
		pkt, used, err := protocol.ReadPacket(c.bufs.undecoded(), c.maxMessageSize)
		if errors.Is(err, protocol.ErrNeedMoreData) {
			break
		}
		if err != nil {
			c.log.Error("Failed to decode inbound frame", zap.Error(err))
			c.fail(err)
			return err
		}

		c.bufs.decoded(used)
		c.dispatch(pkt)
	}

	c.updateInterest()
	return nil
}

// OnWritable performs one non-blocking write of as much of the outbound buffer
// as the socket takes.
func (c *Conn) OnWritable() error {
	if c.state != Connected {
		return ErrConnectionClosed
	}

	if c.bufs.wantsWrite() {
		n, err := c.transport.Write(c.bufs.unwritten())
		if err != nil && !errors.Is(err, ErrWouldBlock) {
			terr := &TransportError{Op: "write", Err: err}
			c.fail(terr)
			return terr
		}

		c.bufs.wrote(n)
	}

	c.updateInterest()
	return nil
}

// Disconnect closes the socket and fails every pending request with
// ErrConnectionClosed. Calling it more than once is harmless.
func (c *Conn) Disconnect() error {
	// The transport is taken before any callback runs, a callback calling
	// Disconnect again finds nothing left to close.
	t := c.transport
	if t == nil {
		return nil
	}
	c.transport = nil

	c.fail(ErrConnectionClosed)
	c.events.clear()

	err := t.Close()
	c.state = Disconnected
	c.log.Debug("Disconnected")

	if err != nil {
		return &TransportError{Op: "close", Err: err}
	}

	return nil
}

func (c *Conn) dispatch(pkt *protocol.Packet) {
	switch pkt.Type {
	case protocol.CmdResponse, protocol.EventConfirm:
		c.complete(pkt, nil)

	case protocol.CmdUnknown, protocol.EventUnknown:
		c.complete(pkt, c.unknownError(pkt))

	case protocol.Event:
		c.stats.Events++

		subs := c.events.snapshot(pkt.Name)
		if len(subs) == 0 {
			c.log.Debug("Dropping event without subscribers", zap.String("event", pkt.Name))
			return
		}

		for _, s := range subs {
			s.deliver(nil, pkt.Message)
		}

	default:
		c.drop(pkt, "packet type is never sent by the daemon")
	}
}

func (c *Conn) unknownError(pkt *protocol.Packet) error {
	r := c.queue.front()
	if r == nil {
		return nil
	}

	if pkt.Type == protocol.CmdUnknown {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, r.name)
	}

	return fmt.Errorf("%w: %s", ErrUnknownEvent, r.name)
}

// complete hands a reply to the request at the front of the queue.
func (c *Conn) complete(pkt *protocol.Packet, err error) {
	r := c.queue.front()
	if r == nil || !r.answeredBy(pkt.Type) {
		c.drop(pkt, "no request awaiting this reply")
		return
	}

	c.queue.pop()
	c.stats.Responses++

	r.complete(err, pkt.Message)

	c.sendNext()
}

func (c *Conn) drop(pkt *protocol.Packet, reason string) {
	c.stats.Dropped++

	err := fmt.Errorf("%w: %s: %s", ErrUnexpectedMessage, pkt, reason)
	c.log.Warn("Dropping inbound message", zap.Error(err))

	if c.onDiagnostic != nil {
		c.onDiagnostic(err)
	}
}

// fail moves the connection to Closing and fails every pending request with err.
func (c *Conn) fail(err error) {
	if c.state != Connected {
		return
	}

	c.state = Closing
	c.bufs.reset()

	pending := c.queue.drain()
	if len(pending) > 0 {
		c.log.Info("Failing pending requests",
			zap.Int("count", len(pending)),
			zap.Error(err))
	}

	for _, r := range pending {
		r.complete(err, nil)
	}

	c.updateInterest()
}

func (c *Conn) wantedInterest() Interest {
	if c.state != Connected {
		return InterestNone
	}

	if c.bufs.wantsWrite() {
		return InterestReadWrite
	}

	return InterestRead
}

// updateInterest reports the interest set if it changed since the last report.
func (c *Conn) updateInterest() {
	wanted := c.wantedInterest()
	if wanted == c.interest {
		return
	}

	c.interest = wanted

	if c.onInterest != nil {
		c.onInterest(c.fd, wanted)
	}
}
