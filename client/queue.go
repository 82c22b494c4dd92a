package client

import "github.com/luma/vici/protocol"

// ResponseFunc receives the outcome of a queued request exactly once. On success
// err is nil, name is the command or event name the request was about and msg is
// the reply body (nil for event registration replies). A non-nil err is terminal
// for the request and msg is nil.
type ResponseFunc func(err error, name string, msg *protocol.Message, token interface{})

type request struct {
	kind  protocol.PacketType
	name  string
	frame []byte
	sent  bool

	done  ResponseFunc
	token interface{}

	// replied runs before done and lets the connection keep its own bookkeeping
	// in step with the daemon, e.g. forget an event registration it rejected.
	replied func(err error)
}

func (r *request) isCommand() bool {
	return r.kind == protocol.CmdRequest
}

// answeredBy reports whether a reply packet of type t can complete r.
func (r *request) answeredBy(t protocol.PacketType) bool {
	if !r.sent {
		return false
	}

	switch t {
	case protocol.CmdResponse, protocol.CmdUnknown:
		return r.kind == protocol.CmdRequest
	case protocol.EventConfirm, protocol.EventUnknown:
		return r.kind == protocol.EventRegister || r.kind == protocol.EventUnregister
	}

	return false
}

func (r *request) complete(err error, msg *protocol.Message) {
	if r.replied != nil {
		r.replied(err)
	}

	if r.done != nil {
		if err != nil {
			r.done(err, "", nil, r.token)
			return
		}
		r.done(nil, r.name, msg, r.token)
	}
}

// requestQueue is the FIFO of requests in the order they were queued. Only the
// front request is ever on the wire.
type requestQueue struct {
	items    []*request
	commands int
}

func (q *requestQueue) push(r *request) {
	q.items = append(q.items, r)
	if r.isCommand() {
		q.commands++
	}
}

func (q *requestQueue) front() *request {
	if len(q.items) == 0 {
		return nil
	}

	return q.items[0]
}

func (q *requestQueue) pop() *request {
	r := q.front()
	if r == nil {
		return nil
	}

	q.items[0] = nil
	q.items = q.items[1:]
	if r.isCommand() {
		q.commands--
	}

	return r
}

func (q *requestQueue) len() int {
	return len(q.items)
}

// drain empties the queue and returns what it held, front first.
func (q *requestQueue) drain() []*request {
	items := q.items
	q.items = nil
	q.commands = 0
	return items
}
