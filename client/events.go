package client

import "github.com/luma/vici/protocol"

// EventFunc receives events for a subscription. err is only ever set when the
// daemon refuses the registration, in which case msg is nil and the subscription
// has been removed.
type EventFunc func(err error, event string, msg *protocol.Message, token interface{})

// Subscription is a registered event callback. It is the handle passed to
// Unregister.
type Subscription struct {
	event  string
	fn     EventFunc
	token  interface{}
	active bool
}

func (s *Subscription) Event() string {
	return s.event
}

// Active reports whether the subscription still receives events.
func (s *Subscription) Active() bool {
	return s.active
}

func (s *Subscription) deliver(err error, msg *protocol.Message) {
	if s.fn != nil {
		s.fn(err, s.event, msg, s.token)
	}
}

// eventTable maps event names to their subscriptions in registration order and
// tracks which names are registered with the daemon.
type eventTable struct {
	subs       map[string][]*Subscription
	registered map[string]bool
}

func newEventTable() eventTable {
	return eventTable{
		subs:       make(map[string][]*Subscription),
		registered: make(map[string]bool),
	}
}

// add appends s and reports whether the daemon must be asked to send the event.
func (t *eventTable) add(s *Subscription) bool {
	s.active = true
	t.subs[s.event] = append(t.subs[s.event], s)

	if t.registered[s.event] {
		return false
	}

	t.registered[s.event] = true
	return true
}

// remove drops s and reports whether the daemon should stop sending the event.
// The slice is copied so a dispatch already iterating a snapshot is unaffected.
func (t *eventTable) remove(s *Subscription) (found, last bool) {
	current := t.subs[s.event]

	for i, sub := range current {
		if sub != s {
			continue
		}

		s.active = false

		rest := make([]*Subscription, 0, len(current)-1)
		rest = append(rest, current[:i]...)
		rest = append(rest, current[i+1:]...)

		if len(rest) > 0 {
			t.subs[s.event] = rest
			return true, false
		}

		delete(t.subs, s.event)
		if t.registered[s.event] {
			delete(t.registered, s.event)
			return true, true
		}

		return true, false
	}

	return false, false
}

// removeAll drops every subscription for event, e.g. after the daemon refused it.
func (t *eventTable) removeAll(event string) []*Subscription {
	subs := t.subs[event]
	for _, s := range subs {
		s.active = false
	}

	delete(t.subs, event)
	delete(t.registered, event)
	return subs
}

// snapshot returns the subscriptions to invoke for one event. Changes made while
// the snapshot is being dispatched apply to the next event only.
func (t *eventTable) snapshot(event string) []*Subscription {
	return t.subs[event]
}

func (t *eventTable) clear() {
	for event := range t.subs {
		t.removeAll(event)
	}
}
