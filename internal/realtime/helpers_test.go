package realtime

import (
	"context"
	"errors"
	"sync"
)

// fakeConn records every event handed to Send.
type fakeConn struct {
	id ConnID

	mu     sync.Mutex
	events []Event
	err    error
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: ConnID(id)}
}

func (c *fakeConn) ID() ConnID { return c.id }

func (c *fakeConn) Send(ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.events = append(c.events, ev)
	return nil
}

func (c *fakeConn) failWith(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

func (c *fakeConn) all() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

func (c *fakeConn) named(name string) []Event {
	var out []Event
	for _, ev := range c.all() {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

func (c *fakeConn) last() Event {
	evs := c.all()
	if len(evs) == 0 {
		return Event{}
	}
	return evs[len(evs)-1]
}

var errBadToken = errors.New("bad token")

// tokenTable resolves tokens from a fixed map.
type tokenTable map[string]UserID

func (t tokenTable) ResolveToken(_ context.Context, token string) (UserID, error) {
	if user, ok := t[token]; ok {
		return user, nil
	}
	return 0, errBadToken
}

// chatTable grants access to fixed participants.
type chatTable map[ChatID][]UserID

func (t chatTable) CanAccessChat(_ context.Context, user UserID, chat ChatID) (bool, error) {
	for _, u := range t[chat] {
		if u == user {
			return true, nil
		}
	}
	return false, nil
}
