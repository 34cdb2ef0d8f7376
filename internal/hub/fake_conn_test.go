package hub

import "sync"

type fakeConn struct {
	id string

	mu     sync.Mutex
	events []Event
	fail   bool
	closed bool
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail || c.closed {
		return ErrConnectionLost
	}
	c.events = append(c.events, ev)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeConn) Events(types ...string) []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(types) == 0 {
		return append([]Event(nil), c.events...)
	}
	var out []Event
	for _, ev := range c.events {
		for _, t := range types {
			if ev.Type == t {
				out = append(out, ev)
			}
		}
	}
	return out
}

func (c *fakeConn) Reset() {
	c.mu.Lock()
	c.events = nil
	c.mu.Unlock()
}
