package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"groupchat-service/internal/hub"
	"groupchat-service/internal/mocks"
	"groupchat-service/internal/models"
)

type recConn struct {
	id     string
	mu     sync.Mutex
	events []hub.Event
}

func (c *recConn) ID() string { return c.id }

func (c *recConn) Send(ev hub.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *recConn) Close() {}

func (c *recConn) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.events))
	for _, ev := range c.events {
		out = append(out, ev.Type)
	}
	return out
}

func (c *recConn) last() hub.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.events) == 0 {
		return hub.Event{}
	}
	return c.events[len(c.events)-1]
}

func (c *recConn) reset() {
	c.mu.Lock()
	c.events = nil
	c.mu.Unlock()
}

type fixture struct {
	groups   *mocks.GroupRepositoryMock
	messages *mocks.GroupMessageRepositoryMock
	seen     *mocks.SeenRepositoryMock
	pub      *mocks.PublisherMock
	hub      *hub.Hub
	svc      *Services
	clock    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		groups:   new(mocks.GroupRepositoryMock),
		messages: new(mocks.GroupMessageRepositoryMock),
		seen:     new(mocks.SeenRepositoryMock),
		pub:      new(mocks.PublisherMock),
		hub:      hub.NewHub(),
		clock:    time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	f.svc = New(Deps{
		Groups:    f.groups,
		Messages:  f.messages,
		Seen:      f.seen,
		Hub:       f.hub,
		Publisher: f.pub,
	})
	f.svc.Typing.now = func() time.Time { return f.clock }
	f.svc.Receipts.now = func() time.Time { return f.clock }
	return f
}

// connect registers a connection for userID and joins it to rooms directly,
// skipping the membership check.
func (f *fixture) connect(id string, userID int, rooms ...int) *recConn {
	c := &recConn{id: id}
	f.hub.Register(c, userID)
	for _, room := range rooms {
		_ = f.hub.Join(id, room)
	}
	return c
}

var bg = context.Background()

func group(id, creator int) models.Group {
	return models.Group{ID: id, Name: "room", CreatorID: creator}
}
