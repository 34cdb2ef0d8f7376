package chat

import (
	"context"
	"time"

	"groupchat-service/internal/hub"
	"groupchat-service/internal/repositories"
	"groupchat-service/internal/telemetry"
)

// Publisher sends domain events to the broker.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error
}

type Deps struct {
	Groups        repositories.GroupRepository
	Messages      repositories.GroupMessageRepository
	Seen          repositories.SeenRepository
	Hub           *hub.Hub
	Presence      *hub.Tracker
	Publisher     Publisher
	Audit         *telemetry.AuditEmitter
	TypingTimeout time.Duration
}

// Services groups the chat components. They share one set of room locks so
// that membership changes, joins, submits and receipts on a room are
// serialized against each other.
type Services struct {
	Rooms    *RoomManager
	Typing   *Typing
	Messages *Distributor
	Receipts *Receipts
}

func New(d Deps) *Services {
	locks := newRoomLocks()
	typing := NewTyping(d.Hub, d.TypingTimeout)

	return &Services{
		Rooms: &RoomManager{
			groups:   d.Groups,
			hub:      d.Hub,
			presence: d.Presence,
			typing:   typing,
			audit:    d.Audit,
			locks:    locks,
		},
		Typing: typing,
		Messages: &Distributor{
			groups:    d.Groups,
			messages:  d.Messages,
			hub:       d.Hub,
			typing:    typing,
			publisher: d.Publisher,
			locks:     locks,
		},
		Receipts: &Receipts{
			groups:   d.Groups,
			messages: d.Messages,
			seen:     d.Seen,
			hub:      d.Hub,
			locks:    locks,
			now:      time.Now,
		},
	}
}
