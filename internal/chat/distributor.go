package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"groupchat-service/internal/hub"
	"groupchat-service/internal/logging"
	"groupchat-service/internal/models"
	"groupchat-service/internal/observability"
	"groupchat-service/internal/repositories"
)

const RoutingKeyMessageCreated = "group_message.created"

// MessageCreated is the domain event published for every stored message.
type MessageCreated struct {
	EventType  string              `json:"event_type"`
	OccurredAt string              `json:"occurred_at"`
	Message    models.GroupMessage `json:"message"`
}

// Distributor is the only way messages enter a room.
type Distributor struct {
	groups    repositories.GroupRepository
	messages  repositories.GroupMessageRepository
	hub       *hub.Hub
	typing    *Typing
	publisher Publisher
	locks     *roomLocks
}

// Submit stores the message and fans it out to every joined connection,
// the author's included. The room lock is held from the membership check to
// the last enqueue, so every connection sees a room's messages in sequence
// order.
func (d *Distributor) Submit(ctx context.Context, roomID int, authorID int, text string) (models.GroupMessage, error) {
	if strings.TrimSpace(text) == "" {
		return models.GroupMessage{}, ErrEmptyMessage
	}

	ctx, span := observability.StartSpan(ctx, "chat.submit",
		attribute.Int("group.id", roomID),
		attribute.Int("user.id", authorID),
	)
	defer span.End()
	start := time.Now()

	msg, err := d.submitLocked(ctx, roomID, authorID, text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return models.GroupMessage{}, err
	}
	span.SetAttributes(attribute.Int64("message.seq", msg.Seq))
	observability.ObserveSubmit(start)

	d.publish(ctx, msg)
	return msg, nil
}

func (d *Distributor) submitLocked(ctx context.Context, roomID int, authorID int, text string) (models.GroupMessage, error) {
	unlock := d.locks.lock(roomID)
	defer unlock()

	ok, err := d.groups.IsMember(ctx, roomID, authorID)
	if err != nil {
		return models.GroupMessage{}, fmt.Errorf("check membership: %w", err)
	}
	if !ok {
		return models.GroupMessage{}, ErrNotAMember
	}

	msg, err := d.messages.CreateGroupMessage(ctx, roomID, authorID, text)
	if err != nil {
		return models.GroupMessage{}, fmt.Errorf("store message: %w", translate(err))
	}

	if entry, ok := d.typing.take(authorID, roomID); ok {
		d.hub.BroadcastToRoom(roomID, typingEvent(models.EventUserStoppedTyping, authorID, entry.userName, roomID), authorID)
	}
	delivered := d.hub.BroadcastToRoom(roomID, hub.Event{Type: models.EventNewMessage, Data: msg}, 0)

	logging.Ctx(ctx).Debug().
		Int(logging.FieldGroupID, roomID).
		Int(logging.FieldUserID, authorID).
		Int64("seq", msg.Seq).
		Int("delivered", delivered).
		Msg("message distributed")
	return msg, nil
}

func (d *Distributor) publish(ctx context.Context, msg models.GroupMessage) {
	if d.publisher == nil {
		return
	}
	event := MessageCreated{
		EventType:  RoutingKeyMessageCreated,
		OccurredAt: msg.CreatedAt.UTC().Format(time.RFC3339Nano),
		Message:    msg,
	}
	headers := observability.BuildHeaders(logging.RequestIDFromContext(ctx), "")
	if err := d.publisher.Publish(ctx, RoutingKeyMessageCreated, event, headers); err != nil {
		observability.IncAMQPPublishError()
		logging.Ctx(ctx).Warn().Err(err).Int("message_id", msg.ID).Msg("message event publish failed")
	}
}

// History returns the room's messages after afterSeq in ascending sequence
// order. A non-positive limit returns all of them.
func (d *Distributor) History(ctx context.Context, roomID int, requesterID int, afterSeq int64, limit int) ([]models.GroupMessage, error) {
	ok, err := d.groups.IsMember(ctx, roomID, requesterID)
	if err != nil {
		return nil, fmt.Errorf("check membership: %w", err)
	}
	if !ok {
		return nil, ErrNotAMember
	}

	msgs, err := d.messages.ListGroupMessages(ctx, roomID, afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	if msgs == nil {
		msgs = []models.GroupMessage{}
	}
	return msgs, nil
}
