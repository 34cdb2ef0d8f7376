package chat

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"groupchat-service/internal/hub"
	"groupchat-service/internal/logging"
	"groupchat-service/internal/models"
	"groupchat-service/internal/observability"
	"groupchat-service/internal/repositories"
)

// Receipts records read receipts and derives who to label on which message.
type Receipts struct {
	groups   repositories.GroupRepository
	messages repositories.GroupMessageRepository
	seen     repositories.SeenRepository
	hub      *hub.Hub
	locks    *roomLocks
	now      func() time.Time
}

// MarkSeen records that userID has seen messageID in roomID. Replays are
// accepted and only a fresh record is broadcast.
func (r *Receipts) MarkSeen(ctx context.Context, userID int, messageID int, roomID int) (bool, error) {
	ctx, span := observability.StartSpan(ctx, "chat.mark_seen",
		attribute.Int("group.id", roomID),
		attribute.Int("message.id", messageID),
	)
	defer span.End()

	msg, err := r.messages.GetGroupMessage(ctx, messageID)
	if err != nil {
		return false, translate(err)
	}
	if msg.GroupID != roomID {
		return false, ErrNotFound
	}

	fresh, err := r.record(ctx, userID, messageID, roomID)
	if err != nil || !fresh {
		return false, err
	}

	// Labels are recomputed after the room lock is released.
	lastSeen, err := r.seen.LastSeenPerUser(ctx, roomID)
	if err != nil {
		// The record is stored; only the live label refresh is lost.
		logging.Ctx(ctx).Warn().Err(err).Int(logging.FieldGroupID, roomID).Msg("seen labels unavailable")
		return true, nil
	}
	seenBy := SeenLabels([]models.GroupMessage{msg}, lastSeen)[msg.ID]
	if seenBy == nil {
		seenBy = []int{}
	}
	r.hub.BroadcastToRoom(roomID, hub.Event{Type: models.EventMessageSeenUpdate, Data: models.MessageSeenPayload{
		MessageID: msg.ID,
		GroupID:   roomID,
		SeenBy:    seenBy,
	}}, 0)
	return true, nil
}

// record runs the membership gate and the upsert under the room lock, so a
// concurrently removed member cannot leave a receipt behind.
func (r *Receipts) record(ctx context.Context, userID int, messageID int, roomID int) (bool, error) {
	unlock := r.locks.lock(roomID)
	defer unlock()

	ok, err := r.groups.IsMember(ctx, roomID, userID)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	if !ok {
		return false, ErrNotAMember
	}

	fresh, err := r.seen.MarkSeen(ctx, messageID, userID, r.now().UTC())
	if err != nil {
		return false, fmt.Errorf("mark seen: %w", err)
	}
	return fresh, nil
}

// LastSeenPerUser returns each user's highest-sequence seen message.
func (r *Receipts) LastSeenPerUser(ctx context.Context, roomID int, requesterID int) ([]models.LastSeen, error) {
	ok, err := r.groups.IsMember(ctx, roomID, requesterID)
	if err != nil {
		return nil, fmt.Errorf("check membership: %w", err)
	}
	if !ok {
		return nil, ErrNotAMember
	}
	rows, err := r.seen.LastSeenPerUser(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("last seen: %w", err)
	}
	if rows == nil {
		rows = []models.LastSeen{}
	}
	return rows, nil
}

// SeenLabels maps message id to the users to show as "seen" on it: a user
// appears only on their newest seen message and never on their own.
func SeenLabels(messages []models.GroupMessage, lastSeen []models.LastSeen) map[int][]int {
	byMessage := make(map[int][]int)
	for _, ls := range lastSeen {
		byMessage[ls.MessageID] = append(byMessage[ls.MessageID], ls.UserID)
	}

	out := make(map[int][]int)
	for _, msg := range messages {
		var users []int
		for _, userID := range byMessage[msg.ID] {
			if userID == msg.SenderID {
				continue
			}
			users = append(users, userID)
		}
		if len(users) == 0 {
			continue
		}
		sort.Ints(users)
		out[msg.ID] = users
	}
	return out
}
