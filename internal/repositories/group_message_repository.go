package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"groupchat-service/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// GroupMessageRepository defines interactions for group messages.
type GroupMessageRepository interface {
	CreateGroupMessage(ctx context.Context, groupID int, senderID int, content string) (models.GroupMessage, error)
	ListGroupMessages(ctx context.Context, groupID int, afterSeq int64, limit int) ([]models.GroupMessage, error)
	GetGroupMessage(ctx context.Context, messageID int) (models.GroupMessage, error)
}

// GroupMessageRepo is a sqlx-backed implementation.
type GroupMessageRepo struct {
	db *sqlx.DB
}

// NewGroupMessageRepo constructs a GroupMessageRepo.
func NewGroupMessageRepo(db *sqlx.DB) *GroupMessageRepo {
	return &GroupMessageRepo{db: db}
}

// CreateGroupMessage assigns the next sequence number for the group and
// stores the message in one transaction. The row lock on groups makes the
// sequence strictly increasing per group.
func (r *GroupMessageRepo) CreateGroupMessage(ctx context.Context, groupID int, senderID int, content string) (models.GroupMessage, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.GroupMessage{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var seq int64
	if err = tx.GetContext(ctx, &seq, `UPDATE groups SET last_seq = last_seq + 1 WHERE id=$1 RETURNING last_seq`, groupID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrGroupNotFound
		}
		return models.GroupMessage{}, err
	}

	var msg models.GroupMessage
	if err = tx.QueryRowxContext(ctx, `INSERT INTO group_messages (group_id, sender_id, content, seq) VALUES ($1, $2, $3, $4) RETURNING id, group_id, sender_id, content, seq, created_at`, groupID, senderID, content, seq).
		Scan(&msg.ID, &msg.GroupID, &msg.SenderID, &msg.Content, &msg.Seq, &msg.CreatedAt); err != nil {
		return models.GroupMessage{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.GroupMessage{}, err
	}
	return msg, nil
}

// ListGroupMessages returns messages with seq > afterSeq in ascending
// sequence order. A non-positive limit returns everything.
func (r *GroupMessageRepo) ListGroupMessages(ctx context.Context, groupID int, afterSeq int64, limit int) ([]models.GroupMessage, error) {
	var msgs []models.GroupMessage
	var err error
	if limit > 0 {
		err = r.db.SelectContext(ctx, &msgs, `SELECT id, group_id, sender_id, content, seq, created_at FROM group_messages WHERE group_id=$1 AND seq > $2 ORDER BY seq ASC LIMIT $3`, groupID, afterSeq, limit)
	} else {
		err = r.db.SelectContext(ctx, &msgs, `SELECT id, group_id, sender_id, content, seq, created_at FROM group_messages WHERE group_id=$1 AND seq > $2 ORDER BY seq ASC`, groupID, afterSeq)
	}
	return msgs, err
}

// GetGroupMessage fetches a single message.
func (r *GroupMessageRepo) GetGroupMessage(ctx context.Context, messageID int) (models.GroupMessage, error) {
	var msg models.GroupMessage
	err := r.db.GetContext(ctx, &msg, `SELECT id, group_id, sender_id, content, seq, created_at FROM group_messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.GroupMessage{}, ErrMessageNotFound
	}
	return msg, err
}
