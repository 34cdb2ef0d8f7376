package repositories

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"groupchat-service/internal/models"
)

// SeenRepository stores read receipts.
type SeenRepository interface {
	MarkSeen(ctx context.Context, messageID int, userID int, seenAt time.Time) (bool, error)
	LastSeenPerUser(ctx context.Context, groupID int) ([]models.LastSeen, error)
}

// SeenRepo is a sqlx-backed SeenRepository.
type SeenRepo struct {
	db *sqlx.DB
}

// NewSeenRepo constructs a SeenRepo.
func NewSeenRepo(db *sqlx.DB) *SeenRepo {
	return &SeenRepo{db: db}
}

// MarkSeen upserts the (message, user) record and reports whether it was
// new. Repeated calls keep the newest seen_at and never move it back.
func (r *SeenRepo) MarkSeen(ctx context.Context, messageID int, userID int, seenAt time.Time) (bool, error) {
	var inserted bool
	err := r.db.GetContext(ctx, &inserted, `INSERT INTO message_seen (message_id, user_id, seen_at) VALUES ($1, $2, $3)
        ON CONFLICT (message_id, user_id) DO UPDATE SET seen_at = GREATEST(message_seen.seen_at, EXCLUDED.seen_at)
        RETURNING (xmax = 0)`, messageID, userID, seenAt)
	return inserted, err
}

// LastSeenPerUser returns, per user, the seen message with the highest
// sequence number in the group.
func (r *SeenRepo) LastSeenPerUser(ctx context.Context, groupID int) ([]models.LastSeen, error) {
	var rows []models.LastSeen
	err := r.db.SelectContext(ctx, &rows, `SELECT DISTINCT ON (s.user_id) s.user_id, s.message_id, m.seq, s.seen_at
        FROM message_seen s INNER JOIN group_messages m ON m.id = s.message_id
        WHERE m.group_id=$1
        ORDER BY s.user_id, m.seq DESC`, groupID)
	return rows, err
}
