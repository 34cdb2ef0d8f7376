package repositories

import (
	"context"
	"database/sql"
	"errors"
	"sort"

	"github.com/jmoiron/sqlx"

	"groupchat-service/internal/models"
)

var (
	ErrGroupNotFound = errors.New("group not found")
	ErrAlreadyMember = errors.New("user is already a member")
	ErrNotMember     = errors.New("user is not a member")
)

// GroupRepository abstracts group and membership persistence.
type GroupRepository interface {
	CreateGroup(ctx context.Context, creatorID int, name string, memberIDs []int) (models.Group, []int, error)
	ListGroupsForUser(ctx context.Context, userID int) ([]models.Group, error)
	ListGroupIDsForUser(ctx context.Context, userID int) ([]int, error)
	IsMember(ctx context.Context, groupID int, userID int) (bool, error)
	GetGroup(ctx context.Context, groupID int) (models.Group, error)
	ListMembers(ctx context.Context, groupID int) ([]models.Member, error)
	AddMember(ctx context.Context, groupID int, userID int) (models.Member, error)
	RemoveMember(ctx context.Context, groupID int, userID int) (models.LeaveResult, error)
}

// GroupRepo is a sqlx implementation of GroupRepository.
type GroupRepo struct {
	db *sqlx.DB
}

// NewGroupRepo constructs a GroupRepo.
func NewGroupRepo(db *sqlx.DB) *GroupRepo {
	return &GroupRepo{db: db}
}

// CreateGroup creates a group and its members atomically. The creator is
// always a member; the returned ids are deduplicated and sorted.
func (r *GroupRepo) CreateGroup(ctx context.Context, creatorID int, name string, memberIDs []int) (models.Group, []int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Group{}, nil, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var group models.Group
	if err = tx.QueryRowxContext(ctx, `INSERT INTO groups (name, creator_id) VALUES ($1, $2) RETURNING id, name, creator_id, created_at`, name, creatorID).
		Scan(&group.ID, &group.Name, &group.CreatorID, &group.CreatedAt); err != nil {
		return models.Group{}, nil, err
	}

	ids := uniqueSorted(append([]int{creatorID}, memberIDs...))
	for _, id := range ids {
		if _, err = tx.ExecContext(ctx, `INSERT INTO group_members (group_id, user_id) VALUES ($1, $2)`, group.ID, id); err != nil {
			return models.Group{}, nil, err
		}
	}

	if err = tx.Commit(); err != nil {
		return models.Group{}, nil, err
	}
	return group, ids, nil
}

// ListGroupsForUser returns groups that include the user.
func (r *GroupRepo) ListGroupsForUser(ctx context.Context, userID int) ([]models.Group, error) {
	var groups []models.Group
	err := r.db.SelectContext(ctx, &groups, `SELECT g.id, g.name, g.creator_id, g.created_at FROM groups g INNER JOIN group_members gm ON gm.group_id = g.id WHERE gm.user_id=$1 ORDER BY g.created_at DESC`, userID)
	return groups, err
}

// ListGroupIDsForUser returns only the ids of the user's groups.
func (r *GroupRepo) ListGroupIDsForUser(ctx context.Context, userID int) ([]int, error) {
	var ids []int
	err := r.db.SelectContext(ctx, &ids, `SELECT group_id FROM group_members WHERE user_id=$1`, userID)
	return ids, err
}

// IsMember checks membership.
func (r *GroupRepo) IsMember(ctx context.Context, groupID int, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM group_members WHERE group_id=$1 AND user_id=$2)`, groupID, userID)
	return exists, err
}

// GetGroup fetches a single group.
func (r *GroupRepo) GetGroup(ctx context.Context, groupID int) (models.Group, error) {
	var group models.Group
	err := r.db.GetContext(ctx, &group, `SELECT id, name, creator_id, created_at FROM groups WHERE id=$1`, groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Group{}, ErrGroupNotFound
	}
	return group, err
}

// ListMembers returns members in join order.
func (r *GroupRepo) ListMembers(ctx context.Context, groupID int) ([]models.Member, error) {
	var members []models.Member
	err := r.db.SelectContext(ctx, &members, `SELECT group_id, user_id, joined_at FROM group_members WHERE group_id=$1 ORDER BY joined_at ASC, user_id ASC`, groupID)
	return members, err
}

// AddMember inserts a membership row; ErrAlreadyMember if it exists.
func (r *GroupRepo) AddMember(ctx context.Context, groupID int, userID int) (models.Member, error) {
	var member models.Member
	err := r.db.QueryRowxContext(ctx, `INSERT INTO group_members (group_id, user_id) VALUES ($1, $2) ON CONFLICT (group_id, user_id) DO NOTHING RETURNING group_id, user_id, joined_at`, groupID, userID).
		Scan(&member.GroupID, &member.UserID, &member.JoinedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Member{}, ErrAlreadyMember
	}
	return member, err
}

// RemoveMember hard-deletes a membership row. When the creator leaves,
// ownership moves to the longest-standing remaining member.
func (r *GroupRepo) RemoveMember(ctx context.Context, groupID int, userID int) (models.LeaveResult, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.LeaveResult{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var creatorID int
	if err = tx.GetContext(ctx, &creatorID, `SELECT creator_id FROM groups WHERE id=$1 FOR UPDATE`, groupID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrGroupNotFound
		}
		return models.LeaveResult{}, err
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM group_members WHERE group_id=$1 AND user_id=$2`, groupID, userID)
	if err != nil {
		return models.LeaveResult{}, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return models.LeaveResult{}, err
	}
	if count == 0 {
		err = ErrNotMember
		return models.LeaveResult{}, err
	}

	var result models.LeaveResult
	if creatorID == userID {
		var next int
		err = tx.GetContext(ctx, &next, `SELECT user_id FROM group_members WHERE group_id=$1 ORDER BY joined_at ASC, user_id ASC LIMIT 1`, groupID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			err = nil
			result.Empty = true
		case err != nil:
			return models.LeaveResult{}, err
		default:
			if _, err = tx.ExecContext(ctx, `UPDATE groups SET creator_id=$1 WHERE id=$2`, next, groupID); err != nil {
				return models.LeaveResult{}, err
			}
			result.NewCreatorID = next
		}
	}

	if err = tx.Commit(); err != nil {
		return models.LeaveResult{}, err
	}
	return result, nil
}

func uniqueSorted(ids []int) []int {
	set := make(map[int]struct{}, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if _, ok := set[id]; ok {
			continue
		}
		set[id] = struct{}{}
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}
