package repositories

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })
	return sqlx.NewDb(raw, "postgres"), mock
}

func TestCreateGroupDedupesMembers(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGroupRepo(db)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO groups (name, creator_id)`)).
		WithArgs("team", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "creator_id", "created_at"}).AddRow(5, "team", 1, now))
	for _, id := range []int{1, 2, 3} {
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO group_members (group_id, user_id)`)).
			WithArgs(5, id).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	group, ids, err := repo.CreateGroup(context.Background(), 1, "team", []int{3, 2, 1, 3})
	require.NoError(t, err)
	require.Equal(t, 5, group.ID)
	require.Equal(t, []int{1, 2, 3}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetGroupNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGroupRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, name, creator_id, created_at FROM groups WHERE id=$1`)).
		WithArgs(9).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetGroup(context.Background(), 9)
	require.ErrorIs(t, err, ErrGroupNotFound)
}

func TestAddMemberAlreadyMember(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGroupRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO group_members (group_id, user_id) VALUES ($1, $2) ON CONFLICT`)).
		WithArgs(4, 2).
		WillReturnRows(sqlmock.NewRows([]string{"group_id", "user_id", "joined_at"}))

	_, err := repo.AddMember(context.Background(), 4, 2)
	require.ErrorIs(t, err, ErrAlreadyMember)
}

func TestRemoveMemberTransfersOwnership(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGroupRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT creator_id FROM groups WHERE id=$1 FOR UPDATE`)).
		WithArgs(4).
		WillReturnRows(sqlmock.NewRows([]string{"creator_id"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM group_members WHERE group_id=$1 AND user_id=$2`)).
		WithArgs(4, 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT user_id FROM group_members WHERE group_id=$1 ORDER BY joined_at`)).
		WithArgs(4).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(2))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE groups SET creator_id=$1 WHERE id=$2`)).
		WithArgs(2, 4).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := repo.RemoveMember(context.Background(), 4, 1)
	require.NoError(t, err)
	require.Equal(t, 2, res.NewCreatorID)
	require.False(t, res.Empty)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRemoveMemberNotMemberRollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGroupRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT creator_id FROM groups`)).
		WithArgs(4).
		WillReturnRows(sqlmock.NewRows([]string{"creator_id"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM group_members`)).
		WithArgs(4, 3).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.RemoveMember(context.Background(), 4, 3)
	require.ErrorIs(t, err, ErrNotMember)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateGroupMessageAssignsSequence(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGroupMessageRepo(db)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE groups SET last_seq = last_seq + 1 WHERE id=$1 RETURNING last_seq`)).
		WithArgs(4).
		WillReturnRows(sqlmock.NewRows([]string{"last_seq"}).AddRow(int64(7)))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO group_messages (group_id, sender_id, content, seq)`)).
		WithArgs(4, 2, "hi", int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "group_id", "sender_id", "content", "seq", "created_at"}).AddRow(11, 4, 2, "hi", int64(7), now))
	mock.ExpectCommit()

	msg, err := repo.CreateGroupMessage(context.Background(), 4, 2, "hi")
	require.NoError(t, err)
	require.Equal(t, int64(7), msg.Seq)
	require.Equal(t, 11, msg.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateGroupMessageUnknownGroup(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGroupMessageRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE groups SET last_seq`)).
		WithArgs(4).
		WillReturnRows(sqlmock.NewRows([]string{"last_seq"}))
	mock.ExpectRollback()

	_, err := repo.CreateGroupMessage(context.Background(), 4, 2, "hi")
	require.ErrorIs(t, err, ErrGroupNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkSeenReportsInsert(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSeenRepo(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO message_seen (message_id, user_id, seen_at)`)).
		WithArgs(11, 2, now).
		WillReturnRows(sqlmock.NewRows([]string{"inserted"}).AddRow(true))

	inserted, err := repo.MarkSeen(context.Background(), 11, 2, now)
	require.NoError(t, err)
	require.True(t, inserted)
}

func TestLastSeenPerUser(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSeenRepo(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT DISTINCT ON (s.user_id)`)).
		WithArgs(4).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "message_id", "seq", "seen_at"}).
			AddRow(2, 12, int64(2), now))

	rows, err := repo.LastSeenPerUser(context.Background(), 4)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, 12, rows[0].MessageID)
	require.Equal(t, int64(2), rows[0].Seq)
}
