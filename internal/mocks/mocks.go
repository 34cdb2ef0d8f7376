package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"groupchat-service/internal/models"
	"groupchat-service/internal/repositories"
)

type GroupRepositoryMock struct {
	mock.Mock
}

func (m *GroupRepositoryMock) CreateGroup(ctx context.Context, creatorID int, name string, memberIDs []int) (models.Group, []int, error) {
	args := m.Called(ctx, creatorID, name, memberIDs)
	var group models.Group
	if val := args.Get(0); val != nil {
		group = val.(models.Group)
	}
	var members []int
	if val := args.Get(1); val != nil {
		members = val.([]int)
	}
	return group, members, args.Error(2)
}

func (m *GroupRepositoryMock) ListGroupsForUser(ctx context.Context, userID int) ([]models.Group, error) {
	args := m.Called(ctx, userID)
	var groups []models.Group
	if val := args.Get(0); val != nil {
		groups = val.([]models.Group)
	}
	return groups, args.Error(1)
}

func (m *GroupRepositoryMock) ListGroupIDsForUser(ctx context.Context, userID int) ([]int, error) {
	args := m.Called(ctx, userID)
	var ids []int
	if val := args.Get(0); val != nil {
		ids = val.([]int)
	}
	return ids, args.Error(1)
}

func (m *GroupRepositoryMock) IsMember(ctx context.Context, groupID int, userID int) (bool, error) {
	args := m.Called(ctx, groupID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *GroupRepositoryMock) GetGroup(ctx context.Context, groupID int) (models.Group, error) {
	args := m.Called(ctx, groupID)
	var group models.Group
	if val := args.Get(0); val != nil {
		group = val.(models.Group)
	}
	return group, args.Error(1)
}

func (m *GroupRepositoryMock) ListMembers(ctx context.Context, groupID int) ([]models.Member, error) {
	args := m.Called(ctx, groupID)
	var members []models.Member
	if val := args.Get(0); val != nil {
		members = val.([]models.Member)
	}
	return members, args.Error(1)
}

func (m *GroupRepositoryMock) AddMember(ctx context.Context, groupID int, userID int) (models.Member, error) {
	args := m.Called(ctx, groupID, userID)
	var member models.Member
	if val := args.Get(0); val != nil {
		member = val.(models.Member)
	}
	return member, args.Error(1)
}

func (m *GroupRepositoryMock) RemoveMember(ctx context.Context, groupID int, userID int) (models.LeaveResult, error) {
	args := m.Called(ctx, groupID, userID)
	var result models.LeaveResult
	if val := args.Get(0); val != nil {
		result = val.(models.LeaveResult)
	}
	return result, args.Error(1)
}

type GroupMessageRepositoryMock struct {
	mock.Mock
}

func (m *GroupMessageRepositoryMock) CreateGroupMessage(ctx context.Context, groupID int, senderID int, content string) (models.GroupMessage, error) {
	args := m.Called(ctx, groupID, senderID, content)
	var msg models.GroupMessage
	if val := args.Get(0); val != nil {
		msg = val.(models.GroupMessage)
	}
	return msg, args.Error(1)
}

func (m *GroupMessageRepositoryMock) ListGroupMessages(ctx context.Context, groupID int, afterSeq int64, limit int) ([]models.GroupMessage, error) {
	args := m.Called(ctx, groupID, afterSeq, limit)
	var msgs []models.GroupMessage
	if val := args.Get(0); val != nil {
		msgs = val.([]models.GroupMessage)
	}
	return msgs, args.Error(1)
}

func (m *GroupMessageRepositoryMock) GetGroupMessage(ctx context.Context, messageID int) (models.GroupMessage, error) {
	args := m.Called(ctx, messageID)
	var msg models.GroupMessage
	if val := args.Get(0); val != nil {
		msg = val.(models.GroupMessage)
	}
	return msg, args.Error(1)
}

type SeenRepositoryMock struct {
	mock.Mock
}

func (m *SeenRepositoryMock) MarkSeen(ctx context.Context, messageID int, userID int, seenAt time.Time) (bool, error) {
	args := m.Called(ctx, messageID, userID, seenAt)
	return args.Bool(0), args.Error(1)
}

func (m *SeenRepositoryMock) LastSeenPerUser(ctx context.Context, groupID int) ([]models.LastSeen, error) {
	args := m.Called(ctx, groupID)
	var rows []models.LastSeen
	if val := args.Get(0); val != nil {
		rows = val.([]models.LastSeen)
	}
	return rows, args.Error(1)
}

// PublisherMock satisfies the broker publisher used for domain and audit events.
type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error {
	args := m.Called(ctx, routingKey, event, headers)
	return args.Error(0)
}

func (m *PublisherMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

var (
	_ repositories.GroupRepository        = (*GroupRepositoryMock)(nil)
	_ repositories.GroupMessageRepository = (*GroupMessageRepositoryMock)(nil)
	_ repositories.SeenRepository         = (*SeenRepositoryMock)(nil)
)
