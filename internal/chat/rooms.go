package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"groupchat-service/internal/hub"
	"groupchat-service/internal/logging"
	"groupchat-service/internal/models"
	"groupchat-service/internal/repositories"
	"groupchat-service/internal/telemetry"
)

const removedFromGroupMessage = "You have been removed from this group"

// RoomManager owns durable membership and the session joins built on it.
type RoomManager struct {
	groups   repositories.GroupRepository
	hub      *hub.Hub
	presence *hub.Tracker
	typing   *Typing
	audit    *telemetry.AuditEmitter
	locks    *roomLocks
}

// Join subscribes a registered connection to a room its user belongs to and
// sends it the current presence snapshot.
func (m *RoomManager) Join(ctx context.Context, conn hub.Conn, roomID int) error {
	userID, ok := m.hub.UserOf(conn.ID())
	if !ok {
		return ErrNotConnected
	}

	unlock := m.locks.lock(roomID)
	err := m.requireMember(ctx, roomID, userID)
	if err == nil {
		err = m.hub.Join(conn.ID(), roomID)
	}
	unlock()

	if errors.Is(err, hub.ErrNotRegistered) {
		return ErrNotConnected
	}
	if err != nil {
		return err
	}

	if m.presence != nil {
		m.hub.SendTo([]hub.Conn{conn}, m.presence.SnapshotEvent())
	}
	logging.Ctx(ctx).Debug().Str(logging.FieldConnID, conn.ID()).Int(logging.FieldGroupID, roomID).Msg("session joined")
	return nil
}

// LeaveSession stops delivery to the connection. Membership is untouched.
func (m *RoomManager) LeaveSession(connID string, roomID int) {
	m.hub.Leave(connID, roomID)
}

func (m *RoomManager) CreateGroup(ctx context.Context, creatorID int, name string, memberIDs []int) (models.Group, []int, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Group{}, nil, ErrEmptyName
	}
	for _, id := range memberIDs {
		if id <= 0 {
			return models.Group{}, nil, fmt.Errorf("member %d: %w", id, ErrInvalidUserID)
		}
	}

	group, members, err := m.groups.CreateGroup(ctx, creatorID, name, memberIDs)
	if err != nil {
		return models.Group{}, nil, fmt.Errorf("create group: %w", translate(err))
	}

	ev := hub.Event{Type: models.EventMembersAdded, Data: models.MembersAddedPayload{GroupID: group.ID, UserIDs: members}}
	var lists [][]hub.Conn
	for _, id := range members {
		lists = append(lists, m.hub.ConnectionsFor(id))
	}
	m.hub.SendTo(hub.Unique(lists...), ev)

	m.audit.Emit(ctx, "INFO", fmt.Sprintf("group %q created with %d members", group.Name, len(members)), group.ID, creatorID)
	return group, members, nil
}

func (m *RoomManager) ListGroups(ctx context.Context, userID int) ([]models.Group, error) {
	groups, err := m.groups.ListGroupsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	return groups, nil
}

// Members lists the room's members to one of them.
func (m *RoomManager) Members(ctx context.Context, roomID int, requesterID int) ([]models.Member, error) {
	if err := m.requireMember(ctx, roomID, requesterID); err != nil {
		return nil, err
	}
	members, err := m.groups.ListMembers(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return members, nil
}

// AddMember lets the creator add a user. The new member's own connections
// and the room are told.
func (m *RoomManager) AddMember(ctx context.Context, actingID int, roomID int, targetID int) (models.Member, error) {
	unlock := m.locks.lock(roomID)
	defer unlock()

	if err := m.requireCreator(ctx, roomID, actingID); err != nil {
		return models.Member{}, err
	}

	member, err := m.groups.AddMember(ctx, roomID, targetID)
	if err != nil {
		return models.Member{}, translate(err)
	}

	ev := hub.Event{Type: models.EventMembersAdded, Data: models.MembersAddedPayload{GroupID: roomID, UserIDs: []int{targetID}}}
	m.hub.SendTo(hub.Unique(m.hub.ConnectionsFor(targetID), m.hub.RoomConnections(roomID)), ev)

	m.audit.Emit(ctx, "INFO", fmt.Sprintf("user %d added", targetID), roomID, actingID)
	return member, nil
}

// RemoveMember lets the creator evict a member.
func (m *RoomManager) RemoveMember(ctx context.Context, actingID int, roomID int, targetID int) (models.LeaveResult, error) {
	unlock := m.locks.lock(roomID)
	defer unlock()

	if err := m.requireCreator(ctx, roomID, actingID); err != nil {
		return models.LeaveResult{}, err
	}

	result, err := m.groups.RemoveMember(ctx, roomID, targetID)
	if err != nil {
		return models.LeaveResult{}, translate(err)
	}

	m.detach(targetID, roomID)
	m.hub.BroadcastToRoom(roomID, hub.Event{Type: models.EventMemberLeft, Data: models.MemberLeftPayload{
		GroupID:      roomID,
		UserID:       targetID,
		NewCreatorID: result.NewCreatorID,
	}}, 0)
	m.hub.SendToUser(targetID, hub.Event{Type: models.EventRemovedFromGroup, Data: models.RemovedFromGroupPayload{
		GroupID: roomID,
		Message: removedFromGroupMessage,
	}})

	m.audit.Emit(ctx, "INFO", fmt.Sprintf("user %d removed", targetID), roomID, actingID)
	return result, nil
}

// Leave removes the caller from the room. Any member may leave, the creator
// included; ownership then passes to the longest-standing member.
func (m *RoomManager) Leave(ctx context.Context, userID int, roomID int, userName, lastName string) (models.LeaveResult, error) {
	unlock := m.locks.lock(roomID)
	defer unlock()

	result, err := m.groups.RemoveMember(ctx, roomID, userID)
	if err != nil {
		return models.LeaveResult{}, translate(err)
	}

	m.detach(userID, roomID)
	ev := hub.Event{Type: models.EventMemberLeft, Data: models.MemberLeftPayload{
		GroupID:      roomID,
		UserID:       userID,
		UserName:     userName,
		LastName:     lastName,
		NewCreatorID: result.NewCreatorID,
	}}
	m.hub.SendTo(hub.Unique(m.hub.RoomConnections(roomID), m.hub.ConnectionsFor(userID)), ev)

	text := fmt.Sprintf("user %d left", userID)
	if result.NewCreatorID != 0 {
		text = fmt.Sprintf("%s, ownership moved to user %d", text, result.NewCreatorID)
	}
	if result.Empty {
		text += ", group is now empty"
	}
	m.audit.Emit(ctx, "INFO", text, roomID, userID)
	return result, nil
}

// detach revokes the user's session joins and any typing indicator left
// behind in the room.
func (m *RoomManager) detach(userID int, roomID int) {
	m.hub.RevokeUser(userID, roomID)
	m.typing.StopTyping(userID, "", roomID)
}

func (m *RoomManager) requireMember(ctx context.Context, roomID int, userID int) error {
	if _, err := m.groups.GetGroup(ctx, roomID); err != nil {
		return translate(err)
	}
	ok, err := m.groups.IsMember(ctx, roomID, userID)
	if err != nil {
		return fmt.Errorf("check membership: %w", err)
	}
	if !ok {
		return ErrNotAMember
	}
	return nil
}

func (m *RoomManager) requireCreator(ctx context.Context, roomID int, userID int) error {
	group, err := m.groups.GetGroup(ctx, roomID)
	if err != nil {
		return translate(err)
	}
	if group.CreatorID != userID {
		return ErrForbidden
	}
	return nil
}
