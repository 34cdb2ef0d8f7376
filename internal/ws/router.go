package ws

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"groupchat-service/internal/chat"
	"groupchat-service/internal/hub"
	"groupchat-service/internal/logging"
	"groupchat-service/internal/models"
	"groupchat-service/internal/observability"
)

var (
	errBadPayload   = errors.New("malformed payload")
	errUnknownEvent = errors.New("unknown event")
)

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Router turns inbound frames into calls on the chat services. Failures are
// answered on the originating connection only.
type Router struct {
	hub      *hub.Hub
	presence *hub.Tracker
	svc      *chat.Services
}

func NewRouter(h *hub.Hub, presence *hub.Tracker, svc *chat.Services) *Router {
	return &Router{hub: h, presence: presence, svc: svc}
}

// Handle processes one frame from conn.
func (r *Router) Handle(ctx context.Context, conn hub.Conn, raw []byte) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil || f.Type == "" {
		r.fail(ctx, conn, "", errBadPayload)
		return
	}

	err := r.dispatch(ctx, conn, f)
	if err != nil {
		r.fail(ctx, conn, f.Type, err)
		return
	}
	observability.IncWSEvent(f.Type, "ok")
}

func (r *Router) dispatch(ctx context.Context, conn hub.Conn, f frame) error {
	switch f.Type {
	case models.EventUserConnected:
		var p models.UserConnectedPayload
		if err := decode(f.Data, &p); err != nil {
			return err
		}
		if p.UserID <= 0 {
			return errBadPayload
		}
		r.hub.Register(conn, p.UserID)
		if r.presence != nil {
			r.hub.SendTo([]hub.Conn{conn}, r.presence.SnapshotEvent())
		}
		return nil

	case models.EventJoinRoom:
		roomID, err := parseRoomID(f.Data)
		if err != nil {
			return err
		}
		return r.svc.Rooms.Join(ctx, conn, roomID)

	case models.EventLeaveRoom:
		roomID, err := parseRoomID(f.Data)
		if err != nil {
			return err
		}
		if _, err := r.identify(conn, 0); err != nil {
			return err
		}
		r.svc.Rooms.LeaveSession(conn.ID(), roomID)
		return nil

	case models.EventSendMessage:
		var p models.SendMessagePayload
		if err := decode(f.Data, &p); err != nil {
			return err
		}
		userID, err := r.identify(conn, p.UserID)
		if err != nil {
			return err
		}
		_, err = r.svc.Messages.Submit(ctx, p.GroupID, userID, p.Text)
		return err

	case models.EventTyping, models.EventStoppedTyping:
		var p models.TypingPayload
		if err := decode(f.Data, &p); err != nil {
			return err
		}
		userID, err := r.identify(conn, p.UserID)
		if err != nil {
			return err
		}
		if f.Type == models.EventStoppedTyping {
			// Accepted after leaveRoom too; only an existing entry is cleared.
			r.svc.Typing.StopTyping(userID, p.UserName, p.GroupID)
			return nil
		}
		if !r.hub.IsJoined(conn.ID(), p.GroupID) {
			return chat.ErrNotAMember
		}
		r.svc.Typing.StartTyping(userID, p.UserName, p.GroupID)
		return nil

	case models.EventMessageRead:
		var p models.MessageReadPayload
		if err := decode(f.Data, &p); err != nil {
			return err
		}
		userID, err := r.identify(conn, p.UserID)
		if err != nil {
			return err
		}
		_, err = r.svc.Receipts.MarkSeen(ctx, userID, p.MessageID, p.GroupID)
		return err

	case models.EventRemoveMemberFromGroup:
		var p models.RemoveMemberPayload
		if err := decode(f.Data, &p); err != nil {
			return err
		}
		userID, err := r.identify(conn, p.AdminUserID)
		if err != nil {
			return err
		}
		_, err = r.svc.Rooms.RemoveMember(ctx, userID, p.GroupID, p.MemberToRemoveID)
		return err

	case models.EventLeaveGroup:
		var p models.LeaveGroupPayload
		if err := decode(f.Data, &p); err != nil {
			return err
		}
		userID, err := r.identify(conn, p.UserID)
		if err != nil {
			return err
		}
		_, err = r.svc.Rooms.Leave(ctx, userID, p.GroupID, p.UserName, p.LastName)
		return err

	default:
		return errUnknownEvent
	}
}

// identify returns the user the connection registered as. A claimed id in
// the payload must match it; zero means the payload did not carry one.
func (r *Router) identify(conn hub.Conn, claimed int) (int, error) {
	userID, ok := r.hub.UserOf(conn.ID())
	if !ok {
		return 0, chat.ErrNotConnected
	}
	if claimed != 0 && claimed != userID {
		return 0, chat.ErrForbidden
	}
	return userID, nil
}

func (r *Router) fail(ctx context.Context, conn hub.Conn, event string, err error) {
	code := ErrorCode(err)
	message := err.Error()
	if code == models.ErrCodeInternal {
		logging.Ctx(ctx).Error().Err(err).Str(logging.FieldEvent, event).Str(logging.FieldConnID, conn.ID()).Msg("websocket event failed")
		message = "internal error"
	}
	observability.IncWSEvent(event, code)

	r.hub.SendTo([]hub.Conn{conn}, hub.Event{Type: models.EventError, Data: models.ErrorPayload{
		Event:   event,
		Code:    code,
		Message: message,
	}})
}

// ErrorCode maps a service error to its wire code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, chat.ErrNotAMember):
		return models.ErrCodeNotAMember
	case errors.Is(err, chat.ErrForbidden):
		return models.ErrCodeForbidden
	case errors.Is(err, chat.ErrAlreadyMember):
		return models.ErrCodeAlreadyMember
	case errors.Is(err, chat.ErrNotFound):
		return models.ErrCodeNotFound
	case errors.Is(err, chat.ErrNotConnected):
		return models.ErrCodeNotConnected
	case errors.Is(err, errBadPayload), errors.Is(err, errUnknownEvent), chat.IsBadInput(err):
		return models.ErrCodeBadRequest
	default:
		return models.ErrCodeInternal
	}
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return errBadPayload
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errBadPayload
	}
	return nil
}

// parseRoomID accepts a bare id, a numeric string, or an object carrying
// groupId or roomId.
func parseRoomID(data json.RawMessage) (int, error) {
	if len(data) == 0 {
		return 0, errBadPayload
	}

	var id int
	if err := json.Unmarshal(data, &id); err == nil && id > 0 {
		return id, nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if id, err := strconv.Atoi(s); err == nil && id > 0 {
			return id, nil
		}
		return 0, errBadPayload
	}

	var obj struct {
		GroupID int `json:"groupId"`
		RoomID  int `json:"roomId"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		if obj.GroupID > 0 {
			return obj.GroupID, nil
		}
		if obj.RoomID > 0 {
			return obj.RoomID, nil
		}
	}
	return 0, errBadPayload
}
