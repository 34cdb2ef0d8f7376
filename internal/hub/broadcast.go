package hub

import (
	"groupchat-service/internal/logging"
	"groupchat-service/internal/observability"
)

// BroadcastToRoom delivers ev to every connection joined to roomID except
// those owned by excludeUserID (0 excludes nobody). It returns the number of
// connections the event was queued for.
func (h *Hub) BroadcastToRoom(roomID int, ev Event, excludeUserID int) int {
	h.mu.RLock()
	targets := make([]Conn, 0, len(h.rooms[roomID]))
	for connID, c := range h.rooms[roomID] {
		if excludeUserID != 0 {
			if b, ok := h.conns[connID]; ok && b.userID == excludeUserID {
				continue
			}
		}
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	return h.SendTo(targets, ev)
}

// SendToUser delivers ev to every connection of userID.
func (h *Hub) SendToUser(userID int, ev Event) int {
	return h.SendTo(h.ConnectionsFor(userID), ev)
}

// SendTo delivers ev to each connection. A failed delivery drops the
// connection instead of surfacing an error to the broadcaster.
func (h *Hub) SendTo(conns []Conn, ev Event) int {
	delivered := 0
	for _, c := range conns {
		if err := c.Send(ev); err != nil {
			h.drop(c, ev, err)
			continue
		}
		delivered++
	}
	return delivered
}

func (h *Hub) drop(c Conn, ev Event, err error) {
	userID, _ := h.Unregister(c.ID())
	c.Close()
	observability.IncDeliveryDropped(ev.Type)
	logging.L().Warn().
		Err(err).
		Str(logging.FieldConnID, c.ID()).
		Int(logging.FieldUserID, userID).
		Str(logging.FieldEvent, ev.Type).
		Msg("dropping connection after failed delivery")
}

// Unique merges connection lists, keeping the first occurrence of each handle.
func Unique(lists ...[]Conn) []Conn {
	seen := make(map[string]struct{})
	var out []Conn
	for _, list := range lists {
		for _, c := range list {
			if _, ok := seen[c.ID()]; ok {
				continue
			}
			seen[c.ID()] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}
