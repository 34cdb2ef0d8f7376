package hub

import "groupchat-service/internal/observability"

// Register binds conn to userID. Registering the same handle again replaces
// the binding; if the user changes, the handle is first detached from the
// previous user and from every room it had joined.
func (h *Hub) Register(conn Conn, userID int) {
	var changed []int

	h.mu.Lock()
	id := conn.ID()
	if b, ok := h.conns[id]; ok {
		if b.userID == userID {
			b.conn = conn
			h.users[userID][id] = conn
			for roomID := range b.rooms {
				h.rooms[roomID][id] = conn
			}
			h.mu.Unlock()
			return
		}
		if h.detachLocked(id) {
			changed = append(changed, b.userID)
		}
	}

	h.conns[id] = &binding{conn: conn, userID: userID, rooms: make(map[int]struct{})}
	set, ok := h.users[userID]
	if !ok {
		set = make(map[string]Conn)
		h.users[userID] = set
	}
	set[id] = conn
	if len(set) == 1 {
		changed = append(changed, userID)
	}
	online := len(h.users)
	h.mu.Unlock()

	observability.SetOnlineUsers(online)
	h.notify(changed...)
}

// Unregister removes the handle from its user and from every room. Unknown
// handles are ignored. It returns the user the handle was bound to.
func (h *Hub) Unregister(connID string) (int, bool) {
	h.mu.Lock()
	b, ok := h.conns[connID]
	if !ok {
		h.mu.Unlock()
		return 0, false
	}
	last := h.detachLocked(connID)
	online := len(h.users)
	h.mu.Unlock()

	observability.SetOnlineUsers(online)
	if last {
		h.notify(b.userID)
	}
	return b.userID, true
}

// detachLocked drops every reference to connID and reports whether it was
// the user's last connection.
func (h *Hub) detachLocked(connID string) bool {
	b, ok := h.conns[connID]
	if !ok {
		return false
	}
	for roomID := range b.rooms {
		if set, ok := h.rooms[roomID]; ok {
			delete(set, connID)
			if len(set) == 0 {
				delete(h.rooms, roomID)
			}
		}
	}
	delete(h.conns, connID)

	set := h.users[b.userID]
	delete(set, connID)
	if len(set) == 0 {
		delete(h.users, b.userID)
		return true
	}
	return false
}

// ConnectionsFor returns the live connections of userID.
func (h *Hub) ConnectionsFor(userID int) []Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return collect(h.users[userID])
}

// UserOf returns the user a handle is bound to.
func (h *Hub) UserOf(connID string) (int, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	b, ok := h.conns[connID]
	if !ok {
		return 0, false
	}
	return b.userID, true
}

// ConnectionCount returns how many live connections userID holds.
func (h *Hub) ConnectionCount(userID int) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID])
}

// Online reports whether userID holds at least one connection.
func (h *Hub) Online(userID int) bool {
	return h.ConnectionCount(userID) > 0
}

// OnlineUsers lists every user with at least one connection.
func (h *Hub) OnlineUsers() []int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]int, 0, len(h.users))
	for id := range h.users {
		ids = append(ids, id)
	}
	return ids
}

func collect(set map[string]Conn) []Conn {
	out := make([]Conn, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}
