package hub

// Join subscribes a registered connection to a room's live events. The
// caller is responsible for the membership check.
func (h *Hub) Join(connID string, roomID int) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	b, ok := h.conns[connID]
	if !ok {
		return ErrNotRegistered
	}
	b.rooms[roomID] = struct{}{}
	set, ok := h.rooms[roomID]
	if !ok {
		set = make(map[string]Conn)
		h.rooms[roomID] = set
	}
	set[connID] = b.conn
	return nil
}

// Leave stops delivery of a room's events to one connection.
func (h *Hub) Leave(connID string, roomID int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(connID, roomID)
}

// RevokeUser removes every connection of userID from the room. Called
// whenever the user's membership row is deleted.
func (h *Hub) RevokeUser(userID int, roomID int) []Conn {
	h.mu.Lock()
	defer h.mu.Unlock()

	var revoked []Conn
	for connID, c := range h.users[userID] {
		if _, ok := h.rooms[roomID][connID]; ok {
			revoked = append(revoked, c)
		}
		h.leaveLocked(connID, roomID)
	}
	return revoked
}

func (h *Hub) leaveLocked(connID string, roomID int) {
	if b, ok := h.conns[connID]; ok {
		delete(b.rooms, roomID)
	}
	if set, ok := h.rooms[roomID]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

// IsJoined reports whether the connection receives the room's events.
func (h *Hub) IsJoined(connID string, roomID int) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[roomID][connID]
	return ok
}

// RoomConnections returns the connections joined to roomID.
func (h *Hub) RoomConnections(roomID int) []Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return collect(h.rooms[roomID])
}

// JoinedRooms lists the rooms a connection is joined to.
func (h *Hub) JoinedRooms(connID string) []int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	b, ok := h.conns[connID]
	if !ok {
		return nil
	}
	ids := make([]int, 0, len(b.rooms))
	for id := range b.rooms {
		ids = append(ids, id)
	}
	return ids
}
