package hub

import (
	"sync"

	"groupchat-service/internal/logging"
	"groupchat-service/internal/observability"
)

// Hub owns every live connection, the user each one is bound to, and the
// rooms each one is session-joined to. All three views share one lock so a
// disconnect detaches a connection from presence accounting and from every
// room in a single step.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*binding
	users map[int]map[string]Conn
	rooms map[int]map[string]Conn

	observer func(userID int)
}

type binding struct {
	conn   Conn
	userID int
	rooms  map[int]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		conns: make(map[string]*binding),
		users: make(map[int]map[string]Conn),
		rooms: make(map[int]map[string]Conn),
	}
}

// SetPresenceObserver registers fn to be called, outside the hub lock,
// whenever a user's connection count may have crossed zero.
func (h *Hub) SetPresenceObserver(fn func(userID int)) {
	h.mu.Lock()
	h.observer = fn
	h.mu.Unlock()
}

func (h *Hub) notify(userIDs ...int) {
	h.mu.RLock()
	fn := h.observer
	h.mu.RUnlock()
	if fn == nil {
		return
	}
	for _, id := range userIDs {
		fn(id)
	}
}

// Close disconnects every connection. Used on shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]Conn, 0, len(h.conns))
	for _, b := range h.conns {
		conns = append(conns, b.conn)
	}
	h.conns = make(map[string]*binding)
	h.users = make(map[int]map[string]Conn)
	h.rooms = make(map[int]map[string]Conn)
	h.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
	observability.SetOnlineUsers(0)
	logging.L().Info().Int("connections", len(conns)).Msg("hub closed")
}
