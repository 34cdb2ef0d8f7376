package chat

import (
	"sort"
	"sync"
	"time"

	"groupchat-service/internal/hub"
	"groupchat-service/internal/models"
)

const DefaultTypingTimeout = 3 * time.Second

type typingKey struct {
	roomID int
	userID int
}

type typingEntry struct {
	userName  string
	startedAt time.Time
}

// Typing tracks who is typing where. Entries expire lazily: a stale entry
// reads as absent and is removed the next time anyone looks at it.
type Typing struct {
	hub     *hub.Hub
	timeout time.Duration
	now     func() time.Time

	mu      sync.Mutex
	entries map[typingKey]typingEntry
}

func NewTyping(h *hub.Hub, timeout time.Duration) *Typing {
	if timeout <= 0 {
		timeout = DefaultTypingTimeout
	}
	return &Typing{
		hub:     h,
		timeout: timeout,
		now:     time.Now,
		entries: make(map[typingKey]typingEntry),
	}
}

// StartTyping refreshes the entry and tells the rest of the room.
func (t *Typing) StartTyping(userID int, userName string, roomID int) {
	t.mu.Lock()
	t.entries[typingKey{roomID: roomID, userID: userID}] = typingEntry{userName: userName, startedAt: t.now()}
	t.mu.Unlock()

	t.hub.BroadcastToRoom(roomID, typingEvent(models.EventUserTyping, userID, userName, roomID), userID)
}

// StopTyping removes the entry and reports whether there was one to remove.
// Without an entry nothing is broadcast.
func (t *Typing) StopTyping(userID int, userName string, roomID int) bool {
	entry, ok := t.take(userID, roomID)
	if !ok {
		return false
	}
	if userName == "" {
		userName = entry.userName
	}
	t.hub.BroadcastToRoom(roomID, typingEvent(models.EventUserStoppedTyping, userID, userName, roomID), userID)
	return true
}

// IsTyping reports a live entry, dropping it if it has expired.
func (t *Typing) IsTyping(userID int, roomID int) bool {
	key := typingKey{roomID: roomID, userID: userID}
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.entries[key]
	if !ok {
		return false
	}
	if t.expired(entry) {
		delete(t.entries, key)
		return false
	}
	return true
}

// Typers lists the users with a live entry in the room, sorted by id.
func (t *Typing) Typers(roomID int) []int {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := []int{}
	for key, entry := range t.entries {
		if key.roomID != roomID {
			continue
		}
		if t.expired(entry) {
			delete(t.entries, key)
			continue
		}
		out = append(out, key.userID)
	}
	sort.Ints(out)
	return out
}

// take removes the entry whether or not it has expired.
func (t *Typing) take(userID int, roomID int) (typingEntry, bool) {
	key := typingKey{roomID: roomID, userID: userID}
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.entries[key]
	if ok {
		delete(t.entries, key)
	}
	return entry, ok
}

func (t *Typing) expired(entry typingEntry) bool {
	return t.now().Sub(entry.startedAt) >= t.timeout
}

func typingEvent(eventType string, userID int, userName string, roomID int) hub.Event {
	return hub.Event{Type: eventType, Data: models.TypingPayload{UserID: userID, UserName: userName, GroupID: roomID}}
}
