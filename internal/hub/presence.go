package hub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"groupchat-service/internal/logging"
	"groupchat-service/internal/models"
	"groupchat-service/internal/observability"
)

// RoomLister resolves the rooms a user belongs to.
type RoomLister interface {
	ListGroupIDsForUser(ctx context.Context, userID int) ([]int, error)
}

// Mirror receives announced presence transitions for other services.
type Mirror interface {
	SetOnline(ctx context.Context, userID int, online bool) error
}

// DefaultPresenceRetry is how long Run waits before retrying transitions
// whose rooms could not be resolved.
const DefaultPresenceRetry = time.Second

// Tracker announces online/offline transitions. The hub only marks users as
// pending; the tracker compares the current connection count against what
// it last announced, so a burst of connects and disconnects collapses into
// at most one event per real state change.
type Tracker struct {
	hub    *Hub
	rooms  RoomLister
	mirror Mirror

	mu      sync.Mutex
	pending map[int]struct{}
	wake    chan struct{}

	flushMu   sync.Mutex
	announced map[int]bool

	retryDelay time.Duration
}

// NewTracker wires a tracker to the hub's connection counts.
func NewTracker(h *Hub, rooms RoomLister, mirror Mirror) *Tracker {
	t := &Tracker{
		hub:       h,
		rooms:     rooms,
		mirror:    mirror,
		pending:   make(map[int]struct{}),
		wake:      make(chan struct{}, 1),
		announced: make(map[int]bool),

		retryDelay: DefaultPresenceRetry,
	}
	h.SetPresenceObserver(t.notify)
	return t
}

func (t *Tracker) notify(userID int) {
	t.mu.Lock()
	t.pending[userID] = struct{}{}
	t.mu.Unlock()

	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// Run announces pending transitions until ctx is done. Users whose rooms
// could not be resolved are retried after retryDelay.
func (t *Tracker) Run(ctx context.Context) error {
	logging.L().Info().Msg("presence tracker started")
	var retry <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.wake:
		case <-retry:
		}
		retry = nil
		if err := t.Flush(ctx); err != nil {
			retry = time.After(t.retryDelay)
		}
	}
}

// Flush announces every pending transition now. A transition is only
// recorded as announced once it was delivered; failed users stay pending and
// the first error is returned.
func (t *Tracker) Flush(ctx context.Context) error {
	t.mu.Lock()
	pending := t.pending
	t.pending = make(map[int]struct{})
	t.mu.Unlock()

	t.flushMu.Lock()
	defer t.flushMu.Unlock()

	var failed []int
	var firstErr error
	for userID := range pending {
		online := t.hub.Online(userID)
		if t.announced[userID] == online {
			continue
		}
		if err := t.announce(ctx, userID, online); err != nil {
			logging.Ctx(ctx).Error().Err(err).Int(logging.FieldUserID, userID).Msg("presence: transition deferred")
			failed = append(failed, userID)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if online {
			t.announced[userID] = true
		} else {
			delete(t.announced, userID)
		}
	}

	if len(failed) > 0 {
		t.mu.Lock()
		for _, userID := range failed {
			t.pending[userID] = struct{}{}
		}
		t.mu.Unlock()
	}
	return firstErr
}

func (t *Tracker) announce(ctx context.Context, userID int, online bool) error {
	var lists [][]Conn
	if t.rooms != nil {
		roomIDs, err := t.rooms.ListGroupIDsForUser(ctx, userID)
		if err != nil {
			return fmt.Errorf("resolve rooms: %w", err)
		}
		for _, roomID := range roomIDs {
			lists = append(lists, t.hub.RoomConnections(roomID))
		}
	}

	logger := logging.Ctx(ctx)
	targets := Unique(lists...)
	ev := Event{Type: models.EventUserOnlineStatus, Data: models.OnlineStatusPayload{UserID: userID, IsOnline: online}}
	t.hub.SendTo(targets, ev)
	observability.IncPresenceTransition(online)

	if t.mirror != nil {
		if err := t.mirror.SetOnline(ctx, userID, online); err != nil {
			logger.Warn().Err(err).Int(logging.FieldUserID, userID).Msg("presence: mirror update failed")
		}
	}
	logger.Debug().Int(logging.FieldUserID, userID).Bool("online", online).Int("targets", len(targets)).Msg("presence transition")
	return nil
}

// Snapshot returns every online user.
func (t *Tracker) Snapshot() map[int]bool {
	ids := t.hub.OnlineUsers()
	out := make(map[int]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out
}

// IsOnline reports the current state for one user.
func (t *Tracker) IsOnline(userID int) bool {
	return t.hub.Online(userID)
}

// SnapshotEvent builds the onlineUsersList frame for a fresh subscriber.
func (t *Tracker) SnapshotEvent() Event {
	return Event{Type: models.EventOnlineUsersList, Data: models.OnlineUsersPayload{Users: t.Snapshot()}}
}
