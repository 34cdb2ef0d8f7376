package hub

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHubRegisterAndUnregister(t *testing.T) {
	h := NewHub()
	c1, c2 := newFakeConn("c1"), newFakeConn("c2")

	h.Register(c1, 1)
	h.Register(c2, 1)
	require.Equal(t, 2, h.ConnectionCount(1))
	require.True(t, h.Online(1))

	userID, ok := h.Unregister("c1")
	require.True(t, ok)
	require.Equal(t, 1, userID)
	require.True(t, h.Online(1))

	h.Unregister("c2")
	require.False(t, h.Online(1))
	require.Empty(t, h.ConnectionsFor(1))
}

func TestHubUnregisterUnknownIsNoop(t *testing.T) {
	h := NewHub()
	_, ok := h.Unregister("missing")
	require.False(t, ok)
}

func TestHubRegisterTwiceDoesNotDuplicate(t *testing.T) {
	h := NewHub()
	c := newFakeConn("c1")

	h.Register(c, 1)
	require.NoError(t, h.Join("c1", 10))
	h.Register(c, 1)

	require.Equal(t, 1, h.ConnectionCount(1))
	require.True(t, h.IsJoined("c1", 10))
}

func TestHubRegisterRebindsToNewUser(t *testing.T) {
	h := NewHub()
	c := newFakeConn("c1")

	h.Register(c, 1)
	require.NoError(t, h.Join("c1", 10))
	h.Register(c, 2)

	require.False(t, h.Online(1))
	require.True(t, h.Online(2))
	require.False(t, h.IsJoined("c1", 10))
	uid, _ := h.UserOf("c1")
	require.Equal(t, 2, uid)
}

func TestHubJoinRequiresRegistration(t *testing.T) {
	h := NewHub()
	require.ErrorIs(t, h.Join("nobody", 1), ErrNotRegistered)
}

func TestHubUnregisterDetachesFromRooms(t *testing.T) {
	h := NewHub()
	c := newFakeConn("c1")
	h.Register(c, 1)
	require.NoError(t, h.Join("c1", 10))
	require.NoError(t, h.Join("c1", 11))
	require.ElementsMatch(t, []int{10, 11}, h.JoinedRooms("c1"))

	h.Unregister("c1")
	require.Empty(t, h.RoomConnections(10))
	require.Empty(t, h.RoomConnections(11))
	require.Empty(t, h.rooms)
}

func TestHubBroadcastExcludesUser(t *testing.T) {
	h := NewHub()
	a, b1, b2 := newFakeConn("a"), newFakeConn("b1"), newFakeConn("b2")
	h.Register(a, 1)
	h.Register(b1, 2)
	h.Register(b2, 2)
	for _, id := range []string{"a", "b1", "b2"} {
		require.NoError(t, h.Join(id, 10))
	}

	n := h.BroadcastToRoom(10, Event{Type: "userTyping"}, 2)
	require.Equal(t, 1, n)
	require.Len(t, a.Events(), 1)
	require.Empty(t, b1.Events())
	require.Empty(t, b2.Events())
}

func TestHubBroadcastDropsDeadConnection(t *testing.T) {
	h := NewHub()
	live, dead := newFakeConn("live"), newFakeConn("dead")
	dead.fail = true
	h.Register(live, 1)
	h.Register(dead, 2)
	require.NoError(t, h.Join("live", 10))
	require.NoError(t, h.Join("dead", 10))

	n := h.BroadcastToRoom(10, Event{Type: "newMessage"}, 0)
	require.Equal(t, 1, n)
	require.True(t, dead.closed)
	require.False(t, h.Online(2))
	require.False(t, h.IsJoined("dead", 10))
}

func TestHubRevokeUser(t *testing.T) {
	h := NewHub()
	b1, b2, a := newFakeConn("b1"), newFakeConn("b2"), newFakeConn("a")
	h.Register(b1, 2)
	h.Register(b2, 2)
	h.Register(a, 1)
	require.NoError(t, h.Join("b1", 10))
	require.NoError(t, h.Join("b1", 11))
	require.NoError(t, h.Join("a", 10))

	revoked := h.RevokeUser(2, 10)
	require.Len(t, revoked, 1)
	require.False(t, h.IsJoined("b1", 10))
	require.True(t, h.IsJoined("b1", 11))
	require.True(t, h.IsJoined("a", 10))
}

func TestHubCloseDisconnectsEveryone(t *testing.T) {
	h := NewHub()
	c := newFakeConn("c1")
	h.Register(c, 1)
	h.Close()
	require.True(t, c.closed)
	require.False(t, h.Online(1))
}

func TestUniqueKeepsFirstOccurrence(t *testing.T) {
	a, b := newFakeConn("a"), newFakeConn("b")
	out := Unique([]Conn{a, b}, []Conn{b, a})
	require.Len(t, out, 2)
	require.Equal(t, "a", out[0].ID())
}
