package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"groupchat-service/internal/hub"
	"groupchat-service/internal/models"
	"groupchat-service/internal/repositories"
)

func TestSubmitRejectsNonMember(t *testing.T) {
	f := newFixture(t)
	alice := f.connect("alice", 1, 10)
	f.groups.On("IsMember", mock.Anything, 10, 3).Return(false, nil).Once()

	_, err := f.svc.Messages.Submit(bg, 10, 3, "hello")
	require.ErrorIs(t, err, ErrNotAMember)
	require.Empty(t, alice.types())
	f.messages.AssertNotCalled(t, "CreateGroupMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmitRejectsBlankText(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Messages.Submit(bg, 10, 1, "  \n ")
	require.ErrorIs(t, err, ErrEmptyMessage)
	f.groups.AssertNotCalled(t, "IsMember", mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmitPersistFailureDeliversNothing(t *testing.T) {
	f := newFixture(t)
	alice := f.connect("alice", 1, 10)
	f.groups.On("IsMember", mock.Anything, 10, 1).Return(true, nil).Once()
	f.messages.On("CreateGroupMessage", mock.Anything, 10, 1, "hi").Return(nil, errors.New("db down")).Once()

	_, err := f.svc.Messages.Submit(bg, 10, 1, "hi")
	require.Error(t, err)
	require.Empty(t, alice.types())
	f.pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmitUnknownGroupIsNotFound(t *testing.T) {
	f := newFixture(t)
	f.groups.On("IsMember", mock.Anything, 10, 1).Return(true, nil).Once()
	f.messages.On("CreateGroupMessage", mock.Anything, 10, 1, "hi").Return(nil, repositories.ErrGroupNotFound).Once()

	_, err := f.svc.Messages.Submit(bg, 10, 1, "hi")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSubmitFansOutIncludingAuthor(t *testing.T) {
	f := newFixture(t)
	alice := f.connect("alice", 1, 10)
	bob := f.connect("bob", 2, 10)
	outsider := f.connect("carol", 3, 11)

	msg := models.GroupMessage{ID: 5, GroupID: 10, SenderID: 1, Content: "hi", Seq: 1, CreatedAt: time.Now()}
	f.groups.On("IsMember", mock.Anything, 10, 1).Return(true, nil).Once()
	f.messages.On("CreateGroupMessage", mock.Anything, 10, 1, "hi").Return(msg, nil).Once()
	f.pub.On("Publish", mock.Anything, RoutingKeyMessageCreated, mock.MatchedBy(func(ev MessageCreated) bool {
		return ev.Message.ID == 5 && ev.EventType == RoutingKeyMessageCreated
	}), mock.Anything).Return(nil).Once()

	got, err := f.svc.Messages.Submit(bg, 10, 1, "hi")
	require.NoError(t, err)
	require.Equal(t, msg, got)

	require.Equal(t, []string{models.EventNewMessage}, alice.types())
	require.Equal(t, []string{models.EventNewMessage}, bob.types())
	require.Equal(t, msg, bob.last().Data)
	require.Empty(t, outsider.types())
	f.pub.AssertExpectations(t)
}

func TestSubmitPublishFailureDoesNotFail(t *testing.T) {
	f := newFixture(t)
	f.connect("alice", 1, 10)
	f.groups.On("IsMember", mock.Anything, 10, 1).Return(true, nil).Once()
	f.messages.On("CreateGroupMessage", mock.Anything, 10, 1, "hi").Return(models.GroupMessage{ID: 1, GroupID: 10, SenderID: 1, Seq: 1}, nil).Once()
	f.pub.On("Publish", mock.Anything, RoutingKeyMessageCreated, mock.Anything, mock.Anything).Return(errors.New("broker gone")).Once()

	_, err := f.svc.Messages.Submit(bg, 10, 1, "hi")
	require.NoError(t, err)
}

func TestSubmitStopsAuthorTypingBeforeMessage(t *testing.T) {
	f := newFixture(t)
	alice := f.connect("alice", 1, 10)
	bob := f.connect("bob", 2, 10)

	f.svc.Typing.StartTyping(2, "Bob", 10)
	f.groups.On("IsMember", mock.Anything, 10, 2).Return(true, nil).Once()
	f.messages.On("CreateGroupMessage", mock.Anything, 10, 2, "text").Return(models.GroupMessage{ID: 9, GroupID: 10, SenderID: 2, Seq: 3}, nil).Once()
	f.pub.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	_, err := f.svc.Messages.Submit(bg, 10, 2, "text")
	require.NoError(t, err)

	require.Equal(t, []string{models.EventUserTyping, models.EventUserStoppedTyping, models.EventNewMessage}, alice.types())
	require.Equal(t, []string{models.EventNewMessage}, bob.types())
	require.False(t, f.svc.Typing.IsTyping(2, 10))
}

// seqStore hands out per-room sequence numbers like the SQL repository does.
type seqStore struct {
	mu   sync.Mutex
	next map[int]int64
}

func (s *seqStore) CreateGroupMessage(_ context.Context, groupID int, senderID int, content string) (models.GroupMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next[groupID]++
	seq := s.next[groupID]
	return models.GroupMessage{ID: int(seq), GroupID: groupID, SenderID: senderID, Content: content, Seq: seq}, nil
}

func (s *seqStore) ListGroupMessages(context.Context, int, int64, int) ([]models.GroupMessage, error) {
	return nil, nil
}

func (s *seqStore) GetGroupMessage(context.Context, int) (models.GroupMessage, error) {
	return models.GroupMessage{}, repositories.ErrMessageNotFound
}

func TestSubmitPreservesPerRoomOrderUnderConcurrency(t *testing.T) {
	f := newFixture(t)
	f.svc.Messages.messages = &seqStore{next: map[int]int64{}}
	f.svc.Messages.publisher = nil
	f.groups.On("IsMember", mock.Anything, 10, mock.Anything).Return(true, nil)

	watchers := []*recConn{f.connect("w1", 50, 10), f.connect("w2", 51, 10)}

	var wg sync.WaitGroup
	for author := 1; author <= 8; author++ {
		wg.Add(1)
		go func(author int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				_, err := f.svc.Messages.Submit(bg, 10, author, "m")
				assert.NoError(t, err)
			}
		}(author)
	}
	wg.Wait()

	for _, w := range watchers {
		w.mu.Lock()
		var last int64
		for _, ev := range w.events {
			msg := ev.Data.(models.GroupMessage)
			require.Greater(t, msg.Seq, last)
			last = msg.Seq
		}
		require.Len(t, w.events, 200)
		w.mu.Unlock()
	}
}

func TestSubmitSlowConsumerIsDropped(t *testing.T) {
	f := newFixture(t)
	alice := f.connect("alice", 1, 10)
	dead := &deadConn{id: "dead"}
	f.hub.Register(dead, 2)
	require.NoError(t, f.hub.Join("dead", 10))

	f.groups.On("IsMember", mock.Anything, 10, 1).Return(true, nil).Once()
	f.messages.On("CreateGroupMessage", mock.Anything, 10, 1, "hi").Return(models.GroupMessage{ID: 1, GroupID: 10, SenderID: 1, Seq: 1}, nil).Once()
	f.pub.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	_, err := f.svc.Messages.Submit(bg, 10, 1, "hi")
	require.NoError(t, err)
	require.Equal(t, []string{models.EventNewMessage}, alice.types())
	require.False(t, f.hub.Online(2))
	require.True(t, dead.closed)
}

type deadConn struct {
	id     string
	closed bool
}

func (d *deadConn) ID() string           { return d.id }
func (d *deadConn) Send(hub.Event) error { return hub.ErrConnectionLost }
func (d *deadConn) Close()               { d.closed = true }

func TestHistoryRequiresMembership(t *testing.T) {
	f := newFixture(t)
	f.groups.On("IsMember", mock.Anything, 10, 3).Return(false, nil).Once()
	_, err := f.svc.Messages.History(bg, 10, 3, 0, 0)
	require.ErrorIs(t, err, ErrNotAMember)

	msgs := []models.GroupMessage{{ID: 1, Seq: 1}, {ID: 2, Seq: 2}}
	f.groups.On("IsMember", mock.Anything, 10, 1).Return(true, nil).Once()
	f.messages.On("ListGroupMessages", mock.Anything, 10, int64(0), 0).Return(msgs, nil).Once()
	got, err := f.svc.Messages.History(bg, 10, 1, 0, 0)
	require.NoError(t, err)
	require.Equal(t, msgs, got)

	f.groups.On("IsMember", mock.Anything, 10, 1).Return(true, nil).Once()
	f.messages.On("ListGroupMessages", mock.Anything, 10, int64(2), 50).Return(nil, nil).Once()
	got, err = f.svc.Messages.History(bg, 10, 1, 2, 50)
	require.NoError(t, err)
	require.Empty(t, got)
	require.NotNil(t, got)
}
