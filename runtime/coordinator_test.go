package runtime

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"chat-broker/domain"
	"chat-broker/domain/event"
	apperrors "chat-broker/errors"
	"chat-broker/mocks"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func postedBodies(events []event.DomainEvent) []string {
	bodies := make([]string, 0, len(events))
	for _, e := range events {
		if posted, ok := e.(event.MessagePosted); ok {
			bodies = append(bodies, posted.Body)
		}
	}
	return bodies
}

func TestCoordinator_Join_Empty_Room_Announces_To_Joiner(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockIMessageStore(ctrl)
	registry := NewRegistry(discardLogger())
	coordinator := NewCoordinator(discardLogger(), registry, store)
	roomID := domain.RoomID("lobby")
	conn, sink := newTestConn("alice")

	// Given the room has no history
	store.EXPECT().History(gomock.Any(), roomID).Return(nil, nil)

	// When the connection joins
	coordinator.HandleJoin(context.Background(), conn, roomID)

	// Then membership is registered
	req.True(registry.IsMember(roomID, conn))

	// And the joiner receives exactly the join announcement
	events := sink.Events()
	req.Len(events, 1)
	posted, ok := events[0].(event.MessagePosted)
	req.True(ok)
	req.Equal(domain.SystemSender, posted.Sender)
	req.Equal("alice has joined the room.", posted.Body)
}

func TestCoordinator_Join_Replays_History_Before_Announcement(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockIMessageStore(ctrl)
	registry := NewRegistry(discardLogger())
	coordinator := NewCoordinator(discardLogger(), registry, store)
	roomID := domain.RoomID("lobby")
	conn, sink := newTestConn("bob")

	// Given two persisted messages, oldest first
	now := time.Now().UTC()
	history := []domain.Message{
		{ID: uuid.New(), Room: roomID, Sender: "alice", Body: "one", At: now.Add(-2 * time.Second)},
		{ID: uuid.New(), Room: roomID, Sender: "alice", Body: "two", At: now.Add(-time.Second)},
	}
	store.EXPECT().History(gomock.Any(), roomID).Return(history, nil)

	// When the connection joins
	coordinator.HandleJoin(context.Background(), conn, roomID)

	// Then the joiner sees the replay in order, announcement last
	req.Equal([]string{"one", "two", "bob has joined the room."}, postedBodies(sink.Events()))
}

func TestCoordinator_ReJoin_Replays_History_Again(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockIMessageStore(ctrl)
	registry := NewRegistry(discardLogger())
	coordinator := NewCoordinator(discardLogger(), registry, store)
	roomID := domain.RoomID("lobby")
	conn, sink := newTestConn("alice")

	history := []domain.Message{
		{ID: uuid.New(), Room: roomID, Sender: "bob", Body: "earlier", At: time.Now().UTC()},
	}
	store.EXPECT().History(gomock.Any(), roomID).Return(history, nil).Times(2)

	// When the same connection joins twice
	coordinator.HandleJoin(context.Background(), conn, roomID)
	coordinator.HandleJoin(context.Background(), conn, roomID)

	// Then membership stays single but replay and announcement both re-ran
	req.Len(registry.Members(roomID), 1)
	req.Equal([]string{
		"earlier", "alice has joined the room.",
		"earlier", "alice has joined the room.",
	}, postedBodies(sink.Events()))
}

func TestCoordinator_Join_Store_Failure_Delivers_History_Gap(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockIMessageStore(ctrl)
	registry := NewRegistry(discardLogger())
	coordinator := NewCoordinator(discardLogger(), registry, store)
	roomID := domain.RoomID("lobby")
	conn, sink := newTestConn("alice")

	// Given the store cannot serve history
	store.EXPECT().History(gomock.Any(), roomID).Return(nil, apperrors.ErrStoreUnavailable)

	// When the connection joins
	coordinator.HandleJoin(context.Background(), conn, roomID)

	// Then membership still succeeds
	req.True(registry.IsMember(roomID, conn))

	// And the joiner gets a gap notice followed by the announcement
	events := sink.Events()
	req.Len(events, 2)
	gap, ok := events[0].(event.HistoryGap)
	req.True(ok)
	req.Equal(roomID, gap.Room)
	posted, ok := events[1].(event.MessagePosted)
	req.True(ok)
	req.Equal("alice has joined the room.", posted.Body)
}

func TestCoordinator_Join_Without_Identity_Is_Silent(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockIMessageStore(ctrl)
	registry := NewRegistry(discardLogger())
	coordinator := NewCoordinator(discardLogger(), registry, store)
	roomID := domain.RoomID("lobby")
	conn, sink := newTestConn("")

	// When an unresolved connection joins
	coordinator.HandleJoin(context.Background(), conn, roomID)

	// Then nothing happens: no membership, no history read, no delivery
	req.False(registry.IsMember(roomID, conn))
	req.Empty(sink.Events())
}

func TestCoordinator_Leave_Announces_To_Remaining_Members_Only(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockIMessageStore(ctrl)
	registry := NewRegistry(discardLogger())
	coordinator := NewCoordinator(discardLogger(), registry, store)
	roomID := domain.RoomID("lobby")
	leaver, leaverSink := newTestConn("alice")
	stayer, stayerSink := newTestConn("bob")

	// Given both members joined an empty room
	store.EXPECT().History(gomock.Any(), roomID).Return(nil, nil).Times(2)
	coordinator.HandleJoin(context.Background(), leaver, roomID)
	coordinator.HandleJoin(context.Background(), stayer, roomID)
	leaverBefore := len(leaverSink.Events())

	// When one leaves
	coordinator.HandleLeave(context.Background(), leaver, roomID)

	// Then the leaver receives nothing further
	req.Len(leaverSink.Events(), leaverBefore)
	req.False(registry.IsMember(roomID, leaver))

	// And the remaining member sees the departure
	bodies := postedBodies(stayerSink.Events())
	req.Equal("alice has left the room.", bodies[len(bodies)-1])
}

func TestCoordinator_Leave_Without_Membership_Is_A_NoOp(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockIMessageStore(ctrl)
	registry := NewRegistry(discardLogger())
	coordinator := NewCoordinator(discardLogger(), registry, store)
	roomID := domain.RoomID("lobby")
	member, memberSink := newTestConn("bob")
	stranger, _ := newTestConn("mallory")

	// Given a room with one member
	store.EXPECT().History(gomock.Any(), roomID).Return(nil, nil)
	coordinator.HandleJoin(context.Background(), member, roomID)
	before := len(memberSink.Events())

	// When a connection that never joined leaves
	coordinator.HandleLeave(context.Background(), stranger, roomID)

	// Then no departure is announced
	req.Len(memberSink.Events(), before)
	req.True(registry.IsMember(roomID, member))
}

func TestCoordinator_Send_Persists_Then_Broadcasts(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockIMessageStore(ctrl)
	registry := NewRegistry(discardLogger())
	coordinator := NewCoordinator(discardLogger(), registry, store)
	roomID := domain.RoomID("lobby")
	sender, senderSink := newTestConn("alice")
	receiver, receiverSink := newTestConn("bob")

	// Given both connections joined
	store.EXPECT().History(gomock.Any(), roomID).Return(nil, nil).Times(2)
	coordinator.HandleJoin(context.Background(), sender, roomID)
	coordinator.HandleJoin(context.Background(), receiver, roomID)

	// And the store assigns the timestamp on append
	at := time.Now().UTC()
	persisted := domain.Message{ID: uuid.New(), Room: roomID, Sender: "alice", Body: "hello", At: at}
	store.EXPECT().Append(gomock.Any(), roomID, "alice", "hello").Return(persisted, nil)

	// When the message is sent
	err := coordinator.HandleSend(context.Background(), sender, roomID, "hello")
	req.NoError(err)

	// Then both members receive the persisted record, sender included
	for _, sink := range []*recordSink{senderSink, receiverSink} {
		events := sink.Events()
		last, ok := events[len(events)-1].(event.MessagePosted)
		req.True(ok)
		req.Equal(persisted.ID, last.ID)
		req.Equal("hello", last.Body)
		req.Equal(at, last.At)
	}
}

func TestCoordinator_Send_Store_Failure_Skips_Broadcast(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockIMessageStore(ctrl)
	registry := NewRegistry(discardLogger())
	coordinator := NewCoordinator(discardLogger(), registry, store)
	roomID := domain.RoomID("lobby")
	sender, senderSink := newTestConn("alice")

	// Given a joined sender
	store.EXPECT().History(gomock.Any(), roomID).Return(nil, nil)
	coordinator.HandleJoin(context.Background(), sender, roomID)
	before := len(senderSink.Events())

	// And a store that rejects the append
	store.EXPECT().Append(gomock.Any(), roomID, "alice", "doomed").
		Return(domain.Message{}, apperrors.ErrStoreUnavailable)

	// When the message is sent
	err := coordinator.HandleSend(context.Background(), sender, roomID, "doomed")

	// Then the failure surfaces and nothing is broadcast
	req.ErrorIs(err, apperrors.ErrStoreUnavailable)
	req.Len(senderSink.Events(), before)
}

func TestCoordinator_Send_Without_Identity_Is_Silent(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockIMessageStore(ctrl)
	registry := NewRegistry(discardLogger())
	coordinator := NewCoordinator(discardLogger(), registry, store)
	conn, sink := newTestConn("")

	// When an unresolved connection sends; no Append expectation is set
	err := coordinator.HandleSend(context.Background(), conn, domain.RoomID("lobby"), "hi")

	// Then the event is dropped without error
	req.NoError(err)
	req.Empty(sink.Events())
}

func TestCoordinator_Send_Without_Membership_Still_Delivers_To_Members(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockIMessageStore(ctrl)
	registry := NewRegistry(discardLogger())
	coordinator := NewCoordinator(discardLogger(), registry, store)
	roomID := domain.RoomID("lobby")
	member, memberSink := newTestConn("bob")
	outsider, _ := newTestConn("alice")

	// Given a room with one member and an outsider who never joined
	store.EXPECT().History(gomock.Any(), roomID).Return(nil, nil)
	coordinator.HandleJoin(context.Background(), member, roomID)

	persisted := domain.Message{ID: uuid.New(), Room: roomID, Sender: "alice", Body: "drive-by", At: time.Now().UTC()}
	store.EXPECT().Append(gomock.Any(), roomID, "alice", "drive-by").Return(persisted, nil)

	// When the outsider sends into the room
	err := coordinator.HandleSend(context.Background(), outsider, roomID, "drive-by")
	req.NoError(err)

	// Then the member receives it
	bodies := postedBodies(memberSink.Events())
	req.Equal("drive-by", bodies[len(bodies)-1])
}

func TestCoordinator_Send_Serialization_State_Is_Bounded(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockIMessageStore(ctrl)
	registry := NewRegistry(discardLogger())
	coordinator := NewCoordinator(discardLogger(), registry, store)

	// The same room always serializes on the same lock
	req.Same(coordinator.sendLock(domain.RoomID("lobby")), coordinator.sendLock(domain.RoomID("lobby")))

	// Arbitrary client-named rooms draw from a fixed pool instead of
	// growing per-room state
	unique := make(map[*sync.Mutex]struct{})
	for i := range 10_000 {
		unique[coordinator.sendLock(domain.RoomID(fmt.Sprintf("room-%d", i)))] = struct{}{}
	}
	req.LessOrEqual(len(unique), sendLockStripes)
}

func TestCoordinator_Hooks_See_Messages_But_Not_Announcements(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockIMessageStore(ctrl)
	registry := NewRegistry(discardLogger())
	coordinator := NewCoordinator(discardLogger(), registry, store)
	roomID := domain.RoomID("lobby")
	sender, _ := newTestConn("alice")
	hook := &recordSink{}
	coordinator.AddHooks(hook)

	// Given a joined sender; the join announcement must not reach the hook
	store.EXPECT().History(gomock.Any(), roomID).Return(nil, nil)
	coordinator.HandleJoin(context.Background(), sender, roomID)
	req.Empty(hook.Events())

	persisted := domain.Message{ID: uuid.New(), Room: roomID, Sender: "alice", Body: "indexed", At: time.Now().UTC()}
	store.EXPECT().Append(gomock.Any(), roomID, "alice", "indexed").Return(persisted, nil)

	// When a message is sent
	req.NoError(coordinator.HandleSend(context.Background(), sender, roomID, "indexed"))

	// Then the hook observed exactly the persisted message
	req.Equal([]string{"indexed"}, postedBodies(hook.Events()))
}
