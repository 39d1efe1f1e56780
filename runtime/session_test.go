package runtime

import (
	"context"
	"testing"

	"chat-broker/domain"
	"chat-broker/mocks"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newTestManager(t *testing.T) (*Manager, *mocks.MockIMessageStore) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockIMessageStore(ctrl)
	registry := NewRegistry(discardLogger())
	coordinator := NewCoordinator(discardLogger(), registry, store)
	return NewManager(discardLogger(), coordinator, registry), store
}

func TestManager_OnConnect_Starts_With_Unresolved_Identity(t *testing.T) {
	req := require.New(t)
	manager, _ := newTestManager(t)

	// When a transport connects
	conn := manager.OnConnect(&recordSink{})

	// Then the record exists with no identity and no rooms
	_, resolved := conn.Username()
	req.False(resolved)
	req.Empty(conn.Rooms())
	_, _, connections := manager.Gauges()
	req.Equal(1, connections)
}

func TestManager_ResolveIdentity_Is_Set_Once(t *testing.T) {
	req := require.New(t)
	manager, _ := newTestManager(t)
	conn := manager.OnConnect(&recordSink{})

	// When identity resolves twice
	manager.ResolveIdentity(conn, "alice")
	manager.ResolveIdentity(conn, "mallory")

	// Then the first resolution wins
	username, resolved := conn.Username()
	req.True(resolved)
	req.Equal("alice", username)
}

func TestManager_OnDisconnect_Leaves_Every_Joined_Room(t *testing.T) {
	req := require.New(t)
	manager, store := newTestManager(t)
	room1 := domain.RoomID("general")
	room2 := domain.RoomID("random")

	// Given a member of two rooms and a witness in each
	leaver := manager.OnConnect(&recordSink{})
	manager.ResolveIdentity(leaver, "alice")
	witness1Sink := &recordSink{}
	witness1 := manager.OnConnect(witness1Sink)
	manager.ResolveIdentity(witness1, "bob")
	witness2Sink := &recordSink{}
	witness2 := manager.OnConnect(witness2Sink)
	manager.ResolveIdentity(witness2, "carol")

	store.EXPECT().History(gomock.Any(), gomock.Any()).Return(nil, nil).Times(4)
	ctx := context.Background()
	manager.coordinator.HandleJoin(ctx, witness1, room1)
	manager.coordinator.HandleJoin(ctx, witness2, room2)
	manager.coordinator.HandleJoin(ctx, leaver, room1)
	manager.coordinator.HandleJoin(ctx, leaver, room2)

	// When the member disconnects
	manager.OnDisconnect(ctx, leaver)

	// Then each room's witness sees the departure
	bodies1 := postedBodies(witness1Sink.Events())
	req.Equal("alice has left the room.", bodies1[len(bodies1)-1])
	bodies2 := postedBodies(witness2Sink.Events())
	req.Equal("alice has left the room.", bodies2[len(bodies2)-1])

	// And membership plus the connection record are gone
	req.False(manager.registry.IsMember(room1, leaver))
	req.False(manager.registry.IsMember(room2, leaver))
	_, _, connections := manager.Gauges()
	req.Equal(2, connections)
}

func TestManager_OnDisconnect_Unresolved_Connection_Is_Silent(t *testing.T) {
	req := require.New(t)
	manager, store := newTestManager(t)
	roomID := domain.RoomID("lobby")

	// Given a resolved member and a connection that never authenticated
	witnessSink := &recordSink{}
	witness := manager.OnConnect(witnessSink)
	manager.ResolveIdentity(witness, "bob")
	store.EXPECT().History(gomock.Any(), roomID).Return(nil, nil)
	ctx := context.Background()
	manager.coordinator.HandleJoin(ctx, witness, roomID)
	before := len(witnessSink.Events())

	ghost := manager.OnConnect(&recordSink{})

	// When the unresolved connection disconnects
	manager.OnDisconnect(ctx, ghost)

	// Then no departure is announced anywhere
	req.Len(witnessSink.Events(), before)
	_, _, connections := manager.Gauges()
	req.Equal(1, connections)
}
