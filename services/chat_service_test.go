package services

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"chat-broker/domain"
	"chat-broker/errors"
	"chat-broker/mocks"
	"chat-broker/runtime"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type chatServiceFixture struct {
	service  *ChatService
	store    *mocks.MockIMessageStore
	resolver *mocks.MockIIdentityResolver
	sink     *mocks.MockEventSink
}

func newChatServiceFixture(t *testing.T) chatServiceFixture {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockIMessageStore(ctrl)
	resolver := mocks.NewMockIIdentityResolver(ctrl)
	log := slog.New(slog.DiscardHandler)

	registry := runtime.NewRegistry(log)
	coordinator := runtime.NewCoordinator(log, registry, store)
	manager := runtime.NewManager(log, coordinator, registry)

	return chatServiceFixture{
		service:  NewChatService(manager, coordinator, resolver, store, nil),
		store:    store,
		resolver: resolver,
		sink:     mocks.NewMockEventSink(ctrl),
	}
}

func Test_Authenticate_Resolves_Identity(t *testing.T) {
	req := require.New(t)
	f := newChatServiceFixture(t)

	f.resolver.EXPECT().ResolveToken("good-token").Return("alice", nil)

	conn := f.service.Connect(f.sink)
	req.NoError(f.service.Authenticate(conn, "good-token"))

	username, resolved := conn.Username()
	req.True(resolved)
	req.Equal("alice", username)
}

func Test_Authenticate_Bad_Token(t *testing.T) {
	req := require.New(t)
	f := newChatServiceFixture(t)

	f.resolver.EXPECT().ResolveToken("bad-token").Return("", errors.ErrUnauthenticated)

	conn := f.service.Connect(f.sink)
	req.ErrorIs(f.service.Authenticate(conn, "bad-token"), errors.ErrUnauthenticated)

	_, resolved := conn.Username()
	req.False(resolved)
}

func Test_Dispatch_Routes_Commands(t *testing.T) {
	req := require.New(t)
	f := newChatServiceFixture(t)
	ctx := context.Background()
	roomID := domain.RoomID("lobby")

	f.resolver.EXPECT().ResolveToken("token").Return("alice", nil)
	conn := f.service.Connect(f.sink)
	req.NoError(f.service.Authenticate(conn, "token"))

	// Join replays the empty history and announces to the joiner
	f.store.EXPECT().History(gomock.Any(), roomID).Return(nil, nil)
	f.sink.EXPECT().Consume(gomock.Any(), gomock.Any()).Return(nil)
	req.NoError(f.service.Dispatch(ctx, conn, domain.JoinCommand{Room: "lobby"}))

	// Send persists then broadcasts back to the sender
	persisted := domain.Message{ID: uuid.New(), Room: roomID, Sender: "alice", Body: "hi", At: time.Now().UTC()}
	f.store.EXPECT().Append(gomock.Any(), roomID, "alice", "hi").Return(persisted, nil)
	f.sink.EXPECT().Consume(gomock.Any(), gomock.Any()).Return(nil)
	req.NoError(f.service.Dispatch(ctx, conn, domain.SendMessageCommand{Room: "lobby", Body: "hi"}))

	// Leave announces to the remaining members, of which there are none
	req.NoError(f.service.Dispatch(ctx, conn, domain.LeaveCommand{Room: "lobby"}))
}

func Test_Dispatch_Unknown_Command(t *testing.T) {
	req := require.New(t)
	f := newChatServiceFixture(t)

	conn := f.service.Connect(f.sink)
	req.Error(f.service.Dispatch(context.Background(), conn, unknownCommand{}))
}

type unknownCommand struct{}

func (unknownCommand) RoomID() domain.RoomID { return "" }
