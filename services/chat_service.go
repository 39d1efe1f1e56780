package services

import (
	"context"
	"fmt"

	"chat-broker/contract"
	"chat-broker/domain"
	"chat-broker/runtime"
	"chat-broker/search"
)

type IChatService interface {
	Connect(sink contract.EventSink) *runtime.Connection
	Authenticate(conn *runtime.Connection, token string) error
	Dispatch(ctx context.Context, conn *runtime.Connection, cmd domain.Command) error
	Disconnect(ctx context.Context, conn *runtime.Connection)
	History(ctx context.Context, room domain.RoomID) ([]domain.Message, error)
	Search(ctx context.Context, rawQuery string) ([]search.Hit, error)
}

// ChatService is the transport-facing façade over the broker runtime.
type ChatService struct {
	manager     *runtime.Manager
	coordinator *runtime.Coordinator
	resolver    contract.IIdentityResolver
	store       contract.IMessageStore
	index       *search.MessageIndex
}

func NewChatService(
	manager *runtime.Manager,
	coordinator *runtime.Coordinator,
	resolver contract.IIdentityResolver,
	store contract.IMessageStore,
	index *search.MessageIndex,
) *ChatService {
	return &ChatService{
		manager:     manager,
		coordinator: coordinator,
		resolver:    resolver,
		store:       store,
		index:       index,
	}
}

func (s *ChatService) Connect(sink contract.EventSink) *runtime.Connection {
	return s.manager.OnConnect(sink)
}

// Authenticate resolves the session token to a username and attaches it to
// the connection. Until this succeeds every chat command is a silent no-op.
func (s *ChatService) Authenticate(conn *runtime.Connection, token string) error {
	username, err := s.resolver.ResolveToken(token)
	if err != nil {
		return err
	}
	s.manager.ResolveIdentity(conn, username)
	return nil
}

// Dispatch routes an inbound command to its coordinator handler.
func (s *ChatService) Dispatch(ctx context.Context, conn *runtime.Connection, cmd domain.Command) error {
	switch c := cmd.(type) {
	case domain.JoinCommand:
		s.coordinator.HandleJoin(ctx, conn, c.RoomID())
		return nil
	case domain.LeaveCommand:
		s.coordinator.HandleLeave(ctx, conn, c.RoomID())
		return nil
	case domain.SendMessageCommand:
		return s.coordinator.HandleSend(ctx, conn, c.RoomID(), c.Body)
	default:
		return fmt.Errorf("unknown command %T", cmd)
	}
}

func (s *ChatService) Disconnect(ctx context.Context, conn *runtime.Connection) {
	s.manager.OnDisconnect(ctx, conn)
}

func (s *ChatService) History(ctx context.Context, room domain.RoomID) ([]domain.Message, error) {
	return s.store.History(ctx, room)
}

func (s *ChatService) Search(ctx context.Context, rawQuery string) ([]search.Hit, error) {
	return s.index.Search(ctx, search.ParseQuery(rawQuery))
}
