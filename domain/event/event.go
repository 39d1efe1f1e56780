package event

import (
	"time"

	"chat-broker/domain"

	"github.com/google/uuid"
)

type DomainEvent interface {
	RoomID() domain.RoomID
}

// MessagePosted carries one delivery: a live message, a history replay
// entry or a System announcement. The transport renders them all the same.
type MessagePosted struct {
	ID     uuid.UUID
	Room   domain.RoomID
	Sender string
	Body   string
	At     time.Time
}

func (m MessagePosted) RoomID() domain.RoomID {
	return m.Room
}

// HistoryGap tells a joining connection that replay was skipped because the
// store failed, so it must not assume the room is empty.
type HistoryGap struct {
	Room domain.RoomID
	At   time.Time
}

func (h HistoryGap) RoomID() domain.RoomID {
	return h.Room
}
