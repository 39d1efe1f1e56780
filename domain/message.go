// Package domain contains core concepts of the chat broker.
// This file defines Message and related rules.
// Messages are immutable once persisted and never mutated by the core.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// SystemSender is the literal author of join/leave announcements.
const SystemSender = "System"

// Message represents an immutable chat record.
// At is assigned by the store at persistence time, never by clients,
// and is strictly increasing within a room.
type Message struct {
	ID     uuid.UUID
	Room   RoomID
	Sender string
	Body   string
	At     time.Time
}
