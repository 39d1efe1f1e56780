//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"chat-broker/domain"
	"chat-broker/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

type IMessageRepository interface {
	Append(ctx context.Context, room domain.RoomID, sender, body string) (domain.Message, error)
	History(ctx context.Context, room domain.RoomID) ([]domain.Message, error)
}

// MessageRepository is the durable append-only room log, backed by BadgerDB.
//
// The key is formatted as "msg:{room_hex}:{timestamp_padded}:{uuid}" to:
//  1. Ensure chronological sorting using 19-digit zero padding
//     (lexicographical order).
//  2. Prevent data loss by using the UUID as a collision disconnector.
//
// The room segment is hex-encoded: room IDs are client-named strings, so a
// raw room could carry the ":" separator and land inside another room's
// prefix range.
//
// Timestamps are assigned here, at the point of append, and are strictly
// increasing per room: two appends can never share a stamp, so key order
// is exactly persistence order and history ties resolve first-written-
// first-delivered.
type MessageRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages *int

	mu        sync.Mutex
	lastStamp map[domain.RoomID]int64
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, limitMessages *int) *MessageRepository {
	return &MessageRepository{
		db:            db,
		log:           log,
		limitMessages: limitMessages,
		lastStamp:     make(map[domain.RoomID]int64),
	}
}

// DiskMessage is the stored representation. Exported for the inspect tool.
type DiskMessage struct {
	ID     string `json:"id"`
	Room   string `json:"room"`
	Sender string `json:"sender"`
	Body   string `json:"body"`
	At     int64  `json:"at"`
}

// Append persists a new message with a server-assigned timestamp and
// returns the persisted record.
func (m *MessageRepository) Append(ctx context.Context, room domain.RoomID, sender, body string) (domain.Message, error) {
	msg := domain.Message{
		ID:     uuid.New(),
		Room:   room,
		Sender: sender,
		Body:   body,
		At:     time.Unix(0, m.nextStamp(room)).UTC(),
	}

	data, err := json.Marshal(fromMessage(msg))
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}

	key := messageKey(msg)
	if err := m.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	}); err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	return msg, nil
}

// History returns the room's messages in ascending timestamp order.
// Thanks to the padded timestamp in the key, a forward prefix scan yields
// them already sorted. When a limit is configured, only the most recent
// messages are returned, still in ascending order.
func (m *MessageRepository) History(ctx context.Context, room domain.RoomID) ([]domain.Message, error) {
	var stored []DiskMessage
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := []byte(fmt.Sprintf("msg:%s:", roomHex(room)))
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := it.Item().Value(func(value []byte) error {
				var dm DiskMessage
				if err := json.Unmarshal(value, &dm); err != nil {
					return err
				}
				stored = append(stored, dm)
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}

	if m.limitMessages != nil && len(stored) > *m.limitMessages {
		m.log.Debug(fmt.Sprintf("History truncated to the %d most recent messages", *m.limitMessages))
		stored = stored[len(stored)-*m.limitMessages:]
	}
	return lo.Map(stored, func(dm DiskMessage, _ int) domain.Message {
		return toMessage(dm)
	}), nil
}

// nextStamp hands out strictly increasing nanosecond stamps per room, even
// when the wall clock stalls or two appends race within one tick.
func (m *MessageRepository) nextStamp(room domain.RoomID) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	stamp := time.Now().UTC().UnixNano()
	if last := m.lastStamp[room]; stamp <= last {
		stamp = last + 1
	}
	m.lastStamp[room] = stamp
	return stamp
}

func messageKey(msg domain.Message) string {
	return fmt.Sprintf("msg:%s:%019d:%s", roomHex(msg.Room), msg.At.UnixNano(), msg.ID)
}

func roomHex(room domain.RoomID) string {
	return hex.EncodeToString([]byte(room))
}

func fromMessage(msg domain.Message) DiskMessage {
	return DiskMessage{
		ID:     msg.ID.String(),
		Room:   string(msg.Room),
		Sender: msg.Sender,
		Body:   msg.Body,
		At:     msg.At.UnixNano(),
	}
}

func toMessage(dm DiskMessage) domain.Message {
	parsedID, err := uuid.Parse(dm.ID)
	if err != nil {
		// Stored by Append with a valid UUID; a parse failure means the
		// record was written by something else. Keep the zero ID.
		parsedID = uuid.Nil
	}
	return domain.Message{
		ID:     parsedID,
		Room:   domain.RoomID(dm.Room),
		Sender: dm.Sender,
		Body:   dm.Body,
		At:     time.Unix(0, dm.At).UTC(),
	}
}
