package runtime

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"chat-broker/contract"
	"chat-broker/domain"
	"chat-broker/domain/event"
	"chat-broker/moderation"

	"github.com/google/uuid"
)

// Coordinator is the chat state machine. It validates every inbound event
// against identity and membership rules, drives the Message Store for
// persistence and history replay, and broadcasts through the Registry.
//
// Per (connection, room) the states are not_joined and joined; both
// transitions are atomic from the caller's perspective. Identity failures
// are silent no-ops: the transport has no synchronous error channel back
// to the sender for these events, and surfacing them would leak spoofing
// attempts to the room.
// sendLockStripes bounds the send-serialization state: rooms are
// client-named, so a per-room map would grow without reclamation.
const sendLockStripes = 64

type Coordinator struct {
	log       *slog.Logger
	registry  *Registry
	store     contract.IMessageStore
	moderator *moderation.Moderator
	hooks     []contract.EventSink

	sendLocks [sendLockStripes]sync.Mutex
}

func NewCoordinator(log *slog.Logger, registry *Registry, store contract.IMessageStore) *Coordinator {
	return &Coordinator{
		log:      log,
		registry: registry,
		store:    store,
	}
}

// WithModerator censors message bodies before persistence, so the store,
// the hooks and every receiver observe the same text.
func (c *Coordinator) WithModerator(m *moderation.Moderator) *Coordinator {
	c.moderator = m
	return c
}

// AddHooks registers sinks fed with every persisted message (search index,
// projections). Hooks never see announcements; those are broadcast-only.
func (c *Coordinator) AddHooks(sinks ...contract.EventSink) {
	c.hooks = append(c.hooks, sinks...)
}

// HandleJoin registers membership, replays the room history to the joiner
// only, then broadcasts the join announcement to all members including the
// joiner. Replay precedes the announcement so the joiner sees a continuous
// timeline. Each call re-runs replay and announcement even when the
// connection is already a member.
func (c *Coordinator) HandleJoin(ctx context.Context, conn *Connection, roomID domain.RoomID) {
	username, ok := conn.Username()
	if !ok {
		c.log.Debug("join dropped: identity not resolved", "connection", conn.ID, "room", roomID)
		return
	}

	c.registry.Join(roomID, conn)
	conn.trackRoom(roomID)

	history, err := c.store.History(ctx, roomID)
	if err != nil {
		// Degrade gracefully: connectivity matters more than completeness,
		// but the joiner must not assume an empty room.
		c.log.Warn("history replay skipped", "room", roomID, "error", err)
		c.deliver(ctx, conn, event.HistoryGap{Room: roomID, At: time.Now().UTC()})
	} else {
		for _, msg := range history {
			if !c.deliver(ctx, conn, toPosted(msg)) {
				// Partial replay is acceptable; disconnect cleanup runs anyway.
				break
			}
		}
	}

	c.registry.Broadcast(ctx, roomID, c.announcement(roomID, fmt.Sprintf("%s has joined the room.", username)))
}

// HandleLeave removes membership first, then broadcasts the departure to
// the remaining members; the leaver is not in the target set. Leaving a
// room the connection never joined is a no-op.
func (c *Coordinator) HandleLeave(ctx context.Context, conn *Connection, roomID domain.RoomID) {
	username, ok := conn.Username()
	if !ok {
		return
	}
	if !conn.untrackRoom(roomID) {
		c.log.Debug("leave ignored: not a member", "connection", conn.ID, "room", roomID)
		return
	}

	c.registry.Leave(roomID, conn)
	c.registry.Broadcast(ctx, roomID, c.announcement(roomID, fmt.Sprintf("%s has left the room.", username)))
}

// HandleSend persists the message with a server-assigned timestamp, then
// broadcasts the persisted record to the current member set. A store
// failure is returned upward and skips the broadcast; the room stays
// usable. Persist and broadcast are serialized per room so that messages
// become visible in the order their persistence completed.
//
// There is deliberately no membership check here: a connection that never
// joined (or already left) the room may still send into it. Sending and
// receiving are independent capabilities; only receiving requires
// membership.
func (c *Coordinator) HandleSend(ctx context.Context, conn *Connection, roomID domain.RoomID, body string) error {
	username, ok := conn.Username()
	if !ok {
		c.log.Debug("send dropped: identity not resolved", "connection", conn.ID, "room", roomID)
		return nil
	}

	if c.moderator != nil {
		sanitized, matched := c.moderator.Censor(body)
		if len(matched) > 0 {
			c.log.Info("message censored", "room", roomID, "sender", username, "matches", len(matched))
		}
		body = sanitized
	}

	lock := c.sendLock(roomID)
	lock.Lock()
	defer lock.Unlock()

	msg, err := c.store.Append(ctx, roomID, username, body)
	if err != nil {
		c.log.Error("message not persisted, broadcast skipped", "room", roomID, "error", err)
		return err
	}

	posted := toPosted(msg)
	for _, hook := range c.hooks {
		if err := hook.Consume(ctx, posted); err != nil {
			c.log.Warn("hook rejected message", "room", roomID, "error", err)
		}
	}
	c.registry.Broadcast(ctx, roomID, posted)
	return nil
}

// deliver targets a single connection (history replay, gap notices) and
// reports whether the sink accepted the event.
func (c *Coordinator) deliver(ctx context.Context, conn *Connection, e event.DomainEvent) bool {
	if err := conn.Sink().Consume(ctx, e); err != nil {
		c.log.Warn("delivery failed", "connection", conn.ID, "error", err)
		return false
	}
	return true
}

func (c *Coordinator) announcement(roomID domain.RoomID, body string) event.MessagePosted {
	return event.MessagePosted{
		ID:     uuid.New(),
		Room:   roomID,
		Sender: domain.SystemSender,
		Body:   body,
		At:     time.Now().UTC(),
	}
}

// sendLock maps a room onto the fixed stripe pool. Two rooms may share a
// stripe; per-room ordering is what matters and the hash is stable.
func (c *Coordinator) sendLock(roomID domain.RoomID) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(roomID))
	return &c.sendLocks[h.Sum32()%sendLockStripes]
}

func toPosted(msg domain.Message) event.MessagePosted {
	return event.MessagePosted{
		ID:     msg.ID,
		Room:   msg.Room,
		Sender: msg.Sender,
		Body:   msg.Body,
		At:     msg.At,
	}
}
