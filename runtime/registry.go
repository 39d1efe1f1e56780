// Package runtime hosts the broker's live state: the room registry, the
// connection manager and the chat coordinator. It contains no transport or
// storage logic.
package runtime

import (
	"context"
	"log/slog"
	"sync"

	"chat-broker/domain"
	"chat-broker/domain/event"

	"github.com/google/uuid"
)

// Registry maps rooms to their current member set. Membership mutation and
// broadcast snapshots on the same room are mutually exclusive through a
// per-room mutex; unrelated rooms never contend. The registry-level lock
// only guards the room map itself.
type Registry struct {
	log   *slog.Logger
	mu    sync.RWMutex
	rooms map[domain.RoomID]*roomState
}

type roomState struct {
	mu      sync.Mutex
	members map[uuid.UUID]*Connection
	// gone flips when the empty room is removed from the map, so a Join
	// racing the removal knows to start over with a fresh state.
	gone bool
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		log:   log,
		rooms: make(map[domain.RoomID]*roomState),
	}
}

// Join adds the connection to the room's member set, creating the room on
// first join. Joining twice is a no-op for membership; replay and
// announcement side effects belong to the coordinator, not here.
func (r *Registry) Join(roomID domain.RoomID, conn *Connection) {
	for {
		state := r.getOrCreate(roomID)
		state.mu.Lock()
		if state.gone {
			state.mu.Unlock()
			continue
		}
		state.members[conn.ID] = conn
		state.mu.Unlock()
		return
	}
}

// Leave removes the connection from the member set; a no-op for
// non-members. The room entry is reclaimed once its set empties.
func (r *Registry) Leave(roomID domain.RoomID, conn *Connection) {
	r.mu.Lock()
	state, ok := r.rooms[roomID]
	if !ok {
		r.mu.Unlock()
		return
	}
	state.mu.Lock()
	delete(state.members, conn.ID)
	if len(state.members) == 0 {
		state.gone = true
		delete(r.rooms, roomID)
	}
	state.mu.Unlock()
	r.mu.Unlock()
}

// Members returns a stable snapshot of the room's member set, so a
// concurrent join or leave cannot corrupt broadcast iteration.
func (r *Registry) Members(roomID domain.RoomID) []*Connection {
	r.mu.RLock()
	state, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if !ok {
		return nil
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	snapshot := make([]*Connection, 0, len(state.members))
	for _, conn := range state.members {
		snapshot = append(snapshot, conn)
	}
	return snapshot
}

// IsMember reports whether the connection currently belongs to the room.
func (r *Registry) IsMember(roomID domain.RoomID, conn *Connection) bool {
	r.mu.RLock()
	state, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if !ok {
		return false
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	_, member := state.members[conn.ID]
	return member
}

// Broadcast delivers the event to every snapshot member. One member's
// unreachable transport never blocks delivery to the others.
func (r *Registry) Broadcast(ctx context.Context, roomID domain.RoomID, e event.DomainEvent) {
	for _, conn := range r.Members(roomID) {
		if err := conn.Sink().Consume(ctx, e); err != nil {
			r.log.Warn("delivery failed, skipping member",
				"connection", conn.ID,
				"room", roomID,
				"error", err)
		}
	}
}

// Gauges reports room and member counts for the health monitor.
func (r *Registry) Gauges() (rooms, members int) {
	r.mu.RLock()
	states := make([]*roomState, 0, len(r.rooms))
	for _, state := range r.rooms {
		states = append(states, state)
	}
	r.mu.RUnlock()

	for _, state := range states {
		state.mu.Lock()
		members += len(state.members)
		state.mu.Unlock()
	}
	return len(states), members
}

func (r *Registry) getOrCreate(roomID domain.RoomID) *roomState {
	r.mu.RLock()
	state, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if ok {
		return state
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if state, ok = r.rooms[roomID]; ok {
		return state
	}
	state = &roomState{members: make(map[uuid.UUID]*Connection)}
	r.rooms[roomID] = state
	return state
}
