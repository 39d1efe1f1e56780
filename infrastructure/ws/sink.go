package ws

import (
	"context"

	"chat-broker/domain/event"
	"chat-broker/errors"
)

// Sink buffers outbound events for one websocket connection. The write
// pump drains it; broadcast never blocks on a slow socket.
type Sink struct {
	events chan event.DomainEvent
}

func NewSink(bufferSize int) *Sink {
	return &Sink{events: make(chan event.DomainEvent, bufferSize)}
}

// Consume implements contract.EventSink. A full buffer drops the event and
// reports it, so one congested member never stalls a room broadcast.
func (s *Sink) Consume(ctx context.Context, e event.DomainEvent) error {
	select {
	case s.events <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return errors.ErrSlowConsumer
	}
}

func (s *Sink) Events() <-chan event.DomainEvent {
	return s.events
}
