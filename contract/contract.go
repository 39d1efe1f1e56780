//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"chat-broker/domain"
	"chat-broker/domain/event"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself from panics; the supervisor does.
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// Used for logging and supervision, avoiding manual naming in the
// Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink receives outbound deliveries for one consumer (a connection's
// write pump, the search index, a test recorder).
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// IMessageStore is the durability contract the coordinator depends on.
// Append assigns the timestamp atomically at persistence time; History
// returns all room messages in ascending timestamp order, ties in
// persisted order. Both report failures as errors.ErrStoreUnavailable.
type IMessageStore interface {
	Append(ctx context.Context, room domain.RoomID, sender, body string) (domain.Message, error)
	History(ctx context.Context, room domain.RoomID) ([]domain.Message, error)
}

// IIdentityResolver maps a session token to a verified username.
type IIdentityResolver interface {
	ResolveToken(token string) (string, error)
}
