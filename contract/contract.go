//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"
	"support-chat/domain"
	"time"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
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

// Handle is the transport side of a single live connection.
// Push may block briefly on backpressure and must honour ctx.
type Handle interface {
	Push(ctx context.Context, msg domain.Message) error
	Close() error
}

type ConnectionEventType string

const (
	Connected    ConnectionEventType = "connected"
	Disconnected ConnectionEventType = "disconnected"
	Activity     ConnectionEventType = "activity"
)

// ConnectionEvent is emitted by the registry. Remaining is the number of live
// connections the user still has after the event.
type ConnectionEvent struct {
	Type       ConnectionEventType
	Connection domain.Connection
	Remaining  int
}

type ConnectionListener interface {
	OnConnectionEvent(evt ConnectionEvent)
}

type IRegistry interface {
	Register(userID domain.UserID, handle Handle) (domain.ConnectionID, error)
	Unregister(connID domain.ConnectionID)
	Lookup(userID domain.UserID) []domain.ConnectionID
	Send(ctx context.Context, connID domain.ConnectionID, msg domain.Message) error
	Touch(connID domain.ConnectionID)
	Connection(connID domain.ConnectionID) (domain.Connection, bool)
	Subscribe(listener ConnectionListener)
}

// IdentityResolver is the identity collaborator consulted during session assignment.
type IdentityResolver interface {
	ResolveRole(userID domain.UserID) (domain.Role, error)
}

// Persister hands a message to durable history. It must never block the caller.
type Persister interface {
	Persist(msg domain.Message)
}

// HistoryReader reads durable history, which outlives the retention window.
type HistoryReader interface {
	History(conversationID domain.ConversationID, afterSeq uint64) ([]domain.Message, error)
}

// Sweeper evicts retained messages that are past retention or fully acknowledged.
type Sweeper interface {
	Sweep(now time.Time) int
}
