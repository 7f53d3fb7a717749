//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"context"
	"reflect"
	"time"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself.
// Can be silly, focused.
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker lifecycle
// events, avoiding the need for manual naming in the Worker interface.
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

// EventSink is one delivery target. Consume must never block; a sink whose
// buffer is full returns an error and the failure stays isolated to that
// recipient.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// Recipient pairs a registered session with its sink for fan-out.
type Recipient struct {
	SessionID string
	Sink      EventSink
}

type IRegistry interface {
	Subscribe(sessionID string, sink EventSink)
	Announce(sessionID, name string) (bool, error)
	Suspend(sessionID string) bool
	Resume(sessionID string) (string, error)
	Remove(sessionID string) bool
	MarkDropped(sessionID string)
	Author(sessionID string) (string, bool)
	Recipients(excludeSessionID string) []Recipient
	Sink(sessionID string) (EventSink, bool)
	Presence() []domain.PresenceEntry
	ExpiredSuspended(ttl time.Duration) []string
	Count() int
}

// IBroker is the message delivery and recovery engine seen by transports.
type IBroker interface {
	Attach(ctx context.Context, sessionID string, sink EventSink, sinceID uint64)
	Resume(ctx context.Context, sessionID string) error
	Submit(ctx context.Context, sessionID, content, clientOffset string) (domain.Ack, error)
	Announce(ctx context.Context, sessionID, name string) error
	Typing(ctx context.Context, sessionID string, active bool)
	Suspend(ctx context.Context, sessionID string)
	Drop(ctx context.Context, sessionID string)
}

// IMessageLog is the persistence collaborator: an append-only ordered store
// with at-most-once semantics per client offset. The offset is globally
// unique; author is display identity only and never scopes deduplication.
type IMessageLog interface {
	Append(author, content, clientOffset string) (domain.Message, bool, error)
	QuerySince(offset uint64) ([]domain.Message, error)
	PurgeAll() error
}
