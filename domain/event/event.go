package event

import (
	"chat-relay/domain"
)

type Kind string

const (
	KindMessage  Kind = "message"
	KindAck      Kind = "ack"
	KindPresence Kind = "presence"
	KindTyping   Kind = "typing"
)

// DomainEvent is anything the broker pushes into a session sink.
type DomainEvent interface {
	EventKind() Kind
}

// MessageBroadcast carries one accepted message to every session except its
// sender. Events reach a given sink in strictly increasing Message.ID order.
type MessageBroadcast struct {
	Message domain.Message
}

func (e MessageBroadcast) EventKind() Kind { return KindMessage }

// SubmissionAcked goes back to the submitting session only.
type SubmissionAcked struct {
	Status domain.AckStatus
	ID     uint64
}

func (e SubmissionAcked) EventKind() Kind { return KindAck }

// PresenceUpdated carries the full recomputed presence set to all sessions.
type PresenceUpdated struct {
	Entries []domain.PresenceEntry
}

func (e PresenceUpdated) EventKind() Kind { return KindPresence }

// TypingChanged is a transient best-effort UI hint, never persisted and
// carrying no ordering guarantee relative to messages.
type TypingChanged struct {
	Author string
	Active bool
}

func (e TypingChanged) EventKind() Kind { return KindTyping }
