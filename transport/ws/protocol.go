package ws

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"time"
)

// Frame types accepted from the client.
const (
	frameSubmit   = "message"
	frameIdentity = "identity"
	frameTyping   = "typing"
)

// Frame types pushed to the client.
const (
	frameWelcome  = "welcome"
	frameAck      = "ack"
	frameMessage  = "message"
	framePresence = "presence"
)

// inboundFrame is the single envelope read off the socket; Type selects
// which fields matter.
type inboundFrame struct {
	Type         string `json:"type"`
	Content      string `json:"content,omitempty"`
	ClientOffset string `json:"client_offset,omitempty"`
	Name         string `json:"name,omitempty"`
	Active       bool   `json:"active,omitempty"`
}

type submitPayload struct {
	Content      string `validate:"required,max=4096"`
	ClientOffset string `validate:"max=128"`
}

type identityPayload struct {
	Name string `validate:"required,max=64"`
}

// welcomeFrame opens every connection. ResumeToken is single-use and only
// redeemable while the resume window is open; Recovered tells the client
// whether its in-flight state was restored (no replay happened).
type welcomeFrame struct {
	Type        string `json:"type"`
	SessionID   string `json:"session_id"`
	ResumeToken string `json:"resume_token"`
	Recovered   bool   `json:"recovered"`
}

type ackFrame struct {
	Type   string `json:"type"`
	Status string `json:"status"`
	ID     uint64 `json:"id"`
}

type messageFrame struct {
	Type      string    `json:"type"`
	ID        uint64    `json:"id"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type presenceFrame struct {
	Type    string                 `json:"type"`
	Entries []domain.PresenceEntry `json:"entries"`
}

type typingFrame struct {
	Type   string `json:"type"`
	Author string `json:"author"`
	Active bool   `json:"active"`
}

// encodeFrame maps a domain event to its wire frame.
func encodeFrame(e event.DomainEvent) (any, bool) {
	switch evt := e.(type) {
	case event.MessageBroadcast:
		return messageFrame{
			Type:      frameMessage,
			ID:        evt.Message.ID,
			Author:    evt.Message.Author,
			Content:   evt.Message.Content,
			CreatedAt: evt.Message.CreatedAt,
		}, true
	case event.SubmissionAcked:
		return ackFrame{Type: frameAck, Status: string(evt.Status), ID: evt.ID}, true
	case event.PresenceUpdated:
		return presenceFrame{Type: framePresence, Entries: evt.Entries}, true
	case event.TypingChanged:
		return typingFrame{Type: frameTyping, Author: evt.Author, Active: evt.Active}, true
	}
	return nil, false
}
