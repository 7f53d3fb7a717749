// Package domain contains core concepts of the relay.
// This file defines Message and acknowledgement rules.
// Messages are immutable once the log has assigned them an ID.
package domain

import (
	"time"
)

// Message is an immutable chat event. ID is assigned by the durable log,
// strictly increasing in append order and never reused. ClientOffset is the
// caller-supplied idempotency token; empty means the submission is never
// deduplicated.
type Message struct {
	ID           uint64    `json:"id"`
	Author       string    `json:"author"`
	Content      string    `json:"content"`
	ClientOffset string    `json:"client_offset,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type AckStatus string

const (
	AckSuccess   AckStatus = "success"
	AckDuplicate AckStatus = "duplicate"
)

// Ack confirms a submission to its sender. On a retry of an already-persisted
// client offset the status is AckDuplicate and ID references the original
// message.
type Ack struct {
	Status AckStatus
	ID     uint64
}
