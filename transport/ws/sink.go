package ws

import (
	"chat-relay/domain/event"
	relayerrors "chat-relay/errors"
	"context"
	"sync/atomic"
)

// Sink buffers domain events between the broker's fan-out and the single
// write pump of one websocket connection.
type Sink struct {
	events chan event.DomainEvent
	lost   atomic.Bool
}

func NewSink(bufferSize int) *Sink {
	return &Sink{events: make(chan event.DomainEvent, bufferSize)}
}

// Consume never blocks the broker: a full buffer reports an overflow so the
// failure stays pinned to this recipient instead of stalling the fan-out.
func (s *Sink) Consume(_ context.Context, e event.DomainEvent) error {
	select {
	case s.events <- e:
		return nil
	default:
		s.lost.Store(true)
		return relayerrors.ErrBufferOverflow
	}
}

// Events is drained by exactly one write pump at a time.
func (s *Sink) Events() <-chan event.DomainEvent {
	return s.events
}

// MarkLost records that an event left the buffer without reaching the wire.
// A lost buffer must never be resumed; the client reconnects with its last
// offset and the log replays what the buffer dropped.
func (s *Sink) MarkLost() {
	s.lost.Store(true)
}

func (s *Sink) Lost() bool {
	return s.lost.Load()
}
