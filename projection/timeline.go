// Package projection builds local read views from observed events.
// Handles ordering and bounding; it never emits events itself.
package projection

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"context"
	"sync"

	"github.com/samber/lo"
)

// Timeline keeps the most recent broadcast messages in memory for the
// /history endpoint. It is a telemetry consumer: losing an entry here never
// affects delivery or durability.
type Timeline struct {
	mu       sync.RWMutex
	capacity int
	messages []domain.Message
}

func NewTimeline(capacity int) *Timeline {
	return &Timeline{capacity: capacity}
}

func (t *Timeline) Consume(_ context.Context, e event.DomainEvent) error {
	broadcast, ok := e.(event.MessageBroadcast)
	if !ok {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = append(t.messages, broadcast.Message)
	if t.capacity > 0 && len(t.messages) > t.capacity {
		t.messages = t.messages[len(t.messages)-t.capacity:]
	}
	return nil
}

// Recent returns the retained window, oldest first.
func (t *Timeline) Recent() []domain.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return lo.Map(t.messages, func(message domain.Message, _ int) domain.Message {
		return message
	})
}
