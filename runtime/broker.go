// Package runtime hosts the delivery engine: session registry, broker and
// supervised background workers. It orchestrates the system without
// containing storage or transport logic.
package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	relayerrors "chat-relay/errors"
	"chat-relay/moderation"
	"chat-relay/observability"
	"context"
	"log/slog"
	"strings"
	"sync"
)

// Broker is the message delivery and reconnection-recovery engine.
//
// One mutex serializes append-then-broadcast across submissions, so no
// session ever observes an order inconsistent with log ID order, and it
// also covers replay-then-subscribe, which is what makes recovery gap-free
// and duplicate-free relative to the live stream.
//
// Acknowledgements travel through the submitter's own sink rather than the
// return path, so exactly one goroutine writes to each connection and
// per-session ordering is the sink's FIFO ordering.
// Static assertion of the transport-facing contract.
var _ contract.IBroker = (*Broker)(nil)

type Broker struct {
	mu        sync.Mutex
	log       *slog.Logger
	registry  contract.IRegistry
	messages  contract.IMessageLog
	moderator *moderation.Moderator
	stats     *observability.Stats
	telemetry chan event.DomainEvent
}

func NewBroker(
	log *slog.Logger,
	registry contract.IRegistry,
	messages contract.IMessageLog,
	moderator *moderation.Moderator,
	stats *observability.Stats,
	telemetryBuffer int,
) *Broker {
	return &Broker{
		log:       log,
		registry:  registry,
		messages:  messages,
		moderator: moderator,
		stats:     stats,
		telemetry: make(chan event.DomainEvent, telemetryBuffer),
	}
}

// Telemetry exposes the observability stream drained by the telemetry worker.
func (b *Broker) Telemetry() <-chan event.DomainEvent {
	return b.telemetry
}

// Submit persists one submission and fans it out.
//
// Outcomes mirror the append contract: a duplicate retry yields
// Ack{duplicate} referencing the original ID with no re-broadcast; an append
// failure yields an error and NO acknowledgement anywhere, leaving the
// client free to retry with the same offset. On success the ack event is
// queued to the submitter and the message to everyone else, atomically with
// respect to other submissions.
func (b *Broker) Submit(ctx context.Context, sessionID, content, clientOffset string) (domain.Ack, error) {
	if strings.TrimSpace(content) == "" {
		return domain.Ack{}, relayerrors.ErrEmptyContent
	}
	author, ok := b.registry.Author(sessionID)
	if !ok {
		return domain.Ack{}, relayerrors.ErrUnknownSession
	}
	if b.moderator != nil {
		content = b.moderator.Censor(content)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	message, duplicate, err := b.messages.Append(author, content, clientOffset)
	if err != nil {
		b.stats.IncrAppendFailures()
		b.log.Error("append failed, submission left unacknowledged",
			"session_id", sessionID,
			"client_offset", clientOffset,
			"error", err)
		return domain.Ack{}, err
	}

	if duplicate {
		b.stats.IncrDuplicates()
		ack := domain.Ack{Status: domain.AckDuplicate, ID: message.ID}
		b.deliverToSession(ctx, sessionID, event.SubmissionAcked{Status: ack.Status, ID: ack.ID})
		return ack, nil
	}

	b.stats.IncrAccepted()
	ack := domain.Ack{Status: domain.AckSuccess, ID: message.ID}
	b.deliverToSession(ctx, sessionID, event.SubmissionAcked{Status: ack.Status, ID: ack.ID})

	broadcast := event.MessageBroadcast{Message: message}
	for _, recipient := range b.registry.Recipients(sessionID) {
		b.deliver(ctx, recipient, broadcast)
	}
	b.emitTelemetry(broadcast)
	return ack, nil
}

// Attach connects a fresh logical session: replay first, then subscribe,
// under the same lock that serializes submissions. Every message with
// ID > sinceID present at attach time reaches the sink before any live
// broadcast, in ascending order. sinceID 0 replays the whole history.
// A failed replay query is non-fatal: the session still connects and will
// re-request with an updated offset on its next reconnect.
func (b *Broker) Attach(ctx context.Context, sessionID string, sink contract.EventSink, sinceID uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	missed, err := b.messages.QuerySince(sinceID)
	if err != nil {
		b.stats.IncrReplayFailures()
		b.log.Error("replay query failed, session connects without catch-up",
			"session_id", sessionID,
			"since_id", sinceID,
			"error", err)
	} else {
		recipient := contract.Recipient{SessionID: sessionID, Sink: sink}
		for _, message := range missed {
			b.deliver(ctx, recipient, event.MessageBroadcast{Message: message})
		}
		b.stats.IncrReplays()
	}

	b.registry.Subscribe(sessionID, sink)
}

// Resume reattaches a suspended session whose transport restored in-flight
// state; server-side replay is skipped entirely. Fails when the resume
// window closed or the parked buffer overflowed, in which case the caller
// falls back to a fresh Attach with the client-declared offset.
func (b *Broker) Resume(ctx context.Context, sessionID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	name, err := b.registry.Resume(sessionID)
	if err != nil {
		return err
	}
	b.stats.IncrResumes()
	if name != "" {
		b.broadcastPresence(ctx)
	}
	return nil
}

// Announce handles join and rename. The full presence set is recomputed and
// rebroadcast to every session, the announcer included.
func (b *Broker) Announce(ctx context.Context, sessionID, name string) error {
	if strings.TrimSpace(name) == "" {
		return relayerrors.ErrInvalidIdentity
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	changed, err := b.registry.Announce(sessionID, name)
	if err != nil {
		return err
	}
	if changed {
		b.broadcastPresence(ctx)
	}
	return nil
}

// Typing relays a transient indicator to all sessions except the sender.
// Best-effort: never persisted, no ordering guarantee relative to messages.
func (b *Broker) Typing(ctx context.Context, sessionID string, active bool) {
	author, ok := b.registry.Author(sessionID)
	if !ok {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	indicator := event.TypingChanged{Author: author, Active: active}
	for _, recipient := range b.registry.Recipients(sessionID) {
		b.deliver(ctx, recipient, indicator)
	}
}

// Suspend parks a session for the resume window: it leaves the presence set
// but keeps receiving broadcasts into its buffer.
func (b *Broker) Suspend(ctx context.Context, sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.registry.Suspend(sessionID) {
		b.broadcastPresence(ctx)
	}
}

// Drop removes a session for good. Idempotent: a second notification for an
// already-removed session is a no-op, not an error.
func (b *Broker) Drop(ctx context.Context, sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.registry.Remove(sessionID) {
		b.broadcastPresence(ctx)
	}
}

// broadcastPresence pushes the recomputed presence set to every session.
// Callers hold b.mu.
func (b *Broker) broadcastPresence(ctx context.Context) {
	update := event.PresenceUpdated{Entries: b.registry.Presence()}
	for _, recipient := range b.registry.Recipients("") {
		b.deliver(ctx, recipient, update)
	}
	b.emitTelemetry(update)
}

func (b *Broker) deliverToSession(ctx context.Context, sessionID string, e event.DomainEvent) {
	sink, ok := b.registry.Sink(sessionID)
	if !ok {
		return
	}
	b.deliver(ctx, contract.Recipient{SessionID: sessionID, Sink: sink}, e)
}

// deliver pushes one event to one recipient. A full buffer is recorded
// against that session only; it never stalls the sender or other sessions.
func (b *Broker) deliver(ctx context.Context, recipient contract.Recipient, e event.DomainEvent) {
	if err := recipient.Sink.Consume(ctx, e); err != nil {
		b.stats.IncrDropped()
		b.registry.MarkDropped(recipient.SessionID)
		b.log.Warn("delivery failed for one recipient",
			"session_id", recipient.SessionID,
			"event", e.EventKind(),
			"error", err)
		return
	}
	b.stats.IncrBroadcast()
}

func (b *Broker) emitTelemetry(e event.DomainEvent) {
	select {
	case b.telemetry <- e:
	default:
		b.log.Debug("telemetry event lost")
	}
}
