package runtime

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/observability"
	"chat-relay/repositories"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

// recordingSink collects everything the broker delivers, in order.
type recordingSink struct {
	mu     sync.Mutex
	events []event.DomainEvent
}

func (s *recordingSink) Consume(_ context.Context, e event.DomainEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) all() []event.DomainEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]event.DomainEvent(nil), s.events...)
}

func (s *recordingSink) messages() []domain.Message {
	var messages []domain.Message
	for _, e := range s.all() {
		if broadcast, ok := e.(event.MessageBroadcast); ok {
			messages = append(messages, broadcast.Message)
		}
	}
	return messages
}

func (s *recordingSink) acks() []event.SubmissionAcked {
	var acks []event.SubmissionAcked
	for _, e := range s.all() {
		if ack, ok := e.(event.SubmissionAcked); ok {
			acks = append(acks, ack)
		}
	}
	return acks
}

// fullSink simulates a dead or hopelessly slow recipient.
type fullSink struct{}

func (fullSink) Consume(_ context.Context, _ event.DomainEvent) error {
	return fmt.Errorf("buffer full")
}

func newTestBroker(t *testing.T) *Broker {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	messages := repositories.NewMessageLog(db, slog.Default())
	return NewBroker(slog.Default(), NewRegistry(), messages, nil, observability.NewStats(), 64)
}

func attach(t *testing.T, broker *Broker, sessionID, name string) *recordingSink {
	t.Helper()
	sink := &recordingSink{}
	broker.Attach(context.Background(), sessionID, sink, 0)
	require.NoError(t, broker.Announce(context.Background(), sessionID, name))
	return sink
}

func Test_Submit_Broadcasts_To_All_But_Sender(t *testing.T) {
	req := require.New(t)
	broker := newTestBroker(t)
	ctx := context.Background()

	sinkA := attach(t, broker, "session-a", "alice")
	sinkB := attach(t, broker, "session-b", "bob")
	sinkC := attach(t, broker, "session-c", "clara")

	ack, err := broker.Submit(ctx, "session-a", "hi", "1")
	req.NoError(err)
	req.Equal(domain.AckSuccess, ack.Status)

	// The sender gets the ack carrying the authoritative ID, no echo
	req.Empty(sinkA.messages())
	acks := sinkA.acks()
	req.Len(acks, 1)
	req.Equal(ack.ID, acks[0].ID)

	// Everyone else gets exactly one copy
	for _, sink := range []*recordingSink{sinkB, sinkC} {
		messages := sink.messages()
		req.Len(messages, 1)
		req.Equal("hi", messages[0].Content)
		req.Equal("alice", messages[0].Author)
		req.Equal(ack.ID, messages[0].ID)
	}
}

func Test_Submit_Sequence_Is_Ordered_By_ID(t *testing.T) {
	req := require.New(t)
	broker := newTestBroker(t)
	ctx := context.Background()

	attach(t, broker, "session-a", "alice")
	sinkB := attach(t, broker, "session-b", "bob")

	for i := 0; i < 5; i++ {
		_, err := broker.Submit(ctx, "session-a", fmt.Sprintf("message %d", i), fmt.Sprintf("off-%d", i))
		req.NoError(err)
	}

	// Receiver observes every message exactly once, ascending ID order
	messages := sinkB.messages()
	req.Len(messages, 5)
	for i := 1; i < len(messages); i++ {
		req.Greater(messages[i].ID, messages[i-1].ID)
	}
}

func Test_Submit_Retry_Acks_Without_Rebroadcast(t *testing.T) {
	req := require.New(t)
	broker := newTestBroker(t)
	ctx := context.Background()

	attach(t, broker, "session-a", "alice")
	sinkB := attach(t, broker, "session-b", "bob")

	// Given client A's submission succeeded but its ack was dropped
	first, err := broker.Submit(ctx, "session-a", "hi", "1")
	req.NoError(err)
	req.Equal(domain.AckSuccess, first.Status)

	// When A retries with the same client offset
	second, err := broker.Submit(ctx, "session-a", "hi", "1")
	req.NoError(err)

	// Then the retry is acknowledged as a duplicate of the original
	req.Equal(domain.AckDuplicate, second.Status)
	req.Equal(first.ID, second.ID)

	// And B saw the broadcast exactly once
	req.Len(sinkB.messages(), 1)
}

func Test_Submit_Retry_After_Rename_Is_Still_Deduplicated(t *testing.T) {
	req := require.New(t)
	broker := newTestBroker(t)
	ctx := context.Background()

	attach(t, broker, "session-a", "alice")
	sinkB := attach(t, broker, "session-b", "bob")

	// Given A's submission succeeded but its ack was lost in transit
	first, err := broker.Submit(ctx, "session-a", "hi", "1")
	req.NoError(err)
	req.Equal(domain.AckSuccess, first.Status)

	// When A renames and then retries the same client offset
	req.NoError(broker.Announce(ctx, "session-a", "alicia"))
	second, err := broker.Submit(ctx, "session-a", "hi", "1")
	req.NoError(err)

	// Then the retry still resolves to the original submission
	req.Equal(domain.AckDuplicate, second.Status)
	req.Equal(first.ID, second.ID)

	// And B never saw the message twice
	req.Len(sinkB.messages(), 1)
}

func Test_Submit_Rejects_Empty_Content(t *testing.T) {
	broker := newTestBroker(t)
	attach(t, broker, "session-a", "alice")

	_, err := broker.Submit(context.Background(), "session-a", "   ", "1")
	require.Error(t, err)
}

func Test_Attach_Replays_Strictly_After_Offset(t *testing.T) {
	req := require.New(t)
	broker := newTestBroker(t)
	ctx := context.Background()

	attach(t, broker, "session-a", "alice")
	var lastSeen uint64
	for i := 0; i < 3; i++ {
		ack, err := broker.Submit(ctx, "session-a", fmt.Sprintf("old %d", i), "")
		req.NoError(err)
		lastSeen = ack.ID
	}

	// Two more messages land after the client's last-seen offset
	ackD, err := broker.Submit(ctx, "session-a", "missed one", "")
	req.NoError(err)
	ackE, err := broker.Submit(ctx, "session-a", "missed two", "")
	req.NoError(err)

	// When a session reconnects declaring that offset
	sink := &recordingSink{}
	broker.Attach(ctx, "session-b", sink, lastSeen)

	// Then it receives exactly the later messages, ascending, nothing below
	replayed := sink.messages()
	req.Len(replayed, 2)
	req.Equal(ackD.ID, replayed[0].ID)
	req.Equal(ackE.ID, replayed[1].ID)
}

func Test_Attach_With_Zero_Offset_Replays_History(t *testing.T) {
	req := require.New(t)
	broker := newTestBroker(t)
	ctx := context.Background()

	attach(t, broker, "session-a", "alice")
	for i := 0; i < 3; i++ {
		_, err := broker.Submit(ctx, "session-a", "hello", "")
		req.NoError(err)
	}

	sink := &recordingSink{}
	broker.Attach(ctx, "session-b", sink, 0)
	req.Len(sink.messages(), 3)
}

func Test_Resume_Skips_Replay(t *testing.T) {
	req := require.New(t)
	broker := newTestBroker(t)
	ctx := context.Background()

	attach(t, broker, "session-a", "alice")
	sinkB := attach(t, broker, "session-b", "bob")

	// Given B's transport drops after one message
	_, err := broker.Submit(ctx, "session-a", "before drop", "")
	req.NoError(err)
	broker.Suspend(ctx, "session-b")

	// And a message lands while B is parked
	_, err = broker.Submit(ctx, "session-a", "while parked", "")
	req.NoError(err)

	// When the transport resumes B
	req.NoError(broker.Resume(ctx, "session-b"))

	// Then B holds each message exactly once: the parked buffer caught the
	// in-between message and no server-side replay ran
	messages := sinkB.messages()
	req.Len(messages, 2)
	req.Equal("before drop", messages[0].Content)
	req.Equal("while parked", messages[1].Content)
}

func Test_Presence_Follows_Joins_And_Drops(t *testing.T) {
	req := require.New(t)
	broker := newTestBroker(t)
	ctx := context.Background()

	sinkA := attach(t, broker, "session-a", "alice")
	attach(t, broker, "session-b", "bob")
	attach(t, broker, "session-c", "clara")

	broker.Drop(ctx, "session-c")
	// Idempotent: a second disconnect notification is a no-op
	broker.Drop(ctx, "session-c")

	var lastPresence []domain.PresenceEntry
	for _, e := range sinkA.all() {
		if update, ok := e.(event.PresenceUpdated); ok {
			lastPresence = update.Entries
		}
	}
	req.Len(lastPresence, 2)
	req.Equal("alice", lastPresence[0].Name)
	req.Equal("bob", lastPresence[1].Name)
}

func Test_Typing_Reaches_All_But_Sender_And_Is_Not_Persisted(t *testing.T) {
	req := require.New(t)
	broker := newTestBroker(t)
	ctx := context.Background()

	sinkA := attach(t, broker, "session-a", "alice")
	sinkB := attach(t, broker, "session-b", "bob")

	broker.Typing(ctx, "session-a", true)
	broker.Typing(ctx, "session-a", false)

	var indicators []event.TypingChanged
	for _, e := range sinkB.all() {
		if typing, ok := e.(event.TypingChanged); ok {
			indicators = append(indicators, typing)
		}
	}
	req.Len(indicators, 2)
	req.Equal("alice", indicators[0].Author)
	req.True(indicators[0].Active)
	req.False(indicators[1].Active)

	for _, e := range sinkA.all() {
		_, ok := e.(event.TypingChanged)
		req.False(ok, "sender must not receive its own typing indicator")
	}

	// Replay never includes typing indicators
	sink := &recordingSink{}
	broker.Attach(ctx, "session-c", sink, 0)
	req.Empty(sink.messages())
}

func Test_Slow_Recipient_Does_Not_Stall_Others(t *testing.T) {
	req := require.New(t)
	broker := newTestBroker(t)
	ctx := context.Background()

	attach(t, broker, "session-a", "alice")
	sinkB := attach(t, broker, "session-b", "bob")
	broker.Attach(ctx, "session-dead", fullSink{}, 0)

	ack, err := broker.Submit(ctx, "session-a", "hi", "1")
	req.NoError(err)
	req.Equal(domain.AckSuccess, ack.Status)

	// The healthy recipient still got the message
	req.Len(sinkB.messages(), 1)
}
