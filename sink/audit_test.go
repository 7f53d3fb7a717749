package sink

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func Test_Audit_Writes_One_Line_Per_Broadcast(t *testing.T) {
	req := require.New(t)
	var out strings.Builder
	audit := NewAuditSink(&out, slog.Default())

	// Given two broadcasts and an unrelated event
	first := domain.Message{ID: 1, Author: "alice", Content: "hello", CreatedAt: time.Now().UTC()}
	second := domain.Message{ID: 2, Author: "bob", Content: "hi", CreatedAt: time.Now().UTC()}
	req.NoError(audit.Consume(context.Background(), event.MessageBroadcast{Message: first}))
	req.NoError(audit.Consume(context.Background(), event.TypingChanged{Author: "alice", Active: true}))
	req.NoError(audit.Consume(context.Background(), event.MessageBroadcast{Message: second}))

	// Then only the broadcasts are on disk, decodable line by line
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	req.Len(lines, 2)

	var decoded domain.Message
	req.NoError(json.Unmarshal([]byte(lines[0]), &decoded))
	req.Equal(uint64(1), decoded.ID)
	req.Equal("alice", decoded.Author)

	req.NoError(json.Unmarshal([]byte(lines[1]), &decoded))
	req.Equal(uint64(2), decoded.ID)
}
