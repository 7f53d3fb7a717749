// Package sink hosts telemetry consumers whose side effects live outside
// the delivery path. Losing an event here never affects clients.
package sink

import (
	"chat-relay/domain/event"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// AuditSink appends every broadcast message as one JSON line. It exists for
// operators grepping through what actually went out, not for replay; the
// badger log stays the source of truth.
type AuditSink struct {
	mu  sync.Mutex
	out io.Writer
	log *slog.Logger
}

func NewAuditSink(out io.Writer, log *slog.Logger) *AuditSink {
	return &AuditSink{out: out, log: log}
}

func (s *AuditSink) Consume(_ context.Context, e event.DomainEvent) error {
	switch evt := e.(type) {
	case event.MessageBroadcast:
		line, err := json.Marshal(evt.Message)
		if err != nil {
			return err
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		_, err = fmt.Fprintf(s.out, "%s\n", line)
		return err
	default:
		s.log.Debug(fmt.Sprintf("Not audited event : %v", evt))
		return nil
	}
}
