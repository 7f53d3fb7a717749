package workers

import (
	"chat-relay/contract"
	"chat-relay/domain/event"
	"context"
	"log/slog"
)

var _ contract.Worker = (*TelemetryWorker)(nil)

// TelemetryWorker drains the broker's observability stream into in-process
// consumers (timeline projection, counters). Best-effort fan-out with no
// delivery, ordering, durability or retry guarantees: it serves dashboards
// and side effects, never core delivery.
type TelemetryWorker struct {
	log    *slog.Logger
	events <-chan event.DomainEvent
	sinks  []contract.EventSink
}

func NewTelemetryWorker(log *slog.Logger, events <-chan event.DomainEvent, sinks ...contract.EventSink) *TelemetryWorker {
	return &TelemetryWorker{log: log, events: events, sinks: sinks}
}

func (w *TelemetryWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping telemetry fan-out")
			return nil
		case evt, ok := <-w.events:
			if !ok {
				return nil
			}
			w.Fanout(ctx, evt)
		}
	}
}

// Fanout delivers one event to every telemetry sink.
func (w *TelemetryWorker) Fanout(ctx context.Context, evt event.DomainEvent) {
	for _, sink := range w.sinks {
		if err := sink.Consume(ctx, evt); err != nil {
			w.log.Debug("telemetry sink rejected event", "error", err)
		}
	}
}
