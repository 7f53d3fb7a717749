package workers

import (
	"chat-relay/contract"
	"context"
	"log/slog"
	"time"
)

var _ contract.Worker = (*ReaperWorker)(nil)

// ReaperWorker closes the resume window: suspended sessions parked for
// longer than the TTL are dropped for good, which frees their buffer and
// settles the presence set.
type ReaperWorker struct {
	log      *slog.Logger
	registry contract.IRegistry
	broker   contract.IBroker
	ttl      time.Duration
	interval time.Duration
}

func NewReaperWorker(log *slog.Logger, registry contract.IRegistry, broker contract.IBroker, ttl, interval time.Duration) *ReaperWorker {
	return &ReaperWorker{log: log, registry: registry, broker: broker, ttl: ttl, interval: interval}
}

func (w *ReaperWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Stopping reaper")
			return nil
		case <-ticker.C:
			for _, sessionID := range w.registry.ExpiredSuspended(w.ttl) {
				w.log.Info("Resume window expired, dropping session", "session_id", sessionID)
				w.broker.Drop(ctx, sessionID)
			}
		}
	}
}
