// Package observability aggregates delivery counters and process health for
// the /stats endpoint and the badger inspect dashboard.
package observability

import (
	"sync"
	"sync/atomic"
	"time"
)

// StatsSnapshot is the JSON view served to operators.
type StatsSnapshot struct {
	MessagesAccepted  uint64  `json:"messages_accepted"`
	DuplicateRetries  uint64  `json:"duplicate_retries"`
	AppendFailures    uint64  `json:"append_failures"`
	EventsBroadcast   uint64  `json:"events_broadcast"`
	DroppedDeliveries uint64  `json:"dropped_deliveries"`
	ReplaysServed     uint64  `json:"replays_served"`
	ReplayFailures    uint64  `json:"replay_failures"`
	ResumesServed     uint64  `json:"resumes_served"`
	SessionsConnected int     `json:"sessions_connected"`
	ProcessRSSMb      uint64  `json:"process_rss_mb"`
	ProcessCPUPercent float64 `json:"process_cpu_percent"`
	CollectedAt       string  `json:"collected_at"`
}

// Stats is safe for concurrent use: hot-path counters are atomics, the
// merged snapshot sits behind an RWMutex and is refreshed by the heartbeat
// worker rather than on every read.
type Stats struct {
	messagesAccepted  atomic.Uint64
	duplicateRetries  atomic.Uint64
	appendFailures    atomic.Uint64
	eventsBroadcast   atomic.Uint64
	droppedDeliveries atomic.Uint64
	replaysServed     atomic.Uint64
	replayFailures    atomic.Uint64
	resumesServed     atomic.Uint64

	mu     sync.RWMutex
	latest StatsSnapshot
}

func NewStats() *Stats {
	return &Stats{}
}

func (s *Stats) IncrAccepted()        { s.messagesAccepted.Add(1) }
func (s *Stats) IncrDuplicates()      { s.duplicateRetries.Add(1) }
func (s *Stats) IncrAppendFailures()  { s.appendFailures.Add(1) }
func (s *Stats) IncrBroadcast()       { s.eventsBroadcast.Add(1) }
func (s *Stats) IncrDropped()         { s.droppedDeliveries.Add(1) }
func (s *Stats) IncrReplays()         { s.replaysServed.Add(1) }
func (s *Stats) IncrReplayFailures()  { s.replayFailures.Add(1) }
func (s *Stats) IncrResumes()         { s.resumesServed.Add(1) }

// Refresh folds the hot counters and externally sampled values into the
// published snapshot. Called periodically by the heartbeat worker.
func (s *Stats) Refresh(sessions int, rssBytes uint64, cpuPercent float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = StatsSnapshot{
		MessagesAccepted:  s.messagesAccepted.Load(),
		DuplicateRetries:  s.duplicateRetries.Load(),
		AppendFailures:    s.appendFailures.Load(),
		EventsBroadcast:   s.eventsBroadcast.Load(),
		DroppedDeliveries: s.droppedDeliveries.Load(),
		ReplaysServed:     s.replaysServed.Load(),
		ReplayFailures:    s.replayFailures.Load(),
		ResumesServed:     s.resumesServed.Load(),
		SessionsConnected: sessions,
		ProcessRSSMb:      rssBytes / 1024 / 1024,
		ProcessCPUPercent: cpuPercent,
		CollectedAt:       time.Now().UTC().Format(time.RFC3339),
	}
}

func (s *Stats) Latest() StatsSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// Live returns counter values without waiting for the next heartbeat
// refresh. Used by tests and the debug dashboard.
func (s *Stats) Live() StatsSnapshot {
	return StatsSnapshot{
		MessagesAccepted:  s.messagesAccepted.Load(),
		DuplicateRetries:  s.duplicateRetries.Load(),
		AppendFailures:    s.appendFailures.Load(),
		EventsBroadcast:   s.eventsBroadcast.Load(),
		DroppedDeliveries: s.droppedDeliveries.Load(),
		ReplaysServed:     s.replaysServed.Load(),
		ReplayFailures:    s.replayFailures.Load(),
		ResumesServed:     s.resumesServed.Load(),
	}
}
