package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	relayerrors "chat-relay/errors"
	"sort"
	"sync"
	"time"
)

type sessionEntry struct {
	name        string
	sink        contract.EventSink
	connectedAt time.Time
	suspended   bool
	suspendedAt time.Time
	dropped     bool
}

var _ contract.IRegistry = (*Registry)(nil)

// Registry owns every live session for the lifetime of its connection:
// sink, display identity, suspension state. All access goes through one
// RWMutex; nothing outside this type touches the session map.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*sessionEntry
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*sessionEntry)}
}

// Subscribe registers a connecting session. It starts receiving broadcasts
// immediately but stays out of the presence set until it announces a name.
func (r *Registry) Subscribe(sessionID string, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sessionID] = &sessionEntry{sink: sink, connectedAt: time.Now().UTC()}
}

// Announce records a join or rename. Returns whether the presence set
// actually changed, so callers can skip redundant rebroadcasts.
func (r *Registry) Announce(sessionID, name string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.sessions[sessionID]
	if !ok {
		return false, relayerrors.ErrUnknownSession
	}
	if entry.name == name {
		return false, nil
	}
	entry.name = name
	return true, nil
}

// Suspend parks a session whose transport dropped while its resume window is
// open. The sink keeps receiving broadcasts into its buffer; the session
// leaves the presence set. Returns whether presence changed.
func (r *Registry) Suspend(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.sessions[sessionID]
	if !ok || entry.suspended {
		return false
	}
	entry.suspended = true
	entry.suspendedAt = time.Now().UTC()
	return entry.name != ""
}

// Resume reactivates a suspended session and returns its name. It fails
// closed: a session whose buffer overflowed while parked cannot resume,
// because the dropped events would be lost silently.
func (r *Registry) Resume(sessionID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.sessions[sessionID]
	if !ok {
		return "", relayerrors.ErrUnknownSession
	}
	if !entry.suspended {
		return "", relayerrors.ErrSessionResumed
	}
	if entry.dropped {
		return "", relayerrors.ErrBufferOverflow
	}
	entry.suspended = false
	entry.suspendedAt = time.Time{}
	return entry.name, nil
}

// Remove deletes a session. Idempotent: removing an unknown session is a
// no-op. Returns whether the presence set changed.
func (r *Registry) Remove(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.sessions[sessionID]
	if !ok {
		return false
	}
	delete(r.sessions, sessionID)
	return entry.name != "" && !entry.suspended
}

// MarkDropped records that a session's sink lost at least one event.
func (r *Registry) MarkDropped(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.sessions[sessionID]; ok {
		entry.dropped = true
	}
}

// Author resolves the display identity used on persisted messages. Sessions
// that never announced fall back to their opaque session ID.
func (r *Registry) Author(sessionID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.sessions[sessionID]
	if !ok {
		return "", false
	}
	if entry.name == "" {
		return sessionID, true
	}
	return entry.name, true
}

// Recipients returns every registered sink except the excluded session.
// Suspended sessions are included: their buffer is what a later resume
// replays from.
func (r *Registry) Recipients(excludeSessionID string) []contract.Recipient {
	r.mu.RLock()
	defer r.mu.RUnlock()
	recipients := make([]contract.Recipient, 0, len(r.sessions))
	for sessionID, entry := range r.sessions {
		if sessionID == excludeSessionID {
			continue
		}
		recipients = append(recipients, contract.Recipient{SessionID: sessionID, Sink: entry.sink})
	}
	return recipients
}

func (r *Registry) Sink(sessionID string) (contract.EventSink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return entry.sink, true
}

// Presence recomputes the derived presence set: every announced,
// non-suspended session, ordered by connection time for a stable view.
func (r *Registry) Presence() []domain.PresenceEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	type row struct {
		entry       domain.PresenceEntry
		connectedAt time.Time
	}
	rows := make([]row, 0, len(r.sessions))
	for sessionID, entry := range r.sessions {
		if entry.name == "" || entry.suspended {
			continue
		}
		rows = append(rows, row{
			entry:       domain.PresenceEntry{SessionID: sessionID, Name: entry.name},
			connectedAt: entry.connectedAt,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].connectedAt.Equal(rows[j].connectedAt) {
			return rows[i].entry.SessionID < rows[j].entry.SessionID
		}
		return rows[i].connectedAt.Before(rows[j].connectedAt)
	})

	entries := make([]domain.PresenceEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, r.entry)
	}
	return entries
}

// ExpiredSuspended lists suspended sessions parked for longer than ttl.
func (r *Registry) ExpiredSuspended(ttl time.Duration) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cutoff := time.Now().UTC().Add(-ttl)
	var expired []string
	for sessionID, entry := range r.sessions {
		if entry.suspended && entry.suspendedAt.Before(cutoff) {
			expired = append(expired, sessionID)
		}
	}
	return expired
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
