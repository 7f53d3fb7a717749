package ws

import (
	"sync"
	"time"
)

// parkedSession is the server-side half of connection recovery: the session
// keeps its registry slot and its sink keeps buffering while the transport
// is gone.
type parkedSession struct {
	sessionID string
	sink      *Sink
	parkedAt  time.Time
}

// resumeCache maps single-use resume tokens to parked sessions. The broker's
// reaper owns the authoritative expiry; the TTL here only keeps the cache
// from serving tokens the reaper is about to invalidate.
type resumeCache struct {
	mu     sync.Mutex
	ttl    time.Duration
	parked map[string]parkedSession
}

func newResumeCache(ttl time.Duration) *resumeCache {
	return &resumeCache{ttl: ttl, parked: make(map[string]parkedSession)}
}

// Park files the live buffer under a fresh token and sweeps entries whose
// window already closed.
func (c *resumeCache) Park(token, sessionID string, sink *Sink) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, entry := range c.parked {
		if now.Sub(entry.parkedAt) > c.ttl {
			delete(c.parked, key)
		}
	}
	c.parked[token] = parkedSession{sessionID: sessionID, sink: sink, parkedAt: now}
}

// Take redeems a token. Tokens are single-use; an expired window or a buffer
// that lost events is not redeemable and the caller falls back to replay.
func (c *resumeCache) Take(token string) (parkedSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.parked[token]
	if !ok {
		return parkedSession{}, false
	}
	delete(c.parked, token)

	if time.Since(entry.parkedAt) > c.ttl || entry.sink.Lost() {
		return parkedSession{}, false
	}
	return entry, true
}
