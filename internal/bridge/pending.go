package bridge

import (
	"sync"
	"time"

	"github.com/novapulse/pwa-bridge/internal/identity"
)

type pendingNote struct {
	identity identity.Identity
	armedAt  time.Time
}

// NoteCaptures holds at most one armed note capture per thread. Arming again
// before the first capture is consumed simply rebinds it.
//
// A zero ttl means entries never expire, matching the original behavior; a
// positive ttl drops stale entries at consume time so the triggering message
// falls through to normal relay.
type NoteCaptures struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	byThread map[string]pendingNote
}

func NewNoteCaptures(ttl time.Duration) *NoteCaptures {
	return &NoteCaptures{
		ttl:      ttl,
		now:      time.Now,
		byThread: make(map[string]pendingNote),
	}
}

func (c *NoteCaptures) Arm(threadID string, id identity.Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byThread[threadID] = pendingNote{identity: id, armedAt: c.now()}
}

// Armed reports whether a live capture exists without consuming it.
func (c *NoteCaptures) Armed(threadID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.byThread[threadID]
	if !ok {
		return false
	}
	if c.expired(p) {
		delete(c.byThread, threadID)
		return false
	}
	return true
}

// Consume atomically takes and deletes the capture for threadID, so two
// concurrent staff messages can never both complete the same capture.
func (c *NoteCaptures) Consume(threadID string) (identity.Identity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.byThread[threadID]
	if !ok {
		return identity.Identity{}, false
	}
	delete(c.byThread, threadID)
	if c.expired(p) {
		return identity.Identity{}, false
	}
	return p.identity, true
}

func (c *NoteCaptures) expired(p pendingNote) bool {
	return c.ttl > 0 && c.now().Sub(p.armedAt) > c.ttl
}
