package bridge

import "sync"

// Escrow is the single-slot-per-room pending paid-content registry. Locking
// again overwrites the previous entry (last write wins, no queueing);
// unlocking is an atomic take so concurrent unlocks for the same room yield
// at most one winner.
type Escrow struct {
	mu     sync.Mutex
	byRoom map[string]PaidContent
}

func NewEscrow() *Escrow {
	return &Escrow{byRoom: make(map[string]PaidContent)}
}

func (e *Escrow) Lock(room string, content PaidContent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.byRoom[room] = content
}

func (e *Escrow) Unlock(room string) (PaidContent, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	content, ok := e.byRoom[room]
	if ok {
		delete(e.byRoom, room)
	}
	return content, ok
}
