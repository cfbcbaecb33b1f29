package bridge

import "sync"

// seenSet is a bounded duplicate guard for staff-platform message ids. The
// upstream webhook redelivers updates on timeout; without this guard every
// redelivery would produce another transcript entry.
type seenSet struct {
	mu    sync.Mutex
	cap   int
	order []string
	in    map[string]struct{}
}

func newSeenSet(capacity int) *seenSet {
	return &seenSet{
		cap: capacity,
		in:  make(map[string]struct{}, capacity),
	}
}

// observe records id and reports whether this is its first sighting.
func (s *seenSet) observe(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.in[id]; dup {
		return false
	}
	if len(s.order) >= s.cap {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.in, oldest)
	}
	s.in[id] = struct{}{}
	s.order = append(s.order, id)
	return true
}
