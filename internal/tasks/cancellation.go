package tasks

import "sync"

// CancellationSet holds the ids of jobs a caller asked to cancel.
//
// It lives only as long as the [Orchestrator]; the durable cancelled status in the
// [JobStore] is authoritative.
type CancellationSet struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

// NewCancellationSet creates an empty set.
func NewCancellationSet() *CancellationSet {
	return &CancellationSet{ids: make(map[string]struct{})}
}

func (s *CancellationSet) Add(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids[id] = struct{}{}
}

func (s *CancellationSet) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ids, id)
}

func (s *CancellationSet) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}

func (s *CancellationSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}
