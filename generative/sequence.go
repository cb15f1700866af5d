package generative

import "sync"

// Sequence hands out monotonically increasing numbers per key so that a
// late enrichment result can be recognised as stale and dropped.
type Sequence struct {
	mu   sync.Mutex
	last map[string]uint64
}

// NewSequence returns an empty sequence tracker.
func NewSequence() *Sequence {
	return &Sequence{last: make(map[string]uint64)}
}

// Next advances and returns the sequence number for key.
func (s *Sequence) Next(key string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last[key]++
	return s.last[key]
}

// IsCurrent reports whether n is still the latest number issued for key.
func (s *Sequence) IsCurrent(key string, n uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last[key] == n
}

// Forget drops the counter for key.
func (s *Sequence) Forget(key string) {
	s.mu.Lock()
	delete(s.last, key)
	s.mu.Unlock()
}
