package audit

import (
	"context"
	"sync"
)

// DefaultCapacity bounds the in-memory store.
const DefaultCapacity = 256

// MemoryStore keeps the most recent events in a ring buffer.
type MemoryStore struct {
	mu     sync.Mutex
	events []Event
	next   int
	full   bool
}

// Verify MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a ring holding up to capacity events.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MemoryStore{events: make([]Event, capacity)}
}

// Record stores a copy of e, evicting the oldest event when full.
func (s *MemoryStore) Record(ctx context.Context, e *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events[s.next] = *e
	s.next = (s.next + 1) % len(s.events)
	if s.next == 0 {
		s.full = true
	}
	return nil
}

// Recent returns up to limit events, newest first. A limit <= 0 returns all.
func (s *MemoryStore) Recent(ctx context.Context, limit int) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.next
	if s.full {
		n = len(s.events)
	}
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]Event, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (s.next - i + len(s.events)) % len(s.events)
		out = append(out, s.events[idx])
	}
	return out, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
