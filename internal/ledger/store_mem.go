package ledger

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"
)

// InMemoryStore is a thread-safe, in-memory implementation of Store. It is
// used when no persistent ledger module is configured.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
	index   map[string]int // run id → index in entries
}

// NewInMemoryStore creates an empty in-memory ledger.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{index: make(map[string]int)}
}

// Compile-time interface check.
var _ Store = (*InMemoryStore)(nil)

// Record implements Store.
func (s *InMemoryStore) Record(_ context.Context, e Entry) error {
	if e.RunID == "" {
		return ErrInvalidEntry
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if i, ok := s.index[e.RunID]; ok {
		s.entries[i] = e
		return nil
	}
	s.index[e.RunID] = len(s.entries)
	s.entries = append(s.entries, e)
	return nil
}

// Recent implements Store.
func (s *InMemoryStore) Recent(_ context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	out := slices.Clone(s.entries)
	s.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b Entry) int {
		return cmp.Compare(b.StartedAt.UnixNano(), a.StartedAt.UnixNano())
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Totals implements Store.
func (s *InMemoryStore) Totals(_ context.Context) (Totals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var t Totals
	for _, e := range s.entries {
		t.Runs++
		if e.Failed() {
			t.Failed++
		}
		t.ToolCalls += int64(e.ToolCalls)
		t.TotalTokens += int64(e.TotalTokens)
	}
	return t, nil
}

// Prune implements Store.
func (s *InMemoryStore) Prune(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[:0]
	removed := 0
	for _, e := range s.entries {
		if e.StartedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept

	s.index = make(map[string]int, len(kept))
	for i, e := range kept {
		s.index[e.RunID] = i
	}
	return removed, nil
}

// Len returns the number of stored entries.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
