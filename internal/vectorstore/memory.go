package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is a brute-force cosine-similarity store. It backs tests and
// the single-process local mode where no postgres is available.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]Entry
	order   []uuid.UUID // insertion order, kept across upserts for stable ties
	dims    int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[uuid.UUID]Entry)}
}

func (s *MemoryStore) Upsert(_ context.Context, entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entries {
		if s.dims == 0 {
			s.dims = len(e.Embedding)
		}
		if len(e.Embedding) != s.dims {
			return fmt.Errorf("%w: got %d, store holds %d", ErrDimensionMismatch, len(e.Embedding), s.dims)
		}
		if _, exists := s.entries[e.ID]; !exists {
			s.order = append(s.order, e.ID)
		}
		s.entries[e.ID] = e
	}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, ids []uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		if _, exists := s.entries[id]; !exists {
			continue
		}
		delete(s.entries, id)
		for i, o := range s.order {
			if o == id {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
	return nil
}

func (s *MemoryStore) Query(_ context.Context, vector []float32, k int) ([]Candidate, error) {
	if k <= 0 {
		k = 10
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.entries) == 0 {
		return nil, nil
	}
	if len(vector) != s.dims {
		return nil, fmt.Errorf("%w: query has %d, store holds %d", ErrDimensionMismatch, len(vector), s.dims)
	}

	out := make([]Candidate, 0, len(s.order))
	for _, id := range s.order {
		e := s.entries[id]
		out = append(out, Candidate{
			ID:         e.ID,
			DocumentID: e.DocumentID,
			ChunkIndex: e.ChunkIndex,
			Content:    e.Content,
			Score:      cosine(vector, e.Embedding),
		})
	}

	// stable: equal scores keep insertion order
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

// IDs returns every stored chunk identifier, for tests asserting identifier
// set diffs across reindex passes.
func (s *MemoryStore) IDs() []uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]uuid.UUID, len(s.order))
	copy(out, s.order)
	return out
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
