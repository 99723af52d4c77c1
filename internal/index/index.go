package index

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/askdocs/askdocs/internal/vectorstore"
)

// SearchOptions carries the knobs for one similarity search.
type SearchOptions struct {
	TopK          int
	MinSimilarity float64
	MinResults    int  // below this count the fallback path activates
	Fallback      bool // retry without the similarity floor
	FallbackLimit int  // cap on results returned by the fallback path
}

// Result is one ranked evidence chunk.
type Result struct {
	ChunkID    uuid.UUID `json:"chunk_id"`
	DocumentID string    `json:"document_id"`
	ChunkIndex int       `json:"chunk_index"`
	Content    string    `json:"content"`
	Score      float64   `json:"score"`
}

// QueryResult is the ordered, deduplicated evidence set for one query.
// Results are unique by chunk identifier, sorted by descending similarity
// with ties kept in insertion order, so two identical searches return
// identical orderings.
type QueryResult struct {
	Results  []Result `json:"results"`
	Fallback bool     `json:"fallback"` // similarity floor was abandoned
}

func (q *QueryResult) Empty() bool {
	return q == nil || len(q.Results) == 0
}

// VectorIndex owns the persisted chunk-to-vector mapping and resolves
// similarity queries against it.
type VectorIndex struct {
	store vectorstore.Store
}

func New(store vectorstore.Store) *VectorIndex {
	return &VectorIndex{store: store}
}

// Upsert replaces any existing entries sharing the same identifiers.
func (ix *VectorIndex) Upsert(ctx context.Context, entries []vectorstore.Entry) error {
	if err := ix.store.Upsert(ctx, entries); err != nil {
		return fmt.Errorf("index upsert: %w", err)
	}
	return nil
}

// Delete removes entries by identifier; absent identifiers are no-ops.
func (ix *VectorIndex) Delete(ctx context.Context, ids []uuid.UUID) error {
	if err := ix.store.Delete(ctx, ids); err != nil {
		return fmt.Errorf("index delete: %w", err)
	}
	return nil
}

func (ix *VectorIndex) Count(ctx context.Context) (int, error) {
	return ix.store.Count(ctx)
}

// Search runs the similarity query and applies the retrieval policy:
// top-k, similarity floor, then a single bounded fallback retry against the
// unfiltered top-k when filtering leaves too little. An overly strict
// threshold must never silently hide a corpus that plainly has content; an
// empty index, though, legitimately returns an empty result.
func (ix *VectorIndex) Search(ctx context.Context, vector []float32, opts SearchOptions) (*QueryResult, error) {
	if opts.TopK <= 0 {
		opts.TopK = 10
	}
	if opts.MinResults <= 0 {
		opts.MinResults = 1
	}

	candidates, err := ix.store.Query(ctx, vector, opts.TopK)
	if err != nil {
		return nil, fmt.Errorf("index search: %w", err)
	}

	deduped := dedupe(candidates)

	filtered := make([]Result, 0, len(deduped))
	for _, r := range deduped {
		if r.Score >= opts.MinSimilarity {
			filtered = append(filtered, r)
		}
	}

	if len(filtered) >= opts.MinResults || !opts.Fallback {
		return &QueryResult{Results: filtered}, nil
	}

	// single retry, not a loop: the unfiltered top-k, capped
	fallback := deduped
	if opts.FallbackLimit > 0 && len(fallback) > opts.FallbackLimit {
		fallback = fallback[:opts.FallbackLimit]
	}
	return &QueryResult{Results: fallback, Fallback: len(fallback) > 0}, nil
}

// dedupe collapses candidates that carry the same document and content,
// which defends against duplicate ingestion. Candidates arrive in descending
// score order, so the first instance seen is the highest scoring one.
func dedupe(candidates []vectorstore.Candidate) []Result {
	seen := make(map[string]bool, len(candidates))
	seenID := make(map[uuid.UUID]bool, len(candidates))

	out := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		key := c.DocumentID + "\x00" + c.Content
		if seen[key] || seenID[c.ID] {
			continue
		}
		seen[key] = true
		seenID[c.ID] = true
		out = append(out, Result{
			ChunkID:    c.ID,
			DocumentID: c.DocumentID,
			ChunkIndex: c.ChunkIndex,
			Content:    c.Content,
			Score:      c.Score,
		})
	}
	return out
}
