package vectorstore

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrUnavailable means the persisted store cannot be reached. Fatal for the
// current operation; no partial retry happens below this layer.
var ErrUnavailable = errors.New("vectorstore: index unavailable")

// ErrDimensionMismatch means a query vector's dimensionality disagrees with
// the stored vectors, which signals an embedding-model change since the last
// full rebuild. Callers should trigger a full reindex rather than attempt
// partial recovery.
var ErrDimensionMismatch = errors.New("vectorstore: vector dimension mismatch")

// Entry is an embedding vector plus the chunk text and metadata, stored
// under the chunk's stable identifier. Upserting an Entry replaces any prior
// entry with the same ID.
type Entry struct {
	ID         uuid.UUID
	DocumentID string
	ChunkIndex int
	Content    string
	Embedding  []float32
}

// Candidate is one similarity-search hit, before filtering and dedup.
type Candidate struct {
	ID         uuid.UUID
	DocumentID string
	ChunkIndex int
	Content    string
	Score      float64
}

// Store is the persisted collection keyed by chunk identifier.
// Query returns the top k candidates by descending similarity in a
// deterministic order (ties resolved by insertion order).
type Store interface {
	Upsert(ctx context.Context, entries []Entry) error
	Delete(ctx context.Context, ids []uuid.UUID) error
	Query(ctx context.Context, vector []float32, k int) ([]Candidate, error)
	Count(ctx context.Context) (int, error)
}
