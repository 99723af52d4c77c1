package vectorstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PgVectorStore persists chunk vectors in postgres with the pgvector
// extension. Cosine distance (<=>) is the native metric; scores are
// reported as 1 - distance.
type PgVectorStore struct {
	db *pgxpool.Pool
}

func NewPgVectorStore(db *pgxpool.Pool) *PgVectorStore {
	return &PgVectorStore{db: db}
}

func (s *PgVectorStore) Upsert(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %w", ErrUnavailable, err)
	}
	defer tx.Rollback(ctx)

	for _, e := range entries {
		_, err := tx.Exec(ctx,
			`INSERT INTO chunks (id, document_id, chunk_index, content, embedding)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (id) DO UPDATE SET document_id = $2, chunk_index = $3, content = $4, embedding = $5`,
			e.ID, e.DocumentID, e.ChunkIndex, e.Content, pgvector.NewVector(e.Embedding),
		)
		if err != nil {
			return classify(fmt.Errorf("upsert chunk %s: %w", e.ID, err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %w", ErrUnavailable, err)
	}
	return nil
}

// Delete removes entries by identifier. Deleting an absent identifier is a
// no-op.
func (s *PgVectorStore) Delete(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.db.Exec(ctx, "DELETE FROM chunks WHERE id = ANY($1)", ids); err != nil {
		return fmt.Errorf("%w: delete chunks: %w", ErrUnavailable, err)
	}
	return nil
}

func (s *PgVectorStore) Query(ctx context.Context, vector []float32, k int) ([]Candidate, error) {
	if k <= 0 {
		k = 10
	}

	rows, err := s.db.Query(ctx,
		`SELECT id, document_id, chunk_index, content,
		        1 - (embedding <=> $1) AS score
		 FROM chunks
		 ORDER BY embedding <=> $1, document_id, chunk_index
		 LIMIT $2`,
		pgvector.NewVector(vector), k,
	)
	if err != nil {
		return nil, classify(fmt.Errorf("similarity query: %w", err))
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.ChunkIndex, &c.Content, &c.Score); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("similarity query: %w", err))
	}
	return out, nil
}

func (s *PgVectorStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRow(ctx, "SELECT count(*) FROM chunks").Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count chunks: %w", ErrUnavailable, err)
	}
	return n, nil
}

// classify maps pgvector's dimension errors onto the store taxonomy;
// everything else is treated as the store being unreachable or broken.
func classify(err error) error {
	if strings.Contains(err.Error(), "different vector dimensions") ||
		strings.Contains(err.Error(), "expected") && strings.Contains(err.Error(), "dimensions") {
		return fmt.Errorf("%w: %w", ErrDimensionMismatch, err)
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}
