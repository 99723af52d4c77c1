package tracker

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DocState is what the tracker remembers about an indexed document: the
// fingerprint from the last completed build and how many chunks it produced.
// The chunk count is what lets a later pass delete exactly that document's
// chunk identifiers.
type DocState struct {
	Fingerprint string
	ChunkCount  int
}

// StateStore persists per-document index state between builds.
type StateStore interface {
	All(ctx context.Context) (map[string]DocState, error)
	Put(ctx context.Context, docID string, st DocState) error
	Remove(ctx context.Context, docID string) error
}

// Fingerprints projects a state map down to the fingerprint set Diff wants.
func Fingerprints(states map[string]DocState) map[string]string {
	out := make(map[string]string, len(states))
	for id, st := range states {
		out[id] = st.Fingerprint
	}
	return out
}

// PgStateStore keeps document state in the documents table, alongside the
// chunks they own.
type PgStateStore struct {
	db *pgxpool.Pool
}

func NewPgStateStore(db *pgxpool.Pool) *PgStateStore {
	return &PgStateStore{db: db}
}

func (s *PgStateStore) All(ctx context.Context) (map[string]DocState, error) {
	rows, err := s.db.Query(ctx, "SELECT id, fingerprint, chunk_count FROM documents")
	if err != nil {
		return nil, fmt.Errorf("load document state: %w", err)
	}
	defer rows.Close()

	out := make(map[string]DocState)
	for rows.Next() {
		var id string
		var st DocState
		if err := rows.Scan(&id, &st.Fingerprint, &st.ChunkCount); err != nil {
			return nil, fmt.Errorf("scan document state: %w", err)
		}
		out[id] = st
	}
	return out, rows.Err()
}

func (s *PgStateStore) Put(ctx context.Context, docID string, st DocState) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO documents (id, fingerprint, chunk_count, indexed_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (id) DO UPDATE SET fingerprint = $2, chunk_count = $3, indexed_at = now()`,
		docID, st.Fingerprint, st.ChunkCount,
	)
	if err != nil {
		return fmt.Errorf("put document state %s: %w", docID, err)
	}
	return nil
}

func (s *PgStateStore) Remove(ctx context.Context, docID string) error {
	if _, err := s.db.Exec(ctx, "DELETE FROM documents WHERE id = $1", docID); err != nil {
		return fmt.Errorf("remove document state %s: %w", docID, err)
	}
	return nil
}

// MemStateStore is an in-memory StateStore for tests and single-process
// local mode.
type MemStateStore struct {
	mu     sync.RWMutex
	states map[string]DocState
}

func NewMemStateStore() *MemStateStore {
	return &MemStateStore{states: make(map[string]DocState)}
}

func (s *MemStateStore) All(_ context.Context) (map[string]DocState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]DocState, len(s.states))
	for k, v := range s.states {
		out[k] = v
	}
	return out, nil
}

func (s *MemStateStore) Put(_ context.Context, docID string, st DocState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[docID] = st
	return nil
}

func (s *MemStateStore) Remove(_ context.Context, docID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, docID)
	return nil
}
