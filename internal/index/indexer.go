package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/askdocs/askdocs/internal/corpus"
	"github.com/askdocs/askdocs/internal/tracker"
	"github.com/askdocs/askdocs/internal/vectorstore"
	"github.com/askdocs/askdocs/pkg/chunker"
)

// Embedder is the embedding collaborator as the indexer sees it.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Report summarizes one reindex pass. Skipped accumulates per-document
// failures that were isolated instead of aborting the batch.
type Report struct {
	Indexed   int              `json:"indexed"`
	Unchanged int              `json:"unchanged"`
	Removed   int              `json:"removed"`
	Chunks    int              `json:"chunks"`
	Skipped   []corpus.Skipped `json:"skipped,omitempty"`
	Duration  time.Duration    `json:"duration"`
}

// Reindexer drives the incremental pass: enumerate the corpus, diff against
// the previous build's fingerprints, re-chunk and re-embed what changed,
// delete what disappeared.
type Reindexer struct {
	source   corpus.Source
	state    tracker.StateStore
	index    *VectorIndex
	embedder Embedder
	splitter *chunker.Splitter
	workers  int

	passMu sync.Mutex // serializes passes; see Reindex
}

func NewReindexer(source corpus.Source, state tracker.StateStore, ix *VectorIndex, embedder Embedder, splitter *chunker.Splitter, workers int) *Reindexer {
	if workers <= 0 {
		workers = 4
	}
	return &Reindexer{
		source:   source,
		state:    state,
		index:    ix,
		embedder: embedder,
		splitter: splitter,
		workers:  workers,
	}
}

// Reindex runs one full incremental pass. Running it twice against an
// unchanged corpus is a no-op: unchanged documents are never re-chunked or
// re-embedded, and chunk identifiers are stable across rebuilds.
//
// Documents are processed in parallel, but all chunks of one document stay
// on one goroutine, so writes to any single chunk identifier are serialized.
// Cancellation is honored between documents, never mid-upsert.
//
// Only one pass runs at a time. Overlapping passes would read the corpus at
// different moments and issue unordered upserts for the same chunk
// identifiers, so a second caller blocks until the first pass finishes.
func (r *Reindexer) Reindex(ctx context.Context) (*Report, error) {
	r.passMu.Lock()
	defer r.passMu.Unlock()

	start := time.Now()

	states, err := r.state.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("load index state: %w", err)
	}

	docs, sourceSkipped, err := r.source.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerate corpus: %w", err)
	}

	changes := tracker.Diff(tracker.Fingerprints(states), docs)
	slog.Info("reindex diff",
		"added", len(changes.Added),
		"modified", len(changes.Modified),
		"removed", len(changes.Removed),
		"unchanged", len(changes.Unchanged),
	)

	report := &Report{
		Unchanged: len(changes.Unchanged),
		Skipped:   sourceSkipped,
	}

	for _, docID := range changes.Removed {
		if err := r.index.Delete(ctx, chunkIDs(docID, states[docID].ChunkCount)); err != nil {
			return nil, fmt.Errorf("remove document %s: %w", docID, err)
		}
		if err := r.state.Remove(ctx, docID); err != nil {
			return nil, fmt.Errorf("remove document state %s: %w", docID, err)
		}
		report.Removed++
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	work := append(append([]corpus.Document{}, changes.Added...), changes.Modified...)
	for _, doc := range work {
		g.Go(func() error {
			// cancellation between document boundaries only
			if err := gctx.Err(); err != nil {
				return err
			}

			nChunks, err := r.indexDocument(gctx, doc, states[doc.ID].ChunkCount)
			if err != nil {
				if isDocumentFailure(err) {
					slog.Warn("skipping document", "doc", doc.ID, "error", err)
					mu.Lock()
					report.Skipped = append(report.Skipped, corpus.Skipped{ID: doc.ID, Reason: err.Error()})
					mu.Unlock()
					return nil
				}
				return err
			}

			mu.Lock()
			report.Indexed++
			report.Chunks += nChunks
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report.Duration = time.Since(start)
	slog.Info("reindex complete",
		"indexed", report.Indexed,
		"chunks", report.Chunks,
		"removed", report.Removed,
		"skipped", len(report.Skipped),
		"duration", report.Duration,
	)
	return report, nil
}

// indexDocument re-chunks and re-embeds one document, replacing all of its
// chunk identifiers. The upsert is a single store write, and stale trailing
// identifiers from a previous, longer chunking are deleted afterwards.
func (r *Reindexer) indexDocument(ctx context.Context, doc corpus.Document, prevChunks int) (int, error) {
	chunks, err := r.splitter.Split(doc.Text)
	if err != nil {
		if errors.Is(err, chunker.ErrEmptyDocument) {
			// A document rewritten to nothing keeps nothing in the index.
			// Its new fingerprint is persisted so the next pass sees it as
			// unchanged instead of re-diffing it as modified forever.
			if cerr := r.clearDocument(ctx, doc, prevChunks); cerr != nil {
				return 0, cerr
			}
		}
		return 0, fmt.Errorf("chunk: %w", err)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := r.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed: %w", err)
	}
	if len(vectors) != len(chunks) {
		return 0, fmt.Errorf("embed: got %d vectors for %d chunks", len(vectors), len(chunks))
	}

	entries := make([]vectorstore.Entry, len(chunks))
	for i, c := range chunks {
		entries[i] = vectorstore.Entry{
			ID:         chunker.ID(doc.ID, c.Index),
			DocumentID: doc.ID,
			ChunkIndex: c.Index,
			Content:    c.Text,
			Embedding:  vectors[i],
		}
	}

	if err := r.index.Upsert(ctx, entries); err != nil {
		return 0, err
	}

	if prevChunks > len(chunks) {
		stale := make([]uuid.UUID, 0, prevChunks-len(chunks))
		for i := len(chunks); i < prevChunks; i++ {
			stale = append(stale, chunker.ID(doc.ID, i))
		}
		if err := r.index.Delete(ctx, stale); err != nil {
			return 0, err
		}
	}

	if err := r.state.Put(ctx, doc.ID, tracker.DocState{Fingerprint: doc.Fingerprint, ChunkCount: len(chunks)}); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

// clearDocument removes every chunk a document previously owned and records
// its fingerprint with a zero chunk count.
func (r *Reindexer) clearDocument(ctx context.Context, doc corpus.Document, prevChunks int) error {
	if prevChunks > 0 {
		if err := r.index.Delete(ctx, chunkIDs(doc.ID, prevChunks)); err != nil {
			return err
		}
	}
	return r.state.Put(ctx, doc.ID, tracker.DocState{Fingerprint: doc.Fingerprint, ChunkCount: 0})
}

// isDocumentFailure separates failures confined to one document (isolate,
// report, continue) from index-level failures where no progress is possible.
func isDocumentFailure(err error) bool {
	switch {
	case errors.Is(err, vectorstore.ErrUnavailable),
		errors.Is(err, vectorstore.ErrDimensionMismatch),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

func chunkIDs(docID string, count int) []uuid.UUID {
	ids := make([]uuid.UUID, count)
	for i := range ids {
		ids[i] = chunker.ID(docID, i)
	}
	return ids
}
