package index

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askdocs/askdocs/internal/corpus"
	"github.com/askdocs/askdocs/internal/tracker"
	"github.com/askdocs/askdocs/internal/vectorstore"
	"github.com/askdocs/askdocs/pkg/chunker"
)

type fakeSource struct {
	docs      []corpus.Document
	listCalls atomic.Int32
}

func (f *fakeSource) List(context.Context) ([]corpus.Document, []corpus.Skipped, error) {
	f.listCalls.Add(1)
	out := make([]corpus.Document, len(f.docs))
	copy(out, f.docs)
	return out, nil, nil
}

// hashEmbedder derives a deterministic 3-dim vector from the text so tests
// can reason about which chunk ranks first. It counts every call.
type hashEmbedder struct {
	mu    sync.Mutex
	calls int
	texts []string
}

func (e *hashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.texts = append(e.texts, texts...)
	e.mu.Unlock()

	out := make([][]float32, len(texts))
	for i, t := range texts {
		var sum int
		for _, r := range t {
			sum += int(r)
		}
		out[i] = []float32{float32(sum%7) + 1, float32(sum%11) + 1, float32(sum%13) + 1}
	}
	return out, nil
}

func doc(id, text string) corpus.Document {
	return corpus.Document{ID: id, Fingerprint: corpus.Fingerprint([]byte(text)), Text: text}
}

func newTestReindexer(src *fakeSource, store *vectorstore.MemoryStore, emb *hashEmbedder) (*Reindexer, tracker.StateStore) {
	state := tracker.NewMemStateStore()
	splitter := chunker.New(chunker.DefaultOptions())
	return NewReindexer(src, state, New(store), emb, splitter, 2), state
}

func sortedIDs(store *vectorstore.MemoryStore) []string {
	ids := store.IDs()
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	sort.Strings(out)
	return out
}

func TestReindexIsIdempotent(t *testing.T) {
	src := &fakeSource{docs: []corpus.Document{
		doc("a.txt", "Alpha document body. It has two sentences."),
		doc("b.txt", "Beta document body."),
	}}
	store := vectorstore.NewMemoryStore()
	emb := &hashEmbedder{}
	r, _ := newTestReindexer(src, store, emb)

	rep1, err := r.Reindex(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, rep1.Indexed)
	first := sortedIDs(store)

	rep2, err := r.Reindex(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, rep2.Indexed)
	assert.Equal(t, 2, rep2.Unchanged)
	assert.Equal(t, first, sortedIDs(store))

	// unchanged documents were never re-embedded
	callsAfterFirst := 2
	assert.Equal(t, callsAfterFirst, emb.calls)
}

func TestReindexIncrementalOnlyTouchesModified(t *testing.T) {
	src := &fakeSource{docs: []corpus.Document{
		doc("a.txt", "Alpha body."),
		doc("b.txt", "Beta body."),
	}}
	store := vectorstore.NewMemoryStore()
	emb := &hashEmbedder{}
	r, _ := newTestReindexer(src, store, emb)

	_, err := r.Reindex(context.Background())
	require.NoError(t, err)

	src.docs[1] = doc("b.txt", "Beta body, now revised.")
	rep, err := r.Reindex(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Indexed)
	assert.Equal(t, 1, rep.Unchanged)

	// chunk identity is positional, so b.txt keeps its identifiers
	assert.Contains(t, store.IDs(), chunker.ID("a.txt", 0))
	assert.Contains(t, store.IDs(), chunker.ID("b.txt", 0))

	for _, texts := range emb.texts[2:] {
		assert.NotContains(t, texts, "Alpha")
	}
}

func TestReindexRemovesDeletedDocuments(t *testing.T) {
	src := &fakeSource{docs: []corpus.Document{
		doc("a.txt", "Alpha body."),
		doc("b.txt", "Beta body."),
	}}
	store := vectorstore.NewMemoryStore()
	emb := &hashEmbedder{}
	r, state := newTestReindexer(src, store, emb)

	_, err := r.Reindex(context.Background())
	require.NoError(t, err)

	src.docs = src.docs[:1]
	rep, err := r.Reindex(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Removed)

	assert.NotContains(t, store.IDs(), chunker.ID("b.txt", 0))
	states, err := state.All(context.Background())
	require.NoError(t, err)
	assert.NotContains(t, states, "b.txt")
}

func TestReindexDeletesStaleTailChunks(t *testing.T) {
	longText := "First sentence of a long document. Second sentence with more words in it. " +
		"Third sentence that pads things out considerably further. Fourth sentence to close."
	src := &fakeSource{docs: []corpus.Document{doc("a.txt", longText)}}
	store := vectorstore.NewMemoryStore()
	emb := &hashEmbedder{}
	state := tracker.NewMemStateStore()
	splitter := chunker.New(chunker.Options{MaxChunkSize: 50, MinChunkSize: 10, SentenceSplit: true})
	r := NewReindexer(src, state, New(store), emb, splitter, 2)

	_, err := r.Reindex(context.Background())
	require.NoError(t, err)
	states, err := state.All(context.Background())
	require.NoError(t, err)
	before := states["a.txt"].ChunkCount
	require.Greater(t, before, 0)

	src.docs[0] = doc("a.txt", "Tiny now.")
	_, err = r.Reindex(context.Background())
	require.NoError(t, err)

	states, err = state.All(context.Background())
	require.NoError(t, err)
	after := states["a.txt"].ChunkCount
	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, after, n)
	for i := after; i < before; i++ {
		assert.NotContains(t, store.IDs(), chunker.ID("a.txt", i))
	}
}

func TestReindexEmptiedDocumentDropsStaleChunks(t *testing.T) {
	src := &fakeSource{docs: []corpus.Document{
		doc("a.txt", "Zhang San, age 28, engineer."),
	}}
	store := vectorstore.NewMemoryStore()
	emb := &hashEmbedder{}
	r, state := newTestReindexer(src, store, emb)

	_, err := r.Reindex(context.Background())
	require.NoError(t, err)
	n, err := store.Count(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// file truncated to whitespace: nothing of it may stay searchable
	src.docs[0] = doc("a.txt", "   \n\t")
	rep, err := r.Reindex(context.Background())
	require.NoError(t, err)
	require.Len(t, rep.Skipped, 1)
	assert.Equal(t, "a.txt", rep.Skipped[0].ID)

	n, err = store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	states, err := state.All(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, states["a.txt"].ChunkCount)

	// fingerprint was persisted, so the next pass sees it as unchanged
	// instead of skipping it again
	rep, err = r.Reindex(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rep.Skipped)
	assert.Equal(t, 1, rep.Unchanged)
}

// blockingEmbedder parks the first pass inside its embedding call so a test
// can observe whether a second pass makes progress in the meantime.
type blockingEmbedder struct {
	enterOnce sync.Once
	entered   chan struct{}
	release   chan struct{}
}

func (e *blockingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.enterOnce.Do(func() { close(e.entered) })
	<-e.release
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func TestReindexRunsOnePassAtATime(t *testing.T) {
	src := &fakeSource{docs: []corpus.Document{doc("a.txt", "Alpha body.")}}
	store := vectorstore.NewMemoryStore()
	emb := &blockingEmbedder{entered: make(chan struct{}), release: make(chan struct{})}
	state := tracker.NewMemStateStore()
	r := NewReindexer(src, state, New(store), emb, chunker.New(chunker.DefaultOptions()), 2)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := r.Reindex(context.Background())
		assert.NoError(t, err)
	}()
	<-emb.entered

	go func() {
		defer wg.Done()
		_, err := r.Reindex(context.Background())
		assert.NoError(t, err)
	}()

	// the second pass must not even enumerate the corpus while the first
	// one is still mid-flight
	time.Sleep(50 * time.Millisecond)
	require.EqualValues(t, 1, src.listCalls.Load())

	close(emb.release)
	wg.Wait()
	assert.EqualValues(t, 2, src.listCalls.Load())
}

func TestSearchDeterministicRankingWithTies(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	entries := []vectorstore.Entry{
		{ID: chunker.ID("d1", 0), DocumentID: "d1", ChunkIndex: 0, Content: "tie one", Embedding: []float32{1, 0, 0}},
		{ID: chunker.ID("d2", 0), DocumentID: "d2", ChunkIndex: 0, Content: "tie two", Embedding: []float32{1, 0, 0}},
		{ID: chunker.ID("d3", 0), DocumentID: "d3", ChunkIndex: 0, Content: "weaker", Embedding: []float32{0, 1, 0}},
	}
	require.NoError(t, store.Upsert(context.Background(), entries))
	ix := New(store)

	opts := SearchOptions{TopK: 10, MinSimilarity: 0.1, MinResults: 1}
	first, err := ix.Search(context.Background(), []float32{1, 0, 0}, opts)
	require.NoError(t, err)
	require.Len(t, first.Results, 2)
	assert.Equal(t, "d1", first.Results[0].DocumentID)
	assert.Equal(t, "d2", first.Results[1].DocumentID)

	for i := 0; i < 5; i++ {
		again, err := ix.Search(context.Background(), []float32{1, 0, 0}, opts)
		require.NoError(t, err)
		assert.Equal(t, first.Results, again.Results)
	}
}

func TestSearchDeduplicatesRepeatedContent(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	entries := []vectorstore.Entry{
		{ID: chunker.ID("d1", 0), DocumentID: "d1", ChunkIndex: 0, Content: "same text", Embedding: []float32{1, 0, 0}},
		{ID: chunker.ID("d1", 1), DocumentID: "d1", ChunkIndex: 1, Content: "same text", Embedding: []float32{0.9, 0.1, 0}},
	}
	require.NoError(t, store.Upsert(context.Background(), entries))
	ix := New(store)

	res, err := ix.Search(context.Background(), []float32{1, 0, 0}, SearchOptions{TopK: 10})
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	// highest scoring instance survives
	assert.Equal(t, 0, res.Results[0].ChunkIndex)
}

func TestSearchFallbackActivation(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	entries := []vectorstore.Entry{
		{ID: chunker.ID("d1", 0), DocumentID: "d1", ChunkIndex: 0, Content: "off topic", Embedding: []float32{0, 1, 0}},
	}
	require.NoError(t, store.Upsert(context.Background(), entries))
	ix := New(store)

	strict := SearchOptions{TopK: 10, MinSimilarity: 0.9, MinResults: 1, Fallback: true, FallbackLimit: 50}
	res, err := ix.Search(context.Background(), []float32{1, 0, 0}, strict)
	require.NoError(t, err)
	assert.True(t, res.Fallback)
	assert.Len(t, res.Results, 1)

	strict.Fallback = false
	res, err = ix.Search(context.Background(), []float32{1, 0, 0}, strict)
	require.NoError(t, err)
	assert.False(t, res.Fallback)
	assert.Empty(t, res.Results)
}

func TestSearchEmptyIndexNoFallback(t *testing.T) {
	ix := New(vectorstore.NewMemoryStore())
	res, err := ix.Search(context.Background(), []float32{1, 0, 0}, SearchOptions{TopK: 10, Fallback: true})
	require.NoError(t, err)
	assert.True(t, res.Empty())
	assert.False(t, res.Fallback)
}

func TestSearchDimensionMismatch(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	entries := []vectorstore.Entry{
		{ID: uuid.New(), DocumentID: "d1", ChunkIndex: 0, Content: "x", Embedding: []float32{1, 0, 0}},
	}
	require.NoError(t, store.Upsert(context.Background(), entries))
	ix := New(store)

	_, err := ix.Search(context.Background(), []float32{1, 0}, SearchOptions{TopK: 10})
	assert.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)
}
