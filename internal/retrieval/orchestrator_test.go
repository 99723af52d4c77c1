package retrieval

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askdocs/askdocs/internal/config"
	"github.com/askdocs/askdocs/internal/embedding"
	"github.com/askdocs/askdocs/internal/index"
	"github.com/askdocs/askdocs/internal/vectorstore"
	"github.com/askdocs/askdocs/pkg/chunker"
)

type stubEmbedder struct {
	vector []float32
	err    error
}

func (s *stubEmbedder) EmbedSingle(context.Context, string) ([]float32, error) {
	return s.vector, s.err
}

func defaultRetrievalConfig() config.RetrievalConfig {
	return config.RetrievalConfig{
		MaxResults:        20,
		MinSimilarity:     0.15,
		MinResults:        1,
		FallbackToAllDocs: true,
		FallbackLimit:     50,
		EvidenceBudget:    2048,
	}
}

func seedStore(t *testing.T, store *vectorstore.MemoryStore, docID string, chunks []string, vectors [][]float32) {
	t.Helper()
	entries := make([]vectorstore.Entry, len(chunks))
	for i := range chunks {
		entries[i] = vectorstore.Entry{
			ID:         chunker.ID(docID, i),
			DocumentID: docID,
			ChunkIndex: i,
			Content:    chunks[i],
			Embedding:  vectors[i],
		}
	}
	require.NoError(t, store.Upsert(context.Background(), entries))
}

func TestRetrieveFindsPersonRecord(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	seedStore(t, store, "people.txt",
		[]string{
			"Zhang San, age 28, engineer, zhangsan@example.com",
			"The office cafeteria opens at 8am on weekdays.",
		},
		[][]float32{{1, 0, 0}, {0, 1, 0}},
	)

	o := NewOrchestrator(&stubEmbedder{vector: []float32{0.9, 0.1, 0}}, index.New(store), defaultRetrievalConfig())

	ev, err := o.Retrieve(context.Background(), "what is Zhang San's email?")
	require.NoError(t, err)
	require.False(t, ev.Empty())
	assert.Contains(t, ev.Results[0].Content, "Zhang San")
	assert.GreaterOrEqual(t, ev.Results[0].Score, 0.15)
	assert.False(t, ev.Fallback)
}

func TestRetrieveEmptyIndexIsEmptyNotError(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	o := NewOrchestrator(&stubEmbedder{vector: []float32{1, 0, 0}}, index.New(store), defaultRetrievalConfig())

	ev, err := o.Retrieve(context.Background(), "anything")
	require.NoError(t, err)
	assert.True(t, ev.Empty())
	assert.False(t, ev.Fallback)
}

func TestSearchReportsNoMatchOnEmptyEvidence(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	o := NewOrchestrator(&stubEmbedder{vector: []float32{1, 0, 0}}, index.New(store), defaultRetrievalConfig())

	_, err := o.Search(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestRetrieveAfterDocumentDeleted(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	seedStore(t, store, "doc1", []string{"only content"}, [][]float32{{1, 0, 0}})

	ix := index.New(store)
	o := NewOrchestrator(&stubEmbedder{vector: []float32{1, 0, 0}}, ix, defaultRetrievalConfig())

	require.NoError(t, ix.Delete(context.Background(), []uuid.UUID{chunker.ID("doc1", 0)}))

	ev, err := o.Retrieve(context.Background(), "anything")
	require.NoError(t, err)
	assert.True(t, ev.Empty())
}

func TestRetrieveDegradesOnEmbeddingTimeout(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	seedStore(t, store, "doc1", []string{"content"}, [][]float32{{1, 0, 0}})

	o := NewOrchestrator(
		&stubEmbedder{err: fmt.Errorf("%w: after 30s", embedding.ErrTimeout)},
		index.New(store),
		defaultRetrievalConfig(),
	)

	ev, err := o.Retrieve(context.Background(), "anything")
	require.NoError(t, err)
	assert.True(t, ev.Empty())
}

func TestRetrieveSurfacesUnexpectedEmbedError(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	o := NewOrchestrator(&stubEmbedder{err: errors.New("boom")}, index.New(store), defaultRetrievalConfig())

	_, err := o.Retrieve(context.Background(), "anything")
	assert.Error(t, err)
}

func TestRetrieveBudgetTruncatesTail(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	long := ""
	for i := 0; i < 100; i++ {
		long += "word "
	}
	seedStore(t, store, "doc1",
		[]string{long, long, "short tail"},
		[][]float32{{1, 0, 0}, {0.9, 0.1, 0}, {0.8, 0.2, 0}},
	)

	cfg := defaultRetrievalConfig()
	cfg.EvidenceBudget = 150 // fits roughly one long chunk
	o := NewOrchestrator(&stubEmbedder{vector: []float32{1, 0, 0}}, index.New(store), cfg)

	ev, err := o.Retrieve(context.Background(), "anything")
	require.NoError(t, err)
	require.False(t, ev.Empty())
	assert.Less(t, len(ev.Results), 3)
	assert.LessOrEqual(t, ev.Tokens, cfg.EvidenceBudget)
	// highest ranked chunk always survives, even over budget
	assert.Equal(t, 0, ev.Results[0].ChunkIndex)
}

func TestRetrieveFallbackBelowThreshold(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	seedStore(t, store, "doc1",
		[]string{"unrelated a", "unrelated b"},
		[][]float32{{0, 1, 0}, {0, 0, 1}},
	)

	cfg := defaultRetrievalConfig()
	cfg.MinSimilarity = 0.5
	o := NewOrchestrator(&stubEmbedder{vector: []float32{1, 0, 0}}, index.New(store), cfg)

	ev, err := o.Retrieve(context.Background(), "something off-topic")
	require.NoError(t, err)
	assert.False(t, ev.Empty())
	assert.True(t, ev.Fallback)

	cfg.FallbackToAllDocs = false
	o = NewOrchestrator(&stubEmbedder{vector: []float32{1, 0, 0}}, index.New(store), cfg)
	ev, err = o.Retrieve(context.Background(), "something off-topic")
	require.NoError(t, err)
	assert.True(t, ev.Empty())
}
