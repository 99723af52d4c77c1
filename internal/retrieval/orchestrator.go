package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/askdocs/askdocs/internal/config"
	"github.com/askdocs/askdocs/internal/embedding"
	"github.com/askdocs/askdocs/internal/index"
	"github.com/askdocs/askdocs/pkg/tokenizer"
)

// ErrNoMatch reports that the corpus holds content but nothing relevant to
// the question survived retrieval.
var ErrNoMatch = errors.New("no matching documents")

// QueryEmbedder is the embedding collaborator as the orchestrator sees it.
type QueryEmbedder interface {
	EmbedSingle(ctx context.Context, text string) ([]float32, error)
}

// Evidence is the retrieval outcome handed to generation: ranked chunks
// trimmed to the token budget, plus whether the fallback path produced them.
type Evidence struct {
	Results  []index.Result `json:"results"`
	Fallback bool           `json:"fallback"`
	Tokens   int            `json:"tokens"`
}

// Orchestrator ties the query path together: embed the question, search the
// index under the configured policy, and budget the evidence for generation.
type Orchestrator struct {
	embedder QueryEmbedder
	index    *index.VectorIndex
	cfg      config.RetrievalConfig
}

func NewOrchestrator(embedder QueryEmbedder, ix *index.VectorIndex, cfg config.RetrievalConfig) *Orchestrator {
	return &Orchestrator{embedder: embedder, index: ix, cfg: cfg}
}

func (e *Evidence) Empty() bool {
	return e == nil || len(e.Results) == 0
}

// Search is the raw-evidence path: like Retrieve, but an empty evidence set
// is reported as ErrNoMatch instead of a valid empty result.
func (o *Orchestrator) Search(ctx context.Context, question string) (*Evidence, error) {
	ev, err := o.Retrieve(ctx, question)
	if err != nil {
		return nil, err
	}
	if ev.Empty() {
		return nil, ErrNoMatch
	}
	return ev, nil
}

// Retrieve resolves a question to budgeted evidence.
//
// An embedding timeout or outage degrades to empty evidence rather than an
// error: the caller can still answer with "nothing found" instead of failing
// the request. Index-level failures do surface as errors.
func (o *Orchestrator) Retrieve(ctx context.Context, question string) (*Evidence, error) {
	vector, err := o.embedder.EmbedSingle(ctx, question)
	if err != nil {
		if errors.Is(err, embedding.ErrTimeout) || errors.Is(err, embedding.ErrUnavailable) {
			slog.Warn("query embedding degraded to empty evidence", "error", err)
			return &Evidence{}, nil
		}
		return nil, fmt.Errorf("embed question: %w", err)
	}

	result, err := o.index.Search(ctx, vector, index.SearchOptions{
		TopK:          o.cfg.MaxResults,
		MinSimilarity: o.cfg.MinSimilarity,
		MinResults:    o.cfg.MinResults,
		Fallback:      o.cfg.FallbackToAllDocs,
		FallbackLimit: o.cfg.FallbackLimit,
	})
	if err != nil {
		return nil, err
	}

	ev := budget(result, o.cfg.EvidenceBudget)
	slog.Debug("retrieval complete",
		"results", len(ev.Results),
		"fallback", ev.Fallback,
		"tokens", ev.Tokens,
	)
	return ev, nil
}

// budget trims the ranked results to the token budget, keeping whole chunks
// in rank order and dropping the tail. At least one chunk always survives so
// a generous first chunk cannot starve the answer entirely.
func budget(result *index.QueryResult, maxTokens int) *Evidence {
	ev := &Evidence{Fallback: result.Fallback}
	if maxTokens <= 0 {
		ev.Results = result.Results
		for _, r := range ev.Results {
			ev.Tokens += tokenizer.CountTokens(r.Content)
		}
		return ev
	}

	for _, r := range result.Results {
		cost := tokenizer.CountTokens(r.Content)
		if len(ev.Results) > 0 && ev.Tokens+cost > maxTokens {
			break
		}
		ev.Results = append(ev.Results, r)
		ev.Tokens += cost
	}
	if ev.Fallback && len(ev.Results) == 0 {
		ev.Fallback = false
	}
	return ev
}
