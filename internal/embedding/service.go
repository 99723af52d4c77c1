package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/askdocs/askdocs/internal/cache"
	"github.com/askdocs/askdocs/internal/llm"
)

var (
	// ErrUnavailable reports that the embedding backend could not serve the
	// request at all.
	ErrUnavailable = errors.New("embedding service unavailable")

	// ErrTimeout reports that the per-call deadline expired. It deliberately
	// does not wrap context.DeadlineExceeded so callers can distinguish a
	// slow backend from their own cancelled context.
	ErrTimeout = errors.New("embedding timed out")
)

const cacheTTL = 7 * 24 * time.Hour

// Service produces embeddings through the llm gateway, with a redis
// content-hash cache in front so unchanged chunks are never re-embedded.
type Service struct {
	gateway llm.Gateway
	cache   *cache.Cache
	model   string
	timeout time.Duration
}

// NewService builds an embedding service. The cache is optional; pass nil to
// go straight to the backend every time.
func NewService(gw llm.Gateway, c *cache.Cache, model string, timeout time.Duration) *Service {
	if model == "" {
		model = "nomic-embed-text"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Service{gateway: gw, cache: c, model: model, timeout: timeout}
}

// Embed returns one vector per input text, in input order. Cached texts are
// served from redis; only misses reach the backend, as a single batch.
func (s *Service) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int

	for i, text := range texts {
		if v := s.cached(ctx, text); v != nil {
			vectors[i] = v
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) == 0 {
		return vectors, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.gateway.Embed(callCtx, llm.EmbeddingRequest{
		Model: s.model,
		Input: missTexts,
	})
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: after %s", ErrTimeout, s.timeout)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if len(resp.Embeddings) != len(missTexts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrUnavailable, len(resp.Embeddings), len(missTexts))
	}

	for j, i := range missIdx {
		vectors[i] = resp.Embeddings[j]
		s.store(ctx, texts[i], resp.Embeddings[j])
	}
	return vectors, nil
}

// EmbedSingle embeds one text.
func (s *Service) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 || vectors[0] == nil {
		return nil, fmt.Errorf("%w: no embedding returned", ErrUnavailable)
	}
	return vectors[0], nil
}

func (s *Service) cached(ctx context.Context, text string) []float32 {
	if s.cache == nil {
		return nil
	}
	var v []float32
	if err := s.cache.Get(ctx, s.cacheKey(text), &v); err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			slog.Debug("embedding cache read failed", "error", err)
		}
		return nil
	}
	return v
}

func (s *Service) store(ctx context.Context, text string, v []float32) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, s.cacheKey(text), v, cacheTTL); err != nil {
		slog.Debug("embedding cache write failed", "error", err)
	}
}

func (s *Service) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "emb:" + s.model + ":" + hex.EncodeToString(sum[:])
}
