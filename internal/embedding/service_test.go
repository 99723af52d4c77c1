package embedding

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askdocs/askdocs/internal/llm"
)

type stubGateway struct {
	embeddings [][]float32
	err        error
	delay      time.Duration
	calls      int
}

func (g *stubGateway) Chat(context.Context, llm.ChatRequest) (*llm.ChatResponse, error) {
	return nil, errors.New("not implemented")
}

func (g *stubGateway) Embed(ctx context.Context, req llm.EmbeddingRequest) (*llm.EmbeddingResponse, error) {
	g.calls++
	if g.delay > 0 {
		select {
		case <-time.After(g.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if g.err != nil {
		return nil, g.err
	}
	out := g.embeddings
	if out == nil {
		out = make([][]float32, len(req.Input))
		for i := range out {
			out[i] = []float32{1, 2, 3}
		}
	}
	return &llm.EmbeddingResponse{Provider: "stub", Model: req.Model, Embeddings: out}, nil
}

func (g *stubGateway) Provider(string) (llm.Provider, error) { return nil, nil }

func TestEmbedReturnsVectorPerInput(t *testing.T) {
	svc := NewService(&stubGateway{}, nil, "test-model", time.Second)

	vectors, err := svc.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{1, 2, 3}, vectors[0])
}

func TestEmbedEmptyInputIsNoop(t *testing.T) {
	gw := &stubGateway{}
	svc := NewService(gw, nil, "test-model", time.Second)

	vectors, err := svc.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
	assert.Zero(t, gw.calls)
}

func TestEmbedTimeoutMapsToSentinel(t *testing.T) {
	svc := NewService(&stubGateway{delay: time.Second}, nil, "test-model", 20*time.Millisecond)

	_, err := svc.Embed(context.Background(), []string{"slow"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.NotErrorIs(t, err, context.DeadlineExceeded)
}

func TestEmbedCallerCancellationIsNotATimeout(t *testing.T) {
	svc := NewService(&stubGateway{delay: time.Second}, nil, "test-model", time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := svc.Embed(ctx, []string{"slow"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrTimeout)
}

func TestEmbedBackendFailureIsUnavailable(t *testing.T) {
	svc := NewService(&stubGateway{err: errors.New("connection refused")}, nil, "test-model", time.Second)

	_, err := svc.Embed(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestEmbedMismatchedCountIsUnavailable(t *testing.T) {
	svc := NewService(&stubGateway{embeddings: [][]float32{{1}}}, nil, "test-model", time.Second)

	_, err := svc.Embed(context.Background(), []string{"a", "b"})
	assert.ErrorIs(t, err, ErrUnavailable)
}
