package llm

import (
	"context"
	"fmt"

	"github.com/askdocs/askdocs/internal/config"
)

// gateway holds one instance per configured provider and routes by request,
// falling back to the configured default.
type gateway struct {
	providers       map[string]Provider
	defaultProvider string
}

func NewGateway(cfg config.LLMConfig) (Gateway, error) {
	providers := make(map[string]Provider)

	if cfg.OllamaURL != "" {
		providers["ollama"] = NewOllamaProvider(cfg.OllamaURL)
	}
	if cfg.OpenAIKey != "" {
		providers["openai"] = NewOpenAIProvider(cfg.OpenAIKey)
	}
	if cfg.AnthropicKey != "" {
		providers["anthropic"] = NewAnthropicProvider(cfg.AnthropicKey)
	}

	if len(providers) == 0 {
		return nil, fmt.Errorf("no llm providers configured")
	}
	if _, ok := providers[cfg.Provider]; !ok {
		return nil, fmt.Errorf("default provider %q is not configured", cfg.Provider)
	}

	return &gateway{
		providers:       providers,
		defaultProvider: cfg.Provider,
	}, nil
}

func (g *gateway) Provider(name string) (Provider, error) {
	if name == "" {
		name = g.defaultProvider
	}
	p, ok := g.providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", name)
	}
	return p, nil
}

func (g *gateway) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	p, err := g.Provider(req.Provider)
	if err != nil {
		return nil, err
	}
	return p.ChatCompletion(ctx, req)
}

func (g *gateway) Embed(ctx context.Context, req EmbeddingRequest) (*EmbeddingResponse, error) {
	p, err := g.Provider(req.Provider)
	if err != nil {
		return nil, err
	}
	return p.GenerateEmbedding(ctx, req)
}
