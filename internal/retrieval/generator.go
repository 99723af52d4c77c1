package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/askdocs/askdocs/internal/index"
	"github.com/askdocs/askdocs/internal/llm"
)

// NoInfoResponse is returned when retrieval produced no usable evidence.
const NoInfoResponse = "Sorry, no relevant information was found in the provided documents."

const strictAnswerPrompt = `Answer the question strictly based on the document content below. Do not add any information that is not in the documents.

Document content:
%s

Question: %s

Answer requirements:
1. Use only information from the documents above.
2. If the documents contain no relevant information, state clearly that the documents contain no relevant information.
3. Do not speculate, guess, or add information from outside the documents.
4. If the information is incomplete, state what is missing.
5. Be accurate, concise, and direct.
6. Quote specific document content to support your answer.

Answer:`

// Answer is the full question-answering outcome.
type Answer struct {
	Answer   string         `json:"answer"`
	Evidence []index.Result `json:"evidence"`
	Fallback bool           `json:"fallback"`
	Model    string         `json:"model"`
}

// Generator turns budgeted evidence into a grounded answer through the llm
// gateway.
type Generator struct {
	orchestrator *Orchestrator
	gateway      llm.Gateway
	model        string
}

func NewGenerator(o *Orchestrator, gw llm.Gateway, model string) *Generator {
	return &Generator{orchestrator: o, gateway: gw, model: model}
}

// Ask retrieves evidence for the question and generates a grounded answer.
// Empty evidence short-circuits to the canned no-information response; the
// model is never invited to answer from its own knowledge.
func (g *Generator) Ask(ctx context.Context, question string) (*Answer, error) {
	ev, err := g.orchestrator.Retrieve(ctx, question)
	if err != nil {
		return nil, err
	}

	if ev.Empty() {
		return &Answer{Answer: NoInfoResponse}, nil
	}

	texts := make([]string, len(ev.Results))
	for i, r := range ev.Results {
		texts[i] = r.Content
	}
	prompt := fmt.Sprintf(strictAnswerPrompt, strings.Join(texts, "\n"), question)

	resp, err := g.gateway.Chat(ctx, llm.ChatRequest{
		Model: g.model,
		Messages: []llm.Message{
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	return &Answer{
		Answer:   resp.Content,
		Evidence: ev.Results,
		Fallback: ev.Fallback,
		Model:    resp.Model,
	}, nil
}
