// Package query answers questions against one document's index.
package query

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bull/pdfchat-server/internal/index"
)

// DefaultTopK is how many passages are retrieved per question.
const DefaultTopK = 3

// FallbackAnswer is returned when retrieval finds nothing to answer from.
const FallbackAnswer = "I couldn't find relevant information in the document to answer your question."

// Embedder embeds question text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Synthesizer writes an answer from retrieved passages.
type Synthesizer interface {
	Synthesize(ctx context.Context, question string, passages []string) (string, error)
}

// Pipeline runs retrieval followed by answer synthesis.
type Pipeline struct {
	embedder    Embedder
	synthesizer Synthesizer
	topK        int
}

// NewPipeline creates a query pipeline. A non-positive topK selects DefaultTopK.
func NewPipeline(embedder Embedder, synthesizer Synthesizer, topK int) *Pipeline {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Pipeline{
		embedder:    embedder,
		synthesizer: synthesizer,
		topK:        topK,
	}
}

// Retrieve returns the passages nearest to question, best first.
func (p *Pipeline) Retrieve(ctx context.Context, idx index.Searcher, question string) ([]index.Hit, error) {
	vectors, err := p.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("embedding question: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedding question: got %d vectors", len(vectors))
	}

	hits, err := idx.Search(ctx, vectors[0], p.topK)
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}
	return hits, nil
}

// Answer synthesizes an answer from hits. With no hits it returns
// FallbackAnswer without consulting the synthesizer.
func (p *Pipeline) Answer(ctx context.Context, question string, hits []index.Hit) (string, error) {
	if len(hits) == 0 {
		return FallbackAnswer, nil
	}

	passages := make([]string, len(hits))
	for i, h := range hits {
		passages[i] = h.Entry.Text
	}

	raw, err := p.synthesizer.Synthesize(ctx, question, passages)
	if err != nil {
		return "", fmt.Errorf("synthesizing answer: %w", err)
	}
	return normalize(raw), nil
}

// Ask is Retrieve followed by Answer.
func (p *Pipeline) Ask(ctx context.Context, idx index.Searcher, question string) (string, error) {
	hits, err := p.Retrieve(ctx, idx, question)
	if err != nil {
		return "", err
	}
	return p.Answer(ctx, question, hits)
}

// normalize unwraps replies that arrive as a JSON object carrying the answer
// in an output_text or answer field. Anything else is returned as is.
func normalize(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "{") {
		return raw
	}

	var structured struct {
		OutputText *string `json:"output_text"`
		Answer     *string `json:"answer"`
	}
	if err := json.Unmarshal([]byte(trimmed), &structured); err != nil {
		return raw
	}
	switch {
	case structured.OutputText != nil:
		return *structured.OutputText
	case structured.Answer != nil:
		return *structured.Answer
	}
	return raw
}
