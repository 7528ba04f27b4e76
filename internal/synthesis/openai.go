// Package synthesis produces an answer to a question from retrieved passages.
package synthesis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"
)

const (
	// DefaultModel is the chat model used for answers.
	DefaultModel = "gpt-3.5-turbo"

	// DefaultTemperature keeps answers close to the context.
	DefaultTemperature = 0.3

	// DefaultMaxTokens is the maximum context length before truncation (in tokens).
	DefaultMaxTokens = 12000
)

// ErrEmptyResponse is returned when the model replies with no choices.
var ErrEmptyResponse = errors.New("model returned no choices")

const systemPrompt = `Use the following pieces of context to answer the question at the end.
If you don't know the answer, just say that you don't know, don't try to make up an answer.`

// OpenAI answers questions with an OpenAI chat completion model.
type OpenAI struct {
	client      *openai.Client
	model       string
	temperature float64
	maxTokens   int
}

// NewOpenAI creates a synthesizer. An empty model selects DefaultModel and a
// negative temperature selects DefaultTemperature.
func NewOpenAI(client *openai.Client, model string, temperature float64) *OpenAI {
	if model == "" {
		model = DefaultModel
	}
	if temperature < 0 {
		temperature = DefaultTemperature
	}
	return &OpenAI{
		client:      client,
		model:       model,
		temperature: temperature,
		maxTokens:   DefaultMaxTokens,
	}
}

// Synthesize asks the model to answer question using only passages.
func (o *OpenAI) Synthesize(ctx context.Context, question string, passages []string) (string, error) {
	prompt := fmt.Sprintf("Context:\n%s\n\nQuestion: %s\n\nAnswer:", o.truncateContext(passages), question)

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(prompt),
		},
		Model:       openai.ChatModel(o.model),
		Temperature: openai.Float(o.temperature),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	return resp.Choices[0].Message.Content, nil
}

// truncateContext joins passages and cuts the result to fit within token limits.
// Uses rough estimate of 4 characters per token.
func (o *OpenAI) truncateContext(passages []string) string {
	content := strings.Join(passages, "\n\n")
	maxChars := o.maxTokens * 4

	runes := []rune(content)
	if len(runes) <= maxChars {
		return content
	}

	slog.Warn("truncating answer context",
		"from_chars", len(runes),
		"to_chars", maxChars,
		"max_tokens", o.maxTokens)

	return string(runes[:maxChars])
}
