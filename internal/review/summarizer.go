package review

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Summarizer turns a period's activity bundle into review prose.
type Summarizer interface {
	Summarize(ctx context.Context, b *Bundle, period string) (string, error)
}

const summarySystemPrompt = `You write performance self-review summaries from raw engineering activity data. Write in first person, in plain professional prose. Ground every claim in the data provided; never invent projects or accomplishments that are not present in it.`

// AnthropicSummarizer implements Summarizer against the Anthropic Messages API.
type AnthropicSummarizer struct {
	api   *anthropic.Client
	model anthropic.Model
}

// NewAnthropicSummarizer creates a summarizer with the given API key and
// model. An empty key falls back to the SDK's environment lookup.
func NewAnthropicSummarizer(apiKey, model string) *AnthropicSummarizer {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	return &AnthropicSummarizer{
		api:   &client,
		model: anthropic.Model(model),
	}
}

// Summarize sends the rendered bundle to the model and returns the summary
// text.
func (s *AnthropicSummarizer) Summarize(ctx context.Context, b *Bundle, period string) (string, error) {
	prompt := BuildPrompt(b, period)

	msg, err := s.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     s.model,
		MaxTokens: 4096,
		System: []anthropic.TextBlockParam{
			{Text: summarySystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API call: %w", err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return "", fmt.Errorf("no text content in API response")
	}

	return strings.TrimSpace(text), nil
}
