package consensus

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/clearfile/credit-cli/pkg/anthropic"
	"github.com/clearfile/credit-cli/pkg/gemini"
)

// CompletionRequest is the provider-neutral request the invoker issues.
type CompletionRequest struct {
	Model       string
	Prompt      string
	Temperature float64
	MaxTokens   int64
}

// Completion is the provider-neutral response.
type Completion struct {
	Text         string
	ModelVersion string
}

// TextCompleter abstracts one generative text service. Implementations wrap
// the provider clients in pkg/.
type TextCompleter interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}

// anthropicCompleter adapts anthropic.Client to TextCompleter.
type anthropicCompleter struct {
	client anthropic.Client
}

// NewAnthropicCompleter wraps an Anthropic client as a TextCompleter.
func NewAnthropicCompleter(client anthropic.Client) TextCompleter {
	return &anthropicCompleter{client: client}
}

func (c *anthropicCompleter) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	temp := req.Temperature
	resp, err := c.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: &temp,
		Messages: []anthropic.Message{
			{Role: "user", Content: req.Prompt},
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "consensus: anthropic completion")
	}

	resp.Usage.LogCost(req.Model, "consensus")

	return &Completion{
		Text:         resp.Text(),
		ModelVersion: resp.Model,
	}, nil
}

// geminiCompleter adapts gemini.Client to TextCompleter.
type geminiCompleter struct {
	client gemini.Client
}

// NewGeminiCompleter wraps a Gemini client as a TextCompleter.
func NewGeminiCompleter(client gemini.Client) TextCompleter {
	return &geminiCompleter{client: client}
}

func (c *geminiCompleter) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	temp := req.Temperature
	maxTokens := int(req.MaxTokens)
	resp, err := c.client.GenerateContent(ctx, gemini.GenerateRequest{
		Model:       req.Model,
		Prompt:      req.Prompt,
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		return nil, eris.Wrap(err, "consensus: gemini completion")
	}

	return &Completion{
		Text:         resp.Text(),
		ModelVersion: resp.ModelVersion,
	}, nil
}
