package genai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
)

// messageService defines minimal interface for the Anthropic messages API.
type messageService interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...anthropicopt.RequestOption) (*anthropic.Message, error)
}

// AnthropicClient wraps the Anthropic messages service.
type AnthropicClient struct {
	messages    messageService
	model       string
	temperature float64
	maxTokens   int64
}

// NewAnthropicClient creates an Anthropic client. The API key falls back to ANTHROPIC_API_KEY.
func NewAnthropicClient(opts ...Option) (*AnthropicClient, error) {
	cfg := buildOpts("ANTHROPIC_API_KEY", DefaultAnthropicModel, opts)
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: %w", ErrNoAPIKey)
	}
	reqOpts := []anthropicopt.RequestOption{anthropicopt.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, anthropicopt.WithBaseURL(cfg.BaseURL))
	}
	cli := anthropic.NewClient(reqOpts...)
	slog.Debug("genai.NewAnthropicClient: Anthropic client created", "model", cfg.Model)
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &AnthropicClient{
		messages:    &cli.Messages,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   maxTokens,
	}, nil
}

// Complete sends the system prompt and a single user message and returns the first text block.
func (c *AnthropicClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   c.maxTokens,
		Temperature: anthropic.Float(c.temperature),
		System:      []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	}
	slog.Debug("AnthropicClient.Complete: sending request", "model", c.model, "systemLen", len(systemPrompt), "userLen", len(userPrompt))
	msg, err := c.messages.New(ctx, params)
	if err != nil {
		slog.Error("AnthropicClient.Complete: request failed", "model", c.model, "error", err)
		return "", err
	}
	for _, block := range msg.Content {
		if block.Type == "text" && block.Text != "" {
			return block.Text, nil
		}
	}
	if len(msg.Content) == 0 {
		return "", ErrNoChoicesReturned
	}
	return "", fmt.Errorf("%w: no text block (first block type=%s)", ErrEmptyContent, msg.Content[0].Type)
}
