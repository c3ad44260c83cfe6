// Package genai provides chat completion clients used by the LLM generation backend.
package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Default settings shared by the chat clients.
const (
	DefaultOpenAIModel    = openai.ChatModelGPT4oMini
	DefaultAnthropicModel = "claude-haiku-4-5-20251001"
	DefaultTemperature    = 0.7
	DefaultMaxTokens      = 1500
)

var (
	ErrNoAPIKey          = errors.New("API key not set")
	ErrNoChoicesReturned = errors.New("no choices returned")
	ErrEmptyContent      = errors.New("empty content returned")
)

// Completer answers a single system + user prompt exchange with text.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// chatService defines minimal interface for chat completions.
type chatService interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Opts holds configuration for the chat clients.
type Opts struct {
	APIKey      string
	BaseURL     string // OpenAI-compatible endpoint, e.g. Groq
	Model       string
	Temperature float64
	MaxTokens   int64
}

// Option defines a configuration option for the chat clients.
type Option func(*Opts)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithBaseURL points the OpenAI client at a compatible endpoint.
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// WithModel sets the model name.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(o *Opts) { o.Temperature = t }
}

// WithMaxTokens sets the completion token limit.
func WithMaxTokens(n int64) Option {
	return func(o *Opts) { o.MaxTokens = n }
}

func buildOpts(envKey, defaultModel string, opts []Option) Opts {
	cfg := Opts{Temperature: DefaultTemperature, MaxTokens: DefaultMaxTokens}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv(envKey)
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	return cfg
}

// Client wraps the OpenAI chat completion service.
type Client struct {
	chat        chatService
	model       string
	temperature float64
	maxTokens   int64
}

// NewClient creates an OpenAI client. The API key falls back to OPENAI_API_KEY.
func NewClient(opts ...Option) (*Client, error) {
	cfg := buildOpts("OPENAI_API_KEY", string(DefaultOpenAIModel), opts)
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: %w", ErrNoAPIKey)
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	cli := openai.NewClient(reqOpts...)
	slog.Debug("genai.NewClient: OpenAI client created", "model", cfg.Model, "baseURL", cfg.BaseURL)
	return &Client{
		chat:        &cli.Chat.Completions,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

// Complete sends the prompts as a system and a user message and returns the first choice.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
		Temperature: openai.Float(c.temperature),
	}
	if c.maxTokens > 0 {
		params.MaxTokens = openai.Int(c.maxTokens)
	}
	slog.Debug("Client.Complete: sending request", "model", c.model, "systemLen", len(systemPrompt), "userLen", len(userPrompt))
	resp, err := c.chat.New(ctx, params)
	if err != nil {
		slog.Error("Client.Complete: request failed", "model", c.model, "error", err)
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoicesReturned
	}
	content := resp.Choices[0].Message.Content
	if content == "" {
		return "", ErrEmptyContent
	}
	slog.Debug("Client.Complete: response received", "model", c.model, "contentLen", len(content))
	return content, nil
}

// IsRetryable reports whether a completion error is transient: rate limiting, server
// errors and network timeouts. Context cancellation is never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var oaErr *openai.Error
	if errors.As(err, &oaErr) {
		return retryableStatus(oaErr.StatusCode)
	}
	var anErr *anthropic.Error
	if errors.As(err, &anErr) {
		return retryableStatus(anErr.StatusCode)
	}
	return false
}

func retryableStatus(code int) bool {
	return code == 429 || code >= 500
}
