package genai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// mockChatService implements chatService for testing.
type mockChatService struct {
	resp   *openai.ChatCompletion
	err    error
	params openai.ChatCompletionNewParams
}

func (m *mockChatService) New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error) {
	m.params = params
	return m.resp, m.err
}

// mockMessageService implements messageService for testing.
type mockMessageService struct {
	resp   *anthropic.Message
	err    error
	params anthropic.MessageNewParams
}

func (m *mockMessageService) New(ctx context.Context, params anthropic.MessageNewParams, opts ...anthropicopt.RequestOption) (*anthropic.Message, error) {
	m.params = params
	return m.resp, m.err
}

func TestComplete_Success(t *testing.T) {
	mock := &mockChatService{resp: &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: "Hello World"}},
		},
	}}
	client := &Client{chat: mock, model: "gpt-4o-mini", temperature: 0.7, maxTokens: 100}
	out, err := client.Complete(context.Background(), "system prompt", "user prompt")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out != "Hello World" {
		t.Errorf("expected 'Hello World', got '%s'", out)
	}
	if len(mock.params.Messages) != 2 {
		t.Errorf("expected system and user messages, got %d", len(mock.params.Messages))
	}
	if string(mock.params.Model) != "gpt-4o-mini" {
		t.Errorf("expected model gpt-4o-mini, got %s", mock.params.Model)
	}
}

func TestComplete_ServiceError(t *testing.T) {
	client := &Client{chat: &mockChatService{err: errors.New("service failure")}}
	_, err := client.Complete(context.Background(), "sys", "usr")
	if err == nil || !strings.Contains(err.Error(), "service failure") {
		t.Errorf("expected service failure error, got %v", err)
	}
}

func TestComplete_NoChoices(t *testing.T) {
	client := &Client{chat: &mockChatService{resp: &openai.ChatCompletion{}}}
	_, err := client.Complete(context.Background(), "sys", "usr")
	if !errors.Is(err, ErrNoChoicesReturned) {
		t.Errorf("expected no choices returned error, got %v", err)
	}
}

func TestComplete_EmptyContent(t *testing.T) {
	client := &Client{chat: &mockChatService{resp: &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{}}},
	}}}
	_, err := client.Complete(context.Background(), "sys", "usr")
	if !errors.Is(err, ErrEmptyContent) {
		t.Errorf("expected empty content error, got %v", err)
	}
}

func TestNewClient_NoKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := NewClient()
	if !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("expected ErrNoAPIKey, got %v", err)
	}
}

func TestNewClient_WithKey(t *testing.T) {
	cli, err := NewClient(WithAPIKey("test-key"), WithModel("llama-3.3-70b-versatile"), WithBaseURL("https://api.groq.com/openai/v1"))
	if err != nil {
		t.Fatalf("expected no error with API key, got %v", err)
	}
	if cli.model != "llama-3.3-70b-versatile" {
		t.Errorf("expected model override, got %s", cli.model)
	}
}

func TestNewClient_EnvKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "env-key")
	cli, err := NewClient()
	if err != nil {
		t.Fatalf("expected env key to be used, got %v", err)
	}
	if cli.model != string(DefaultOpenAIModel) {
		t.Errorf("expected default model, got %s", cli.model)
	}
}

func TestAnthropicComplete_Success(t *testing.T) {
	mock := &mockMessageService{resp: &anthropic.Message{
		Content: []anthropic.ContentBlockUnion{{Type: "text", Text: "Bonjour"}},
	}}
	client := &AnthropicClient{messages: mock, model: DefaultAnthropicModel, maxTokens: 256}
	out, err := client.Complete(context.Background(), "sys", "usr")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out != "Bonjour" {
		t.Errorf("expected 'Bonjour', got %q", out)
	}
	if len(mock.params.System) != 1 || mock.params.System[0].Text != "sys" {
		t.Errorf("expected system prompt to be forwarded, got %+v", mock.params.System)
	}
	if mock.params.MaxTokens != 256 {
		t.Errorf("expected max tokens 256, got %d", mock.params.MaxTokens)
	}
}

func TestAnthropicComplete_NoText(t *testing.T) {
	client := &AnthropicClient{messages: &mockMessageService{resp: &anthropic.Message{
		Content: []anthropic.ContentBlockUnion{{Type: "tool_use"}},
	}}}
	if _, err := client.Complete(context.Background(), "sys", "usr"); !errors.Is(err, ErrEmptyContent) {
		t.Errorf("expected ErrEmptyContent, got %v", err)
	}
	client = &AnthropicClient{messages: &mockMessageService{resp: &anthropic.Message{}}}
	if _, err := client.Complete(context.Background(), "sys", "usr"); !errors.Is(err, ErrNoChoicesReturned) {
		t.Errorf("expected ErrNoChoicesReturned, got %v", err)
	}
}

func TestNewAnthropicClient_NoKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	if _, err := NewAnthropicClient(); !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("expected ErrNoAPIKey, got %v", err)
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, false},
		{"net timeout", timeoutErr{}, true},
		{"openai rate limit", &openai.Error{StatusCode: 429}, true},
		{"openai server error", &openai.Error{StatusCode: 503}, true},
		{"openai unauthorized", &openai.Error{StatusCode: 401}, false},
		{"anthropic overloaded", &anthropic.Error{StatusCode: 529}, true},
		{"anthropic bad request", &anthropic.Error{StatusCode: 400}, false},
		{"plain", errors.New("nope"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
