// Package backend provides implementations of the workflow's generation backend: an
// LLM backend over a chat completer, an offline template backend, and decorators
// for timeouts, retries and metrics.
package backend

import (
	"context"
	"log/slog"

	"github.com/BTreeMap/PostPipe/internal/flow"
	"github.com/BTreeMap/PostPipe/internal/genai"
	"github.com/BTreeMap/PostPipe/internal/models"
)

// LLM generates content by prompting a chat model and parsing its JSON replies.
type LLM struct {
	completer genai.Completer
}

var _ flow.Backend = (*LLM)(nil)

// NewLLM creates an LLM backend.
func NewLLM(c genai.Completer) *LLM {
	return &LLM{completer: c}
}

func (l *LLM) complete(ctx context.Context, op string, data promptData) (string, error) {
	system, user, err := renderPair(promptName(op), data)
	if err != nil {
		return "", models.NewBackendError(op, models.BackendErrorMalformed, err)
	}
	content, err := l.completer.Complete(ctx, system, user)
	if err != nil {
		kind := models.BackendErrorTransport
		if genai.IsRetryable(err) {
			kind = models.BackendErrorUnavailable
		}
		return "", models.NewBackendError(op, kind, err)
	}
	slog.Debug("LLM.complete: reply received", "op", op, "length", len(content))
	return content, nil
}

func promptName(op string) string {
	switch op {
	case flow.OpAnalyzeContext:
		return "context"
	case flow.OpGeneratePosts:
		return "posts"
	default:
		return "refine"
	}
}

// AnalyzeContext asks the model for key messages, audience insights, platform
// strategies and creative directions.
func (l *LLM) AnalyzeContext(ctx context.Context, message, audience string, tone models.Tone) (models.CampaignContext, error) {
	content, err := l.complete(ctx, flow.OpAnalyzeContext, promptData{Message: message, Audience: audience, Tone: tone})
	if err != nil {
		return nil, err
	}
	cc, err := parseContext(content)
	if err != nil {
		slog.Warn("LLM.AnalyzeContext: unusable reply", "error", err)
		return nil, models.NewBackendError(flow.OpAnalyzeContext, models.BackendErrorMalformed, err)
	}
	return cc, nil
}

// GeneratePosts asks the model for one post per platform.
func (l *LLM) GeneratePosts(ctx context.Context, cc models.CampaignContext, message, audience string, tone models.Tone, useEmojis bool) (models.AggregatePosts, error) {
	content, err := l.complete(ctx, flow.OpGeneratePosts, promptData{
		Message:   message,
		Audience:  audience,
		Tone:      tone,
		EmojiRule: emojiRule(useEmojis),
		Context:   compactJSON(cc),
	})
	if err != nil {
		return models.AggregatePosts{}, err
	}
	posts, err := parsePosts(content)
	if err != nil {
		slog.Warn("LLM.GeneratePosts: unusable reply", "error", err)
		return models.AggregatePosts{}, models.NewBackendError(flow.OpGeneratePosts, models.BackendErrorMalformed, err)
	}
	return posts, nil
}

// RefinePosts asks the model to rewrite the posts according to the feedback.
func (l *LLM) RefinePosts(ctx context.Context, current models.AggregatePosts, feedback string) (models.AggregatePosts, error) {
	content, err := l.complete(ctx, flow.OpRefinePosts, promptData{
		Posts:    compactJSON(current),
		Feedback: feedback,
	})
	if err != nil {
		return models.AggregatePosts{}, err
	}
	posts, err := parsePosts(content)
	if err != nil {
		slog.Warn("LLM.RefinePosts: unusable reply", "error", err)
		return models.AggregatePosts{}, models.NewBackendError(flow.OpRefinePosts, models.BackendErrorMalformed, err)
	}
	return posts, nil
}
