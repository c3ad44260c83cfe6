// Package flow implements the social media content workflow: a five-stage state
// machine over a generation Backend, an interactive Runner that suspends at the
// feedback gate, and a SessionManager that persists runs between calls.
package flow

import (
	"context"

	"github.com/BTreeMap/PostPipe/internal/models"
)

// Backend generates campaign content. Implementations report every failure as a
// returned error, preferably a *models.BackendError.
type Backend interface {
	// AnalyzeContext produces the campaign context used to guide generation.
	AnalyzeContext(ctx context.Context, message, audience string, tone models.Tone) (models.CampaignContext, error)
	// GeneratePosts produces one post per platform.
	GeneratePosts(ctx context.Context, cc models.CampaignContext, message, audience string, tone models.Tone, useEmojis bool) (models.AggregatePosts, error)
	// RefinePosts rewrites the current posts according to reviewer feedback.
	RefinePosts(ctx context.Context, current models.AggregatePosts, feedback string) (models.AggregatePosts, error)
}

// Backend operation names, used in logs, errors and metrics.
const (
	OpAnalyzeContext = "analyze_context"
	OpGeneratePosts  = "generate_posts"
	OpRefinePosts    = "refine_posts"
)
