package flow

import (
	"context"
	"log/slog"
	"strings"

	"github.com/BTreeMap/PostPipe/internal/models"
)

// OutcomeStatus is the status reported to interactive callers.
type OutcomeStatus string

const (
	OutcomeAwaitingFeedback OutcomeStatus = "awaiting_feedback"
	OutcomeRefined          OutcomeStatus = "refined"
	OutcomeCompleted        OutcomeStatus = "completed"
	OutcomeError            OutcomeStatus = "error"
)

// Messages reported in error outcomes.
const (
	MsgGenerationFailed = "failed to generate posts"
	MsgRefinementFailed = "failed to refine posts"
	MsgNotStarted       = "no active workflow run"
	MsgNotAwaiting      = "workflow is not awaiting feedback"
)

// Outcome is the result of one Runner operation.
type Outcome struct {
	Status             OutcomeStatus           `json:"status"`
	Posts              *models.AggregatePosts  `json:"posts,omitempty"`
	Context            models.CampaignContext  `json:"context,omitempty"`
	CreativeDirections []string                `json:"creative_directions,omitempty"`
	CanContinue        bool                    `json:"can_continue"`
	IterationCount     int                     `json:"iteration_count"`
	MaxIterations      int                     `json:"max_iterations"`
	Result             *models.FinalResult     `json:"result,omitempty"`
	LimitViolations    []models.LimitViolation `json:"limit_violations,omitempty"`
	Message            string                  `json:"message,omitempty"`
}

// Runner exposes the machine as a start / feedback / finalize protocol. A Runner owns
// one RunState and is not safe for concurrent use.
type Runner struct {
	machine *Machine
	state   *RunState
}

// NewRunner creates a Runner with no active run.
func NewRunner(m *Machine) *Runner {
	return &Runner{machine: m}
}

// RestoreRunner creates a Runner that continues a previously saved run.
func RestoreRunner(m *Machine, st *RunState) *Runner {
	return &Runner{machine: m, state: st}
}

// State returns a copy of the current run state, or nil before a run is started.
func (r *Runner) State() *RunState {
	if r.state == nil {
		return nil
	}
	return r.state.Clone()
}

// StartAndRunUntilFeedback begins a new run and drives it to the feedback gate. The
// returned error is non-nil only for structural failures.
func (r *Runner) StartAndRunUntilFeedback(ctx context.Context, req models.Request) (Outcome, error) {
	if err := req.Validate(); err != nil {
		return Outcome{}, err
	}
	r.state = r.machine.NewRunState(req)
	slog.Info("Runner.StartAndRunUntilFeedback: starting run", "tone", req.Tone, "useEmojis", req.UseEmojis, "maxIterations", r.state.MaxIterations)
	if err := r.machine.RunUntilGate(ctx, r.state); err != nil {
		slog.Error("Runner.StartAndRunUntilFeedback: run failed", "error", err)
		return Outcome{}, err
	}
	if r.state.GeneratedPosts == nil {
		return r.errorOutcome(MsgGenerationFailed), nil
	}
	out := r.snapshot(OutcomeAwaitingFeedback)
	out.Context = r.state.Context
	out.CreativeDirections = r.state.CreativeDirections
	return out, nil
}

// SupplyFeedback hands reviewer feedback to a suspended run. Empty feedback accepts
// the current posts and finalizes the run.
func (r *Runner) SupplyFeedback(ctx context.Context, feedback string) (Outcome, error) {
	if r.state == nil {
		return r.errorOutcome(MsgNotStarted), nil
	}
	if r.state.Done() {
		return r.completed(), nil
	}
	if err := models.ValidateFeedback(feedback); err != nil {
		return Outcome{}, err
	}
	feedback = strings.TrimSpace(feedback)
	if feedback == "" {
		return r.Finalize(ctx)
	}
	if !r.state.AwaitingFeedback() {
		return r.errorOutcome(MsgNotAwaiting), nil
	}
	if r.state.CurrentPosts() == nil {
		return r.errorOutcome(MsgGenerationFailed), nil
	}

	before := r.state.IterationCount
	r.state.Feedback = feedback
	r.state.NeedsRefinement = true
	slog.Debug("Runner.SupplyFeedback: resuming run", "iteration", before, "feedbackLen", len(feedback))
	if err := r.machine.Resume(ctx, r.state); err != nil {
		slog.Error("Runner.SupplyFeedback: run failed", "error", err)
		return Outcome{}, err
	}

	switch {
	case r.state.IterationCount > before:
		// Reaching the cap finalizes the run in this call; the result is reported by
		// the next interaction.
		return r.snapshot(OutcomeRefined), nil
	case r.state.Done():
		return r.completed(), nil
	default:
		return r.errorOutcome(MsgRefinementFailed), nil
	}
}

// Finalize accepts the current posts and drives the run to Done.
func (r *Runner) Finalize(ctx context.Context) (Outcome, error) {
	if r.state == nil {
		return r.errorOutcome(MsgNotStarted), nil
	}
	if r.state.Done() {
		return r.completed(), nil
	}
	if !r.state.AwaitingFeedback() {
		return r.errorOutcome(MsgNotAwaiting), nil
	}
	r.state.NeedsRefinement = false
	r.state.Feedback = ""
	if err := r.machine.Run(ctx, r.state); err != nil {
		slog.Error("Runner.Finalize: run failed", "error", err)
		return Outcome{}, err
	}
	return r.completed(), nil
}

// Current reports the current state without advancing the run.
func (r *Runner) Current() Outcome {
	switch {
	case r.state == nil:
		return r.errorOutcome(MsgNotStarted)
	case r.state.Done():
		return r.completed()
	case r.state.IterationCount > 0:
		return r.snapshot(OutcomeRefined)
	case r.state.GeneratedPosts == nil:
		return r.errorOutcome(MsgGenerationFailed)
	default:
		out := r.snapshot(OutcomeAwaitingFeedback)
		out.Context = r.state.Context
		out.CreativeDirections = r.state.CreativeDirections
		return out
	}
}

func (r *Runner) snapshot(status OutcomeStatus) Outcome {
	out := Outcome{
		Status:         status,
		CanContinue:    r.state.CanContinue(),
		IterationCount: r.state.IterationCount,
		MaxIterations:  r.state.MaxIterations,
	}
	if posts := r.state.CurrentPosts(); posts != nil {
		p := posts.Clone()
		out.Posts = &p
		out.LimitViolations = p.LimitViolations()
	}
	return out
}

func (r *Runner) completed() Outcome {
	out := Outcome{
		Status:         OutcomeCompleted,
		IterationCount: r.state.IterationCount,
		MaxIterations:  r.state.MaxIterations,
		Result:         r.state.FinalResult,
	}
	return out
}

func (r *Runner) errorOutcome(msg string) Outcome {
	out := Outcome{Status: OutcomeError, Message: msg}
	if r.state != nil {
		out.IterationCount = r.state.IterationCount
		out.MaxIterations = r.state.MaxIterations
		out.CanContinue = r.state.AwaitingFeedback() && r.state.CanContinue()
	}
	return out
}
