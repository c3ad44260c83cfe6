package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/PostPipe/internal/models"
)

// transitions lists the permitted edges of the workflow graph.
var transitions = map[models.StateType][]models.StateType{
	models.StateContextAnalysis: {models.StateGeneratePosts},
	models.StateGeneratePosts:   {models.StateAwaitFeedback},
	models.StateAwaitFeedback:   {models.StateRefinePosts, models.StateFinalize},
	models.StateRefinePosts:     {models.StateAwaitFeedback, models.StateFinalize},
	models.StateFinalize:        {models.StateDone},
}

// ValidTransition reports whether the workflow graph has an edge from -> to.
func ValidTransition(from, to models.StateType) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// stage is one node of the workflow: a handler that mutates the state and a router
// that picks the next stage afterwards.
type stage struct {
	handle func(ctx context.Context, st *RunState) error
	next   func(st *RunState) models.StateType
}

// MachineOpts holds configuration for a Machine.
type MachineOpts struct {
	MaxIterations int
}

// MachineOption defines a configuration option for a Machine.
type MachineOption func(*MachineOpts)

// WithMaxIterations sets the refinement cap.
func WithMaxIterations(n int) MachineOption {
	return func(o *MachineOpts) { o.MaxIterations = n }
}

// Machine sequences the workflow stages over a Backend. A Machine holds no per-run
// state and may be shared by concurrent runs.
type Machine struct {
	backend       Backend
	maxIterations int
	stages        map[models.StateType]stage
}

// NewMachine creates a Machine. The refinement cap defaults to DefaultMaxIterations.
func NewMachine(backend Backend, opts ...MachineOption) (*Machine, error) {
	if backend == nil {
		return nil, errors.New("flow: backend is required")
	}
	cfg := MachineOpts{MaxIterations: DefaultMaxIterations}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.MaxIterations < 1 {
		return nil, &models.ValidationError{Field: "max_iterations", Err: models.ErrInvalidMaxIterations}
	}
	m := &Machine{backend: backend, maxIterations: cfg.MaxIterations}
	m.stages = map[models.StateType]stage{
		models.StateContextAnalysis: {m.analyzeContext, always(models.StateGeneratePosts)},
		models.StateGeneratePosts:   {m.generatePosts, always(models.StateAwaitFeedback)},
		models.StateAwaitFeedback:   {m.awaitFeedback, ShouldRefine},
		models.StateRefinePosts:     {m.refinePosts, CheckIterationLimit},
		models.StateFinalize:        {m.finalize, always(models.StateDone)},
	}
	return m, nil
}

// MaxIterations returns the configured refinement cap.
func (m *Machine) MaxIterations() int {
	return m.maxIterations
}

// NewRunState returns a fresh state positioned at the entry stage.
func (m *Machine) NewRunState(req models.Request) *RunState {
	return &RunState{
		Request:       req,
		MaxIterations: m.maxIterations,
		Stage:         models.StateContextAnalysis,
	}
}

func always(s models.StateType) func(*RunState) models.StateType {
	return func(*RunState) models.StateType { return s }
}

// ShouldRefine is the gate's guard: refine when feedback asked for it, else finalize.
func ShouldRefine(st *RunState) models.StateType {
	if st.NeedsRefinement {
		return models.StateRefinePosts
	}
	return models.StateFinalize
}

// CheckIterationLimit routes to Finalize once the refinement cap is reached.
func CheckIterationLimit(st *RunState) models.StateType {
	if st.IterationCount >= st.MaxIterations {
		return models.StateFinalize
	}
	return models.StateAwaitFeedback
}

// Run drives the state to Done without stopping at the gate. With no feedback
// supplied, the gate's guard routes straight to Finalize.
func (m *Machine) Run(ctx context.Context, st *RunState) error {
	return m.drive(ctx, st, false)
}

// RunUntilGate drives the state until it is suspended at the feedback gate or Done.
func (m *Machine) RunUntilGate(ctx context.Context, st *RunState) error {
	return m.drive(ctx, st, true)
}

// Resume evaluates the gate's guard for a suspended state and drives it to the next
// suspension or Done. A state that is not suspended is driven as by RunUntilGate.
func (m *Machine) Resume(ctx context.Context, st *RunState) error {
	return m.drive(ctx, st, true)
}

func (m *Machine) drive(ctx context.Context, st *RunState, suspend bool) error {
	if st.MaxIterations < 1 {
		return &models.WorkflowError{Stage: st.Stage, Err: models.ErrInvalidMaxIterations}
	}
	for !st.Done() {
		if st.AwaitingFeedback() {
			st.Gated = false
			if err := m.transition(st, ShouldRefine(st)); err != nil {
				return err
			}
			continue
		}
		if err := m.Step(ctx, st); err != nil {
			return err
		}
		if suspend && st.AwaitingFeedback() {
			slog.Debug("Machine.drive: suspended at feedback gate", "iteration", st.IterationCount, "maxIterations", st.MaxIterations)
			return nil
		}
	}
	return nil
}

// Step runs the handler of the current stage and moves to the stage its router
// picks. At the gate, Step only runs the handler and leaves the state suspended.
func (m *Machine) Step(ctx context.Context, st *RunState) error {
	s, ok := m.stages[st.Stage]
	if !ok {
		return &models.WorkflowError{Stage: st.Stage, Err: models.ErrUnknownStage}
	}
	if err := s.handle(ctx, st); err != nil {
		return err
	}
	if st.Stage == models.StateAwaitFeedback {
		return nil
	}
	return m.transition(st, s.next(st))
}

func (m *Machine) transition(st *RunState, to models.StateType) error {
	from := st.Stage
	if !ValidTransition(from, to) {
		err := fmt.Errorf("invalid state transition: %s -> %s", from, to)
		slog.Error("Machine.transition: invalid transition", "from", from, "to", to)
		return &models.WorkflowError{Stage: from, Err: err}
	}
	st.Stage = to
	slog.Debug("Machine.transition", "from", from, "to", to, "iteration", st.IterationCount)
	return nil
}

// fatal reports whether a backend error is a structural failure that must abort the
// run. Backend failures are recovered locally; a bare WorkflowError is not.
func fatal(err error) bool {
	var be *models.BackendError
	if errors.As(err, &be) {
		return false
	}
	var we *models.WorkflowError
	return errors.As(err, &we)
}

func (m *Machine) analyzeContext(ctx context.Context, st *RunState) error {
	req := st.Request
	cc, err := m.backend.AnalyzeContext(ctx, req.CampaignMessage, req.TargetAudience, req.Tone)
	if err != nil {
		if fatal(err) {
			return err
		}
		slog.Warn("Machine.analyzeContext: backend failed, using fallback context", "error", err)
		cc = models.FallbackContext(req.TargetAudience)
	} else if cc == nil {
		slog.Warn("Machine.analyzeContext: backend returned no context, using fallback context")
		cc = models.FallbackContext(req.TargetAudience)
	}
	st.Context = cc
	st.CreativeDirections = cc.CreativeDirections()
	slog.Info("Machine.analyzeContext: context ready", "creativeDirections", len(st.CreativeDirections))
	return nil
}

func (m *Machine) generatePosts(ctx context.Context, st *RunState) error {
	req := st.Request
	posts, err := m.backend.GeneratePosts(ctx, st.Context, req.CampaignMessage, req.TargetAudience, req.Tone, req.UseEmojis)
	if err != nil {
		if fatal(err) {
			return err
		}
		slog.Warn("Machine.generatePosts: backend failed, no posts generated", "error", err)
		st.GeneratedPosts = nil
		return nil
	}
	st.GeneratedPosts = &posts
	if v := posts.LimitViolations(); len(v) > 0 {
		slog.Warn("Machine.generatePosts: posts exceed platform limits", "violations", v)
	}
	slog.Info("Machine.generatePosts: posts generated")
	return nil
}

func (m *Machine) awaitFeedback(_ context.Context, st *RunState) error {
	st.NeedsRefinement = false
	st.Gated = true
	return nil
}

func (m *Machine) refinePosts(ctx context.Context, st *RunState) error {
	if st.Feedback == "" {
		slog.Debug("Machine.refinePosts: no feedback, nothing to refine")
		return nil
	}
	current := st.CurrentPosts()
	if current == nil {
		slog.Warn("Machine.refinePosts: no posts to refine", "iteration", st.IterationCount)
		return nil
	}
	refined, err := m.backend.RefinePosts(ctx, current.Clone(), st.Feedback)
	if err != nil {
		if fatal(err) {
			return err
		}
		slog.Warn("Machine.refinePosts: backend failed, keeping current posts", "error", err, "iteration", st.IterationCount)
		return nil
	}
	st.RefinedPosts = &refined
	st.IterationCount++
	st.NeedsRefinement = false
	st.Feedback = ""
	slog.Info("Machine.refinePosts: posts refined", "iteration", st.IterationCount, "maxIterations", st.MaxIterations)
	return nil
}

func (m *Machine) finalize(_ context.Context, st *RunState) error {
	st.FinalResult = BuildResult(st)
	slog.Info("Machine.finalize: run finalized", "iterations", st.IterationCount, "error", st.FinalResult.Error)
	return nil
}

// BuildResult computes the final payload from the current posts. It does not modify
// the state and returns an equal result on every call.
func BuildResult(st *RunState) *models.FinalResult {
	posts := st.CurrentPosts()
	if posts == nil {
		return models.NewErrorResult(models.ErrNoPostsGenerated.Error())
	}
	return models.NewFinalResult(*posts)
}
