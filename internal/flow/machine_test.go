package flow

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/BTreeMap/PostPipe/internal/models"
)

func TestNewMachine_Validation(t *testing.T) {
	if _, err := NewMachine(nil); err == nil {
		t.Error("expected error for nil backend")
	}
	if _, err := NewMachine(newFakeBackend(), WithMaxIterations(0)); !errors.Is(err, models.ErrInvalidMaxIterations) {
		t.Errorf("expected ErrInvalidMaxIterations, got %v", err)
	}
	m := mustMachine(newFakeBackend())
	if m.MaxIterations() != DefaultMaxIterations {
		t.Errorf("expected default cap %d, got %d", DefaultMaxIterations, m.MaxIterations())
	}
}

func TestRun_NoFeedbackCompletes(t *testing.T) {
	b := newFakeBackend()
	m := mustMachine(b)
	st := m.NewRunState(sampleRequest())
	if err := m.Run(context.Background(), st); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !st.Done() {
		t.Fatalf("expected Done, got %s", st.Stage)
	}
	if st.IterationCount != 0 {
		t.Errorf("expected 0 iterations, got %d", st.IterationCount)
	}
	if st.FinalResult == nil || st.FinalResult.IsError() {
		t.Fatalf("expected posts in final result, got %+v", st.FinalResult)
	}
	if st.FinalResult.Facebook.Text != "generated facebook" {
		t.Errorf("unexpected facebook text %q", st.FinalResult.Facebook.Text)
	}
	if b.refineCalls != 0 {
		t.Errorf("expected no refinement calls, got %d", b.refineCalls)
	}
	if !reflect.DeepEqual(st.CreativeDirections, []string{"bold colors", "countdown"}) {
		t.Errorf("unexpected creative directions %v", st.CreativeDirections)
	}
}

func TestRun_ContextFailureUsesFallback(t *testing.T) {
	b := newFakeBackend()
	b.analyzeErr = errBackendDown
	m := mustMachine(b)
	st := m.NewRunState(sampleRequest())
	if err := m.Run(context.Background(), st); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if st.Context == nil {
		t.Fatal("expected fallback context")
	}
	if st.Context[models.ContextKeyAudienceInsights] != "Target audience: young adults" {
		t.Errorf("unexpected fallback context %v", st.Context)
	}
	if b.lastContext == nil {
		t.Error("fallback context should be forwarded to generation")
	}
	if !st.Done() || st.FinalResult.IsError() {
		t.Errorf("expected successful finalize, got %+v", st.FinalResult)
	}
}

func TestRun_GenerateFailureYieldsErrorResult(t *testing.T) {
	b := newFakeBackend()
	b.generateErr = errBackendDown
	m := mustMachine(b)
	st := m.NewRunState(sampleRequest())
	if err := m.Run(context.Background(), st); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if st.GeneratedPosts != nil {
		t.Error("expected no generated posts")
	}
	if !st.FinalResult.IsError() || st.FinalResult.Error != "no posts generated" {
		t.Errorf("expected no posts generated error, got %+v", st.FinalResult)
	}
}

func TestRun_StructuralErrorAborts(t *testing.T) {
	b := newFakeBackend()
	b.generateErr = &models.WorkflowError{Err: models.ErrMissingPlatform}
	m := mustMachine(b)
	st := m.NewRunState(sampleRequest())
	err := m.Run(context.Background(), st)
	if !errors.Is(err, models.ErrMissingPlatform) {
		t.Fatalf("expected ErrMissingPlatform, got %v", err)
	}
	if st.Done() || st.FinalResult != nil {
		t.Error("aborted run must not be finalized")
	}
}

func TestRun_CanceledContextFallsBack(t *testing.T) {
	b := newFakeBackend()
	m := mustMachine(b)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	st := m.NewRunState(sampleRequest())
	if err := m.Run(ctx, st); err != nil {
		t.Fatalf("cancellation must not abort the run: %v", err)
	}
	if st.Context == nil || st.GeneratedPosts != nil {
		t.Errorf("expected fallback context and no posts, got context=%v posts=%v", st.Context, st.GeneratedPosts)
	}
	if !st.Done() || !st.FinalResult.IsError() {
		t.Errorf("expected error result, got %+v", st.FinalResult)
	}
}

func TestRunUntilGate_SuspendsAtGate(t *testing.T) {
	m := mustMachine(newFakeBackend())
	st := m.NewRunState(sampleRequest())
	if err := m.RunUntilGate(context.Background(), st); err != nil {
		t.Fatalf("RunUntilGate failed: %v", err)
	}
	if !st.AwaitingFeedback() {
		t.Fatalf("expected suspension at gate, got stage %s gated=%v", st.Stage, st.Gated)
	}
	if st.FinalResult != nil {
		t.Error("final result must be unset before Done")
	}
}

func TestIterationCapNeverExceeded(t *testing.T) {
	for _, limit := range []int{1, 2, 3, 5} {
		b := newFakeBackend()
		m := mustMachine(b, WithMaxIterations(limit))
		st := m.NewRunState(sampleRequest())
		if err := m.RunUntilGate(context.Background(), st); err != nil {
			t.Fatalf("RunUntilGate failed: %v", err)
		}
		for i := 0; i < limit+3 && !st.Done(); i++ {
			st.Feedback = "make it shorter"
			st.NeedsRefinement = true
			if err := m.Resume(context.Background(), st); err != nil {
				t.Fatalf("Resume failed: %v", err)
			}
			if st.IterationCount > limit {
				t.Fatalf("cap %d: iteration count %d exceeds cap", limit, st.IterationCount)
			}
		}
		if !st.Done() {
			t.Fatalf("cap %d: expected Done after reaching the cap", limit)
		}
		if st.IterationCount != limit || b.refineCalls != limit {
			t.Errorf("cap %d: expected %d refinements, got count=%d calls=%d", limit, limit, st.IterationCount, b.refineCalls)
		}
	}
}

func TestRefineFailureKeepsPosts(t *testing.T) {
	b := newFakeBackend()
	b.refineErrs = []error{errBackendDown}
	m := mustMachine(b)
	st := m.NewRunState(sampleRequest())
	_ = m.RunUntilGate(context.Background(), st)

	st.Feedback = "more emojis"
	st.NeedsRefinement = true
	if err := m.Resume(context.Background(), st); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if st.IterationCount != 0 || st.RefinedPosts != nil {
		t.Errorf("failed refinement must not change posts or count, got count=%d refined=%v", st.IterationCount, st.RefinedPosts)
	}
	if !st.AwaitingFeedback() {
		t.Errorf("expected to be back at the gate, got %s", st.Stage)
	}
	if st.NeedsRefinement {
		t.Error("gate must reset the refinement flag")
	}
}

func TestRefineWithoutFeedbackIsNoop(t *testing.T) {
	b := newFakeBackend()
	m := mustMachine(b)
	st := m.NewRunState(sampleRequest())
	_ = m.RunUntilGate(context.Background(), st)

	st.NeedsRefinement = true
	if err := m.Resume(context.Background(), st); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if b.refineCalls != 0 || st.IterationCount != 0 {
		t.Errorf("expected no refinement, got calls=%d count=%d", b.refineCalls, st.IterationCount)
	}
}

func TestRefineConsumesFeedbackOnce(t *testing.T) {
	b := newFakeBackend()
	m := mustMachine(b)
	st := m.NewRunState(sampleRequest())
	_ = m.RunUntilGate(context.Background(), st)

	st.Feedback = "add a call to action"
	st.NeedsRefinement = true
	_ = m.Resume(context.Background(), st)
	if st.Feedback != "" || st.NeedsRefinement {
		t.Errorf("feedback must be consumed, got %q flag=%v", st.Feedback, st.NeedsRefinement)
	}
	if b.lastFeedback != "add a call to action" {
		t.Errorf("backend got feedback %q", b.lastFeedback)
	}
	if st.RefinedPosts == nil || st.CurrentPosts() != st.RefinedPosts {
		t.Error("refined posts must supersede generated posts")
	}
}

func TestBuildResultIdempotent(t *testing.T) {
	m := mustMachine(newFakeBackend())
	st := m.NewRunState(sampleRequest())
	_ = m.Run(context.Background(), st)
	a := BuildResult(st)
	b := BuildResult(st)
	if !reflect.DeepEqual(a, b) || !reflect.DeepEqual(a, st.FinalResult) {
		t.Errorf("BuildResult not idempotent: %+v vs %+v", a, b)
	}
}

func TestGuards(t *testing.T) {
	st := &RunState{MaxIterations: 3}
	if ShouldRefine(st) != models.StateFinalize {
		t.Error("no refinement requested should finalize")
	}
	st.NeedsRefinement = true
	if ShouldRefine(st) != models.StateRefinePosts {
		t.Error("refinement requested should refine")
	}
	st.IterationCount = 2
	if CheckIterationLimit(st) != models.StateAwaitFeedback {
		t.Error("below cap should return to the gate")
	}
	st.IterationCount = 3
	if CheckIterationLimit(st) != models.StateFinalize {
		t.Error("reaching the cap should finalize")
	}
}

func TestStep_UnknownStage(t *testing.T) {
	m := mustMachine(newFakeBackend())
	st := &RunState{Stage: "BOGUS", MaxIterations: 3}
	if err := m.Step(context.Background(), st); !errors.Is(err, models.ErrUnknownStage) {
		t.Errorf("expected ErrUnknownStage, got %v", err)
	}
}

func TestValidTransition(t *testing.T) {
	if !ValidTransition(models.StateRefinePosts, models.StateAwaitFeedback) {
		t.Error("refine -> await should be valid")
	}
	if ValidTransition(models.StateContextAnalysis, models.StateFinalize) {
		t.Error("context -> finalize should be invalid")
	}
	if ValidTransition(models.StateDone, models.StateContextAnalysis) {
		t.Error("done is terminal")
	}
}

func TestRunStateEncodeDecode(t *testing.T) {
	m := mustMachine(newFakeBackend())
	st := m.NewRunState(sampleRequest())
	_ = m.RunUntilGate(context.Background(), st)
	data, err := st.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	restored, err := DecodeRunState(data)
	if err != nil {
		t.Fatalf("DecodeRunState failed: %v", err)
	}
	if !restored.AwaitingFeedback() || restored.GeneratedPosts == nil {
		t.Errorf("restored state lost suspension or posts: %+v", restored)
	}
	if !reflect.DeepEqual(restored.Context.CreativeDirections(), st.CreativeDirections) {
		t.Errorf("creative directions changed across encoding")
	}
	if _, err := DecodeRunState([]byte(`{"stage":"NOPE"}`)); !errors.Is(err, models.ErrUnknownStage) {
		t.Errorf("expected ErrUnknownStage, got %v", err)
	}
}
