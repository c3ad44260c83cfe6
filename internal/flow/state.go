package flow

import (
	"encoding/json"

	"github.com/BTreeMap/PostPipe/internal/models"
)

// DefaultMaxIterations is the refinement cap used when none is configured.
const DefaultMaxIterations = 3

// RunState is the mutable state of a single workflow run. It is owned by exactly one
// run and only modified by the machine's stage handlers and the Runner.
type RunState struct {
	Request            models.Request         `json:"request"`
	Context            models.CampaignContext `json:"context,omitempty"`
	CreativeDirections []string               `json:"creative_directions,omitempty"`
	GeneratedPosts     *models.AggregatePosts `json:"generated_posts,omitempty"`
	Feedback           string                 `json:"feedback,omitempty"`
	RefinedPosts       *models.AggregatePosts `json:"refined_posts,omitempty"`
	NeedsRefinement    bool                   `json:"needs_refinement"`
	IterationCount     int                    `json:"iteration_count"`
	MaxIterations      int                    `json:"max_iterations"`
	FinalResult        *models.FinalResult    `json:"final_result,omitempty"`
	Stage              models.StateType       `json:"stage"`
	// Gated is set once the AwaitFeedback handler has run and the run is suspended
	// waiting for the gate's guard to be evaluated.
	Gated bool `json:"gated,omitempty"`
}

// CurrentPosts returns the refined posts if present, else the generated posts, else nil.
func (s *RunState) CurrentPosts() *models.AggregatePosts {
	if s.RefinedPosts != nil {
		return s.RefinedPosts
	}
	return s.GeneratedPosts
}

// Done reports whether the run reached its terminal stage.
func (s *RunState) Done() bool {
	return s.Stage == models.StateDone
}

// AwaitingFeedback reports whether the run is suspended at the feedback gate.
func (s *RunState) AwaitingFeedback() bool {
	return s.Stage == models.StateAwaitFeedback && s.Gated
}

// CanContinue reports whether another refinement cycle is permitted.
func (s *RunState) CanContinue() bool {
	return s.IterationCount < s.MaxIterations
}

// Clone returns a copy of the state that shares no posts or slices with s. The
// campaign context map is copied one level deep; its values are treated as read-only.
func (s *RunState) Clone() *RunState {
	c := *s
	if s.Context != nil {
		c.Context = make(models.CampaignContext, len(s.Context))
		for k, v := range s.Context {
			c.Context[k] = v
		}
	}
	c.CreativeDirections = append([]string(nil), s.CreativeDirections...)
	if s.GeneratedPosts != nil {
		p := s.GeneratedPosts.Clone()
		c.GeneratedPosts = &p
	}
	if s.RefinedPosts != nil {
		p := s.RefinedPosts.Clone()
		c.RefinedPosts = &p
	}
	if s.FinalResult != nil {
		r := *s.FinalResult
		c.FinalResult = &r
	}
	return &c
}

// Encode serializes the state for persistence.
func (s *RunState) Encode() ([]byte, error) {
	return json.Marshal(s)
}

// DecodeRunState restores a state produced by Encode.
func DecodeRunState(data []byte) (*RunState, error) {
	var s RunState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	if !models.IsValidState(s.Stage) {
		return nil, &models.WorkflowError{Stage: s.Stage, Err: models.ErrUnknownStage}
	}
	return &s, nil
}
