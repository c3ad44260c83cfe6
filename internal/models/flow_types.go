// Package models defines flow type definitions to avoid circular imports.
package models

// StateType represents a stage of the content workflow.
type StateType string

// Workflow stages in execution order.
const (
	StateContextAnalysis StateType = "CONTEXT_ANALYSIS"
	StateGeneratePosts   StateType = "GENERATE_POSTS"
	StateAwaitFeedback   StateType = "AWAIT_FEEDBACK"
	StateRefinePosts     StateType = "REFINE_POSTS"
	StateFinalize        StateType = "FINALIZE"
	StateDone            StateType = "DONE"
)

// IsValidState checks if the given stage is part of the workflow.
func IsValidState(s StateType) bool {
	switch s {
	case StateContextAnalysis, StateGeneratePosts, StateAwaitFeedback,
		StateRefinePosts, StateFinalize, StateDone:
		return true
	default:
		return false
	}
}

// Campaign context keys produced by context analysis.
const (
	ContextKeyKeyMessages        = "key_messages"
	ContextKeyAudienceInsights   = "audience_insights"
	ContextKeyPlatformStrategies = "platform_strategies"
	ContextKeyCreativeDirections = "creative_directions"
)
