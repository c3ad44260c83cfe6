// Package models defines the core data structures for PostPipe.
//
// It includes the campaign request, per-platform content, the workflow result payload
// and the API envelope, which are shared across modules.
package models

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// Tone selects the voice used for generated posts.
type Tone string

const (
	// ToneFriendly is warm and approachable.
	ToneFriendly Tone = "friendly"
	// ToneProfessional is businesslike.
	ToneProfessional Tone = "professional"
	// ToneHumorous is light and playful.
	ToneHumorous Tone = "humorous"
	// ToneCasual is relaxed and informal.
	ToneCasual Tone = "casual"
	// ToneFormal is polite and reserved.
	ToneFormal Tone = "formal"
)

// AllTones lists the supported tones in display order.
var AllTones = []Tone{ToneFriendly, ToneProfessional, ToneHumorous, ToneCasual, ToneFormal}

// Validation constants for input validation
const (
	// MinCampaignMessageLength is the minimum number of characters in a campaign message.
	MinCampaignMessageLength = 5
	// MaxCampaignMessageLength is the maximum number of characters in a campaign message.
	MaxCampaignMessageLength = 500
	// MinTargetAudienceLength is the minimum number of characters in a target audience.
	MinTargetAudienceLength = 5
	// MaxTargetAudienceLength is the maximum number of characters in a target audience.
	MaxTargetAudienceLength = 200
	// MaxFeedbackLength is the maximum number of characters in a feedback message.
	MaxFeedbackLength = 1000
)

// Error variables for better error handling and testability
var (
	ErrEmptyCampaignMessage    = errors.New("campaign message cannot be empty")
	ErrCampaignMessageTooShort = errors.New("campaign message is too short")
	ErrCampaignMessageTooLong  = errors.New("campaign message exceeds maximum length")
	ErrEmptyTargetAudience     = errors.New("target audience cannot be empty")
	ErrTargetAudienceTooShort  = errors.New("target audience is too short")
	ErrTargetAudienceTooLong   = errors.New("target audience exceeds maximum length")
	ErrInvalidTone             = errors.New("invalid tone")
	ErrFeedbackTooLong         = errors.New("feedback exceeds maximum length")
	ErrInvalidPlatform         = errors.New("invalid platform")
	ErrMissingPlatform         = errors.New("platform entry missing from posts")
	ErrNoPostsGenerated        = errors.New("no posts generated")
	ErrInvalidMaxIterations    = errors.New("max iterations must be at least 1")
	ErrUnknownStage            = errors.New("unknown workflow stage")
	ErrSessionNotFound         = errors.New("session not found")
	ErrSessionCompleted        = errors.New("session already completed")
)

// IsValidTone checks if the given tone is supported.
func IsValidTone(t Tone) bool {
	switch t {
	case ToneFriendly, ToneProfessional, ToneHumorous, ToneCasual, ToneFormal:
		return true
	default:
		return false
	}
}

// ParseTone converts user input into a Tone, ignoring case and surrounding whitespace.
func ParseTone(s string) (Tone, error) {
	t := Tone(strings.ToLower(strings.TrimSpace(s)))
	if !IsValidTone(t) {
		return "", &ValidationError{Field: "tone", Err: ErrInvalidTone}
	}
	return t, nil
}

// Request is a validated campaign brief. It is a value type; once constructed it is
// not modified for the lifetime of a run.
type Request struct {
	CampaignMessage string `json:"campaign_message" yaml:"campaign_message"`
	TargetAudience  string `json:"target_audience" yaml:"target_audience"`
	Tone            Tone   `json:"tone" yaml:"tone"`
	UseEmojis       bool   `json:"use_emojis" yaml:"use_emojis"`
}

// NewRequest trims and validates the inputs and returns a Request.
func NewRequest(message, audience string, tone Tone, useEmojis bool) (Request, error) {
	r := Request{
		CampaignMessage: strings.TrimSpace(message),
		TargetAudience:  strings.TrimSpace(audience),
		Tone:            Tone(strings.ToLower(strings.TrimSpace(string(tone)))),
		UseEmojis:       useEmojis,
	}
	if err := r.Validate(); err != nil {
		return Request{}, err
	}
	return r, nil
}

// Validate checks the request bounds. Lengths are counted in characters, not bytes.
func (r Request) Validate() error {
	if err := checkLength("campaign_message", r.CampaignMessage,
		MinCampaignMessageLength, MaxCampaignMessageLength,
		ErrEmptyCampaignMessage, ErrCampaignMessageTooShort, ErrCampaignMessageTooLong); err != nil {
		return err
	}
	if err := checkLength("target_audience", r.TargetAudience,
		MinTargetAudienceLength, MaxTargetAudienceLength,
		ErrEmptyTargetAudience, ErrTargetAudienceTooShort, ErrTargetAudienceTooLong); err != nil {
		return err
	}
	if !IsValidTone(r.Tone) {
		return &ValidationError{Field: "tone", Err: ErrInvalidTone}
	}
	return nil
}

func checkLength(field, value string, min, max int, errEmpty, errShort, errLong error) error {
	n := utf8.RuneCountInString(strings.TrimSpace(value))
	switch {
	case n == 0:
		return &ValidationError{Field: field, Err: errEmpty}
	case n < min:
		return &ValidationError{Field: field, Err: errShort}
	case n > max:
		return &ValidationError{Field: field, Err: errLong}
	}
	return nil
}

// ValidateFeedback checks the length of a feedback message. Empty feedback is valid
// and means the posts are accepted as they are.
func ValidateFeedback(feedback string) error {
	if utf8.RuneCountInString(strings.TrimSpace(feedback)) > MaxFeedbackLength {
		return &ValidationError{Field: "feedback", Err: ErrFeedbackTooLong}
	}
	return nil
}

// MessageStatus represents the delivery status of a message.
type MessageStatus string

const (
	// MessageStatusSent indicates the message was sent.
	MessageStatusSent MessageStatus = "sent"
	// MessageStatusDelivered indicates the message was delivered.
	MessageStatusDelivered MessageStatus = "delivered"
	// MessageStatusFailed indicates the message failed to send.
	MessageStatusFailed MessageStatus = "failed"
)

// Receipt records the delivery status of a review message.
type Receipt struct {
	To     string        `json:"to"`
	Status MessageStatus `json:"status"`
	Time   int64         `json:"time"`
}

// Response represents an incoming message from a reviewer.
type Response struct {
	From string `json:"from"`
	Body string `json:"body"`
	Time int64  `json:"time"`
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Message: message, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}
