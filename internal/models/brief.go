package models

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RequestInput is the wire form of a campaign brief, accepted from JSON bodies and
// YAML brief files. UseEmojis defaults to true when omitted.
type RequestInput struct {
	CampaignMessage string `json:"campaign_message" yaml:"campaign_message"`
	TargetAudience  string `json:"target_audience" yaml:"target_audience"`
	Tone            string `json:"tone" yaml:"tone"`
	UseEmojis       *bool  `json:"use_emojis,omitempty" yaml:"use_emojis,omitempty"`
	MaxIterations   int    `json:"max_iterations,omitempty" yaml:"max_iterations,omitempty"`
}

// ToRequest validates the input and converts it into a Request.
func (in RequestInput) ToRequest() (Request, error) {
	useEmojis := true
	if in.UseEmojis != nil {
		useEmojis = *in.UseEmojis
	}
	return NewRequest(in.CampaignMessage, in.TargetAudience, Tone(in.Tone), useEmojis)
}

// ParseRequestInput decodes a YAML (or JSON) campaign brief.
func ParseRequestInput(data []byte) (RequestInput, error) {
	var in RequestInput
	if err := yaml.Unmarshal(data, &in); err != nil {
		return RequestInput{}, fmt.Errorf("failed to parse campaign brief: %w", err)
	}
	if in.MaxIterations < 0 {
		return RequestInput{}, &ValidationError{Field: "max_iterations", Err: ErrInvalidMaxIterations}
	}
	return in, nil
}

// LoadRequestFile reads a campaign brief file.
func LoadRequestFile(path string) (RequestInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RequestInput{}, fmt.Errorf("failed to read campaign brief %s: %w", path, err)
	}
	return ParseRequestInput(data)
}
