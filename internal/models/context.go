package models

import "fmt"

// CampaignContext is the opaque analysis produced by the backend. The workflow only
// reads creative_directions from it; the rest is forwarded to post generation.
type CampaignContext map[string]any

// CreativeDirections extracts the creative_directions entry as a list of strings.
// A single string is treated as a one-element list; anything else yields nil.
func (c CampaignContext) CreativeDirections() []string {
	raw, ok := c[ContextKeyCreativeDirections]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	}
	return nil
}

// FallbackContext is the deterministic context used when analysis fails.
func FallbackContext(targetAudience string) CampaignContext {
	return CampaignContext{
		ContextKeyKeyMessages:      []any{"Campaign message"},
		ContextKeyAudienceInsights: fmt.Sprintf("Target audience: %s", targetAudience),
		ContextKeyPlatformStrategies: map[string]any{
			string(PlatformFacebook):  "General strategy",
			string(PlatformInstagram): "Visual content",
			string(PlatformLinkedIn):  "Professional content",
			string(PlatformX):         "Short content",
		},
		ContextKeyCreativeDirections: []any{"Creative approach"},
	}
}
