package models

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Platform identifies a social network that receives a post.
type Platform string

const (
	PlatformFacebook  Platform = "facebook"
	PlatformInstagram Platform = "instagram"
	PlatformLinkedIn  Platform = "linkedin"
	PlatformX         Platform = "x"
)

// AllPlatforms lists every platform in output order.
var AllPlatforms = []Platform{PlatformFacebook, PlatformInstagram, PlatformLinkedIn, PlatformX}

// IsValidPlatform checks if the given platform is supported.
func IsValidPlatform(p Platform) bool {
	switch p {
	case PlatformFacebook, PlatformInstagram, PlatformLinkedIn, PlatformX:
		return true
	default:
		return false
	}
}

// PlatformLimit holds the publishing limits of one platform.
type PlatformLimit struct {
	MaxChars         int
	MaxHashtags      int
	ImageSuggestions int // number of image ideas expected, 0 if not image-first
}

// PlatformLimits are the publishing limits per platform.
var PlatformLimits = map[Platform]PlatformLimit{
	PlatformFacebook:  {MaxChars: 63206, MaxHashtags: 30},
	PlatformInstagram: {MaxChars: 2200, MaxHashtags: 30, ImageSuggestions: 2},
	PlatformLinkedIn:  {MaxChars: 1300, MaxHashtags: 3},
	PlatformX:         {MaxChars: 280, MaxHashtags: 2},
}

// PlatformPost is the generated content for a single platform.
type PlatformPost struct {
	Text             string   `json:"text"`
	Hashtags         []string `json:"hashtags,omitempty"`
	ImageSuggestions []string `json:"image_suggestions,omitempty"` // instagram only
}

// AggregatePosts holds one post for every platform. Each platform is a field, so a
// value can never be missing an entry once constructed.
type AggregatePosts struct {
	Facebook  PlatformPost `json:"facebook"`
	Instagram PlatformPost `json:"instagram"`
	LinkedIn  PlatformPost `json:"linkedin"`
	X         PlatformPost `json:"x"`
}

// NewAggregatePosts builds AggregatePosts from a platform-keyed map. Every platform
// must be present; unknown keys are rejected.
func NewAggregatePosts(posts map[Platform]PlatformPost) (AggregatePosts, error) {
	var agg AggregatePosts
	for p := range posts {
		if !IsValidPlatform(p) {
			return AggregatePosts{}, &WorkflowError{Err: fmt.Errorf("%w: %q", ErrInvalidPlatform, p)}
		}
	}
	for _, p := range AllPlatforms {
		post, ok := posts[p]
		if !ok {
			return AggregatePosts{}, &WorkflowError{Err: fmt.Errorf("%w: %s", ErrMissingPlatform, p)}
		}
		agg.Set(p, post)
	}
	return agg, nil
}

// Get returns the post for a platform.
func (a AggregatePosts) Get(p Platform) PlatformPost {
	switch p {
	case PlatformFacebook:
		return a.Facebook
	case PlatformInstagram:
		return a.Instagram
	case PlatformLinkedIn:
		return a.LinkedIn
	case PlatformX:
		return a.X
	}
	return PlatformPost{}
}

// Set replaces the post for a platform. Unknown platforms are ignored.
func (a *AggregatePosts) Set(p Platform, post PlatformPost) {
	switch p {
	case PlatformFacebook:
		a.Facebook = post
	case PlatformInstagram:
		a.Instagram = post
	case PlatformLinkedIn:
		a.LinkedIn = post
	case PlatformX:
		a.X = post
	}
}

// Map returns the posts keyed by platform.
func (a AggregatePosts) Map() map[Platform]PlatformPost {
	m := make(map[Platform]PlatformPost, len(AllPlatforms))
	for _, p := range AllPlatforms {
		m[p] = a.Get(p)
	}
	return m
}

// Clone returns a deep copy so callers can mutate slices without aliasing.
func (a AggregatePosts) Clone() AggregatePosts {
	var c AggregatePosts
	for _, p := range AllPlatforms {
		post := a.Get(p)
		post.Hashtags = append([]string(nil), post.Hashtags...)
		post.ImageSuggestions = append([]string(nil), post.ImageSuggestions...)
		c.Set(p, post)
	}
	return c
}

// LimitViolation describes a post that exceeds a platform limit.
type LimitViolation struct {
	Platform Platform `json:"platform"`
	Field    string   `json:"field"` // "text" or "hashtags"
	Limit    int      `json:"limit"`
	Actual   int      `json:"actual"`
}

func (v LimitViolation) String() string {
	return fmt.Sprintf("%s %s: %d exceeds limit %d", v.Platform, v.Field, v.Actual, v.Limit)
}

// LimitViolations reports posts that exceed their platform's publishing limits.
// Limits are advisory; nothing in the workflow enforces them.
func (a AggregatePosts) LimitViolations() []LimitViolation {
	var out []LimitViolation
	for _, p := range AllPlatforms {
		post := a.Get(p)
		limit := PlatformLimits[p]
		if n := utf8.RuneCountInString(post.Text); n > limit.MaxChars {
			out = append(out, LimitViolation{Platform: p, Field: "text", Limit: limit.MaxChars, Actual: n})
		}
		if n := len(post.Hashtags); n > limit.MaxHashtags {
			out = append(out, LimitViolation{Platform: p, Field: "hashtags", Limit: limit.MaxHashtags, Actual: n})
		}
	}
	return out
}

// NormalizeHashtags trims each tag, removes inner whitespace, ensures a single leading
// '#', and drops empty and duplicate (case-insensitive) tags while keeping order.
func NormalizeHashtags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, tag := range tags {
		tag = strings.Join(strings.Fields(tag), "")
		tag = strings.TrimLeft(tag, "#")
		if tag == "" {
			continue
		}
		key := strings.ToLower(tag)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, "#"+tag)
	}
	return out
}

// TruncateRunes shortens s to at most n characters.
func TruncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
