package backend

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/BTreeMap/PostPipe/internal/flow"
	"github.com/BTreeMap/PostPipe/internal/models"
)

// Template generates deterministic posts from fixed per-platform templates. It needs
// no network access and never fails, which makes it usable offline and in demos.
type Template struct{}

var _ flow.Backend = (*Template)(nil)

// NewTemplate creates a template backend.
func NewTemplate() *Template {
	return &Template{}
}

const campaignEmoji = "🎯"

var platformStrategies = map[models.Platform]string{
	models.PlatformFacebook:  "Community-oriented storytelling with a clear call to action",
	models.PlatformInstagram: "Visual-first content with a short caption",
	models.PlatformLinkedIn:  "Professional framing focused on value and expertise",
	models.PlatformX:         "Short, punchy message with at most two hashtags",
}

var toneDirections = map[models.Tone][]string{
	models.ToneFriendly:     {"Warm, personal invitation", "Community focus"},
	models.ToneProfessional: {"Credibility and expertise", "Clear benefits"},
	models.ToneHumorous:     {"Playful wordplay", "Light-hearted visuals"},
	models.ToneCasual:       {"Everyday language", "Behind-the-scenes feel"},
	models.ToneFormal:       {"Respectful address", "Structured announcement"},
}

var imageSuggestions = []string{"Image of the product in use", "Behind-the-scenes shot"}

// AnalyzeContext derives a context from the message sentences and the tone.
func (t *Template) AnalyzeContext(ctx context.Context, message, audience string, tone models.Tone) (models.CampaignContext, error) {
	var keyMessages []any
	for _, s := range sentences(message) {
		keyMessages = append(keyMessages, s)
	}
	strategies := make(map[string]any, len(models.AllPlatforms))
	for _, p := range models.AllPlatforms {
		strategies[string(p)] = platformStrategies[p]
	}
	var directions []any
	for _, d := range toneDirections[tone] {
		directions = append(directions, d)
	}
	return models.CampaignContext{
		models.ContextKeyKeyMessages:        keyMessages,
		models.ContextKeyAudienceInsights:   fmt.Sprintf("Target audience: %s", audience),
		models.ContextKeyPlatformStrategies: strategies,
		models.ContextKeyCreativeDirections: directions,
	}, nil
}

func tonePrefix(tone models.Tone, audience string, useEmojis bool) string {
	emoji := ""
	if useEmojis {
		emoji = " " + campaignEmoji
	}
	switch tone {
	case models.ToneFriendly:
		return fmt.Sprintf("Hi %s!%s", audience, emoji)
	case models.ToneProfessional, models.ToneFormal:
		return fmt.Sprintf("Dear %s,", audience)
	case models.ToneHumorous:
		if useEmojis {
			return fmt.Sprintf("Hey %s! 😄", audience)
		}
		return fmt.Sprintf("Hey %s!", audience)
	case models.ToneCasual:
		return fmt.Sprintf("Hey %s!%s", audience, emoji)
	}
	return ""
}

// GeneratePosts fills the per-platform templates with the message and audience.
func (t *Template) GeneratePosts(ctx context.Context, cc models.CampaignContext, message, audience string, tone models.Tone, useEmojis bool) (models.AggregatePosts, error) {
	base := strings.TrimSpace(tonePrefix(tone, audience, useEmojis) + " " + message)
	tags := keywordHashtags(message)
	posts := models.AggregatePosts{
		Facebook: models.PlatformPost{
			Text:     base + "\n\nFollow us for more updates!",
			Hashtags: limitTags(tags, 3),
		},
		Instagram: models.PlatformPost{
			Text:             base,
			Hashtags:         limitTags(tags, 5),
			ImageSuggestions: append([]string(nil), imageSuggestions...),
		},
		LinkedIn: models.PlatformPost{
			Text:     base + "\n\nJoin our professional community!",
			Hashtags: limitTags(tags, 2),
		},
		X: models.PlatformPost{
			Text:     models.TruncateRunes(base, 250),
			Hashtags: limitTags(tags, 2),
		},
	}
	return clampToLimits(posts), nil
}

// RefinePosts applies the directives it recognizes in the feedback: shorter, no
// emojis, more or fewer hashtags, and a call to action.
func (t *Template) RefinePosts(ctx context.Context, current models.AggregatePosts, feedback string) (models.AggregatePosts, error) {
	f := strings.ToLower(feedback)
	posts := current.Clone()
	for _, p := range models.AllPlatforms {
		post := posts.Get(p)
		if containsAny(f, "shorter", "concise", "brief", "too long") {
			post.Text = shorten(post.Text)
		}
		if containsAny(f, "no emoji", "without emoji", "remove emoji", "fewer emoji") {
			post.Text = stripEmoji(post.Text)
		}
		if containsAny(f, "more hashtag", "add hashtag") {
			post.Hashtags = models.NormalizeHashtags(append(post.Hashtags, keywordHashtags(feedback+" "+post.Text)...))
		}
		if containsAny(f, "fewer hashtag", "less hashtag", "no hashtag") {
			if strings.Contains(f, "no hashtag") {
				post.Hashtags = nil
			} else if len(post.Hashtags) > 1 {
				post.Hashtags = post.Hashtags[:len(post.Hashtags)/2]
			}
		}
		if containsAny(f, "call to action", "cta") && !strings.Contains(post.Text, "Learn more today!") {
			post.Text += " Learn more today!"
		}
		posts.Set(p, post)
	}
	slog.Debug("Template.RefinePosts: feedback applied", "feedbackLen", len(feedback))
	return clampToLimits(posts), nil
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func sentences(text string) []string {
	parts := strings.FieldsFunc(text, func(r rune) bool { return r == '.' || r == '!' || r == '?' })
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		out = []string{strings.TrimSpace(text)}
	}
	return out
}

// keywordHashtags turns the distinct words of at least four letters into hashtags.
func keywordHashtags(text string) []string {
	words := strings.FieldsFunc(text, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
	var tags []string
	for _, w := range words {
		if len([]rune(w)) >= 4 {
			tags = append(tags, strings.ToLower(w))
		}
	}
	tags = models.NormalizeHashtags(tags)
	if len(tags) == 0 {
		tags = []string{"#campaign"}
	}
	return tags
}

func limitTags(tags []string, n int) []string {
	if len(tags) > n {
		tags = tags[:n]
	}
	return append([]string(nil), tags...)
}

// shorten keeps the first paragraph, or the first half when it is a single paragraph.
func shorten(text string) string {
	if i := strings.Index(text, "\n\n"); i != -1 {
		return strings.TrimSpace(text[:i])
	}
	r := []rune(text)
	if len(r) < 40 {
		return text
	}
	cut := string(r[:len(r)/2])
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut) + "…"
}

func stripEmoji(text string) string {
	out := strings.Map(func(r rune) rune {
		if unicode.Is(unicode.So, r) || r == 0xFE0F || r == 0x200D {
			return -1
		}
		return r
	}, text)
	lines := strings.Split(out, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	return strings.Join(lines, "\n")
}

func clampToLimits(posts models.AggregatePosts) models.AggregatePosts {
	for _, p := range models.AllPlatforms {
		post := posts.Get(p)
		limit := models.PlatformLimits[p]
		post.Text = models.TruncateRunes(post.Text, limit.MaxChars)
		if len(post.Hashtags) > limit.MaxHashtags {
			post.Hashtags = post.Hashtags[:limit.MaxHashtags]
		}
		posts.Set(p, post)
	}
	return posts
}
