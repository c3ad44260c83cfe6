package backend

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/BTreeMap/PostPipe/internal/models"
)

const contextSystemPrompt = `You are an experienced social media strategist. Analyze the campaign and
describe how it should be communicated on each platform.

Answer with valid JSON only, no text before or after it.`

const postsSystemPrompt = `You are an expert social media copywriter. Write one post per platform.

Platform limits:
{{range .Limits}}- {{.Name}}: at most {{.MaxChars}} characters, at most {{.MaxHashtags}} hashtags{{if .Images}}, {{.Images}} image ideas{{end}}
{{end}}
Rules:
- {{.EmojiRule}}
- Order hashtags by relevance.
- LinkedIn posts keep a professional register.

Answer with valid JSON only, no text before or after it.`

const refineSystemPrompt = `You are an expert social media copywriter. The reviewer gave feedback on the
existing posts; rewrite them accordingly while keeping each platform's limits.

Platform limits:
{{range .Limits}}- {{.Name}}: at most {{.MaxChars}} characters, at most {{.MaxHashtags}} hashtags{{if .Images}}, {{.Images}} image ideas{{end}}
{{end}}
Answer with valid JSON only, no text before or after it.`

const postsSchema = `{
  "facebook":  {"text": "...", "hashtags": ["tag1", "tag2"]},
  "instagram": {"text": "...", "hashtags": ["tag1", "tag2"], "image_suggestions": ["idea1", "idea2"]},
  "linkedin":  {"text": "...", "hashtags": ["tag1"]},
  "x":         {"text": "...", "hashtags": ["tag1"]}
}`

const contextUserPrompt = `Campaign message: {{.Message}}
Target audience: {{.Audience}}
Tone: {{.Tone}}

Respond in this JSON format:
{
  "key_messages": ["..."],
  "audience_insights": "...",
  "platform_strategies": {"facebook": "...", "instagram": "...", "linkedin": "...", "x": "..."},
  "creative_directions": ["..."]
}`

const postsUserPrompt = `Context analysis: {{.Context}}
Campaign message: {{.Message}}
Target audience: {{.Audience}}
Tone: {{.Tone}}

Write an optimized post for every platform. Respond in this JSON format:
` + postsSchema

const refineUserPrompt = `Current posts: {{.Posts}}

Reviewer feedback: {{.Feedback}}

Improve the posts based on the feedback. Respond in this JSON format:
` + postsSchema

var prompts = template.Must(template.New("prompts").Parse(""))

func init() {
	for name, text := range map[string]string{
		"context_system": contextSystemPrompt,
		"context_user":   contextUserPrompt,
		"posts_system":   postsSystemPrompt,
		"posts_user":     postsUserPrompt,
		"refine_system":  refineSystemPrompt,
		"refine_user":    refineUserPrompt,
	} {
		template.Must(prompts.New(name).Parse(text))
	}
}

type limitLine struct {
	Name        string
	MaxChars    int
	MaxHashtags int
	Images      int
}

type promptData struct {
	Message   string
	Audience  string
	Tone      models.Tone
	EmojiRule string
	Context   string
	Posts     string
	Feedback  string
	Limits    []limitLine
}

var platformNames = map[models.Platform]string{
	models.PlatformFacebook:  "Facebook",
	models.PlatformInstagram: "Instagram",
	models.PlatformLinkedIn:  "LinkedIn",
	models.PlatformX:         "X (Twitter)",
}

func limitLines() []limitLine {
	lines := make([]limitLine, 0, len(models.AllPlatforms))
	for _, p := range models.AllPlatforms {
		l := models.PlatformLimits[p]
		lines = append(lines, limitLine{
			Name:        platformNames[p],
			MaxChars:    l.MaxChars,
			MaxHashtags: l.MaxHashtags,
			Images:      l.ImageSuggestions,
		})
	}
	return lines
}

func emojiRule(useEmojis bool) string {
	if useEmojis {
		return "Use relevant emojis."
	}
	return "Do not use emojis."
}

func render(name string, data promptData) (string, error) {
	var sb strings.Builder
	if err := prompts.ExecuteTemplate(&sb, name, data); err != nil {
		return "", fmt.Errorf("failed to render %s prompt: %w", name, err)
	}
	return sb.String(), nil
}

// renderPair renders the system and user prompts of one operation.
func renderPair(op string, data promptData) (system, user string, err error) {
	data.Limits = limitLines()
	if system, err = render(op+"_system", data); err != nil {
		return "", "", err
	}
	if user, err = render(op+"_user", data); err != nil {
		return "", "", err
	}
	return system, user, nil
}

func compactJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(data)
}
