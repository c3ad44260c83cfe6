package backend

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/BTreeMap/PostPipe/internal/models"
)

var (
	errNoJSON      = errors.New("no JSON object found in response")
	errInvalidJSON = errors.New("response contains invalid JSON")
	errNotObject   = errors.New("response JSON is not an object")
)

// extractJSON returns the JSON object embedded in a model reply. Fenced code blocks
// are preferred; otherwise the text between the first '{' and the last '}' is used.
func extractJSON(content string) (string, error) {
	content = strings.TrimSpace(content)
	if i := strings.Index(content, "```"); i != -1 {
		rest := content[i+3:]
		if nl := strings.IndexByte(rest, '\n'); nl != -1 {
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end != -1 {
			if block := strings.TrimSpace(rest[:end]); gjson.Valid(block) {
				content = block
			}
		}
	}
	start := strings.IndexByte(content, '{')
	end := strings.LastIndexByte(content, '}')
	if start == -1 || end <= start {
		return "", errNoJSON
	}
	candidate := content[start : end+1]
	if !gjson.Valid(candidate) {
		return "", errInvalidJSON
	}
	return candidate, nil
}

// parseContext reads a context analysis reply into a CampaignContext.
func parseContext(content string) (models.CampaignContext, error) {
	raw, err := extractJSON(content)
	if err != nil {
		return nil, err
	}
	obj, ok := gjson.Parse(raw).Value().(map[string]interface{})
	if !ok {
		return nil, errNotObject
	}
	return models.CampaignContext(obj), nil
}

// parsePosts reads a post generation or refinement reply. A top-level "variation_1"
// wrapper is unwrapped, and "twitter" is accepted for "x".
func parsePosts(content string) (models.AggregatePosts, error) {
	raw, err := extractJSON(content)
	if err != nil {
		return models.AggregatePosts{}, err
	}
	root := gjson.Parse(raw)
	if v := root.Get("variation_1"); v.IsObject() {
		root = v
	}
	posts := make(map[models.Platform]models.PlatformPost, len(models.AllPlatforms))
	for _, p := range models.AllPlatforms {
		node := root.Get(string(p))
		if !node.Exists() && p == models.PlatformX {
			node = root.Get("twitter")
		}
		if !node.IsObject() {
			continue
		}
		text := strings.TrimSpace(node.Get("text").String())
		if text == "" {
			return models.AggregatePosts{}, fmt.Errorf("empty text for %s", p)
		}
		post := models.PlatformPost{
			Text:     text,
			Hashtags: models.NormalizeHashtags(stringList(node.Get("hashtags"))),
		}
		if p == models.PlatformInstagram {
			post.ImageSuggestions = stringList(node.Get("image_suggestions"))
		}
		posts[p] = post
	}
	return models.NewAggregatePosts(posts)
}

// stringList reads a JSON array of strings, or a single space separated string.
func stringList(v gjson.Result) []string {
	if !v.Exists() {
		return nil
	}
	if v.IsArray() {
		var out []string
		for _, item := range v.Array() {
			if s := strings.TrimSpace(item.String()); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return strings.Fields(v.String())
}
