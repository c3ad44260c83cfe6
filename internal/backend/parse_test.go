package backend

import (
	"errors"
	"testing"

	"github.com/BTreeMap/PostPipe/internal/models"
)

const postsReply = `{
  "facebook": {"text": "Fresh bread daily", "hashtags": ["bakery", "#fresh"]},
  "instagram": {"text": "Look at this loaf", "hashtags": ["#bread"], "image_suggestions": ["Loaf on a board", "Baker at work"]},
  "linkedin": {"text": "Our bakery is hiring", "hashtags": "#jobs #bakery"},
  "x": {"text": "Bread. Now.", "hashtags": ["#bread"]}
}`

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{"plain object", `{"a":1}`, `{"a":1}`, nil},
		{"surrounding prose", "Sure! Here it is: {\"a\":1} Hope that helps.", `{"a":1}`, nil},
		{"fenced block", "```json\n{\"a\":1}\n```\nThe {braces} after", `{"a":1}`, nil},
		{"no object", "I cannot help with that.", "", errNoJSON},
		{"broken object", `{"a": }`, "", errInvalidJSON},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractJSON(tt.input)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestParseContext(t *testing.T) {
	cc, err := parseContext(`{"key_messages": ["Fresh bread"], "creative_directions": ["Morning light", "Flour close-ups"]}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := cc.CreativeDirections(); len(got) != 2 || got[0] != "Morning light" {
		t.Errorf("unexpected creative directions: %v", got)
	}
}

func TestParseContext_NotObject(t *testing.T) {
	if _, err := parseContext(`nothing here`); err == nil {
		t.Error("expected an error for a reply without JSON")
	}
}

func TestParsePosts(t *testing.T) {
	posts, err := parsePosts(postsReply)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := posts.Facebook.Hashtags; len(got) != 2 || got[0] != "#bakery" || got[1] != "#fresh" {
		t.Errorf("expected normalized facebook hashtags, got %v", got)
	}
	if got := posts.LinkedIn.Hashtags; len(got) != 2 || got[0] != "#jobs" {
		t.Errorf("expected hashtags split from a string, got %v", got)
	}
	if len(posts.Instagram.ImageSuggestions) != 2 {
		t.Errorf("expected instagram image suggestions, got %v", posts.Instagram.ImageSuggestions)
	}
	if posts.X.Text != "Bread. Now." {
		t.Errorf("unexpected x text %q", posts.X.Text)
	}
}

func TestParsePosts_VariationAndTwitterAlias(t *testing.T) {
	reply := `{"variation_1": {
		"facebook": {"text": "a"}, "instagram": {"text": "b"},
		"linkedin": {"text": "c"}, "twitter": {"text": "d"}}}`
	posts, err := parsePosts(reply)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if posts.X.Text != "d" {
		t.Errorf("expected twitter to map to x, got %q", posts.X.Text)
	}
}

func TestParsePosts_MissingPlatform(t *testing.T) {
	reply := `{"facebook": {"text": "a"}, "instagram": {"text": "b"}, "linkedin": {"text": "c"}}`
	_, err := parsePosts(reply)
	if !errors.Is(err, models.ErrMissingPlatform) {
		t.Errorf("expected ErrMissingPlatform, got %v", err)
	}
}

func TestParsePosts_EmptyText(t *testing.T) {
	reply := `{"facebook": {"text": " "}, "instagram": {"text": "b"}, "linkedin": {"text": "c"}, "x": {"text": "d"}}`
	if _, err := parsePosts(reply); err == nil {
		t.Error("expected an error for empty post text")
	}
}
