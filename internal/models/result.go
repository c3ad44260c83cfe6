package models

// PostResult is the published form of a text post.
type PostResult struct {
	Text     string   `json:"text"`
	Hashtags []string `json:"hashtags"`
}

// ImagePostResult is the published form of a post on an image-first platform.
type ImagePostResult struct {
	Text             string   `json:"text"`
	Hashtags         []string `json:"hashtags"`
	ImageSuggestions []string `json:"image_suggestions"`
}

// FinalResult is the payload produced at the end of a run: either all four platforms
// or a single error message.
type FinalResult struct {
	Facebook  *PostResult      `json:"facebook,omitempty"`
	Instagram *ImagePostResult `json:"instagram,omitempty"`
	LinkedIn  *PostResult      `json:"linkedin,omitempty"`
	X         *PostResult      `json:"x,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// NewFinalResult serializes posts, substituting empty lists for absent optional fields.
func NewFinalResult(posts AggregatePosts) *FinalResult {
	return &FinalResult{
		Facebook: textResult(posts.Facebook),
		Instagram: &ImagePostResult{
			Text:             posts.Instagram.Text,
			Hashtags:         nonNil(posts.Instagram.Hashtags),
			ImageSuggestions: nonNil(posts.Instagram.ImageSuggestions),
		},
		LinkedIn: textResult(posts.LinkedIn),
		X:        textResult(posts.X),
	}
}

// NewErrorResult builds a result carrying only an error message.
func NewErrorResult(message string) *FinalResult {
	return &FinalResult{Error: message}
}

// IsError reports whether the result is an error payload.
func (r *FinalResult) IsError() bool {
	return r != nil && r.Error != ""
}

func textResult(p PlatformPost) *PostResult {
	return &PostResult{Text: p.Text, Hashtags: nonNil(p.Hashtags)}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return append([]string(nil), s...)
}
