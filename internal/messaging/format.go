package messaging

import (
	"fmt"
	"strings"

	"github.com/BTreeMap/PostPipe/internal/flow"
	"github.com/BTreeMap/PostPipe/internal/models"
)

// Reply keywords that accept the current posts.
var approvalWords = map[string]bool{
	"ok":       true,
	"okay":     true,
	"approve":  true,
	"approved": true,
	"done":     true,
	"finalize": true,
	"publish":  true,
	"lgtm":     true,
}

// IsApproval reports whether a reviewer reply accepts the current posts.
func IsApproval(body string) bool {
	word := strings.ToLower(strings.Trim(strings.TrimSpace(body), ".!"))
	return word == "" || approvalWords[word]
}

var platformLabels = map[models.Platform]string{
	models.PlatformFacebook:  "Facebook",
	models.PlatformInstagram: "Instagram",
	models.PlatformLinkedIn:  "LinkedIn",
	models.PlatformX:         "X",
}

func writePost(sb *strings.Builder, label, text string, hashtags, images []string) {
	fmt.Fprintf(sb, "\n*%s*\n%s\n", label, text)
	if len(hashtags) > 0 {
		sb.WriteString(strings.Join(hashtags, " ") + "\n")
	}
	if len(images) > 0 {
		fmt.Fprintf(sb, "Image ideas: %s\n", strings.Join(images, "; "))
	}
}

// FormatOutcome renders an outcome as a WhatsApp message for the reviewer.
func FormatOutcome(sessionID string, out flow.Outcome) string {
	var sb strings.Builder
	short := sessionID
	if len(short) > 8 {
		short = short[:8]
	}
	switch out.Status {
	case flow.OutcomeAwaitingFeedback:
		fmt.Fprintf(&sb, "New campaign drafts (%s)\n", short)
	case flow.OutcomeRefined:
		fmt.Fprintf(&sb, "Revised drafts (%s), revision %d of %d\n", short, out.IterationCount, out.MaxIterations)
	case flow.OutcomeCompleted:
		fmt.Fprintf(&sb, "Campaign finalized (%s)\n", short)
	default:
		fmt.Fprintf(&sb, "Campaign %s: %s\n", short, out.Message)
		if out.CanContinue {
			sb.WriteString("\nReply with feedback to try again, or \"ok\" to accept the current drafts.")
		}
		return strings.TrimRight(sb.String(), "\n")
	}

	if out.Posts != nil {
		for _, p := range models.AllPlatforms {
			post := out.Posts.Get(p)
			writePost(&sb, platformLabels[p], post.Text, post.Hashtags, post.ImageSuggestions)
		}
	}
	if r := out.Result; r != nil {
		if r.IsError() {
			fmt.Fprintf(&sb, "\nNo posts: %s\n", r.Error)
		} else {
			writePost(&sb, platformLabels[models.PlatformFacebook], r.Facebook.Text, r.Facebook.Hashtags, nil)
			writePost(&sb, platformLabels[models.PlatformInstagram], r.Instagram.Text, r.Instagram.Hashtags, r.Instagram.ImageSuggestions)
			writePost(&sb, platformLabels[models.PlatformLinkedIn], r.LinkedIn.Text, r.LinkedIn.Hashtags, nil)
			writePost(&sb, platformLabels[models.PlatformX], r.X.Text, r.X.Hashtags, nil)
		}
	}

	switch {
	case out.Status == flow.OutcomeCompleted:
	case out.CanContinue:
		sb.WriteString("\nReply with feedback to revise, or \"ok\" to accept.")
	default:
		sb.WriteString("\nRevision limit reached. These drafts are final.")
	}
	return strings.TrimRight(sb.String(), "\n")
}
