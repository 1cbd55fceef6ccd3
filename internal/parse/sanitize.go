// Package parse turns free-form model output into structured review payloads.
// The pipeline is sanitize → strict parse → tolerant repair → filter; it never
// panics or errors out of a malformed response, it just yields zero issues.
package parse

import (
	"regexp"
	"strings"
)

var (
	// Reasoning blocks emitted by thinking-mode models.
	thinkBlockRe = regexp.MustCompile(`(?s)<think(?:ing)?>.*?</think(?:ing)?>`)

	// Vendor-specific control tokens that leak into completions.
	controlTokenRe = regexp.MustCompile(`<\|[a-z_]+\|>|\[/?INST\]|</?s>`)
)

// Sanitize strips markdown fencing, reasoning blocks, and control tokens from
// raw model output, leaving the best candidate for JSON parsing.
func Sanitize(raw string) string {
	text := strings.TrimSpace(raw)

	text = thinkBlockRe.ReplaceAllString(text, "")
	text = controlTokenRe.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)

	// Strip markdown fencing if present
	if strings.HasPrefix(text, "```") {
		lines := strings.SplitN(text, "\n", 2)
		if len(lines) > 1 {
			text = lines[1]
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	// Models often wrap the JSON in prose. Trim to the outermost object.
	if start := strings.Index(text, "{"); start > 0 {
		if end := strings.LastIndex(text, "}"); end > start {
			text = text[start : end+1]
		}
	}

	return text
}
