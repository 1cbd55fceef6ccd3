package parse

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Issue is one structured problem reported by an agent.
type Issue struct {
	Severity    string `json:"severity"`
	Category    string `json:"category"`
	Title       string `json:"title"`
	Description string `json:"description"`
	File        string `json:"file,omitempty"`
	Line        int    `json:"line,omitempty"`
	Suggestion  string `json:"suggestion,omitempty"`
}

// Followup is a clarifying question the moderator wants answered by a role.
type Followup struct {
	Role     string `json:"role"`
	Question string `json:"question"`
}

// ReviewPayload is the structured shape every analysis prompt asks for.
type ReviewPayload struct {
	Issues    []Issue    `json:"issues"`
	Summary   string     `json:"summary"`
	Followups []Followup `json:"followups,omitempty"`
}

// Verdict is the structured shape a debate's neutral judge must return.
type Verdict struct {
	Confirmed        bool   `json:"confirmed"`
	FinalSeverity    string `json:"final_severity"`
	ModeratorComment string `json:"moderator_comment"`
	KeepIssue        bool   `json:"keep_issue"`
}

// Review parses sanitized model output into a ReviewPayload, strictly first,
// then through the tolerant repair chain. The returned error is only for
// callers that want diagnostics; a nil payload with an error means the output
// is unstructurable.
func Review(raw string) (*ReviewPayload, error) {
	text := Sanitize(raw)

	var payload ReviewPayload
	if err := tolerantUnmarshal(text, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// VerdictFrom parses sanitized model output into a debate Verdict.
func VerdictFrom(raw string) (*Verdict, error) {
	text := Sanitize(raw)

	var v Verdict
	if err := tolerantUnmarshal(text, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// tolerantUnmarshal attempts a strict parse, then applies each repair
// transform cumulatively, retrying after each, until the list is exhausted.
func tolerantUnmarshal(text string, out any) error {
	strictErr := json.Unmarshal([]byte(text), out)
	if strictErr == nil {
		return nil
	}

	repaired := text
	for _, r := range repairs {
		repaired = r.apply(repaired)
		if err := json.Unmarshal([]byte(repaired), out); err == nil {
			return nil
		}
	}
	return fmt.Errorf("unparseable after %d repairs: %w", len(repairs), strictErr)
}

// NormalizeSeverity maps free-form severity strings onto the closed set,
// defaulting to "warning" for anything unrecognized.
func NormalizeSeverity(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "info", "low", "note", "minor":
		return "info"
	case "warning", "medium", "moderate", "warn":
		return "warning"
	case "error", "high", "critical", "major", "blocker":
		return "error"
	default:
		return "warning"
	}
}
