package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitize_StripsFencing(t *testing.T) {
	raw := "```json\n{\"issues\": [], \"summary\": \"ok\"}\n```"
	assert.Equal(t, `{"issues": [], "summary": "ok"}`, Sanitize(raw))
}

func TestSanitize_StripsThinkBlocks(t *testing.T) {
	raw := "<think>let me reason about this at length</think>\n{\"issues\": [], \"summary\": \"ok\"}"
	assert.Equal(t, `{"issues": [], "summary": "ok"}`, Sanitize(raw))

	raw = "<thinking>hmm</thinking>{\"summary\": \"x\"}"
	assert.Equal(t, `{"summary": "x"}`, Sanitize(raw))
}

func TestSanitize_StripsControlTokens(t *testing.T) {
	raw := "<|im_start|>{\"issues\": [], \"summary\": \"ok\"}<|im_end|>"
	assert.Equal(t, `{"issues": [], "summary": "ok"}`, Sanitize(raw))
}

func TestSanitize_TrimsSurroundingProse(t *testing.T) {
	raw := "Here is my review:\n{\"issues\": [], \"summary\": \"ok\"}\nHope that helps!"
	assert.Equal(t, `{"issues": [], "summary": "ok"}`, Sanitize(raw))
}

func TestReview_StrictParse(t *testing.T) {
	payload, err := Review(`{"issues":[{"severity":"error","category":"security","title":"hardcoded secret","description":"API key in source","file":"config.go","line":12}],"summary":"one issue"}`)
	require.NoError(t, err)
	require.Len(t, payload.Issues, 1)
	assert.Equal(t, "hardcoded secret", payload.Issues[0].Title)
	assert.Equal(t, "config.go", payload.Issues[0].File)
	assert.Equal(t, 12, payload.Issues[0].Line)
	assert.Equal(t, "one issue", payload.Summary)
}

func TestReview_Idempotent(t *testing.T) {
	raw := `{"issues":[{"severity":"warning","category":"style","title":"long function","description":"split it"}],"summary":"s"}`
	first, err := Review(raw)
	require.NoError(t, err)
	second, err := Review(raw)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestReview_CommaOnlyArrayBody(t *testing.T) {
	// Some backends emit arrays of empty elements.
	payload, err := Review(`{"issues": [ , , , ], "summary": "found 2 problems"}`)
	require.NoError(t, err)
	assert.Empty(t, payload.Issues)
	assert.Equal(t, "found 2 problems", payload.Summary)
}

func TestReview_TrailingCommas(t *testing.T) {
	payload, err := Review(`{"issues": [{"severity":"info","title":"nit","description":"d",},], "summary": "ok",}`)
	require.NoError(t, err)
	require.Len(t, payload.Issues, 1)
	assert.Equal(t, "nit", payload.Issues[0].Title)
}

func TestReview_EmptyArrayElements(t *testing.T) {
	payload, err := Review(`{"issues": [{"severity":"info","title":"a","description":"d"}, , {"severity":"info","title":"b","description":"d"}], "summary": "ok"}`)
	require.NoError(t, err)
	assert.Len(t, payload.Issues, 2)
}

func TestReview_UnrecoverableFails(t *testing.T) {
	_, err := Review("this is not json at all")
	assert.Error(t, err)
}

func TestVerdictFrom(t *testing.T) {
	v, err := VerdictFrom(`{"confirmed": false, "final_severity": "info", "moderator_comment": "overstated", "keep_issue": false}`)
	require.NoError(t, err)
	assert.False(t, v.Confirmed)
	assert.Equal(t, "info", v.FinalSeverity)
	assert.False(t, v.KeepIssue)
}

func TestVerdictFrom_Fenced(t *testing.T) {
	v, err := VerdictFrom("```json\n{\"confirmed\": true, \"final_severity\": \"error\", \"moderator_comment\": \"real\", \"keep_issue\": true}\n```")
	require.NoError(t, err)
	assert.True(t, v.Confirmed)
	assert.True(t, v.KeepIssue)
}

func TestNormalizeSeverity(t *testing.T) {
	assert.Equal(t, "info", NormalizeSeverity("LOW"))
	assert.Equal(t, "warning", NormalizeSeverity("medium"))
	assert.Equal(t, "error", NormalizeSeverity("Critical"))
	assert.Equal(t, "warning", NormalizeSeverity("banana"))
	assert.Equal(t, "error", NormalizeSeverity(" high "))
}

func TestIsPlaceholder(t *testing.T) {
	assert.True(t, IsPlaceholder(Issue{Title: "Issue title here"}))
	assert.True(t, IsPlaceholder(Issue{Title: "<issue title>"}))
	assert.True(t, IsPlaceholder(Issue{Title: "Example issue for demonstration"}))
	assert.True(t, IsPlaceholder(Issue{Title: "N/A"}))
	assert.True(t, IsPlaceholder(Issue{Title: "No issues found"}))
	assert.True(t, IsPlaceholder(Issue{Title: "   "}))
	assert.False(t, IsPlaceholder(Issue{Title: "unchecked error return in Close"}))
}

func TestIsPlausible_SelfNegatingSecurity(t *testing.T) {
	assert.False(t, IsPlausible(Issue{
		Category:    "security",
		Title:       "Potential XSS",
		Description: "On closer inspection this is not a vulnerability because input is escaped.",
	}))
	assert.True(t, IsPlausible(Issue{
		Category:    "security",
		Title:       "XSS in template rendering",
		Description: "User input is interpolated without escaping.",
	}))
}

func TestIsPlausible_SQLInjectionNeedsSQLTokens(t *testing.T) {
	assert.False(t, IsPlausible(Issue{
		Category:    "security",
		Title:       "SQL injection",
		Description: "Something bad might happen with user data.",
	}))
	assert.True(t, IsPlausible(Issue{
		Category:    "security",
		Title:       "SQL injection in user lookup",
		Description: "The SELECT statement concatenates the username instead of using a prepared statement.",
	}))
}

func TestFilterIssues(t *testing.T) {
	issues := []Issue{
		{Title: "real finding", Category: "general", Description: "a genuine problem"},
		{Title: "Example issue"},
		{Title: "SQL injection", Description: "vague claim"},
		{Title: "another real one", Category: "performance", Description: "N+1 query in loop"},
	}
	kept := FilterIssues(issues)
	require.Len(t, kept, 2)
	assert.Equal(t, "real finding", kept[0].Title)
	assert.Equal(t, "another real one", kept[1].Title)
}
