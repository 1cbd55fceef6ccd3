package agent

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/cr/internal/artifact"
	"github.com/joescharf/cr/internal/llm"
	"github.com/joescharf/cr/internal/models"
	"github.com/joescharf/cr/internal/notify"
	"github.com/joescharf/cr/internal/store"
)

// scriptedBackend returns canned text, optionally sleeping past deadlines.
type scriptedBackend struct {
	text  string
	delay time.Duration
	calls int
}

func (s *scriptedBackend) Name() string      { return "scripted" }
func (s *scriptedBackend) IsAvailable() bool { return true }

func (s *scriptedBackend) Generate(ctx context.Context, _ llm.Request) (string, error) {
	s.calls++
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return s.text, nil
}

func newTestRunner(t *testing.T, backend llm.Backend) (*Runner, *store.SQLiteStore) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	reg := llm.NewRegistry()
	reg.Register(backend)
	gateway := llm.NewGateway(reg, backend.Name())

	r := NewRunner(s, gateway, notify.Nop{})
	r.BaseDelay = time.Millisecond
	return r, s
}

func testArtifact(t *testing.T) *artifact.Set {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "main.go")
	require.NoError(t, os.WriteFile(path, []byte("package main\n\nfunc main() {}\n"), 0o644))
	art, err := artifact.Load(dir)
	require.NoError(t, err)
	return art
}

func newTestReview(t *testing.T, s store.Store) *models.Review {
	t.Helper()
	r := &models.Review{Target: "/tmp/p", Mode: models.ModeSinglePass}
	require.NoError(t, s.CreateReview(context.Background(), r))
	return r
}

func TestRun_EmptyArtifactFailsFast(t *testing.T) {
	backend := &scriptedBackend{text: "unused"}
	r, s := newTestRunner(t, backend)
	review := newTestReview(t, s)

	_, err := r.Run(context.Background(), review, models.RoleGeneral, models.AgentConfig{Backend: "scripted"}, &artifact.Set{})
	assert.ErrorIs(t, err, ErrNoContent)
	assert.Zero(t, backend.calls)
}

func TestRun_PersistsFindings(t *testing.T) {
	backend := &scriptedBackend{text: `{"issues":[
		{"severity":"error","category":"security","title":"hardcoded token","description":"token in source","file":"main.go","line":3,"suggestion":"load from env"},
		{"severity":"info","category":"style","title":"missing doc comment","description":"exported func undocumented","file":"main.go","line":1}
	],"summary":"two issues"}`}
	r, s := newTestRunner(t, backend)
	review := newTestReview(t, s)
	ctx := context.Background()

	run, err := r.Run(ctx, review, models.RoleSecurity, models.AgentConfig{Backend: "scripted", TimeoutSeconds: 10}, testArtifact(t))
	require.NoError(t, err)
	assert.True(t, run.ParsedSuccessfully)
	assert.Equal(t, 2, run.IssueCount)
	assert.False(t, run.TimedOut)
	assert.Equal(t, models.RunFailureNone, run.Failure)

	findings, err := s.ListFindings(ctx, store.FindingFilter{ReviewID: review.ID})
	require.NoError(t, err)
	require.Len(t, findings, 2)
	assert.Equal(t, models.RoleSecurity, findings[0].Role)

	// Suggestion attached to the finding that carried one
	var withSuggestion *models.Finding
	for _, f := range findings {
		if f.Title == "hardcoded token" {
			withSuggestion = f
		}
	}
	require.NotNil(t, withSuggestion)
	suggestions, err := s.ListSuggestions(ctx, withSuggestion.ID)
	require.NoError(t, err)
	require.Len(t, suggestions, 1)
	assert.Equal(t, "load from env", suggestions[0].Content)
}

func TestRun_DeduplicatesWithinReview(t *testing.T) {
	backend := &scriptedBackend{text: `{"issues":[{"severity":"warning","category":"general","title":"dup","description":"same finding","file":"a.go","line":1}],"summary":"s"}`}
	r, s := newTestRunner(t, backend)
	review := newTestReview(t, s)
	ctx := context.Background()
	art := testArtifact(t)

	r.CacheEnabled = false
	cfg := models.AgentConfig{Backend: "scripted", TimeoutSeconds: 10}

	run1, err := r.Run(ctx, review, models.RoleGeneral, cfg, art)
	require.NoError(t, err)
	assert.Equal(t, 1, run1.IssueCount)

	run2, err := r.Run(ctx, review, models.RoleStyle, cfg, art)
	require.NoError(t, err)
	assert.Equal(t, 0, run2.IssueCount)

	findings, err := s.ListFindings(ctx, store.FindingFilter{ReviewID: review.ID})
	require.NoError(t, err)
	assert.Len(t, findings, 1)
}

func TestRun_TimeoutAfterRetries(t *testing.T) {
	backend := &scriptedBackend{text: "never arrives", delay: 5 * time.Second}
	r, s := newTestRunner(t, backend)
	review := newTestReview(t, s)
	ctx := context.Background()

	cfg := models.AgentConfig{Backend: "scripted", TimeoutSeconds: 1}
	start := time.Now()
	run, err := r.Run(ctx, review, models.RoleGeneral, cfg, testArtifact(t))
	require.NoError(t, err, "timeout must not be a fatal error")

	assert.True(t, run.TimedOut)
	assert.False(t, run.ParsedSuccessfully)
	assert.Equal(t, models.RunFailureTimeout, run.Failure)
	assert.Contains(t, run.RawOutput, "timed out")
	assert.Equal(t, 3, backend.calls)
	assert.Less(t, time.Since(start), 10*time.Second)

	runs, err := s.ListAgentRuns(ctx, review.ID)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.True(t, runs[0].TimedOut)
}

func TestRun_ParseFailureIsNonFatal(t *testing.T) {
	backend := &scriptedBackend{text: "I had some thoughts but no JSON."}
	r, s := newTestRunner(t, backend)
	review := newTestReview(t, s)

	run, err := r.Run(context.Background(), review, models.RoleGeneral, models.AgentConfig{Backend: "scripted", TimeoutSeconds: 10}, testArtifact(t))
	require.NoError(t, err)
	assert.False(t, run.ParsedSuccessfully)
	assert.Equal(t, models.RunFailureParse, run.Failure)
	assert.Equal(t, 0, run.IssueCount)

	findings, err := s.ListFindings(context.Background(), store.FindingFilter{ReviewID: review.ID})
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestRun_CacheShortCircuitsSecondCall(t *testing.T) {
	backend := &scriptedBackend{text: `{"issues":[],"summary":"clean"}`}
	r, s := newTestRunner(t, backend)
	ctx := context.Background()
	art := testArtifact(t)
	review := newTestReview(t, s)

	cfg := models.AgentConfig{Backend: "scripted", TimeoutSeconds: 10}

	run1, err := r.Run(ctx, review, models.RoleGeneral, cfg, art)
	require.NoError(t, err)
	assert.False(t, run1.FromCache)
	assert.Equal(t, 1, backend.calls)

	// Same review, role, config, and artifact: served from cache.
	run2, err := r.Run(ctx, review, models.RoleGeneral, cfg, art)
	require.NoError(t, err)
	assert.True(t, run2.FromCache)
	assert.Equal(t, 1, backend.calls)
}

func TestRun_PlaceholderIssuesFiltered(t *testing.T) {
	backend := &scriptedBackend{text: `{"issues":[
		{"severity":"info","category":"general","title":"Example issue","description":"template residue"},
		{"severity":"warning","category":"general","title":"real problem","description":"actual defect in handler"}
	],"summary":"s"}`}
	r, s := newTestRunner(t, backend)
	review := newTestReview(t, s)

	run, err := r.Run(context.Background(), review, models.RoleGeneral, models.AgentConfig{Backend: "scripted", TimeoutSeconds: 10}, testArtifact(t))
	require.NoError(t, err)
	assert.Equal(t, 1, run.IssueCount)

	findings, err := s.ListFindings(context.Background(), store.FindingFilter{ReviewID: review.ID})
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, "real problem", findings[0].Title)
}
