package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/cr/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	err = s.Migrate(context.Background())
	require.NoError(t, err)

	t.Cleanup(func() { s.Close() })
	return s
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Migrate(context.Background()))
}

func TestReviewCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := &models.Review{
		Target: "/tmp/some/project",
		Mode:   models.ModeCouncil,
		AgentConfigs: map[models.Role]models.AgentConfig{
			models.RoleGeneral: {Backend: "anthropic", Model: "claude-haiku-4-5", Temperature: 0.2, MaxTokens: 4096, TimeoutSeconds: 300},
		},
	}
	require.NoError(t, s.CreateReview(ctx, r))
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, models.ReviewStatusPending, r.Status)

	got, err := s.GetReview(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.Target, got.Target)
	assert.Equal(t, models.ModeCouncil, got.Mode)
	assert.Equal(t, "anthropic", got.AgentConfigs[models.RoleGeneral].Backend)

	now := time.Now().UTC()
	got.Status = models.ReviewStatusCompleted
	got.Summary = "two findings"
	got.CompletedAt = &now
	require.NoError(t, s.UpdateReview(ctx, got))

	got2, err := s.GetReview(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReviewStatusCompleted, got2.Status)
	assert.Equal(t, "two findings", got2.Summary)
	assert.NotNil(t, got2.CompletedAt)
}

func TestCreateReview_NeverPersistsCredentials(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := &models.Review{
		Target: "/tmp/p",
		Mode:   models.ModeSinglePass,
		AgentConfigs: map[models.Role]models.AgentConfig{
			models.RoleGeneral: {Backend: "anthropic", Model: "m", APIKey: "sk-secret"},
		},
	}
	require.NoError(t, s.CreateReview(ctx, r))

	got, err := s.GetReview(ctx, r.ID)
	require.NoError(t, err)
	assert.Empty(t, got.AgentConfigs[models.RoleGeneral].APIKey)
}

func TestAgentRunLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := &models.Review{Target: "/tmp/p", Mode: models.ModeSinglePass}
	require.NoError(t, s.CreateReview(ctx, r))

	run := &models.AgentRun{
		ReviewID:       r.ID,
		Role:           models.RoleSecurity,
		Backend:        "anthropic",
		Model:          "claude-haiku-4-5",
		TimeoutSeconds: 300,
	}
	require.NoError(t, s.CreateAgentRun(ctx, run))
	assert.NotEmpty(t, run.ID)

	now := time.Now().UTC()
	run.RawOutput = `{"issues":[],"summary":"clean"}`
	run.ParsedSuccessfully = true
	run.CompletedAt = &now
	require.NoError(t, s.UpdateAgentRun(ctx, run))

	runs, err := s.ListAgentRuns(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.True(t, runs[0].ParsedSuccessfully)
	assert.False(t, runs[0].TimedOut)
	assert.Equal(t, models.RoleSecurity, runs[0].Role)
}

func TestFindingDedupe(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := &models.Review{Target: "/tmp/p", Mode: models.ModeSinglePass}
	require.NoError(t, s.CreateReview(ctx, r))

	f := &models.Finding{
		ReviewID: r.ID,
		Role:     models.RoleGeneral,
		Severity: models.SeverityWarning,
		Title:    "unchecked error",
		FilePath: "main.go",
		Line:     42,
	}
	require.NoError(t, s.CreateFinding(ctx, f))

	exists, err := s.FindingExists(ctx, r.ID, "unchecked error", "main.go", 42)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = s.FindingExists(ctx, r.ID, "unchecked error", "main.go", 43)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestListFindings_Filters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := &models.Review{Target: "/tmp/p", Mode: models.ModeCouncil}
	require.NoError(t, s.CreateReview(ctx, r))

	for i, sev := range []models.Severity{models.SeverityError, models.SeverityInfo, models.SeverityError} {
		require.NoError(t, s.CreateFinding(ctx, &models.Finding{
			ReviewID: r.ID,
			Role:     models.RoleSecurity,
			Severity: sev,
			Title:    "finding",
			FilePath: "a.go",
			Line:     i,
		}))
	}

	all, err := s.ListFindings(ctx, FindingFilter{ReviewID: r.ID})
	require.NoError(t, err)
	assert.Len(t, all, 3)
	// Errors sort before info
	assert.Equal(t, models.SeverityError, all[0].Severity)

	errs, err := s.ListFindings(ctx, FindingFilter{ReviewID: r.ID, Severity: models.SeverityError})
	require.NoError(t, err)
	assert.Len(t, errs, 2)
}

func TestConversationAndTurns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := &models.Review{Target: "/tmp/p", Mode: models.ModeCouncil}
	require.NoError(t, s.CreateReview(ctx, r))

	c := &models.Conversation{ReviewID: r.ID, Kind: models.ConversationCouncil}
	require.NoError(t, s.CreateConversation(ctx, c))
	assert.Equal(t, models.ConversationPending, c.Status)

	for i, sender := range []string{"general", "security", "moderator"} {
		require.NoError(t, s.CreateTurn(ctx, &models.Turn{
			ConversationID: c.ID,
			Sender:         sender,
			Position:       i,
			Content:        "turn content",
			IsSummary:      sender == "moderator",
		}))
	}

	turns, err := s.ListTurns(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, turns, 3)
	assert.Equal(t, "general", turns[0].Sender)
	assert.True(t, turns[2].IsSummary)
}

func TestSchemaRating_NotFoundBeforeFirstVote(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetSchemaRating(ctx, "deadbeef")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSchemaRating_CreateAndUpdate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := &models.SchemaRating{SchemaHash: "abc123", SchemaName: "fast", Rating: 1500}
	require.NoError(t, s.CreateSchemaRating(ctx, r))

	r.Rating = 1520
	r.GamesPlayed = 1
	r.Wins = 1
	require.NoError(t, s.UpdateSchemaRating(ctx, r))

	got, err := s.GetSchemaRating(ctx, "abc123")
	require.NoError(t, err)
	assert.InDelta(t, 1520, got.Rating, 1e-9)
	assert.Equal(t, 1, got.GamesPlayed)
	assert.Equal(t, got.GamesPlayed, got.Wins+got.Losses+got.Ties)
}

func TestArenaSessionLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := &models.ArenaSession{
		Target:      "/tmp/p",
		SchemaHashA: "aaa",
		SchemaHashB: "bbb",
		SchemaNameA: "one",
		SchemaNameB: "two",
	}
	require.NoError(t, s.CreateArenaSession(ctx, a))
	assert.Equal(t, models.ArenaPending, a.Status)

	a.Status = models.ArenaCompleted
	a.ReviewIDA = "ra"
	a.ReviewIDB = "rb"
	require.NoError(t, s.UpdateArenaSession(ctx, a))

	got, err := s.GetArenaSession(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ArenaCompleted, got.Status)
	assert.Equal(t, "ra", got.ReviewIDA)
	assert.Empty(t, got.Vote)
}

func TestCache_PutGetExpiry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CachePut(ctx, "k1", "cached response", time.Hour))

	v, err := s.CacheGet(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "cached response", v)

	// Overwrite is last-writer-wins
	require.NoError(t, s.CachePut(ctx, "k1", "newer", time.Hour))
	v, err = s.CacheGet(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "newer", v)

	// Expired entries read as misses
	require.NoError(t, s.CachePut(ctx, "k2", "stale", -time.Minute))
	_, err = s.CacheGet(ctx, "k2")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.CacheGet(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
