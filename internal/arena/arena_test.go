package arena

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/cr/internal/agent"
	"github.com/joescharf/cr/internal/llm"
	"github.com/joescharf/cr/internal/models"
	"github.com/joescharf/cr/internal/notify"
	"github.com/joescharf/cr/internal/rating"
	"github.com/joescharf/cr/internal/store"
)

type cannedBackend struct{ text string }

func (c *cannedBackend) Name() string      { return "canned" }
func (c *cannedBackend) IsAvailable() bool { return true }
func (c *cannedBackend) Generate(context.Context, llm.Request) (string, error) {
	return c.text, nil
}

func newTestEngine(t *testing.T) (*Engine, *store.SQLiteStore) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	backend := &cannedBackend{text: `{"issues":[],"summary":"clean"}`}
	reg := llm.NewRegistry()
	reg.Register(backend)
	runner := agent.NewRunner(s, llm.NewGateway(reg, backend.Name()), notify.Nop{})
	return NewEngine(s, runner, notify.Nop{}), s
}

func testSchema(name, model string) *Schema {
	agents := make(map[models.Role]models.AgentConfig)
	for _, role := range models.ReviewRoles() {
		agents[role] = models.AgentConfig{Backend: "canned", Model: model, TimeoutSeconds: 10}
	}
	return &Schema{Name: name, Agents: agents}
}

func testTarget(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n"), 0o644))
	return dir
}

func TestSchemaValidate_NamesMissingRoles(t *testing.T) {
	s := testSchema("partial", "m")
	delete(s.Agents, models.RoleSecurity)
	delete(s.Agents, models.RoleStyle)

	err := s.Validate()
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "partial", verr.Schema)
	assert.Contains(t, err.Error(), "security")
	assert.Contains(t, err.Error(), "style")
}

func TestSchemaHash_StableAndNameIndependent(t *testing.T) {
	a := testSchema("first", "m1")
	b := testSchema("second", "m1")
	assert.Equal(t, a.Hash(), b.Hash(), "name must not affect the hash")

	c := testSchema("first", "m2")
	assert.NotEqual(t, a.Hash(), c.Hash(), "config changes must change the hash")
	assert.Equal(t, a.Hash(), a.Hash())
}

func TestLoadSchema_DefaultsNameFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fast-local.yaml")
	content := `agents:
  general: {backend: ollama, model: llama3}
  security: {backend: ollama, model: llama3}
  performance: {backend: ollama, model: llama3}
  style: {backend: ollama, model: llama3}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	s, err := LoadSchema(path)
	require.NoError(t, err)
	assert.Equal(t, "fast-local", s.Name)
	require.NoError(t, s.Validate())
	assert.Equal(t, "llama3", s.Agents[models.RoleGeneral].Model)
}

func TestStart_RunsBothReviews(t *testing.T) {
	e, s := newTestEngine(t)
	ctx := context.Background()

	session, err := e.Start(ctx, testTarget(t), testSchema("a", "m1"), testSchema("b", "m2"))
	require.NoError(t, err)
	assert.Equal(t, models.ArenaCompleted, session.Status)
	require.NotEmpty(t, session.ReviewIDA)
	require.NotEmpty(t, session.ReviewIDB)
	assert.NotEqual(t, session.ReviewIDA, session.ReviewIDB)

	for _, id := range []string{session.ReviewIDA, session.ReviewIDB} {
		review, err := s.GetReview(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.ReviewStatusCompleted, review.Status)

		runs, err := s.ListAgentRuns(ctx, id)
		require.NoError(t, err)
		assert.Len(t, runs, len(models.ReviewRoles()))
	}

	// No votes yet: ratings must not exist until the first vote.
	_, err = s.GetSchemaRating(ctx, session.SchemaHashA)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetSchemaRating(ctx, session.SchemaHashB)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStart_RejectsInvalidSchemaBeforeWork(t *testing.T) {
	e, s := newTestEngine(t)
	bad := testSchema("bad", "m")
	delete(bad.Agents, models.RoleGeneral)

	_, err := e.Start(context.Background(), testTarget(t), testSchema("a", "m"), bad)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	sessions, listErr := s.ListArenaSessions(context.Background(), 10)
	require.NoError(t, listErr)
	assert.Empty(t, sessions, "no session is created for a structurally invalid request")
}

func TestStart_MissingTarget(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.Start(context.Background(), filepath.Join(t.TempDir(), "nope"), testSchema("a", "m"), testSchema("b", "m"))
	require.Error(t, err)
}

func TestVote_CreatesRatingsLazilyAndUpdates(t *testing.T) {
	e, s := newTestEngine(t)
	ctx := context.Background()

	session, err := e.Start(ctx, testTarget(t), testSchema("a", "m1"), testSchema("b", "m2"))
	require.NoError(t, err)

	voted, err := e.Vote(ctx, session.ID, models.VoteA)
	require.NoError(t, err)
	assert.Equal(t, models.ArenaVoted, voted.Status)
	assert.Equal(t, models.VoteA, voted.Vote)

	a, err := s.GetSchemaRating(ctx, session.SchemaHashA)
	require.NoError(t, err)
	b, err := s.GetSchemaRating(ctx, session.SchemaHashB)
	require.NoError(t, err)

	// Both started at the initial rating, so the winner gains k/2 = 20.
	assert.InDelta(t, rating.InitialRating+20, a.Rating, 1e-6)
	assert.InDelta(t, rating.InitialRating-20, b.Rating, 1e-6)
	assert.InDelta(t, 2*rating.InitialRating, a.Rating+b.Rating, 1e-6)

	assert.Equal(t, 1, a.GamesPlayed)
	assert.Equal(t, 1, a.Wins)
	assert.Equal(t, 0, a.Losses)
	assert.Equal(t, 1, b.GamesPlayed)
	assert.Equal(t, 1, b.Losses)
	assert.Equal(t, a.GamesPlayed, a.Wins+a.Losses+a.Ties)
	assert.Equal(t, b.GamesPlayed, b.Wins+b.Losses+b.Ties)
}

func TestVote_TieBetweenEqualRatingsIsNoop(t *testing.T) {
	e, s := newTestEngine(t)
	ctx := context.Background()

	session, err := e.Start(ctx, testTarget(t), testSchema("a", "m1"), testSchema("b", "m2"))
	require.NoError(t, err)

	_, err = e.Vote(ctx, session.ID, models.VoteTie)
	require.NoError(t, err)

	a, err := s.GetSchemaRating(ctx, session.SchemaHashA)
	require.NoError(t, err)
	b, err := s.GetSchemaRating(ctx, session.SchemaHashB)
	require.NoError(t, err)
	assert.InDelta(t, rating.InitialRating, a.Rating, 1e-6)
	assert.InDelta(t, rating.InitialRating, b.Rating, 1e-6)
	assert.Equal(t, 1, a.Ties)
	assert.Equal(t, 1, b.Ties)
}

func TestVote_OnlyOnceAndOnlyWhenCompleted(t *testing.T) {
	e, s := newTestEngine(t)
	ctx := context.Background()

	session, err := e.Start(ctx, testTarget(t), testSchema("a", "m1"), testSchema("b", "m2"))
	require.NoError(t, err)

	_, err = e.Vote(ctx, session.ID, models.VoteB)
	require.NoError(t, err)
	_, err = e.Vote(ctx, session.ID, models.VoteA)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already voted")

	// A session that never completed cannot be voted on.
	pending := &models.ArenaSession{
		Target: "/tmp/x", SchemaHashA: "h1", SchemaHashB: "h2",
		Status: models.ArenaRunning,
	}
	require.NoError(t, s.CreateArenaSession(ctx, pending))
	_, err = e.Vote(ctx, pending.ID, models.VoteA)
	require.Error(t, err)

	failed := &models.ArenaSession{
		Target: "/tmp/x", SchemaHashA: "h1", SchemaHashB: "h2",
		Status: models.ArenaFailed,
	}
	require.NoError(t, s.CreateArenaSession(ctx, failed))
	_, err = e.Vote(ctx, failed.ID, models.VoteB)
	require.Error(t, err)
}

func TestVote_InvalidValue(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.Vote(context.Background(), "whatever", models.Vote("C"))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestVote_UnknownSession(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.Vote(context.Background(), "missing", models.VoteA)
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrNotFound))
}
