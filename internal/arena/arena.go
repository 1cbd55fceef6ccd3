// Package arena runs comparative sessions: two full agent-configuration
// schemas each drive an independent review of the same target, a human votes
// on the better result, and the vote feeds a persistent ELO rating per schema.
package arena

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joescharf/cr/internal/agent"
	"github.com/joescharf/cr/internal/artifact"
	"github.com/joescharf/cr/internal/models"
	"github.com/joescharf/cr/internal/notify"
	"github.com/joescharf/cr/internal/rating"
	"github.com/joescharf/cr/internal/store"
)

// Engine runs comparative sessions and applies votes.
type Engine struct {
	store    store.Store
	runner   *agent.Runner
	notifier notify.Notifier
}

// NewEngine creates an arena engine on top of a shared agent runner.
func NewEngine(s store.Store, runner *agent.Runner, notifier notify.Notifier) *Engine {
	return &Engine{store: s, runner: runner, notifier: notifier}
}

// Start validates both schemas, spawns one full review per schema, and runs
// them concurrently. Both sides are always awaited; a failure on either side
// is recorded and fails the session, since a comparison needs both results.
func (e *Engine) Start(ctx context.Context, target string, schemaA, schemaB *Schema) (*models.ArenaSession, error) {
	if err := schemaA.Validate(); err != nil {
		return nil, err
	}
	if err := schemaB.Validate(); err != nil {
		return nil, err
	}

	art, err := artifact.Load(target)
	if err != nil {
		return nil, fmt.Errorf("load artifact: %w", err)
	}
	if art.Empty() {
		return nil, agent.ErrNoContent
	}

	session := &models.ArenaSession{
		Target:      target,
		SchemaHashA: schemaA.Hash(),
		SchemaHashB: schemaB.Hash(),
		SchemaNameA: schemaA.Name,
		SchemaNameB: schemaB.Name,
		Status:      models.ArenaRunning,
	}
	if err := e.store.CreateArenaSession(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	// Fan out the two reviews. A plain group (no shared cancellation) so a
	// failure on one side never aborts the other; each side's outcome lands
	// in its own slot.
	var (
		g        errgroup.Group
		reviewID [2]string
		sideErr  [2]error
	)
	sides := []*Schema{schemaA, schemaB}
	for i, schema := range sides {
		g.Go(func() error {
			id, err := e.runReview(ctx, target, schema, art)
			reviewID[i] = id
			sideErr[i] = err
			return err
		})
	}
	_ = g.Wait()

	session.ReviewIDA = reviewID[0]
	session.ReviewIDB = reviewID[1]

	var failures []string
	if sideErr[0] != nil {
		failures = append(failures, fmt.Sprintf("A (%s): %v", schemaA.Name, sideErr[0]))
	}
	if sideErr[1] != nil {
		failures = append(failures, fmt.Sprintf("B (%s): %v", schemaB.Name, sideErr[1]))
	}

	if len(failures) > 0 {
		session.Status = models.ArenaFailed
		session.ErrorMessage = strings.Join(failures, "; ")
	} else {
		session.Status = models.ArenaCompleted
	}
	if err := e.store.UpdateArenaSession(ctx, session); err != nil {
		return session, fmt.Errorf("update session: %w", err)
	}
	return session, nil
}

// runReview creates one review from a schema and runs every role through the
// agent runner. Per-agent failures are tolerated: the runner records them on
// the AgentRun and the review still completes.
func (e *Engine) runReview(ctx context.Context, target string, schema *Schema, art *artifact.Set) (string, error) {
	review := &models.Review{
		Target:       target,
		Mode:         models.ModeArena,
		Status:       models.ReviewStatusRunning,
		AgentConfigs: schema.Agents,
	}
	if err := e.store.CreateReview(ctx, review); err != nil {
		return "", fmt.Errorf("create review: %w", err)
	}
	e.notifier.ReviewStarted(review.ID)

	issueCount := 0
	for _, role := range models.ReviewRoles() {
		run, err := e.runner.Run(ctx, review, role, schema.Agents[role], art)
		if err != nil {
			review.Status = models.ReviewStatusFailed
			review.ErrorMessage = err.Error()
			_ = e.store.UpdateReview(ctx, review)
			e.notifier.ReviewFailed(review.ID, err.Error())
			return review.ID, fmt.Errorf("run %s agent: %w", role, err)
		}
		issueCount += run.IssueCount
	}

	review.Status = models.ReviewStatusCompleted
	review.Summary = fmt.Sprintf("%d findings across %d roles", issueCount, len(models.ReviewRoles()))
	now := time.Now().UTC()
	review.CompletedAt = &now
	if err := e.store.UpdateReview(ctx, review); err != nil {
		return review.ID, fmt.Errorf("complete review: %w", err)
	}
	e.notifier.ReviewCompleted(review.ID)
	return review.ID, nil
}

// Vote applies the single human vote for a completed session and updates both
// schemas' ELO ratings. Ratings are created lazily here, on first vote.
func (e *Engine) Vote(ctx context.Context, sessionID string, vote models.Vote) (*models.ArenaSession, error) {
	if !models.ValidVote(vote) {
		return nil, &ValidationError{Schema: sessionID, Reason: fmt.Sprintf("invalid vote %q, want A, B, or tie", vote)}
	}

	session, err := e.store.GetArenaSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	switch session.Status {
	case models.ArenaCompleted:
	case models.ArenaVoted:
		return nil, fmt.Errorf("session %s already voted", sessionID)
	default:
		return nil, fmt.Errorf("session %s is %s, votes are only accepted once completed", sessionID, session.Status)
	}

	ratingA, err := e.loadOrCreateRating(ctx, session.SchemaHashA, session.SchemaNameA)
	if err != nil {
		return nil, err
	}
	ratingB, err := e.loadOrCreateRating(ctx, session.SchemaHashB, session.SchemaNameB)
	if err != nil {
		return nil, err
	}

	k := (rating.KFactor(ratingA.GamesPlayed) + rating.KFactor(ratingB.GamesPlayed)) / 2

	var result rating.Result
	switch vote {
	case models.VoteA:
		result = rating.Win
		ratingA.Wins++
		ratingB.Losses++
	case models.VoteB:
		result = rating.Loss
		ratingB.Wins++
		ratingA.Losses++
	case models.VoteTie:
		result = rating.Tie
		ratingA.Ties++
		ratingB.Ties++
	}
	ratingA.Rating, ratingB.Rating = rating.Update(ratingA.Rating, ratingB.Rating, result, k)
	ratingA.GamesPlayed++
	ratingB.GamesPlayed++

	if err := e.store.UpdateSchemaRating(ctx, ratingA); err != nil {
		return nil, fmt.Errorf("update rating A: %w", err)
	}
	if err := e.store.UpdateSchemaRating(ctx, ratingB); err != nil {
		return nil, fmt.Errorf("update rating B: %w", err)
	}

	session.Vote = vote
	session.Status = models.ArenaVoted
	if err := e.store.UpdateArenaSession(ctx, session); err != nil {
		return session, fmt.Errorf("update session: %w", err)
	}
	return session, nil
}

// loadOrCreateRating fetches a schema's rating, creating it at the initial
// rating if this is the first vote referencing the hash.
func (e *Engine) loadOrCreateRating(ctx context.Context, schemaHash, schemaName string) (*models.SchemaRating, error) {
	r, err := e.store.GetSchemaRating(ctx, schemaHash)
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("get rating: %w", err)
	}

	r = &models.SchemaRating{
		SchemaHash: schemaHash,
		SchemaName: schemaName,
		Rating:     rating.InitialRating,
	}
	if err := e.store.CreateSchemaRating(ctx, r); err != nil {
		return nil, fmt.Errorf("create rating: %w", err)
	}
	return r, nil
}
