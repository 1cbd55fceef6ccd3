// Package review orchestrates one review end to end: it loads the artifact,
// drives the per-role agents (single-pass) or the council engine, and settles
// the review's terminal status and summary.
package review

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/joescharf/cr/internal/agent"
	"github.com/joescharf/cr/internal/artifact"
	"github.com/joescharf/cr/internal/council"
	"github.com/joescharf/cr/internal/models"
	"github.com/joescharf/cr/internal/notify"
	"github.com/joescharf/cr/internal/store"
)

// Config holds orchestration configuration.
type Config struct {
	Rounds         int
	TimeoutSeconds int
	CacheEnabled   bool
	CacheTTL       time.Duration
}

// DefaultConfig returns the default review config, reading from viper when
// available.
func DefaultConfig() Config {
	rounds := viper.GetInt("council.rounds")
	if rounds <= 0 {
		rounds = council.DefaultRounds
	}

	timeout := viper.GetInt("agent.timeout_seconds")
	if timeout <= 0 {
		timeout = agent.DefaultTimeoutSeconds
	}

	ttlHours := viper.GetInt("cache.ttl_hours")
	ttl := agent.DefaultCacheTTL
	if ttlHours > 0 {
		ttl = time.Duration(ttlHours) * time.Hour
	}

	enabled := true
	if viper.IsSet("cache.enabled") {
		enabled = viper.GetBool("cache.enabled")
	}

	return Config{
		Rounds:         rounds,
		TimeoutSeconds: timeout,
		CacheEnabled:   enabled,
		CacheTTL:       ttl,
	}
}

// Orchestrator runs reviews through their full lifecycle.
type Orchestrator struct {
	store    store.Store
	runner   *agent.Runner
	council  *council.Engine
	notifier notify.Notifier
}

// NewOrchestrator creates an orchestrator over the shared runner and council
// engine.
func NewOrchestrator(s store.Store, runner *agent.Runner, councilEngine *council.Engine, notifier notify.Notifier) *Orchestrator {
	return &Orchestrator{store: s, runner: runner, council: councilEngine, notifier: notifier}
}

// Run creates and executes a review of target in the given mode. Per-agent
// degradation (timeouts, parse failures) never fails the review; it fails
// only when the pipeline cannot reach its terminal step.
func (o *Orchestrator) Run(ctx context.Context, target string, mode models.ReviewMode, configs map[models.Role]models.AgentConfig) (*models.Review, error) {
	art, err := artifact.Load(target)
	if err != nil {
		return nil, fmt.Errorf("load artifact: %w", err)
	}
	if art.Empty() {
		return nil, agent.ErrNoContent
	}

	reviewRec := &models.Review{
		Target:       target,
		Mode:         mode,
		Status:       models.ReviewStatusRunning,
		AgentConfigs: configs,
	}
	if err := o.store.CreateReview(ctx, reviewRec); err != nil {
		return nil, fmt.Errorf("create review: %w", err)
	}
	o.notifier.ReviewStarted(reviewRec.ID)

	switch mode {
	case models.ModeCouncil:
		err = o.runCouncil(ctx, reviewRec, art)
	default:
		err = o.runSinglePass(ctx, reviewRec, art)
	}
	if err != nil {
		reviewRec.Status = models.ReviewStatusFailed
		reviewRec.ErrorMessage = err.Error()
		_ = o.store.UpdateReview(ctx, reviewRec)
		o.notifier.ReviewFailed(reviewRec.ID, err.Error())
		return reviewRec, err
	}

	reviewRec.Status = models.ReviewStatusCompleted
	now := time.Now().UTC()
	reviewRec.CompletedAt = &now
	if err := o.store.UpdateReview(ctx, reviewRec); err != nil {
		return reviewRec, fmt.Errorf("complete review: %w", err)
	}
	o.notifier.ReviewCompleted(reviewRec.ID)
	return reviewRec, nil
}

// runSinglePass runs every role once through the agent runner.
func (o *Orchestrator) runSinglePass(ctx context.Context, reviewRec *models.Review, art *artifact.Set) error {
	issueCount := 0
	for _, role := range models.ReviewRoles() {
		if cancelled, err := o.cancelled(ctx, reviewRec.ID); err != nil {
			return err
		} else if cancelled {
			return fmt.Errorf("review %s cancelled", reviewRec.ID)
		}

		run, err := o.runner.Run(ctx, reviewRec, role, reviewRec.AgentConfigs[role], art)
		if err != nil {
			return fmt.Errorf("run %s agent: %w", role, err)
		}
		issueCount += run.IssueCount
	}
	reviewRec.Summary = fmt.Sprintf("%d findings across %d roles", issueCount, len(models.ReviewRoles()))
	return nil
}

// runCouncil delegates to the discussion engine and adopts its summary.
func (o *Orchestrator) runCouncil(ctx context.Context, reviewRec *models.Review, art *artifact.Set) error {
	conv, err := o.council.Run(ctx, reviewRec, art)
	if err != nil {
		return err
	}
	reviewRec.Summary = conv.Summary
	return nil
}

// Cancel cooperatively stops a review: the status flips to failed and the
// engines stop scheduling further work; in-flight generation calls are not
// aborted, their results are simply discarded.
func (o *Orchestrator) Cancel(ctx context.Context, id string) (*models.Review, error) {
	reviewRec, err := o.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if reviewRec.Status == models.ReviewStatusCompleted || reviewRec.Status == models.ReviewStatusFailed {
		return nil, fmt.Errorf("review %s is already %s", reviewRec.ID, reviewRec.Status)
	}

	reviewRec.Status = models.ReviewStatusFailed
	reviewRec.ErrorMessage = "cancelled"
	if err := o.store.UpdateReview(ctx, reviewRec); err != nil {
		return nil, fmt.Errorf("cancel review: %w", err)
	}
	o.notifier.ReviewFailed(reviewRec.ID, "cancelled")
	return reviewRec, nil
}

// Find looks up a review by full ID or unique prefix.
func (o *Orchestrator) Find(ctx context.Context, id string) (*models.Review, error) {
	if reviewRec, err := o.store.GetReview(ctx, id); err == nil {
		return reviewRec, nil
	}

	upper := strings.ToUpper(id)
	reviews, err := o.store.ListReviews(ctx, 0)
	if err != nil {
		return nil, err
	}

	var matches []*models.Review
	for _, r := range reviews {
		if strings.HasPrefix(r.ID, upper) {
			matches = append(matches, r)
		}
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("review not found: %s", id)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("ambiguous review ID %s: matches %d reviews", id, len(matches))
	}
}

func (o *Orchestrator) cancelled(ctx context.Context, id string) (bool, error) {
	current, err := o.store.GetReview(ctx, id)
	if err != nil {
		return false, fmt.Errorf("check review status: %w", err)
	}
	return current.Status == models.ReviewStatusFailed, nil
}
