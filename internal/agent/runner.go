// Package agent runs a single configured agent to completion: prompt build,
// caching, timeout with bounded retries, parsing, filtering, and persistence.
// Expected failures (timeout, upstream, parse) are recorded on the AgentRun
// and never abort the enclosing review.
package agent

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joescharf/cr/internal/artifact"
	"github.com/joescharf/cr/internal/llm"
	"github.com/joescharf/cr/internal/models"
	"github.com/joescharf/cr/internal/notify"
	"github.com/joescharf/cr/internal/parse"
	"github.com/joescharf/cr/internal/store"
)

// ErrNoContent means the artifact set is empty: a structural problem surfaced
// before any generation call is made.
var ErrNoContent = errors.New("artifact set has no reviewable content")

const (
	// DefaultTimeoutSeconds is the per-attempt wall clock deadline.
	DefaultTimeoutSeconds = 300
	// maxAttempts bounds the timeout retry loop (1 initial + 2 retries).
	maxAttempts = 3
	// maxRawOutputBytes bounds the stored raw output.
	maxRawOutputBytes = 16 * 1024
	// DefaultCacheTTL is how long a cached response stays valid.
	DefaultCacheTTL = 24 * time.Hour
)

// Runner executes agents against the gateway and persists results.
type Runner struct {
	store    store.Store
	gateway  *llm.Gateway
	notifier notify.Notifier

	CacheEnabled bool
	CacheTTL     time.Duration
	// BaseDelay seeds the exponential backoff between timeout retries.
	// Tests shrink it; production uses the default.
	BaseDelay time.Duration
}

// NewRunner creates a runner with caching enabled and default backoff.
func NewRunner(s store.Store, gateway *llm.Gateway, notifier notify.Notifier) *Runner {
	return &Runner{
		store:        s,
		gateway:      gateway,
		notifier:     notifier,
		CacheEnabled: true,
		CacheTTL:     DefaultCacheTTL,
		BaseDelay:    2 * time.Second,
	}
}

// Run executes one agent for (review, role) and returns its AgentRun. The
// returned error is only for structural problems (empty artifact, storage
// failures); degraded outcomes are encoded on the run itself.
func (r *Runner) Run(ctx context.Context, review *models.Review, role models.Role, cfg models.AgentConfig, art *artifact.Set) (*models.AgentRun, error) {
	if art.Empty() {
		return nil, ErrNoContent
	}

	system, user := BuildPrompts(role, cfg.PromptVariant, art)
	timeoutSeconds := cfg.TimeoutSeconds
	if timeoutSeconds <= 0 {
		timeoutSeconds = DefaultTimeoutSeconds
	}

	run := &models.AgentRun{
		ReviewID:       review.ID,
		Role:           role,
		Backend:        cfg.Backend,
		Model:          cfg.Model,
		TimeoutSeconds: timeoutSeconds,
	}
	if err := r.store.CreateAgentRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create agent run: %w", err)
	}
	r.notifier.AgentStarted(review.ID, role)

	rawText, backendUsed, modelUsed, fromCache, runErr := r.generate(ctx, review, cfg, system, user, art, timeoutSeconds)
	run.FromCache = fromCache
	if backendUsed != "" {
		run.Backend = backendUsed
	}
	if modelUsed != "" {
		run.Model = modelUsed
	}

	if runErr != nil {
		r.recordFailure(ctx, run, runErr)
		r.notifier.AgentCompleted(review.ID, role, 0, false)
		return run, nil
	}

	issueCount, parsed := r.ingest(ctx, review, role, rawText)
	run.RawOutput = truncateOutput(rawText)
	run.ParsedSuccessfully = parsed
	run.IssueCount = issueCount
	if !parsed {
		run.Failure = models.RunFailureParse
	}
	now := time.Now().UTC()
	run.CompletedAt = &now
	if err := r.store.UpdateAgentRun(ctx, run); err != nil {
		return nil, fmt.Errorf("finalize agent run: %w", err)
	}

	r.notifier.AgentCompleted(review.ID, role, issueCount, parsed)
	return run, nil
}

// generate produces raw text via cache or gateway, enforcing the per-attempt
// timeout with exponential backoff across at most maxAttempts attempts.
func (r *Runner) generate(ctx context.Context, review *models.Review, cfg models.AgentConfig, system, user string, art *artifact.Set, timeoutSeconds int) (text, backendUsed, modelUsed string, fromCache bool, err error) {
	cacheKey := ""
	if r.CacheEnabled {
		cacheKey = r.cacheKey(cfg, system, user, review.ID, art.Hash())
		if cached, cacheErr := r.store.CacheGet(ctx, cacheKey); cacheErr == nil {
			return cached, cfg.Backend, cfg.Model, true, nil
		}
	}

	messages := []llm.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}
	opts := llm.GenerateOpts{
		Backend:       cfg.Backend,
		Model:         cfg.Model,
		Temperature:   cfg.Temperature,
		MaxTokens:     cfg.MaxTokens,
		CustomBaseURL: cfg.CustomBaseURL,
		APIKey:        cfg.APIKey,
	}

	timeout := time.Duration(timeoutSeconds) * time.Second
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			// base delay doubled per attempt
			select {
			case <-time.After(r.BaseDelay * (1 << (attempt - 1))):
			case <-ctx.Done():
				return "", "", "", false, ctx.Err()
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		res, genErr := r.gateway.Generate(attemptCtx, messages, opts)
		cancel()

		if genErr == nil {
			if r.CacheEnabled && cacheKey != "" {
				// Cache write failures are not worth failing the run over.
				_ = r.store.CachePut(ctx, cacheKey, res.Text, r.CacheTTL)
			}
			return res.Text, res.Backend, res.Model, false, nil
		}

		lastErr = genErr
		if !isTimeout(genErr) {
			// Transport and policy failures are not retried here; the
			// gateway already applied its own refusal fallback.
			return "", "", "", false, genErr
		}
	}
	return "", "", "", false, lastErr
}

// ingest parses, filters, dedupes, and persists findings from raw output.
// Returns the surviving issue count and whether parsing succeeded.
func (r *Runner) ingest(ctx context.Context, review *models.Review, role models.Role, rawText string) (int, bool) {
	payload, err := parse.Review(rawText)
	if err != nil {
		return 0, false
	}

	count := 0
	for _, issue := range parse.FilterIssues(payload.Issues) {
		exists, err := r.store.FindingExists(ctx, review.ID, issue.Title, issue.File, issue.Line)
		if err != nil || exists {
			continue
		}

		finding := &models.Finding{
			ReviewID:    review.ID,
			Role:        role,
			Severity:    models.Severity(parse.NormalizeSeverity(issue.Severity)),
			Category:    issue.Category,
			Title:       issue.Title,
			Description: issue.Description,
			FilePath:    issue.File,
			Line:        issue.Line,
			Status:      models.FindingStatusOpen,
		}
		if err := r.store.CreateFinding(ctx, finding); err != nil {
			continue
		}
		if issue.Suggestion != "" {
			_ = r.store.CreateSuggestion(ctx, &models.Suggestion{
				FindingID: finding.ID,
				Content:   issue.Suggestion,
			})
		}
		count++
	}
	return count, true
}

// recordFailure finalizes a run that produced no usable output. The raw
// output is a human-readable sentinel, never model text.
func (r *Runner) recordFailure(ctx context.Context, run *models.AgentRun, err error) {
	if isTimeout(err) {
		run.TimedOut = true
		run.Failure = models.RunFailureTimeout
		run.RawOutput = fmt.Sprintf("[timed out after %d attempts of %ds]", maxAttempts, run.TimeoutSeconds)
	} else {
		run.Failure = classify(err)
		run.RawOutput = fmt.Sprintf("[backend error: %s]", truncateOutput(err.Error()))
	}
	run.ParsedSuccessfully = false
	now := time.Now().UTC()
	run.CompletedAt = &now
	_ = r.store.UpdateAgentRun(ctx, run)
}

// cacheKey derives the deterministic cache key for one generation.
func (r *Runner) cacheKey(cfg models.AgentConfig, system, user, reviewID, contentHash string) string {
	h := sha256.New()
	for _, part := range []string{cfg.Backend, cfg.Model, system, user, reviewID, contentHash} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// isTimeout reports whether err is a deadline expiry anywhere in its chain.
func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

// classify maps an upstream failure onto a diagnostic reason code. This is
// purely for the human-readable record; every class is equally non-fatal.
func classify(err error) models.RunFailure {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "rate_limit"):
		return models.RunFailureRateLimit
	case strings.Contains(msg, "model") && (strings.Contains(msg, "not found") || strings.Contains(msg, "404")):
		return models.RunFailureNoModel
	case strings.Contains(msg, "connection") || strings.Contains(msg, "unavailable") || strings.Contains(msg, "503"):
		return models.RunFailureUnavailable
	default:
		return models.RunFailureUpstream
	}
}

func truncateOutput(s string) string {
	if len(s) <= maxRawOutputBytes {
		return s
	}
	return s[:maxRawOutputBytes]
}
