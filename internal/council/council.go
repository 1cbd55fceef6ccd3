// Package council runs the multi-round discussion protocol: a fixed set of
// analyst roles speak in sequence for N rounds, each conditioned on the full
// prior transcript, and a moderator synthesizes the transcript into findings,
// optional follow-up questions, and a final summary.
package council

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/joescharf/cr/internal/agent"
	"github.com/joescharf/cr/internal/artifact"
	"github.com/joescharf/cr/internal/llm"
	"github.com/joescharf/cr/internal/models"
	"github.com/joescharf/cr/internal/notify"
	"github.com/joescharf/cr/internal/parse"
	"github.com/joescharf/cr/internal/store"
)

// DefaultRounds is how many discussion rounds run when unconfigured.
const DefaultRounds = 2

// Engine orchestrates one council discussion per review. Rounds and roles are
// strictly sequential: later speakers must see earlier output.
type Engine struct {
	store    store.Store
	gateway  *llm.Gateway
	notifier notify.Notifier

	Rounds         int
	TimeoutSeconds int
}

// NewEngine creates a council engine with default rounds and timeout.
func NewEngine(s store.Store, gateway *llm.Gateway, notifier notify.Notifier) *Engine {
	return &Engine{
		store:          s,
		gateway:        gateway,
		notifier:       notifier,
		Rounds:         DefaultRounds,
		TimeoutSeconds: agent.DefaultTimeoutSeconds,
	}
}

// Run executes the full discussion for a review and returns the conversation.
// Any failure mid-loop marks the conversation failed with the error captured
// in Meta; turns emitted before the failure are retained.
func (e *Engine) Run(ctx context.Context, review *models.Review, art *artifact.Set) (*models.Conversation, error) {
	if art.Empty() {
		return nil, agent.ErrNoContent
	}

	conv := &models.Conversation{
		ReviewID: review.ID,
		Kind:     models.ConversationCouncil,
		Status:   models.ConversationRunning,
	}
	if err := e.store.CreateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	position := 0
	rounds := e.Rounds
	if rounds <= 0 {
		rounds = DefaultRounds
	}

	for round := 1; round <= rounds; round++ {
		for _, role := range models.ReviewRoles() {
			if err := e.checkCancelled(ctx, review.ID); err != nil {
				return conv, e.fail(ctx, conv, err)
			}

			transcript, err := e.transcript(ctx, conv.ID)
			if err != nil {
				return conv, e.fail(ctx, conv, err)
			}

			text, err := e.speak(ctx, review, role, round, transcript, art)
			if err != nil {
				return conv, e.fail(ctx, conv, fmt.Errorf("round %d %s: %w", round, role, err))
			}

			if err := e.appendTurn(ctx, conv.ID, string(role), position, text, false); err != nil {
				return conv, e.fail(ctx, conv, err)
			}
			position++
		}
	}

	transcript, err := e.transcript(ctx, conv.ID)
	if err != nil {
		return conv, e.fail(ctx, conv, err)
	}

	payload, err := e.synthesize(ctx, review, transcript, true)
	if err != nil {
		return conv, e.fail(ctx, conv, fmt.Errorf("moderator synthesis: %w", err))
	}
	e.persistIssues(ctx, review, payload.Issues)

	// Follow-ups: one clarifying question per distinct role, first occurrence
	// wins; each answer becomes a turn, then a final synthesis runs with
	// follow-ups disabled.
	if followups := dedupeFollowups(payload.Followups); len(followups) > 0 {
		for _, fu := range followups {
			if err := e.checkCancelled(ctx, review.ID); err != nil {
				return conv, e.fail(ctx, conv, err)
			}
			answer, err := e.answerFollowup(ctx, review, fu, transcript)
			if err != nil {
				return conv, e.fail(ctx, conv, fmt.Errorf("followup for %s: %w", fu.Role, err))
			}
			if err := e.appendTurn(ctx, conv.ID, fu.Role, position, answer, false); err != nil {
				return conv, e.fail(ctx, conv, err)
			}
			position++
		}

		transcript, err = e.transcript(ctx, conv.ID)
		if err != nil {
			return conv, e.fail(ctx, conv, err)
		}
		finalPayload, err := e.synthesize(ctx, review, transcript, false)
		if err != nil {
			return conv, e.fail(ctx, conv, fmt.Errorf("final synthesis: %w", err))
		}
		e.persistIssues(ctx, review, finalPayload.Issues)
		payload = finalPayload
	}

	if err := e.appendTurn(ctx, conv.ID, string(models.RoleModerator), position, payload.Summary, true); err != nil {
		return conv, e.fail(ctx, conv, err)
	}

	conv.Status = models.ConversationCompleted
	conv.Summary = payload.Summary
	if err := e.store.UpdateConversation(ctx, conv); err != nil {
		return conv, fmt.Errorf("complete conversation: %w", err)
	}
	return conv, nil
}

// speak runs one role's turn for one round.
func (e *Engine) speak(ctx context.Context, review *models.Review, role models.Role, round int, transcript string, art *artifact.Set) (string, error) {
	var sb strings.Builder
	sb.WriteString(rolePrompt(role))
	sb.WriteString(fmt.Sprintf("\n\nThis is round %d of a multi-role discussion.", round))
	if transcript != "" {
		sb.WriteString(" Build on the discussion so far; agree, disagree, or add what the others missed. Do not repeat points already made.\n\nDiscussion so far:\n\n")
		sb.WriteString(transcript)
	} else {
		sb.WriteString(" You speak first; raise the most important issues from your focus area.")
	}

	user := "Review the following code:\n\n" + art.Render()
	return e.generate(ctx, review, role, sb.String(), user)
}

// synthesize runs the moderator over the transcript. It deliberately has no
// artifact parameter: the moderator only ever sees what the agents said.
func (e *Engine) synthesize(ctx context.Context, review *models.Review, transcript string, allowFollowups bool) (*parse.ReviewPayload, error) {
	system := moderatorPrompt(allowFollowups)
	user := "Discussion transcript:\n\n" + transcript

	raw, err := e.generate(ctx, review, models.RoleModerator, system, user)
	if err != nil {
		return nil, err
	}

	payload, parseErr := parse.Review(raw)
	if parseErr != nil {
		// An unstructurable synthesis still carries signal: keep the raw
		// text as the summary instead of failing the conversation.
		return &parse.ReviewPayload{Summary: strings.TrimSpace(raw)}, nil
	}
	return payload, nil
}

// answerFollowup asks one role the moderator's clarifying question.
func (e *Engine) answerFollowup(ctx context.Context, review *models.Review, fu parse.Followup, transcript string) (string, error) {
	role := models.Role(fu.Role)
	system := rolePrompt(role) + "\n\nThe moderator has a clarifying question for you. Answer it directly and concisely, using the discussion transcript for context.\n\nDiscussion so far:\n\n" + transcript
	return e.generate(ctx, review, role, system, "Question: "+fu.Question)
}

// generate is one gateway call with the per-role config and a wall clock
// deadline.
func (e *Engine) generate(ctx context.Context, review *models.Review, role models.Role, system, user string) (string, error) {
	cfg := review.AgentConfigs[role]
	timeout := cfg.TimeoutSeconds
	if timeout <= 0 {
		timeout = e.TimeoutSeconds
	}

	callCtx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()

	res, err := e.gateway.Generate(callCtx, []llm.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}, llm.GenerateOpts{
		Backend:       cfg.Backend,
		Model:         cfg.Model,
		Temperature:   cfg.Temperature,
		MaxTokens:     cfg.MaxTokens,
		CustomBaseURL: cfg.CustomBaseURL,
		APIKey:        cfg.APIKey,
	})
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

// persistIssues stores the moderator's issues as findings, filtered and
// deduplicated the same way single-agent output is.
func (e *Engine) persistIssues(ctx context.Context, review *models.Review, issues []parse.Issue) {
	for _, issue := range parse.FilterIssues(issues) {
		exists, err := e.store.FindingExists(ctx, review.ID, issue.Title, issue.File, issue.Line)
		if err != nil || exists {
			continue
		}
		finding := &models.Finding{
			ReviewID:    review.ID,
			Role:        models.RoleModerator,
			Severity:    models.Severity(parse.NormalizeSeverity(issue.Severity)),
			Category:    issue.Category,
			Title:       issue.Title,
			Description: issue.Description,
			FilePath:    issue.File,
			Line:        issue.Line,
			Status:      models.FindingStatusOpen,
		}
		if err := e.store.CreateFinding(ctx, finding); err != nil {
			continue
		}
		if issue.Suggestion != "" {
			_ = e.store.CreateSuggestion(ctx, &models.Suggestion{
				FindingID: finding.ID,
				Content:   issue.Suggestion,
			})
		}
	}
}

// transcript renders all turns so far as "[sender]: content" blocks.
func (e *Engine) transcript(ctx context.Context, conversationID string) (string, error) {
	turns, err := e.store.ListTurns(ctx, conversationID)
	if err != nil {
		return "", fmt.Errorf("list turns: %w", err)
	}
	var sb strings.Builder
	for _, t := range turns {
		sb.WriteString("[")
		sb.WriteString(t.Sender)
		sb.WriteString("]: ")
		sb.WriteString(t.Content)
		sb.WriteString("\n\n")
	}
	return sb.String(), nil
}

func (e *Engine) appendTurn(ctx context.Context, conversationID, sender string, position int, content string, isSummary bool) error {
	turn := &models.Turn{
		ConversationID: conversationID,
		Sender:         sender,
		Position:       position,
		Content:        content,
		IsSummary:      isSummary,
	}
	if err := e.store.CreateTurn(ctx, turn); err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

// checkCancelled implements cooperative cancellation: before each unit of
// work, look at the review's current status and stop if it has been failed.
func (e *Engine) checkCancelled(ctx context.Context, reviewID string) error {
	current, err := e.store.GetReview(ctx, reviewID)
	if err != nil {
		return fmt.Errorf("check review status: %w", err)
	}
	if current.Status == models.ReviewStatusFailed {
		return fmt.Errorf("review %s cancelled", reviewID)
	}
	return nil
}

// fail marks the conversation failed, preserving already-emitted turns.
func (e *Engine) fail(ctx context.Context, conv *models.Conversation, cause error) error {
	conv.Status = models.ConversationFailed
	conv.Meta = cause.Error()
	_ = e.store.UpdateConversation(ctx, conv)
	return cause
}

// dedupeFollowups keeps one follow-up per distinct valid role, first
// occurrence winning.
func dedupeFollowups(followups []parse.Followup) []parse.Followup {
	seen := make(map[string]bool, len(followups))
	var kept []parse.Followup
	for _, fu := range followups {
		if !models.ValidRole(models.Role(fu.Role)) || seen[fu.Role] {
			continue
		}
		seen[fu.Role] = true
		kept = append(kept, fu)
	}
	return kept
}
