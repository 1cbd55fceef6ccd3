// Package debate runs the adversarial three-step sequence over one finding:
// an advocate argues it is serious, an advocate argues mitigating context,
// then a neutral judge issues a structured verdict that updates the finding.
package debate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/joescharf/cr/internal/agent"
	"github.com/joescharf/cr/internal/artifact"
	"github.com/joescharf/cr/internal/llm"
	"github.com/joescharf/cr/internal/models"
	"github.com/joescharf/cr/internal/parse"
	"github.com/joescharf/cr/internal/store"
)

// maxCaseContextBytes bounds how much surrounding file content goes into the
// case description.
const maxCaseContextBytes = 2000

const severityAdvocatePrompt = `You are arguing that a code review finding is serious and must be addressed.
Make the strongest honest case: concrete failure scenarios, blast radius, and why deferring it is risky. Be specific, not alarmist.`

const contextAdvocatePrompt = `You are arguing that a code review finding is less serious than claimed.
Make the strongest honest case for mitigating context: preconditions that rarely hold, compensating controls, or scope that limits impact. Do not deny facts, reframe them.`

const verdictPrompt = `You are a neutral judge ruling on a debated code review finding. You have the case description and both advocates' arguments.

Return ONLY a JSON object with these fields:
- "confirmed": boolean, whether the finding is a real issue
- "final_severity": one of "info", "warning", "error"
- "moderator_comment": a short justification of your ruling
- "keep_issue": boolean, false only if the finding should be dismissed entirely`

// Engine runs one debate per finding.
type Engine struct {
	store   store.Store
	gateway *llm.Gateway

	TimeoutSeconds int
}

// NewEngine creates a debate engine with the default per-call timeout.
func NewEngine(s store.Store, gateway *llm.Gateway) *Engine {
	return &Engine{store: s, gateway: gateway, TimeoutSeconds: agent.DefaultTimeoutSeconds}
}

// Run debates one finding and applies the verdict. A transport failure in any
// step marks the conversation failed and retains the earlier turns; an
// unparseable verdict completes the conversation but leaves the finding
// untouched.
func (e *Engine) Run(ctx context.Context, review *models.Review, finding *models.Finding, art *artifact.Set) (*models.Conversation, error) {
	conv := &models.Conversation{
		ReviewID:  review.ID,
		FindingID: finding.ID,
		Kind:      models.ConversationDebate,
		Status:    models.ConversationRunning,
	}
	if err := e.store.CreateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	caseDesc := buildCase(finding, art)

	forText, err := e.generate(ctx, review, finding.Role, severityAdvocatePrompt, "The case:\n\n"+caseDesc)
	if err != nil {
		return conv, e.fail(ctx, conv, fmt.Errorf("severity advocate: %w", err))
	}
	if err := e.appendTurn(ctx, conv.ID, "advocate-severity", 0, forText, false); err != nil {
		return conv, e.fail(ctx, conv, err)
	}

	againstUser := fmt.Sprintf("The case:\n\n%s\n\nThe opposing argument:\n\n%s", caseDesc, forText)
	againstText, err := e.generate(ctx, review, finding.Role, contextAdvocatePrompt, againstUser)
	if err != nil {
		return conv, e.fail(ctx, conv, fmt.Errorf("context advocate: %w", err))
	}
	if err := e.appendTurn(ctx, conv.ID, "advocate-context", 1, againstText, false); err != nil {
		return conv, e.fail(ctx, conv, err)
	}

	verdictUser := fmt.Sprintf("The case:\n\n%s\n\nArgument for severity:\n\n%s\n\nArgument for context:\n\n%s", caseDesc, forText, againstText)
	rawVerdict, err := e.generate(ctx, review, models.RoleModerator, verdictPrompt, verdictUser)
	if err != nil {
		return conv, e.fail(ctx, conv, fmt.Errorf("verdict: %w", err))
	}

	summary := strings.TrimSpace(rawVerdict)
	if verdict, parseErr := parse.VerdictFrom(rawVerdict); parseErr == nil {
		e.applyVerdict(ctx, finding, verdict)
		summary = verdict.ModeratorComment
	}
	// On parse failure the finding stays as it was; the raw verdict text is
	// still recorded as the summary and final turn.

	if err := e.appendTurn(ctx, conv.ID, string(models.RoleModerator), 2, rawVerdict, true); err != nil {
		return conv, e.fail(ctx, conv, err)
	}

	conv.Status = models.ConversationCompleted
	conv.Summary = summary
	if err := e.store.UpdateConversation(ctx, conv); err != nil {
		return conv, fmt.Errorf("complete conversation: %w", err)
	}
	return conv, nil
}

// applyVerdict writes the judge's ruling onto the finding.
func (e *Engine) applyVerdict(ctx context.Context, finding *models.Finding, v *parse.Verdict) {
	finding.Confirmed = v.Confirmed
	finding.FinalSeverity = models.Severity(parse.NormalizeSeverity(v.FinalSeverity))
	finding.ModeratorComment = v.ModeratorComment
	if v.Confirmed {
		finding.Status = models.FindingStatusConfirmed
	}
	if !v.KeepIssue {
		finding.Status = models.FindingStatusDismissed
	}
	_ = e.store.UpdateFinding(ctx, finding)
}

// buildCase renders the finding and up to maxCaseContextBytes of surrounding
// file content.
func buildCase(finding *models.Finding, art *artifact.Set) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Finding: %s\n", finding.Title)
	fmt.Fprintf(&sb, "Severity: %s\n", finding.Severity)
	fmt.Fprintf(&sb, "Category: %s\n", finding.Category)
	if finding.FilePath != "" {
		fmt.Fprintf(&sb, "Location: %s:%d\n", finding.FilePath, finding.Line)
	}
	fmt.Fprintf(&sb, "Description: %s\n", finding.Description)

	if finding.FilePath != "" {
		if snippet := art.FileContext(finding.FilePath, maxCaseContextBytes); snippet != "" {
			sb.WriteString("\nSurrounding code:\n")
			sb.WriteString(snippet)
		}
	}
	return sb.String()
}

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

func (e *Engine) fail(ctx context.Context, conv *models.Conversation, cause error) error {
	conv.Status = models.ConversationFailed
	conv.Meta = cause.Error()
	_ = e.store.UpdateConversation(ctx, conv)
	return cause
}
