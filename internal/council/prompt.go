package council

import "github.com/joescharf/cr/internal/models"

// discussionPrompts are the per-role personas for discussion turns. They are
// looser than the single-agent templates: turns are prose, not JSON; only the
// moderator produces structured output.
var discussionPrompts = map[models.Role]string{
	models.RoleGeneral: `You are the correctness reviewer in a panel discussion.
Focus on logic errors, broken error handling, unchecked edge cases, and resource leaks. Speak in short, concrete points.`,
	models.RoleSecurity: `You are the security reviewer in a panel discussion.
Focus on injection risks, credential handling, input validation, and authorization gaps. Speak in short, concrete points.`,
	models.RolePerformance: `You are the performance reviewer in a panel discussion.
Focus on allocation churn, query patterns, unbounded growth, and blocking calls on hot paths. Speak in short, concrete points.`,
	models.RoleStyle: `You are the maintainability reviewer in a panel discussion.
Focus on naming, dead code, oversized functions, and documentation gaps. Speak in short, concrete points.`,
}

func rolePrompt(role models.Role) string {
	if p, ok := discussionPrompts[role]; ok {
		return p
	}
	return discussionPrompts[models.RoleGeneral]
}

const moderatorBase = `You are the moderator of a code review panel. You have NOT seen the code; you only have the panel's discussion transcript. Synthesize it into a final report.

Return ONLY a JSON object with these fields:
- "issues": array of objects with "severity" (one of "info", "warning", "error"), "category", "title", "description", optional "file", optional "line" (integer), optional "suggestion"
- "summary": a short overall assessment of the review`

const followupField = `
- "followups": array of objects with "role" (one of "general", "security", "performance", "style") and "question" — include one ONLY if a panelist's point genuinely needs clarification before you can judge it; otherwise return an empty array`

const noFollowupRule = `

All clarifying questions have already been answered. Return an empty "followups" array.`

// moderatorPrompt builds the synthesis prompt. When allowFollowups is false
// the moderator is told the questioning phase is over.
func moderatorPrompt(allowFollowups bool) string {
	if allowFollowups {
		return moderatorBase + followupField
	}
	return moderatorBase + noFollowupRule
}
