package agent

import (
	"strings"

	"github.com/joescharf/cr/internal/artifact"
	"github.com/joescharf/cr/internal/models"
)

// outputContract is appended to every analyst system prompt. Keeping it in
// one place means every role parses through the same pipeline.
const outputContract = `Return ONLY a JSON object with these fields:
- "issues": array of objects with "severity" (one of "info", "warning", "error"), "category", "title", "description", optional "file", optional "line" (integer), optional "suggestion" (a concrete remediation)
- "summary": a short overall assessment

Rules:
- Report only real, specific problems you can point to in the code
- Never invent placeholder issues; return an empty issues array if the code is clean
- Return valid JSON only, no markdown fencing or explanation`

// rolePrompts is the closed prompt-template table, one entry per analyst role.
var rolePrompts = map[models.Role]string{
	models.RoleGeneral: `You are a senior code reviewer focused on correctness.
Look for logic errors, broken error handling, unchecked edge cases, race conditions, and resource leaks.`,
	models.RoleSecurity: `You are a security reviewer.
Look for injection risks, hardcoded credentials, missing input validation, unsafe deserialization, and authorization gaps.`,
	models.RolePerformance: `You are a performance reviewer.
Look for unnecessary allocations, N+1 query patterns, unbounded growth, quadratic loops over large inputs, and blocking calls on hot paths.`,
	models.RoleStyle: `You are a code style and maintainability reviewer.
Look for misleading names, dead code, oversized functions, inconsistent idioms, and missing documentation on exported surfaces.`,
}

// promptVariants tack extra guidance onto a role's system prompt.
var promptVariants = map[string]string{
	"strict": "Hold the code to production standards; flag anything questionable.",
	"brief":  "Limit yourself to the three most important issues.",
}

// BuildPrompts returns the system and user prompts for one analyst role over
// the artifact set.
func BuildPrompts(role models.Role, variant string, art *artifact.Set) (system, user string) {
	var sb strings.Builder
	sb.WriteString(rolePrompts[role])
	sb.WriteString("\n\n")
	if extra, ok := promptVariants[variant]; ok {
		sb.WriteString(extra)
		sb.WriteString("\n\n")
	}
	sb.WriteString(outputContract)
	system = sb.String()

	var ub strings.Builder
	ub.WriteString("Review the following code:\n\n")
	ub.WriteString(art.Render())
	user = ub.String()
	return system, user
}
