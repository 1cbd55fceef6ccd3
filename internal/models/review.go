package models

import "time"

// ReviewMode selects the orchestration path for a review.
type ReviewMode string

const (
	ModeSinglePass ReviewMode = "single-pass"
	ModeCouncil    ReviewMode = "council"
	ModeArena      ReviewMode = "arena-comparative"
)

// ReviewStatus represents the lifecycle state of a review.
type ReviewStatus string

const (
	ReviewStatusPending   ReviewStatus = "pending"
	ReviewStatusRunning   ReviewStatus = "running"
	ReviewStatusCompleted ReviewStatus = "completed"
	ReviewStatusFailed    ReviewStatus = "failed"
)

// Role is a fixed analytical focus for one agent. The set is closed; prompt
// templates are keyed off these values.
type Role string

const (
	RoleGeneral     Role = "general"
	RoleSecurity    Role = "security"
	RolePerformance Role = "performance"
	RoleStyle       Role = "style"
	RoleModerator   Role = "moderator"
)

// ReviewRoles returns the analyst roles that participate in a review, in the
// order they speak. The moderator is not included; it only synthesizes.
func ReviewRoles() []Role {
	return []Role{RoleGeneral, RoleSecurity, RolePerformance, RoleStyle}
}

// ValidRole reports whether r is a known analyst role.
func ValidRole(r Role) bool {
	for _, known := range ReviewRoles() {
		if r == known {
			return true
		}
	}
	return false
}

// AgentConfig configures one agent invocation: which backend/model to use and
// the generation parameters. CustomBaseURL and APIKey are request-scoped and
// never persisted by the core.
type AgentConfig struct {
	Backend        string  `yaml:"backend" json:"backend"`
	Model          string  `yaml:"model" json:"model"`
	PromptVariant  string  `yaml:"prompt_variant,omitempty" json:"prompt_variant,omitempty"`
	Temperature    float64 `yaml:"temperature" json:"temperature"`
	MaxTokens      int     `yaml:"max_tokens" json:"max_tokens"`
	TimeoutSeconds int     `yaml:"timeout_seconds" json:"timeout_seconds"`
	CustomBaseURL  string  `yaml:"custom_base_url,omitempty" json:"custom_base_url,omitempty"`
	APIKey         string  `yaml:"-" json:"-"`
}

// Review is one review request and its terminal outcome. The input fields
// (target, mode, per-role config) are immutable after creation.
type Review struct {
	ID           string
	Target       string // artifact reference: directory or file path
	Mode         ReviewMode
	Status       ReviewStatus
	AgentConfigs map[Role]AgentConfig
	Summary      string // final moderator summary, set on completion
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  *time.Time
}
