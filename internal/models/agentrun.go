package models

import "time"

// RunFailure classifies why an agent run produced no usable output. These are
// expected, recorded outcomes — not errors that abort the enclosing review.
type RunFailure string

const (
	RunFailureNone        RunFailure = ""
	RunFailureTimeout     RunFailure = "timeout"
	RunFailureUpstream    RunFailure = "upstream"
	RunFailureParse       RunFailure = "parse"
	RunFailureRateLimit   RunFailure = "rate_limit"
	RunFailureUnavailable RunFailure = "backend_unavailable"
	RunFailureNoModel     RunFailure = "model_not_found"
)

// AgentRun records one agent execution for a (review, role) pair. It is created
// before the backend is invoked and finalized exactly once at completion.
type AgentRun struct {
	ID                 string
	ReviewID           string
	Role               Role
	Backend            string // backend actually used; may differ from requested after fallback
	Model              string
	RawOutput          string // truncated to a bound; sentinel text on timeout/error
	ParsedSuccessfully bool
	TimedOut           bool
	TimeoutSeconds     int
	Failure            RunFailure
	IssueCount         int
	FromCache          bool
	StartedAt          time.Time
	CompletedAt        *time.Time
}
