package models

import "time"

// Severity grades how serious a finding is.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// ValidSeverity reports whether s is a known severity.
func ValidSeverity(s Severity) bool {
	return s == SeverityInfo || s == SeverityWarning || s == SeverityError
}

// FindingStatus represents the review state of a finding.
type FindingStatus string

const (
	FindingStatusOpen      FindingStatus = "open"
	FindingStatusConfirmed FindingStatus = "confirmed"
	FindingStatusDismissed FindingStatus = "dismissed"
	FindingStatusResolved  FindingStatus = "resolved"
)

// Finding is a structured issue extracted from an agent's output. FinalSeverity
// and ModeratorComment are only set by a debate verdict.
type Finding struct {
	ID               string
	ReviewID         string
	Role             Role
	Severity         Severity
	Category         string
	Title            string
	Description      string
	FilePath         string
	Line             int
	Status           FindingStatus
	Confirmed        bool
	FinalSeverity    Severity // empty until a debate verdict sets it
	ModeratorComment string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Suggestion is an optional remediation attached to a finding.
type Suggestion struct {
	ID        string
	FindingID string
	Content   string
	CreatedAt time.Time
}
