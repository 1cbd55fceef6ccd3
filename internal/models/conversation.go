package models

import "time"

// ConversationKind distinguishes council discussions from arena debates.
type ConversationKind string

const (
	ConversationCouncil ConversationKind = "council"
	ConversationDebate  ConversationKind = "debate"
)

// ConversationStatus is the lifecycle state of a conversation.
type ConversationStatus string

const (
	ConversationPending   ConversationStatus = "pending"
	ConversationRunning   ConversationStatus = "running"
	ConversationCompleted ConversationStatus = "completed"
	ConversationFailed    ConversationStatus = "failed"
)

// Conversation is an ordered transcript of a discussion or debate. Turns are
// append-only; Meta captures failure detail when a conversation fails.
type Conversation struct {
	ID        string
	ReviewID  string
	FindingID string // set for debates, empty for council discussions
	Kind      ConversationKind
	Status    ConversationStatus
	Summary   string
	Meta      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Turn is one utterance in a conversation. Position is the zero-based order
// within the conversation; IsSummary marks the terminal synthesis or verdict.
type Turn struct {
	ID             string
	ConversationID string
	Sender         string // role name or "moderator"
	Position       int
	Content        string
	IsSummary      bool
	CreatedAt      time.Time
}
