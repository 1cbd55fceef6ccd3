package models

import "time"

// ArenaStatus is the lifecycle state of a comparative session.
type ArenaStatus string

const (
	ArenaPending   ArenaStatus = "pending"
	ArenaRunning   ArenaStatus = "running"
	ArenaCompleted ArenaStatus = "completed"
	ArenaFailed    ArenaStatus = "failed"
	ArenaVoted     ArenaStatus = "voted"
)

// Vote is a human judgement on a completed comparative session.
type Vote string

const (
	VoteA   Vote = "A"
	VoteB   Vote = "B"
	VoteTie Vote = "tie"
)

// ValidVote reports whether v is an accepted vote value.
func ValidVote(v Vote) bool {
	return v == VoteA || v == VoteB || v == VoteTie
}

// ArenaSession pairs two full agent-configuration schemas and runs one review
// per schema. A session accepts exactly one vote, and only once both reviews
// have completed.
type ArenaSession struct {
	ID           string
	Target       string
	SchemaHashA  string
	SchemaHashB  string
	SchemaNameA  string
	SchemaNameB  string
	ReviewIDA    string
	ReviewIDB    string
	Status       ArenaStatus
	Vote         Vote // empty until voted
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SchemaRating is the ELO record for one configuration schema, keyed by the
// stable hash of its sorted contents. Created lazily on the first vote that
// references the hash.
type SchemaRating struct {
	ID          string
	SchemaHash  string
	SchemaName  string
	Rating      float64
	GamesPlayed int
	Wins        int
	Losses      int
	Ties        int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
