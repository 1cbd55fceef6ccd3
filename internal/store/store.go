package store

import (
	"context"
	"errors"
	"time"

	"github.com/joescharf/cr/internal/models"
)

// ErrNotFound is wrapped by lookups that found no row. Callers that treat
// absence as a normal outcome (lazy rating creation, cache misses) match it
// with errors.Is.
var ErrNotFound = errors.New("not found")

// FindingFilter specifies filters for listing findings.
type FindingFilter struct {
	ReviewID string
	Role     models.Role
	Severity models.Severity
	Status   models.FindingStatus
}

// Store defines the persistence interface for cr.
type Store interface {
	// Reviews
	CreateReview(ctx context.Context, r *models.Review) error
	GetReview(ctx context.Context, id string) (*models.Review, error)
	UpdateReview(ctx context.Context, r *models.Review) error
	ListReviews(ctx context.Context, limit int) ([]*models.Review, error)

	// Agent runs
	CreateAgentRun(ctx context.Context, run *models.AgentRun) error
	UpdateAgentRun(ctx context.Context, run *models.AgentRun) error
	ListAgentRuns(ctx context.Context, reviewID string) ([]*models.AgentRun, error)

	// Findings
	CreateFinding(ctx context.Context, f *models.Finding) error
	GetFinding(ctx context.Context, id string) (*models.Finding, error)
	UpdateFinding(ctx context.Context, f *models.Finding) error
	ListFindings(ctx context.Context, filter FindingFilter) ([]*models.Finding, error)
	FindingExists(ctx context.Context, reviewID, title, filePath string, line int) (bool, error)

	// Suggestions
	CreateSuggestion(ctx context.Context, s *models.Suggestion) error
	ListSuggestions(ctx context.Context, findingID string) ([]*models.Suggestion, error)

	// Conversations
	CreateConversation(ctx context.Context, c *models.Conversation) error
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	UpdateConversation(ctx context.Context, c *models.Conversation) error
	ListConversations(ctx context.Context, reviewID string) ([]*models.Conversation, error)

	// Turns
	CreateTurn(ctx context.Context, t *models.Turn) error
	ListTurns(ctx context.Context, conversationID string) ([]*models.Turn, error)

	// Arena sessions
	CreateArenaSession(ctx context.Context, s *models.ArenaSession) error
	GetArenaSession(ctx context.Context, id string) (*models.ArenaSession, error)
	UpdateArenaSession(ctx context.Context, s *models.ArenaSession) error
	ListArenaSessions(ctx context.Context, limit int) ([]*models.ArenaSession, error)

	// Schema ratings
	GetSchemaRating(ctx context.Context, schemaHash string) (*models.SchemaRating, error)
	CreateSchemaRating(ctx context.Context, r *models.SchemaRating) error
	UpdateSchemaRating(ctx context.Context, r *models.SchemaRating) error
	ListSchemaRatings(ctx context.Context) ([]*models.SchemaRating, error)

	// Response cache
	CacheGet(ctx context.Context, key string) (string, error)
	CachePut(ctx context.Context, key, value string, ttl time.Duration) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
