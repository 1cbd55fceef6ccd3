package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joescharf/cr/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. Limiting to a single
	// connection serializes all DB access through Go's connection pool,
	// preventing "database is locked" errors when the two arena reviews
	// persist concurrently.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	// Set busy timeout so concurrent writes wait instead of failing immediately
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// boolToInt converts a bool to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Reviews ---

func (s *SQLiteStore) CreateReview(ctx context.Context, r *models.Review) error {
	if r.ID == "" {
		r.ID = newULID()
	}
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now
	if r.Status == "" {
		r.Status = models.ReviewStatusPending
	}

	// APIKey fields carry a json:"-" tag, so credentials never reach the db.
	configs, err := json.Marshal(r.AgentConfigs)
	if err != nil {
		return fmt.Errorf("marshal agent configs: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO reviews (id, target, mode, status, agent_configs, summary, error_message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Target, string(r.Mode), string(r.Status), string(configs),
		r.Summary, r.ErrorMessage, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create review: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetReview(ctx context.Context, id string) (*models.Review, error) {
	r := &models.Review{}
	var mode, status, configs string
	var completedAt sql.NullTime

	err := s.db.QueryRowContext(ctx,
		`SELECT id, target, mode, status, agent_configs, summary, error_message, created_at, updated_at, completed_at
		FROM reviews WHERE id = ?`, id,
	).Scan(&r.ID, &r.Target, &mode, &status, &configs, &r.Summary, &r.ErrorMessage, &r.CreatedAt, &r.UpdatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("review %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get review: %w", err)
	}

	r.Mode = models.ReviewMode(mode)
	r.Status = models.ReviewStatus(status)
	if completedAt.Valid {
		r.CompletedAt = &completedAt.Time
	}
	if err := json.Unmarshal([]byte(configs), &r.AgentConfigs); err != nil {
		return nil, fmt.Errorf("unmarshal agent configs: %w", err)
	}
	return r, nil
}

func (s *SQLiteStore) UpdateReview(ctx context.Context, r *models.Review) error {
	r.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`UPDATE reviews SET status=?, summary=?, error_message=?, updated_at=?, completed_at=? WHERE id=?`,
		string(r.Status), r.Summary, r.ErrorMessage, r.UpdatedAt, r.CompletedAt, r.ID,
	)
	if err != nil {
		return fmt.Errorf("update review: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("review %s: %w", r.ID, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) ListReviews(ctx context.Context, limit int) ([]*models.Review, error) {
	query := `SELECT id, target, mode, status, agent_configs, summary, error_message, created_at, updated_at, completed_at
		FROM reviews ORDER BY created_at DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var reviews []*models.Review
	for rows.Next() {
		r := &models.Review{}
		var mode, status, configs string
		var completedAt sql.NullTime
		if err := rows.Scan(&r.ID, &r.Target, &mode, &status, &configs, &r.Summary, &r.ErrorMessage, &r.CreatedAt, &r.UpdatedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		r.Mode = models.ReviewMode(mode)
		r.Status = models.ReviewStatus(status)
		if completedAt.Valid {
			r.CompletedAt = &completedAt.Time
		}
		_ = json.Unmarshal([]byte(configs), &r.AgentConfigs)
		reviews = append(reviews, r)
	}
	return reviews, rows.Err()
}

// --- Agent runs ---

func (s *SQLiteStore) CreateAgentRun(ctx context.Context, run *models.AgentRun) error {
	if run.ID == "" {
		run.ID = newULID()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agent_runs (id, review_id, role, backend, model, raw_output, parsed_successfully, timed_out, timeout_seconds, failure, issue_count, from_cache, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.ReviewID, string(run.Role), run.Backend, run.Model,
		run.RawOutput, boolToInt(run.ParsedSuccessfully), boolToInt(run.TimedOut),
		run.TimeoutSeconds, string(run.Failure), run.IssueCount, boolToInt(run.FromCache),
		run.StartedAt, run.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("create agent run: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateAgentRun(ctx context.Context, run *models.AgentRun) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE agent_runs SET backend=?, model=?, raw_output=?, parsed_successfully=?, timed_out=?, failure=?, issue_count=?, from_cache=?, completed_at=? WHERE id=?`,
		run.Backend, run.Model, run.RawOutput,
		boolToInt(run.ParsedSuccessfully), boolToInt(run.TimedOut),
		string(run.Failure), run.IssueCount, boolToInt(run.FromCache),
		run.CompletedAt, run.ID,
	)
	if err != nil {
		return fmt.Errorf("update agent run: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("agent run %s: %w", run.ID, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) ListAgentRuns(ctx context.Context, reviewID string) ([]*models.AgentRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, review_id, role, backend, model, raw_output, parsed_successfully, timed_out, timeout_seconds, failure, issue_count, from_cache, started_at, completed_at
		FROM agent_runs WHERE review_id = ? ORDER BY started_at`, reviewID)
	if err != nil {
		return nil, fmt.Errorf("list agent runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*models.AgentRun
	for rows.Next() {
		run := &models.AgentRun{}
		var role, failure string
		var parsed, timedOut, fromCache int
		var completedAt sql.NullTime
		if err := rows.Scan(&run.ID, &run.ReviewID, &role, &run.Backend, &run.Model,
			&run.RawOutput, &parsed, &timedOut, &run.TimeoutSeconds, &failure,
			&run.IssueCount, &fromCache, &run.StartedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("scan agent run: %w", err)
		}
		run.Role = models.Role(role)
		run.Failure = models.RunFailure(failure)
		run.ParsedSuccessfully = parsed == 1
		run.TimedOut = timedOut == 1
		run.FromCache = fromCache == 1
		if completedAt.Valid {
			run.CompletedAt = &completedAt.Time
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// --- Findings ---

func (s *SQLiteStore) CreateFinding(ctx context.Context, f *models.Finding) error {
	if f.ID == "" {
		f.ID = newULID()
	}
	now := time.Now().UTC()
	f.CreatedAt = now
	f.UpdatedAt = now
	if f.Status == "" {
		f.Status = models.FindingStatusOpen
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO findings (id, review_id, role, severity, category, title, description, file_path, line, status, confirmed, final_severity, moderator_comment, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.ReviewID, string(f.Role), string(f.Severity), f.Category,
		f.Title, f.Description, f.FilePath, f.Line, string(f.Status),
		boolToInt(f.Confirmed), string(f.FinalSeverity), f.ModeratorComment,
		f.CreatedAt, f.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create finding: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetFinding(ctx context.Context, id string) (*models.Finding, error) {
	f := &models.Finding{}
	var role, severity, status, finalSeverity string
	var confirmed int

	err := s.db.QueryRowContext(ctx,
		`SELECT id, review_id, role, severity, category, title, description, file_path, line, status, confirmed, final_severity, moderator_comment, created_at, updated_at
		FROM findings WHERE id = ?`, id,
	).Scan(&f.ID, &f.ReviewID, &role, &severity, &f.Category, &f.Title, &f.Description,
		&f.FilePath, &f.Line, &status, &confirmed, &finalSeverity, &f.ModeratorComment,
		&f.CreatedAt, &f.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("finding %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get finding: %w", err)
	}

	f.Role = models.Role(role)
	f.Severity = models.Severity(severity)
	f.Status = models.FindingStatus(status)
	f.FinalSeverity = models.Severity(finalSeverity)
	f.Confirmed = confirmed == 1
	return f, nil
}

func (s *SQLiteStore) UpdateFinding(ctx context.Context, f *models.Finding) error {
	f.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`UPDATE findings SET severity=?, category=?, title=?, description=?, status=?, confirmed=?, final_severity=?, moderator_comment=?, updated_at=? WHERE id=?`,
		string(f.Severity), f.Category, f.Title, f.Description, string(f.Status),
		boolToInt(f.Confirmed), string(f.FinalSeverity), f.ModeratorComment,
		f.UpdatedAt, f.ID,
	)
	if err != nil {
		return fmt.Errorf("update finding: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("finding %s: %w", f.ID, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) ListFindings(ctx context.Context, filter FindingFilter) ([]*models.Finding, error) {
	query := `SELECT id, review_id, role, severity, category, title, description, file_path, line, status, confirmed, final_severity, moderator_comment, created_at, updated_at FROM findings`
	var conditions []string
	var args []any

	if filter.ReviewID != "" {
		conditions = append(conditions, "review_id = ?")
		args = append(args, filter.ReviewID)
	}
	if filter.Role != "" {
		conditions = append(conditions, "role = ?")
		args = append(args, string(filter.Role))
	}
	if filter.Severity != "" {
		conditions = append(conditions, "severity = ?")
		args = append(args, string(filter.Severity))
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY
		CASE severity WHEN 'error' THEN 0 WHEN 'warning' THEN 1 WHEN 'info' THEN 2 ELSE 3 END,
		file_path, line`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list findings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var findings []*models.Finding
	for rows.Next() {
		f := &models.Finding{}
		var role, severity, status, finalSeverity string
		var confirmed int
		if err := rows.Scan(&f.ID, &f.ReviewID, &role, &severity, &f.Category, &f.Title,
			&f.Description, &f.FilePath, &f.Line, &status, &confirmed, &finalSeverity,
			&f.ModeratorComment, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan finding: %w", err)
		}
		f.Role = models.Role(role)
		f.Severity = models.Severity(severity)
		f.Status = models.FindingStatus(status)
		f.FinalSeverity = models.Severity(finalSeverity)
		f.Confirmed = confirmed == 1
		findings = append(findings, f)
	}
	return findings, rows.Err()
}

func (s *SQLiteStore) FindingExists(ctx context.Context, reviewID, title, filePath string, line int) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM findings WHERE review_id = ? AND title = ? AND file_path = ? AND line = ?`,
		reviewID, title, filePath, line,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check finding exists: %w", err)
	}
	return count > 0, nil
}

// --- Suggestions ---

func (s *SQLiteStore) CreateSuggestion(ctx context.Context, sg *models.Suggestion) error {
	if sg.ID == "" {
		sg.ID = newULID()
	}
	sg.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO suggestions (id, finding_id, content, created_at) VALUES (?, ?, ?, ?)`,
		sg.ID, sg.FindingID, sg.Content, sg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create suggestion: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListSuggestions(ctx context.Context, findingID string) ([]*models.Suggestion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, finding_id, content, created_at FROM suggestions WHERE finding_id = ? ORDER BY created_at`, findingID)
	if err != nil {
		return nil, fmt.Errorf("list suggestions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var suggestions []*models.Suggestion
	for rows.Next() {
		sg := &models.Suggestion{}
		if err := rows.Scan(&sg.ID, &sg.FindingID, &sg.Content, &sg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan suggestion: %w", err)
		}
		suggestions = append(suggestions, sg)
	}
	return suggestions, rows.Err()
}

// --- Conversations ---

func (s *SQLiteStore) CreateConversation(ctx context.Context, c *models.Conversation) error {
	if c.ID == "" {
		c.ID = newULID()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	if c.Status == "" {
		c.Status = models.ConversationPending
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, review_id, finding_id, kind, status, summary, meta, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.ReviewID, c.FindingID, string(c.Kind), string(c.Status),
		c.Summary, c.Meta, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	c := &models.Conversation{}
	var kind, status string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, review_id, finding_id, kind, status, summary, meta, created_at, updated_at
		FROM conversations WHERE id = ?`, id,
	).Scan(&c.ID, &c.ReviewID, &c.FindingID, &kind, &status, &c.Summary, &c.Meta, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}

	c.Kind = models.ConversationKind(kind)
	c.Status = models.ConversationStatus(status)
	return c, nil
}

func (s *SQLiteStore) UpdateConversation(ctx context.Context, c *models.Conversation) error {
	c.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET status=?, summary=?, meta=?, updated_at=? WHERE id=?`,
		string(c.Status), c.Summary, c.Meta, c.UpdatedAt, c.ID,
	)
	if err != nil {
		return fmt.Errorf("update conversation: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("conversation %s: %w", c.ID, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) ListConversations(ctx context.Context, reviewID string) ([]*models.Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, review_id, finding_id, kind, status, summary, meta, created_at, updated_at
		FROM conversations WHERE review_id = ? ORDER BY created_at`, reviewID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var conversations []*models.Conversation
	for rows.Next() {
		c := &models.Conversation{}
		var kind, status string
		if err := rows.Scan(&c.ID, &c.ReviewID, &c.FindingID, &kind, &status, &c.Summary, &c.Meta, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		c.Kind = models.ConversationKind(kind)
		c.Status = models.ConversationStatus(status)
		conversations = append(conversations, c)
	}
	return conversations, rows.Err()
}

// --- Turns ---

func (s *SQLiteStore) CreateTurn(ctx context.Context, t *models.Turn) error {
	if t.ID == "" {
		t.ID = newULID()
	}
	t.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO turns (id, conversation_id, sender, position, content, is_summary, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.ConversationID, t.Sender, t.Position, t.Content, boolToInt(t.IsSummary), t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create turn: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListTurns(ctx context.Context, conversationID string) ([]*models.Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, sender, position, content, is_summary, created_at
		FROM turns WHERE conversation_id = ? ORDER BY position`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var turns []*models.Turn
	for rows.Next() {
		t := &models.Turn{}
		var isSummary int
		if err := rows.Scan(&t.ID, &t.ConversationID, &t.Sender, &t.Position, &t.Content, &isSummary, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		t.IsSummary = isSummary == 1
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// --- Arena sessions ---

func (s *SQLiteStore) CreateArenaSession(ctx context.Context, a *models.ArenaSession) error {
	if a.ID == "" {
		a.ID = newULID()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	if a.Status == "" {
		a.Status = models.ArenaPending
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO arena_sessions (id, target, schema_hash_a, schema_hash_b, schema_name_a, schema_name_b, review_id_a, review_id_b, status, vote, error_message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Target, a.SchemaHashA, a.SchemaHashB, a.SchemaNameA, a.SchemaNameB,
		a.ReviewIDA, a.ReviewIDB, string(a.Status), string(a.Vote), a.ErrorMessage,
		a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create arena session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetArenaSession(ctx context.Context, id string) (*models.ArenaSession, error) {
	a := &models.ArenaSession{}
	var status, vote string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, target, schema_hash_a, schema_hash_b, schema_name_a, schema_name_b, review_id_a, review_id_b, status, vote, error_message, created_at, updated_at
		FROM arena_sessions WHERE id = ?`, id,
	).Scan(&a.ID, &a.Target, &a.SchemaHashA, &a.SchemaHashB, &a.SchemaNameA, &a.SchemaNameB,
		&a.ReviewIDA, &a.ReviewIDB, &status, &vote, &a.ErrorMessage, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("arena session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get arena session: %w", err)
	}

	a.Status = models.ArenaStatus(status)
	a.Vote = models.Vote(vote)
	return a, nil
}

func (s *SQLiteStore) UpdateArenaSession(ctx context.Context, a *models.ArenaSession) error {
	a.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`UPDATE arena_sessions SET review_id_a=?, review_id_b=?, status=?, vote=?, error_message=?, updated_at=? WHERE id=?`,
		a.ReviewIDA, a.ReviewIDB, string(a.Status), string(a.Vote), a.ErrorMessage, a.UpdatedAt, a.ID,
	)
	if err != nil {
		return fmt.Errorf("update arena session: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("arena session %s: %w", a.ID, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) ListArenaSessions(ctx context.Context, limit int) ([]*models.ArenaSession, error) {
	query := `SELECT id, target, schema_hash_a, schema_hash_b, schema_name_a, schema_name_b, review_id_a, review_id_b, status, vote, error_message, created_at, updated_at
		FROM arena_sessions ORDER BY created_at DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list arena sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*models.ArenaSession
	for rows.Next() {
		a := &models.ArenaSession{}
		var status, vote string
		if err := rows.Scan(&a.ID, &a.Target, &a.SchemaHashA, &a.SchemaHashB, &a.SchemaNameA, &a.SchemaNameB,
			&a.ReviewIDA, &a.ReviewIDB, &status, &vote, &a.ErrorMessage, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan arena session: %w", err)
		}
		a.Status = models.ArenaStatus(status)
		a.Vote = models.Vote(vote)
		sessions = append(sessions, a)
	}
	return sessions, rows.Err()
}

// --- Schema ratings ---

func (s *SQLiteStore) GetSchemaRating(ctx context.Context, schemaHash string) (*models.SchemaRating, error) {
	r := &models.SchemaRating{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, schema_hash, schema_name, rating, games_played, wins, losses, ties, created_at, updated_at
		FROM schema_ratings WHERE schema_hash = ?`, schemaHash,
	).Scan(&r.ID, &r.SchemaHash, &r.SchemaName, &r.Rating, &r.GamesPlayed, &r.Wins, &r.Losses, &r.Ties, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("schema rating %s: %w", schemaHash, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get schema rating: %w", err)
	}
	return r, nil
}

func (s *SQLiteStore) CreateSchemaRating(ctx context.Context, r *models.SchemaRating) error {
	if r.ID == "" {
		r.ID = newULID()
	}
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO schema_ratings (id, schema_hash, schema_name, rating, games_played, wins, losses, ties, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.SchemaHash, r.SchemaName, r.Rating, r.GamesPlayed, r.Wins, r.Losses, r.Ties,
		r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create schema rating: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateSchemaRating(ctx context.Context, r *models.SchemaRating) error {
	r.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`UPDATE schema_ratings SET rating=?, games_played=?, wins=?, losses=?, ties=?, updated_at=? WHERE schema_hash=?`,
		r.Rating, r.GamesPlayed, r.Wins, r.Losses, r.Ties, r.UpdatedAt, r.SchemaHash,
	)
	if err != nil {
		return fmt.Errorf("update schema rating: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("schema rating %s: %w", r.SchemaHash, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) ListSchemaRatings(ctx context.Context) ([]*models.SchemaRating, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, schema_hash, schema_name, rating, games_played, wins, losses, ties, created_at, updated_at
		FROM schema_ratings ORDER BY rating DESC`)
	if err != nil {
		return nil, fmt.Errorf("list schema ratings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ratings []*models.SchemaRating
	for rows.Next() {
		r := &models.SchemaRating{}
		if err := rows.Scan(&r.ID, &r.SchemaHash, &r.SchemaName, &r.Rating, &r.GamesPlayed, &r.Wins, &r.Losses, &r.Ties, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan schema rating: %w", err)
		}
		ratings = append(ratings, r)
	}
	return ratings, rows.Err()
}

// --- Response cache ---

func (s *SQLiteStore) CacheGet(ctx context.Context, key string) (string, error) {
	var value string
	var expiresAt time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM response_cache WHERE cache_key = ?`, key,
	).Scan(&value, &expiresAt)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("cache key %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("cache get: %w", err)
	}
	if time.Now().UTC().After(expiresAt) {
		// Expired entries are pruned lazily on read.
		_, _ = s.db.ExecContext(ctx, "DELETE FROM response_cache WHERE cache_key = ?", key)
		return "", fmt.Errorf("cache key %s expired: %w", key, ErrNotFound)
	}
	return value, nil
}

func (s *SQLiteStore) CachePut(ctx context.Context, key, value string, ttl time.Duration) error {
	now := time.Now().UTC()
	// Last writer wins on identical keys; reads are idempotent.
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO response_cache (cache_key, value, expires_at, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET value=excluded.value, expires_at=excluded.expires_at`,
		key, value, now.Add(ttl), now,
	)
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}
