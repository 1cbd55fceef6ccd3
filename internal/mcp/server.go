package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/cr/internal/arena"
	"github.com/joescharf/cr/internal/artifact"
	"github.com/joescharf/cr/internal/debate"
	"github.com/joescharf/cr/internal/models"
	"github.com/joescharf/cr/internal/review"
	"github.com/joescharf/cr/internal/store"
)

// Server wraps the cr engines and exposes them as MCP tools.
type Server struct {
	store        store.Store
	orchestrator *review.Orchestrator
	debater      *debate.Engine
	arena        *arena.Engine
}

// NewServer creates the MCP server wrapper with all required dependencies.
func NewServer(s store.Store, orchestrator *review.Orchestrator, debater *debate.Engine, arenaEngine *arena.Engine) *Server {
	return &Server{
		store:        s,
		orchestrator: orchestrator,
		debater:      debater,
		arena:        arenaEngine,
	}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("cr", "1.0.0", server.WithToolCapabilities(true))

	srv.AddTool(s.reviewTool())
	srv.AddTool(s.reviewStatusTool())
	srv.AddTool(s.listFindingsTool())
	srv.AddTool(s.debateTool())
	srv.AddTool(s.arenaStartTool())
	srv.AddTool(s.arenaVoteTool())
	srv.AddTool(s.ratingsTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// cr_review
func (s *Server) reviewTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("cr_review",
		mcp.WithDescription("Run a code review of a file or directory. Blocks until the review finishes and returns the review id, status, and summary as JSON."),
		mcp.WithString("target", mcp.Required(), mcp.Description("Path to the file or directory to review")),
		mcp.WithString("mode", mcp.Description("Review mode: single-pass (default) or council")),
	)
	return tool, s.handleReview
}

func (s *Server) handleReview(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	target, err := request.RequireString("target")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: target"), nil
	}

	mode := models.ReviewMode(request.GetString("mode", string(models.ModeSinglePass)))
	if mode != models.ModeSinglePass && mode != models.ModeCouncil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid mode: %s (must be single-pass or council)", mode)), nil
	}

	reviewRec, err := s.orchestrator.Run(ctx, target, mode, review.DefaultAgentConfigs())
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("review failed: %v", err)), nil
	}

	return jsonResult(reviewOut(reviewRec))
}

// cr_review_status
func (s *Server) reviewStatusTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("cr_review_status",
		mcp.WithDescription("Get a review's status, summary, and per-agent run records. Accepts a full review ID or unique prefix."),
		mcp.WithString("review_id", mcp.Required(), mcp.Description("Review ID (full ULID or unique prefix)")),
	)
	return tool, s.handleReviewStatus
}

func (s *Server) handleReviewStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("review_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: review_id"), nil
	}

	reviewRec, err := s.orchestrator.Find(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	runs, err := s.store.ListAgentRuns(ctx, reviewRec.ID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list agent runs: %v", err)), nil
	}

	type runOut struct {
		Role               string `json:"role"`
		Backend            string `json:"backend"`
		Model              string `json:"model"`
		IssueCount         int    `json:"issue_count"`
		ParsedSuccessfully bool   `json:"parsed_successfully"`
		TimedOut           bool   `json:"timed_out"`
		Failure            string `json:"failure,omitempty"`
		FromCache          bool   `json:"from_cache"`
	}

	outRuns := make([]runOut, len(runs))
	for i, run := range runs {
		outRuns[i] = runOut{
			Role:               string(run.Role),
			Backend:            run.Backend,
			Model:              run.Model,
			IssueCount:         run.IssueCount,
			ParsedSuccessfully: run.ParsedSuccessfully,
			TimedOut:           run.TimedOut,
			Failure:            string(run.Failure),
			FromCache:          run.FromCache,
		}
	}

	result := reviewOut(reviewRec)
	result["agent_runs"] = outRuns
	return jsonResult(result)
}

// cr_list_findings
func (s *Server) listFindingsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("cr_list_findings",
		mcp.WithDescription("List findings for a review, optionally filtered by role, severity, or status. Returns a JSON array."),
		mcp.WithString("review_id", mcp.Required(), mcp.Description("Review ID (full ULID or unique prefix)")),
		mcp.WithString("role", mcp.Description("Filter by origin role: general, security, performance, style, moderator")),
		mcp.WithString("severity", mcp.Description("Filter by severity: info, warning, error")),
		mcp.WithString("status", mcp.Description("Filter by status: open, confirmed, dismissed, resolved")),
	)
	return tool, s.handleListFindings
}

func (s *Server) handleListFindings(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("review_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: review_id"), nil
	}

	reviewRec, err := s.orchestrator.Find(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	filter := store.FindingFilter{
		ReviewID: reviewRec.ID,
		Role:     models.Role(request.GetString("role", "")),
		Severity: models.Severity(request.GetString("severity", "")),
		Status:   models.FindingStatus(request.GetString("status", "")),
	}

	findings, err := s.store.ListFindings(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list findings: %v", err)), nil
	}

	type findingOut struct {
		ID               string `json:"id"`
		Role             string `json:"role"`
		Severity         string `json:"severity"`
		Category         string `json:"category"`
		Title            string `json:"title"`
		Description      string `json:"description"`
		File             string `json:"file,omitempty"`
		Line             int    `json:"line,omitempty"`
		Status           string `json:"status"`
		Confirmed        bool   `json:"confirmed"`
		FinalSeverity    string `json:"final_severity,omitempty"`
		ModeratorComment string `json:"moderator_comment,omitempty"`
	}

	out := make([]findingOut, len(findings))
	for i, f := range findings {
		out[i] = findingOut{
			ID:               f.ID,
			Role:             string(f.Role),
			Severity:         string(f.Severity),
			Category:         f.Category,
			Title:            f.Title,
			Description:      f.Description,
			File:             f.FilePath,
			Line:             f.Line,
			Status:           string(f.Status),
			Confirmed:        f.Confirmed,
			FinalSeverity:    string(f.FinalSeverity),
			ModeratorComment: f.ModeratorComment,
		}
	}
	return jsonResult(out)
}

// cr_debate
func (s *Server) debateTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("cr_debate",
		mcp.WithDescription("Run an adversarial debate over one finding: one advocate argues severity, one argues mitigating context, then a neutral verdict updates the finding. Returns the verdict conversation as JSON."),
		mcp.WithString("finding_id", mcp.Required(), mcp.Description("Finding ID")),
	)
	return tool, s.handleDebate
}

func (s *Server) handleDebate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	findingID, err := request.RequireString("finding_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: finding_id"), nil
	}

	finding, err := s.store.GetFinding(ctx, findingID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("finding not found: %s", findingID)), nil
	}
	reviewRec, err := s.store.GetReview(ctx, finding.ReviewID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("get review: %v", err)), nil
	}

	art, err := artifact.Load(reviewRec.Target)
	if err != nil {
		// Debate on finding fields alone if the artifact has moved.
		art = &artifact.Set{}
	}

	conv, err := s.debater.Run(ctx, reviewRec, finding, art)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("debate failed: %v", err)), nil
	}

	updated, err := s.store.GetFinding(ctx, finding.ID)
	if err != nil {
		updated = finding
	}

	result := map[string]any{
		"conversation_id":   conv.ID,
		"status":            string(conv.Status),
		"summary":           conv.Summary,
		"finding_id":        updated.ID,
		"finding_status":    string(updated.Status),
		"confirmed":         updated.Confirmed,
		"final_severity":    string(updated.FinalSeverity),
		"moderator_comment": updated.ModeratorComment,
	}
	return jsonResult(result)
}

// cr_arena_start
func (s *Server) arenaStartTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("cr_arena_start",
		mcp.WithDescription("Start a comparative arena session: two agent-configuration schema files each run a full review of the same target. Returns the session as JSON; vote on it with cr_arena_vote once completed."),
		mcp.WithString("target", mcp.Required(), mcp.Description("Path to the file or directory to review")),
		mcp.WithString("schema_a", mcp.Required(), mcp.Description("Path to schema A (YAML)")),
		mcp.WithString("schema_b", mcp.Required(), mcp.Description("Path to schema B (YAML)")),
	)
	return tool, s.handleArenaStart
}

func (s *Server) handleArenaStart(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	target, err := request.RequireString("target")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: target"), nil
	}
	pathA, err := request.RequireString("schema_a")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: schema_a"), nil
	}
	pathB, err := request.RequireString("schema_b")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: schema_b"), nil
	}

	schemaA, err := arena.LoadSchema(pathA)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	schemaB, err := arena.LoadSchema(pathB)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	session, err := s.arena.Start(ctx, target, schemaA, schemaB)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("arena start failed: %v", err)), nil
	}
	return jsonResult(sessionOut(session))
}

// cr_arena_vote
func (s *Server) arenaVoteTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("cr_arena_vote",
		mcp.WithDescription("Cast the single vote for a completed arena session and update both schemas' ELO ratings."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Arena session ID")),
		mcp.WithString("vote", mcp.Required(), mcp.Description("Vote: A, B, or tie")),
	)
	return tool, s.handleArenaVote
}

func (s *Server) handleArenaVote(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: session_id"), nil
	}
	vote, err := request.RequireString("vote")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: vote"), nil
	}

	session, err := s.arena.Vote(ctx, sessionID, models.Vote(vote))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(sessionOut(session))
}

// cr_ratings
func (s *Server) ratingsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("cr_ratings",
		mcp.WithDescription("List the ELO leaderboard of agent-configuration schemas, highest rating first."),
	)
	return tool, s.handleRatings
}

func (s *Server) handleRatings(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ratings, err := s.store.ListSchemaRatings(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list ratings: %v", err)), nil
	}

	type ratingOut struct {
		SchemaName  string  `json:"schema_name"`
		SchemaHash  string  `json:"schema_hash"`
		Rating      float64 `json:"rating"`
		GamesPlayed int     `json:"games_played"`
		Wins        int     `json:"wins"`
		Losses      int     `json:"losses"`
		Ties        int     `json:"ties"`
	}

	out := make([]ratingOut, len(ratings))
	for i, r := range ratings {
		out[i] = ratingOut{
			SchemaName:  r.SchemaName,
			SchemaHash:  r.SchemaHash,
			Rating:      r.Rating,
			GamesPlayed: r.GamesPlayed,
			Wins:        r.Wins,
			Losses:      r.Losses,
			Ties:        r.Ties,
		}
	}
	return jsonResult(out)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func reviewOut(r *models.Review) map[string]any {
	out := map[string]any{
		"id":         r.ID,
		"target":     r.Target,
		"mode":       string(r.Mode),
		"status":     string(r.Status),
		"summary":    r.Summary,
		"created_at": r.CreatedAt.Format(time.RFC3339),
	}
	if r.ErrorMessage != "" {
		out["error_message"] = r.ErrorMessage
	}
	if r.CompletedAt != nil {
		out["completed_at"] = r.CompletedAt.Format(time.RFC3339)
	}
	return out
}

func sessionOut(s *models.ArenaSession) map[string]any {
	out := map[string]any{
		"id":            s.ID,
		"target":        s.Target,
		"schema_a":      s.SchemaNameA,
		"schema_b":      s.SchemaNameB,
		"schema_hash_a": s.SchemaHashA,
		"schema_hash_b": s.SchemaHashB,
		"review_id_a":   s.ReviewIDA,
		"review_id_b":   s.ReviewIDB,
		"status":        string(s.Status),
	}
	if s.Vote != "" {
		out["vote"] = string(s.Vote)
	}
	if s.ErrorMessage != "" {
		out["error_message"] = s.ErrorMessage
	}
	return out
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
