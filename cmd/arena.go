package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joescharf/cr/internal/arena"
	"github.com/joescharf/cr/internal/models"
	"github.com/joescharf/cr/internal/output"
)

var (
	arenaSchemaA string
	arenaSchemaB string
)

var arenaCmd = &cobra.Command{
	Use:   "arena",
	Short: "Run comparative sessions between agent configurations",
	Long: `Run head-to-head comparisons of two agent-configuration schemas.

Each schema drives an independent full review of the same target; a human
vote on the better result feeds a persistent ELO rating per schema.`,
}

var arenaStartCmd = &cobra.Command{
	Use:   "start <target>",
	Short: "Start a comparative session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return arenaStartRun(args[0])
	},
}

var arenaVoteCmd = &cobra.Command{
	Use:   "vote <session-id> <A|B|tie>",
	Short: "Cast the vote for a completed session",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return arenaVoteRun(args[0], args[1])
	},
}

var arenaRatingsCmd = &cobra.Command{
	Use:   "ratings",
	Short: "Show the schema ELO leaderboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		return arenaRatingsRun()
	},
}

var arenaListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent arena sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return arenaListRun()
	},
}

func init() {
	arenaStartCmd.Flags().StringVar(&arenaSchemaA, "schema-a", "", "Path to schema A (YAML)")
	arenaStartCmd.Flags().StringVar(&arenaSchemaB, "schema-b", "", "Path to schema B (YAML)")
	_ = arenaStartCmd.MarkFlagRequired("schema-a")
	_ = arenaStartCmd.MarkFlagRequired("schema-b")

	arenaCmd.AddCommand(arenaStartCmd)
	arenaCmd.AddCommand(arenaVoteCmd)
	arenaCmd.AddCommand(arenaRatingsCmd)
	arenaCmd.AddCommand(arenaListCmd)
	rootCmd.AddCommand(arenaCmd)
}

func arenaStartRun(target string) error {
	e, err := getEngines()
	if err != nil {
		return err
	}

	schemaA, err := arena.LoadSchema(arenaSchemaA)
	if err != nil {
		return err
	}
	schemaB, err := arena.LoadSchema(arenaSchemaB)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would run %s vs %s on %s", schemaA.Name, schemaB.Name, target)
		return nil
	}

	session, err := e.arena.Start(context.Background(), target, schemaA, schemaB)
	if err != nil {
		return err
	}

	ui.Info("Session %s %s", output.Cyan(shortID(session.ID)), output.StatusColor(string(session.Status)))
	if session.ErrorMessage != "" {
		ui.Error("%s", session.ErrorMessage)
		return nil
	}
	ui.Info("A: %s (review %s)", session.SchemaNameA, shortID(session.ReviewIDA))
	ui.Info("B: %s (review %s)", session.SchemaNameB, shortID(session.ReviewIDB))
	ui.Info("Compare with 'cr findings <review-id>' then vote: cr arena vote %s <A|B|tie>", shortID(session.ID))
	return nil
}

func arenaVoteRun(sessionID, vote string) error {
	e, err := getEngines()
	if err != nil {
		return err
	}
	ctx := context.Background()

	session, err := findSession(ctx, e, sessionID)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would vote %s on session %s", vote, shortID(session.ID))
		return nil
	}

	session, err = e.arena.Vote(ctx, session.ID, models.Vote(vote))
	if err != nil {
		return err
	}

	ui.Success("Vote %s recorded for session %s", session.Vote, shortID(session.ID))
	return arenaRatingsRun()
}

func arenaRatingsRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}

	ratings, err := s.ListSchemaRatings(context.Background())
	if err != nil {
		return err
	}
	if len(ratings) == 0 {
		ui.Info("No ratings yet. Ratings appear after the first arena vote.")
		return nil
	}

	table := ui.Table([]string{"Schema", "Rating", "Games", "W", "L", "T"})
	for _, r := range ratings {
		table.Append([]string{
			r.SchemaName,
			fmt.Sprintf("%.0f", r.Rating),
			fmt.Sprintf("%d", r.GamesPlayed),
			fmt.Sprintf("%d", r.Wins),
			fmt.Sprintf("%d", r.Losses),
			fmt.Sprintf("%d", r.Ties),
		})
	}
	return table.Render()
}

func arenaListRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}

	sessions, err := s.ListArenaSessions(context.Background(), 20)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		ui.Info("No arena sessions yet. Run 'cr arena start <target>' to begin.")
		return nil
	}

	table := ui.Table([]string{"ID", "A", "B", "Status", "Vote"})
	for _, sess := range sessions {
		table.Append([]string{
			shortID(sess.ID), sess.SchemaNameA, sess.SchemaNameB,
			output.StatusColor(string(sess.Status)), string(sess.Vote),
		})
	}
	return table.Render()
}

// findSession looks up an arena session by full ID or unique prefix.
func findSession(ctx context.Context, e *engines, id string) (*models.ArenaSession, error) {
	if sess, err := e.store.GetArenaSession(ctx, id); err == nil {
		return sess, nil
	}

	sessions, err := e.store.ListArenaSessions(ctx, 0)
	if err != nil {
		return nil, err
	}

	upper := strings.ToUpper(id)
	var matches []*models.ArenaSession
	for _, sess := range sessions {
		if strings.HasPrefix(sess.ID, upper) {
			matches = append(matches, sess)
		}
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("arena session not found: %s", id)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("ambiguous session ID %s: matches %d sessions", id, len(matches))
	}
}
