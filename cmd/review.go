package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joescharf/cr/internal/models"
	"github.com/joescharf/cr/internal/output"
	"github.com/joescharf/cr/internal/review"
)

var reviewMode string

var reviewCmd = &cobra.Command{
	Use:   "review <target>",
	Short: "Run a code review of a file or directory",
	Long: `Run a multi-agent code review of a file or directory.

In single-pass mode (default) each role analyzes the code independently.
In council mode the roles hold a multi-round discussion and a moderator
synthesizes the transcript into a final report.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewRun(args[0])
	},
}

var reviewStatusCmd = &cobra.Command{
	Use:   "status <review-id>",
	Short: "Show a review's status and agent runs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewStatusRun(args[0])
	},
}

var reviewCancelCmd = &cobra.Command{
	Use:   "cancel <review-id>",
	Short: "Cancel a running review",
	Long: `Cancel a running review cooperatively: no further agents are
scheduled; in-flight generation calls finish but their results are discarded.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewCancelRun(args[0])
	},
}

var reviewListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent reviews",
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewListRun()
	},
}

func init() {
	reviewCmd.Flags().StringVar(&reviewMode, "mode", string(models.ModeSinglePass), "Review mode: single-pass or council")
	reviewCmd.AddCommand(reviewStatusCmd)
	reviewCmd.AddCommand(reviewCancelCmd)
	reviewCmd.AddCommand(reviewListCmd)
	rootCmd.AddCommand(reviewCmd)
}

func reviewRun(target string) error {
	mode := models.ReviewMode(reviewMode)
	if mode != models.ModeSinglePass && mode != models.ModeCouncil {
		return fmt.Errorf("invalid mode: %s (must be %s or %s)", reviewMode, models.ModeSinglePass, models.ModeCouncil)
	}

	e, err := getEngines()
	if err != nil {
		return err
	}
	ctx := context.Background()

	if dryRun {
		ui.DryRunMsg("Would review %s in %s mode", target, mode)
		return nil
	}

	reviewRec, err := e.orchestrator.Run(ctx, target, mode, review.DefaultAgentConfigs())
	if err != nil {
		return err
	}

	if reviewRec.Summary != "" {
		fmt.Fprintln(ui.Out)
		fmt.Fprintln(ui.Out, reviewRec.Summary)
	}
	ui.Info("Findings: cr findings %s", shortID(reviewRec.ID))
	return nil
}

func reviewStatusRun(id string) error {
	e, err := getEngines()
	if err != nil {
		return err
	}
	ctx := context.Background()

	reviewRec, err := e.orchestrator.Find(ctx, id)
	if err != nil {
		return err
	}

	ui.Info("Review %s (%s) %s", output.Cyan(shortID(reviewRec.ID)), reviewRec.Mode, output.StatusColor(string(reviewRec.Status)))
	ui.Info("Target: %s", reviewRec.Target)
	if reviewRec.Summary != "" {
		fmt.Fprintln(ui.Out)
		fmt.Fprintln(ui.Out, reviewRec.Summary)
		fmt.Fprintln(ui.Out)
	}
	if reviewRec.ErrorMessage != "" {
		ui.Error("Error: %s", reviewRec.ErrorMessage)
	}

	runs, err := e.store.ListAgentRuns(ctx, reviewRec.ID)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		return nil
	}

	table := ui.Table([]string{"Role", "Backend", "Model", "Issues", "Parsed", "Result"})
	for _, run := range runs {
		result := "ok"
		switch {
		case run.TimedOut:
			result = output.Red("timed out")
		case run.Failure != models.RunFailureNone:
			result = output.Yellow(string(run.Failure))
		case run.FromCache:
			result = "cached"
		}
		table.Append([]string{
			string(run.Role), run.Backend, run.Model,
			fmt.Sprintf("%d", run.IssueCount),
			fmt.Sprintf("%t", run.ParsedSuccessfully),
			result,
		})
	}
	return table.Render()
}

func reviewCancelRun(id string) error {
	e, err := getEngines()
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would cancel review %s", id)
		return nil
	}

	reviewRec, err := e.orchestrator.Cancel(context.Background(), id)
	if err != nil {
		return err
	}
	ui.Success("Review %s cancelled", shortID(reviewRec.ID))
	return nil
}

func reviewListRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}

	reviews, err := s.ListReviews(context.Background(), 20)
	if err != nil {
		return err
	}
	if len(reviews) == 0 {
		ui.Info("No reviews yet. Run 'cr review <target>' to start one.")
		return nil
	}

	table := ui.Table([]string{"ID", "Mode", "Status", "Target", "Created"})
	for _, r := range reviews {
		table.Append([]string{
			shortID(r.ID), string(r.Mode),
			output.StatusColor(string(r.Status)),
			r.Target,
			r.CreatedAt.Format("2006-01-02 15:04"),
		})
	}
	return table.Render()
}

// shortID truncates a ULID for display; every command accepts prefixes back.
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
