package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joescharf/cr/internal/models"
	"github.com/joescharf/cr/internal/output"
	"github.com/joescharf/cr/internal/store"
)

var (
	findingsRole     string
	findingsSeverity string
	findingsStatus   string
)

var findingsCmd = &cobra.Command{
	Use:   "findings <review-id>",
	Short: "List findings for a review",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return findingsRun(args[0])
	},
}

func init() {
	findingsCmd.Flags().StringVar(&findingsRole, "role", "", "Filter by origin role (general, security, performance, style, moderator)")
	findingsCmd.Flags().StringVar(&findingsSeverity, "severity", "", "Filter by severity (info, warning, error)")
	findingsCmd.Flags().StringVar(&findingsStatus, "status", "", "Filter by status (open, confirmed, dismissed, resolved)")
	rootCmd.AddCommand(findingsCmd)
}

func findingsRun(id string) error {
	e, err := getEngines()
	if err != nil {
		return err
	}
	ctx := context.Background()

	reviewRec, err := e.orchestrator.Find(ctx, id)
	if err != nil {
		return err
	}

	findings, err := e.store.ListFindings(ctx, store.FindingFilter{
		ReviewID: reviewRec.ID,
		Role:     models.Role(findingsRole),
		Severity: models.Severity(findingsSeverity),
		Status:   models.FindingStatus(findingsStatus),
	})
	if err != nil {
		return err
	}

	if len(findings) == 0 {
		ui.Info("No findings for review %s", shortID(reviewRec.ID))
		return nil
	}

	table := ui.Table([]string{"ID", "Severity", "Role", "Location", "Title", "Status"})
	for _, f := range findings {
		location := ""
		if f.FilePath != "" {
			location = f.FilePath
			if f.Line > 0 {
				location = fmt.Sprintf("%s:%d", f.FilePath, f.Line)
			}
		}
		severity := output.SeverityColor(string(f.Severity))
		if f.FinalSeverity != "" {
			severity = output.SeverityColor(string(f.FinalSeverity))
		}
		table.Append([]string{
			shortID(f.ID), severity, string(f.Role), location,
			f.Title, output.FindingStatusColor(string(f.Status)),
		})
	}
	if err := table.Render(); err != nil {
		return err
	}

	fmt.Fprintln(ui.Out)
	ui.Info("Debate a finding: cr debate <finding-id>")
	return nil
}
