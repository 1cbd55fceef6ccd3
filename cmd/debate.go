package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joescharf/cr/internal/artifact"
	"github.com/joescharf/cr/internal/models"
	"github.com/joescharf/cr/internal/output"
	"github.com/joescharf/cr/internal/store"
)

var debateCmd = &cobra.Command{
	Use:   "debate <finding-id>",
	Short: "Run an adversarial debate over one finding",
	Long: `Run the three-step adversarial sequence over one finding: an
advocate argues it is serious, an advocate argues mitigating context, and
a neutral judge issues a verdict that updates the finding.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return debateRun(args[0])
	},
}

func init() {
	rootCmd.AddCommand(debateCmd)
}

func debateRun(findingID string) error {
	e, err := getEngines()
	if err != nil {
		return err
	}
	ctx := context.Background()

	finding, err := findFinding(ctx, e, findingID)
	if err != nil {
		return err
	}
	reviewRec, err := e.store.GetReview(ctx, finding.ReviewID)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would debate finding %s (%s)", shortID(finding.ID), finding.Title)
		return nil
	}

	art, err := artifact.Load(reviewRec.Target)
	if err != nil {
		ui.Warning("artifact unavailable (%v); debating on finding fields only", err)
		art = &artifact.Set{}
	}

	conv, err := e.debater.Run(ctx, reviewRec, finding, art)
	if err != nil {
		return err
	}

	updated, err := e.store.GetFinding(ctx, finding.ID)
	if err != nil {
		updated = finding
	}

	ui.Success("Debate %s", output.StatusColor(string(conv.Status)))
	ui.Info("Finding: %s", updated.Title)
	ui.Info("Status: %s, confirmed: %t", output.FindingStatusColor(string(updated.Status)), updated.Confirmed)
	if updated.FinalSeverity != "" {
		ui.Info("Final severity: %s", output.SeverityColor(string(updated.FinalSeverity)))
	}
	if conv.Summary != "" {
		fmt.Fprintln(ui.Out)
		fmt.Fprintln(ui.Out, conv.Summary)
	}
	return nil
}

// findFinding looks up a finding by full ID or unique prefix within any
// review.
func findFinding(ctx context.Context, e *engines, id string) (*models.Finding, error) {
	if f, err := e.store.GetFinding(ctx, id); err == nil {
		return f, nil
	}

	upper := strings.ToUpper(id)
	reviews, err := e.store.ListReviews(ctx, 0)
	if err != nil {
		return nil, err
	}

	var matches []*models.Finding
	for _, r := range reviews {
		findings, err := e.store.ListFindings(ctx, store.FindingFilter{ReviewID: r.ID})
		if err != nil {
			continue
		}
		for _, f := range findings {
			if strings.HasPrefix(f.ID, upper) {
				matches = append(matches, f)
			}
		}
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("finding not found: %s", id)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("ambiguous finding ID %s: matches %d findings", id, len(matches))
	}
}
