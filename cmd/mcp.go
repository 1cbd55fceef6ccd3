package cmd

import (
	"github.com/spf13/cobra"

	"github.com/joescharf/cr/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the MCP server over stdio",
	Long: `Run cr as an MCP (Model Context Protocol) server over stdio.

This lets MCP clients drive reviews, debates, and arena sessions through
tools: cr_review, cr_review_status, cr_list_findings, cr_debate,
cr_arena_start, cr_arena_vote, and cr_ratings.

Example client configuration:

  {
    "mcpServers": {
      "cr": {
        "command": "cr",
        "args": ["mcp"]
      }
    }
  }`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return mcpRun(cmd)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func mcpRun(cmd *cobra.Command) error {
	e, err := getEngines()
	if err != nil {
		return err
	}

	srv := mcp.NewServer(e.store, e.orchestrator, e.debater, e.arena)
	return srv.ServeStdio(cmd.Context())
}
