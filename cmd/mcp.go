package cmd

import (
	"github.com/spf13/cobra"

	"github.com/joescharf/self-review/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server exposing the activity cache",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets MCP clients query cached summaries, commits, and reaction
stats without going through the CLI. Configure in a client with:

  {
    "mcpServers": {
      "self-review": { "command": "self-review", "args": ["mcp"] }
    }
  }

Available tools: self_review_list_summaries, self_review_get_summary,
self_review_list_commits, self_review_list_reactions,
self_review_reaction_stats. All tools are read-only.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := getStore()
		if err != nil {
			return err
		}
		srv := mcp.NewServer(st, configYear())
		return srv.ServeStdio(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
