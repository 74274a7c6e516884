package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/self-review/internal/gitlog"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch commits from all configured repos and cache them",
	RunE: func(cmd *cobra.Command, args []string) error {
		return fetchRun(cmd)
	},
}

func init() {
	rootCmd.AddCommand(fetchCmd)
}

// expandHome resolves a leading ~ in repo paths from the config file.
func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

func fetchRun(cmd *cobra.Command) error {
	author := viper.GetString("author")
	if author == "" {
		return fmt.Errorf("missing 'author' in config (run 'self-review config init')")
	}
	repos := viper.GetStringSlice("repos")
	if len(repos) == 0 {
		return fmt.Errorf("no repos configured (run 'self-review discover --update' or edit the config)")
	}

	st, err := getStore()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	gc := gitlog.NewClient()
	since, until := yearRange()

	totalNew := 0
	for _, repoPath := range repos {
		repoPath = expandHome(repoPath)
		ui.Info("Fetching from %s...", repoPath)

		commits, err := gc.ListCommits(repoPath, author, since, until)
		if err != nil {
			ui.Warning("  %v", err)
			continue
		}

		newCount := 0
		for _, c := range commits {
			isNew, err := st.UpsertCommit(ctx, c)
			if err != nil {
				ui.Warning("  skip %s: %v", c.Hash, err)
				continue
			}
			if isNew {
				newCount++
			}
		}
		ui.Success("  Found %d commits, %d new", len(commits), newCount)
		totalNew += newCount
	}

	fmt.Fprintln(ui.Out)
	ui.Success("Total: %d new commits cached", totalNew)
	return nil
}
