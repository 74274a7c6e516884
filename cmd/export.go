package cmd

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/self-review/internal/models"
	"github.com/joescharf/self-review/internal/store"
)

var (
	exportOutput string
	exportFormat string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export cached commits for the review year",
	Long:  `Export the cached commits for the configured year as JSON, CSV, or Markdown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return exportRun(cmd)
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "commits.json", "Output file")
	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "Output format: json, csv, or markdown")
	rootCmd.AddCommand(exportCmd)
}

func exportRun(cmd *cobra.Command) error {
	author := viper.GetString("author")
	if author == "" {
		return fmt.Errorf("missing 'author' in config (run 'self-review config init')")
	}

	st, err := getStore()
	if err != nil {
		return err
	}

	start, end := yearRange()
	commits, err := st.ListCommits(cmd.Context(), store.CommitQuery{
		Start:  start,
		End:    end,
		Author: author,
	})
	if err != nil {
		return err
	}

	f, err := os.Create(exportOutput)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer func() { _ = f.Close() }()

	switch strings.ToLower(exportFormat) {
	case "json":
		err = writeCommitsJSON(f, commits)
	case "csv":
		err = writeCommitsCSV(f, commits)
	case "markdown", "md":
		err = writeCommitsMarkdown(f, commits)
	default:
		return fmt.Errorf("unknown format %q: expected json, csv, or markdown", exportFormat)
	}
	if err != nil {
		return err
	}

	ui.Success("Exported %d commits to %s", len(commits), exportOutput)
	return nil
}

type commitExport struct {
	Hash    string    `json:"hash"`
	Repo    string    `json:"repo"`
	Author  string    `json:"author"`
	Date    time.Time `json:"date"`
	Message string    `json:"message"`
	Files   []string  `json:"files"`
}

func writeCommitsJSON(f *os.File, commits []*models.Commit) error {
	out := make([]commitExport, len(commits))
	for i, c := range commits {
		out[i] = commitExport{
			Hash:    c.Hash,
			Repo:    c.Repo,
			Author:  c.Author,
			Date:    c.Date,
			Message: c.Message,
			Files:   c.Files,
		}
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func writeCommitsCSV(f *os.File, commits []*models.Commit) error {
	w := csv.NewWriter(f)
	if err := w.Write([]string{"hash", "repo", "author", "date", "message", "files"}); err != nil {
		return err
	}
	for _, c := range commits {
		record := []string{
			c.Hash,
			c.Repo,
			c.Author,
			c.Date.Format(time.RFC3339),
			c.Message,
			strconv.Itoa(len(c.Files)),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func writeCommitsMarkdown(f *os.File, commits []*models.Commit) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Commits (%d)\n\n", len(commits))
	for _, c := range commits {
		fmt.Fprintf(&sb, "## %s [%s] %s\n\n", c.Date.Format("2006-01-02"), c.Repo, c.Hash)
		sb.WriteString(c.Message)
		sb.WriteString("\n\n")
		if len(c.Files) > 0 {
			sb.WriteString("Files: ")
			sb.WriteString(strings.Join(c.Files, ", "))
			sb.WriteString("\n\n")
		}
	}
	_, err := f.WriteString(sb.String())
	return err
}
