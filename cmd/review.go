package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/self-review/internal/models"
	"github.com/joescharf/self-review/internal/period"
	"github.com/joescharf/self-review/internal/review"
)

var (
	reviewQuarter string
	reviewAllYear bool
	reviewForce   bool
)

// newSummarizer builds the production summarizer, replaceable in tests.
var newSummarizer = func() review.Summarizer {
	return review.NewAnthropicSummarizer(
		viper.GetString("anthropic.api_key"),
		viper.GetString("anthropic.model"),
	)
}

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Generate a review summary for a quarter or full year",
	Long: `Generate a self-review summary from cached activity.

Without flags, all four quarters of the configured year are processed.
Summaries are cached per period; --force regenerates them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewRun(cmd)
	},
}

func init() {
	reviewCmd.Flags().StringVarP(&reviewQuarter, "quarter", "q", "", "Quarter to review (Q1, Q2, Q3, Q4)")
	reviewCmd.Flags().BoolVarP(&reviewAllYear, "all", "a", false, "Review entire year")
	reviewCmd.Flags().BoolVarP(&reviewForce, "force", "f", false, "Force regeneration")
	rootCmd.AddCommand(reviewCmd)
}

func reviewRun(cmd *cobra.Command) error {
	author := viper.GetString("author")
	if author == "" {
		return fmt.Errorf("missing 'author' in config (run 'self-review config init')")
	}

	selector := reviewQuarter
	if reviewAllYear {
		if reviewQuarter != "" {
			return fmt.Errorf("--quarter and --all are mutually exclusive")
		}
		selector = "all"
	}
	periods, err := period.Derive(configYear(), selector)
	if err != nil {
		return err
	}

	st, err := getStore()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	summarizer := newSummarizer()

	for _, p := range periods {
		fmt.Fprintln(ui.Out)
		ui.Info("Generating review for %s...", p.Label)

		// Check cache
		if !reviewForce {
			existing, err := st.GetSummary(ctx, p.Label)
			if err != nil {
				return err
			}
			if existing != nil {
				ui.Info("Using cached summary (generated %s)", existing.GeneratedAt.Format(time.RFC3339))
				fmt.Fprintln(ui.Out, existing.Content)
				continue
			}
		}

		bundle, err := review.Assemble(ctx, st, p.Start, p.End, author)
		if err != nil {
			return err
		}

		ui.VerboseLog("%d commits, %d PRs, %d reviews, %d comments, %d reactions",
			len(bundle.Commits), len(bundle.PullRequests), len(bundle.ReviewsGiven),
			len(bundle.CommentsGiven), bundle.Reactions.Total)

		if bundle.Empty() {
			ui.Info("No activity found for this period.")
			continue
		}

		content, err := summarizer.Summarize(ctx, bundle, p.Label)
		if err != nil {
			// One bad period should not sink the rest of the year
			ui.Warning("Summarization failed for %s: %v", p.Label, err)
			continue
		}
		fmt.Fprintln(ui.Out, content)

		if err := st.SaveSummary(ctx, &models.Summary{
			Period:       p.Label,
			Content:      content,
			CommitHashes: bundle.CommitHashes(),
			GeneratedAt:  time.Now().UTC(),
		}); err != nil {
			return fmt.Errorf("cache summary for %s: %w", p.Label, err)
		}
	}

	return nil
}
