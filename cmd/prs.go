package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/self-review/internal/github"
	"github.com/joescharf/self-review/internal/models"
	"github.com/joescharf/self-review/internal/output"
)

var prsCmd = &cobra.Command{
	Use:   "prs",
	Short: "Fetch PR data (authored PRs, reviews given, comments) from GitHub",
	RunE: func(cmd *cobra.Command, args []string) error {
		return prsRun(cmd)
	},
}

func init() {
	rootCmd.AddCommand(prsCmd)
}

func prsRun(cmd *cobra.Command) error {
	user := viper.GetString("github.author")
	if user == "" {
		return fmt.Errorf("missing 'github.author' in config: add your GitHub username to fetch PR data")
	}
	repos := viper.GetStringSlice("github.repos")
	if len(repos) == 0 {
		return fmt.Errorf("missing 'github.repos' in config: add repos in owner/repo form to fetch PR data from")
	}

	st, err := getStore()
	if err != nil {
		return err
	}

	fetcher, err := github.NewDefaultFetcher(viper.GetStringSlice("github.extra_bots"))
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	start, end := yearRange()

	totalPRs, totalReviews, totalComments := 0, 0, 0
	for _, repo := range repos {
		ui.Info("Fetching from %s...", repo)

		prs, err := fetcher.FetchPullRequests(ctx, repo, user, start, end)
		if err != nil {
			// Partial pages are still worth caching
			ui.Warning("  %v", err)
		}
		newPRs := 0
		for _, pr := range prs {
			isNew, err := st.UpsertPullRequest(ctx, pr)
			if err != nil {
				ui.Warning("  skip PR #%d: %v", pr.Number, err)
				continue
			}
			if isNew {
				newPRs++
			}
			state := pr.State
			if pr.MergedAt != nil {
				state = models.PRStateMerged
			}
			ui.VerboseLog("#%d %s %s", pr.Number, output.PRStateColor(state), pr.Title)
		}
		ui.Success("  PRs authored: %d (%d new)", len(prs), newPRs)
		totalPRs += len(prs)

		reviews, err := fetcher.FetchReviewsGiven(ctx, repo, user, start, end)
		if err != nil {
			ui.Warning("  %v", err)
		}
		newReviews := 0
		for _, r := range reviews {
			isNew, err := st.UpsertReviewGiven(ctx, r)
			if err != nil {
				ui.Warning("  skip review on #%d: %v", r.PRNumber, err)
				continue
			}
			if isNew {
				newReviews++
			}
		}
		ui.Success("  Reviews given: %d (%d new)", len(reviews), newReviews)
		totalReviews += len(reviews)

		comments, err := fetcher.FetchCommentsGiven(ctx, repo, user, start, end)
		if err != nil {
			ui.Warning("  %v", err)
		}
		newComments := 0
		for _, c := range comments {
			isNew, err := st.UpsertCommentGiven(ctx, c)
			if err != nil {
				ui.Warning("  skip comment on #%d: %v", c.PRNumber, err)
				continue
			}
			if isNew {
				newComments++
			}
		}
		ui.Success("  Comments given: %d (%d new)", len(comments), newComments)
		totalComments += len(comments)
	}

	fmt.Fprintln(ui.Out)
	ui.Success("Total: %d PRs, %d reviews, %d comments", totalPRs, totalReviews, totalComments)
	return nil
}
