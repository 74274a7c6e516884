package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/self-review/internal/models"
	"github.com/joescharf/self-review/internal/slack"
)

var slackCmd = &cobra.Command{
	Use:   "slack",
	Short: "Fetch Slack reactions you gave during the review year",
	Long: `Fetch emoji reactions you added to Slack messages, by scanning the
history of every channel you are a member of.

Requires browser-session credentials in the config (slack.token,
slack.cookie) or the SELF_REVIEW_SLACK_TOKEN / SELF_REVIEW_SLACK_COOKIE
environment variables. To get them: open Slack in a browser, copy the
'd' cookie (xoxd-...) from devtools, and read the xoxc- token from
localStorage's localConfig_v2 for the active team.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return slackRun(cmd)
	},
}

func init() {
	rootCmd.AddCommand(slackCmd)
}

func slackRun(cmd *cobra.Command) error {
	token := viper.GetString("slack.token")
	cookie := viper.GetString("slack.cookie")
	if token == "" || cookie == "" {
		return fmt.Errorf("missing Slack credentials: set slack.token and slack.cookie (see 'self-review slack --help')")
	}

	st, err := getStore()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	client := slack.NewClient(token, cookie)

	ui.Info("Testing Slack authentication...")
	identity, err := client.AuthTest(ctx)
	if err != nil {
		return fmt.Errorf("authentication failed, check your token and cookie: %w", err)
	}
	ui.Success("Authenticated as %s in %s", identity.User, identity.Team)

	start, end := yearRange()
	ui.Info("Fetching reactions for %d...", configYear())
	ui.Info("Scanning channels (this may take a minute)...")

	total, newCount := 0, 0
	opts := slack.FetchOptions{
		// Upsert as we go so an interrupt loses nothing
		OnReaction: func(r *models.Reaction) {
			total++
			isNew, err := st.UpsertReaction(ctx, r)
			if err != nil {
				ui.Warning("  skip reaction in %s: %v", r.ChannelName, err)
				return
			}
			if isNew {
				newCount++
			}
		},
		Progress: func(channel string, count int) {
			ui.Info("  #%s: %d reactions", channel, count)
		},
	}

	if _, err := client.FetchReactions(ctx, identity.UserID, start, end, opts); err != nil {
		return err
	}

	fmt.Fprintln(ui.Out)
	ui.Success("Found %d reactions (%d new)", total, newCount)

	stats, err := st.ReactionStats(ctx, start, end)
	if err != nil {
		return err
	}
	if len(stats.ByEmoji) > 0 {
		fmt.Fprintln(ui.Out)
		ui.Info("Top emojis:")
		for _, e := range stats.ByEmoji {
			fmt.Fprintf(ui.Out, "  :%s: %d\n", e.Emoji, e.Count)
		}
	}
	if len(stats.ByChannel) > 0 {
		ui.Info("Top channels:")
		for _, c := range stats.ByChannel {
			fmt.Fprintf(ui.Out, "  #%s: %d\n", c.Name, c.Count)
		}
	}
	return nil
}
