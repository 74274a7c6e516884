package review

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/joescharf/self-review/internal/models"
)

// Thresholds for what counts as substantive in the prompt. These affect
// presentation only, never what gets stored.
const (
	substantiveCommentLen = 50
	substantiveReviewLen  = 30
)

const instructions = `## Instructions

Generate a performance self-review with these sections:

1. **Summary**: A 2-3 paragraph narrative of the work done, highlighting major themes, projects, and impact.

2. **Key Accomplishments**: Bullet points of specific accomplishments, grouped by theme/project area. Include both code contributions AND collaboration/review work.

3. **Team Contributions**: Highlight significant code review activity, feedback given to teammates, and cross-team collaboration.

4. **Slack Engagement** (if data present): Summarize patterns in emoji reactions - celebrating team wins, supporting colleagues, engaging across different channels. Note top channels and what they represent.

Focus on impact and outcomes. For code reviews, note patterns like pushing for better testing, code quality improvements, or architectural guidance.`

// BuildPrompt renders the bundle into the summarization prompt for a period.
func BuildPrompt(b *Bundle, period string) string {
	var sections []string

	if len(b.Commits) > 0 {
		sections = append(sections, fmt.Sprintf("## Git Commits (%d total)\n\n%s",
			len(b.Commits), formatCommits(b.Commits)))
	}
	if len(b.PullRequests) > 0 {
		sections = append(sections, fmt.Sprintf("## Pull Requests Authored (%d total)\n\n%s",
			len(b.PullRequests), formatPullRequests(b.PullRequests)))
	}
	if len(b.ReviewsGiven) > 0 {
		sections = append(sections, fmt.Sprintf("## Code Reviews Given (%d total)\n\n%s",
			len(b.ReviewsGiven), formatReviews(b.ReviewsGiven)))
	}
	if substantive := substantiveComments(b.CommentsGiven); len(substantive) > 0 {
		sections = append(sections, fmt.Sprintf("## Substantive PR Comments (%d of %d total)\n\n%s",
			len(substantive), len(b.CommentsGiven), formatComments(substantive)))
	}
	if b.Reactions != nil && b.Reactions.Total > 0 {
		sections = append(sections, fmt.Sprintf("## Slack Engagement (%d reactions)\n\n%s",
			b.Reactions.Total, formatReactionStats(b.Reactions)))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Analyze this work activity from %s and generate a self-review summary.\n\n", period)
	sb.WriteString(strings.Join(sections, "\n\n"))
	sb.WriteString("\n\n")
	sb.WriteString(instructions)
	return sb.String()
}

func day(t time.Time) string {
	return t.Format("2006-01-02")
}

func preview(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > n {
		return s[:n]
	}
	return s
}

func formatCommits(commits []*models.Commit) string {
	var lines []string
	for _, c := range commits {
		files := strings.Join(c.Files[:min(len(c.Files), 5)], ", ")
		if len(c.Files) > 5 {
			files += fmt.Sprintf(" (+%d more)", len(c.Files)-5)
		}
		lines = append(lines,
			fmt.Sprintf("**%s** [%s]", day(c.Date), c.Repo),
			c.Message,
			"Files: "+files,
			"")
	}
	return strings.Join(lines, "\n")
}

func formatPullRequests(prs []*models.PullRequest) string {
	var lines []string
	for _, pr := range prs {
		state := pr.State
		if pr.MergedAt != nil {
			state = models.PRStateMerged
		}
		lines = append(lines,
			fmt.Sprintf("**%s** [%s] #%d (%s)", day(pr.CreatedAt), pr.Repo, pr.Number, state),
			pr.Title,
			fmt.Sprintf("+%d/-%d in %d files", pr.Additions, pr.Deletions, pr.ChangedFiles))

		var feedback []models.ReviewReceived
		for _, r := range pr.Reviews {
			if r.Body != "" {
				feedback = append(feedback, r)
			}
		}
		if len(feedback) > 0 {
			lines = append(lines, "Reviews received:")
			for _, r := range feedback[:min(len(feedback), 3)] {
				lines = append(lines, fmt.Sprintf("  - %s (%s): %s", r.Author, r.State, preview(r.Body, 100)))
			}
		}
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

func formatReviews(reviews []*models.ReviewGiven) string {
	byState := make(map[string]int)
	for _, r := range reviews {
		byState[r.State]++
	}
	states := make([]string, 0, len(byState))
	for state := range byState {
		states = append(states, state)
	}
	sort.Strings(states)

	lines := []string{"Summary:"}
	for _, state := range states {
		lines = append(lines, fmt.Sprintf("  - %s: %d", state, byState[state]))
	}
	lines = append(lines, "")

	var substantive []*models.ReviewGiven
	for _, r := range reviews {
		if len(r.Body) > substantiveReviewLen {
			substantive = append(substantive, r)
		}
	}
	if len(substantive) > 0 {
		lines = append(lines, "Notable review feedback given:")
		for _, r := range substantive[:min(len(substantive), 15)] {
			lines = append(lines,
				fmt.Sprintf("- **%s** #%d (%s): %s", day(r.SubmittedAt), r.PRNumber, r.PRAuthor, preview(r.PRTitle, 50)),
				fmt.Sprintf("  [%s] %s", r.State, preview(r.Body, 150)),
				"")
		}
	}
	return strings.Join(lines, "\n")
}

func substantiveComments(comments []*models.CommentGiven) []*models.CommentGiven {
	var out []*models.CommentGiven
	for _, c := range comments {
		if len(c.Body) > substantiveCommentLen {
			out = append(out, c)
		}
	}
	return out
}

func formatComments(comments []*models.CommentGiven) string {
	// Longest first: body length is the best proxy for substance
	sorted := make([]*models.CommentGiven, len(comments))
	copy(sorted, comments)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Body) > len(sorted[j].Body)
	})

	var lines []string
	for _, c := range sorted[:min(len(sorted), 15)] {
		lines = append(lines,
			fmt.Sprintf("- **%s** #%d (%s): %s", day(c.CreatedAt), c.PRNumber, c.PRAuthor, preview(c.PRTitle, 50)),
			"  "+preview(c.Body, 200),
			"")
	}
	return strings.Join(lines, "\n")
}

func formatReactionStats(stats *models.ReactionStats) string {
	lines := []string{
		fmt.Sprintf("Total reactions given: %d", stats.Total),
		"",
	}
	if len(stats.ByEmoji) > 0 {
		lines = append(lines, "Top emojis used:")
		for _, e := range stats.ByEmoji[:min(len(stats.ByEmoji), 3)] {
			lines = append(lines, fmt.Sprintf("  :%s: %d", e.Emoji, e.Count))
		}
		lines = append(lines, "")
	}
	if len(stats.ByChannel) > 0 {
		lines = append(lines, "Most active channels:")
		for _, c := range stats.ByChannel[:min(len(stats.ByChannel), 3)] {
			lines = append(lines, fmt.Sprintf("  #%s: %d", c.Name, c.Count))
		}
	}
	return strings.Join(lines, "\n")
}
