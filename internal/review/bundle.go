// Package review assembles cached activity for a period and turns it into a
// self-review summary.
package review

import (
	"context"
	"fmt"
	"time"

	"github.com/joescharf/self-review/internal/models"
	"github.com/joescharf/self-review/internal/store"
)

// Bundle holds everything the cache knows about one reporting period.
type Bundle struct {
	Commits       []*models.Commit
	PullRequests  []*models.PullRequest
	ReviewsGiven  []*models.ReviewGiven
	CommentsGiven []*models.CommentGiven
	Reactions     *models.ReactionStats
}

// Assemble pulls all activity slices for [start, end) from the store. The
// author filter applies to commits only; PR-side records are already scoped
// to the user at fetch time.
func Assemble(ctx context.Context, st store.Store, start, end time.Time, author string) (*Bundle, error) {
	commits, err := st.ListCommits(ctx, store.CommitQuery{Start: start, End: end, Author: author})
	if err != nil {
		return nil, fmt.Errorf("load commits: %w", err)
	}
	prs, err := st.ListPullRequests(ctx, store.RangeQuery{Start: start, End: end})
	if err != nil {
		return nil, fmt.Errorf("load pull requests: %w", err)
	}
	reviews, err := st.ListReviewsGiven(ctx, store.RangeQuery{Start: start, End: end})
	if err != nil {
		return nil, fmt.Errorf("load reviews: %w", err)
	}
	comments, err := st.ListCommentsGiven(ctx, store.RangeQuery{Start: start, End: end})
	if err != nil {
		return nil, fmt.Errorf("load comments: %w", err)
	}
	stats, err := st.ReactionStats(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("load reaction stats: %w", err)
	}

	return &Bundle{
		Commits:       commits,
		PullRequests:  prs,
		ReviewsGiven:  reviews,
		CommentsGiven: comments,
		Reactions:     stats,
	}, nil
}

// Empty reports whether the period has nothing worth summarizing. Comments
// alone do not count: without commits, PRs, reviews or reactions they carry
// no context to review.
func (b *Bundle) Empty() bool {
	return len(b.Commits) == 0 &&
		len(b.PullRequests) == 0 &&
		len(b.ReviewsGiven) == 0 &&
		(b.Reactions == nil || b.Reactions.Total == 0)
}

// CommitHashes returns the hashes backing the bundle, recorded with the
// cached summary so a refetch can be detected later.
func (b *Bundle) CommitHashes() []string {
	hashes := make([]string, 0, len(b.Commits))
	for _, c := range b.Commits {
		hashes = append(hashes, c.Hash)
	}
	return hashes
}
