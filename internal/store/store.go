package store

import (
	"context"
	"time"

	"github.com/joescharf/self-review/internal/models"
)

// CommitQuery selects commits within a half-open [Start, End) window on the
// commit date, with optional filters.
type CommitQuery struct {
	Start  time.Time
	End    time.Time
	Author string // substring match on the commit author
	Repo   string // exact match
}

// RangeQuery selects records within a half-open [Start, End) window on the
// record's canonical timestamp, with an optional exact repo filter.
type RangeQuery struct {
	Start time.Time
	End   time.Time
	Repo  string
}

// Store is the persistence interface for the activity cache. All Upsert
// methods are idempotent: the first call for an identity key inserts and
// returns true, later calls overwrite non-key fields and return false.
// All List methods return records ordered by timestamp descending.
type Store interface {
	// Commits
	UpsertCommit(ctx context.Context, c *models.Commit) (bool, error)
	ListCommits(ctx context.Context, q CommitQuery) ([]*models.Commit, error)

	// Pull requests authored
	UpsertPullRequest(ctx context.Context, pr *models.PullRequest) (bool, error)
	ListPullRequests(ctx context.Context, q RangeQuery) ([]*models.PullRequest, error)

	// Reviews given
	UpsertReviewGiven(ctx context.Context, r *models.ReviewGiven) (bool, error)
	ListReviewsGiven(ctx context.Context, q RangeQuery) ([]*models.ReviewGiven, error)

	// Comments given
	UpsertCommentGiven(ctx context.Context, c *models.CommentGiven) (bool, error)
	ListCommentsGiven(ctx context.Context, q RangeQuery) ([]*models.CommentGiven, error)

	// Slack reactions
	UpsertReaction(ctx context.Context, r *models.Reaction) (bool, error)
	ListReactions(ctx context.Context, start, end time.Time) ([]*models.Reaction, error)
	ReactionStats(ctx context.Context, start, end time.Time) (*models.ReactionStats, error)

	// Summary cache
	SaveSummary(ctx context.Context, s *models.Summary) error
	GetSummary(ctx context.Context, period string) (*models.Summary, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
