package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/self-review/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	err = s.Migrate(context.Background())
	require.NoError(t, err)

	t.Cleanup(func() { s.Close() })
	return s
}

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "subdir", "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(filepath.Join(dir, "subdir"))
	assert.NoError(t, err, "should create parent directory")
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Running migrate again should be a no-op
	err := s.Migrate(ctx)
	assert.NoError(t, err)
}

// --- Commits ---

func testCommit(t *testing.T, hash string) *models.Commit {
	t.Helper()
	return &models.Commit{
		Hash:    hash,
		Repo:    "myrepo",
		Author:  "Jane Dev",
		Date:    mustTime(t, "2025-02-15T10:30:00Z"),
		Message: "Fix widget alignment",
		Files:   []string{"widget.go", "widget_test.go"},
	}
}

func TestUpsertCommit_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := testCommit(t, "abc123")
	isNew, err := s.UpsertCommit(ctx, c)
	require.NoError(t, err)
	assert.True(t, isNew)

	// Second upsert with the same hash is not new
	c.Message = "Fix widget alignment (amended)"
	isNew, err = s.UpsertCommit(ctx, c)
	require.NoError(t, err)
	assert.False(t, isNew)

	// Non-key fields got overwritten, row count stayed 1
	commits, err := s.ListCommits(ctx, CommitQuery{
		Start: mustTime(t, "2025-01-01T00:00:00Z"),
		End:   mustTime(t, "2026-01-01T00:00:00Z"),
	})
	require.NoError(t, err)
	require.Len(t, commits, 1)
	assert.Equal(t, "Fix widget alignment (amended)", commits[0].Message)
	assert.Equal(t, []string{"widget.go", "widget_test.go"}, commits[0].Files)
}

func TestUpsertCommit_MissingHash(t *testing.T) {
	s := newTestStore(t)

	_, err := s.UpsertCommit(context.Background(), &models.Commit{Repo: "r"})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrMissingKey)
}

func TestListCommits_HalfOpenRange(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// One commit exactly at the window start, one exactly at the end
	atStart := testCommit(t, "start")
	atStart.Date = mustTime(t, "2025-01-01T00:00:00Z")
	atEnd := testCommit(t, "end")
	atEnd.Date = mustTime(t, "2025-04-01T00:00:00Z")

	for _, c := range []*models.Commit{atStart, atEnd} {
		_, err := s.UpsertCommit(ctx, c)
		require.NoError(t, err)
	}

	commits, err := s.ListCommits(ctx, CommitQuery{
		Start: mustTime(t, "2025-01-01T00:00:00Z"),
		End:   mustTime(t, "2025-04-01T00:00:00Z"),
	})
	require.NoError(t, err)
	require.Len(t, commits, 1)
	assert.Equal(t, "start", commits[0].Hash)
}

func TestListCommits_AuthorSubstring(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	jane := testCommit(t, "c1")
	jane.Author = "Jane Dev"
	bob := testCommit(t, "c2")
	bob.Author = "Bob Builder"

	for _, c := range []*models.Commit{jane, bob} {
		_, err := s.UpsertCommit(ctx, c)
		require.NoError(t, err)
	}

	commits, err := s.ListCommits(ctx, CommitQuery{
		Start:  mustTime(t, "2025-01-01T00:00:00Z"),
		End:    mustTime(t, "2026-01-01T00:00:00Z"),
		Author: "Jane",
	})
	require.NoError(t, err)
	require.Len(t, commits, 1)
	assert.Equal(t, "c1", commits[0].Hash)
}

func TestListCommits_OrderedNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	older := testCommit(t, "older")
	older.Date = mustTime(t, "2025-02-01T00:00:00Z")
	newer := testCommit(t, "newer")
	newer.Date = mustTime(t, "2025-03-01T00:00:00Z")

	for _, c := range []*models.Commit{older, newer} {
		_, err := s.UpsertCommit(ctx, c)
		require.NoError(t, err)
	}

	commits, err := s.ListCommits(ctx, CommitQuery{
		Start: mustTime(t, "2025-01-01T00:00:00Z"),
		End:   mustTime(t, "2026-01-01T00:00:00Z"),
	})
	require.NoError(t, err)
	require.Len(t, commits, 2)
	assert.Equal(t, "newer", commits[0].Hash)
	assert.Equal(t, "older", commits[1].Hash)
}

// --- Pull requests ---

func TestUpsertPullRequest_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	pr := &models.PullRequest{
		Number:    42,
		Repo:      "acme/widgets",
		Title:     "Add frobnicator",
		State:     models.PRStateOpen,
		CreatedAt: mustTime(t, "2025-03-10T09:00:00Z"),
		Additions: 120,
		Deletions: 8,
		Reviews: []models.ReviewReceived{
			{Author: "bob", State: models.ReviewCommented, SubmittedAt: mustTime(t, "2025-03-11T10:00:00Z")},
		},
	}
	isNew, err := s.UpsertPullRequest(ctx, pr)
	require.NoError(t, err)
	assert.True(t, isNew)

	// Refetch after merge: same identity, updated state
	merged := mustTime(t, "2025-03-12T15:00:00Z")
	pr.State = models.PRStateMerged
	pr.MergedAt = &merged
	isNew, err = s.UpsertPullRequest(ctx, pr)
	require.NoError(t, err)
	assert.False(t, isNew)

	prs, err := s.ListPullRequests(ctx, RangeQuery{
		Start: mustTime(t, "2025-01-01T00:00:00Z"),
		End:   mustTime(t, "2026-01-01T00:00:00Z"),
	})
	require.NoError(t, err)
	require.Len(t, prs, 1)
	assert.Equal(t, models.PRStateMerged, prs[0].State)
	require.NotNil(t, prs[0].MergedAt)
	assert.True(t, prs[0].MergedAt.Equal(merged))
	require.Len(t, prs[0].Reviews, 1)
	assert.Equal(t, "bob", prs[0].Reviews[0].Author)
}

func TestUpsertPullRequest_SameNumberDifferentRepo(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, repo := range []string{"acme/widgets", "acme/gadgets"} {
		pr := &models.PullRequest{
			Number:    7,
			Repo:      repo,
			Title:     "Bump deps",
			State:     models.PRStateOpen,
			CreatedAt: mustTime(t, "2025-05-01T00:00:00Z"),
		}
		isNew, err := s.UpsertPullRequest(ctx, pr)
		require.NoError(t, err)
		assert.True(t, isNew)
	}

	prs, err := s.ListPullRequests(ctx, RangeQuery{
		Start: mustTime(t, "2025-01-01T00:00:00Z"),
		End:   mustTime(t, "2026-01-01T00:00:00Z"),
	})
	require.NoError(t, err)
	assert.Len(t, prs, 2)
}

// --- Reviews given ---

func TestUpsertReviewGiven_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := &models.ReviewGiven{
		Repo:        "acme/widgets",
		PRNumber:    99,
		PRTitle:     "Refactor parser",
		PRAuthor:    "bob",
		State:       models.ReviewApproved,
		Body:        "LGTM with nits",
		SubmittedAt: mustTime(t, "2025-06-02T12:00:00Z"),
	}
	isNew, err := s.UpsertReviewGiven(ctx, r)
	require.NoError(t, err)
	assert.True(t, isNew)

	isNew, err = s.UpsertReviewGiven(ctx, r)
	require.NoError(t, err)
	assert.False(t, isNew)

	reviews, err := s.ListReviewsGiven(ctx, RangeQuery{
		Start: mustTime(t, "2025-01-01T00:00:00Z"),
		End:   mustTime(t, "2026-01-01T00:00:00Z"),
	})
	require.NoError(t, err)
	assert.Len(t, reviews, 1)
}

func TestUpsertReviewGiven_DistinctTimestamps(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Two reviews on the same PR at different instants are separate rows
	for _, ts := range []string{"2025-06-02T12:00:00Z", "2025-06-03T09:00:00Z"} {
		r := &models.ReviewGiven{
			Repo:        "acme/widgets",
			PRNumber:    99,
			State:       models.ReviewCommented,
			SubmittedAt: mustTime(t, ts),
		}
		isNew, err := s.UpsertReviewGiven(ctx, r)
		require.NoError(t, err)
		assert.True(t, isNew)
	}

	reviews, err := s.ListReviewsGiven(ctx, RangeQuery{
		Start: mustTime(t, "2025-01-01T00:00:00Z"),
		End:   mustTime(t, "2026-01-01T00:00:00Z"),
	})
	require.NoError(t, err)
	assert.Len(t, reviews, 2)
}

// --- Comments given ---

func TestUpsertCommentGiven_BodyPartOfKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	at := mustTime(t, "2025-07-01T08:00:00Z")

	// Same PR, same second, different bodies: both persist
	for _, body := range []string{"looks good", "one question though"} {
		c := &models.CommentGiven{
			Repo:      "acme/widgets",
			PRNumber:  5,
			Body:      body,
			CreatedAt: at,
		}
		isNew, err := s.UpsertCommentGiven(ctx, c)
		require.NoError(t, err)
		assert.True(t, isNew)
	}

	// Exact duplicate converges
	dup := &models.CommentGiven{
		Repo:      "acme/widgets",
		PRNumber:  5,
		Body:      "looks good",
		CreatedAt: at,
	}
	isNew, err := s.UpsertCommentGiven(ctx, dup)
	require.NoError(t, err)
	assert.False(t, isNew)

	comments, err := s.ListCommentsGiven(ctx, RangeQuery{
		Start: mustTime(t, "2025-01-01T00:00:00Z"),
		End:   mustTime(t, "2026-01-01T00:00:00Z"),
	})
	require.NoError(t, err)
	assert.Len(t, comments, 2)
}

// --- Reactions ---

func testReaction(t *testing.T, channel, ts, emoji string) *models.Reaction {
	t.Helper()
	return &models.Reaction{
		Emoji:       emoji,
		ChannelID:   channel,
		ChannelName: "#" + channel,
		MessageTS:   ts,
		MessageUser: "U123",
		MessageText: "shipped it",
		ReactedAt:   mustTime(t, "2025-08-01T10:00:00Z"),
	}
}

func TestUpsertReaction_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := testReaction(t, "C01", "1722506400.000100", "tada")
	isNew, err := s.UpsertReaction(ctx, r)
	require.NoError(t, err)
	assert.True(t, isNew)

	isNew, err = s.UpsertReaction(ctx, r)
	require.NoError(t, err)
	assert.False(t, isNew)

	// Different emoji on the same message is a new row
	r2 := testReaction(t, "C01", "1722506400.000100", "rocket")
	isNew, err = s.UpsertReaction(ctx, r2)
	require.NoError(t, err)
	assert.True(t, isNew)
}

func TestListReactions_HalfOpenRangeOrdered(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// One reaction at the window start, one mid-window, one at the end
	atStart := testReaction(t, "C01", "1.000001", "tada")
	atStart.ReactedAt = mustTime(t, "2025-01-01T00:00:00Z")
	mid := testReaction(t, "C01", "1.000002", "rocket")
	mid.ReactedAt = mustTime(t, "2025-02-01T00:00:00Z")
	atEnd := testReaction(t, "C01", "1.000003", "eyes")
	atEnd.ReactedAt = mustTime(t, "2025-04-01T00:00:00Z")

	for _, r := range []*models.Reaction{atStart, mid, atEnd} {
		_, err := s.UpsertReaction(ctx, r)
		require.NoError(t, err)
	}

	reactions, err := s.ListReactions(ctx,
		mustTime(t, "2025-01-01T00:00:00Z"),
		mustTime(t, "2025-04-01T00:00:00Z"))
	require.NoError(t, err)

	// End boundary excluded, newest first
	require.Len(t, reactions, 2)
	assert.Equal(t, "rocket", reactions[0].Emoji)
	assert.Equal(t, "tada", reactions[1].Emoji)
}

func TestReactionStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// 3x tada in C01, 2x rocket in C02, 1x eyes in C01
	seed := []struct {
		channel, emoji string
		n              int
	}{
		{"C01", "tada", 3},
		{"C02", "rocket", 2},
		{"C01", "eyes", 1},
	}
	i := 0
	for _, sd := range seed {
		for k := 0; k < sd.n; k++ {
			r := testReaction(t, sd.channel, fmt.Sprintf("1722506400.%06d", i), sd.emoji)
			i++
			_, err := s.UpsertReaction(ctx, r)
			require.NoError(t, err)
		}
	}

	stats, err := s.ReactionStats(ctx,
		mustTime(t, "2025-01-01T00:00:00Z"),
		mustTime(t, "2026-01-01T00:00:00Z"))
	require.NoError(t, err)

	assert.Equal(t, 6, stats.Total)
	require.Len(t, stats.ByEmoji, 3)
	assert.Equal(t, models.EmojiCount{Emoji: "tada", Count: 3}, stats.ByEmoji[0])
	assert.Equal(t, models.EmojiCount{Emoji: "rocket", Count: 2}, stats.ByEmoji[1])
	assert.Equal(t, models.EmojiCount{Emoji: "eyes", Count: 1}, stats.ByEmoji[2])

	require.Len(t, stats.ByChannel, 2)
	assert.Equal(t, models.ChannelCount{Name: "#C01", Count: 4}, stats.ByChannel[0])
	assert.Equal(t, models.ChannelCount{Name: "#C02", Count: 2}, stats.ByChannel[1])
}

func TestReactionStats_TieBrokenByInsertionOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Equal counts: first-inserted emoji wins the tie
	_, err := s.UpsertReaction(ctx, testReaction(t, "C01", "1722506400.000001", "eyes"))
	require.NoError(t, err)
	_, err = s.UpsertReaction(ctx, testReaction(t, "C01", "1722506400.000002", "tada"))
	require.NoError(t, err)

	stats, err := s.ReactionStats(ctx,
		mustTime(t, "2025-01-01T00:00:00Z"),
		mustTime(t, "2026-01-01T00:00:00Z"))
	require.NoError(t, err)

	require.Len(t, stats.ByEmoji, 2)
	assert.Equal(t, "eyes", stats.ByEmoji[0].Emoji)
	assert.Equal(t, "tada", stats.ByEmoji[1].Emoji)
}

func TestReactionStats_Empty(t *testing.T) {
	s := newTestStore(t)

	stats, err := s.ReactionStats(context.Background(),
		mustTime(t, "2025-01-01T00:00:00Z"),
		mustTime(t, "2026-01-01T00:00:00Z"))
	require.NoError(t, err)

	assert.Equal(t, 0, stats.Total)
	assert.Empty(t, stats.ByEmoji)
	assert.Empty(t, stats.ByChannel)
}

// --- Summaries ---

func TestSummaryRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Absent period reads back as nil, nil
	got, err := s.GetSummary(ctx, "2025-Q1")
	require.NoError(t, err)
	assert.Nil(t, got)

	sum := &models.Summary{
		Period:       "2025-Q1",
		Content:      "Shipped the widget overhaul.",
		CommitHashes: []string{"abc123", "def456"},
		GeneratedAt:  mustTime(t, "2025-04-02T00:00:00Z"),
	}
	require.NoError(t, s.SaveSummary(ctx, sum))

	got, err = s.GetSummary(ctx, "2025-Q1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, sum.Content, got.Content)
	assert.Equal(t, sum.CommitHashes, got.CommitHashes)

	// Regenerating overwrites
	sum.Content = "Shipped the widget overhaul and the parser refactor."
	require.NoError(t, s.SaveSummary(ctx, sum))

	got, err = s.GetSummary(ctx, "2025-Q1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, sum.Content, got.Content)
}

// --- Cross-source refetch convergence ---

func TestRefetchConverges(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	upsertAll := func() (newCount int) {
		if isNew, err := s.UpsertCommit(ctx, testCommit(t, "h1")); assert.NoError(t, err) && isNew {
			newCount++
		}
		pr := &models.PullRequest{
			Number: 1, Repo: "acme/widgets", Title: "t", State: models.PRStateOpen,
			CreatedAt: mustTime(t, "2025-02-01T00:00:00Z"),
		}
		if isNew, err := s.UpsertPullRequest(ctx, pr); assert.NoError(t, err) && isNew {
			newCount++
		}
		if isNew, err := s.UpsertReaction(ctx, testReaction(t, "C01", "1.000001", "tada")); assert.NoError(t, err) && isNew {
			newCount++
		}
		return newCount
	}

	assert.Equal(t, 3, upsertAll())
	assert.Equal(t, 0, upsertAll())
}
