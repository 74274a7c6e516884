package cmd

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/self-review/internal/models"
	"github.com/joescharf/self-review/internal/review"
	"github.com/joescharf/self-review/internal/store"
)

// stubSummarizer records calls and returns canned content or an error.
type stubSummarizer struct {
	calls []string
	fail  map[string]bool
}

func (s *stubSummarizer) Summarize(_ context.Context, _ *review.Bundle, period string) (string, error) {
	s.calls = append(s.calls, period)
	if s.fail[period] {
		return "", errors.New("model overloaded")
	}
	return "summary for " + period, nil
}

// reviewEnv wires a temp store and a stub summarizer into the command deps.
func reviewEnv(t *testing.T) (*stubSummarizer, store.Store) {
	t.Helper()
	dir := testEnv(t)

	viper.Set("author", "Jane")
	viper.Set("year", 2025)

	s, err := store.NewSQLiteStore(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() {
		s.Close()
		dataStore = nil
	})
	dataStore = s

	stub := &stubSummarizer{fail: map[string]bool{}}
	orig := newSummarizer
	newSummarizer = func() review.Summarizer { return stub }
	t.Cleanup(func() { newSummarizer = orig })

	reviewQuarter = ""
	reviewAllYear = false
	reviewForce = false
	reviewCmd.SetContext(context.Background())

	return stub, s
}

func seedCommit(t *testing.T, s store.Store, hash string, date time.Time) {
	t.Helper()
	_, err := s.UpsertCommit(context.Background(), &models.Commit{
		Hash: hash, Repo: "widgets", Author: "Jane Dev", Date: date, Message: "work",
	})
	require.NoError(t, err)
}

func TestReviewRun_SummarizesAndCaches(t *testing.T) {
	stub, s := reviewEnv(t)
	ctx := context.Background()

	seedCommit(t, s, "q1commit", time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))
	reviewQuarter = "Q1"

	require.NoError(t, reviewRun(reviewCmd))
	assert.Equal(t, []string{"2025-Q1"}, stub.calls)

	sum, err := s.GetSummary(ctx, "2025-Q1")
	require.NoError(t, err)
	require.NotNil(t, sum)
	assert.Equal(t, "summary for 2025-Q1", sum.Content)
	assert.Equal(t, []string{"q1commit"}, sum.CommitHashes)

	// Second run hits the cache
	require.NoError(t, reviewRun(reviewCmd))
	assert.Len(t, stub.calls, 1, "cached period should not re-summarize")

	// --force regenerates
	reviewForce = true
	require.NoError(t, reviewRun(reviewCmd))
	assert.Len(t, stub.calls, 2)
}

func TestReviewRun_SkipsEmptyPeriods(t *testing.T) {
	stub, s := reviewEnv(t)

	// Activity only in Q2; default run covers all four quarters
	seedCommit(t, s, "q2commit", time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC))

	require.NoError(t, reviewRun(reviewCmd))
	assert.Equal(t, []string{"2025-Q2"}, stub.calls)

	// Empty periods got no cache entry either
	sum, err := s.GetSummary(context.Background(), "2025-Q1")
	require.NoError(t, err)
	assert.Nil(t, sum)
}

func TestReviewRun_CommentsAloneDoNotTriggerSummary(t *testing.T) {
	stub, s := reviewEnv(t)

	_, err := s.UpsertCommentGiven(context.Background(), &models.CommentGiven{
		Repo: "acme/widgets", PRNumber: 1, Body: "a drive-by comment",
		CreatedAt: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	reviewQuarter = "Q1"
	require.NoError(t, reviewRun(reviewCmd))
	assert.Empty(t, stub.calls)
}

func TestReviewRun_FailureContinuesToNextPeriod(t *testing.T) {
	stub, s := reviewEnv(t)
	ctx := context.Background()

	seedCommit(t, s, "q1commit", time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))
	seedCommit(t, s, "q2commit", time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC))
	stub.fail["2025-Q1"] = true

	require.NoError(t, reviewRun(reviewCmd))
	assert.Equal(t, []string{"2025-Q1", "2025-Q2"}, stub.calls)

	// Failed period cached nothing, the next one did
	sum, err := s.GetSummary(ctx, "2025-Q1")
	require.NoError(t, err)
	assert.Nil(t, sum)

	sum, err = s.GetSummary(ctx, "2025-Q2")
	require.NoError(t, err)
	require.NotNil(t, sum)
}

func TestReviewRun_AllYear(t *testing.T) {
	stub, s := reviewEnv(t)

	seedCommit(t, s, "c1", time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))
	reviewAllYear = true

	require.NoError(t, reviewRun(reviewCmd))
	assert.Equal(t, []string{"2025"}, stub.calls)
}

func TestReviewRun_QuarterAndAllAreExclusive(t *testing.T) {
	_, _ = reviewEnv(t)

	reviewQuarter = "Q1"
	reviewAllYear = true
	err := reviewRun(reviewCmd)
	assert.Error(t, err)
}
