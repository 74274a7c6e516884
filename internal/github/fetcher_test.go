package github

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGQL serves canned JSON pages in order. A page of "ERR" fails.
type fakeGQL struct {
	pages   []string
	calls   int
	queries []string
}

func (f *fakeGQL) DoWithContext(_ context.Context, query string, vars map[string]interface{}, response interface{}) error {
	f.queries = append(f.queries, vars["searchQuery"].(string))
	if f.calls >= len(f.pages) {
		return errors.New("no more pages configured")
	}
	page := f.pages[f.calls]
	f.calls++
	if page == "ERR" {
		return errors.New("rate limited")
	}
	return json.Unmarshal([]byte(page), response)
}

var (
	windowStart = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	windowEnd   = time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
)

func TestIsBot(t *testing.T) {
	f := NewFetcher(&fakeGQL{}, []string{"our-ci-bot"})

	assert.True(t, f.isBot("dependabot"))
	assert.True(t, f.isBot("Dependabot"), "bot match is case-insensitive")
	assert.True(t, f.isBot("anything[bot]"), "[bot] suffix always filtered")
	assert.True(t, f.isBot("our-ci-bot"), "extra bots extend the set")
	assert.False(t, f.isBot("jane"))
}

func TestFetchPullRequests(t *testing.T) {
	gql := &fakeGQL{pages: []string{`{
		"search": {
			"pageInfo": {"hasNextPage": false, "endCursor": ""},
			"nodes": [{
				"number": 42,
				"title": "Add frobnicator",
				"state": "MERGED",
				"createdAt": "2025-02-01T10:00:00Z",
				"mergedAt": "2025-02-03T09:00:00Z",
				"additions": 100,
				"deletions": 5,
				"changedFiles": 3,
				"reviews": {"nodes": [
					{"author": {"login": "bob"}, "state": "APPROVED", "body": "nice", "submittedAt": "2025-02-02T08:00:00Z"},
					{"author": {"login": "codecov[bot]"}, "state": "COMMENTED", "body": "coverage", "submittedAt": "2025-02-02T08:01:00Z"},
					{"author": null, "state": "COMMENTED", "body": "", "submittedAt": "2025-02-02T08:02:00Z"}
				]}
			}]
		}
	}`}}

	f := NewFetcher(gql, nil)
	prs, err := f.FetchPullRequests(context.Background(), "acme/widgets", "jane", windowStart, windowEnd)
	require.NoError(t, err)
	require.Len(t, prs, 1)

	pr := prs[0]
	assert.Equal(t, 42, pr.Number)
	assert.Equal(t, "acme/widgets", pr.Repo)
	assert.Equal(t, "MERGED", pr.State)
	require.NotNil(t, pr.MergedAt)

	// Bot review and authorless review dropped
	require.Len(t, pr.Reviews, 1)
	assert.Equal(t, "bob", pr.Reviews[0].Author)

	// Search query carries repo, author and day-granular window
	require.Len(t, gql.queries, 1)
	assert.Equal(t, "repo:acme/widgets author:jane created:2025-01-01..2025-04-01 is:pr", gql.queries[0])
}

func TestFetchPullRequests_Pagination(t *testing.T) {
	page := func(number int, more bool) string {
		hasNext := "false"
		if more {
			hasNext = "true"
		}
		return `{
			"search": {
				"pageInfo": {"hasNextPage": ` + hasNext + `, "endCursor": "cur"},
				"nodes": [{
					"number": ` + string(rune('0'+number)) + `,
					"title": "t", "state": "OPEN",
					"createdAt": "2025-02-01T10:00:00Z",
					"reviews": {"nodes": []}
				}]
			}
		}`
	}
	gql := &fakeGQL{pages: []string{page(1, true), page(2, false)}}

	f := NewFetcher(gql, nil)
	prs, err := f.FetchPullRequests(context.Background(), "acme/widgets", "jane", windowStart, windowEnd)
	require.NoError(t, err)
	assert.Len(t, prs, 2)
	assert.Equal(t, 2, gql.calls)
}

func TestFetchPullRequests_PartialOnError(t *testing.T) {
	gql := &fakeGQL{pages: []string{`{
		"search": {
			"pageInfo": {"hasNextPage": true, "endCursor": "cur"},
			"nodes": [{
				"number": 1, "title": "t", "state": "OPEN",
				"createdAt": "2025-02-01T10:00:00Z",
				"reviews": {"nodes": []}
			}]
		}
	}`, "ERR"}}

	f := NewFetcher(gql, nil)
	prs, err := f.FetchPullRequests(context.Background(), "acme/widgets", "jane", windowStart, windowEnd)
	require.Error(t, err)
	assert.Len(t, prs, 1, "first page survives the second page's failure")
}

func TestFetchReviewsGiven(t *testing.T) {
	gql := &fakeGQL{pages: []string{`{
		"search": {
			"pageInfo": {"hasNextPage": false, "endCursor": ""},
			"nodes": [{
				"number": 99,
				"title": "Refactor parser",
				"author": {"login": "bob"},
				"reviews": {"nodes": [
					{"author": {"login": "Jane"}, "state": "APPROVED", "body": "lgtm", "submittedAt": "2025-02-10T12:00:00Z"},
					{"author": {"login": "jane"}, "state": "COMMENTED", "body": "late", "submittedAt": "2025-05-01T12:00:00Z"},
					{"author": {"login": "carol"}, "state": "APPROVED", "body": "", "submittedAt": "2025-02-10T13:00:00Z"}
				]}
			}]
		}
	}`}}

	f := NewFetcher(gql, nil)
	reviews, err := f.FetchReviewsGiven(context.Background(), "acme/widgets", "jane", windowStart, windowEnd)
	require.NoError(t, err)

	// Jane's in-window review only: case-insensitive login match, the May
	// review is outside the window, carol's is not hers.
	require.Len(t, reviews, 1)
	assert.Equal(t, 99, reviews[0].PRNumber)
	assert.Equal(t, "bob", reviews[0].PRAuthor)
	assert.Equal(t, "APPROVED", reviews[0].State)

	assert.Equal(t, "repo:acme/widgets reviewed-by:jane -author:jane created:2025-01-01..2025-04-01 is:pr", gql.queries[0])
}

func TestFetchCommentsGiven_DedupesAcrossSources(t *testing.T) {
	// The same comment appears as both a conversation comment and a review
	// thread comment; a second distinct comment shares its timestamp.
	gql := &fakeGQL{pages: []string{`{
		"search": {
			"pageInfo": {"hasNextPage": false, "endCursor": ""},
			"nodes": [{
				"number": 5,
				"title": "Fix race",
				"author": {"login": "bob"},
				"comments": {"nodes": [
					{"author": {"login": "jane"}, "body": "looks good", "createdAt": "2025-02-05T10:00:00Z"},
					{"author": {"login": "jane"}, "body": "one question", "createdAt": "2025-02-05T10:00:00Z"},
					{"author": {"login": "bob"}, "body": "thanks", "createdAt": "2025-02-05T11:00:00Z"}
				]},
				"reviewThreads": {"nodes": [{
					"comments": {"nodes": [
						{"author": {"login": "jane"}, "body": "looks good", "createdAt": "2025-02-05T10:00:00Z"}
					]}
				}]}
			}]
		}
	}`}}

	f := NewFetcher(gql, nil)
	comments, err := f.FetchCommentsGiven(context.Background(), "acme/widgets", "jane", windowStart, windowEnd)
	require.NoError(t, err)

	require.Len(t, comments, 2)
	assert.Equal(t, "looks good", comments[0].Body)
	assert.Equal(t, "one question", comments[1].Body)

	assert.Equal(t, "repo:acme/widgets commenter:jane -author:jane created:2025-01-01..2025-04-01 is:pr", gql.queries[0])
}
