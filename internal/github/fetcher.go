// Package github fetches pull request activity through the GitHub GraphQL
// search API, authenticated via gh CLI credentials.
package github

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cli/go-gh/v2/pkg/api"

	"github.com/joescharf/self-review/internal/models"
)

// DefaultBots are well-known automation accounts whose reviews and comments
// are noise in a self-review. Logins ending in "[bot]" are always filtered.
var DefaultBots = []string{
	"copilot-pull-request-reviewer",
	"dependabot",
	"github-actions",
	"renovate",
	"codecov",
	"snyk-bot",
	"sonarcloud[bot]",
	"mergify",
}

// GraphQLClient is the slice of go-gh's GraphQL client the fetcher needs.
type GraphQLClient interface {
	DoWithContext(ctx context.Context, query string, variables map[string]interface{}, response interface{}) error
}

// Fetcher runs the paginated activity queries for one (repo, user, window).
type Fetcher struct {
	gql  GraphQLClient
	bots map[string]struct{}
}

// NewFetcher wraps a GraphQL client. extraBots extends the default bot set.
func NewFetcher(gql GraphQLClient, extraBots []string) *Fetcher {
	bots := make(map[string]struct{}, len(DefaultBots)+len(extraBots))
	for _, b := range DefaultBots {
		bots[strings.ToLower(b)] = struct{}{}
	}
	for _, b := range extraBots {
		bots[strings.ToLower(b)] = struct{}{}
	}
	return &Fetcher{gql: gql, bots: bots}
}

// NewDefaultFetcher uses gh CLI authentication from the environment.
func NewDefaultFetcher(extraBots []string) (*Fetcher, error) {
	gql, err := api.DefaultGraphQLClient()
	if err != nil {
		return nil, fmt.Errorf("initialize GitHub client: %w", err)
	}
	return NewFetcher(gql, extraBots), nil
}

func (f *Fetcher) isBot(login string) bool {
	lower := strings.ToLower(login)
	if _, ok := f.bots[lower]; ok {
		return true
	}
	return strings.HasSuffix(lower, "[bot]")
}

// Shared GraphQL response fragments.
type actor struct {
	Login string
}

type pageInfo struct {
	HasNextPage bool
	EndCursor   string
}

func searchWindow(repo, qualifier, user string, start, end time.Time, excludeAuthor bool) string {
	q := fmt.Sprintf("repo:%s %s:%s", repo, qualifier, user)
	if excludeAuthor {
		q += " -author:" + user
	}
	return fmt.Sprintf("%s created:%s..%s is:pr",
		q, start.UTC().Format("2006-01-02"), end.UTC().Format("2006-01-02"))
}

func inWindow(t time.Time, start, end time.Time) bool {
	return !t.Before(start) && t.Before(end)
}

const prsAuthoredQuery = `
query($searchQuery: String!, $cursor: String) {
  search(query: $searchQuery, type: ISSUE, first: 100, after: $cursor) {
    pageInfo { hasNextPage endCursor }
    nodes {
      ... on PullRequest {
        number title state createdAt mergedAt additions deletions changedFiles
        reviews(first: 50) {
          nodes { author { login } state body submittedAt }
        }
      }
    }
  }
}`

// FetchPullRequests returns PRs the user authored in the window, each with a
// snapshot of reviews received (bot reviewers dropped). A pagination error
// returns the pages accumulated so far along with the error.
func (f *Fetcher) FetchPullRequests(ctx context.Context, repo, user string, start, end time.Time) ([]*models.PullRequest, error) {
	var prs []*models.PullRequest
	var cursor *string

	for {
		var resp struct {
			Search struct {
				PageInfo pageInfo
				Nodes    []struct {
					Number       int
					Title        string
					State        string
					CreatedAt    time.Time
					MergedAt     *time.Time
					Additions    int
					Deletions    int
					ChangedFiles int
					Reviews      struct {
						Nodes []struct {
							Author      *actor
							State       string
							Body        string
							SubmittedAt time.Time
						}
					}
				}
			}
		}

		vars := map[string]interface{}{
			"searchQuery": searchWindow(repo, "author", user, start, end, false),
			"cursor":      cursor,
		}
		if err := f.gql.DoWithContext(ctx, prsAuthoredQuery, vars, &resp); err != nil {
			return prs, fmt.Errorf("search pull requests in %s: %w", repo, err)
		}

		for _, node := range resp.Search.Nodes {
			if node.Number == 0 {
				continue
			}

			var reviews []models.ReviewReceived
			for _, r := range node.Reviews.Nodes {
				if r.Author == nil || f.isBot(r.Author.Login) {
					continue
				}
				reviews = append(reviews, models.ReviewReceived{
					Author:      r.Author.Login,
					State:       r.State,
					Body:        r.Body,
					SubmittedAt: r.SubmittedAt.UTC(),
				})
			}

			pr := &models.PullRequest{
				Number:       node.Number,
				Repo:         repo,
				Title:        node.Title,
				State:        node.State,
				CreatedAt:    node.CreatedAt.UTC(),
				Additions:    node.Additions,
				Deletions:    node.Deletions,
				ChangedFiles: node.ChangedFiles,
				Reviews:      reviews,
			}
			if node.MergedAt != nil {
				merged := node.MergedAt.UTC()
				pr.MergedAt = &merged
			}
			prs = append(prs, pr)
		}

		if !resp.Search.PageInfo.HasNextPage {
			return prs, nil
		}
		cursor = &resp.Search.PageInfo.EndCursor
	}
}

const reviewsGivenQuery = `
query($searchQuery: String!, $cursor: String) {
  search(query: $searchQuery, type: ISSUE, first: 100, after: $cursor) {
    pageInfo { hasNextPage endCursor }
    nodes {
      ... on PullRequest {
        number title
        author { login }
        reviews(first: 50) {
          nodes { author { login } state body submittedAt }
        }
      }
    }
  }
}`

// FetchReviewsGiven returns reviews the user submitted on other people's PRs
// in the window. The search window is day-granular, so each review's
// submittedAt is re-checked against [start, end).
func (f *Fetcher) FetchReviewsGiven(ctx context.Context, repo, user string, start, end time.Time) ([]*models.ReviewGiven, error) {
	var reviews []*models.ReviewGiven
	var cursor *string

	for {
		var resp struct {
			Search struct {
				PageInfo pageInfo
				Nodes    []struct {
					Number  int
					Title   string
					Author  *actor
					Reviews struct {
						Nodes []struct {
							Author      *actor
							State       string
							Body        string
							SubmittedAt time.Time
						}
					}
				}
			}
		}

		vars := map[string]interface{}{
			"searchQuery": searchWindow(repo, "reviewed-by", user, start, end, true),
			"cursor":      cursor,
		}
		if err := f.gql.DoWithContext(ctx, reviewsGivenQuery, vars, &resp); err != nil {
			return reviews, fmt.Errorf("search reviews in %s: %w", repo, err)
		}

		for _, node := range resp.Search.Nodes {
			if node.Number == 0 {
				continue
			}
			prAuthor := "unknown"
			if node.Author != nil {
				prAuthor = node.Author.Login
			}

			for _, r := range node.Reviews.Nodes {
				if r.Author == nil || !strings.EqualFold(r.Author.Login, user) {
					continue
				}
				if r.SubmittedAt.IsZero() || !inWindow(r.SubmittedAt, start, end) {
					continue
				}
				reviews = append(reviews, &models.ReviewGiven{
					Repo:        repo,
					PRNumber:    node.Number,
					PRTitle:     node.Title,
					PRAuthor:    prAuthor,
					State:       r.State,
					Body:        r.Body,
					SubmittedAt: r.SubmittedAt.UTC(),
				})
			}
		}

		if !resp.Search.PageInfo.HasNextPage {
			return reviews, nil
		}
		cursor = &resp.Search.PageInfo.EndCursor
	}
}

const commentsGivenQuery = `
query($searchQuery: String!, $cursor: String) {
  search(query: $searchQuery, type: ISSUE, first: 100, after: $cursor) {
    pageInfo { hasNextPage endCursor }
    nodes {
      ... on PullRequest {
        number title
        author { login }
        comments(first: 100) {
          nodes { author { login } body createdAt }
        }
        reviewThreads(first: 50) {
          nodes {
            comments(first: 50) {
              nodes { author { login } body createdAt }
            }
          }
        }
      }
    }
  }
}`

type commentNode struct {
	Author    *actor
	Body      string
	CreatedAt time.Time
}

// commentKey scopes dedupe to one fetch pass: the same comment can surface
// both as an issue comment and inside a review thread.
type commentKey struct {
	prNumber  int
	createdAt time.Time
	body      string
}

// FetchCommentsGiven returns comments the user left on other people's PRs in
// the window, covering both conversation comments and review thread comments.
func (f *Fetcher) FetchCommentsGiven(ctx context.Context, repo, user string, start, end time.Time) ([]*models.CommentGiven, error) {
	var comments []*models.CommentGiven
	seen := make(map[commentKey]struct{})
	var cursor *string

	for {
		var resp struct {
			Search struct {
				PageInfo pageInfo
				Nodes    []struct {
					Number   int
					Title    string
					Author   *actor
					Comments struct {
						Nodes []commentNode
					}
					ReviewThreads struct {
						Nodes []struct {
							Comments struct {
								Nodes []commentNode
							}
						}
					}
				}
			}
		}

		vars := map[string]interface{}{
			"searchQuery": searchWindow(repo, "commenter", user, start, end, true),
			"cursor":      cursor,
		}
		if err := f.gql.DoWithContext(ctx, commentsGivenQuery, vars, &resp); err != nil {
			return comments, fmt.Errorf("search comments in %s: %w", repo, err)
		}

		for _, node := range resp.Search.Nodes {
			if node.Number == 0 {
				continue
			}
			prAuthor := "unknown"
			if node.Author != nil {
				prAuthor = node.Author.Login
			}

			collect := func(c commentNode) {
				if c.Author == nil || !strings.EqualFold(c.Author.Login, user) {
					return
				}
				if c.CreatedAt.IsZero() || !inWindow(c.CreatedAt, start, end) {
					return
				}
				key := commentKey{node.Number, c.CreatedAt, c.Body}
				if _, dup := seen[key]; dup {
					return
				}
				seen[key] = struct{}{}
				comments = append(comments, &models.CommentGiven{
					Repo:      repo,
					PRNumber:  node.Number,
					PRTitle:   node.Title,
					PRAuthor:  prAuthor,
					Body:      c.Body,
					CreatedAt: c.CreatedAt.UTC(),
				})
			}

			for _, c := range node.Comments.Nodes {
				collect(c)
			}
			for _, thread := range node.ReviewThreads.Nodes {
				for _, c := range thread.Comments.Nodes {
					collect(c)
				}
			}
		}

		if !resp.Search.PageInfo.HasNextPage {
			return comments, nil
		}
		cursor = &resp.Search.PageInfo.EndCursor
	}
}
