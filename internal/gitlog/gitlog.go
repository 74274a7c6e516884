// Package gitlog reads commit history from local git repositories by
// shelling out to the git binary.
package gitlog

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joescharf/self-review/internal/models"
)

// Client defines the git operations used for commit fetching and repo
// discovery. All methods take a path parameter since the tool operates on
// multiple repos.
type Client interface {
	ListCommits(path, author string, since, until time.Time) ([]*models.Commit, error)
	CountCommits(path, author string, since, until time.Time) (int, error)
	RemoteURL(path string) (string, error)
}

// RealClient implements Client using real git commands.
type RealClient struct{}

// NewClient returns a new RealClient.
func NewClient() *RealClient {
	return &RealClient{}
}

func gitCmd(path string, args ...string) (string, error) {
	fullArgs := append([]string{"-C", path}, args...)
	out, err := exec.Command("git", fullArgs...).Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("git %s: %s", strings.Join(args, " "), strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Unit separator between fields, record separator between commits. Commit
// messages contain newlines, so line-based formats are not safe.
const (
	fieldSep  = "\x1f"
	recordSep = "\x1e"
	logFormat = "%H" + fieldSep + "%an" + fieldSep + "%cI" + fieldSep + "%B" + recordSep
)

// ListCommits returns commits by the author across all branches within the
// half-open [since, until) window, including each commit's changed files.
func (c *RealClient) ListCommits(path, author string, since, until time.Time) ([]*models.Commit, error) {
	out, err := gitCmd(path, "log", "--all",
		"--author="+author,
		"--since="+since.UTC().Format(time.RFC3339),
		"--until="+until.UTC().Format(time.RFC3339),
		"--pretty=format:"+logFormat)
	if err != nil {
		return nil, err
	}

	repo := filepath.Base(path)
	commits, err := ParseLog(out, repo)
	if err != nil {
		return nil, err
	}

	for _, commit := range commits {
		files, err := c.changedFiles(path, commit.Hash)
		if err != nil {
			// A commit can vanish between log and show (gc, rewritten
			// branch). Keep the commit without its file list.
			commit.Files = []string{}
			continue
		}
		commit.Files = files
	}
	return commits, nil
}

func (c *RealClient) changedFiles(path, hash string) ([]string, error) {
	out, err := gitCmd(path, "show", "--pretty=", "--name-only", hash)
	if err != nil {
		return nil, err
	}
	if out == "" {
		return []string{}, nil
	}
	var files []string
	for _, line := range strings.Split(out, "\n") {
		if line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}

// CountCommits returns how many commits the author made in the window,
// without materializing the commits themselves.
func (c *RealClient) CountCommits(path, author string, since, until time.Time) (int, error) {
	out, err := gitCmd(path, "rev-list", "--all", "--count",
		"--author="+author,
		"--since="+since.UTC().Format(time.RFC3339),
		"--until="+until.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(out)
}

func (c *RealClient) RemoteURL(path string) (string, error) {
	out, err := gitCmd(path, "remote", "get-url", "origin")
	if err != nil {
		return "", nil // no remote is not an error
	}
	return out, nil
}

// ParseLog parses `git log --pretty=format:` output using the unit/record
// separator format above into typed commits. Dates are normalized to UTC.
func ParseLog(out, repo string) ([]*models.Commit, error) {
	var commits []*models.Commit
	for _, record := range strings.Split(out, recordSep) {
		record = strings.TrimLeft(record, "\n")
		if strings.TrimSpace(record) == "" {
			continue
		}
		parts := strings.SplitN(record, fieldSep, 4)
		if len(parts) != 4 {
			return nil, fmt.Errorf("malformed log record: %q", truncate(record, 80))
		}
		date, err := time.Parse(time.RFC3339, parts[2])
		if err != nil {
			return nil, fmt.Errorf("parse commit date for %s: %w", parts[0], err)
		}
		commits = append(commits, &models.Commit{
			Hash:    parts[0],
			Repo:    repo,
			Author:  parts[1],
			Date:    date.UTC(),
			Message: strings.TrimSpace(parts[3]),
			Files:   []string{},
		})
	}
	return commits, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
