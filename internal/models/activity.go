package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrMissingKey indicates a record is missing one of its identity key fields
// and cannot be stored.
var ErrMissingKey = errors.New("missing identity key field")

// Pull request states as reported by the GitHub API.
const (
	PRStateOpen   = "OPEN"
	PRStateMerged = "MERGED"
	PRStateClosed = "CLOSED"
)

// Review states as reported by the GitHub API.
const (
	ReviewApproved         = "APPROVED"
	ReviewChangesRequested = "CHANGES_REQUESTED"
	ReviewCommented        = "COMMENTED"
)

// Commit is a single git commit by the reviewed author. Identity: Hash.
type Commit struct {
	Hash    string
	Repo    string
	Author  string
	Date    time.Time
	Message string
	Files   []string
}

func (c *Commit) Validate() error {
	if c.Hash == "" {
		return fmt.Errorf("commit: %w: hash", ErrMissingKey)
	}
	return nil
}

// ReviewReceived is one review on a PR the user authored, embedded as a
// snapshot inside PullRequest.
type ReviewReceived struct {
	Author      string    `json:"author"`
	State       string    `json:"state"`
	Body        string    `json:"body"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// PullRequest is a PR authored by the user. Identity: (Repo, Number).
// Mutable fields (state, counts, review snapshot) reflect the latest fetch.
type PullRequest struct {
	Number       int
	Repo         string // owner/repo
	Title        string
	State        string
	CreatedAt    time.Time
	MergedAt     *time.Time
	Additions    int
	Deletions    int
	ChangedFiles int
	Reviews      []ReviewReceived
}

func (p *PullRequest) Validate() error {
	if p.Repo == "" {
		return fmt.Errorf("pull request: %w: repo", ErrMissingKey)
	}
	if p.Number <= 0 {
		return fmt.Errorf("pull request: %w: number", ErrMissingKey)
	}
	return nil
}

// ReviewGiven is a review the user submitted on someone else's PR.
// Identity: (Repo, PRNumber, SubmittedAt). Reviews carry no stable external
// id, so two reviews on the same PR at the same instant collapse to one row.
type ReviewGiven struct {
	Repo        string
	PRNumber    int
	PRTitle     string
	PRAuthor    string
	State       string
	Body        string
	SubmittedAt time.Time
}

func (r *ReviewGiven) Validate() error {
	if r.Repo == "" {
		return fmt.Errorf("review given: %w: repo", ErrMissingKey)
	}
	if r.PRNumber <= 0 {
		return fmt.Errorf("review given: %w: pr_number", ErrMissingKey)
	}
	if r.SubmittedAt.IsZero() {
		return fmt.Errorf("review given: %w: submitted_at", ErrMissingKey)
	}
	return nil
}

// CommentGiven is a PR comment the user left on someone else's PR.
// Identity: (Repo, PRNumber, CreatedAt, Body). Body is part of the key so
// distinct comments posted in the same second both persist.
type CommentGiven struct {
	Repo      string
	PRNumber  int
	PRTitle   string
	PRAuthor  string
	Body      string
	CreatedAt time.Time
}

func (c *CommentGiven) Validate() error {
	if c.Repo == "" {
		return fmt.Errorf("comment given: %w: repo", ErrMissingKey)
	}
	if c.PRNumber <= 0 {
		return fmt.Errorf("comment given: %w: pr_number", ErrMissingKey)
	}
	if c.CreatedAt.IsZero() {
		return fmt.Errorf("comment given: %w: created_at", ErrMissingKey)
	}
	return nil
}

// Reaction is an emoji reaction the user added to a Slack message.
// Identity: (ChannelID, MessageTS, Emoji). Slack allows each emoji at most
// once per user per message, so refetching converges on one row.
type Reaction struct {
	Emoji       string
	ChannelID   string
	ChannelName string
	MessageTS   string
	MessageUser string
	MessageText string
	ReactedAt   time.Time
}

func (r *Reaction) Validate() error {
	if r.ChannelID == "" {
		return fmt.Errorf("reaction: %w: channel_id", ErrMissingKey)
	}
	if r.MessageTS == "" {
		return fmt.Errorf("reaction: %w: message_ts", ErrMissingKey)
	}
	if r.Emoji == "" {
		return fmt.Errorf("reaction: %w: emoji", ErrMissingKey)
	}
	return nil
}

// Summary is a generated self-review for one period. Identity: Period label
// (e.g. "2025-Q1", "2025"). Regenerating overwrites.
type Summary struct {
	Period       string
	Content      string
	CommitHashes []string
	GeneratedAt  time.Time
}

func (s *Summary) Validate() error {
	if s.Period == "" {
		return fmt.Errorf("summary: %w: period", ErrMissingKey)
	}
	return nil
}

// EmojiCount is one entry in the per-emoji reaction breakdown.
type EmojiCount struct {
	Emoji string `json:"emoji"`
	Count int    `json:"count"`
}

// ChannelCount is one entry in the per-channel reaction breakdown.
type ChannelCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// ReactionStats aggregates reactions for a period.
type ReactionStats struct {
	Total     int
	ByEmoji   []EmojiCount   // top 10, count descending
	ByChannel []ChannelCount // top 10, count descending
}
