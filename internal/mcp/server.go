// Package mcp exposes the activity cache to MCP clients over stdio. All
// tools are read-only; fetching and summary generation stay on the CLI.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/self-review/internal/period"
	"github.com/joescharf/self-review/internal/store"
)

// Server wraps the cache and exposes it as MCP tools.
type Server struct {
	store store.Store
	year  int
}

// NewServer creates the MCP server wrapper. year scopes period-based tools.
func NewServer(s store.Store, year int) *Server {
	return &Server{store: s, year: year}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("self-review", "1.0.0", server.WithToolCapabilities(true))

	srv.AddTool(s.listSummariesTool())
	srv.AddTool(s.getSummaryTool())
	srv.AddTool(s.listCommitsTool())
	srv.AddTool(s.listReactionsTool())
	srv.AddTool(s.reactionStatsTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// resolvePeriod maps a period selector to its window within the configured
// year. An empty selector means the full year.
func (s *Server) resolvePeriod(selector string) (period.Period, error) {
	if selector == "" {
		selector = "all"
	}
	periods, err := period.Derive(s.year, selector)
	if err != nil {
		return period.Period{}, err
	}
	return periods[0], nil
}

// self_review_list_summaries
func (s *Server) listSummariesTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("self_review_list_summaries",
		mcp.WithDescription("List the cached self-review summaries for the configured year. Returns a JSON array with period label and generation time."),
	)
	return tool, s.handleListSummaries
}

func (s *Server) handleListSummaries(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	type summaryOut struct {
		Period      string    `json:"period"`
		GeneratedAt time.Time `json:"generated_at"`
		Commits     int       `json:"commits"`
	}

	// One possible label per quarter plus the year itself
	quarters, _ := period.Derive(s.year, "")
	labels := []string{fmt.Sprintf("%d", s.year)}
	for _, p := range quarters {
		labels = append(labels, p.Label)
	}

	var out []summaryOut
	for _, label := range labels {
		sum, err := s.store.GetSummary(ctx, label)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to read summary %s: %v", label, err)), nil
		}
		if sum == nil {
			continue
		}
		out = append(out, summaryOut{
			Period:      sum.Period,
			GeneratedAt: sum.GeneratedAt,
			Commits:     len(sum.CommitHashes),
		})
	}

	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal summaries: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// self_review_get_summary
func (s *Server) getSummaryTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("self_review_get_summary",
		mcp.WithDescription("Get the cached self-review summary for a period label (e.g. 2025-Q1 or 2025)."),
		mcp.WithString("period", mcp.Required(), mcp.Description("Period label")),
	)
	return tool, s.handleGetSummary
}

func (s *Server) handleGetSummary(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	label, err := request.RequireString("period")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: period"), nil
	}

	sum, err := s.store.GetSummary(ctx, label)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read summary: %v", err)), nil
	}
	if sum == nil {
		return mcp.NewToolResultError(fmt.Sprintf("no cached summary for period %s", label)), nil
	}
	return mcp.NewToolResultText(sum.Content), nil
}

// self_review_list_commits
func (s *Server) listCommitsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("self_review_list_commits",
		mcp.WithDescription("List cached commits for a quarter (Q1-Q4) or the whole year. Returns a JSON array with hash, repo, date, and message."),
		mcp.WithString("quarter", mcp.Description("Quarter selector Q1-Q4; omit for the full year")),
		mcp.WithString("repo", mcp.Description("Filter by repository name")),
	)
	return tool, s.handleListCommits
}

func (s *Server) handleListCommits(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := s.resolvePeriod(request.GetString("quarter", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	commits, err := s.store.ListCommits(ctx, store.CommitQuery{
		Start: p.Start,
		End:   p.End,
		Repo:  request.GetString("repo", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list commits: %v", err)), nil
	}

	type commitOut struct {
		Hash    string    `json:"hash"`
		Repo    string    `json:"repo"`
		Author  string    `json:"author"`
		Date    time.Time `json:"date"`
		Message string    `json:"message"`
	}
	out := make([]commitOut, len(commits))
	for i, c := range commits {
		out[i] = commitOut{
			Hash:    c.Hash,
			Repo:    c.Repo,
			Author:  c.Author,
			Date:    c.Date,
			Message: c.Message,
		}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal commits: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// self_review_list_reactions
func (s *Server) listReactionsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("self_review_list_reactions",
		mcp.WithDescription("List cached Slack reactions for a quarter (Q1-Q4) or the whole year, newest first. Returns a JSON array with emoji, channel, message preview, and timestamp."),
		mcp.WithString("quarter", mcp.Description("Quarter selector Q1-Q4; omit for the full year")),
	)
	return tool, s.handleListReactions
}

func (s *Server) handleListReactions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := s.resolvePeriod(request.GetString("quarter", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	reactions, err := s.store.ListReactions(ctx, p.Start, p.End)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list reactions: %v", err)), nil
	}

	type reactionOut struct {
		Emoji       string    `json:"emoji"`
		Channel     string    `json:"channel"`
		MessageUser string    `json:"message_user"`
		MessageText string    `json:"message_text"`
		ReactedAt   time.Time `json:"reacted_at"`
	}
	out := make([]reactionOut, len(reactions))
	for i, r := range reactions {
		out[i] = reactionOut{
			Emoji:       r.Emoji,
			Channel:     r.ChannelName,
			MessageUser: r.MessageUser,
			MessageText: r.MessageText,
			ReactedAt:   r.ReactedAt,
		}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal reactions: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// self_review_reaction_stats
func (s *Server) reactionStatsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("self_review_reaction_stats",
		mcp.WithDescription("Slack reaction totals for a quarter (Q1-Q4) or the whole year, with top emojis and channels."),
		mcp.WithString("quarter", mcp.Description("Quarter selector Q1-Q4; omit for the full year")),
	)
	return tool, s.handleReactionStats
}

func (s *Server) handleReactionStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := s.resolvePeriod(request.GetString("quarter", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	stats, err := s.store.ReactionStats(ctx, p.Start, p.End)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load reaction stats: %v", err)), nil
	}

	data, err := json.Marshal(map[string]interface{}{
		"period":     p.Label,
		"total":      stats.Total,
		"by_emoji":   stats.ByEmoji,
		"by_channel": stats.ByChannel,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal stats: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
