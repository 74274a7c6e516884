// Package slack fetches the user's emoji reactions from the Slack Web API
// using browser-session credentials (xoxc token plus xoxd cookie).
package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/joescharf/self-review/internal/models"
)

const defaultBaseURL = "https://slack.com/api"

// maxMessageText caps the stored message preview.
const maxMessageText = 200

// Client is a minimal Slack Web API client. The xoxc token goes in the
// Authorization header and the xoxd cookie in a Cookie header named "d";
// both are required for browser-session auth.
type Client struct {
	baseURL string
	token   string
	cookie  string
	http    *http.Client
}

// NewClient returns a client for the production Slack API.
func NewClient(token, cookie string) *Client {
	return &Client{
		baseURL: defaultBaseURL,
		token:   token,
		cookie:  cookie,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// NewClientWithBaseURL is for tests against httptest servers.
func NewClientWithBaseURL(baseURL, token, cookie string) *Client {
	c := NewClient(token, cookie)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out interface{}) error {
	u := c.baseURL + "/" + endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Cookie", "d="+c.cookie)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("slack %s: %w", endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack %s: unexpected status %d", endpoint, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("slack %s: decode response: %w", endpoint, err)
	}
	return nil
}

// Identity is the authenticated user per auth.test.
type Identity struct {
	User   string `json:"user"`
	UserID string `json:"user_id"`
	Team   string `json:"team"`
	TeamID string `json:"team_id"`
}

// AuthTest validates the credentials and returns who they belong to.
func (c *Client) AuthTest(ctx context.Context) (*Identity, error) {
	var resp struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
		Identity
	}
	if err := c.get(ctx, "auth.test", nil, &resp); err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, fmt.Errorf("slack auth failed: %s", resp.Error)
	}
	return &resp.Identity, nil
}

// Channel is one conversation the user is a member of.
type Channel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Channels lists all unarchived public and private channels the
// authenticated user is a member of.
func (c *Client) Channels(ctx context.Context) ([]Channel, error) {
	var channels []Channel
	cursor := ""

	for {
		params := url.Values{
			"types":            {"public_channel,private_channel"},
			"limit":            {"200"},
			"exclude_archived": {"true"},
		}
		if cursor != "" {
			params.Set("cursor", cursor)
		}

		var resp struct {
			OK               bool      `json:"ok"`
			Error            string    `json:"error"`
			Channels         []Channel `json:"channels"`
			ResponseMetadata struct {
				NextCursor string `json:"next_cursor"`
			} `json:"response_metadata"`
		}
		if err := c.get(ctx, "users.conversations", params, &resp); err != nil {
			return nil, err
		}
		if !resp.OK {
			return nil, fmt.Errorf("users.conversations: %s", resp.Error)
		}

		channels = append(channels, resp.Channels...)

		cursor = resp.ResponseMetadata.NextCursor
		if cursor == "" {
			return channels, nil
		}
	}
}

// FetchOptions carries the optional callbacks for incremental processing.
type FetchOptions struct {
	// OnReaction is called for each reaction as it is found, so callers can
	// persist incrementally and lose nothing on interrupt.
	OnReaction func(*models.Reaction)
	// Progress is called once per channel that yielded reactions.
	Progress func(channelName string, count int)
}

// FetchReactions scans the history of every channel the user is in, newest
// first, collecting reactions whose user list includes userID and whose
// message timestamp falls in [start, end). Each channel scan stops at the
// first message older than start. Channels that cannot be read (archived,
// no permission) are skipped.
func (c *Client) FetchReactions(ctx context.Context, userID string, start, end time.Time, opts FetchOptions) ([]*models.Reaction, error) {
	channels, err := c.Channels(ctx)
	if err != nil {
		return nil, err
	}

	var reactions []*models.Reaction

	for _, ch := range channels {
		chName := ch.Name
		if chName == "" {
			chName = ch.ID
		}

		found, err := c.scanChannel(ctx, ch.ID, chName, userID, start, end, opts.OnReaction)
		if err != nil {
			if ctx.Err() != nil {
				return reactions, ctx.Err()
			}
			continue
		}

		reactions = append(reactions, found...)
		if opts.Progress != nil && len(found) > 0 {
			opts.Progress(chName, len(found))
		}
	}
	return reactions, nil
}

func (c *Client) scanChannel(ctx context.Context, channelID, channelName, userID string, start, end time.Time, onReaction func(*models.Reaction)) ([]*models.Reaction, error) {
	var reactions []*models.Reaction
	cursor := ""

	for {
		params := url.Values{
			"channel": {channelID},
			"limit":   {"200"},
		}
		if cursor != "" {
			params.Set("cursor", cursor)
		}

		var resp struct {
			OK       bool   `json:"ok"`
			Error    string `json:"error"`
			Messages []struct {
				TS        string `json:"ts"`
				User      string `json:"user"`
				Text      string `json:"text"`
				Reactions []struct {
					Name  string   `json:"name"`
					Users []string `json:"users"`
				} `json:"reactions"`
			} `json:"messages"`
			ResponseMetadata struct {
				NextCursor string `json:"next_cursor"`
			} `json:"response_metadata"`
		}
		if err := c.get(ctx, "conversations.history", params, &resp); err != nil {
			return reactions, err
		}
		if !resp.OK {
			return reactions, fmt.Errorf("conversations.history %s: %s", channelID, resp.Error)
		}
		if len(resp.Messages) == 0 {
			return reactions, nil
		}

		for _, msg := range resp.Messages {
			at, err := TSToTime(msg.TS)
			if err != nil {
				continue
			}

			// History is newest first, so the first message before the
			// window means the rest of the channel is older too.
			if at.Before(start) {
				return reactions, nil
			}
			if !at.Before(end) {
				continue
			}

			for _, r := range msg.Reactions {
				if !contains(r.Users, userID) {
					continue
				}

				msgUser := msg.User
				if msgUser == "" {
					msgUser = "unknown"
				}
				reaction := &models.Reaction{
					Emoji:       r.Name,
					ChannelID:   channelID,
					ChannelName: channelName,
					MessageTS:   msg.TS,
					MessageUser: msgUser,
					MessageText: truncate(msg.Text, maxMessageText),
					ReactedAt:   at,
				}
				reactions = append(reactions, reaction)
				if onReaction != nil {
					onReaction(reaction)
				}
			}
		}

		cursor = resp.ResponseMetadata.NextCursor
		if cursor == "" {
			return reactions, nil
		}
	}
}

// TSToTime converts a Slack message timestamp ("1234567890.123456") to a
// UTC time at second precision.
func TSToTime(ts string) (time.Time, error) {
	seconds := ts
	if i := strings.IndexByte(ts, '.'); i >= 0 {
		seconds = ts[:i]
	}
	unix, err := strconv.ParseInt(seconds, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid slack timestamp %q: %w", ts, err)
	}
	return time.Unix(unix, 0).UTC(), nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// truncate cuts s to at most n bytes without splitting a rune; message text
// is frequently non-ASCII (emoji, names) and must stay valid UTF-8.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
