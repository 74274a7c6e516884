package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joescharf/self-review/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single connection
	// serializes all access through Go's connection pool.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	// Set busy timeout so concurrent writes wait instead of failing immediately
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// fmtTime normalizes a timestamp to UTC RFC3339 text. All timestamp columns
// store this form, so lexicographic range comparisons are chronological.
func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	// Create migrations tracking table
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	// Sort by filename
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

		// Check if already applied
		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Commits ---

func (s *SQLiteStore) UpsertCommit(ctx context.Context, c *models.Commit) (bool, error) {
	if err := c.Validate(); err != nil {
		return false, err
	}

	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM commits WHERE hash = ?", c.Hash).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check commit: %w", err)
	}

	filesJSON, err := json.Marshal(c.Files)
	if err != nil {
		return false, fmt.Errorf("marshal files: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO commits (hash, repo, author, date, message, files_json, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(hash) DO UPDATE SET
			repo = excluded.repo,
			author = excluded.author,
			date = excluded.date,
			message = excluded.message,
			files_json = excluded.files_json,
			fetched_at = excluded.fetched_at`,
		c.Hash, c.Repo, c.Author, fmtTime(c.Date), c.Message, string(filesJSON), fmtTime(time.Now()),
	)
	if err != nil {
		return false, fmt.Errorf("upsert commit: %w", err)
	}
	return exists == 0, nil
}

func (s *SQLiteStore) ListCommits(ctx context.Context, q CommitQuery) ([]*models.Commit, error) {
	query := "SELECT hash, repo, author, date, message, files_json FROM commits WHERE date >= ? AND date < ?"
	args := []any{fmtTime(q.Start), fmtTime(q.End)}

	if q.Author != "" {
		query += " AND author LIKE ?"
		args = append(args, "%"+q.Author+"%")
	}
	if q.Repo != "" {
		query += " AND repo = ?"
		args = append(args, q.Repo)
	}
	query += " ORDER BY date DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list commits: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var commits []*models.Commit
	for rows.Next() {
		c := &models.Commit{}
		var date, filesJSON string
		if err := rows.Scan(&c.Hash, &c.Repo, &c.Author, &date, &c.Message, &filesJSON); err != nil {
			return nil, fmt.Errorf("scan commit: %w", err)
		}
		if c.Date, err = parseTime(date); err != nil {
			return nil, fmt.Errorf("parse commit date: %w", err)
		}
		if err := json.Unmarshal([]byte(filesJSON), &c.Files); err != nil {
			return nil, fmt.Errorf("unmarshal files: %w", err)
		}
		commits = append(commits, c)
	}
	return commits, rows.Err()
}

// --- Pull requests ---

func (s *SQLiteStore) UpsertPullRequest(ctx context.Context, pr *models.PullRequest) (bool, error) {
	if err := pr.Validate(); err != nil {
		return false, err
	}

	var exists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM pull_requests WHERE repo = ? AND number = ?",
		pr.Repo, pr.Number).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check pull request: %w", err)
	}

	reviewsJSON, err := json.Marshal(pr.Reviews)
	if err != nil {
		return false, fmt.Errorf("marshal reviews: %w", err)
	}

	var mergedAt sql.NullString
	if pr.MergedAt != nil {
		mergedAt = sql.NullString{String: fmtTime(*pr.MergedAt), Valid: true}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO pull_requests (id, number, repo, title, state, created_at, merged_at,
			additions, deletions, changed_files, reviews_json, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(repo, number) DO UPDATE SET
			title = excluded.title,
			state = excluded.state,
			merged_at = excluded.merged_at,
			additions = excluded.additions,
			deletions = excluded.deletions,
			changed_files = excluded.changed_files,
			reviews_json = excluded.reviews_json,
			fetched_at = excluded.fetched_at`,
		newULID(), pr.Number, pr.Repo, pr.Title, pr.State, fmtTime(pr.CreatedAt), mergedAt,
		pr.Additions, pr.Deletions, pr.ChangedFiles, string(reviewsJSON), fmtTime(time.Now()),
	)
	if err != nil {
		return false, fmt.Errorf("upsert pull request: %w", err)
	}
	return exists == 0, nil
}

func (s *SQLiteStore) ListPullRequests(ctx context.Context, q RangeQuery) ([]*models.PullRequest, error) {
	query := `SELECT number, repo, title, state, created_at, merged_at, additions, deletions, changed_files, reviews_json
		FROM pull_requests WHERE created_at >= ? AND created_at < ?`
	args := []any{fmtTime(q.Start), fmtTime(q.End)}

	if q.Repo != "" {
		query += " AND repo = ?"
		args = append(args, q.Repo)
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list pull requests: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var prs []*models.PullRequest
	for rows.Next() {
		pr := &models.PullRequest{}
		var createdAt, reviewsJSON string
		var mergedAt sql.NullString
		if err := rows.Scan(&pr.Number, &pr.Repo, &pr.Title, &pr.State, &createdAt, &mergedAt,
			&pr.Additions, &pr.Deletions, &pr.ChangedFiles, &reviewsJSON); err != nil {
			return nil, fmt.Errorf("scan pull request: %w", err)
		}
		if pr.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse pr created_at: %w", err)
		}
		if mergedAt.Valid {
			t, err := parseTime(mergedAt.String)
			if err != nil {
				return nil, fmt.Errorf("parse pr merged_at: %w", err)
			}
			pr.MergedAt = &t
		}
		if err := json.Unmarshal([]byte(reviewsJSON), &pr.Reviews); err != nil {
			return nil, fmt.Errorf("unmarshal reviews: %w", err)
		}
		prs = append(prs, pr)
	}
	return prs, rows.Err()
}

// --- Reviews given ---

func (s *SQLiteStore) UpsertReviewGiven(ctx context.Context, r *models.ReviewGiven) (bool, error) {
	if err := r.Validate(); err != nil {
		return false, err
	}

	var exists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM reviews_given WHERE repo = ? AND pr_number = ? AND submitted_at = ?",
		r.Repo, r.PRNumber, fmtTime(r.SubmittedAt)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check review given: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO reviews_given (id, pr_number, repo, pr_title, pr_author, state, body, submitted_at, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(repo, pr_number, submitted_at) DO UPDATE SET
			pr_title = excluded.pr_title,
			pr_author = excluded.pr_author,
			state = excluded.state,
			body = excluded.body,
			fetched_at = excluded.fetched_at`,
		newULID(), r.PRNumber, r.Repo, r.PRTitle, r.PRAuthor, r.State, r.Body,
		fmtTime(r.SubmittedAt), fmtTime(time.Now()),
	)
	if err != nil {
		return false, fmt.Errorf("upsert review given: %w", err)
	}
	return exists == 0, nil
}

func (s *SQLiteStore) ListReviewsGiven(ctx context.Context, q RangeQuery) ([]*models.ReviewGiven, error) {
	query := `SELECT pr_number, repo, pr_title, pr_author, state, body, submitted_at
		FROM reviews_given WHERE submitted_at >= ? AND submitted_at < ?`
	args := []any{fmtTime(q.Start), fmtTime(q.End)}

	if q.Repo != "" {
		query += " AND repo = ?"
		args = append(args, q.Repo)
	}
	query += " ORDER BY submitted_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reviews given: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var reviews []*models.ReviewGiven
	for rows.Next() {
		r := &models.ReviewGiven{}
		var submittedAt string
		if err := rows.Scan(&r.PRNumber, &r.Repo, &r.PRTitle, &r.PRAuthor, &r.State, &r.Body, &submittedAt); err != nil {
			return nil, fmt.Errorf("scan review given: %w", err)
		}
		if r.SubmittedAt, err = parseTime(submittedAt); err != nil {
			return nil, fmt.Errorf("parse review submitted_at: %w", err)
		}
		reviews = append(reviews, r)
	}
	return reviews, rows.Err()
}

// --- Comments given ---

func (s *SQLiteStore) UpsertCommentGiven(ctx context.Context, c *models.CommentGiven) (bool, error) {
	if err := c.Validate(); err != nil {
		return false, err
	}

	var exists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM comments_given WHERE repo = ? AND pr_number = ? AND created_at = ? AND body = ?",
		c.Repo, c.PRNumber, fmtTime(c.CreatedAt), c.Body).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check comment given: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO comments_given (id, pr_number, repo, pr_title, pr_author, body, created_at, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(repo, pr_number, created_at, body) DO UPDATE SET
			pr_title = excluded.pr_title,
			pr_author = excluded.pr_author,
			fetched_at = excluded.fetched_at`,
		newULID(), c.PRNumber, c.Repo, c.PRTitle, c.PRAuthor, c.Body,
		fmtTime(c.CreatedAt), fmtTime(time.Now()),
	)
	if err != nil {
		return false, fmt.Errorf("upsert comment given: %w", err)
	}
	return exists == 0, nil
}

func (s *SQLiteStore) ListCommentsGiven(ctx context.Context, q RangeQuery) ([]*models.CommentGiven, error) {
	query := `SELECT pr_number, repo, pr_title, pr_author, body, created_at
		FROM comments_given WHERE created_at >= ? AND created_at < ?`
	args := []any{fmtTime(q.Start), fmtTime(q.End)}

	if q.Repo != "" {
		query += " AND repo = ?"
		args = append(args, q.Repo)
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list comments given: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var comments []*models.CommentGiven
	for rows.Next() {
		c := &models.CommentGiven{}
		var createdAt string
		if err := rows.Scan(&c.PRNumber, &c.Repo, &c.PRTitle, &c.PRAuthor, &c.Body, &createdAt); err != nil {
			return nil, fmt.Errorf("scan comment given: %w", err)
		}
		if c.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse comment created_at: %w", err)
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

// --- Reactions ---

func (s *SQLiteStore) UpsertReaction(ctx context.Context, r *models.Reaction) (bool, error) {
	if err := r.Validate(); err != nil {
		return false, err
	}

	var exists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM reactions_given WHERE channel_id = ? AND message_ts = ? AND emoji = ?",
		r.ChannelID, r.MessageTS, r.Emoji).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check reaction: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO reactions_given (id, emoji, channel_id, channel_name, message_ts, message_user, message_text, reacted_at, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(channel_id, message_ts, emoji) DO UPDATE SET
			channel_name = excluded.channel_name,
			message_user = excluded.message_user,
			message_text = excluded.message_text,
			fetched_at = excluded.fetched_at`,
		newULID(), r.Emoji, r.ChannelID, r.ChannelName, r.MessageTS, r.MessageUser, r.MessageText,
		fmtTime(r.ReactedAt), fmtTime(time.Now()),
	)
	if err != nil {
		return false, fmt.Errorf("upsert reaction: %w", err)
	}
	return exists == 0, nil
}

func (s *SQLiteStore) ListReactions(ctx context.Context, start, end time.Time) ([]*models.Reaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT emoji, channel_id, channel_name, message_ts, message_user, message_text, reacted_at
		FROM reactions_given WHERE reacted_at >= ? AND reacted_at < ? ORDER BY reacted_at DESC`,
		fmtTime(start), fmtTime(end))
	if err != nil {
		return nil, fmt.Errorf("list reactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var reactions []*models.Reaction
	for rows.Next() {
		r := &models.Reaction{}
		var reactedAt string
		if err := rows.Scan(&r.Emoji, &r.ChannelID, &r.ChannelName, &r.MessageTS, &r.MessageUser, &r.MessageText, &reactedAt); err != nil {
			return nil, fmt.Errorf("scan reaction: %w", err)
		}
		if r.ReactedAt, err = parseTime(reactedAt); err != nil {
			return nil, fmt.Errorf("parse reaction reacted_at: %w", err)
		}
		reactions = append(reactions, r)
	}
	return reactions, rows.Err()
}

func (s *SQLiteStore) ReactionStats(ctx context.Context, start, end time.Time) (*models.ReactionStats, error) {
	stats := &models.ReactionStats{}
	startStr, endStr := fmtTime(start), fmtTime(end)

	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM reactions_given WHERE reacted_at >= ? AND reacted_at < ?",
		startStr, endStr).Scan(&stats.Total)
	if err != nil {
		return nil, fmt.Errorf("count reactions: %w", err)
	}

	// Ties broken by earliest insertion (rowid) for stable output.
	rows, err := s.db.QueryContext(ctx,
		`SELECT emoji, COUNT(*) as count
		FROM reactions_given WHERE reacted_at >= ? AND reacted_at < ?
		GROUP BY emoji ORDER BY count DESC, MIN(rowid) ASC LIMIT 10`,
		startStr, endStr)
	if err != nil {
		return nil, fmt.Errorf("reactions by emoji: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var ec models.EmojiCount
		if err := rows.Scan(&ec.Emoji, &ec.Count); err != nil {
			return nil, fmt.Errorf("scan emoji count: %w", err)
		}
		stats.ByEmoji = append(stats.ByEmoji, ec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	chRows, err := s.db.QueryContext(ctx,
		`SELECT channel_name, COUNT(*) as count
		FROM reactions_given WHERE reacted_at >= ? AND reacted_at < ?
		GROUP BY channel_name ORDER BY count DESC, MIN(rowid) ASC LIMIT 10`,
		startStr, endStr)
	if err != nil {
		return nil, fmt.Errorf("reactions by channel: %w", err)
	}
	defer func() { _ = chRows.Close() }()

	for chRows.Next() {
		var cc models.ChannelCount
		if err := chRows.Scan(&cc.Name, &cc.Count); err != nil {
			return nil, fmt.Errorf("scan channel count: %w", err)
		}
		stats.ByChannel = append(stats.ByChannel, cc)
	}
	return stats, chRows.Err()
}

// --- Summaries ---

func (s *SQLiteStore) SaveSummary(ctx context.Context, sum *models.Summary) error {
	if err := sum.Validate(); err != nil {
		return err
	}

	hashesJSON, err := json.Marshal(sum.CommitHashes)
	if err != nil {
		return fmt.Errorf("marshal commit hashes: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO summaries (id, period, content, commit_hashes_json, generated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(period) DO UPDATE SET
			content = excluded.content,
			commit_hashes_json = excluded.commit_hashes_json,
			generated_at = excluded.generated_at`,
		newULID(), sum.Period, sum.Content, string(hashesJSON), fmtTime(sum.GeneratedAt),
	)
	if err != nil {
		return fmt.Errorf("save summary: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetSummary(ctx context.Context, period string) (*models.Summary, error) {
	sum := &models.Summary{}
	var hashesJSON, generatedAt string

	err := s.db.QueryRowContext(ctx,
		"SELECT period, content, commit_hashes_json, generated_at FROM summaries WHERE period = ?",
		period).Scan(&sum.Period, &sum.Content, &hashesJSON, &generatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get summary: %w", err)
	}

	if err := json.Unmarshal([]byte(hashesJSON), &sum.CommitHashes); err != nil {
		return nil, fmt.Errorf("unmarshal commit hashes: %w", err)
	}
	if sum.GeneratedAt, err = parseTime(generatedAt); err != nil {
		return nil, fmt.Errorf("parse summary generated_at: %w", err)
	}
	return sum, nil
}
