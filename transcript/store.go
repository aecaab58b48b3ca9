// Package transcript stores conversations and token usage in SQLite and
// exports them as text or Markdown.
package transcript

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/martinemde/oxbot/llm"
	"github.com/martinemde/oxbot/session"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrSessionNotFound is returned for unknown session ids.
var ErrSessionNotFound = errors.New("transcript: session not found")

// titleLimit bounds session titles derived from the first user message.
const titleLimit = 60

var _ session.Recorder = (*Store)(nil)

// Store is a SQLite-backed transcript.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Summary describes one stored conversation.
type Summary struct {
	ID        string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
	Turns     int
	Usage     llm.Usage
}

// Open opens or creates the database at dsn and applies migrations. Use
// ":memory:" for a throwaway store.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One connection: SQLite has a single writer, and ":memory:" is per connection.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, f := range files {
		var applied int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", f).Scan(&applied); err != nil {
			return fmt.Errorf("check migration %s: %w", f, err)
		}
		if applied > 0 {
			continue
		}
		content, err := migrationsFS.ReadFile("migrations/" + f)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx for %s: %w", f, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", f, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", f); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %s: %w", f, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", f, err)
		}
	}
	return nil
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

// ensureSession creates the session row on first use and bumps updated_at.
func (s *Store) ensureSession(ctx context.Context, tx *sql.Tx, sessionID string) error {
	ts := s.timestamp()
	_, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (id, created_at, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET updated_at = excluded.updated_at`,
		sessionID, ts, ts,
	)
	return err
}

// RecordTurn appends a turn. System turns are not stored. The first user
// turn names the session.
func (s *Store) RecordTurn(ctx context.Context, sessionID string, turn session.Turn) error {
	if turn.Role == llm.RoleSystem {
		return nil
	}
	segments, err := json.Marshal(turn.Segments)
	if err != nil {
		return fmt.Errorf("encode segments: %w", err)
	}
	created := turn.Timestamp
	if created.IsZero() {
		created = s.now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := s.ensureSession(ctx, tx, sessionID); err != nil {
		return fmt.Errorf("record session: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO turns (session_id, role, segments, created_at) VALUES (?, ?, ?, ?)`,
		sessionID, string(turn.Role), string(segments), created.UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("record turn: %w", err)
	}
	if turn.Role == llm.RoleUser && isPlainText(turn) {
		if _, err := tx.ExecContext(ctx,
			`UPDATE sessions SET title = ? WHERE id = ? AND title = ''`,
			titleFrom(turn.Text()), sessionID,
		); err != nil {
			return fmt.Errorf("record title: %w", err)
		}
	}
	return tx.Commit()
}

// RecordUsage adds u to the session's token totals.
func (s *Store) RecordUsage(ctx context.Context, sessionID string, u llm.Usage) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := s.ensureSession(ctx, tx, sessionID); err != nil {
		return fmt.Errorf("record session: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO usage (session_id, input_tokens, output_tokens, total_tokens, requests) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
			input_tokens = input_tokens + excluded.input_tokens,
			output_tokens = output_tokens + excluded.output_tokens,
			total_tokens = total_tokens + excluded.total_tokens,
			requests = requests + excluded.requests`,
		sessionID, u.InputTokens, u.OutputTokens, u.TotalTokens, u.Requests,
	); err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	return tx.Commit()
}

// ListSessions returns stored conversations, most recently updated first.
func (s *Store) ListSessions(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.title, s.created_at, s.updated_at,
			(SELECT COUNT(*) FROM turns t WHERE t.session_id = s.id),
			COALESCE(u.input_tokens, 0), COALESCE(u.output_tokens, 0),
			COALESCE(u.total_tokens, 0), COALESCE(u.requests, 0)
		FROM sessions s LEFT JOIN usage u ON u.session_id = s.id
		ORDER BY s.updated_at DESC, s.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Summary
	for rows.Next() {
		var sum Summary
		var created, updated string
		if err := rows.Scan(&sum.ID, &sum.Title, &created, &updated, &sum.Turns,
			&sum.Usage.InputTokens, &sum.Usage.OutputTokens, &sum.Usage.TotalTokens, &sum.Usage.Requests); err != nil {
			return nil, err
		}
		sum.CreatedAt = parseTime(created)
		sum.UpdatedAt = parseTime(updated)
		result = append(result, sum)
	}
	return result, rows.Err()
}

// Session returns the summary of one conversation.
func (s *Store) Session(ctx context.Context, sessionID string) (Summary, error) {
	all, err := s.ListSessions(ctx)
	if err != nil {
		return Summary{}, err
	}
	for _, sum := range all {
		if sum.ID == sessionID {
			return sum, nil
		}
	}
	return Summary{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
}

// Turns returns a conversation's turns in order.
func (s *Store) Turns(ctx context.Context, sessionID string) ([]session.Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, segments, created_at FROM turns WHERE session_id = ? ORDER BY id ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []session.Turn
	for rows.Next() {
		var role, segments, created string
		if err := rows.Scan(&role, &segments, &created); err != nil {
			return nil, err
		}
		turn := session.Turn{Role: llm.Role(role), Timestamp: parseTime(created)}
		if err := json.Unmarshal([]byte(segments), &turn.Segments); err != nil {
			return nil, fmt.Errorf("decode turn: %w", err)
		}
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}

// DeleteSession removes a conversation and its usage.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return nil
}

func isPlainText(turn session.Turn) bool {
	for _, seg := range turn.Segments {
		if seg.Kind != session.SegmentText {
			return false
		}
	}
	return len(turn.Segments) > 0
}

func titleFrom(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if r := []rune(text); len(r) > titleLimit {
		return string(r[:titleLimit-3]) + "..."
	}
	return text
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
