// Package archive persists finished streaming sessions, including
// their retry history, for later inspection and search.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/yacinebz/relay/internal/stream"
)

// Record is one archived session.
type Record struct {
	ID           string
	Prompt       string
	Content      string
	Status       string
	AttemptCount int
	Model        string
	StartedAt    time.Time
	EndedAt      time.Time
	ErrorKind    string
	ErrorMessage string
}

// Attempt is one archived retry-history entry.
type Attempt struct {
	SessionID string
	Attempt   int
	Delay     time.Duration
	StartedAt time.Time
	Outcome   string
	Extended  bool
}

// Store provides the sqlite-backed session archive.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the archive database at dbPath.
func NewStore(ctx context.Context, dbPath string) (*Store, error) {
	// WAL keeps readers unblocked while the chat loop archives.
	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive database: %w", err)
	}

	// SQLite handles one writer; keep the pool at a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping archive database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize archive schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id            TEXT PRIMARY KEY,
		prompt        TEXT NOT NULL,
		content       TEXT NOT NULL,
		status        TEXT NOT NULL,
		attempt_count INTEGER NOT NULL,
		model         TEXT NOT NULL DEFAULT '',
		started_at    INTEGER NOT NULL,
		ended_at      INTEGER,
		error_kind    TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS attempts (
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		attempt    INTEGER NOT NULL,
		delay_ms   INTEGER NOT NULL,
		started_at INTEGER NOT NULL,
		outcome    TEXT NOT NULL,
		extended   INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at DESC);
	CREATE INDEX IF NOT EXISTS idx_attempts_session ON attempts(session_id);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Save archives a terminal session snapshot and its attempt history.
// Saving the same session twice replaces the previous record.
func (s *Store) Save(ctx context.Context, snap stream.Snapshot, model string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin archive transaction: %w", err)
	}
	defer tx.Rollback()

	var endedAt sql.NullInt64
	if !snap.Timing.EndedAt.IsZero() {
		endedAt = sql.NullInt64{Int64: snap.Timing.EndedAt.Unix(), Valid: true}
	}
	var errKind, errMsg string
	if snap.LastError != nil {
		errKind = string(snap.LastError.Kind)
		errMsg = snap.LastError.Message
	}

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO sessions
			(id, prompt, content, status, attempt_count, model, started_at, ended_at, error_kind, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.ID, snap.Prompt, snap.AccumulatedContent, string(snap.Status),
		snap.AttemptCount, model, snap.Timing.StartedAt.Unix(), endedAt, errKind, errMsg)
	if err != nil {
		return fmt.Errorf("failed to archive session: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM attempts WHERE session_id = ?`, snap.ID); err != nil {
		return fmt.Errorf("failed to clear attempt history: %w", err)
	}
	for _, a := range snap.Attempts {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO attempts (session_id, attempt, delay_ms, started_at, outcome, extended)
			VALUES (?, ?, ?, ?, ?, ?)`,
			snap.ID, a.Attempt, a.Delay.Milliseconds(), a.StartedAt.Unix(), a.Outcome, boolInt(a.Extended))
		if err != nil {
			return fmt.Errorf("failed to archive attempt %d: %w", a.Attempt, err)
		}
	}

	return tx.Commit()
}

// Get loads one archived session and its attempt history.
func (s *Store) Get(ctx context.Context, id string) (*Record, []Attempt, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, prompt, content, status, attempt_count, model, started_at, ended_at, error_kind, error_message
		FROM sessions WHERE id = ?`, id)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil, fmt.Errorf("session %s not found", id)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load session: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, attempt, delay_ms, started_at, outcome, extended
		FROM attempts WHERE session_id = ? ORDER BY rowid`, id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load attempts: %w", err)
	}
	defer rows.Close()

	var attempts []Attempt
	for rows.Next() {
		var a Attempt
		var delayMs, startedAt int64
		var extended int
		if err := rows.Scan(&a.SessionID, &a.Attempt, &delayMs, &startedAt, &a.Outcome, &extended); err != nil {
			return nil, nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		a.Delay = time.Duration(delayMs) * time.Millisecond
		a.StartedAt = time.Unix(startedAt, 0)
		a.Extended = extended != 0
		attempts = append(attempts, a)
	}
	return rec, attempts, rows.Err()
}

// List returns the most recent sessions, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, prompt, content, status, attempt_count, model, started_at, ended_at, error_kind, error_message
		FROM sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var rec Record
	var startedAt int64
	var endedAt sql.NullInt64
	err := row.Scan(&rec.ID, &rec.Prompt, &rec.Content, &rec.Status, &rec.AttemptCount,
		&rec.Model, &startedAt, &endedAt, &rec.ErrorKind, &rec.ErrorMessage)
	if err != nil {
		return nil, err
	}
	rec.StartedAt = time.Unix(startedAt, 0)
	if endedAt.Valid {
		rec.EndedAt = time.Unix(endedAt.Int64, 0)
	}
	return &rec, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
