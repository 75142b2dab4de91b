// Package history keeps an append-only SQLite log of finished transfers.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".

	"github.com/tonimelisma/clouddrive-go/internal/transfer"
)

const (
	sqlInsert = `INSERT INTO transfer_history
		(id, task_id, kind, name, status, bytes, error, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	sqlRecent = `SELECT id, task_id, kind, name, status, bytes, error, finished_at
		FROM transfer_history ORDER BY finished_at DESC, rowid DESC LIMIT ?`
)

// DefaultLimit is the number of entries Recent returns when limit <= 0.
const DefaultLimit = 20

// Entry is one recorded transfer outcome.
type Entry struct {
	ID         uuid.UUID `json:"id"`
	TaskID     uuid.UUID `json:"task_id"`
	Kind       string    `json:"kind"`
	Name       string    `json:"name"`
	Status     string    `json:"status"`
	Bytes      int64     `json:"bytes"`
	Error      string    `json:"error,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

// Store is the history database. Safe for concurrent use.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the history database at dbPath and
// applies migrations.
func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil { //nolint:mnd // owner-only dir perms
		return nil, fmt.Errorf("history: creating directory for %s: %w", dbPath, err)
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: opening database %s: %w", dbPath, err)
	}

	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, logger: logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record appends a terminal task outcome. Non-terminal tasks are rejected.
func (s *Store) Record(ctx context.Context, t transfer.Task, finishedAt time.Time) error {
	if !t.Status.Terminal() {
		return fmt.Errorf("history: task %s is %s, not terminal", t.Name, t.Status)
	}

	var msg string
	if t.Err != nil {
		msg = t.Err.Error()
	}

	var bytes int64
	if t.Status == transfer.StatusSucceeded {
		bytes = t.Size
	}

	_, err := s.db.ExecContext(ctx, sqlInsert,
		uuid.NewString(), t.ID.String(), string(t.Kind), t.Name, string(t.Status),
		bytes, msg, finishedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("history: recording %s: %w", t.Name, err)
	}

	return nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	rows, err := s.db.QueryContext(ctx, sqlRecent, limit)
	if err != nil {
		return nil, fmt.Errorf("history: querying: %w", err)
	}
	defer rows.Close()

	var out []Entry

	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}

		out = append(out, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterating rows: %w", err)
	}

	return out, nil
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e              Entry
		id, taskID     string
		finishedAtNano int64
	)

	if err := rows.Scan(&id, &taskID, &e.Kind, &e.Name, &e.Status, &e.Bytes, &e.Error, &finishedAtNano); err != nil {
		return Entry{}, fmt.Errorf("history: scanning row: %w", err)
	}

	var err error

	if e.ID, err = uuid.Parse(id); err != nil {
		return Entry{}, fmt.Errorf("history: row id %q: %w", id, err)
	}

	if e.TaskID, err = uuid.Parse(taskID); err != nil {
		return Entry{}, fmt.Errorf("history: task id %q: %w", taskID, err)
	}

	e.FinishedAt = time.Unix(0, finishedAtNano).UTC()

	return e, nil
}
