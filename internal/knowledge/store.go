// Package knowledge keeps a durable history of patrol reports in SQLite.
package knowledge

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// Note is one stored report entry.
type Note struct {
	ID            int64
	RunID         string
	Title         string
	Body          string
	Summary       string
	RiskLevel     string
	TotalFindings int
	RolledBack    bool
	CreatedAt     time.Time
}

// Store is a SQLite-backed knowledge store.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open opens or creates the database at path.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create knowledge directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open knowledge database: %w", err)
	}

	// One writer; SQLite serializes anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, logger: logger.With().Str("component", "knowledge").Logger()}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS patrol_notes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			title TEXT NOT NULL,
			body TEXT NOT NULL,
			summary TEXT NOT NULL,
			risk_level TEXT NOT NULL DEFAULT '',
			total_findings INTEGER NOT NULL DEFAULT 0,
			rolled_back INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_patrol_notes_created
		ON patrol_notes(created_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	s.logger.Debug().Msg("knowledge schema initialized")
	return nil
}

// Save appends a note and returns its id.
func (s *Store) Save(ctx context.Context, n Note) (int64, error) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	rolledBack := 0
	if n.RolledBack {
		rolledBack = 1
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO patrol_notes (run_id, title, body, summary, risk_level, total_findings, rolled_back, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		n.RunID, n.Title, n.Body, n.Summary, n.RiskLevel, n.TotalFindings, rolledBack, n.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to save note: %w", err)
	}
	return res.LastInsertId()
}

// Recent returns up to limit notes, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Note, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, title, body, summary, risk_level, total_findings, rolled_back, created_at
		 FROM patrol_notes ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query notes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var notes []Note
	for rows.Next() {
		var n Note
		var rolledBack int
		var created int64
		if err := rows.Scan(&n.ID, &n.RunID, &n.Title, &n.Body, &n.Summary, &n.RiskLevel, &n.TotalFindings, &rolledBack, &created); err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		n.RolledBack = rolledBack != 0
		n.CreatedAt = time.UnixMilli(created)
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
