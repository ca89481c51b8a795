// Package records provides the append-only leads and transcript log.
//
// This file implements the SQLite-backed recorder.
package records

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"

	"github.com/visitly/handoff/internal/models"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteRecorder is a Recorder backed by a SQLite database file.
type SQLiteRecorder struct {
	db *sql.DB
}

// NewSQLiteRecorder creates a SQLite recorder with the given DSN (a file
// path). The parent directory is created if it does not exist.
func NewSQLiteRecorder(opts ...Option) (*SQLiteRecorder, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteRecorder invoked", "DSN_set", cfg.DSN != "")

	if cfg.DSN == "" {
		slog.Error("SQLiteRecorder DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(cfg.DSN)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteRecorder{db: db}, nil
}

// AddLead appends a captured lead.
func (r *SQLiteRecorder) AddLead(ctx context.Context, lead models.Lead) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO leads (visitor_id, first_name, last_name, email, phone, captured_at) VALUES (?, ?, ?, ?, ?, ?)`,
		lead.VisitorID, lead.FirstName, lead.LastName, lead.Email, lead.Phone, lead.CapturedAt)
	if err != nil {
		slog.Error("SQLiteRecorder AddLead failed", "error", err, "visitorID", lead.VisitorID)
		return fmt.Errorf("failed to insert lead for %s: %w", lead.VisitorID, err)
	}
	slog.Debug("SQLiteRecorder AddLead succeeded", "visitorID", lead.VisitorID)
	return nil
}

// AddTranscript appends one conversation turn.
func (r *SQLiteRecorder) AddTranscript(ctx context.Context, entry models.TranscriptEntry) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO transcripts (visitor_id, role, body, time) VALUES (?, ?, ?, ?)`,
		entry.VisitorID, entry.Role, entry.Body, entry.Time)
	if err != nil {
		slog.Error("SQLiteRecorder AddTranscript failed", "error", err, "visitorID", entry.VisitorID)
		return fmt.Errorf("failed to insert transcript entry for %s: %w", entry.VisitorID, err)
	}
	return nil
}

// GetLeads returns all captured leads.
func (r *SQLiteRecorder) GetLeads(ctx context.Context) ([]models.Lead, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT visitor_id, first_name, last_name, email, phone, captured_at FROM leads ORDER BY id`)
	if err != nil {
		slog.Error("SQLiteRecorder GetLeads query failed", "error", err)
		return nil, fmt.Errorf("failed to query leads: %w", err)
	}
	defer rows.Close()

	var leads []models.Lead
	for rows.Next() {
		var lead models.Lead
		if err := rows.Scan(&lead.VisitorID, &lead.FirstName, &lead.LastName, &lead.Email, &lead.Phone, &lead.CapturedAt); err != nil {
			slog.Error("SQLiteRecorder GetLeads scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan lead row: %w", err)
		}
		leads = append(leads, lead)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate lead rows: %w", err)
	}
	slog.Debug("SQLiteRecorder GetLeads succeeded", "count", len(leads))
	return leads, nil
}

// GetTranscript returns a visitor's conversation log in append order.
func (r *SQLiteRecorder) GetTranscript(ctx context.Context, visitorID string) ([]models.TranscriptEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT visitor_id, role, body, time FROM transcripts WHERE visitor_id = ? ORDER BY id`, visitorID)
	if err != nil {
		slog.Error("SQLiteRecorder GetTranscript query failed", "error", err, "visitorID", visitorID)
		return nil, fmt.Errorf("failed to query transcript: %w", err)
	}
	defer rows.Close()

	var entries []models.TranscriptEntry
	for rows.Next() {
		var entry models.TranscriptEntry
		if err := rows.Scan(&entry.VisitorID, &entry.Role, &entry.Body, &entry.Time); err != nil {
			slog.Error("SQLiteRecorder GetTranscript scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan transcript row: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transcript rows: %w", err)
	}
	return entries, nil
}

// Close closes the SQLite database connection.
func (r *SQLiteRecorder) Close() error {
	slog.Debug("Closing SQLite recorder connection")
	return r.db.Close()
}
