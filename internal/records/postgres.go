// Package records provides the append-only leads and transcript log.
//
// This file implements the PostgreSQL-backed recorder.
package records

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	_ "github.com/lib/pq"

	"github.com/visitly/handoff/internal/models"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the maximum number of open connections to the database.
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the maximum number of idle connections in the pool.
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the maximum amount of time a connection may be reused.
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresRecorder is a Recorder backed by PostgreSQL.
type PostgresRecorder struct {
	db *sql.DB
}

// NewPostgresRecorder creates a PostgreSQL recorder with the given DSN.
func NewPostgresRecorder(opts ...Option) (*PostgresRecorder, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresRecorder invoked", "DSN_set", cfg.DSN != "")

	if cfg.DSN == "" {
		slog.Error("PostgresRecorder DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &PostgresRecorder{db: db}, nil
}

// AddLead appends a captured lead.
func (r *PostgresRecorder) AddLead(ctx context.Context, lead models.Lead) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO leads (visitor_id, first_name, last_name, email, phone, captured_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		lead.VisitorID, lead.FirstName, lead.LastName, lead.Email, lead.Phone, lead.CapturedAt)
	if err != nil {
		slog.Error("PostgresRecorder AddLead failed", "error", err, "visitorID", lead.VisitorID)
		return fmt.Errorf("failed to insert lead for %s: %w", lead.VisitorID, err)
	}
	slog.Debug("PostgresRecorder AddLead succeeded", "visitorID", lead.VisitorID)
	return nil
}

// AddTranscript appends one conversation turn.
func (r *PostgresRecorder) AddTranscript(ctx context.Context, entry models.TranscriptEntry) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO transcripts (visitor_id, role, body, time) VALUES ($1, $2, $3, $4)`,
		entry.VisitorID, entry.Role, entry.Body, entry.Time)
	if err != nil {
		slog.Error("PostgresRecorder AddTranscript failed", "error", err, "visitorID", entry.VisitorID)
		return fmt.Errorf("failed to insert transcript entry for %s: %w", entry.VisitorID, err)
	}
	return nil
}

// GetLeads returns all captured leads.
func (r *PostgresRecorder) GetLeads(ctx context.Context) ([]models.Lead, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT visitor_id, first_name, last_name, email, phone, captured_at FROM leads ORDER BY id`)
	if err != nil {
		slog.Error("PostgresRecorder GetLeads query failed", "error", err)
		return nil, fmt.Errorf("failed to query leads: %w", err)
	}
	defer rows.Close()

	var leads []models.Lead
	for rows.Next() {
		var lead models.Lead
		if err := rows.Scan(&lead.VisitorID, &lead.FirstName, &lead.LastName, &lead.Email, &lead.Phone, &lead.CapturedAt); err != nil {
			slog.Error("PostgresRecorder GetLeads scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan lead row: %w", err)
		}
		leads = append(leads, lead)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate lead rows: %w", err)
	}
	return leads, nil
}

// GetTranscript returns a visitor's conversation log in append order.
func (r *PostgresRecorder) GetTranscript(ctx context.Context, visitorID string) ([]models.TranscriptEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT visitor_id, role, body, time FROM transcripts WHERE visitor_id = $1 ORDER BY id`, visitorID)
	if err != nil {
		slog.Error("PostgresRecorder GetTranscript query failed", "error", err, "visitorID", visitorID)
		return nil, fmt.Errorf("failed to query transcript: %w", err)
	}
	defer rows.Close()

	var entries []models.TranscriptEntry
	for rows.Next() {
		var entry models.TranscriptEntry
		if err := rows.Scan(&entry.VisitorID, &entry.Role, &entry.Body, &entry.Time); err != nil {
			return nil, fmt.Errorf("failed to scan transcript row: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transcript rows: %w", err)
	}
	return entries, nil
}

// Close closes the PostgreSQL connection pool.
func (r *PostgresRecorder) Close() error {
	slog.Debug("Closing Postgres recorder connection")
	return r.db.Close()
}
