// Package records provides the append-only log of captured leads and
// conversation transcripts.
//
// It includes SQLite and PostgreSQL backends selected by DSN type, plus an
// in-memory recorder for tests and storage-less deployments. The log is an
// external collaborator of the orchestrator core: writes are best-effort and
// a recording failure never aborts the visitor's turn.
package records

import (
	"context"
	"strings"
	"sync"

	"github.com/visitly/handoff/internal/models"
)

// Recorder defines the append-only lead and transcript log.
type Recorder interface {
	// AddLead appends a captured lead.
	AddLead(ctx context.Context, lead models.Lead) error
	// AddTranscript appends one conversation turn.
	AddTranscript(ctx context.Context, entry models.TranscriptEntry) error
	// GetLeads returns all captured leads.
	GetLeads(ctx context.Context) ([]models.Lead, error)
	// GetTranscript returns a visitor's conversation log in append order.
	GetTranscript(ctx context.Context, visitorID string) ([]models.TranscriptEntry, error)
	// Close releases backend resources.
	Close() error
}

// Opts holds configuration options for recorder backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for recorder backends.
type Option func(*Opts)

// WithDSN sets the database DSN (a PostgreSQL URL or a SQLite file path).
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType reports "postgres" for PostgreSQL-style DSNs and "sqlite"
// for anything else (assumed to be a file path).
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// MemoryRecorder is an in-process Recorder used in tests and when no DSN is
// configured.
type MemoryRecorder struct {
	leads       []models.Lead
	transcripts []models.TranscriptEntry
	mu          sync.Mutex
}

// NewMemoryRecorder creates an empty in-process recorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

// AddLead appends a captured lead.
func (r *MemoryRecorder) AddLead(ctx context.Context, lead models.Lead) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leads = append(r.leads, lead)
	return nil
}

// AddTranscript appends one conversation turn.
func (r *MemoryRecorder) AddTranscript(ctx context.Context, entry models.TranscriptEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transcripts = append(r.transcripts, entry)
	return nil
}

// GetLeads returns all captured leads.
func (r *MemoryRecorder) GetLeads(ctx context.Context) ([]models.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	leads := make([]models.Lead, len(r.leads))
	copy(leads, r.leads)
	return leads, nil
}

// GetTranscript returns a visitor's conversation log in append order.
func (r *MemoryRecorder) GetTranscript(ctx context.Context, visitorID string) ([]models.TranscriptEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var entries []models.TranscriptEntry
	for _, entry := range r.transcripts {
		if entry.VisitorID == visitorID {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

// Close is a no-op for the in-process recorder.
func (r *MemoryRecorder) Close() error {
	return nil
}
