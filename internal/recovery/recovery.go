// Package recovery restores timer state after an application restart.
//
// Pending requests and active connections live in the durable store and
// survive a restart, but the timers that govern them are in-process and do
// not. At startup the manager enumerates the surviving records and asks the
// coordinator to re-arm their timers, reclaiming anything already past due.
package recovery

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/visitly/handoff/internal/coordinator"
	"github.com/visitly/handoff/internal/store"
)

// Manager re-arms coordinator timers from surviving store records.
type Manager struct {
	store store.Store
	coord *coordinator.Coordinator
}

// NewManager creates a recovery manager.
func NewManager(st store.Store, coord *coordinator.Coordinator) *Manager {
	return &Manager{store: st, coord: coord}
}

// RecoverAll re-arms timers for every surviving pending request and active
// connection. Enumeration failures abort recovery; individual records are
// handled by the coordinator and never abort the rest.
func (m *Manager) RecoverAll(ctx context.Context) error {
	slog.Info("Starting timer recovery")

	pendings, err := m.store.ListPending(ctx)
	if err != nil {
		return fmt.Errorf("failed to enumerate pending requests: %w", err)
	}
	for _, pending := range pendings {
		m.coord.ResumePending(ctx, pending)
	}

	conns, err := m.store.ListConnections(ctx)
	if err != nil {
		return fmt.Errorf("failed to enumerate connections: %w", err)
	}
	for _, conn := range conns {
		m.coord.ResumeConnection(ctx, conn)
	}

	slog.Info("Timer recovery completed", "pending", len(pendings), "connections", len(conns))
	return nil
}
