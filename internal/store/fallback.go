// Package store provides storage backends for the handoff orchestrator.
//
// This file implements the degrading store wrapper. Every call is attempted
// against the durable backend first; on failure the call transparently lands
// in the in-process store and the error is never surfaced to the caller.
// Reads that miss the durable backend also consult the in-process store so
// records written during an outage remain visible. While degraded, the atomic
// claim guarantee only holds within this process.
package store

import (
	"context"
	"log/slog"

	"github.com/visitly/handoff/internal/models"
)

// FallbackStore wraps a durable Store with an in-process fallback.
type FallbackStore struct {
	primary  Store
	fallback *MemoryStore
}

// NewFallbackStore creates a degrading wrapper around a durable store.
func NewFallbackStore(primary Store, opts ...Option) *FallbackStore {
	slog.Debug("Creating FallbackStore")
	return &FallbackStore{
		primary:  primary,
		fallback: NewMemoryStore(opts...),
	}
}

// degraded logs a store failure once per call site and reports the degradation.
func degraded(op string, err error) {
	slog.Warn("Store operation degraded to in-process fallback", "op", op, "error", err)
}

// GetConversation reads from the durable store, consulting the fallback on
// failure or miss.
func (s *FallbackStore) GetConversation(ctx context.Context, visitorID string) (*models.Conversation, error) {
	conv, err := s.primary.GetConversation(ctx, visitorID)
	if err != nil {
		degraded("GetConversation", err)
		return s.fallback.GetConversation(ctx, visitorID)
	}
	if conv == nil {
		return s.fallback.GetConversation(ctx, visitorID)
	}
	return conv, nil
}

// SaveConversation writes to the durable store, landing in the fallback on failure.
func (s *FallbackStore) SaveConversation(ctx context.Context, conv models.Conversation) error {
	if err := s.primary.SaveConversation(ctx, conv); err != nil {
		degraded("SaveConversation", err)
		return s.fallback.SaveConversation(ctx, conv)
	}
	// Keep the fallback copy coherent so a later degraded read does not
	// resurrect a stale record.
	_ = s.fallback.DeleteConversation(ctx, conv.VisitorID)
	return nil
}

// DeleteConversation removes the record from both stores.
func (s *FallbackStore) DeleteConversation(ctx context.Context, visitorID string) error {
	_ = s.fallback.DeleteConversation(ctx, visitorID)
	if err := s.primary.DeleteConversation(ctx, visitorID); err != nil {
		degraded("DeleteConversation", err)
	}
	return nil
}

// GetPending reads from the durable store, consulting the fallback on failure or miss.
func (s *FallbackStore) GetPending(ctx context.Context, visitorID string) (*models.PendingHandoff, error) {
	pending, err := s.primary.GetPending(ctx, visitorID)
	if err != nil {
		degraded("GetPending", err)
		return s.fallback.GetPending(ctx, visitorID)
	}
	if pending == nil {
		return s.fallback.GetPending(ctx, visitorID)
	}
	return pending, nil
}

// SavePending writes to the durable store, landing in the fallback on failure.
func (s *FallbackStore) SavePending(ctx context.Context, pending models.PendingHandoff) error {
	if err := s.primary.SavePending(ctx, pending); err != nil {
		degraded("SavePending", err)
		return s.fallback.SavePending(ctx, pending)
	}
	_ = s.fallback.DeletePending(ctx, pending.VisitorID)
	return nil
}

// DeletePending removes the record from both stores.
func (s *FallbackStore) DeletePending(ctx context.Context, visitorID string) error {
	_ = s.fallback.DeletePending(ctx, visitorID)
	if err := s.primary.DeletePending(ctx, visitorID); err != nil {
		degraded("DeletePending", err)
	}
	return nil
}

// ClaimConnection attempts the atomic claim on the durable store, falling back
// to the in-process claim when it is unreachable. A fallback claim is still
// atomic within this process.
func (s *FallbackStore) ClaimConnection(ctx context.Context, conn models.AgentConnection) (bool, error) {
	ok, err := s.primary.ClaimConnection(ctx, conn)
	if err != nil {
		degraded("ClaimConnection", err)
		return s.fallback.ClaimConnection(ctx, conn)
	}
	return ok, nil
}

// GetConnection reads from the durable store, consulting the fallback on failure or miss.
func (s *FallbackStore) GetConnection(ctx context.Context, visitorID string) (*models.AgentConnection, error) {
	conn, err := s.primary.GetConnection(ctx, visitorID)
	if err != nil {
		degraded("GetConnection", err)
		return s.fallback.GetConnection(ctx, visitorID)
	}
	if conn == nil {
		return s.fallback.GetConnection(ctx, visitorID)
	}
	return conn, nil
}

// SaveConnection writes to the durable store, landing in the fallback on failure.
func (s *FallbackStore) SaveConnection(ctx context.Context, conn models.AgentConnection) error {
	if err := s.primary.SaveConnection(ctx, conn); err != nil {
		degraded("SaveConnection", err)
		return s.fallback.SaveConnection(ctx, conn)
	}
	_ = s.fallback.DeleteConnection(ctx, conn.VisitorID)
	return nil
}

// DeleteConnection removes the record from both stores.
func (s *FallbackStore) DeleteConnection(ctx context.Context, visitorID string) error {
	_ = s.fallback.DeleteConnection(ctx, visitorID)
	if err := s.primary.DeleteConnection(ctx, visitorID); err != nil {
		degraded("DeleteConnection", err)
	}
	return nil
}

// ListPending merges pending requests from both stores, preferring the
// durable copy when a visitor appears in both.
func (s *FallbackStore) ListPending(ctx context.Context) ([]models.PendingHandoff, error) {
	pendings, err := s.primary.ListPending(ctx)
	if err != nil {
		degraded("ListPending", err)
		return s.fallback.ListPending(ctx)
	}
	seen := make(map[string]bool, len(pendings))
	for _, pending := range pendings {
		seen[pending.VisitorID] = true
	}
	local, _ := s.fallback.ListPending(ctx)
	for _, pending := range local {
		if !seen[pending.VisitorID] {
			pendings = append(pendings, pending)
		}
	}
	return pendings, nil
}

// ListConnections merges connections from both stores, preferring the durable
// copy when a visitor appears in both.
func (s *FallbackStore) ListConnections(ctx context.Context) ([]models.AgentConnection, error) {
	conns, err := s.primary.ListConnections(ctx)
	if err != nil {
		degraded("ListConnections", err)
		return s.fallback.ListConnections(ctx)
	}
	seen := make(map[string]bool, len(conns))
	for _, conn := range conns {
		seen[conn.VisitorID] = true
	}
	local, _ := s.fallback.ListConnections(ctx)
	for _, conn := range local {
		if !seen[conn.VisitorID] {
			conns = append(conns, conn)
		}
	}
	return conns, nil
}

// BindSession writes to the durable store, landing in the fallback on failure.
func (s *FallbackStore) BindSession(ctx context.Context, sessionID, visitorID string) error {
	if err := s.primary.BindSession(ctx, sessionID, visitorID); err != nil {
		degraded("BindSession", err)
		return s.fallback.BindSession(ctx, sessionID, visitorID)
	}
	return nil
}

// ResolveSession reads from the durable store, consulting the fallback on failure or miss.
func (s *FallbackStore) ResolveSession(ctx context.Context, sessionID string) (string, error) {
	visitorID, err := s.primary.ResolveSession(ctx, sessionID)
	if err != nil {
		degraded("ResolveSession", err)
		return s.fallback.ResolveSession(ctx, sessionID)
	}
	if visitorID == "" {
		return s.fallback.ResolveSession(ctx, sessionID)
	}
	return visitorID, nil
}

// CurrentSession reads from the durable store, consulting the fallback on failure or miss.
func (s *FallbackStore) CurrentSession(ctx context.Context, visitorID string) (string, error) {
	sessionID, err := s.primary.CurrentSession(ctx, visitorID)
	if err != nil {
		degraded("CurrentSession", err)
		return s.fallback.CurrentSession(ctx, visitorID)
	}
	if sessionID == "" {
		return s.fallback.CurrentSession(ctx, visitorID)
	}
	return sessionID, nil
}

// Close closes the durable backend.
func (s *FallbackStore) Close() error {
	return s.primary.Close()
}
