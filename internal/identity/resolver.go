// Package identity maps transient session identities to durable visitor
// identities so handoff state survives page reloads and network drops.
package identity

import (
	"context"
	"log/slog"

	"github.com/visitly/handoff/internal/store"
)

// Resolver binds and resolves session-to-visitor mappings through the store.
type Resolver struct {
	store store.Store
}

// NewResolver creates an identity resolver backed by a Store.
func NewResolver(st store.Store) *Resolver {
	slog.Debug("Creating identity Resolver")
	return &Resolver{store: st}
}

// Bind records or overwrites the live session-to-visitor mapping and updates
// the visitor's current-session pointer, so inbound traffic on a new session
// is attributed to the right visitor and outbound routing follows the visitor
// to its newest session.
func (r *Resolver) Bind(ctx context.Context, sessionID, visitorID string) error {
	if sessionID == "" || visitorID == "" {
		return nil
	}
	if err := r.store.BindSession(ctx, sessionID, visitorID); err != nil {
		slog.Error("Resolver Bind failed", "error", err, "sessionID", sessionID, "visitorID", visitorID)
		return err
	}
	slog.Debug("Resolver Bind succeeded", "sessionID", sessionID, "visitorID", visitorID)
	return nil
}

// Resolve returns the visitor bound to a session, or "" when none exists.
func (r *Resolver) Resolve(ctx context.Context, sessionID string) (string, error) {
	visitorID, err := r.store.ResolveSession(ctx, sessionID)
	if err != nil {
		slog.Error("Resolver Resolve failed", "error", err, "sessionID", sessionID)
		return "", err
	}
	return visitorID, nil
}

// ResolveOrSelf resolves an identifier that may be either a visitor identity
// or a legacy session identity. Unresolvable identifiers are returned as-is
// and used as a degraded standalone identity.
func (r *Resolver) ResolveOrSelf(ctx context.Context, id string) string {
	visitorID, err := r.Resolve(ctx, id)
	if err != nil || visitorID == "" {
		return id
	}
	return visitorID
}

// CurrentSession returns the visitor's newest session for outbound routing,
// or "" when none is known.
func (r *Resolver) CurrentSession(ctx context.Context, visitorID string) (string, error) {
	sessionID, err := r.store.CurrentSession(ctx, visitorID)
	if err != nil {
		slog.Error("Resolver CurrentSession failed", "error", err, "visitorID", visitorID)
		return "", err
	}
	return sessionID, nil
}
