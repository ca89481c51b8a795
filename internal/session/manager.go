// Package session provides conversation state management backed by a Store.
//
// The Manager owns the conversation mode for each visitor and enforces the
// legal transition graph. All mutation is committed through the injected
// store, which handles durability and fallback behavior.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/visitly/handoff/internal/models"
	"github.com/visitly/handoff/internal/store"
)

// Manager implements conversation state operations over a Store backend.
type Manager struct {
	store store.Store
	now   func() time.Time
}

// NewManager creates a state manager backed by a Store.
func NewManager(st store.Store) *Manager {
	slog.Debug("Creating session Manager")
	return &Manager{store: st, now: time.Now}
}

// SetClock overrides the manager's time source (for tests).
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// State retrieves a visitor's conversation, creating the default record on
// first contact.
func (m *Manager) State(ctx context.Context, visitorID string) (models.Conversation, error) {
	conv, err := m.store.GetConversation(ctx, visitorID)
	if err != nil {
		slog.Error("Manager State get error", "error", err, "visitorID", visitorID)
		return models.Conversation{}, err
	}
	if conv != nil {
		return *conv, nil
	}

	now := m.now()
	fresh := models.Conversation{
		VisitorID:      visitorID,
		State:          models.StateSeekingHandoff,
		LastActivityAt: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := m.store.SaveConversation(ctx, fresh); err != nil {
		slog.Error("Manager State create error", "error", err, "visitorID", visitorID)
		return models.Conversation{}, err
	}
	slog.Debug("Manager State created default conversation", "visitorID", visitorID)
	return fresh, nil
}

// SetState updates a visitor's conversation mode after validating the value.
// It does not check the transition graph; use Transition for graph-checked
// changes. Unknown values are rejected and state is left unchanged.
func (m *Manager) SetState(ctx context.Context, visitorID string, next models.ConversationState) error {
	if !models.IsValidConversationState(next) {
		slog.Error("Manager SetState rejected unknown state", "visitorID", visitorID, "state", next)
		return fmt.Errorf("%w: %q", models.ErrInvalidState, next)
	}

	conv, err := m.State(ctx, visitorID)
	if err != nil {
		return err
	}
	conv.State = next
	conv.UpdatedAt = m.now()
	if err := m.store.SaveConversation(ctx, conv); err != nil {
		slog.Error("Manager SetState save error", "error", err, "visitorID", visitorID, "state", next)
		return err
	}
	slog.Debug("Manager SetState succeeded", "visitorID", visitorID, "state", next)
	return nil
}

// Transition moves a visitor's conversation along a legal edge of the state
// graph. Attempts outside the graph are rejected and state is unchanged.
func (m *Manager) Transition(ctx context.Context, visitorID string, next models.ConversationState) error {
	if !models.IsValidConversationState(next) {
		return fmt.Errorf("%w: %q", models.ErrInvalidState, next)
	}

	conv, err := m.State(ctx, visitorID)
	if err != nil {
		return err
	}
	from := conv.State
	if !models.CanTransition(from, next) {
		slog.Error("Manager Transition rejected", "visitorID", visitorID, "from", from, "to", next)
		return fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, from, next)
	}

	conv.State = next
	conv.UpdatedAt = m.now()
	if next == models.StateSeekingHandoff {
		// A fresh episode: a handoff may be offered again.
		conv.HandoffOffered = false
	}
	if err := m.store.SaveConversation(ctx, conv); err != nil {
		slog.Error("Manager Transition save error", "error", err, "visitorID", visitorID, "to", next)
		return err
	}
	slog.Info("Manager Transition succeeded", "visitorID", visitorID, "from", from, "to", next)
	return nil
}

// Touch updates a visitor's last-activity timestamp without changing state.
func (m *Manager) Touch(ctx context.Context, visitorID string) error {
	conv, err := m.State(ctx, visitorID)
	if err != nil {
		return err
	}
	conv.LastActivityAt = m.now()
	conv.UpdatedAt = conv.LastActivityAt
	if err := m.store.SaveConversation(ctx, conv); err != nil {
		slog.Error("Manager Touch save error", "error", err, "visitorID", visitorID)
		return err
	}
	return nil
}

// MarkOffered records that a handoff was offered this episode.
func (m *Manager) MarkOffered(ctx context.Context, visitorID string) error {
	conv, err := m.State(ctx, visitorID)
	if err != nil {
		return err
	}
	conv.HandoffOffered = true
	conv.UpdatedAt = m.now()
	if err := m.store.SaveConversation(ctx, conv); err != nil {
		slog.Error("Manager MarkOffered save error", "error", err, "visitorID", visitorID)
		return err
	}
	slog.Debug("Manager MarkOffered succeeded", "visitorID", visitorID)
	return nil
}

// MarkLiveHandoff records when the visitor was last connected to an agent.
// The timestamp is recorded at successful claim time, not at end time, and
// drives the cooldown policy.
func (m *Manager) MarkLiveHandoff(ctx context.Context, visitorID string, at time.Time) error {
	conv, err := m.State(ctx, visitorID)
	if err != nil {
		return err
	}
	conv.LastLiveHandoffAt = &at
	conv.UpdatedAt = m.now()
	if err := m.store.SaveConversation(ctx, conv); err != nil {
		slog.Error("Manager MarkLiveHandoff save error", "error", err, "visitorID", visitorID)
		return err
	}
	slog.Debug("Manager MarkLiveHandoff succeeded", "visitorID", visitorID, "at", at)
	return nil
}
