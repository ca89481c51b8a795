// Package store provides storage backends for the handoff orchestrator.
//
// This file implements the in-process store used for single-instance
// deployments and as the degradation target when Redis is unreachable.
// Expiry is checked lazily on read; claim atomicity holds under the mutex,
// which is sufficient within one process.
package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/visitly/handoff/internal/models"
)

// memoryEntry wraps a stored value with its expiry deadline.
type memoryEntry struct {
	value     interface{}
	expiresAt time.Time
}

// MemoryStore is a process-local Store backed by maps.
type MemoryStore struct {
	entries map[string]memoryEntry
	opts    Opts
	mu      sync.Mutex
	now     func() time.Time
}

// NewMemoryStore creates an in-process store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.applyDefaults()
	slog.Debug("Creating MemoryStore")
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		opts:    cfg,
		now:     time.Now,
	}
}

// get returns the live value for a key, discarding it if expired.
// Caller must hold the mutex.
func (s *MemoryStore) get(key string) (interface{}, bool) {
	entry, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if s.now().After(entry.expiresAt) {
		delete(s.entries, key)
		return nil, false
	}
	return entry.value, true
}

// set stores a value with a TTL. Caller must hold the mutex.
func (s *MemoryStore) set(key string, value interface{}, ttl time.Duration) {
	s.entries[key] = memoryEntry{value: value, expiresAt: s.now().Add(ttl)}
}

// GetConversation retrieves a visitor's conversation record.
func (s *MemoryStore) GetConversation(ctx context.Context, visitorID string) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.get(keyConversation + visitorID)
	if !ok {
		return nil, nil
	}
	conv := value.(models.Conversation)
	return &conv, nil
}

// SaveConversation stores a conversation record with the conversation TTL.
func (s *MemoryStore) SaveConversation(ctx context.Context, conv models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set(keyConversation+conv.VisitorID, conv, s.opts.ConversationTTL)
	slog.Debug("MemoryStore SaveConversation succeeded", "visitorID", conv.VisitorID, "state", conv.State)
	return nil
}

// DeleteConversation removes a conversation record.
func (s *MemoryStore) DeleteConversation(ctx context.Context, visitorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, keyConversation+visitorID)
	return nil
}

// GetPending retrieves a visitor's pending handoff request.
func (s *MemoryStore) GetPending(ctx context.Context, visitorID string) (*models.PendingHandoff, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.get(keyPending + visitorID)
	if !ok {
		return nil, nil
	}
	pending := value.(models.PendingHandoff)
	return &pending, nil
}

// SavePending stores a pending handoff request with the pending TTL.
func (s *MemoryStore) SavePending(ctx context.Context, pending models.PendingHandoff) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set(keyPending+pending.VisitorID, pending, s.opts.PendingTTL)
	slog.Debug("MemoryStore SavePending succeeded", "visitorID", pending.VisitorID, "sessionID", pending.SessionID)
	return nil
}

// DeletePending removes a pending handoff request.
func (s *MemoryStore) DeletePending(ctx context.Context, visitorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, keyPending+visitorID)
	return nil
}

// ClaimConnection atomically creates an agent connection. The existence check
// and the write happen under one lock acquisition, so concurrent claims for
// the same visitor resolve to exactly one winner.
func (s *MemoryStore) ClaimConnection(ctx context.Context, conn models.AgentConnection) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.get(keyConnection + conn.VisitorID); exists {
		slog.Debug("MemoryStore ClaimConnection lost race", "visitorID", conn.VisitorID, "agentID", conn.AgentID)
		return false, nil
	}
	s.set(keyConnection+conn.VisitorID, conn, s.opts.ConnectionTTL)
	slog.Debug("MemoryStore ClaimConnection succeeded", "visitorID", conn.VisitorID, "agentID", conn.AgentID)
	return true, nil
}

// GetConnection retrieves a visitor's active agent connection.
func (s *MemoryStore) GetConnection(ctx context.Context, visitorID string) (*models.AgentConnection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.get(keyConnection + visitorID)
	if !ok {
		return nil, nil
	}
	conn := value.(models.AgentConnection)
	return &conn, nil
}

// SaveConnection stores a connection record, refreshing its TTL.
func (s *MemoryStore) SaveConnection(ctx context.Context, conn models.AgentConnection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set(keyConnection+conn.VisitorID, conn, s.opts.ConnectionTTL)
	return nil
}

// DeleteConnection removes an agent connection record.
func (s *MemoryStore) DeleteConnection(ctx context.Context, visitorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, keyConnection+visitorID)
	return nil
}

// ListPending returns all pending handoff requests.
func (s *MemoryStore) ListPending(ctx context.Context) ([]models.PendingHandoff, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pendings []models.PendingHandoff
	for key, entry := range s.entries {
		if len(key) > len(keyPending) && key[:len(keyPending)] == keyPending {
			if s.now().After(entry.expiresAt) {
				delete(s.entries, key)
				continue
			}
			pendings = append(pendings, entry.value.(models.PendingHandoff))
		}
	}
	return pendings, nil
}

// ListConnections returns all active agent connections.
func (s *MemoryStore) ListConnections(ctx context.Context) ([]models.AgentConnection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var conns []models.AgentConnection
	for key, entry := range s.entries {
		if len(key) > len(keyConnection) && key[:len(keyConnection)] == keyConnection {
			if s.now().After(entry.expiresAt) {
				delete(s.entries, key)
				continue
			}
			conns = append(conns, entry.value.(models.AgentConnection))
		}
	}
	return conns, nil
}

// BindSession records the session mapping and the visitor's current-session pointer.
func (s *MemoryStore) BindSession(ctx context.Context, sessionID, visitorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set(keySession+sessionID, visitorID, s.opts.SessionTTL)
	s.set(keyCurrent+visitorID, sessionID, s.opts.SessionTTL)
	slog.Debug("MemoryStore BindSession succeeded", "sessionID", sessionID, "visitorID", visitorID)
	return nil
}

// ResolveSession returns the visitor bound to a session, or "" if none.
func (s *MemoryStore) ResolveSession(ctx context.Context, sessionID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.get(keySession + sessionID)
	if !ok {
		return "", nil
	}
	return value.(string), nil
}

// CurrentSession returns the visitor's newest session, or "" if none.
func (s *MemoryStore) CurrentSession(ctx context.Context, visitorID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.get(keyCurrent + visitorID)
	if !ok {
		return "", nil
	}
	return value.(string), nil
}

// Close is a no-op for the in-process store.
func (s *MemoryStore) Close() error {
	return nil
}

// SetClock overrides the store's time source (for tests).
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}
