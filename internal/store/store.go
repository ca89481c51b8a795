// Package store provides key/value storage backends for the handoff orchestrator.
//
// It includes a Redis-backed store for durable, TTL-capable records and an
// in-memory store used both standalone and as the degradation target when the
// durable store is unreachable. The one operation that requires true
// compare-and-set semantics is ClaimConnection, which every backend must
// implement as a single atomic conditional write.
package store

import (
	"context"
	"time"

	"github.com/visitly/handoff/internal/models"
)

// Store defines the storage abstraction shared by all backends.
type Store interface {
	// GetConversation retrieves a visitor's conversation record, or nil if absent.
	GetConversation(ctx context.Context, visitorID string) (*models.Conversation, error)
	// SaveConversation stores or replaces a conversation record with the conversation TTL.
	SaveConversation(ctx context.Context, conv models.Conversation) error
	// DeleteConversation removes a conversation record.
	DeleteConversation(ctx context.Context, visitorID string) error

	// GetPending retrieves a visitor's pending handoff request, or nil if absent.
	GetPending(ctx context.Context, visitorID string) (*models.PendingHandoff, error)
	// SavePending stores or replaces a pending handoff request with the pending TTL.
	SavePending(ctx context.Context, pending models.PendingHandoff) error
	// DeletePending removes a pending handoff request.
	DeletePending(ctx context.Context, visitorID string) error

	// ClaimConnection atomically creates an agent connection for a visitor.
	// It returns false if a connection already exists; the check and the
	// create are a single conditional write, never a read-then-write.
	ClaimConnection(ctx context.Context, conn models.AgentConnection) (bool, error)
	// GetConnection retrieves a visitor's active agent connection, or nil if absent.
	GetConnection(ctx context.Context, visitorID string) (*models.AgentConnection, error)
	// SaveConnection stores or replaces a connection record, refreshing its TTL.
	SaveConnection(ctx context.Context, conn models.AgentConnection) error
	// DeleteConnection removes an agent connection record.
	DeleteConnection(ctx context.Context, visitorID string) error

	// ListPending returns all pending handoff requests, used to re-arm
	// timers after a restart.
	ListPending(ctx context.Context) ([]models.PendingHandoff, error)
	// ListConnections returns all active agent connections, used to re-arm
	// timers after a restart.
	ListConnections(ctx context.Context) ([]models.AgentConnection, error)

	// BindSession records the session-to-visitor mapping and the visitor's
	// current-session pointer, both with the session TTL.
	BindSession(ctx context.Context, sessionID, visitorID string) error
	// ResolveSession returns the visitor bound to a session, or "" if none.
	ResolveSession(ctx context.Context, sessionID string) (string, error)
	// CurrentSession returns the visitor's newest session, or "" if none.
	CurrentSession(ctx context.Context, visitorID string) (string, error)

	// Close releases backend resources.
	Close() error
}

// Key prefixes shared by the Redis and in-memory backends.
const (
	keyConversation = "conv:"
	keyPending      = "pending:"
	keyConnection   = "conn:"
	keySession      = "sess:"
	keyCurrent      = "cursess:"
)

// Opts holds configuration options for store backends.
type Opts struct {
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	SessionTTL      time.Duration
	ConversationTTL time.Duration
	PendingTTL      time.Duration
	ConnectionTTL   time.Duration
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithRedisAddr sets the Redis server address (host:port).
func WithRedisAddr(addr string) Option {
	return func(o *Opts) { o.RedisAddr = addr }
}

// WithRedisPassword sets the Redis password.
func WithRedisPassword(password string) Option {
	return func(o *Opts) { o.RedisPassword = password }
}

// WithRedisDB sets the Redis database index.
func WithRedisDB(db int) Option {
	return func(o *Opts) { o.RedisDB = db }
}

// WithSessionTTL overrides the session mapping TTL.
func WithSessionTTL(ttl time.Duration) Option {
	return func(o *Opts) { o.SessionTTL = ttl }
}

// WithConversationTTL overrides the conversation record TTL.
func WithConversationTTL(ttl time.Duration) Option {
	return func(o *Opts) { o.ConversationTTL = ttl }
}

// WithPendingTTL overrides the pending handoff request TTL.
func WithPendingTTL(ttl time.Duration) Option {
	return func(o *Opts) { o.PendingTTL = ttl }
}

// WithConnectionTTL overrides the agent connection record TTL.
func WithConnectionTTL(ttl time.Duration) Option {
	return func(o *Opts) { o.ConnectionTTL = ttl }
}

// applyDefaults fills in default TTLs for any left unset.
func (o *Opts) applyDefaults() {
	if o.SessionTTL == 0 {
		o.SessionTTL = models.DefaultSessionTTL
	}
	if o.ConversationTTL == 0 {
		o.ConversationTTL = models.DefaultConversationTTL
	}
	if o.PendingTTL == 0 {
		o.PendingTTL = models.DefaultPendingTTL
	}
	if o.ConnectionTTL == 0 {
		o.ConnectionTTL = models.DefaultConnectionTTL
	}
}
