// Package store provides storage backends for the handoff orchestrator.
//
// This file implements the Redis-backed store. Records are stored as JSON
// values under prefixed keys with per-record-type TTLs. ClaimConnection uses
// SETNX so concurrent claims for the same visitor resolve to exactly one winner.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/visitly/handoff/internal/models"
)

// RedisStore is a durable, TTL-capable store backed by Redis.
type RedisStore struct {
	client *redis.Client
	opts   Opts
}

// NewRedisStore creates a Redis store and verifies connectivity with a ping.
func NewRedisStore(opts ...Option) (*RedisStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.applyDefaults()
	if cfg.RedisAddr == "" {
		cfg.RedisAddr = "localhost:6379"
	}
	slog.Debug("NewRedisStore invoked", "addr", cfg.RedisAddr, "db", cfg.RedisDB)

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		slog.Error("RedisStore ping failed", "error", err, "addr", cfg.RedisAddr)
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
	}
	slog.Debug("RedisStore connected", "addr", cfg.RedisAddr)

	return &RedisStore{client: client, opts: cfg}, nil
}

// getJSON reads and unmarshals a JSON record, returning found=false on redis.Nil.
func (s *RedisStore) getJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	if err := json.Unmarshal([]byte(data), dest); err != nil {
		slog.Error("RedisStore record unmarshal failed", "error", err, "key", key)
		return false, fmt.Errorf("failed to decode record %s: %w", key, err)
	}
	return true, nil
}

// setJSON marshals and writes a JSON record with a TTL.
func (s *RedisStore) setJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode record %s: %w", key, err)
	}
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	return nil
}

// GetConversation retrieves a visitor's conversation record.
func (s *RedisStore) GetConversation(ctx context.Context, visitorID string) (*models.Conversation, error) {
	var conv models.Conversation
	found, err := s.getJSON(ctx, keyConversation+visitorID, &conv)
	if err != nil || !found {
		return nil, err
	}
	slog.Debug("RedisStore GetConversation found", "visitorID", visitorID, "state", conv.State)
	return &conv, nil
}

// SaveConversation stores a conversation record with the conversation TTL.
func (s *RedisStore) SaveConversation(ctx context.Context, conv models.Conversation) error {
	if err := s.setJSON(ctx, keyConversation+conv.VisitorID, conv, s.opts.ConversationTTL); err != nil {
		slog.Error("RedisStore SaveConversation failed", "error", err, "visitorID", conv.VisitorID)
		return err
	}
	slog.Debug("RedisStore SaveConversation succeeded", "visitorID", conv.VisitorID, "state", conv.State)
	return nil
}

// DeleteConversation removes a conversation record.
func (s *RedisStore) DeleteConversation(ctx context.Context, visitorID string) error {
	if err := s.client.Del(ctx, keyConversation+visitorID).Err(); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	return nil
}

// GetPending retrieves a visitor's pending handoff request.
func (s *RedisStore) GetPending(ctx context.Context, visitorID string) (*models.PendingHandoff, error) {
	var pending models.PendingHandoff
	found, err := s.getJSON(ctx, keyPending+visitorID, &pending)
	if err != nil || !found {
		return nil, err
	}
	return &pending, nil
}

// SavePending stores a pending handoff request with the pending TTL.
func (s *RedisStore) SavePending(ctx context.Context, pending models.PendingHandoff) error {
	if err := s.setJSON(ctx, keyPending+pending.VisitorID, pending, s.opts.PendingTTL); err != nil {
		slog.Error("RedisStore SavePending failed", "error", err, "visitorID", pending.VisitorID)
		return err
	}
	slog.Debug("RedisStore SavePending succeeded", "visitorID", pending.VisitorID, "sessionID", pending.SessionID)
	return nil
}

// DeletePending removes a pending handoff request.
func (s *RedisStore) DeletePending(ctx context.Context, visitorID string) error {
	if err := s.client.Del(ctx, keyPending+visitorID).Err(); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	return nil
}

// ClaimConnection atomically creates an agent connection using SETNX.
// Exactly one of any number of concurrent claims for the same visitor succeeds.
func (s *RedisStore) ClaimConnection(ctx context.Context, conn models.AgentConnection) (bool, error) {
	data, err := json.Marshal(conn)
	if err != nil {
		return false, fmt.Errorf("failed to encode connection record: %w", err)
	}
	ok, err := s.client.SetNX(ctx, keyConnection+conn.VisitorID, data, s.opts.ConnectionTTL).Result()
	if err != nil {
		slog.Error("RedisStore ClaimConnection failed", "error", err, "visitorID", conn.VisitorID)
		return false, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	slog.Debug("RedisStore ClaimConnection", "visitorID", conn.VisitorID, "agentID", conn.AgentID, "claimed", ok)
	return ok, nil
}

// GetConnection retrieves a visitor's active agent connection.
func (s *RedisStore) GetConnection(ctx context.Context, visitorID string) (*models.AgentConnection, error) {
	var conn models.AgentConnection
	found, err := s.getJSON(ctx, keyConnection+visitorID, &conn)
	if err != nil || !found {
		return nil, err
	}
	return &conn, nil
}

// SaveConnection stores a connection record, refreshing its TTL.
func (s *RedisStore) SaveConnection(ctx context.Context, conn models.AgentConnection) error {
	if err := s.setJSON(ctx, keyConnection+conn.VisitorID, conn, s.opts.ConnectionTTL); err != nil {
		slog.Error("RedisStore SaveConnection failed", "error", err, "visitorID", conn.VisitorID)
		return err
	}
	return nil
}

// DeleteConnection removes an agent connection record.
func (s *RedisStore) DeleteConnection(ctx context.Context, visitorID string) error {
	if err := s.client.Del(ctx, keyConnection+visitorID).Err(); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	return nil
}

// ListPending returns all pending handoff requests via a prefix scan.
func (s *RedisStore) ListPending(ctx context.Context) ([]models.PendingHandoff, error) {
	var pendings []models.PendingHandoff
	iter := s.client.Scan(ctx, 0, keyPending+"*", 0).Iterator()
	for iter.Next(ctx) {
		var pending models.PendingHandoff
		found, err := s.getJSON(ctx, iter.Val(), &pending)
		if err != nil {
			return nil, err
		}
		if found {
			pendings = append(pendings, pending)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	return pendings, nil
}

// ListConnections returns all active agent connections via a prefix scan.
func (s *RedisStore) ListConnections(ctx context.Context) ([]models.AgentConnection, error) {
	var conns []models.AgentConnection
	iter := s.client.Scan(ctx, 0, keyConnection+"*", 0).Iterator()
	for iter.Next(ctx) {
		var conn models.AgentConnection
		found, err := s.getJSON(ctx, iter.Val(), &conn)
		if err != nil {
			return nil, err
		}
		if found {
			conns = append(conns, conn)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	return conns, nil
}

// BindSession records the session mapping and the visitor's current-session pointer.
func (s *RedisStore) BindSession(ctx context.Context, sessionID, visitorID string) error {
	if err := s.client.Set(ctx, keySession+sessionID, visitorID, s.opts.SessionTTL).Err(); err != nil {
		slog.Error("RedisStore BindSession failed", "error", err, "sessionID", sessionID)
		return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	if err := s.client.Set(ctx, keyCurrent+visitorID, sessionID, s.opts.SessionTTL).Err(); err != nil {
		slog.Error("RedisStore BindSession pointer update failed", "error", err, "visitorID", visitorID)
		return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	slog.Debug("RedisStore BindSession succeeded", "sessionID", sessionID, "visitorID", visitorID)
	return nil
}

// ResolveSession returns the visitor bound to a session, or "" if none.
func (s *RedisStore) ResolveSession(ctx context.Context, sessionID string) (string, error) {
	visitorID, err := s.client.Get(ctx, keySession+sessionID).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	return visitorID, nil
}

// CurrentSession returns the visitor's newest session, or "" if none.
func (s *RedisStore) CurrentSession(ctx context.Context, visitorID string) (string, error) {
	sessionID, err := s.client.Get(ctx, keyCurrent+visitorID).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	return sessionID, nil
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	slog.Debug("Closing Redis store connection")
	return s.client.Close()
}
