// Package notify abstracts the outward human-agent notification surface.
//
// The orchestrator publishes pending handoff requests to a surface, updates
// them in place as waiting time or connection duration changes, and posts
// thread follow-ups. Agent accept and end actions arrive back over HTTP and
// are handled by the API layer, so implementations here are send-only.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// Surface defines the outward notification channel for human agents.
type Surface interface {
	// Publish posts a new notification and returns an opaque handle for
	// later in-place updates.
	Publish(ctx context.Context, content string) (string, error)
	// Update rewrites a previously published notification.
	Update(ctx context.Context, handle, content string) error
	// NotifyThread posts a follow-up message under a published notification.
	NotifyThread(ctx context.Context, handle, content string) error
}

// LogSurface is the default Surface for deployments without a configured
// channel; it writes notifications to the structured log.
type LogSurface struct {
	counter atomic.Int64
}

// NewLogSurface creates a log-backed notification surface.
func NewLogSurface() *LogSurface {
	return &LogSurface{}
}

// Publish logs the notification and returns a generated handle.
func (s *LogSurface) Publish(ctx context.Context, content string) (string, error) {
	handle := fmt.Sprintf("notice-%d-%d", time.Now().Unix(), s.counter.Add(1))
	slog.Info("Notification published", "handle", handle, "content", content)
	return handle, nil
}

// Update logs the rewritten notification.
func (s *LogSurface) Update(ctx context.Context, handle, content string) error {
	slog.Info("Notification updated", "handle", handle, "content", content)
	return nil
}

// NotifyThread logs the thread follow-up.
func (s *LogSurface) NotifyThread(ctx context.Context, handle, content string) error {
	slog.Info("Notification thread message", "handle", handle, "content", content)
	return nil
}
