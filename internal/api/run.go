package api

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/visitly/handoff/internal/coordinator"
	"github.com/visitly/handoff/internal/identity"
	"github.com/visitly/handoff/internal/notify"
	"github.com/visitly/handoff/internal/orchestrator"
	"github.com/visitly/handoff/internal/policy"
	"github.com/visitly/handoff/internal/records"
	"github.com/visitly/handoff/internal/recovery"
	"github.com/visitly/handoff/internal/responder"
	"github.com/visitly/handoff/internal/session"
	"github.com/visitly/handoff/internal/store"
	"github.com/visitly/handoff/internal/timers"
	"github.com/visitly/handoff/internal/transport"
)

// RunConfig carries the policy and coordinator settings that are not
// per-module options.
type RunConfig struct {
	Cooldown    time.Duration
	Coordinator coordinator.Config
	Hours       policy.Hours
}

// Run wires all modules together and serves until interrupted.
//
// The store degrades from Redis to process memory per call rather than
// failing; the notification surface degrades from SMS to the log when Twilio
// is not configured; the responder has no fallback because the product is the
// automated conversation.
func Run(storeOpts []store.Option, recorderOpts []records.Option,
	responderOpts []responder.Option, apiOpts []Option, cfg RunConfig) error {
	st, err := buildStore(storeOpts)
	if err != nil {
		return fmt.Errorf("failed to build store: %w", err)
	}
	defer st.Close()

	recorder, err := buildRecorder(recorderOpts)
	if err != nil {
		return fmt.Errorf("failed to build recorder: %w", err)
	}
	defer recorder.Close()

	resp, err := responder.NewClient(responderOpts...)
	if err != nil {
		return fmt.Errorf("failed to build responder: %w", err)
	}

	surface := buildSurface()

	registry := timers.NewRegistry()
	defer registry.Stop()

	sessions := session.NewManager(st)
	ids := identity.NewResolver(st)
	eval := policy.NewEvaluator(sessions, cfg.Cooldown)

	hub := transport.NewHub(nil)
	coord := coordinator.New(st, sessions, ids, registry, hub, surface, recorder, cfg.Coordinator)

	hours := cfg.Hours
	if hours.Location == nil {
		hours = policy.DefaultHours()
	}
	orch := orchestrator.New(ids, sessions, eval, coord, resp, recorder, hub, hours)
	hub.SetHandler(orch)

	// Pending requests and connections in the store survive restarts; their
	// timers do not. Re-arm before accepting traffic.
	if err := recovery.NewManager(st, coord).RecoverAll(context.Background()); err != nil {
		slog.Warn("Timer recovery incomplete", "error", err)
	}

	server := NewServer(orch, coord, hub, recorder, apiOpts...)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		slog.Info("Received shutdown signal", "signal", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}

// buildStore creates the durable store, degrading to process memory when no
// Redis address is configured. A configured Redis is wrapped in the fallback
// layer so transient outages degrade per call instead of failing requests.
func buildStore(storeOpts []store.Option) (store.Store, error) {
	var probe store.Opts
	for _, opt := range storeOpts {
		opt(&probe)
	}
	if probe.RedisAddr == "" {
		slog.Debug("No Redis address provided, using in-memory store")
		return store.NewMemoryStore(storeOpts...), nil
	}

	redisStore, err := store.NewRedisStore(storeOpts...)
	if err != nil {
		return nil, err
	}
	slog.Debug("Redis store configured with memory fallback", "addr", probe.RedisAddr)
	return store.NewFallbackStore(redisStore, storeOpts...), nil
}

// buildRecorder creates the lead and transcript recorder from the configured
// DSN, defaulting to process memory when none is set.
func buildRecorder(recorderOpts []records.Option) (records.Recorder, error) {
	var probe records.Opts
	for _, opt := range recorderOpts {
		opt(&probe)
	}
	if probe.DSN == "" {
		slog.Debug("No database DSN provided, using in-memory recorder")
		return records.NewMemoryRecorder(), nil
	}
	if records.DetectDSNType(probe.DSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL recorder")
		return records.NewPostgresRecorder(recorderOpts...)
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite recorder", "db_path", probe.DSN)
	return records.NewSQLiteRecorder(recorderOpts...)
}

// buildSurface creates the agent notification surface, preferring SMS when
// Twilio credentials are present.
func buildSurface() notify.Surface {
	surface, err := notify.NewTwilioSurface()
	if err != nil {
		slog.Debug("Twilio not configured, notifications go to the log", "reason", err)
		return notify.NewLogSurface()
	}
	slog.Info("Twilio SMS notification surface configured")
	return surface
}
