// Package coordinator manages agent assignment for visitor handoff requests.
//
// Per visitor the coordinator runs a small machine: IDLE until a request is
// published (WAITING), CONNECTED once an agent claims it, and back to IDLE
// when the conversation ends, times out, or is reclaimed. The single truly
// racy operation is the claim, which relies on the store's atomic conditional
// write; every other transition is driven by the visitor's own serialized
// message stream or by this coordinator's timers.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/visitly/handoff/internal/identity"
	"github.com/visitly/handoff/internal/models"
	"github.com/visitly/handoff/internal/notify"
	"github.com/visitly/handoff/internal/records"
	"github.com/visitly/handoff/internal/session"
	"github.com/visitly/handoff/internal/store"
	"github.com/visitly/handoff/internal/timers"
	"github.com/visitly/handoff/internal/transport"
)

// RequestStatus is the outcome of a handoff request.
type RequestStatus string

const (
	// StatusRequested means a new request was published to the surface.
	StatusRequested RequestStatus = "requested"
	// StatusPending means a request was already waiting; its session pointer
	// was updated in place instead of publishing a duplicate.
	StatusPending RequestStatus = "pending"
)

// Config holds the coordinator's timer durations.
type Config struct {
	HandoffTimeout    time.Duration
	InactivityTimeout time.Duration
	WaitingInterval   time.Duration
	DurationInterval  time.Duration
}

// applyDefaults fills in default durations for any left unset.
func (c *Config) applyDefaults() {
	if c.HandoffTimeout == 0 {
		c.HandoffTimeout = models.DefaultPendingTTL
	}
	if c.InactivityTimeout == 0 {
		c.InactivityTimeout = models.DefaultInactivityTimeout
	}
	if c.WaitingInterval == 0 {
		c.WaitingInterval = models.DefaultWaitingInterval
	}
	if c.DurationInterval == 0 {
		c.DurationInterval = models.DefaultDurationInterval
	}
}

// Coordinator binds at most one agent to a visitor and reclaims abandoned
// requests and idle conversations.
type Coordinator struct {
	store    store.Store
	sessions *session.Manager
	ids      *identity.Resolver
	timers   *timers.Registry
	emitter  transport.Emitter
	surface  notify.Surface
	recorder records.Recorder
	cfg      Config
	now      func() time.Time
}

// New creates an agent assignment coordinator.
func New(st store.Store, sessions *session.Manager, ids *identity.Resolver, reg *timers.Registry,
	emitter transport.Emitter, surface notify.Surface, recorder records.Recorder, cfg Config) *Coordinator {
	cfg.applyDefaults()
	slog.Debug("Creating Coordinator",
		"handoffTimeout", cfg.HandoffTimeout, "inactivityTimeout", cfg.InactivityTimeout)
	return &Coordinator{
		store:    st,
		sessions: sessions,
		ids:      ids,
		timers:   reg,
		emitter:  emitter,
		surface:  surface,
		recorder: recorder,
		cfg:      cfg,
		now:      time.Now,
	}
}

// SetClock overrides the coordinator's time source (for tests).
func (c *Coordinator) SetClock(now func() time.Time) {
	c.now = now
}

// emitToVisitor pushes an event to the visitor's newest session, falling back
// to the supplied session when no pointer is known. Best-effort.
func (c *Coordinator) emitToVisitor(ctx context.Context, visitorID, fallbackSession, event string, payload interface{}) {
	sessionID, err := c.ids.CurrentSession(ctx, visitorID)
	if err != nil || sessionID == "" {
		sessionID = fallbackSession
	}
	if sessionID == "" {
		return
	}
	c.emitter.Emit(sessionID, event, payload)
}

// RequestHandoff publishes a handoff request for a visitor, or updates the
// session pointer of one already waiting (the visitor reloaded mid-wait).
// New requests start the handoff-timeout timer and the waiting-time ticker.
func (c *Coordinator) RequestHandoff(ctx context.Context, visitorID, sessionID, summary string) (RequestStatus, error) {
	pending, err := c.store.GetPending(ctx, visitorID)
	if err != nil {
		return "", err
	}
	if pending != nil {
		pending.SessionID = sessionID
		if err := c.store.SavePending(ctx, *pending); err != nil {
			return "", err
		}
		slog.Info("Coordinator request still pending, session pointer updated",
			"visitorID", visitorID, "sessionID", sessionID)
		return StatusPending, nil
	}

	handle, err := c.surface.Publish(ctx, fmt.Sprintf("Visitor %s is asking for a human agent.\n%s", visitorID, summary))
	if err != nil {
		slog.Error("Coordinator publish failed", "error", err, "visitorID", visitorID)
		return "", err
	}

	pendingRequest := models.PendingHandoff{
		VisitorID:    visitorID,
		SessionID:    sessionID,
		Summary:      summary,
		NoticeHandle: handle,
		CreatedAt:    c.now(),
	}
	if err := c.store.SavePending(ctx, pendingRequest); err != nil {
		return "", err
	}

	c.timers.StartAfter(visitorID, timers.KindHandoffTimeout, c.cfg.HandoffTimeout, func() {
		c.ReclaimOnTimeout(context.Background(), visitorID)
	})
	c.timers.StartRepeating(visitorID, timers.KindWaiting, c.cfg.WaitingInterval, func() {
		c.refreshWaiting(context.Background(), visitorID)
	})

	slog.Info("Coordinator handoff requested", "visitorID", visitorID, "sessionID", sessionID, "handle", handle)
	return StatusRequested, nil
}

// refreshWaiting updates the waiting-time display on the notification surface
// and tells the visitor how long they have been waiting.
func (c *Coordinator) refreshWaiting(ctx context.Context, visitorID string) {
	pending, err := c.store.GetPending(ctx, visitorID)
	if err != nil || pending == nil {
		return
	}
	waited := c.now().Sub(pending.CreatedAt).Round(time.Second)
	if err := c.surface.Update(ctx, pending.NoticeHandle,
		fmt.Sprintf("Visitor %s waiting for %s.\n%s", visitorID, waited, pending.Summary)); err != nil {
		slog.Debug("Coordinator waiting update failed", "error", err, "visitorID", visitorID)
	}
	c.emitToVisitor(ctx, visitorID, pending.SessionID, models.EventAgentWaiting,
		map[string]interface{}{"waited_seconds": int(waited.Seconds())})
}

// Claim atomically binds an agent to a visitor's waiting request. The claim
// identifier may be a visitor identity or a stale session identity; it is
// resolved first. Losing a concurrent claim returns the winning connection
// with ErrAlreadyClaimed; a claim with no waiting request returns ErrNotFound.
func (c *Coordinator) Claim(ctx context.Context, claimID, agentID, agentName string) (*models.AgentConnection, error) {
	visitorID := c.ids.ResolveOrSelf(ctx, claimID)

	if existing, err := c.store.GetConnection(ctx, visitorID); err == nil && existing != nil {
		slog.Info("Coordinator claim refused, already connected",
			"visitorID", visitorID, "holder", existing.AgentID, "claimant", agentID)
		return existing, models.ErrAlreadyClaimed
	}

	pending, err := c.store.GetPending(ctx, visitorID)
	if err != nil {
		return nil, err
	}
	if pending == nil {
		slog.Info("Coordinator claim refused, no waiting request", "claimID", claimID, "visitorID", visitorID)
		return nil, fmt.Errorf("%w: no pending request for %s", models.ErrNotFound, visitorID)
	}

	conn := models.AgentConnection{
		VisitorID:    visitorID,
		SessionID:    pending.SessionID,
		AgentID:      agentID,
		AgentName:    agentName,
		NoticeHandle: pending.NoticeHandle,
		ConnectedAt:  c.now(),
	}

	// The conditional write is the correctness mechanism for simultaneous
	// claims; exactly one of N concurrent attempts creates the record.
	claimed, err := c.store.ClaimConnection(ctx, conn)
	if err != nil {
		return nil, err
	}
	if !claimed {
		existing, readErr := c.store.GetConnection(ctx, visitorID)
		if readErr != nil || existing == nil {
			// The winner's record could not be read back; report the loss
			// without naming a winner rather than fabricating one.
			slog.Warn("Coordinator claim lost race, winner unknown",
				"error", readErr, "visitorID", visitorID, "loser", agentID)
			return nil, models.ErrAlreadyClaimed
		}
		slog.Info("Coordinator claim lost race", "visitorID", visitorID, "winner", existing.AgentID, "loser", agentID)
		return existing, models.ErrAlreadyClaimed
	}

	c.timers.Cancel(visitorID, timers.KindHandoffTimeout)
	c.timers.Cancel(visitorID, timers.KindWaiting)
	if err := c.store.DeletePending(ctx, visitorID); err != nil {
		slog.Error("Coordinator pending cleanup failed", "error", err, "visitorID", visitorID)
	}

	if err := c.sessions.Transition(ctx, visitorID, models.StateHumanConnected); err != nil {
		slog.Error("Coordinator connected transition failed", "error", err, "visitorID", visitorID)
	}
	// Cooldown runs from claim time, not from when the conversation ends.
	if err := c.sessions.MarkLiveHandoff(ctx, visitorID, conn.ConnectedAt); err != nil {
		slog.Error("Coordinator live handoff mark failed", "error", err, "visitorID", visitorID)
	}

	c.timers.StartAfter(visitorID, timers.KindInactivity, c.cfg.InactivityTimeout, func() {
		c.ReclaimOnInactivity(context.Background(), visitorID)
	})
	c.timers.StartRepeating(visitorID, timers.KindDuration, c.cfg.DurationInterval, func() {
		c.refreshDuration(context.Background(), visitorID)
	})

	c.emitToVisitor(ctx, visitorID, conn.SessionID, models.EventAgentConnected,
		map[string]interface{}{"agent_name": agentName})
	if err := c.surface.Update(ctx, conn.NoticeHandle,
		fmt.Sprintf("Visitor %s claimed by %s.", visitorID, agentName)); err != nil {
		slog.Debug("Coordinator claim notice update failed", "error", err, "visitorID", visitorID)
	}

	slog.Info("Coordinator claim succeeded", "visitorID", visitorID, "agentID", agentID, "agentName", agentName)
	return &conn, nil
}

// refreshDuration updates the connection-duration display on the surface.
func (c *Coordinator) refreshDuration(ctx context.Context, visitorID string) {
	conn, err := c.store.GetConnection(ctx, visitorID)
	if err != nil || conn == nil {
		return
	}
	connected := c.now().Sub(conn.ConnectedAt).Round(time.Second)
	if err := c.surface.Update(ctx, conn.NoticeHandle,
		fmt.Sprintf("Visitor %s connected to %s for %s.", visitorID, conn.AgentName, connected)); err != nil {
		slog.Debug("Coordinator duration update failed", "error", err, "visitorID", visitorID)
	}
}

// teardown removes an active connection, cancels all of the visitor's timers
// synchronously, and returns the conversation to NORMAL_CHAT.
func (c *Coordinator) teardown(ctx context.Context, conn *models.AgentConnection, reason models.ReclaimReason) {
	duration := c.now().Sub(conn.ConnectedAt).Round(time.Second)

	c.timers.CancelAll(conn.VisitorID)
	if err := c.store.DeleteConnection(ctx, conn.VisitorID); err != nil {
		slog.Error("Coordinator connection delete failed", "error", err, "visitorID", conn.VisitorID)
	}
	if err := c.sessions.Transition(ctx, conn.VisitorID, models.StateNormalChat); err != nil {
		slog.Error("Coordinator teardown transition failed", "error", err, "visitorID", conn.VisitorID)
	}

	c.emitToVisitor(ctx, conn.VisitorID, conn.SessionID, models.EventAgentDisconnected,
		map[string]interface{}{"agent_name": conn.AgentName, "reason": string(reason)})
	if err := c.surface.NotifyThread(ctx, conn.NoticeHandle,
		fmt.Sprintf("Conversation with visitor %s ended after %s (%s).", conn.VisitorID, duration, reason)); err != nil {
		slog.Debug("Coordinator teardown notice failed", "error", err, "visitorID", conn.VisitorID)
	}

	slog.Info("Coordinator connection ended",
		"visitorID", conn.VisitorID, "agentID", conn.AgentID, "duration", duration, "reason", reason)
}

// EndByAgent ends an active connection at the agent's request.
func (c *Coordinator) EndByAgent(ctx context.Context, claimID string) error {
	visitorID := c.ids.ResolveOrSelf(ctx, claimID)
	conn, err := c.store.GetConnection(ctx, visitorID)
	if err != nil {
		return err
	}
	if conn == nil {
		return fmt.Errorf("%w: no active connection for %s", models.ErrNotFound, visitorID)
	}
	c.teardown(ctx, conn, models.ReclaimAgentEnded)
	return nil
}

// ReclaimOnTimeout fires when nobody claimed a request in time. It only acts
// while the request is still waiting; if a claim landed first the timer's
// firing is a no-op (the cancellation normally prevents it, but the re-check
// guards against clock and ordering anomalies).
func (c *Coordinator) ReclaimOnTimeout(ctx context.Context, visitorID string) {
	if conn, err := c.store.GetConnection(ctx, visitorID); err == nil && conn != nil {
		slog.Debug("Coordinator timeout no-op, already claimed", "visitorID", visitorID)
		return
	}
	pending, err := c.store.GetPending(ctx, visitorID)
	if err != nil || pending == nil {
		slog.Debug("Coordinator timeout no-op, no waiting request", "visitorID", visitorID)
		return
	}

	if err := c.store.DeletePending(ctx, visitorID); err != nil {
		slog.Error("Coordinator timeout pending delete failed", "error", err, "visitorID", visitorID)
	}
	c.timers.Cancel(visitorID, timers.KindWaiting)
	c.timers.Cancel(visitorID, timers.KindHandoffTimeout)

	if err := c.sessions.SetState(ctx, visitorID, models.StateSeekingHandoff); err != nil {
		slog.Error("Coordinator timeout state reset failed", "error", err, "visitorID", visitorID)
	}

	c.emitToVisitor(ctx, visitorID, pending.SessionID, models.EventHandoffTimeout, nil)
	if err := c.surface.Update(ctx, pending.NoticeHandle,
		fmt.Sprintf("Request from visitor %s expired unclaimed.", visitorID)); err != nil {
		slog.Debug("Coordinator timeout notice update failed", "error", err, "visitorID", visitorID)
	}

	slog.Info("Coordinator request reclaimed on timeout", "visitorID", visitorID)
}

// ReclaimOnInactivity fires when a connected visitor has gone silent. It only
// acts while a connection still exists.
func (c *Coordinator) ReclaimOnInactivity(ctx context.Context, visitorID string) {
	conn, err := c.store.GetConnection(ctx, visitorID)
	if err != nil || conn == nil {
		slog.Debug("Coordinator inactivity no-op, no connection", "visitorID", visitorID)
		return
	}
	c.teardown(ctx, conn, models.ReclaimInactivity)
}

// HandleVisitorDisconnect reacts to a session's websocket closing. A waiting
// request is kept untouched; only the handoff-timeout timer governs its
// cleanup. An active connection is also kept, along with its inactivity
// timer, so the visitor can reconnect under a new session within the TTL
// window and keep talking to the same agent.
func (c *Coordinator) HandleVisitorDisconnect(ctx context.Context, sessionID string) {
	visitorID := c.ids.ResolveOrSelf(ctx, sessionID)

	if pending, err := c.store.GetPending(ctx, visitorID); err == nil && pending != nil {
		slog.Debug("Coordinator visitor disconnected while waiting, request kept",
			"visitorID", visitorID, "sessionID", sessionID)
		return
	}

	conn, err := c.store.GetConnection(ctx, visitorID)
	if err != nil || conn == nil {
		return
	}
	if err := c.surface.NotifyThread(ctx, conn.NoticeHandle,
		fmt.Sprintf("Visitor %s disconnected; holding the conversation for a reconnect.", visitorID)); err != nil {
		slog.Debug("Coordinator disconnect notice failed", "error", err, "visitorID", visitorID)
	}
	slog.Info("Coordinator visitor disconnected while connected, record kept",
		"visitorID", visitorID, "agentID", conn.AgentID)
}

// RecordVisitorActivity routes a connected visitor's message to the agent
// thread, follows the visitor to its newest session, resets the inactivity
// timer, and refreshes the connection record's TTL. It reports whether the
// visitor was connected (and the turn therefore handled).
func (c *Coordinator) RecordVisitorActivity(ctx context.Context, visitorID, sessionID, body string) (bool, error) {
	conn, err := c.store.GetConnection(ctx, visitorID)
	if err != nil {
		return false, err
	}
	if conn == nil {
		return false, nil
	}

	if sessionID != "" && sessionID != conn.SessionID {
		conn.SessionID = sessionID
	}
	if err := c.store.SaveConnection(ctx, *conn); err != nil {
		slog.Error("Coordinator connection refresh failed", "error", err, "visitorID", visitorID)
	}

	c.timers.StartAfter(visitorID, timers.KindInactivity, c.cfg.InactivityTimeout, func() {
		c.ReclaimOnInactivity(context.Background(), visitorID)
	})

	if err := c.surface.NotifyThread(ctx, conn.NoticeHandle, body); err != nil {
		slog.Error("Coordinator message forward failed", "error", err, "visitorID", visitorID)
	}
	return true, nil
}

// ResumePending re-arms the timers for a pending request that survived a
// restart. A request already past its timeout is reclaimed immediately.
func (c *Coordinator) ResumePending(ctx context.Context, pending models.PendingHandoff) {
	visitorID := pending.VisitorID
	remaining := c.cfg.HandoffTimeout - c.now().Sub(pending.CreatedAt)
	if remaining <= 0 {
		slog.Info("Coordinator resumed request already expired, reclaiming", "visitorID", visitorID)
		c.ReclaimOnTimeout(ctx, visitorID)
		return
	}

	c.timers.StartAfter(visitorID, timers.KindHandoffTimeout, remaining, func() {
		c.ReclaimOnTimeout(context.Background(), visitorID)
	})
	c.timers.StartRepeating(visitorID, timers.KindWaiting, c.cfg.WaitingInterval, func() {
		c.refreshWaiting(context.Background(), visitorID)
	})
	slog.Info("Coordinator resumed pending request", "visitorID", visitorID, "remaining", remaining)
}

// ResumeConnection re-arms the timers for an active connection that survived
// a restart. The inactivity timer restarts from now; the visitor's silence
// before the restart is not held against them.
func (c *Coordinator) ResumeConnection(ctx context.Context, conn models.AgentConnection) {
	visitorID := conn.VisitorID
	c.timers.StartAfter(visitorID, timers.KindInactivity, c.cfg.InactivityTimeout, func() {
		c.ReclaimOnInactivity(context.Background(), visitorID)
	})
	c.timers.StartRepeating(visitorID, timers.KindDuration, c.cfg.DurationInterval, func() {
		c.refreshDuration(context.Background(), visitorID)
	})
	slog.Info("Coordinator resumed connection", "visitorID", visitorID, "agentID", conn.AgentID)
}

// AgentMessage routes an agent's message to the visitor's newest session and
// appends it to the transcript.
func (c *Coordinator) AgentMessage(ctx context.Context, claimID, body string) error {
	visitorID := c.ids.ResolveOrSelf(ctx, claimID)
	conn, err := c.store.GetConnection(ctx, visitorID)
	if err != nil {
		return err
	}
	if conn == nil {
		return fmt.Errorf("%w: no active connection for %s", models.ErrNotFound, visitorID)
	}

	c.emitToVisitor(ctx, visitorID, conn.SessionID, models.EventAgentMessage,
		map[string]interface{}{"agent_name": conn.AgentName, "body": body})
	if err := c.recorder.AddTranscript(ctx, models.TranscriptEntry{
		VisitorID: visitorID,
		Role:      models.RoleAgent,
		Body:      body,
		Time:      c.now(),
	}); err != nil {
		slog.Debug("Coordinator agent transcript append failed", "error", err, "visitorID", visitorID)
	}
	return nil
}
