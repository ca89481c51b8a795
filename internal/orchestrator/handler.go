package orchestrator

import (
	"context"
	"log/slog"

	"github.com/visitly/handoff/internal/models"
	"github.com/visitly/handoff/internal/transport"
)

// The orchestrator is the hub's inbound frame handler. Frame handlers log and
// swallow errors: a failed turn must never tear down the websocket.

// OnMessage handles one visitor turn arriving over the websocket.
func (o *Orchestrator) OnMessage(ctx context.Context, sessionID, visitorID, body string) {
	msg := models.InboundMessage{SessionID: sessionID, VisitorID: visitorID, Body: body}
	if err := o.HandleMessage(ctx, msg); err != nil {
		slog.Error("Orchestrator OnMessage failed", "error", err, "sessionID", sessionID)
	}
}

// OnAccept handles the visitor accepting a handoff offer.
func (o *Orchestrator) OnAccept(ctx context.Context, sessionID string) {
	if _, err := o.AcceptHandoff(ctx, sessionID); err != nil {
		slog.Error("Orchestrator OnAccept failed", "error", err, "sessionID", sessionID)
	}
}

// OnDecline handles the visitor declining a handoff offer.
func (o *Orchestrator) OnDecline(ctx context.Context, sessionID string) {
	if err := o.DeclineHandoff(ctx, sessionID); err != nil {
		slog.Error("Orchestrator OnDecline failed", "error", err, "sessionID", sessionID)
	}
}

// OnCallback handles the visitor asking for a callback.
func (o *Orchestrator) OnCallback(ctx context.Context, sessionID string) {
	if err := o.RequestCallback(ctx, sessionID); err != nil {
		slog.Error("Orchestrator OnCallback failed", "error", err, "sessionID", sessionID)
	}
}

// OnDisconnect handles a session's websocket closing.
func (o *Orchestrator) OnDisconnect(ctx context.Context, sessionID string) {
	o.VisitorDisconnected(ctx, sessionID)
}

var _ transport.Handler = (*Orchestrator)(nil)
