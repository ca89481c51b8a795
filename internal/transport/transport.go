// Package transport delivers orchestrator decisions to browser clients.
//
// It defines the Emitter abstraction used by the coordinator and orchestrator
// and implements it with a websocket hub. Delivery is best-effort: emitting to
// a session with no live connection is not an error.
package transport

import "context"

// Emitter pushes named events to a visitor's session room, fire-and-forget.
type Emitter interface {
	Emit(sessionID, event string, payload interface{})
}

// Handler receives inbound client frames decoded by the hub.
type Handler interface {
	// OnMessage handles one visitor turn.
	OnMessage(ctx context.Context, sessionID, visitorID, body string)
	// OnAccept handles the visitor accepting a handoff offer.
	OnAccept(ctx context.Context, sessionID string)
	// OnDecline handles the visitor declining a handoff offer.
	OnDecline(ctx context.Context, sessionID string)
	// OnCallback handles the visitor asking for a callback instead.
	OnCallback(ctx context.Context, sessionID string)
	// OnDisconnect handles a session's websocket closing.
	OnDisconnect(ctx context.Context, sessionID string)
}
