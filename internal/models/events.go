// Package models defines visitor transport event names and default durations.
package models

import "time"

// Visitor transport event names, scoped to a session room. Delivery is
// best-effort from the coordinator's perspective.
const (
	// EventAgentConnected tells the visitor an agent has joined.
	EventAgentConnected = "agent_connected"
	// EventAgentDisconnected tells the visitor the agent left or was reclaimed.
	EventAgentDisconnected = "agent_disconnected"
	// EventAgentMessage carries an agent's message to the visitor.
	EventAgentMessage = "agent_message"
	// EventBotMessage carries an automated responder message to the visitor.
	EventBotMessage = "bot_message"
	// EventHandoffTimeout tells the visitor nobody claimed the request in time.
	EventHandoffTimeout = "handoff_timeout"
	// EventAgentWaiting carries the elapsed waiting time while a request is pending.
	EventAgentWaiting = "agent_waiting"
)

// Default durations for timers and persisted record TTLs. All are overridable
// via configuration.
const (
	// DefaultCooldown is the minimum interval between successive live handoffs.
	DefaultCooldown = time.Hour
	// DefaultSessionTTL bounds the session-to-visitor mapping lifetime.
	DefaultSessionTTL = 24 * time.Hour
	// DefaultConversationTTL bounds a conversation record's lifetime.
	DefaultConversationTTL = time.Hour
	// DefaultPendingTTL bounds a pending handoff request and drives its timeout timer.
	DefaultPendingTTL = 10 * time.Minute
	// DefaultConnectionTTL bounds an active agent connection record. The record
	// is re-saved on every visitor message while connected, so an active
	// conversation never expires before the inactivity timer fires.
	DefaultConnectionTTL = time.Hour
	// DefaultInactivityTimeout reclaims a connected conversation whose visitor
	// has gone silent.
	DefaultInactivityTimeout = 30 * time.Minute
	// DefaultWaitingInterval is how often the waiting-time display is refreshed.
	DefaultWaitingInterval = 30 * time.Second
	// DefaultDurationInterval is how often the connection duration is refreshed.
	DefaultDurationInterval = time.Minute
)

// TransportEvent is one named event pushed to a visitor's session room.
type TransportEvent struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload,omitempty"`
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}
