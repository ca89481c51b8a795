// Package models defines the core data structures for the handoff orchestrator.
//
// It includes conversation records, pending handoff requests, active agent
// connections, and captured leads, which are shared across modules.
package models

import (
	"errors"
	"time"
)

// Error variables for better error handling and testability
var (
	// ErrInvalidState indicates an unknown conversation state value was supplied.
	ErrInvalidState = errors.New("invalid conversation state")
	// ErrInvalidTransition indicates a state change outside the legal transition graph.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrAlreadyClaimed indicates another agent already holds the connection.
	ErrAlreadyClaimed = errors.New("visitor already claimed by another agent")
	// ErrNotFound indicates no matching pending request or active connection exists.
	ErrNotFound = errors.New("no matching record found")
	// ErrStoreUnavailable indicates the durable store could not be reached.
	ErrStoreUnavailable = errors.New("durable store unavailable")
)

// Conversation holds the orchestrator-facing state of one visitor's conversation.
// It is keyed by the durable visitor identity, falling back to the transient
// session identity when no durable identity exists.
type Conversation struct {
	VisitorID         string            `json:"visitor_id"`
	State             ConversationState `json:"state"`
	LastActivityAt    time.Time         `json:"last_activity_at"`
	HandoffOffered    bool              `json:"handoff_offered"`
	LastLiveHandoffAt *time.Time        `json:"last_live_handoff_at,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// PendingHandoff represents a published handoff request awaiting an agent claim.
type PendingHandoff struct {
	VisitorID    string    `json:"visitor_id"`
	SessionID    string    `json:"session_id"`
	Summary      string    `json:"summary"`
	NoticeHandle string    `json:"notice_handle"`
	CreatedAt    time.Time `json:"created_at"`
}

// AgentConnection represents the single live agent binding for a visitor.
// At most one instance exists per visitor at any time.
type AgentConnection struct {
	VisitorID    string    `json:"visitor_id"`
	SessionID    string    `json:"session_id"`
	AgentID      string    `json:"agent_id"`
	AgentName    string    `json:"agent_name"`
	NoticeHandle string    `json:"notice_handle"`
	ConnectedAt  time.Time `json:"connected_at"`
}

// Lead holds the four contact fields captured during a callback request,
// in the order they are collected.
type Lead struct {
	VisitorID  string    `json:"visitor_id"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	Email      string    `json:"email"`
	Phone      string    `json:"phone"`
	CapturedAt time.Time `json:"captured_at"`
}

// TranscriptEntry is one appended line of a visitor's conversation log.
type TranscriptEntry struct {
	VisitorID string    `json:"visitor_id"`
	Role      string    `json:"role"` // "visitor", "bot", or "agent"
	Body      string    `json:"body"`
	Time      time.Time `json:"time"`
}

// Transcript roles.
const (
	RoleVisitor = "visitor"
	RoleBot     = "bot"
	RoleAgent   = "agent"
)

// InboundMessage is one visitor turn arriving from the transport layer.
// VisitorID may be empty on the very first contact.
type InboundMessage struct {
	SessionID string `json:"session_id"`
	VisitorID string `json:"visitor_id,omitempty"`
	Body      string `json:"body"`
}

// ReclaimReason records why an agent connection was torn down.
type ReclaimReason string

const (
	// ReclaimAgentEnded indicates the agent explicitly ended the conversation.
	ReclaimAgentEnded ReclaimReason = "agent_ended"
	// ReclaimInactivity indicates the visitor went silent past the inactivity timeout.
	ReclaimInactivity ReclaimReason = "inactivity"
	// ReclaimDisconnect indicates cleanup after a visitor disconnect was reclaimed.
	ReclaimDisconnect ReclaimReason = "disconnect"
)
