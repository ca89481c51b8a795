// Package models defines conversation state values and the legal transition graph.
package models

// ConversationState is the mode a visitor's conversation is currently in.
type ConversationState string

const (
	// StateSeekingHandoff is the initial mode; every turn is evaluated for a
	// handoff opportunity.
	StateSeekingHandoff ConversationState = "SEEKING_HANDOFF"
	// StateCallbackRequest means the orchestrator is collecting the four
	// contact fields in fixed order.
	StateCallbackRequest ConversationState = "CALLBACK_REQUEST"
	// StateLeadCapture is the conversational mode offering a callback after
	// rapport-building; fields are not being collected yet.
	StateLeadCapture ConversationState = "LEAD_CAPTURE"
	// StateNormalChat disables handoff evaluation; reached after a lead is
	// captured, while a handoff cooldown is active, or after a live handoff ended.
	StateNormalChat ConversationState = "NORMAL_CHAT"
	// StateHumanConnected means an agent is bound and the automated responder
	// is not invoked.
	StateHumanConnected ConversationState = "HUMAN_CONNECTED"
)

// IsValidConversationState checks if the given state value is known.
func IsValidConversationState(s ConversationState) bool {
	switch s {
	case StateSeekingHandoff, StateCallbackRequest, StateLeadCapture, StateNormalChat, StateHumanConnected:
		return true
	default:
		return false
	}
}

// transitions holds the legal edges of the conversation state graph.
// Any state may additionally transition to StateHumanConnected on a
// successful agent claim.
var transitions = map[ConversationState][]ConversationState{
	StateSeekingHandoff:  {StateLeadCapture, StateCallbackRequest},
	StateLeadCapture:     {StateCallbackRequest},
	StateCallbackRequest: {StateNormalChat},
	StateNormalChat:      {StateSeekingHandoff},
	StateHumanConnected:  {StateNormalChat},
}

// CanTransition reports whether moving from one conversation state to another
// follows a legal edge.
func CanTransition(from, to ConversationState) bool {
	if to == StateHumanConnected {
		return IsValidConversationState(from)
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
