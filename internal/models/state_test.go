package models

import "testing"

func TestIsValidConversationState(t *testing.T) {
	valid := []ConversationState{
		StateSeekingHandoff, StateCallbackRequest, StateLeadCapture,
		StateNormalChat, StateHumanConnected,
	}
	for _, state := range valid {
		if !IsValidConversationState(state) {
			t.Errorf("IsValidConversationState(%q) = false, want true", state)
		}
	}
	for _, state := range []ConversationState{"", "UNKNOWN", "seeking_handoff"} {
		if IsValidConversationState(state) {
			t.Errorf("IsValidConversationState(%q) = true, want false", state)
		}
	}
}

func TestCanTransition(t *testing.T) {
	states := []ConversationState{
		StateSeekingHandoff, StateCallbackRequest, StateLeadCapture,
		StateNormalChat, StateHumanConnected,
	}

	// The legal edge set; everything else must be rejected, except that any
	// state may move to HUMAN_CONNECTED when an agent claims.
	legal := map[ConversationState]map[ConversationState]bool{
		StateSeekingHandoff:  {StateLeadCapture: true, StateCallbackRequest: true},
		StateLeadCapture:     {StateCallbackRequest: true},
		StateCallbackRequest: {StateNormalChat: true},
		StateNormalChat:      {StateSeekingHandoff: true},
		StateHumanConnected:  {StateNormalChat: true},
	}

	for _, from := range states {
		for _, to := range states {
			want := legal[from][to] || to == StateHumanConnected
			if got := CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%q, %q) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestCanTransitionUnknownStates(t *testing.T) {
	if CanTransition("UNKNOWN", StateNormalChat) {
		t.Error("CanTransition from unknown state should be false")
	}
	if CanTransition("UNKNOWN", StateHumanConnected) {
		t.Error("CanTransition from unknown state to connected should be false")
	}
}
