package responder

import (
	"strings"
	"testing"
)

func TestParseReplyPlainText(t *testing.T) {
	reply := ParseReply("Happy to help with that.")
	if reply.Lead != nil || reply.Escape || reply.CallbackOptIn || reply.OfferedHandoff {
		t.Errorf("plain text produced markers: %+v", reply)
	}
	if reply.Text != "Happy to help with that." {
		t.Errorf("Text = %q, want original text", reply.Text)
	}
}

func TestParseReplyLeadCaptured(t *testing.T) {
	reply := ParseReply("Thanks, we have everything we need. [LEAD_CAPTURED: Ada , Lovelace, ada@example.com, +15551234567]")

	if reply.Lead == nil {
		t.Fatal("expected a parsed lead")
	}
	if reply.Lead.FirstName != "Ada" || reply.Lead.LastName != "Lovelace" {
		t.Errorf("name fields = %q %q, want Ada Lovelace", reply.Lead.FirstName, reply.Lead.LastName)
	}
	if reply.Lead.Email != "ada@example.com" || reply.Lead.Phone != "+15551234567" {
		t.Errorf("contact fields = %q %q", reply.Lead.Email, reply.Lead.Phone)
	}
	if reply.Text != "Thanks, we have everything we need." {
		t.Errorf("Text = %q, marker should be stripped", reply.Text)
	}
}

func TestParseReplyLeadExtraFields(t *testing.T) {
	// Extra fields beyond the four are ignored, not an error.
	reply := ParseReply("[LEAD_CAPTURED:Ada,Lovelace,ada@example.com,+15551234567,analytical engines]Done.")
	if reply.Lead == nil {
		t.Fatal("expected a parsed lead")
	}
	if reply.Lead.Phone != "+15551234567" {
		t.Errorf("Phone = %q, want the fourth field", reply.Lead.Phone)
	}
}

func TestParseReplyMalformedLead(t *testing.T) {
	// Fewer than four fields is malformed: no lead, no error, marker gone.
	reply := ParseReply("Got it. [LEAD_CAPTURED:Ada,ada@example.com]")
	if reply.Lead != nil {
		t.Errorf("malformed payload produced a lead: %+v", reply.Lead)
	}
	if reply.Text != "Got it." {
		t.Errorf("Text = %q, malformed marker should still be stripped", reply.Text)
	}
}

func TestParseReplyUnterminatedLead(t *testing.T) {
	reply := ParseReply("Sure thing. [LEAD_CAPTURED:Ada,Lovelace")
	if reply.Lead != nil {
		t.Errorf("unterminated marker produced a lead: %+v", reply.Lead)
	}
	if reply.Text != "Sure thing." {
		t.Errorf("Text = %q, want the text before the marker", reply.Text)
	}
}

func TestParseReplyFlagMarkers(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		check func(t *testing.T, reply Reply)
	}{
		{
			name: "escape",
			text: "No problem, we can stop here. [CALLBACK_ESCAPE]",
			check: func(t *testing.T, reply Reply) {
				if !reply.Escape {
					t.Error("Escape not set")
				}
			},
		},
		{
			name: "callback opt in",
			text: "[CALLBACK_OPT_IN] Great, what's your name?",
			check: func(t *testing.T, reply Reply) {
				if !reply.CallbackOptIn {
					t.Error("CallbackOptIn not set")
				}
			},
		},
		{
			name: "handoff offer",
			text: "Would you like to speak with someone on our team? [HANDOFF_OFFER]",
			check: func(t *testing.T, reply Reply) {
				if !reply.OfferedHandoff {
					t.Error("OfferedHandoff not set")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply := ParseReply(tt.text)
			tt.check(t, reply)
			if reply.Lead != nil {
				t.Errorf("unexpected lead: %+v", reply.Lead)
			}
			for _, marker := range []string{MarkerLead, MarkerEscape, MarkerCallbackOptIn, MarkerOffer} {
				if strings.Contains(reply.Text, marker) {
					t.Errorf("Text %q still contains %q", reply.Text, marker)
				}
			}
		})
	}
}
