// Package responder generates automated replies and extracts the structured
// markers the orchestrator acts on.
//
// The orchestrator never interprets reply text; it only scans for out-of-band
// markers. A malformed lead marker payload is treated as "no lead captured",
// never as an error.
package responder

import (
	"log/slog"
	"strings"

	"github.com/visitly/handoff/internal/models"
)

// Marker tokens embedded by the responder in reply text.
const (
	// MarkerLead carries the four ordered contact fields once all are collected.
	MarkerLead = "[LEAD_CAPTURED:"
	// MarkerEscape means the visitor refuses to continue providing details.
	MarkerEscape = "[CALLBACK_ESCAPE]"
	// MarkerCallbackOptIn means the visitor agreed to leave contact details.
	MarkerCallbackOptIn = "[CALLBACK_OPT_IN]"
	// MarkerOffer means the reply contains a handoff offer to the visitor.
	MarkerOffer = "[HANDOFF_OFFER]"
)

// leadFieldCount is the number of ordered fields a lead marker must carry:
// first name, last name, email, phone.
const leadFieldCount = 4

// Reply is one generated turn with its markers stripped out of the text.
type Reply struct {
	Text           string
	Lead           *models.Lead
	Escape         bool
	CallbackOptIn  bool
	OfferedHandoff bool
}

// ParseReply scans generated text for markers and returns the cleaned reply.
func ParseReply(text string) Reply {
	reply := Reply{}

	if lead, remainder, found := extractLead(text); found {
		reply.Lead = lead
		text = remainder
	}
	if strings.Contains(text, MarkerEscape) {
		reply.Escape = true
		text = strings.ReplaceAll(text, MarkerEscape, "")
	}
	if strings.Contains(text, MarkerCallbackOptIn) {
		reply.CallbackOptIn = true
		text = strings.ReplaceAll(text, MarkerCallbackOptIn, "")
	}
	if strings.Contains(text, MarkerOffer) {
		reply.OfferedHandoff = true
		text = strings.ReplaceAll(text, MarkerOffer, "")
	}

	reply.Text = strings.TrimSpace(text)
	return reply
}

// extractLead pulls a lead marker out of the text. Payloads with fewer than
// four comma-separated fields are malformed and yield no lead; the marker is
// still stripped from the text.
func extractLead(text string) (*models.Lead, string, bool) {
	start := strings.Index(text, MarkerLead)
	if start < 0 {
		return nil, text, false
	}
	end := strings.Index(text[start:], "]")
	if end < 0 {
		// Unterminated marker: strip the rest of the line and treat as absent.
		slog.Warn("Responder lead marker unterminated, treating as no lead")
		return nil, text[:start], true
	}
	end += start

	payload := text[start+len(MarkerLead) : end]
	remainder := text[:start] + text[end+1:]

	fields := strings.Split(payload, ",")
	if len(fields) < leadFieldCount {
		slog.Warn("Responder lead marker malformed, treating as no lead", "fields", len(fields))
		return nil, remainder, true
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	lead := &models.Lead{
		FirstName: fields[0],
		LastName:  fields[1],
		Email:     fields[2],
		Phone:     fields[3],
	}
	slog.Debug("Responder lead marker parsed", "email_set", lead.Email != "")
	return lead, remainder, true
}
