// Package testutil provides common test utilities and helpers for handoff tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/visitly/handoff/internal/coordinator"
	"github.com/visitly/handoff/internal/identity"
	"github.com/visitly/handoff/internal/models"
	"github.com/visitly/handoff/internal/notify"
	"github.com/visitly/handoff/internal/policy"
	"github.com/visitly/handoff/internal/records"
	"github.com/visitly/handoff/internal/responder"
	"github.com/visitly/handoff/internal/session"
	"github.com/visitly/handoff/internal/store"
	"github.com/visitly/handoff/internal/timers"
)

// Stack bundles an in-memory instance of every core component. Tests reach
// into the fields they exercise and ignore the rest.
type Stack struct {
	Store    *store.MemoryStore
	Timers   *timers.Registry
	Sessions *session.Manager
	Policy   *policy.Evaluator
	IDs      *identity.Resolver
	Recorder *records.MemoryRecorder
	Emitter  *CaptureEmitter
	Coord    *coordinator.Coordinator
}

// NewStack creates a fully in-memory component stack with the given
// coordinator timer configuration.
func NewStack(t *testing.T, cfg coordinator.Config) *Stack {
	t.Helper()
	st := store.NewMemoryStore()
	registry := timers.NewRegistry()
	t.Cleanup(registry.Stop)

	sessions := session.NewManager(st)
	ids := identity.NewResolver(st)
	recorder := records.NewMemoryRecorder()
	emitter := NewCaptureEmitter()
	coord := coordinator.New(st, sessions, ids, registry, emitter, notify.NewLogSurface(), recorder, cfg)

	return &Stack{
		Store:    st,
		Timers:   registry,
		Sessions: sessions,
		Policy:   policy.NewEvaluator(sessions, 0),
		IDs:      ids,
		Recorder: recorder,
		Emitter:  emitter,
		Coord:    coord,
	}
}

// CapturedEvent is one event recorded by a CaptureEmitter.
type CapturedEvent struct {
	SessionID string
	Event     string
	Payload   interface{}
}

// CaptureEmitter records emitted events for assertions.
type CaptureEmitter struct {
	mu     sync.Mutex
	events []CapturedEvent
}

// NewCaptureEmitter creates an empty capturing emitter.
func NewCaptureEmitter() *CaptureEmitter {
	return &CaptureEmitter{}
}

// Emit records the event.
func (e *CaptureEmitter) Emit(sessionID, event string, payload interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, CapturedEvent{SessionID: sessionID, Event: event, Payload: payload})
}

// Events returns a copy of everything emitted so far.
func (e *CaptureEmitter) Events() []CapturedEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	events := make([]CapturedEvent, len(e.events))
	copy(events, e.events)
	return events
}

// CountEvent returns how many times a named event was emitted.
func (e *CaptureEmitter) CountEvent(event string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	count := 0
	for _, captured := range e.events {
		if captured.Event == event {
			count++
		}
	}
	return count
}

// ScriptedResponder returns pre-scripted replies in order, cycling the last
// one forever. It implements responder.Responder without network access.
type ScriptedResponder struct {
	mu      sync.Mutex
	replies []responder.Reply
	calls   int
}

// NewScriptedResponder creates a responder that plays back the given replies.
func NewScriptedResponder(replies ...responder.Reply) *ScriptedResponder {
	return &ScriptedResponder{replies: replies}
}

// Generate returns the next scripted reply.
func (r *ScriptedResponder) Generate(ctx context.Context, conv models.Conversation, message string, offerAllowed bool) (responder.Reply, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.replies) == 0 {
		return responder.Reply{Text: "ok"}, nil
	}
	idx := r.calls
	if idx >= len(r.replies) {
		idx = len(r.replies) - 1
	}
	r.calls++
	return r.replies[idx], nil
}

// Calls returns how many turns the responder has answered.
func (r *ScriptedResponder) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t *testing.T, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes JSON response and validates the status field.
func AssertJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}

	if status, ok := response["status"].(string); ok {
		if status != expectedStatus {
			t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
		}
	} else {
		t.Error("response missing or invalid 'status' field")
	}

	return response
}

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
func CreateHTTPRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	var reqBody *bytes.Buffer
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	return req
}
