package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/visitly/handoff/internal/coordinator"
	"github.com/visitly/handoff/internal/models"
	"github.com/visitly/handoff/internal/orchestrator"
	"github.com/visitly/handoff/internal/policy"
	"github.com/visitly/handoff/internal/responder"
	"github.com/visitly/handoff/internal/testutil"
	"github.com/visitly/handoff/internal/transport"
)

// testServer wires a Server over a fully in-memory stack.
func testServer(t *testing.T, replies ...responder.Reply) (*Server, *testutil.Stack) {
	t.Helper()
	stack := testutil.NewStack(t, coordinator.Config{})
	hours := policy.Hours{StartHour: 0, EndHour: 24, Location: time.UTC}
	orch := orchestrator.New(stack.IDs, stack.Sessions, stack.Policy, stack.Coord,
		testutil.NewScriptedResponder(replies...), stack.Recorder, stack.Emitter, hours)
	// Staffed-hours tests pin the clock to a weekday.
	orch.SetClock(func() time.Time { return time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC) })
	server := NewServer(orch, stack.Coord, transport.NewHub(orch), stack.Recorder)
	return server, stack
}

func serve(t *testing.T, s *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	s.routes().ServeHTTP(rr, req)
	return rr
}

func TestMessageEndpoint(t *testing.T) {
	server, stack := testServer(t, responder.Reply{Text: "Happy to help."})

	req := testutil.CreateHTTPRequest(t, http.MethodPost, "/messages",
		map[string]string{"session_id": "s1", "body": "hi"})
	rr := serve(t, server, req)

	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "POST /messages")
	testutil.AssertJSONResponse(t, rr, "ok")
	if stack.Emitter.CountEvent(models.EventBotMessage) != 1 {
		t.Error("message turn should emit a bot reply")
	}
}

func TestMessageEndpointValidation(t *testing.T) {
	server, _ := testServer(t)

	tests := []struct {
		name string
		body interface{}
		want int
	}{
		{"missing session", map[string]string{"body": "hi"}, http.StatusBadRequest},
		{"missing body", map[string]string{"session_id": "s1"}, http.StatusBadRequest},
		{"malformed json", nil, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req *http.Request
			if tt.body == nil {
				req = testutil.CreateHTTPRequest(t, http.MethodPost, "/messages", nil)
			} else {
				req = testutil.CreateHTTPRequest(t, http.MethodPost, "/messages", tt.body)
			}
			rr := serve(t, server, req)
			testutil.AssertHTTPStatus(t, tt.want, rr.Code, tt.name)
		})
	}

	req := testutil.CreateHTTPRequest(t, http.MethodGet, "/messages", nil)
	rr := serve(t, server, req)
	testutil.AssertHTTPStatus(t, http.StatusMethodNotAllowed, rr.Code, "GET /messages")
}

func TestAcceptEndpointReportsOutcome(t *testing.T) {
	server, _ := testServer(t)

	req := testutil.CreateHTTPRequest(t, http.MethodPost, "/handoff/accept",
		map[string]string{"session_id": "s1"})
	rr := serve(t, server, req)

	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "POST /handoff/accept")
	response := testutil.AssertJSONResponse(t, rr, "ok")
	result, _ := response["result"].(map[string]interface{})
	if outcome, _ := result["outcome"].(string); outcome != "requested" {
		t.Errorf("outcome = %q, want requested", outcome)
	}

	// Accepting again while the request waits reports pending.
	req = testutil.CreateHTTPRequest(t, http.MethodPost, "/handoff/accept",
		map[string]string{"session_id": "s1"})
	rr = serve(t, server, req)
	response = testutil.AssertJSONResponse(t, rr, "ok")
	result, _ = response["result"].(map[string]interface{})
	if outcome, _ := result["outcome"].(string); outcome != "pending" {
		t.Errorf("repeat outcome = %q, want pending", outcome)
	}
}

func TestDeclineEndpointMovesToLeadCapture(t *testing.T) {
	server, stack := testServer(t)

	req := testutil.CreateHTTPRequest(t, http.MethodPost, "/handoff/decline",
		map[string]string{"session_id": "s1"})
	rr := serve(t, server, req)

	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "POST /handoff/decline")
	visitorID, _ := stack.IDs.Resolve(context.Background(), "s1")
	conv, _ := stack.Sessions.State(context.Background(), visitorID)
	if conv.State != models.StateLeadCapture {
		t.Errorf("state = %q, want LEAD_CAPTURE", conv.State)
	}
}

func TestAcceptEndpointConflictWhileConnected(t *testing.T) {
	server, stack := testServer(t)
	ctx := context.Background()

	req := testutil.CreateHTTPRequest(t, http.MethodPost, "/handoff/accept",
		map[string]string{"session_id": "s1"})
	serve(t, server, req)
	visitorID, _ := stack.IDs.Resolve(ctx, "s1")
	if _, err := stack.Coord.Claim(ctx, visitorID, "a1", "Dana"); err != nil {
		t.Fatalf("Claim error: %v", err)
	}

	// Accepting again mid-conversation conflicts instead of re-publishing.
	req = testutil.CreateHTTPRequest(t, http.MethodPost, "/handoff/accept",
		map[string]string{"session_id": "s1"})
	rr := serve(t, server, req)
	testutil.AssertHTTPStatus(t, http.StatusConflict, rr.Code, "accept while connected")
	testutil.AssertJSONResponse(t, rr, "error")
}

func TestClaimEndpointWinnerAndLoser(t *testing.T) {
	server, stack := testServer(t)

	req := testutil.CreateHTTPRequest(t, http.MethodPost, "/handoff/accept",
		map[string]string{"session_id": "s1"})
	serve(t, server, req)
	visitorID, _ := stack.IDs.Resolve(context.Background(), "s1")

	req = testutil.CreateHTTPRequest(t, http.MethodPost, "/agent/claim",
		map[string]string{"visitor_id": visitorID, "agent_id": "a1", "agent_name": "Dana"})
	rr := serve(t, server, req)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "winning claim")
	testutil.AssertJSONResponse(t, rr, "ok")

	// A second claim loses with 409 and learns who holds the connection.
	req = testutil.CreateHTTPRequest(t, http.MethodPost, "/agent/claim",
		map[string]string{"visitor_id": visitorID, "agent_id": "a2", "agent_name": "Robin"})
	rr = serve(t, server, req)
	testutil.AssertHTTPStatus(t, http.StatusConflict, rr.Code, "losing claim")
	response := testutil.AssertJSONResponse(t, rr, "error")
	result, _ := response["result"].(map[string]interface{})
	if agentID, _ := result["agent_id"].(string); agentID != "a1" {
		t.Errorf("losing claim result agent = %q, want the winner a1", agentID)
	}

	conn, _ := stack.Store.GetConnection(context.Background(), visitorID)
	if conn == nil || conn.AgentID != "a1" {
		t.Errorf("stored connection = %+v, want winner a1", conn)
	}
}

func TestClaimEndpointNoPendingRequest(t *testing.T) {
	server, _ := testServer(t)

	req := testutil.CreateHTTPRequest(t, http.MethodPost, "/agent/claim",
		map[string]string{"visitor_id": "ghost", "agent_id": "a1"})
	rr := serve(t, server, req)
	testutil.AssertHTTPStatus(t, http.StatusNotFound, rr.Code, "claim with nothing waiting")
}

func TestAgentMessageAndEndEndpoints(t *testing.T) {
	server, stack := testServer(t)

	req := testutil.CreateHTTPRequest(t, http.MethodPost, "/handoff/accept",
		map[string]string{"session_id": "s1"})
	serve(t, server, req)
	visitorID, _ := stack.IDs.Resolve(context.Background(), "s1")
	req = testutil.CreateHTTPRequest(t, http.MethodPost, "/agent/claim",
		map[string]string{"visitor_id": visitorID, "agent_id": "a1", "agent_name": "Dana"})
	serve(t, server, req)

	req = testutil.CreateHTTPRequest(t, http.MethodPost, "/agent/message",
		map[string]string{"visitor_id": visitorID, "body": "Hi, this is Dana."})
	rr := serve(t, server, req)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "POST /agent/message")
	if stack.Emitter.CountEvent(models.EventAgentMessage) != 1 {
		t.Error("agent message not delivered to the visitor")
	}

	req = testutil.CreateHTTPRequest(t, http.MethodPost, "/agent/end",
		map[string]string{"visitor_id": visitorID})
	rr = serve(t, server, req)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "POST /agent/end")

	// The connection is gone; another message 404s.
	req = testutil.CreateHTTPRequest(t, http.MethodPost, "/agent/message",
		map[string]string{"visitor_id": visitorID, "body": "still there?"})
	rr = serve(t, server, req)
	testutil.AssertHTTPStatus(t, http.StatusNotFound, rr.Code, "message after end")
}

func TestLeadsAndTranscriptEndpoints(t *testing.T) {
	server, stack := testServer(t)
	ctx := context.Background()

	if err := stack.Recorder.AddLead(ctx, models.Lead{VisitorID: "v1", Email: "ada@example.com"}); err != nil {
		t.Fatalf("AddLead error: %v", err)
	}
	if err := stack.Recorder.AddTranscript(ctx, models.TranscriptEntry{VisitorID: "v1", Role: models.RoleVisitor, Body: "hi"}); err != nil {
		t.Fatalf("AddTranscript error: %v", err)
	}

	rr := serve(t, server, testutil.CreateHTTPRequest(t, http.MethodGet, "/leads", nil))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "GET /leads")
	response := testutil.AssertJSONResponse(t, rr, "ok")
	if leads, _ := response["result"].([]interface{}); len(leads) != 1 {
		t.Errorf("leads result = %v, want one lead", response["result"])
	}

	rr = serve(t, server, testutil.CreateHTTPRequest(t, http.MethodGet, "/transcripts?visitor_id=v1", nil))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "GET /transcripts")

	rr = serve(t, server, testutil.CreateHTTPRequest(t, http.MethodGet, "/transcripts", nil))
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "GET /transcripts without visitor_id")
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := testServer(t)

	rr := serve(t, server, testutil.CreateHTTPRequest(t, http.MethodGet, "/health", nil))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "GET /health")
}
