// Package api provides HTTP handlers for agent-facing endpoints.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/visitly/handoff/internal/models"
)

// claimRequest is the body for POST /agent/claim. VisitorID may carry either
// a durable visitor identity or a legacy session identity; the coordinator
// reconciles the two.
type claimRequest struct {
	VisitorID string `json:"visitor_id"`
	AgentID   string `json:"agent_id"`
	AgentName string `json:"agent_name"`
}

// agentMessageRequest is the body for POST /agent/message.
type agentMessageRequest struct {
	VisitorID string `json:"visitor_id"`
	Body      string `json:"body"`
}

// endRequest is the body for POST /agent/end.
type endRequest struct {
	VisitorID string `json:"visitor_id"`
}

// claimHandler handles POST /agent/claim. Exactly one agent wins a pending
// request; losers get 409 with the winner's identity so their console can
// show who is already talking to the visitor.
func (s *Server) claimHandler(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	slog.Debug("Server.claimHandler: processing claim", "path", r.URL.Path)

	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.claimHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.VisitorID == "" || req.AgentID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("visitor_id and agent_id are required"))
		return
	}

	conn, err := s.coord.Claim(r.Context(), req.VisitorID, req.AgentID, req.AgentName)
	switch {
	case errors.Is(err, models.ErrAlreadyClaimed):
		slog.Info("Server.claimHandler: claim lost", "visitorID", req.VisitorID, "agentID", req.AgentID)
		writeJSONResponse(w, http.StatusConflict, models.APIResponse{
			Status:  string(models.APIStatusError),
			Message: "Visitor already claimed by another agent",
			Result:  conn,
		})
		return
	case errors.Is(err, models.ErrNotFound):
		writeJSONResponse(w, http.StatusNotFound, models.Error("No pending handoff request for visitor"))
		return
	case err != nil:
		slog.Error("Server.claimHandler: claim failed", "error", err, "visitorID", req.VisitorID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to claim visitor"))
		return
	}

	slog.Info("Server.claimHandler: claim succeeded", "visitorID", conn.VisitorID, "agentID", req.AgentID)
	writeJSONResponse(w, http.StatusOK, models.Success(conn))
}

// agentMessageHandler handles POST /agent/message, relaying an agent's text
// to the connected visitor.
func (s *Server) agentMessageHandler(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}

	var req agentMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.agentMessageHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.VisitorID == "" || req.Body == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("visitor_id and body are required"))
		return
	}

	if err := s.coord.AgentMessage(r.Context(), req.VisitorID, req.Body); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			writeJSONResponse(w, http.StatusNotFound, models.Error("No active connection for visitor"))
			return
		}
		slog.Error("Server.agentMessageHandler: relay failed", "error", err, "visitorID", req.VisitorID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to relay message"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(nil))
}

// endHandler handles POST /agent/end, the agent ending a live conversation.
func (s *Server) endHandler(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}

	var req endRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.endHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.VisitorID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("visitor_id is required"))
		return
	}

	if err := s.coord.EndByAgent(r.Context(), req.VisitorID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			writeJSONResponse(w, http.StatusNotFound, models.Error("No active connection for visitor"))
			return
		}
		slog.Error("Server.endHandler: end failed", "error", err, "visitorID", req.VisitorID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to end conversation"))
		return
	}
	slog.Info("Server.endHandler: conversation ended", "visitorID", req.VisitorID)
	writeJSONResponse(w, http.StatusOK, models.Success(nil))
}

// leadsHandler handles GET /leads, returning all captured leads.
func (s *Server) leadsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	leads, err := s.recorder.GetLeads(r.Context())
	if err != nil {
		slog.Error("Server.leadsHandler: lead fetch failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch leads"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(leads))
}

// transcriptHandler handles GET /transcripts?visitor_id=..., returning one
// visitor's conversation log for the agent console.
func (s *Server) transcriptHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	visitorID := r.URL.Query().Get("visitor_id")
	if visitorID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("visitor_id is required"))
		return
	}

	entries, err := s.recorder.GetTranscript(r.Context(), visitorID)
	if err != nil {
		slog.Error("Server.transcriptHandler: transcript fetch failed", "error", err, "visitorID", visitorID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch transcript"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(entries))
}
