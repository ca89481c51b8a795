// Package api provides HTTP handlers for visitor-facing endpoints.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/visitly/handoff/internal/models"
)

// sessionRequest is the body for visitor actions keyed by session identity.
type sessionRequest struct {
	SessionID string `json:"session_id"`
}

// decodeSessionRequest parses and validates a session-keyed action body.
func decodeSessionRequest(w http.ResponseWriter, r *http.Request) (sessionRequest, bool) {
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server visitor handler: failed to decode JSON", "error", err, "path", r.URL.Path)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return req, false
	}
	if req.SessionID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("session_id is required"))
		return req, false
	}
	return req, true
}

// requirePost enforces the POST method on an endpoint.
func requirePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server: method not allowed", "method", r.Method, "path", r.URL.Path)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// messageHandler handles POST /messages, one visitor turn over REST.
func (s *Server) messageHandler(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	slog.Debug("Server.messageHandler: processing message", "path", r.URL.Path)

	var msg models.InboundMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		slog.Warn("Server.messageHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if msg.SessionID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("session_id is required"))
		return
	}
	if msg.Body == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("body is required"))
		return
	}

	if err := s.orch.HandleMessage(r.Context(), msg); err != nil {
		slog.Error("Server.messageHandler: message handling failed", "error", err, "sessionID", msg.SessionID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to process message"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(nil))
}

// acceptHandler handles POST /handoff/accept, the visitor accepting an offer.
func (s *Server) acceptHandler(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	req, ok := decodeSessionRequest(w, r)
	if !ok {
		return
	}

	outcome, err := s.orch.AcceptHandoff(r.Context(), req.SessionID)
	if errors.Is(err, models.ErrInvalidTransition) {
		writeJSONResponse(w, http.StatusConflict, models.Error("Already connected to an agent"))
		return
	}
	if err != nil {
		slog.Error("Server.acceptHandler: accept failed", "error", err, "sessionID", req.SessionID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to request handoff"))
		return
	}
	slog.Info("Server.acceptHandler: handoff accepted", "sessionID", req.SessionID, "outcome", outcome)
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"outcome": string(outcome)}))
}

// declineHandler handles POST /handoff/decline, the visitor declining an offer.
func (s *Server) declineHandler(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	req, ok := decodeSessionRequest(w, r)
	if !ok {
		return
	}

	if err := s.orch.DeclineHandoff(r.Context(), req.SessionID); err != nil {
		slog.Error("Server.declineHandler: decline failed", "error", err, "sessionID", req.SessionID)
		writeJSONResponse(w, http.StatusConflict, models.Error("Failed to decline handoff"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(nil))
}

// callbackHandler handles POST /callback, the visitor asking to be called back.
func (s *Server) callbackHandler(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	req, ok := decodeSessionRequest(w, r)
	if !ok {
		return
	}

	if err := s.orch.RequestCallback(r.Context(), req.SessionID); err != nil {
		slog.Error("Server.callbackHandler: callback request failed", "error", err, "sessionID", req.SessionID)
		writeJSONResponse(w, http.StatusConflict, models.Error("Failed to start callback collection"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(nil))
}
