// Package api provides HTTP handlers and the main API server logic for the
// handoff orchestrator.
//
// It exposes the visitor websocket endpoint, REST fallbacks for visitor
// actions, and the agent claim/message/end surface. The API integrates with
// the orchestrator, coordinator, transport, and records modules.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/visitly/handoff/internal/coordinator"
	"github.com/visitly/handoff/internal/orchestrator"
	"github.com/visitly/handoff/internal/records"
	"github.com/visitly/handoff/internal/transport"
)

// defaultAddr is the listen address used when none is configured.
const defaultAddr = ":8080"

// Opts holds configuration options for the API server.
type Opts struct {
	Addr string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the HTTP listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// Server wires HTTP routes to the orchestrator and coordinator.
type Server struct {
	orch     *orchestrator.Orchestrator
	coord    *coordinator.Coordinator
	hub      *transport.Hub
	recorder records.Recorder

	httpServer *http.Server
}

// NewServer creates an API server over the given components.
func NewServer(orch *orchestrator.Orchestrator, coord *coordinator.Coordinator,
	hub *transport.Hub, recorder records.Recorder, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = defaultAddr
	}

	s := &Server{orch: orch, coord: coord, hub: hub, recorder: recorder}
	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	slog.Debug("Creating API Server", "addr", cfg.Addr)
	return s
}

// routes builds the endpoint mux.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	// Visitor surface. The websocket is the primary channel; the REST
	// endpoints mirror it for clients that cannot hold a socket open.
	mux.HandleFunc("/ws", s.hub.ServeWS)
	mux.HandleFunc("/messages", s.messageHandler)
	mux.HandleFunc("/handoff/accept", s.acceptHandler)
	mux.HandleFunc("/handoff/decline", s.declineHandler)
	mux.HandleFunc("/callback", s.callbackHandler)

	// Agent surface.
	mux.HandleFunc("/agent/claim", s.claimHandler)
	mux.HandleFunc("/agent/message", s.agentMessageHandler)
	mux.HandleFunc("/agent/end", s.endHandler)

	// Records and operations.
	mux.HandleFunc("/leads", s.leadsHandler)
	mux.HandleFunc("/transcripts", s.transcriptHandler)
	mux.HandleFunc("/health", s.healthHandler)

	return mux
}

// Start runs the HTTP server until it fails or Shutdown is called.
func (s *Server) Start() error {
	slog.Info("API server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("API server shutting down")
	return s.httpServer.Shutdown(ctx)
}

// healthHandler reports process liveness.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}
