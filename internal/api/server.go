package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"mercato/internal/adapters/config"
	"mercato/internal/agents"
	"mercato/internal/domain/product"
	"mercato/internal/domain/request"
	"mercato/internal/events"
	"mercato/internal/services/negotiation"
	"mercato/pkg/errors"
	"mercato/pkg/logger"
)

// Server exposes the negotiation engine over HTTP: a synchronous
// run-negotiation endpoint, a liveness probe and a websocket event stream
type Server struct {
	httpServer   *http.Server
	orchestrator *negotiation.Orchestrator
	bus          *events.Broadcaster
	limiter      *rate.Limiter
	slots        chan struct{}
	draining     atomic.Bool
	log          *logger.Logger
}

// NewServer creates and configures the HTTP server with all routes
func NewServer(cfg config.APIConfig, engine config.EngineConfig, orchestrator *negotiation.Orchestrator, bus *events.Broadcaster) *Server {
	s := &Server{
		orchestrator: orchestrator,
		bus:          bus,
		limiter:      rate.NewLimiter(rate.Limit(engine.StartRate), engine.StartBurst),
		slots:        make(chan struct{}, engine.MaxConcurrent),
		log:          logger.Get().With("component", "api"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/negotiations", s.handleNegotiate)
	mux.HandleFunc("GET /api/negotiations/{id}", s.handleSession)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Start begins listening; it blocks until the server is stopped
func (s *Server) Start() error {
	s.log.Infof("HTTP server listening on %s", s.httpServer.Addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "http server failed")
	}
	return nil
}

// Shutdown stops accepting new negotiations and drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	s.draining.Store(true)
	return s.httpServer.Shutdown(ctx)
}

// negotiateRequest is the run-negotiation payload
type negotiateRequest struct {
	Request          *request.BuyerRequest `json:"request"`
	Product          *product.B2BProduct   `json:"product"`
	BuyerStrategy    agents.Strategy       `json:"buyer_strategy"`
	SupplierStrategy agents.Strategy       `json:"supplier_strategy"`
	Priority         int                   `json:"priority"`
}

func (s *Server) handleNegotiate(w http.ResponseWriter, r *http.Request) {
	if s.draining.Load() {
		s.writeError(w, http.StatusServiceUnavailable, errors.ErrUnavailable.Error())
		return
	}

	if !s.limiter.Allow() {
		s.writeError(w, http.StatusTooManyRequests, "session start rate exceeded")
		return
	}

	select {
	case s.slots <- struct{}{}:
		defer func() { <-s.slots }()
	default:
		s.writeError(w, http.StatusTooManyRequests, errors.ErrTooManySessions.Error())
		return
	}

	var payload negotiateRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid payload: %v", err))
		return
	}

	result, err := s.orchestrator.Run(r.Context(), negotiation.Params{
		Request:          payload.Request,
		Product:          payload.Product,
		BuyerStrategy:    payload.BuyerStrategy,
		SupplierStrategy: payload.SupplierStrategy,
		Priority:         payload.Priority,
	})
	if err != nil {
		if errors.Is(err, errors.ErrInvalidInput) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.log.Errorw("negotiation run failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

// handleSession reports the live state of a running session. Finished
// sessions are not retained, so the endpoint distinguishes a session that
// never existed from one that just reached a terminal state.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid session id: %v", err))
		return
	}

	sess, err := s.orchestrator.Session(id)
	if err != nil {
		if errors.Is(err, errors.ErrSessionClosed) {
			s.writeError(w, http.StatusGone, err.Error())
			return
		}
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "ok",
		"active_sessions": s.orchestrator.ActiveSessions(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warnw("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
