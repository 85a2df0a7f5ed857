package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/vectorquant/strategy-engine/internal/backtest"
	"github.com/vectorquant/strategy-engine/internal/config"
	"github.com/vectorquant/strategy-engine/internal/session"
	"github.com/vectorquant/strategy-engine/internal/simulator"
)

// ownerHeader carries the caller identity. Authentication proper is
// handled upstream; the engine only scopes data by owner.
const ownerHeader = "X-Owner-ID"

// Server is the HTTP/WebSocket API server. Handlers decode, delegate
// to the runner or session manager, and encode; all domain rules live
// below this layer.
type Server struct {
	mu         sync.RWMutex
	logger     *zap.Logger
	config     config.ServerConfig
	router     *mux.Router
	httpServer *http.Server
	upgrader   websocket.Upgrader

	runner   *backtest.Runner
	sessions *session.Manager
	hub      *Hub
	registry *prometheus.Registry
}

// NewServer creates the API server. registry may be nil to disable the
// metrics endpoint.
func NewServer(
	logger *zap.Logger,
	cfg config.ServerConfig,
	runner *backtest.Runner,
	sessions *session.Manager,
	hub *Hub,
	registry *prometheus.Registry,
) *Server {
	s := &Server{
		logger:   logger.Named("api"),
		config:   cfg,
		router:   mux.NewRouter(),
		runner:   runner,
		sessions: sessions,
		hub:      hub,
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	s.setupRoutes()
	return s
}

// Router exposes the mux router, mainly for tests.
func (s *Server) Router() *mux.Router { return s.router }

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/api/v1/health", s.handleHealth).Methods("GET")

	s.router.HandleFunc("/api/v1/backtest", s.handleRunBacktest).Methods("POST")
	s.router.HandleFunc("/api/v1/backtest/batch", s.handleRunBatch).Methods("POST")

	s.router.HandleFunc("/api/v1/sessions", s.handleStartSession).Methods("POST")
	s.router.HandleFunc("/api/v1/sessions/{id}", s.handleGetSession).Methods("GET")
	s.router.HandleFunc("/api/v1/sessions/{id}/pause", s.handlePauseSession).Methods("POST")
	s.router.HandleFunc("/api/v1/sessions/{id}/resume", s.handleResumeSession).Methods("POST")
	s.router.HandleFunc("/api/v1/sessions/{id}/stop", s.handleStopSession).Methods("POST")

	if s.registry != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}

	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// Start runs the HTTP server until Stop or a listener error.
func (s *Server) Start() error {
	handler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(s.router)

	s.mu.Lock()
	s.httpServer = &http.Server{
		Addr:         s.config.Addr(),
		Handler:      handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	s.mu.Unlock()

	s.logger.Info("starting API server", zap.String("addr", s.config.Addr()))
	return s.httpServer.ListenAndServe()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.RLock()
	srv := s.httpServer
	s.mu.RUnlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

func (s *Server) handleRunBacktest(w http.ResponseWriter, r *http.Request) {
	var req backtest.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.runner.Run(r.Context(), &req)
	if err != nil {
		s.writeError(w, statusFor(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleRunBatch(w http.ResponseWriter, r *http.Request) {
	var reqs []*backtest.Request
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	items := s.runner.RunBatch(r.Context(), reqs)

	type batchEntry struct {
		Result *backtest.Result `json:"result,omitempty"`
		Error  string           `json:"error,omitempty"`
	}
	out := make([]batchEntry, len(items))
	for i, item := range items {
		out[i].Result = item.Result
		if item.Err != nil {
			out[i].Error = item.Err.Error()
		}
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var params session.StartParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if owner := r.Header.Get(ownerHeader); owner != "" {
		params.OwnerID = owner
	}
	if params.OwnerID == "" {
		s.writeError(w, http.StatusBadRequest, "owner id is required")
		return
	}

	sess, err := s.sessions.Start(r.Context(), params)
	if err != nil {
		s.writeError(w, statusFor(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	sess, err := s.sessions.Get(id, r.Header.Get(ownerHeader))
	if err != nil {
		s.writeError(w, statusFor(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handlePauseSession(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.sessions.Pause)
}

func (s *Server) handleResumeSession(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.sessions.Resume)
}

func (s *Server) handleStopSession(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.sessions.Stop)
}

func (s *Server) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id, ownerID string) error) {
	id := mux.Vars(r)["id"]
	if err := fn(r.Context(), id, r.Header.Get(ownerHeader)); err != nil {
		s.writeError(w, statusFor(err), err.Error())
		return
	}
	sess, err := s.sessions.Get(id, r.Header.Get(ownerHeader))
	if err != nil {
		s.writeError(w, statusFor(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(uuid.New().String(), s.hub, conn)
	s.hub.register <- client

	go client.WritePump()
	go client.ReadPump()
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var transErr *session.StateTransitionError
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, session.ErrActiveSessionExists):
		return http.StatusConflict
	case errors.As(err, &transErr):
		return http.StatusConflict
	}

	var invErr *simulator.InvariantError
	if errors.As(err, &invErr) {
		return http.StatusInternalServerError
	}
	return http.StatusBadRequest
}
