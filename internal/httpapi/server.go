// Package httpapi exposes the orchestrator over HTTP under /api/v1. Handlers
// translate between JSON and the core components; only this layer maps fault
// kinds to status codes.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/swarmd/internal/agent"
	"github.com/nextlevelbuilder/swarmd/internal/broker"
	"github.com/nextlevelbuilder/swarmd/internal/config"
	"github.com/nextlevelbuilder/swarmd/internal/fault"
	"github.com/nextlevelbuilder/swarmd/internal/models"
	"github.com/nextlevelbuilder/swarmd/internal/scheduler"
	"github.com/nextlevelbuilder/swarmd/internal/store"
	"github.com/nextlevelbuilder/swarmd/internal/tools"
)

// Server is the HTTP gateway.
type Server struct {
	cfg     config.GatewayConfig
	manager *agent.Manager
	sched   *scheduler.Scheduler
	bus     *broker.Broker
	router  *models.Router
	toolset *tools.Registry
	stores  store.Stores
	events  *broker.EventBus

	httpSrv *http.Server

	limMu    sync.Mutex
	limiters map[string]*rate.Limiter
}

// New wires the gateway. events may be nil to disable the WebSocket stream.
func New(cfg config.GatewayConfig, manager *agent.Manager, sched *scheduler.Scheduler, bus *broker.Broker, router *models.Router, toolset *tools.Registry, stores store.Stores, events *broker.EventBus) *Server {
	return &Server{
		cfg:      cfg,
		manager:  manager,
		sched:    sched,
		bus:      bus,
		router:   router,
		toolset:  toolset,
		stores:   stores,
		events:   events,
		limiters: make(map[string]*rate.Limiter),
	}
}

// BuildMux registers every route.
func (s *Server) BuildMux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/{$}", s.wrap(s.handleRoot))
	mux.HandleFunc("GET /api/v1/tools", s.wrap(s.handleListTools))

	mux.HandleFunc("POST /api/v1/agents", s.wrap(s.handleCreateAgent))
	mux.HandleFunc("GET /api/v1/agents", s.wrap(s.handleListAgents))
	mux.HandleFunc("GET /api/v1/agents/{id}", s.wrap(s.handleGetAgent))
	mux.HandleFunc("DELETE /api/v1/agents/{id}", s.wrap(s.handleDeleteAgent))
	mux.HandleFunc("POST /api/v1/agents/{id}/start", s.wrap(s.handleStartAgent))
	mux.HandleFunc("POST /api/v1/agents/{id}/stop", s.wrap(s.handleStopAgent))
	mux.HandleFunc("GET /api/v1/agents/{id}/status", s.wrap(s.handleAgentStatus))
	mux.HandleFunc("POST /api/v1/agents/{id}/think", s.wrap(s.handleThink))
	mux.HandleFunc("POST /api/v1/agents/{id}/message", s.wrap(s.handleMessageAgent))
	mux.HandleFunc("GET /api/v1/agents/{id}/messages", s.wrap(s.handleAgentMessages))
	mux.HandleFunc("POST /api/v1/broadcast", s.wrap(s.handleBroadcast))

	mux.HandleFunc("POST /api/v1/tasks", s.wrap(s.handleCreateTask))
	mux.HandleFunc("GET /api/v1/tasks", s.wrap(s.handleListTasks))
	mux.HandleFunc("GET /api/v1/tasks/{id}", s.wrap(s.handleGetTask))
	mux.HandleFunc("POST /api/v1/tasks/{id}/assign/{agent_id}", s.wrap(s.handleAssignTask))
	mux.HandleFunc("POST /api/v1/tasks/{id}/complete", s.wrap(s.handleCompleteTask))
	mux.HandleFunc("POST /api/v1/tasks/{id}/breakdown", s.wrap(s.handleBreakDownTask))
	mux.HandleFunc("PUT /api/v1/tasks/{id}/dependencies", s.wrap(s.handleSetDependencies))

	mux.HandleFunc("GET /api/v1/conversations/{id}/history", s.wrap(s.handleConversationHistory))

	mux.HandleFunc("GET /api/v1/system/stats", s.wrap(s.handleStats))
	mux.HandleFunc("GET /api/v1/system/health", s.wrap(s.handleHealth))

	mux.HandleFunc("POST /api/v1/workshop/create", s.wrap(s.handleWorkshopCreate))

	mux.HandleFunc("GET /api/v1/events", s.wrap(s.handleEvents))

	return mux
}

// Start begins serving and blocks until the listener fails or Shutdown runs.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", s.cfg.Port))
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.BuildMux(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("gateway listening", "addr", addr)
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// wrap applies bearer auth and per-client rate limiting.
func (s *Server) wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Token != "" && extractBearerToken(r) != s.cfg.Token {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		if !s.allow(r) {
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
			return
		}
		next(w, r)
	}
}

func (s *Server) allow(r *http.Request) bool {
	if s.cfg.RateLimitRPS <= 0 {
		return true
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	s.limMu.Lock()
	lim, ok := s.limiters[host]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(s.cfg.RateLimitRPS), int(s.cfg.RateLimitRPS)+1)
		s.limiters[host] = lim
	}
	s.limMu.Unlock()
	return lim.Allow()
}

func extractBearerToken(r *http.Request) string {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		return auth[len(prefix):]
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			slog.Warn("response encode failed", "error", err)
		}
	}
}

// writeError maps fault kinds to status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch fault.KindOf(err) {
	case fault.Validation:
		status = http.StatusBadRequest
	case fault.NotFound:
		status = http.StatusNotFound
	case fault.Conflict:
		status = http.StatusConflict
	case fault.BackendUnavailable, fault.Transient:
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		slog.Error("internal error", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
