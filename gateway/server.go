// Package gateway exposes the visualization pipeline over HTTP: render
// submission, render-cache lookup, a websocket stream of state transitions,
// health, and metrics. It renders into headless surfaces; interactive
// clients embed the pipeline directly instead.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/c360/vizflow/errors"
	"github.com/c360/vizflow/health"
	"github.com/c360/vizflow/metric"
	"github.com/c360/vizflow/pipeline"
	"github.com/c360/vizflow/render"
	"github.com/c360/vizflow/types"
)

// Server manages the gateway HTTP server.
type Server struct {
	config     Config
	coord      *pipeline.Coordinator
	registry   *metric.Registry
	monitor    *health.Monitor
	logger     *slog.Logger
	httpServer *http.Server
	mux        *http.ServeMux

	// Lifecycle
	running  bool
	mu       sync.RWMutex
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewServer creates a gateway server over a pipeline coordinator. The metrics
// registry is optional; without it the /metrics route is not registered.
func NewServer(config Config, coord *pipeline.Coordinator, registry *metric.Registry, logger *slog.Logger) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.WrapInvalid(err, "Server", "NewServer", "config validation")
	}

	if coord == nil {
		return nil, errors.WrapFatal(fmt.Errorf("coordinator is nil"), "Server", "NewServer",
			"coordinator is required")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		config:   config,
		coord:    coord,
		registry: registry,
		monitor:  health.NewMonitor(),
		logger:   logger,
		mux:      http.NewServeMux(),
		stopChan: make(chan struct{}),
	}, nil
}

// Setup configures the HTTP server and routes.
func (s *Server) Setup() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("POST /v1/render", s.handleRender)
	s.mux.HandleFunc("GET /v1/render/{fingerprint}", s.handleRenderLookup)
	s.mux.HandleFunc("DELETE /v1/render/{fingerprint}", s.handleRenderEvict)
	s.mux.HandleFunc("GET /v1/events", s.handleEvents)

	if s.registry != nil {
		s.mux.Handle("GET /metrics", s.registry.Handler())
	}

	var handler http.Handler = s.mux
	if s.config.EnableCORS {
		handler = s.corsMiddleware(handler)
	}

	s.httpServer = &http.Server{
		Addr:        s.config.BindAddress,
		Handler:     handler,
		ReadTimeout: 10 * time.Second,
		// Write timeout must exceed the request timeout: render runs block.
		WriteTimeout: s.config.Timeout() + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("gateway configured",
		"address", s.config.BindAddress,
		"timeout", s.config.Timeout())

	return nil
}

// Start starts the HTTP server. The ready channel is closed when the server
// is about to accept connections.
func (s *Server) Start(ctx context.Context, ready chan<- struct{}) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.WrapFatal(errors.ErrInvalidConfig, "Server", "Start", "server already running")
	}
	s.running = true
	server := s.httpServer
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		s.logger.Info("gateway starting", "address", s.config.BindAddress)

		if ready != nil {
			close(ready)
		}

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("gateway server error", "error", err)
			select {
			case errChan <- err:
			case <-ctx.Done():
			case <-s.stopChan:
			}
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("gateway context cancelled, shutting down")
		return s.Stop(30 * time.Second)

	case <-s.stopChan:
		s.logger.Info("gateway stop requested")
		return nil

	case err := <-errChan:
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return errors.WrapFatal(err, "Server", "Start", "HTTP server failed")
	}
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	server := s.httpServer
	s.mu.Unlock()

	s.logger.Info("gateway stopping")

	s.stopOnce.Do(func() {
		close(s.stopChan)
	})

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		s.logger.Error("gateway shutdown failed", "error", err)
		return errors.WrapTransient(err, "Server", "Stop", "graceful shutdown failed")
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info("gateway stopped")
	return nil
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Handler returns the configured route handler for tests and embedding.
func (s *Server) Handler() http.Handler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.httpServer != nil {
		return s.httpServer.Handler
	}
	return s.mux
}

// renderResponse is the body returned by POST /v1/render.
type renderResponse struct {
	Fingerprint string `json:"fingerprint"`
	State       string `json:"state"`
	Reason      string `json:"reason,omitempty"`
	SurfaceID   string `json:"surface_id"`
}

// handleRender runs the full pipeline for a submitted request against a
// fresh headless surface and reports the terminal state.
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	var req types.VisualizationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if err := req.Validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	surface := render.NewOffscreenSurface("gw-"+uuid.NewString(), s.config.SurfaceWidth, s.config.SurfaceHeight)
	inst, err := pipeline.NewInstance(s.coord, surface)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer inst.Close()

	ctx, cancel := context.WithTimeout(r.Context(), s.config.Timeout())
	defer cancel()

	runErr := inst.Show(ctx, req)
	resp := renderResponse{
		Fingerprint: inst.Fingerprint(),
		State:       inst.State().String(),
		SurfaceID:   surface.ID(),
	}

	status := http.StatusOK
	if runErr != nil {
		resp.Reason = errors.Reason(runErr)
		switch {
		case errors.IsInvalid(runErr):
			status = http.StatusUnprocessableEntity
		default:
			status = http.StatusBadGateway
		}
		s.monitor.UpdateDegraded("pipeline", resp.Reason)
	} else {
		s.monitor.UpdateHealthy("pipeline", "last run succeeded")
	}

	s.writeJSON(w, status, resp)
}

// lookupResponse is the body returned by GET /v1/render/{fingerprint}.
type lookupResponse struct {
	Fingerprint   string                     `json:"fingerprint"`
	CompletedAt   time.Time                  `json:"completed_at"`
	SourceRequest types.VisualizationRequest `json:"source_request"`
}

func (s *Server) handleRenderLookup(w http.ResponseWriter, r *http.Request) {
	fp := r.PathValue("fingerprint")
	entry, ok := s.coord.CachedRender(fp)
	if !ok {
		s.writeError(w, http.StatusNotFound, "no cached render for fingerprint")
		return
	}

	s.writeJSON(w, http.StatusOK, lookupResponse{
		Fingerprint:   fp,
		CompletedAt:   entry.CompletedAt,
		SourceRequest: entry.SourceRequest,
	})
}

func (s *Server) handleRenderEvict(w http.ResponseWriter, r *http.Request) {
	fp := r.PathValue("fingerprint")
	if !s.coord.EvictRender(fp) {
		s.writeError(w, http.StatusNotFound, "no cached render for fingerprint")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	running := s.running
	s.mu.RUnlock()

	if running {
		s.monitor.UpdateHealthy("gateway", "listening")
	} else {
		s.monitor.UpdateUnhealthy("gateway", "not started")
	}

	agg := s.monitor.AggregateHealth("vizflow")
	status := http.StatusOK
	if agg.IsUnhealthy() {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, agg)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("response encode failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// corsMiddleware adds CORS headers to responses.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		allowed := false
		for _, allowedOrigin := range s.config.CORSOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
			} else {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "3600")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
