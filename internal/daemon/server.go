package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/Nomadcxx/embress/internal/coordinator"
	"github.com/Nomadcxx/embress/internal/logging"
	"github.com/Nomadcxx/embress/internal/metrics"
	"github.com/Nomadcxx/embress/internal/transfer"
)

// Server serves health, readiness, Prometheus metrics and the API on one
// listener.
type Server struct {
	httpServer *http.Server
	coord      *coordinator.Coordinator
	metrics    *metrics.Metrics
	root       string
	fsTimeout  time.Duration
	startTime  time.Time
	mu         sync.RWMutex
	healthy    bool
	logger     *logging.Logger
}

type HealthResponse struct {
	Status    string                       `json:"status"`
	Uptime    string                       `json:"uptime"`
	Timestamp time.Time                    `json:"timestamp"`
	State     coordinator.State            `json:"state"`
	Scheduler *coordinator.SchedulerStatus `json:"scheduler,omitempty"`
}

type ReadyResponse struct {
	Ready bool                 `json:"ready"`
	Disk  *transfer.DiskHealth `json:"disk,omitempty"`
}

// ServerConfig configures a Server. API is mounted at the root when set.
type ServerConfig struct {
	Addr        string
	Coordinator *coordinator.Coordinator
	Metrics     *metrics.Metrics
	API         http.Handler
	FSTimeout   time.Duration
	Logger      *logging.Logger
}

func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	s := &Server{
		coord:     cfg.Coordinator,
		metrics:   cfg.Metrics,
		root:      cfg.Coordinator.Root(),
		fsTimeout: cfg.FSTimeout,
		startTime: time.Now(),
		healthy:   true,
		logger:    logger,
	}
	if s.fsTimeout <= 0 {
		s.fsTimeout = 5 * time.Second
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	if cfg.Metrics != nil {
		mux.Handle("/metrics", cfg.Metrics.Handler())
	}
	if cfg.API != nil {
		mux.Handle("/", cfg.API)
	}

	// Scans run synchronously inside API requests, so there is no write timeout.
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s
}

// Handler returns the server's mux.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) Start() error {
	s.logger.Info("server", "HTTP server starting", logging.F("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server error: %w", err)
	}
	return nil
}

// Serve accepts connections on l.
func (s *Server) Serve(l net.Listener) error {
	if err := s.httpServer.Serve(l); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server error: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) SetHealthy(healthy bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthy = healthy
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	healthy := s.healthy
	s.mu.RUnlock()

	response := HealthResponse{
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Timestamp: time.Now(),
		State:     coordinator.StateIdle,
	}
	if s.coord.Busy() {
		response.State = coordinator.StateRunning
	}

	// Check scheduler health too
	schedulerHealthy := true
	if st, err := s.coord.Status(r.Context()); err == nil && st.Scheduler != nil {
		response.Scheduler = st.Scheduler
		schedulerHealthy = st.Scheduler.Healthy
	}

	w.Header().Set("Content-Type", "application/json")
	switch {
	case healthy && schedulerHealthy:
		response.Status = "healthy"
		w.WriteHeader(http.StatusOK)
	case healthy:
		response.Status = "degraded"
		w.WriteHeader(http.StatusOK) // Degraded but still serving
	default:
		response.Status = "unhealthy"
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	json.NewEncoder(w).Encode(response)
}

// handleReady reports ready when the library root is reachable and writable.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	healthy := s.healthy
	s.mu.RUnlock()

	response := ReadyResponse{Ready: healthy}
	if healthy {
		disk, _ := transfer.CheckDiskHealth(r.Context(), s.root, s.fsTimeout)
		response.Disk = disk
		response.Ready = disk != nil && disk.IsHealthy()
	}

	w.Header().Set("Content-Type", "application/json")
	if response.Ready {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(response)
}
