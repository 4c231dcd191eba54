package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"

	"github.com/fortinpy85/jddb-sub001/pkg/config"
	"github.com/fortinpy85/jddb-sub001/pkg/limits"
	"github.com/fortinpy85/jddb-sub001/pkg/telemetry/health"
	"github.com/fortinpy85/jddb-sub001/pkg/usage"
)

// Deps are the components the admin server reads from.
type Deps struct {
	// Limits is required.
	Limits *limits.Service

	// History backs the usage endpoints. Nil answers them with 503.
	History usage.HistoryStore

	// Health serves /healthz and /readyz. Nil registers an empty checker.
	Health *health.Checker

	// Metrics is mounted at MetricsPath when non-nil.
	Metrics     http.Handler
	MetricsPath string

	// QueryTimeout bounds each analytics query. Zero means no bound.
	QueryTimeout time.Duration

	// TracingName enables otelmux spans under this name when non-empty.
	TracingName string

	Logger *slog.Logger
}

// Server is the admin HTTP server.
type Server struct {
	config       config.ServerConfig
	deps         Deps
	logger       *slog.Logger
	httpServer   *http.Server
	listener     net.Listener
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
}

// New creates an admin server. It does not listen until Start.
func New(cfg config.ServerConfig, deps Deps) (*Server, error) {
	if deps.Limits == nil {
		return nil, errors.New("server: limits service is required")
	}
	if deps.Health == nil {
		deps.Health = health.New(0)
	}
	if deps.MetricsPath == "" {
		deps.MetricsPath = config.DefaultMetricsPath
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		config: cfg,
		deps:   deps,
		logger: logger.With("component", "server"),
	}, nil
}

// Start listens on the configured address and serves until ctx is cancelled
// or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}

	ln, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("listen on %s: %w", s.config.ListenAddress, err)
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
	s.isRunning = true
	s.shutdownOnce = sync.Once{}
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting admin server", "address", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case err, ok := <-errChan:
		if ok {
			s.markStopped()
			return err
		}
		return nil
	}
}

// Shutdown gracefully stops the server, waiting at most ShutdownTimeout.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.RLock()
		running := s.isRunning
		srv := s.httpServer
		s.mu.RUnlock()
		if !running {
			return
		}

		s.logger.Info("initiating graceful shutdown", "timeout", s.config.ShutdownTimeout.String())

		shutdownCtx := ctx
		if s.config.ShutdownTimeout > 0 {
			var cancel context.CancelFunc
			shutdownCtx, cancel = context.WithTimeout(ctx, s.config.ShutdownTimeout)
			defer cancel()
		}

		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("error during server shutdown", "error", err)
			shutdownErr = fmt.Errorf("server shutdown error: %w", err)
		}

		s.markStopped()
		s.logger.Info("admin server stopped")
	})

	return shutdownErr
}

func (s *Server) markStopped() {
	s.mu.Lock()
	s.isRunning = false
	s.mu.Unlock()
}

// IsRunning returns true if the server is serving.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Handler returns the routed handler with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()

	if s.deps.TracingName != "" {
		router.Use(otelmux.Middleware(s.deps.TracingName,
			otelmux.WithFilter(func(r *http.Request) bool {
				return r.URL.Path != "/healthz" &&
					r.URL.Path != "/readyz" &&
					r.URL.Path != s.deps.MetricsPath
			}),
		))
	}

	h := &handlers{
		limits:       s.deps.Limits,
		history:      s.deps.History,
		queryTimeout: s.deps.QueryTimeout,
		logger:       s.logger,
	}

	router.HandleFunc("/healthz", s.deps.Health.LivenessHandler()).Methods(http.MethodGet, http.MethodHead)
	router.HandleFunc("/readyz", s.deps.Health.ReadinessHandler()).Methods(http.MethodGet, http.MethodHead)
	if s.deps.Metrics != nil {
		router.Handle(s.deps.MetricsPath, s.deps.Metrics).Methods(http.MethodGet)
	}

	api := router.PathPrefix("/v1").Subrouter()
	api.HandleFunc("/limits", h.listServices).Methods(http.MethodGet)
	api.HandleFunc("/limits/{service}", h.getLimits).Methods(http.MethodGet)
	api.HandleFunc("/limits/{service}/delay", h.getDelay).Methods(http.MethodGet)
	api.HandleFunc("/usage/{service}/stats", h.getStats).Methods(http.MethodGet)
	api.HandleFunc("/usage/{service}/recommendations", h.getRecommendations).Methods(http.MethodGet)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	// Applied innermost first; recovery is outermost.
	var handler http.Handler = router
	handler = loggingMiddleware(s.logger)(handler)
	handler = requestIDMiddleware(handler)
	handler = recoveryMiddleware(s.logger)(handler)
	return handler
}
