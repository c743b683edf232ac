package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/DyakonovAlex/smart-home/internal/bridge"
	"github.com/DyakonovAlex/smart-home/internal/controller"
	"github.com/DyakonovAlex/smart-home/internal/home"
	"github.com/DyakonovAlex/smart-home/internal/infrastructure/config"
	"github.com/DyakonovAlex/smart-home/internal/infrastructure/logging"
	"github.com/DyakonovAlex/smart-home/internal/journal"
	"github.com/DyakonovAlex/smart-home/internal/subscription"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HealthChecker is implemented by every infrastructure client the health
// endpoint reports on.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies of the API server. Only Config and Logger are
// required; every other dependency disables its endpoints when nil.
type Deps struct {
	Config  config.APIConfig
	WS      config.WebSocketConfig
	Logger  *logging.Logger
	Home    *home.House
	Outlet  *controller.SocketController
	Therm   *controller.ThermController
	Journal journal.Repository
	Bridge  *bridge.Bridge

	// Checks maps a component name ("mqtt", "influxdb", "database") to its
	// health check.
	Checks map[string]HealthChecker

	Version string
}

// Server is the ops HTTP API.
//
// The router is built by New, so Handler can be served by httptest without
// Start. Start binds the listener and relays thermometer readings to
// WebSocket clients.
type Server struct {
	cfg     config.APIConfig
	wsCfg   config.WebSocketConfig
	logger  *logging.Logger
	home    *home.House
	outlet  *controller.SocketController
	therm   *controller.ThermController
	journal journal.Repository
	bridge  *bridge.Bridge
	checks  map[string]HealthChecker
	version string

	startTime time.Time
	metrics   *Metrics
	hub       *Hub
	router    http.Handler

	mu          sync.Mutex
	server      *http.Server
	listener    net.Listener
	cancel      context.CancelFunc
	thermHandle *subscription.Handle
}

// New creates an API server. It does not listen until Start is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    deps.Logger,
		home:      deps.Home,
		outlet:    deps.Outlet,
		therm:     deps.Therm,
		journal:   deps.Journal,
		bridge:    deps.Bridge,
		checks:    deps.Checks,
		version:   deps.Version,
		startTime: time.Now(),
	}
	s.hub = NewHub(s.wsCfg, s.logger)
	s.metrics = NewMetrics(s)
	s.router = s.buildRouter()
	return s, nil
}

// Handler returns the HTTP handler with all routes and middleware.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start binds the configured address and serves in the background. A bind
// failure is returned synchronously.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return fmt.Errorf("api server already started")
	}

	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	if s.therm != nil {
		s.thermHandle = s.therm.OnTemperatureChange(s.relayReading)
	}

	s.listener = ln
	s.server = &http.Server{
		Handler:           s.router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	server := s.server
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server started", "address", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	s.mu.Lock()
	server := s.server
	cancel := s.cancel
	handle := s.thermHandle
	s.thermHandle = nil
	s.mu.Unlock()

	if server == nil {
		return nil
	}
	if handle != nil {
		handle.Unsubscribe()
	}
	if cancel != nil {
		cancel()
	}

	ctx, done := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer done()

	s.logger.Info("API server shutting down")
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}

// relayReading forwards a thermometer reading to WebSocket subscribers.
// It runs on the listener goroutine; Broadcast never blocks.
func (s *Server) relayReading(r controller.Reading) {
	s.hub.Broadcast(ChannelThermReading, thermPayload(r, time.Now()))
}
