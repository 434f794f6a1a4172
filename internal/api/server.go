package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mirv-rover/relay-core/internal/audit"
	"github.com/mirv-rover/relay-core/internal/auth"
	"github.com/mirv-rover/relay-core/internal/fleet"
	"github.com/mirv-rover/relay-core/internal/infrastructure/config"
	"github.com/mirv-rover/relay-core/internal/infrastructure/influxdb"
	"github.com/mirv-rover/relay-core/internal/infrastructure/logging"
	"github.com/mirv-rover/relay-core/internal/infrastructure/mqtt"
	"github.com/mirv-rover/relay-core/internal/relay"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
//
// MQTT, Influx, and Audit are optional; when nil the corresponding fan-out
// is skipped.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Logger   *logging.Logger
	Registry *fleet.Registry
	Gateway  *relay.Gateway
	Auth     auth.Provider
	MQTT     *mqtt.Client
	Influx   *influxdb.Client
	Audit    *audit.Log
	Version  string
}

// Server is the HTTP and device WebSocket server for the relay core.
//
// It manages the HTTP listener, routes, middleware, and device sessions.
// The server is created with New() and started with Start().
type Server struct {
	cfg      config.APIConfig
	wsCfg    config.WebSocketConfig
	logger   *logging.Logger
	registry *fleet.Registry
	gateway  *relay.Gateway
	auth     auth.Provider
	mqtt     *mqtt.Client
	influx   *influxdb.Client
	audit    *audit.Log
	version  string
	server   *http.Server
	cancel   context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("fleet registry is required")
	}
	if deps.Gateway == nil {
		return nil, fmt.Errorf("relay gateway is required")
	}
	if deps.Auth == nil {
		return nil, fmt.Errorf("auth provider is required")
	}

	return &Server{
		cfg:      deps.Config,
		wsCfg:    deps.WS,
		logger:   deps.Logger,
		registry: deps.Registry,
		gateway:  deps.Gateway,
		auth:     deps.Auth,
		mqtt:     deps.MQTT,
		influx:   deps.Influx,
		audit:    deps.Audit,
		version:  deps.Version,
	}, nil
}

// Handler returns the configured HTTP handler. Exposed for tests.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start begins listening for HTTP connections.
//
// The listener runs in a background goroutine; stop with Close().
func (s *Server) Start(ctx context.Context) error {
	_, s.cancel = context.WithCancel(ctx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
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

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
