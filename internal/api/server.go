package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/clocked-app/clocked-core/internal/auth"
	"github.com/clocked-app/clocked-core/internal/group"
	"github.com/clocked-app/clocked-core/internal/infrastructure/config"
	"github.com/clocked-app/clocked-core/internal/infrastructure/logging"
	"github.com/clocked-app/clocked-core/internal/infrastructure/telemetry"
	"github.com/clocked-app/clocked-core/internal/realtime"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	WS        config.WebSocketConfig
	Auth      config.AuthConfig
	Logger    *logging.Logger
	Authority *auth.Authority
	Issuer    *auth.MagicLinkIssuer
	Resolver  *auth.PermissionResolver
	Users     auth.UserRepository
	Groups    group.Repository
	Hub       *realtime.Hub          // If set, the server uses this hub instead of creating its own
	Events    *realtime.EventRouter  // Derived from Hub when nil
	Telemetry *telemetry.Client      // Optional; nil disables metrics
	DevMode   bool                   // When true, magic-link responses include the token
	Version   string
}

// Server is the HTTP API and WebSocket entry point for Clocked Core.
//
// It manages the HTTP listener, routes, middleware, and the realtime hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	authCfg   config.AuthConfig
	logger    *logging.Logger
	authority *auth.Authority
	issuer    *auth.MagicLinkIssuer
	resolver  *auth.PermissionResolver
	users     auth.UserRepository
	groups    group.Repository
	telemetry *telemetry.Client
	devMode   bool
	version   string

	server      *http.Server
	hub         *realtime.Hub
	events      *realtime.EventRouter
	externalHub bool               // true if hub was injected externally
	limiter     *rateLimiter       // nil when rate limiting is disabled
	cancel      context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Authority == nil {
		return nil, fmt.Errorf("token authority is required")
	}
	if deps.Issuer == nil {
		return nil, fmt.Errorf("magic link issuer is required")
	}
	if deps.Resolver == nil {
		return nil, fmt.Errorf("permission resolver is required")
	}
	if deps.Users == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if deps.Groups == nil {
		return nil, fmt.Errorf("group repository is required")
	}
	if deps.WS.Path == "" {
		deps.WS.Path = "/ws"
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		authCfg:   deps.Auth,
		logger:    deps.Logger,
		authority: deps.Authority,
		issuer:    deps.Issuer,
		resolver:  deps.Resolver,
		users:     deps.Users,
		groups:    deps.Groups,
		telemetry: deps.Telemetry,
		devMode:   deps.DevMode,
		version:   deps.Version,
	}

	if deps.Auth.RateLimit.Enabled {
		perMinute := deps.Auth.RateLimit.RequestsPerMinute
		if perMinute <= 0 {
			perMinute = 10
		}
		s.limiter = newRateLimiter(perMinute)
	}

	// Use an externally-provided hub if available (needed when the
	// caller also feeds the hub from elsewhere).
	if deps.Hub != nil {
		s.hub = deps.Hub
		s.externalHub = true
	}
	s.events = deps.Events

	return s, nil
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the realtime hub and rate limiter
// cleanup, and launches the HTTP listener in a background goroutine.
// The server is stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	// Create internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	// Create realtime hub (unless one was injected externally)
	if s.hub == nil {
		s.hub = realtime.NewHub(s.wsCfg, s.logger, s.groups, s.telemetry)
		go s.hub.Run(srvCtx)
	}
	if s.events == nil {
		s.events = realtime.NewEventRouter(s.hub, s.logger)
	}

	if s.limiter != nil {
		go s.limiter.cleanLoop(srvCtx)
	}

	// Build router
	router := s.buildRouter()

	// Create HTTP server
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	// Start listening in background
	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
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

	// Cancel background goroutines (hub, rate limiter cleanup)
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

// HealthCheck verifies the API server is running and responsive.
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
