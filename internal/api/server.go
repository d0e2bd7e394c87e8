package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/flashcue-core/internal/flash"
	"github.com/nerrad567/flashcue-core/internal/infrastructure/config"
	"github.com/nerrad567/flashcue-core/internal/infrastructure/logging"
	"github.com/nerrad567/flashcue-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/flashcue-core/internal/session"
	"github.com/nerrad567/flashcue-core/internal/sidecar"
	"github.com/nerrad567/flashcue-core/internal/subscription"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// defaultFlashDuration applies to manual flashes when neither the request
// nor the config sets one.
const defaultFlashDuration = 4 * time.Second

// FlashHistory lists recorded flash outcomes. *flash.SQLiteRecorder
// satisfies it.
type FlashHistory interface {
	ListBySession(ctx context.Context, sessionID string, limit int) ([]flash.Execution, error)
}

// SidecarStatus reports supervised bridge processes. *sidecar.Group
// satisfies it.
type SidecarStatus interface {
	Stats() []sidecar.Stats
}

// BrokerStatus reports MQTT connectivity and traffic. *mqtt.Client
// satisfies it.
type BrokerStatus interface {
	IsConnected() bool
	Stats() mqtt.Stats
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	WS         config.WebSocketConfig
	Logger     *logging.Logger
	Sessions   *session.Registry
	Conditions *subscription.Manager
	Executor   *flash.Executor
	History    FlashHistory  // optional
	MQTT       BrokerStatus  // optional
	DB         *sql.DB       // optional, for metrics
	Hub        *Hub          // If set, the server uses this hub instead of creating its own
	Sidecars   SidecarStatus // optional

	// FlashDuration is the manual flash duration when a request omits one.
	FlashDuration time.Duration
	Version       string
}

// Server is the HTTP API server for FlashCue Core.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg           config.APIConfig
	wsCfg         config.WebSocketConfig
	logger        *logging.Logger
	sessions      *session.Registry
	conditions    *subscription.Manager
	executor      *flash.Executor
	history       FlashHistory
	mqtt          BrokerStatus
	db            *sql.DB
	sidecars      SidecarStatus
	flashDuration time.Duration
	version       string
	startTime     time.Time
	server        *http.Server
	hub           *Hub
	externalHub   bool               // true if hub was injected externally
	cancel        context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (logger, session registry, condition manager, executor)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if deps.Sessions == nil {
		return nil, errors.New("session registry is required")
	}
	if deps.Conditions == nil {
		return nil, errors.New("condition manager is required")
	}
	if deps.Executor == nil {
		return nil, errors.New("flash executor is required")
	}

	s := &Server{
		cfg:           deps.Config,
		wsCfg:         deps.WS,
		logger:        deps.Logger,
		sessions:      deps.Sessions,
		conditions:    deps.Conditions,
		executor:      deps.Executor,
		history:       deps.History,
		mqtt:          deps.MQTT,
		db:            deps.DB,
		sidecars:      deps.Sidecars,
		flashDuration: deps.FlashDuration,
		version:       deps.Version,
		startTime:     time.Now(),
	}
	if s.flashDuration <= 0 {
		s.flashDuration = defaultFlashDuration
	}
	if s.wsCfg.Path == "" {
		s.wsCfg.Path = "/ws"
	}

	// The executor and session hooks broadcast through the same hub, so the
	// app usually creates it first.
	if deps.Hub != nil {
		s.hub = deps.Hub
		s.externalHub = true
	}

	return s, nil
}

// Hub returns the server's WebSocket hub, nil before Start when none was
// injected.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler builds the router. Start uses it; tests drive it through httptest.
func (s *Server) Handler() http.Handler {
	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	return s.buildRouter()
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub and launches the HTTP
// listener in a background goroutine. The server can be stopped with Close().
//
// Parameters:
//   - ctx: Context for cancellation (not used for listener lifetime)
//
// Returns:
//   - error: If the server fails to start
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	router := s.Handler()
	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
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
		return errors.New("api server not started")
	}
	return nil
}
