// Package api assembles the HTTP surface: it wires the stores, the
// routing engine, and the sync services, and registers every handler
// group on one echo instance.
package api

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/helmarr/helmarr/internal/approvals"
	"github.com/helmarr/helmarr/internal/auth"
	"github.com/helmarr/helmarr/internal/config"
	"github.com/helmarr/helmarr/internal/crypto"
	"github.com/helmarr/helmarr/internal/dispatch"
	"github.com/helmarr/helmarr/internal/metadata"
	"github.com/helmarr/helmarr/internal/quota"
	"github.com/helmarr/helmarr/internal/routing"
	"github.com/helmarr/helmarr/internal/routing/evaluators"
	"github.com/helmarr/helmarr/internal/scheduler"
	"github.com/helmarr/helmarr/internal/store"
	"github.com/helmarr/helmarr/internal/users"
	"github.com/helmarr/helmarr/internal/watchlist"
	"github.com/helmarr/helmarr/internal/websocket"
)

// Server handles HTTP requests for the Helmarr API.
type Server struct {
	echo      *echo.Echo
	db        *sql.DB
	hub       *websocket.Hub
	logger    zerolog.Logger
	cfg       *config.Config
	startTime time.Time

	// Stores
	ruleStore      *store.RuleStore
	instanceStore  *store.InstanceStore
	approvalStore  *store.ApprovalStore
	userStore      *store.UserStore
	watchlistStore *store.WatchlistStore

	// Services
	authService     *auth.Service
	quotaService    *quota.Service
	registry        *routing.Registry
	engine          *routing.Engine
	approvalService *approvals.Service
	syncService     *watchlist.Service
	scheduler       *scheduler.Scheduler
}

// NewServer creates a new API server instance with all services wired.
func NewServer(db *sql.DB, hub *websocket.Hub, cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:      e,
		db:        db,
		hub:       hub,
		logger:    logger,
		cfg:       cfg,
		startTime: time.Now(),
	}

	// Stores
	s.ruleStore = store.NewRuleStore(db, logger)
	s.instanceStore = store.NewInstanceStore(db, logger)
	s.approvalStore = store.NewApprovalStore(db, logger)
	s.userStore = store.NewUserStore(db, logger)
	s.watchlistStore = store.NewWatchlistStore(db, logger)

	// Watchlist tokens are encrypted at rest when an operator secret is
	// configured. A generated secret would change every boot and orphan
	// the ciphertexts.
	if cfg.Auth.JWTSecret != "" {
		salt, err := store.NewSettingsStore(db).SecretSalt(context.Background())
		if err != nil {
			return nil, fmt.Errorf("failed to load secret salt: %w", err)
		}
		s.userStore.EncryptTokens(crypto.NewSecretStore(cfg.Auth.JWTSecret, salt))
	}

	// Auth
	authService, err := auth.NewService(db, cfg.Auth.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth service: %w", err)
	}
	s.authService = authService

	// Quotas and the evaluator registry
	s.quotaService = quota.NewService(db, logger)
	s.registry = evaluators.NewRegistry(s.ruleStore, logger)

	// Approvals wrap the store so holds surface as events
	s.approvalService = approvals.NewService(s.approvalStore, s.watchlistStore, hub, logger)

	// Routing engine
	s.engine = routing.NewEngine(routing.EngineParams{
		Registry:  s.registry,
		Gate:      routing.NewGate(s.userStore, s.ruleStore, s.quotaService, s.registry, logger),
		Defaults:  routing.NewDefaultRouter(s.instanceStore, logger),
		Rules:     s.ruleStore,
		Instances: s.instanceStore,
		Approvals: s.approvalService,
		Metadata:  metadata.NewService(s.instanceStore, logger),
		Movies:    dispatch.NewMovieDispatcher(s.instanceStore, s.quotaService, logger),
		Series:    dispatch.NewSeriesDispatcher(s.instanceStore, s.quotaService, logger),
		Logger:    logger,
	})
	s.approvalService.SetExecutor(s.engine)

	// Watchlist sync
	providerLogger := logger
	providerClient, err := watchlist.NewClient(watchlist.ClientConfig{
		URL:    cfg.Plex.URL,
		Logger: &providerLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create watchlist client: %w", err)
	}
	s.syncService = watchlist.NewService(providerClient, s.userStore, s.watchlistStore, s.engine, hub, logger)

	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

// SetScheduler exposes the task scheduler through the API.
func (s *Server) SetScheduler(sched *scheduler.Scheduler) {
	s.scheduler = sched
}

// SyncService returns the watchlist sync service for task registration.
func (s *Server) SyncService() *watchlist.Service {
	return s.syncService
}

// QuotaService returns the quota service for task registration.
func (s *Server) QuotaService() *quota.Service {
	return s.quotaService
}

// setupMiddleware configures Echo middleware.
func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestID())

	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "X-Api-Key"},
	}))

	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogMethod:   true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Err(v.Error).
					Msg("request error")
			} else {
				s.logger.Info().
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Msg("request")
			}
			return nil
		},
	}))

	s.echo.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Level: 5,
		Skipper: func(c echo.Context) bool {
			// Skip compression for WebSocket
			return c.Request().Header.Get("Upgrade") == "websocket"
		},
	}))
}

// setupRoutes configures API routes.
func (s *Server) setupRoutes() {
	// Health check
	s.echo.GET("/health", s.healthCheck)

	authHandlers := auth.NewHandlers(s.authService)
	authHandlers.RegisterPublicRoutes(s.echo.Group("/api/v1/auth"))

	// Everything else requires a session or API key
	api := s.echo.Group("/api/v1", s.authService.Middleware())

	api.GET("/status", s.getStatus)
	api.GET("/ws", s.hub.HandleWebSocket)

	authHandlers.RegisterProtectedRoutes(api.Group("/auth"))

	// Routing rules and evaluator metadata
	rules := api.Group("/routing/rules")
	rules.GET("", s.listRules)
	rules.POST("", s.createRule)
	rules.GET("/:id", s.getRule)
	rules.PUT("/:id", s.updateRule)
	rules.DELETE("/:id", s.deleteRule)
	api.GET("/routing/evaluators", s.listEvaluators)
	api.POST("/routing/test", s.testRoute)

	// Backend instances
	instances := api.Group("/instances")
	instances.GET("", s.listInstances)
	instances.POST("", s.createInstance)
	instances.GET("/:id", s.getInstance)
	instances.PUT("/:id", s.updateInstance)
	instances.DELETE("/:id", s.deleteInstance)
	instances.POST("/:id/test", s.testInstance)

	// Approvals
	approvalHandlers := approvals.NewHandlers(s.approvalService)
	approvalHandlers.RegisterRoutes(api.Group("/approvals"))

	// Users and quotas
	userHandlers := users.NewHandlers(s.userStore, s.quotaService)
	userHandlers.RegisterRoutes(api.Group("/users"))

	// Watchlist
	watchlistHandlers := watchlist.NewHandlers(s.syncService, s.watchlistStore)
	watchlistHandlers.RegisterRoutes(api.Group("/watchlist"))

	// Scheduled tasks
	api.GET("/tasks", s.listTasks)
	api.POST("/tasks/:id/run", s.runTask)
}

// Start begins listening for HTTP requests.
func (s *Server) Start(address string) error {
	s.logger.Info().Str("address", address).Msg("starting HTTP server")
	return s.echo.Start(address)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down HTTP server")
	return s.echo.Shutdown(ctx)
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getStatus(c echo.Context) error {
	ctx := c.Request().Context()

	pending, _ := s.approvalStore.List(ctx, routing.ApprovalPending)
	userList, _ := s.userStore.List(ctx)
	items, _ := s.watchlistStore.All(ctx)

	return c.JSON(http.StatusOK, map[string]interface{}{
		"version":          config.Version,
		"startTime":        s.startTime.UTC().Format(time.RFC3339),
		"users":            len(userList),
		"watchlistItems":   len(items),
		"pendingApprovals": len(pending),
		"wsClients":        s.hub.ClientCount(),
	})
}

func (s *Server) listTasks(c echo.Context) error {
	if s.scheduler == nil {
		return c.JSON(http.StatusOK, []scheduler.TaskInfo{})
	}
	return c.JSON(http.StatusOK, s.scheduler.ListTasks())
}

func (s *Server) runTask(c echo.Context) error {
	if s.scheduler == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "scheduler not running")
	}
	if err := s.scheduler.RunNow(c.Param("id")); err != nil {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return c.NoContent(http.StatusAccepted)
}
