// Package api serves the HTTP API and the live event stream.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/OldStager01/cloud-vm-monitor/api/docs"
	"github.com/OldStager01/cloud-vm-monitor/api/handlers"
	"github.com/OldStager01/cloud-vm-monitor/api/middleware"
	"github.com/OldStager01/cloud-vm-monitor/api/websocket"
	"github.com/OldStager01/cloud-vm-monitor/internal/auth"
	"github.com/OldStager01/cloud-vm-monitor/internal/cache"
	"github.com/OldStager01/cloud-vm-monitor/internal/logger"
	"github.com/OldStager01/cloud-vm-monitor/internal/metrics"
	"github.com/OldStager01/cloud-vm-monitor/internal/statesync"
	"github.com/OldStager01/cloud-vm-monitor/internal/store"
	"github.com/OldStager01/cloud-vm-monitor/pkg/config"
	"github.com/OldStager01/cloud-vm-monitor/pkg/models"
)

const (
	maxRequestBytes = 1 << 20
	defaultCacheTTL = 5 * time.Minute
)

// Dependencies are the services the routes are served from. Events may be
// nil, in which case the websocket stream stays silent.
type Dependencies struct {
	Auth        *auth.Service
	Alerts      store.AlertStore
	AlertOps    handlers.AlertService
	Snapshots   handlers.SnapshotService
	VMs         store.VMStore
	Samples     store.MetricStore
	Power       handlers.PowerService
	Credentials store.CredentialStore
	Jobs        handlers.JobRunner
	Cache       cache.Cache
	Checks      map[string]handlers.Check
	Events      <-chan *models.Event
}

type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	config     *config.Config
	deps       Dependencies
	wsHub      *websocket.Hub
	wsBridge   *websocket.EventBridge
	hubCancel  context.CancelFunc
}

func NewServer(cfg *config.Config, deps Dependencies) *Server {
	if cfg.App.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	hubCtx, hubCancel := context.WithCancel(context.Background())
	s := &Server{
		router:    gin.New(),
		config:    cfg,
		deps:      deps,
		wsHub:     websocket.NewHub(&cfg.WebSocket),
		hubCancel: hubCancel,
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.API.Port),
		Handler:           s.router,
		ReadTimeout:       cfg.API.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.API.WriteTimeout,
		IdleTimeout:       cfg.API.IdleTimeout,
	}

	go s.wsHub.Run(hubCtx)

	if deps.Events != nil {
		s.wsBridge = websocket.NewEventBridge(s.wsHub, deps.Events)
		s.wsBridge.Start()
	}

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(middleware.TraceID())
	s.router.Use(middleware.RequestLogger())
	s.router.Use(middleware.Metrics())
	s.router.Use(middleware.CORS(middleware.CORSFromConfig(s.config.API.CORS)))
	s.router.Use(middleware.SecurityHeaders())
	s.router.Use(middleware.RequestSizeLimit(maxRequestBytes))
	s.router.Use(middleware.RateLimit(middleware.NewRateLimiter(s.config.API.RateLimit, time.Minute)))
}

func (s *Server) setupRoutes() {
	api := s.config.API
	limits := handlers.Limits{Default: api.DefaultLimit, Max: api.MaxLimit}

	healthHandler := handlers.NewHealthHandler(s.deps.Checks)
	s.router.GET("/health", healthHandler.Health)
	s.router.GET("/health/ready", healthHandler.Ready)
	s.router.GET("/health/live", healthHandler.Live)

	if s.config.Prometheus.Enabled {
		path := s.config.Prometheus.Path
		if path == "" {
			path = "/metrics"
		}
		s.router.GET(path, gin.WrapH(metrics.Get().Handler()))
	}
	s.router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	if s.deps.Credentials != nil {
		authHandler := handlers.NewAuthHandler(s.deps.Credentials, s.deps.Auth)
		s.router.POST("/auth/login", middleware.AuthRateLimiter(), authHandler.Login)
	}

	protected := s.router.Group("/")
	protected.Use(middleware.JWTAuth(s.deps.Auth))

	protected.GET("/ws", websocket.ServeWebSocket(s.wsHub, api.CORS.AllowedOrigins))

	endpointLimits := middleware.NewEndpointRateLimiter()
	endpointLimits.AddEndpoint(http.MethodPost, "/jobs/:name/run", 10, time.Minute)
	endpointLimits.AddEndpoint(http.MethodPost, "/vms/:id/snapshots", 10, time.Minute)
	for _, action := range []statesync.Action{statesync.ActionStart, statesync.ActionStop, statesync.ActionReboot} {
		endpointLimits.AddEndpoint(http.MethodPost, "/vms/:id/"+string(action), 10, time.Minute)
	}
	protected.Use(endpointLimits.Middleware())

	if s.deps.Cache != nil {
		ttl := s.config.Cache.TTL
		if ttl <= 0 {
			ttl = defaultCacheTTL
		}
		protected.Use(middleware.CacheResponses(s.deps.Cache, ttl))
	}

	alertHandler := handlers.NewAlertHandler(s.deps.Alerts, s.deps.AlertOps, limits)
	snapshotHandler := handlers.NewSnapshotHandler(s.deps.Snapshots, limits)
	vmHandler := handlers.NewVMHandler(s.deps.VMs, s.deps.Samples, s.deps.Power)
	jobHandler := handlers.NewJobHandler(s.deps.Jobs)

	{
		protected.GET("/alerts", alertHandler.List)
		protected.POST("/alerts/:id/acknowledge", alertHandler.Acknowledge)
		protected.POST("/alerts/:id/resolve", alertHandler.Resolve)
		protected.POST("/alerts/:id/ignore", alertHandler.Ignore)

		protected.GET("/snapshots", snapshotHandler.List)
		protected.GET("/snapshots/stats", snapshotHandler.Stats)
		protected.DELETE("/snapshots/:id", snapshotHandler.Delete)
		protected.POST("/vms/:id/snapshots", snapshotHandler.Create)

		protected.GET("/vms/:id/metrics", vmHandler.Metrics)
		protected.POST("/vms/:id/start", vmHandler.Power(statesync.ActionStart))
		protected.POST("/vms/:id/stop", vmHandler.Power(statesync.ActionStop))
		protected.POST("/vms/:id/reboot", vmHandler.Power(statesync.ActionReboot))

		protected.GET("/jobs", jobHandler.List)
		protected.POST("/jobs/:name/run", jobHandler.Run)
	}
}

func (s *Server) Start() error {
	logger.Infof("HTTP API listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.wsBridge != nil {
		s.wsBridge.Stop()
	}
	s.hubCancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) WebSocketHub() *websocket.Hub {
	return s.wsHub
}
