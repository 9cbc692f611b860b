package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/evalabs/opswatch/internal/api/handlers"
	"github.com/evalabs/opswatch/internal/api/middleware"
	"github.com/evalabs/opswatch/internal/cache"
	"github.com/evalabs/opswatch/internal/config"
	"github.com/evalabs/opswatch/internal/db"
	"github.com/evalabs/opswatch/internal/monitor"
)

type Server struct {
	Config *config.Config
	Router *gin.Engine
}

func NewServer(cfg *config.Config, repo *db.Repository, engine *monitor.Engine, cacheClient *cache.Client, logger *zap.Logger) *Server {
	gin.SetMode(cfg.Server.Mode)
	router := gin.New()

	// Middleware
	router.Use(middleware.Logger(logger))
	router.Use(gin.Recovery())
	router.Use(middleware.CORS())

	server := &Server{
		Config: cfg,
		Router: router,
	}

	server.setupRoutes(repo, engine, cacheClient, logger)
	return server
}

func (s *Server) setupRoutes(repo *db.Repository, engine *monitor.Engine, cacheClient *cache.Client, logger *zap.Logger) {
	s.Router.GET("/health", handlers.HealthCheck)
	s.Router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h := handlers.NewHandler(
		repo,
		engine,
		cacheClient,
		s.Config.Redis.SnapshotTTL,
		s.Config.Monitoring.Interval/2,
		logger,
	)

	api := s.Router.Group("/api/v1/monitoring")
	api.Use(middleware.AuthRequired(s.Config.Server.JWTSecret))
	{
		api.GET("/services", h.GetServices)
		api.GET("/overview", h.GetOverview)
		api.GET("/issues", h.ListIssues)
		api.GET("/checks", h.ListChecks)
		api.POST("/issues/:id/acknowledge", h.AcknowledgeIssue)
		api.POST("/issues/:id/resolve", h.ResolveIssue)
	}
}
