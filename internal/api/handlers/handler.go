package handlers

import (
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/evalabs/opswatch/internal/cache"
	"github.com/evalabs/opswatch/internal/db"
	"github.com/evalabs/opswatch/internal/monitor"
)

type Handler struct {
	repo        *db.Repository
	engine      *monitor.Engine
	cache       *cache.Client
	snapshotTTL time.Duration
	// refresh bounds how often dashboard polling may force an out-of-band
	// probe cycle.
	refresh *rate.Limiter
	logger  *zap.Logger
}

func NewHandler(repo *db.Repository, engine *monitor.Engine, cacheClient *cache.Client, snapshotTTL time.Duration, refreshInterval time.Duration, logger *zap.Logger) *Handler {
	return &Handler{
		repo:        repo,
		engine:      engine,
		cache:       cacheClient,
		snapshotTTL: snapshotTTL,
		refresh:     rate.NewLimiter(rate.Every(refreshInterval), 1),
		logger:      logger,
	}
}
