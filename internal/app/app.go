package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/studytrack/core/internal/config"
	"github.com/studytrack/core/internal/database"
	"github.com/studytrack/core/internal/middleware"
	"github.com/studytrack/core/internal/modules/gateway/gateway"
	"github.com/studytrack/core/internal/modules/presence"
	"github.com/studytrack/core/internal/modules/user"
	pkgcron "github.com/studytrack/core/internal/pkg/cron"
	pkgredis "github.com/studytrack/core/internal/pkg/redis"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// App holds all application dependencies.
type App struct {
	cfg      *config.AppConfig
	router   *gin.Engine
	db       *mongo.Database
	rc       *pkgredis.Client
	hub      *gateway.Hub
	presence *presence.Service
	logger   *zap.Logger
	cancel   context.CancelFunc
	sched    *pkgcron.Scheduler
}

// New initializes the application: config → DB → Redis → presence → routes.
func New(logger *zap.Logger, cfg *config.AppConfig) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if err := applyRuntimeSettings(cfg, logger); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	db, err := database.Connect(ctx, cfg)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("database: %w", err)
	}

	rc, err := pkgredis.Connect(cfg.RedisURL)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("redis: %w", err)
	}

	if cfg.IsDev() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))
	router.Use(cors.New(buildCORSConfig(cfg)))

	userSvc := user.NewService(db)
	fanout := presence.NewRedisFanout(rc, logger.Named("presence-fanout"))
	presenceSvc := presence.NewService(presence.Options{
		StaleThreshold: cfg.Presence.StaleThreshold,
		SweepInterval:  cfg.Presence.SweepInterval,
	}, logger.Named("presence"),
		presence.WithFanout(fanout),
		presence.WithLastSeenRecorder(userSvc),
	)
	go fanout.Run(ctx, presenceSvc)

	hub := gateway.NewHub(rc, presenceSvc, logger.Named("gateway"), middleware.ValidateToken)
	go hub.Run(ctx)

	sched := pkgcron.New()
	registerCronJobs(sched, presenceSvc, rc, cfg, logger)
	go sched.Start(ctx)

	app := &App{
		cfg: cfg, router: router, db: db, rc: rc, hub: hub,
		presence: presenceSvc, logger: logger, cancel: cancel, sched: sched,
	}
	app.registerRoutes(userSvc)

	return app, nil
}

// Addr returns the listen address.
func (a *App) Addr() string { return fmt.Sprintf(":%d", a.cfg.Port) }

// Router returns the HTTP handler.
func (a *App) Router() http.Handler { return a.router }

// Shutdown stops background goroutines and closes external connections.
func (a *App) Shutdown(ctx context.Context) {
	a.cancel()
	if err := database.Disconnect(ctx, a.db); err != nil {
		a.logger.Warn("mongo disconnect failed", zap.Error(err))
	}
	if err := a.rc.Close(); err != nil {
		a.logger.Warn("redis close failed", zap.Error(err))
	}
}
