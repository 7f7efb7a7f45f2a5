package app

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/yungbote/gradebridge-backend/internal/data/db"
	"github.com/yungbote/gradebridge-backend/internal/data/repos"
	apphttp "github.com/yungbote/gradebridge-backend/internal/http"
	"github.com/yungbote/gradebridge-backend/internal/observability"
	"github.com/yungbote/gradebridge-backend/internal/platform/logger"
	"github.com/yungbote/gradebridge-backend/internal/platform/redisbus"
	"github.com/yungbote/gradebridge-backend/internal/reconcile/hierarchy"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Router   *gin.Engine
	Cfg      Config
	Repos    repos.Set
	Engine   Engine
	Services Services
	Clients  Clients
	Seed     *hierarchy.Hierarchy

	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
}

func New(ctx context.Context) (*App, error) {
	if err := LoadDotEnv(); err != nil {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	if logMode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)
	otelCfg := observability.LoadOtelConfig(log)
	otelShutdown := observability.InitOTel(ctx, log, otelCfg)
	metrics := observability.Init(cfg.MetricsEnabled)

	dbs, err := db.Open(log, cfg.DBDriver, cfg.SQLitePath)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init db: %w", err)
	}
	if err := dbs.AutoMigrateAll(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("automigrate: %w", err)
	}
	theDB := dbs.DB()

	var seed *hierarchy.Hierarchy
	if cfg.HierarchySeedFile != "" {
		seed, err = hierarchy.Load(cfg.HierarchySeedFile)
		if err != nil {
			log.Sync()
			return nil, err
		}
	}

	clients, err := wireClients(log, cfg)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init clients: %w", err)
	}

	reposet := repos.NewSet(theDB, log)
	engine := wireEngine(theDB, log, cfg, reposet, seed, clients)
	serviceset := wireServices(theDB, log, reposet, engine, clients)

	if seed != nil {
		res, err := serviceset.Catalog.Seed(ctx, seed)
		if err != nil {
			clients.Close()
			log.Sync()
			return nil, fmt.Errorf("seed hierarchy: %w", err)
		}
		log.Info("Hierarchy seed applied", "file", cfg.HierarchySeedFile, "created", len(res.Created))
	}

	handlerset := wireHandlers(theDB, serviceset)
	router := wireRouter(log, cfg, otelCfg, metrics, handlerset)

	return &App{
		Log:          log,
		DB:           theDB,
		Router:       router,
		Cfg:          cfg,
		Repos:        reposet,
		Engine:       engine,
		Services:     serviceset,
		Clients:      clients,
		Seed:         seed,
		otelShutdown: otelShutdown,
	}, nil
}

// Start begins background listeners. Today that is only the redis event forwarder, which logs
// completions announced by other instances.
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if a.Clients.Bus != nil {
		log := a.Log.With("component", "EventForwarder")
		err := a.Clients.Bus.StartForwarder(ctx, func(ev redisbus.Event) {
			log.Info("Event received", "type", ev.Type, "batch_id", ev.BatchID, "pass", ev.Pass, "counts", ev.Counts)
		})
		if err != nil {
			a.Log.Warn("Event forwarder failed to start", "error", err)
		}
	}
}

// Run serves HTTP until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}
	srv := &apphttp.Server{Engine: a.Router}
	a.Log.Info("HTTP server listening", "port", a.Cfg.Port)
	return srv.Run(ctx, ":"+a.Cfg.Port)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.Clients.Close()
	if a.otelShutdown != nil {
		if err := a.otelShutdown(context.Background()); err != nil && a.Log != nil {
			a.Log.Warn("OTel shutdown failed", "error", err)
		}
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
