package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/logsmith/backend/internal/api/handlers"
	cache "github.com/logsmith/backend/internal/cache/redis"
	"github.com/logsmith/backend/internal/metrics"
	"github.com/logsmith/backend/internal/middleware/ratelimit"
	"github.com/logsmith/backend/internal/middleware/security"
	"github.com/logsmith/backend/internal/middleware/validation"
	"github.com/logsmith/backend/internal/oracle"
	"github.com/logsmith/backend/internal/pipeline"
	"github.com/logsmith/backend/internal/storage/sqlite"
	"github.com/logsmith/backend/pkg/config"
	appLogger "github.com/logsmith/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting logsmith API server")

	metrics.Init()

	store, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer store.Close()

	err = store.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	var cacheClient *cache.Client
	if cfg.Redis.Enabled {
		cacheClient, err = cache.NewClient(
			cfg.Redis.Host,
			cfg.Redis.Port,
			cfg.Redis.Password,
			cfg.Redis.DB,
		)
		if err != nil {
			appLogger.Fatal("Failed to create Redis client", zap.Error(err))
		}
		defer cacheClient.Close()
	}

	patternOracle := buildOracle(cfg, cacheClient)

	opts := pipeline.OptionsFromConfig(cfg.Pipeline)
	hub := pipeline.NewProgressHub()
	scheduler := pipeline.NewScheduler(store, patternOracle, opts, hub, appLogger.GetLogger())

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	limiter := ratelimit.New(ratelimit.Config{Logger: appLogger.GetLogger()})
	defer limiter.Stop()

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{}))
	app.Use(limiter.Middleware())
	app.Use(validation.Middleware(validation.Config{Logger: appLogger.GetLogger()}))

	runHandler := handlers.NewRunHandler(scheduler)
	historyHandler := handlers.NewHistoryHandler(store)
	groupHandler := handlers.NewGroupHandler(store, cacheClient)
	progressHandler := handlers.NewProgressHandler(hub)

	api := app.Group("/api/v1")

	api.Post("/runs", runHandler.StartRun)
	api.Post("/groups/:group/replay", runHandler.Replay)
	api.Post("/groups/:group/documents", groupHandler.UploadDocuments)
	api.Get("/groups", groupHandler.ListGroups)
	api.Get("/history", historyHandler.GetHistory)

	api.Get("/progress", websocket.New(progressHandler.HandleConnection))

	api.Get("/metrics", metrics.MetricsHandler())

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}

func buildOracle(cfg *config.Config, cacheClient *cache.Client) oracle.Oracle {
	switch cfg.Oracle.Provider {
	case "static":
		appLogger.Info("Using static pattern oracle",
			zap.Int("patterns", len(cfg.Oracle.StaticPatterns)),
		)
		return oracle.NewStaticOracle(cfg.Oracle.StaticPatterns)
	default:
		var patternCache oracle.PatternCache
		if cacheClient != nil {
			patternCache = cacheClient
		}
		return oracle.NewOpenAIOracle(
			cfg.Oracle.APIKey,
			cfg.Oracle.Model,
			cfg.Oracle.Temperature,
			cfg.Oracle.MaxTokens,
			cfg.Oracle.TimeoutSec,
			patternCache,
			time.Duration(cfg.Oracle.CacheTTLMin)*time.Minute,
		)
	}
}
