package main

import (
	"context"
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

	"github.com/sellerpulse/backend/internal/api/handlers"
	"github.com/sellerpulse/backend/internal/assistant"
	"github.com/sellerpulse/backend/internal/cache/redis"
	"github.com/sellerpulse/backend/internal/ingestion"
	"github.com/sellerpulse/backend/internal/llm"
	"github.com/sellerpulse/backend/internal/metrics"
	"github.com/sellerpulse/backend/internal/middleware/auth"
	"github.com/sellerpulse/backend/internal/middleware/ratelimit"
	"github.com/sellerpulse/backend/internal/middleware/security"
	"github.com/sellerpulse/backend/internal/middleware/validation"
	"github.com/sellerpulse/backend/internal/prompt"
	"github.com/sellerpulse/backend/internal/quota"
	"github.com/sellerpulse/backend/internal/retrieval"
	"github.com/sellerpulse/backend/internal/storage/sqlite"
	"github.com/sellerpulse/backend/internal/training"
	"github.com/sellerpulse/backend/internal/vector/milvus"
	"github.com/sellerpulse/backend/pkg/config"
	appLogger "github.com/sellerpulse/backend/pkg/logger"
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

	appLogger.Info("Starting SellerPulse Assistant API Server")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	milvusClient, err := milvus.NewClient(
		cfg.Milvus.Endpoint,
		cfg.Milvus.APIKey,
		cfg.Milvus.CollectionName,
		cfg.Milvus.VectorDim,
	)
	if err != nil {
		appLogger.Fatal("Failed to create Milvus client", zap.Error(err))
	}
	defer milvusClient.Close()

	err = milvusClient.EnsureCollection(context.Background())
	if err != nil {
		appLogger.Fatal("Failed to ensure collection", zap.Error(err))
	}

	redisClient, err := redis.NewClient(
		cfg.Redis.Host,
		cfg.Redis.Port,
		cfg.Redis.Password,
		cfg.Redis.DB,
	)
	if err != nil {
		appLogger.Fatal("Failed to create Redis client", zap.Error(err))
	}
	defer redisClient.Close()

	llmClient := llm.NewClient(
		cfg.LLM.APIKey,
		cfg.LLM.Model,
		cfg.LLM.EmbeddingModel,
		cfg.LLM.Temperature,
		cfg.LLM.MaxTokens,
		cfg.LLM.TimeoutSec,
	)

	engine := retrieval.NewEngine(llmClient, milvusClient, sqliteClient)
	ledger := quota.NewLedger(sqliteClient.DB(), cfg.Quota.MonthlyMessages)
	builder := prompt.NewBuilder(cfg.Assistant.TokenBudget)
	collector := training.NewCollector(
		redisClient,
		sqliteClient,
		redisClient,
		time.Duration(cfg.Assistant.EligibilityTTLSec)*time.Second,
	)

	orchestrator := assistant.NewOrchestrator(
		sqliteClient,
		ledger,
		engine,
		builder,
		llmClient,
		collector,
		assistant.Config{
			HistoryLimit: cfg.Assistant.HistoryLimit,
			TopK:         cfg.Assistant.TopK,
			RerankLimit:  cfg.Assistant.RerankLimit,
			MinSources:   cfg.Assistant.MinSources,
			Deadline:     time.Duration(cfg.Assistant.DeadlineSec) * time.Second,
		},
	)

	processor := ingestion.NewProcessor(
		sqliteClient,
		milvusClient,
		llmClient,
		cfg.Ingestion.ChunkSize,
		cfg.Ingestion.ChunkOverlap,
	)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(security.HeadersMiddleware(security.HeadersConfig{}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, OPTIONS",
	}))

	limiter := ratelimit.New(ratelimit.Config{Logger: appLogger.GetLogger()})
	defer limiter.Stop()

	authMiddleware := auth.Middleware(auth.Config{
		Sessions: redisClient,
		Logger:   appLogger.GetLogger(),
	})
	messageRules := validation.Config{
		Logger: appLogger.GetLogger(),
	}
	validateMessage := validation.Middleware(messageRules)

	assistantHandler := handlers.NewAssistantHandler(orchestrator, redisClient)
	threadHandler := handlers.NewThreadHandler(sqliteClient)
	documentHandler := handlers.NewDocumentHandler(processor)
	wsHandler := handlers.NewWebSocketHandler(orchestrator, messageRules)

	api := app.Group("/api/v1")

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		if err := sqliteClient.DB().PingContext(c.UserContext()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "not ready",
			})
		}
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	})

	app.Get("/metrics", metrics.Handler())

	protected := api.Group("", authMiddleware, limiter.Middleware())

	protected.Post("/assistant/message", validateMessage, assistantHandler.HandleMessage)
	protected.Get("/assistant/threads/:id/messages", threadHandler.HandleGetMessages)
	protected.Post("/docs", documentHandler.HandleIngest)

	protected.Use("/assistant/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	protected.Get("/assistant/ws", websocket.New(wsHandler.HandleConnection))

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
