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
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/recoverlink/backend/internal/answer"
	"github.com/recoverlink/backend/internal/api/handlers"
	appResources "github.com/recoverlink/backend/internal/app"
	"github.com/recoverlink/backend/internal/ingestion"
	"github.com/recoverlink/backend/internal/metrics"
	"github.com/recoverlink/backend/internal/middleware/ratelimit"
	"github.com/recoverlink/backend/internal/middleware/security"
	"github.com/recoverlink/backend/internal/middleware/validation"
	"github.com/recoverlink/backend/internal/notify"
	"github.com/recoverlink/backend/internal/storage/sqlite"
	"github.com/recoverlink/backend/pkg/config"
	appLogger "github.com/recoverlink/backend/pkg/logger"
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

	appLogger.Info("Starting recovery monitoring API server")

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

	resources, err := appResources.Init(context.Background(), cfg)
	if err != nil {
		appLogger.Fatal("Failed to initialize shared resources", zap.Error(err))
	}
	defer resources.Close()

	processor := ingestion.NewProcessor(
		sqliteClient,
		resources.Index,
		resources.LLM,
		cfg.Ingestion.ChunkSize,
		cfg.Ingestion.ChunkOverlap,
	)

	var answerCache answer.Cache
	var invalidator handlers.Invalidator
	if resources.Cache != nil {
		answerCache = resources.Cache
		invalidator = resources.Cache
	}

	answerEngine := answer.NewEngine(
		sqliteClient,
		resources.Index,
		resources.LLM,
		resources.LLM,
		answerCache,
		cfg.Retrieval.DefaultTopK,
		cfg.Retrieval.MaxTopK,
	)

	hub := notify.NewHub()

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Patient-ID",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{}))

	limiter := ratelimit.New(ratelimit.Config{Logger: appLogger.GetLogger()})
	defer limiter.Stop()
	app.Use(limiter.Middleware())

	app.Use(validation.Middleware(validation.Config{
		MaxDocumentSize: cfg.Server.BodyLimit,
		Logger:          appLogger.GetLogger(),
	}))

	observationHandler := handlers.NewObservationHandler(sqliteClient, hub)
	patientHandler := handlers.NewPatientHandler(sqliteClient)
	documentHandler := handlers.NewDocumentHandler(processor, invalidator)
	questionHandler := handlers.NewQuestionHandler(answerEngine)
	reviewHandler := handlers.NewReviewHandler(sqliteClient)
	streamHandler := handlers.NewStreamHandler(hub)

	api := app.Group("/api/v1")

	api.Post("/observations", observationHandler.CreateObservation)
	api.Get("/patients/:id/observations", observationHandler.GetObservations)
	api.Put("/patients/:id/baseline", patientHandler.UpsertBaseline)
	api.Get("/patients/:id/guidance", patientHandler.GetGuidance)

	api.Post("/documents", documentHandler.UploadDocument)
	api.Post("/questions", questionHandler.AskQuestion)

	api.Get("/review/patients", reviewHandler.ListPatients)
	api.Get("/review/patients/:id/assessments", reviewHandler.GetPatientAssessments)

	api.Use("/assessments/stream", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	api.Get("/assessments/stream", websocket.New(streamHandler.HandleConnection))

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

	app.Get("/metrics", metrics.MetricsHandler())

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
