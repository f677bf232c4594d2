package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"mosaic/internal/config"
	"mosaic/internal/database"
	"mosaic/internal/handlers"
	"mosaic/internal/jobs"
	"mosaic/internal/logging"
	"mosaic/internal/middleware"
	"mosaic/internal/providers"
	"mosaic/internal/services"
	"mosaic/pkg/auth"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🚀 Starting Mosaic Server...")

	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	} else {
		log.Println("✅ .env file loaded successfully")
	}

	cfg := config.Load()
	log.Printf("📋 Configuration loaded (Port: %s, Environment: %s)", cfg.Port, cfg.Environment)

	if cfg.MongoURI == "" {
		log.Fatal("❌ MONGODB_URI environment variable is required")
	}
	mongoDB, err := database.NewMongoDB(cfg.MongoURI)
	if err != nil {
		log.Fatalf("❌ Failed to connect to MongoDB: %v", err)
	}
	defer mongoDB.Close(context.Background())

	{
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := mongoDB.EnsureIndexes(ctx); err != nil {
			cancel()
			log.Fatalf("❌ Failed to create indexes: %v", err)
		}
		cancel()
	}

	if cfg.JWTSecret == "" {
		log.Fatal("❌ JWT_SECRET environment variable is required")
	}
	jwtAuth, err := auth.NewLocalJWTAuth(cfg.JWTSecret, 0, 0)
	if err != nil {
		log.Fatalf("❌ Failed to initialize auth: %v", err)
	}

	if cfg.LLMAPIKey == "" {
		log.Println("⚠️  LLM_API_KEY not set, analysis requests will fail")
	}

	// Providers
	understanding := providers.NewUnderstanding(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, cfg.LLMVisionModel)
	fetcher := providers.NewFetcher()
	search := providers.NewSearch(cfg.SearchProvider, cfg.TavilyAPIKey, cfg.SerperAPIKey)

	// Stores
	userStore := services.NewUserStore(mongoDB)
	uploadStore := services.NewUploadStore(mongoDB)
	taskStore := services.NewTaskStore(mongoDB)
	analysisStore := services.NewAnalysisStore(mongoDB)
	preferenceStore := services.NewPreferenceStore(mongoDB)

	// Pipeline services
	ranker := services.NewRanker(search, understanding)
	generator := services.NewGenerator(understanding, analysisStore, services.NewKeyLockTable())
	orchestrator := services.NewOrchestrator(
		taskStore, uploadStore, analysisStore, preferenceStore,
		understanding, fetcher, ranker, generator,
		cfg.RecommendationCount, cfg.MaxAnalysisChars)
	feedback := services.NewFeedback(analysisStore, preferenceStore, ranker, generator, cfg.RecommendationCount)

	// Background jobs
	jobScheduler := jobs.NewJobScheduler()
	jobScheduler.Register("task_reaper", jobs.NewTaskReaperJob(taskStore, 5*time.Minute, 15*time.Minute))
	jobScheduler.Start()

	app := fiber.New(fiber.Config{
		AppName:      "Mosaic v1.0",
		ReadTimeout:  180 * time.Second,
		WriteTimeout: 180 * time.Second, // article generation can take a while
		IdleTimeout:  180 * time.Second,
		BodyLimit:    12 * 1024 * 1024, // headroom over the 10MB image limit
	})

	app.Use(recover.New())
	app.Use(logger.New())

	prometheus := fiberprometheus.New("mosaic")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)
	log.Println("📊 Prometheus metrics endpoint enabled at /metrics")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.FrontendURL,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization",
		AllowCredentials: cfg.FrontendURL != "*",
	}))

	// Global API rate limiter
	app.Use("/api", limiter.New(limiter.Config{
		Max:        120,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
	}))

	// Handlers
	healthHandler := handlers.NewHealthHandler(mongoDB)
	authHandler := handlers.NewAuthHandler(jwtAuth, userStore)
	uploadHandler := handlers.NewUploadHandler(uploadStore, fetcher, cfg.UploadDir)
	analysisHandler := handlers.NewAnalysisHandler(orchestrator, analysisStore)
	recHandler := handlers.NewRecommendationHandler(analysisStore, generator, feedback)
	historyHandler := handlers.NewHistoryHandler(uploadStore, analysisStore)

	// Routes
	app.Get("/health", healthHandler.Handle)

	api := app.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.Post("/signup", authHandler.Signup)
	authGroup.Post("/signin", authHandler.Signin)
	authGroup.Post("/refresh", authHandler.Refresh)
	authGroup.Get("/me", middleware.RequireAuth(jwtAuth), authHandler.Me)

	protected := api.Group("", middleware.RequireAuth(jwtAuth))
	protected.Post("/upload/image", uploadHandler.UploadImage)
	protected.Post("/upload/url", uploadHandler.UploadURL)
	protected.Post("/upload/text", uploadHandler.UploadText)

	protected.Post("/analyze/:uploadId", analysisHandler.Submit)
	protected.Get("/tasks/:taskId", analysisHandler.TaskStatus)
	protected.Get("/analysis/:analysisId", analysisHandler.Get)
	protected.Get("/analysis/:analysisId/recommendations", recHandler.List)
	protected.Get("/recommendations/:recId/article", recHandler.Article)
	protected.Post("/recommendations/:recId/feedback", recHandler.Feedback)

	protected.Get("/history", historyHandler.List)
	protected.Delete("/history/:uploadId", historyHandler.Delete)

	// Uploaded images are served back to the owner's frontend
	app.Static("/uploads", cfg.UploadDir)

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("\n🛑 Shutting down server...")
		jobScheduler.Stop()

		if err := app.Shutdown(); err != nil {
			log.Printf("⚠️ Error shutting down server: %v", err)
		}
	}()

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}
