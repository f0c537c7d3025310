package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"aipa/internal/config"
	"aipa/internal/handlers"
	"aipa/internal/jobs"
	"aipa/internal/logging"
	"aipa/internal/middleware"
	"aipa/internal/platform"
	"aipa/internal/services"
	"aipa/internal/store"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Initialize structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🚀 Starting AIPA Server...")

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	} else {
		log.Println("✅ .env file loaded successfully")
	}

	// Load configuration
	cfg := config.Load()
	log.Printf("📋 Configuration loaded (Port: %s, Env: %s)", cfg.Port, cfg.Environment)

	// Initialize session store: MongoDB when configured, SQLite otherwise
	var repo store.Repository
	if cfg.MongoURI != "" {
		log.Println("🔗 Connecting to MongoDB...")
		mongoRepo, err := store.NewMongoRepository(cfg.MongoURI, "aipa")
		if err != nil {
			log.Fatalf("❌ Failed to connect to MongoDB: %v", err)
		}
		repo = mongoRepo
	} else {
		log.Printf("📂 MONGODB_URI not set, using SQLite at %s", cfg.SQLitePath())
		sqliteRepo, err := store.NewSQLiteRepository(cfg.SQLitePath())
		if err != nil {
			log.Fatalf("❌ Failed to initialize SQLite store: %v", err)
		}
		repo = sqliteRepo
	}
	defer repo.Close(context.Background())

	// Prometheus custom metrics
	services.InitMetrics()

	// Session service + namer
	sessionService := services.NewSessionService(repo)
	namerService := services.NewNamerService(cfg.OpenAIAPIKey, cfg.NamerModel)
	if cfg.OpenAIAPIKey == "" {
		log.Println("⚠️  OPENAI_API_KEY not set - session names use truncation fallback")
	}

	// Platform client + wake controller
	var lifecycleService *services.LifecycleService
	if cfg.PlatformURL != "" {
		platformClient := platform.NewHTTPClient(cfg.PlatformURL, cfg.PlatformServiceID, cfg.PlatformAPIKey, cfg.PlatformTimeout)
		lifecycleService = services.NewLifecycleService(platformClient, cfg.WakeMaxWait)
		log.Printf("✅ Platform client initialized (service: %s)", cfg.PlatformServiceID)
	} else {
		log.Println("⚠️  PLATFORM_URL not set - lifecycle endpoints disabled")
	}

	// Redis-backed activity metrics
	var activityService *services.ActivityService
	if cfg.RedisURL != "" {
		log.Println("🔗 Connecting to Redis...")
		redisService, err := services.NewRedisService(cfg.RedisURL)
		if err != nil {
			log.Printf("⚠️ Failed to connect to Redis: %v (idle shutdown disabled)", err)
		} else {
			defer redisService.Close()
			activityService = services.NewActivityService(redisService)
		}
	} else {
		log.Println("⚠️  REDIS_URL not set - activity tracking and idle shutdown disabled")
	}

	// Background jobs: idle checker
	var scheduler *jobs.Scheduler
	if lifecycleService != nil && activityService != nil {
		var err error
		scheduler, err = jobs.NewScheduler()
		if err != nil {
			log.Fatalf("❌ Failed to create job scheduler: %v", err)
		}

		idleChecker := jobs.NewIdleChecker(
			lifecycleService,
			activityService,
			cfg.IdleTimeout,
			cfg.IdleMinActivity,
			cfg.IdleTickInterval,
		)
		if err := scheduler.Register(idleChecker); err != nil {
			log.Fatalf("❌ Failed to register idle checker: %v", err)
		}
		scheduler.Start()
		log.Printf("🕐 Idle checker: every %v, window %v, threshold %d",
			cfg.IdleTickInterval, cfg.IdleTimeout, cfg.IdleMinActivity)
	}

	// Artifact watcher over the workspace files directory
	var artifactWatcher *services.ArtifactWatcher
	filesDir := filepath.Join(cfg.WorkspacePath, "files")
	artifactWatcher, err := services.NewArtifactWatcher(sessionService, filesDir)
	if err != nil {
		log.Printf("⚠️ Failed to start artifact watcher: %v", err)
		artifactWatcher = nil
	} else {
		artifactWatcher.Start()
	}

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "AIPA v1.0",
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
		BodyLimit:    5 * 1024 * 1024, // 5MB is plenty for message payloads
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())

	// Prometheus metrics middleware
	prometheus := fiberprometheus.New("aipa")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)
	log.Println("📊 Prometheus metrics endpoint enabled at /metrics")

	// CORS configuration with environment-based origins
	allowedOrigins := cfg.AllowedOrigins
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:5173,http://localhost:3000"
		log.Println("⚠️  ALLOWED_ORIGINS not set, using development defaults")
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization",
		AllowCredentials: allowedOrigins != "*",
	}))

	// Count traffic into the idle-detection window. Registered after
	// /metrics so scrapes are not mistaken for user activity.
	if activityService != nil {
		app.Use(middleware.ActivityRecorder(activityService))
	}

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(repo)
	sessionHandler := handlers.NewSessionHandler(sessionService, namerService)

	// Routes
	app.Get("/health", healthHandler.Handle)

	if lifecycleService != nil {
		lifecycleHandler := handlers.NewLifecycleHandler(lifecycleService)
		app.Get("/status", lifecycleHandler.Status)
		app.Get("/wake", lifecycleHandler.Wake)
		app.Post("/wake", lifecycleHandler.Wake)
		app.Post("/shutdown", lifecycleHandler.Shutdown)
	}

	api := app.Group("/api")
	sessions := api.Group("/sessions")
	sessions.Get("", sessionHandler.List)
	sessions.Post("", sessionHandler.Create)
	sessions.Get("/:id", sessionHandler.Get)
	sessions.Patch("/:id", sessionHandler.Update)
	sessions.Post("/:id/messages", sessionHandler.AddMessage)
	sessions.Post("/:id/fork", sessionHandler.Fork)
	sessions.Get("/:id/storage-mode", sessionHandler.StorageMode)
	api.Get("/artifacts/owner", sessionHandler.ResolveArtifactOwner)

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("\n🛑 Shutting down server...")

		if scheduler != nil {
			if err := scheduler.Stop(); err != nil {
				log.Printf("⚠️ Error stopping job scheduler: %v", err)
			}
		}

		if artifactWatcher != nil {
			if err := artifactWatcher.Stop(); err != nil {
				log.Printf("⚠️ Error stopping artifact watcher: %v", err)
			}
		}

		if err := app.Shutdown(); err != nil {
			log.Printf("⚠️ Error shutting down server: %v", err)
		}
	}()

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}
