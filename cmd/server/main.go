package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"studyforge/internal/access"
	"studyforge/internal/config"
	"studyforge/internal/database"
	"studyforge/internal/features"
	"studyforge/internal/handlers"
	"studyforge/internal/jobs"
	"studyforge/internal/logging"
	"studyforge/internal/middleware"
	"studyforge/internal/services"
	"studyforge/pkg/auth"
)

// stores bundles the persistence backends selected by STORE_BACKEND and USAGE_BACKEND
type stores struct {
	users   services.UserStore
	history services.HistoryStore
	usage   services.UsageStore
	site    services.SiteStore
	redis   *services.RedisService // nil without REDIS_URL
	checks  map[string]handlers.HealthCheck
	closers []func()
}

func (s *stores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func openStores(cfg *config.Config) *stores {
	s := &stores{checks: make(map[string]handlers.HealthCheck)}

	switch cfg.StoreBackend {
	case config.StoreBackendMongo:
		log.Println("🔗 Connecting to MongoDB...")
		mongoDB, err := database.NewMongoDB(cfg.MongoURI)
		if err != nil {
			log.Fatalf("❌ Failed to connect to MongoDB: %v", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := mongoDB.Initialize(ctx); err != nil {
			log.Fatalf("❌ Failed to initialize MongoDB: %v", err)
		}
		s.closers = append(s.closers, func() { mongoDB.Close(context.Background()) })
		s.checks["mongodb"] = mongoDB.Ping

		s.users = services.NewMongoUserStore(mongoDB)
		s.history = services.NewMongoHistoryStore(mongoDB)
		s.usage = services.NewMongoUsageStore(mongoDB)
		s.site = services.NewMongoSiteStore(mongoDB)
		log.Println("✅ MongoDB stores initialized")

	case config.StoreBackendSQL:
		db, err := database.New(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("❌ Failed to connect to database: %v", err)
		}
		if err := db.Initialize(); err != nil {
			log.Fatalf("❌ Failed to initialize database: %v", err)
		}
		s.closers = append(s.closers, func() { db.Close() })
		s.checks["database"] = db.PingContext

		s.users = services.NewSQLUserStore(db)
		s.history = services.NewSQLHistoryStore(db)
		s.usage = services.NewSQLUsageStore(db)
		s.site = services.NewSQLSiteStore(db)
		log.Printf("✅ SQL stores initialized (%s)", db.Dialect)

	default:
		log.Fatalf("❌ Unknown STORE_BACKEND %q (expected %q or %q)", cfg.StoreBackend, config.StoreBackendSQL, config.StoreBackendMongo)
	}

	if cfg.RedisURL != "" {
		log.Println("🔗 Connecting to Redis...")
		redisService, err := services.NewRedisService(cfg.RedisURL)
		if err != nil {
			log.Fatalf("❌ Failed to connect to Redis: %v", err)
		}
		s.redis = redisService
		s.closers = append(s.closers, func() { redisService.Close() })
		s.checks["redis"] = redisService.Ping
	}

	if cfg.UsageBackend == config.UsageBackendRedis {
		if s.redis == nil {
			log.Fatal("❌ USAGE_BACKEND=redis requires REDIS_URL")
		}
		s.usage = services.NewRedisUsageStore(s.redis)
		log.Println("✅ Usage counters stored in Redis")
	}

	return s
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Initialize structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🚀 Starting StudyForge Server...")

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	} else {
		log.Println("✅ .env file loaded successfully")
	}

	cfg := config.Load()
	log.Printf("📋 Configuration loaded (Port: %s, Store: %s, Usage: %s)", cfg.Port, cfg.StoreBackend, cfg.UsageBackend)

	registry, err := features.Default()
	if err != nil {
		log.Fatalf("❌ Failed to load feature catalog: %v", err)
	}
	log.Printf("✅ Feature catalog loaded (%d features in %d categories)", registry.Len(), len(registry.Categories()))

	st := openStores(cfg)

	// Initialize authentication
	if cfg.JWTSecret == "" {
		log.Fatal("❌ JWT_SECRET is required. Generate with: openssl rand -hex 64")
	}
	jwtAuth, err := auth.NewLocalJWTAuth(cfg.JWTSecret, cfg.AccessTokenExpiry, cfg.RefreshTokenExpiry)
	if err != nil {
		log.Fatalf("❌ Failed to initialize JWT authentication: %v", err)
	}
	log.Printf("✅ Local JWT authentication initialized (access: %v, refresh: %v)", cfg.AccessTokenExpiry, cfg.RefreshTokenExpiry)

	// Initialize generation
	if cfg.GeminiAPIKey == "" {
		log.Fatal("❌ GEMINI_API_KEY is required")
	}
	generator, err := services.NewGeminiGenerator(context.Background(), cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GenerationTimeout)
	if err != nil {
		log.Fatalf("❌ Failed to initialize Gemini client: %v", err)
	}
	log.Printf("✅ Gemini generator initialized (model: %s)", cfg.GeminiModel)

	var mailer services.Mailer = services.LogMailer{}
	if cfg.SendGridAPIKey != "" {
		mailer = services.NewSendGridMailer(cfg.SendGridAPIKey, cfg.MailFrom)
		log.Println("✅ SendGrid mailer initialized")
	} else {
		log.Println("⚠️  SENDGRID_API_KEY not set - emails will be logged instead of sent")
	}

	var google services.GoogleVerifier
	if cfg.GoogleClientID != "" {
		google = services.NewIDTokenVerifier(cfg.GoogleClientID)
		log.Println("✅ Google sign-in enabled")
	} else {
		log.Println("⚠️  GOOGLE_CLIENT_ID not set - Google sign-in disabled")
	}

	// Initialize services
	userService := services.NewUserService(st.users, jwtAuth, mailer, google, cfg)
	historyService := services.NewHistoryService(st.history, registry)
	usageService := services.NewUsageService(st.usage, registry)
	siteService := services.NewSiteService(st.site, registry, cfg.FlagCacheTTL)
	controllers := services.NewControllerSet(registry, generator, historyService, usageService)
	dashboardService := services.NewDashboardService(registry, siteService, usageService, generator)
	sessionBus := services.NewSessionEventBus()

	// Relay session events between instances when Redis is available
	var sessionRelay *services.SessionRelay
	if st.redis != nil {
		sessionRelay = services.NewSessionRelay(st.redis, sessionBus, uuid.New().String())
		if err := sessionRelay.Start(); err != nil {
			log.Printf("⚠️ Failed to start session relay: %v (events stay local)", err)
			sessionRelay.Stop()
			sessionRelay = nil
		}
	} else {
		log.Println("⚠️ REDIS_URL not set - session events stay on this instance")
	}
	accessTable := access.NewTable(registry)

	if cfg.MetricsEnabled {
		services.InitMetrics(controllers.InFlight)
		log.Println("✅ Prometheus metrics initialized")
	}

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "StudyForge v1.0",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 180 * time.Second, // generation requests wait on the model
		IdleTimeout:  120 * time.Second,
		BodyLimit:    1 * 1024 * 1024,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())

	if cfg.MetricsEnabled {
		prometheus := fiberprometheus.New("studyforge")
		prometheus.RegisterAt(app, "/metrics")
		app.Use(prometheus.Middleware)
		log.Println("📊 Prometheus metrics endpoint enabled at /metrics")
	}

	rateLimitConfig := middleware.LoadRateLimitConfig()
	log.Printf("🛡️  [RATE-LIMIT] Loaded config: Global=%d/min, Auth=%d/min, Generation=%d/min, WS=%d/min",
		rateLimitConfig.GlobalAPIMax,
		rateLimitConfig.AuthMax,
		rateLimitConfig.GenerationMax,
		rateLimitConfig.WebSocketMax,
	)

	// CORS configuration with environment-based origins
	allowedOrigins := cfg.AllowedOrigins
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:5173,http://localhost:3000"
		log.Println("⚠️  ALLOWED_ORIGINS not set, using development defaults")
	}

	// Fiber's CORS middleware does not allow AllowCredentials with wildcard origins
	allowCredentials := allowedOrigins != "*"

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization",
		AllowCredentials: allowCredentials,
	}))
	log.Printf("🔒 [SECURITY] CORS allowed origins: %s", allowedOrigins)

	app.Use("/api", middleware.GlobalAPIRateLimiter(rateLimitConfig))

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(controllers, st.checks)
	featureHandler := handlers.NewFeatureHandler(registry, controllers)
	historyHandler := handlers.NewHistoryHandler(historyService)
	dashboardHandler := handlers.NewDashboardHandler(dashboardService)
	navigationHandler := handlers.NewNavigationHandler(accessTable)
	adminHandler := handlers.NewAdminHandler(usageService, siteService)
	authHandler := handlers.NewLocalAuthHandler(userService, sessionBus, cfg.AccessTokenExpiry, cfg.RefreshTokenExpiry)
	sessionWSHandler := handlers.NewSessionWebSocketHandler(sessionBus)

	app.Get("/health", healthHandler.Handle)

	api := app.Group("/api", middleware.OptionalLocalAuthMiddleware(jwtAuth))
	{
		// Catalog (public)
		api.Get("/features", featureHandler.List)
		api.Get("/features/:id", featureHandler.Get)
		api.Get("/categories", featureHandler.Categories)

		// Landing page (optional auth)
		api.Get("/dashboard", dashboardHandler.Get)
		api.Get("/affirmation", dashboardHandler.Affirmation)

		// Client router admission
		api.Get("/navigation", navigationHandler.Decide)
		api.Get("/navigation/routes", navigationHandler.Routes)

		// Account routes
		authLimiter := middleware.AuthRateLimiter(rateLimitConfig)
		authRoutes := api.Group("/auth")
		authRoutes.Post("/register", authLimiter, authHandler.Register)
		authRoutes.Post("/login", authLimiter, authHandler.Login)
		authRoutes.Post("/google", authLimiter, authHandler.Google)
		authRoutes.Post("/refresh", authHandler.RefreshToken)
		authRoutes.Post("/logout", authHandler.Logout)
		authRoutes.Get("/me", authHandler.GetCurrentUser)
		authRoutes.Post("/send-verification", authLimiter, authHandler.SendVerification)
		authRoutes.Post("/verify-email", authLimiter, authHandler.VerifyEmail)
		authRoutes.Post("/forgot-password", authLimiter, authHandler.ForgotPassword)
		authRoutes.Post("/reset-password", authLimiter, authHandler.ResetPassword)

		// Member routes (verified email required)
		requireMember := middleware.RequireMember()
		generationLimiter := middleware.GenerationRateLimiter(rateLimitConfig)
		api.Post("/features/practice-quiz/score", requireMember, featureHandler.QuizScore)
		api.Post("/features/:id/generate", requireMember, generationLimiter, featureHandler.Generate)
		api.Get("/features/:id/state", requireMember, featureHandler.State)
		api.Delete("/features/:id/state", requireMember, featureHandler.Reset)
		api.Get("/history/:featureId", requireMember, historyHandler.List)
		api.Delete("/history/:featureId/:id", requireMember, historyHandler.Delete)

		// Admin panel
		admin := api.Group("/admin", middleware.RequireAdmin())
		admin.Get("/stats", adminHandler.Stats)
		admin.Get("/usage", adminHandler.Usage)
		admin.Get("/usage/export", adminHandler.ExportUsage)
		admin.Get("/flags", adminHandler.Flags)
		admin.Put("/flags/:featureId", adminHandler.SetFlag)
		admin.Get("/broadcast", adminHandler.Broadcast)
		admin.Put("/broadcast", adminHandler.SetBroadcast)
	}

	// WebSocket route (session stream)
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	wsConfig := websocket.Config{
		Origins: strings.Split(allowedOrigins, ","),
	}

	app.Use("/ws/session", middleware.WebSocketRateLimiter(rateLimitConfig))
	app.Use("/ws/session", middleware.OptionalLocalAuthMiddleware(jwtAuth))
	app.Get("/ws/session", websocket.New(sessionWSHandler.Handle, wsConfig))

	// Background jobs
	jobScheduler, err := jobs.NewJobScheduler()
	if err != nil {
		log.Fatalf("❌ Failed to create job scheduler: %v", err)
	}
	if err := jobScheduler.Register("token_cleanup", jobs.NewTokenCleanupJob(userService, time.Hour)); err != nil {
		log.Printf("⚠️  %v", err)
	}
	if err := jobScheduler.Register("state_prune", jobs.NewStatePruneJob(controllers, 10*time.Minute, 24*time.Hour)); err != nil {
		log.Printf("⚠️  %v", err)
	}
	jobScheduler.Start()
	log.Println("✅ Background job scheduler started")

	// Serve frontend static files when a build is present
	if frontendDir := os.Getenv("FRONTEND_DIR"); frontendDir != "" {
		if _, err := os.Stat(frontendDir); err == nil {
			app.Static("/", frontendDir, fiber.Static{
				Compress:      true,
				CacheDuration: 24 * time.Hour,
			})
			// SPA fallback: the client router decides through /api/navigation
			app.Get("/*", func(c *fiber.Ctx) error {
				path := c.Path()
				if strings.HasPrefix(path, "/api/") ||
					strings.HasPrefix(path, "/ws/") ||
					path == "/health" ||
					path == "/metrics" {
					return c.Next()
				}
				return c.SendFile(filepath.Join(frontendDir, "index.html"))
			})
			log.Printf("🌐 Frontend serving from %s", frontendDir)
		} else {
			log.Printf("⚠️  FRONTEND_DIR %s not found", frontendDir)
		}
	}

	log.Printf("✅ Server ready on port %s", cfg.Port)
	log.Printf("🔗 Session stream: ws://localhost:%s/ws/session", cfg.Port)
	log.Printf("📡 Health check: http://localhost:%s/health", cfg.Port)

	// Handle graceful shutdown
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("\n🛑 Shutting down server...")

		// Stop accepting requests before draining detached writes
		if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
			log.Printf("⚠️ Error shutting down server: %v", err)
		}

		if !controllers.Drain(30 * time.Second) {
			log.Println("⚠️ Timed out waiting for history and usage writes")
		}

		jobScheduler.Stop()

		if sessionRelay != nil {
			if err := sessionRelay.Stop(); err != nil {
				log.Printf("⚠️ Error stopping session relay: %v", err)
			}
		}
		st.close()
	}()

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
	<-shutdownDone
	log.Println("👋 Server stopped")
}
