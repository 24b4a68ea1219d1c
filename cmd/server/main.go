package main

import (
	"log"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sekolahub/backend/config"
	"github.com/sekolahub/backend/internal/auth"
	"github.com/sekolahub/backend/internal/cache"
	"github.com/sekolahub/backend/internal/database"
	"github.com/sekolahub/backend/internal/handlers"
	"github.com/sekolahub/backend/internal/middleware"
	"github.com/sekolahub/backend/internal/repository"
	"github.com/sekolahub/backend/internal/service"
	"github.com/sekolahub/backend/internal/sync"
	"github.com/sekolahub/backend/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Server.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	db, err := database.NewPostgresDB(cfg.GetDSN())
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	logger.Info("running database migrations")
	if err := database.RunMigrations(db.DB); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}

	redisClient, err := cache.NewRedisClient(cfg.GetRedisAddr(), cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Warn("redis unavailable, realtime features disabled", zap.Error(err))
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpiryHours)

	// Repositories
	userRepo := repository.NewUserRepository(db)
	participantRepo := repository.NewParticipantRepository(db)
	convRepo := repository.NewConversationRepository(db)
	msgRepo := repository.NewMessageRepository(db)
	integrationRepo := repository.NewIntegrationRepository(db)
	directoryRepo := repository.NewDirectoryRepository(db)

	// Services
	var notifier service.Notifier
	var unreadCache service.UnreadCache
	if redisClient != nil {
		notifier = redisClient
		unreadCache = redisClient
	}
	convService := service.NewConversationService(convRepo, participantRepo)
	msgService := service.NewMessageService(msgRepo, convRepo, notifier, unreadCache)

	// Sync engine and scheduler
	engine := sync.NewEngine(integrationRepo, directoryRepo, logger, cfg.Sync.HTTPTimeout)
	scheduler := sync.NewScheduler(engine, integrationRepo, cfg.Sync.Interval, logger)
	go scheduler.Run()
	defer scheduler.Stop()

	// Handlers
	authHandler := handlers.NewAuthHandler(userRepo, jwtService)
	convHandler := handlers.NewConversationHandler(convService)
	msgHandler := handlers.NewMessageHandler(msgService)
	integrationHandler := handlers.NewIntegrationHandler(engine)

	// WebSocket hub (only if Redis is available)
	var wsHandler *websocket.Handler
	if redisClient != nil {
		hub := websocket.NewHub(redisClient, logger)
		go hub.Run()
		wsHandler = websocket.NewHandler(hub, jwtService, msgService, logger, cfg.CORS.AllowedOrigins)
	}

	rateLimiter := middleware.NewRateLimiter(cfg.API.RateLimitMessagesPerSec)
	rateLimiter.Cleanup()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	router.Use(middleware.CORSMiddleware(cfg.CORS.AllowedOrigins))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	authRoutes := router.Group("/auth")
	{
		authRoutes.POST("/login", authHandler.Login)
	}

	if wsHandler != nil {
		router.GET("/ws", wsHandler.HandleWebSocket)
	}

	api := router.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(jwtService))
	{
		api.GET("/me", authHandler.GetMe)

		// Conversation routes
		api.GET("/conversations", convHandler.List)
		api.POST("/conversations", convHandler.Create)
		api.GET("/conversations/:id", convHandler.Get)
		api.PUT("/conversations/:id", convHandler.Update)
		api.DELETE("/conversations/:id", convHandler.Delete)
		api.POST("/conversations/:id/members", convHandler.AddMembers)
		api.DELETE("/conversations/:id/members/:userId", convHandler.RemoveMember)

		// Message routes
		api.GET("/messages", msgHandler.List)
		api.POST("/messages", middleware.RateLimitMiddleware(rateLimiter), msgHandler.Send)
		api.GET("/messages/unread-count", msgHandler.UnreadCount)
		api.GET("/messages/:id", msgHandler.Get)
		api.PUT("/messages/:id/read", msgHandler.MarkRead)
		api.PUT("/messages/:id/archive", msgHandler.Archive)
		api.DELETE("/messages/:id", msgHandler.Delete)

		// Integration routes
		api.POST("/integrations", integrationHandler.Create)
		api.GET("/integrations/:id", integrationHandler.Get)
		api.PUT("/integrations/:id/activate", integrationHandler.Activate)
		api.PUT("/integrations/:id/deactivate", integrationHandler.Deactivate)
		api.POST("/integrations/:id/sync", integrationHandler.Sync)
		api.GET("/integrations/:id/logs", integrationHandler.Logs)

		if wsHandler != nil {
			api.GET("/online-users", wsHandler.GetOnlineUsers)
		}
	}

	// Provider-initiated pushes carry no user JWT; the engine gates on
	// integration status instead.
	router.POST("/api/v1/integrations/:id/webhook", integrationHandler.Webhook)

	addr := ":" + cfg.Server.Port
	logger.Info("starting server", zap.String("addr", addr), zap.String("env", cfg.Server.Env))
	if err := router.Run(addr); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
