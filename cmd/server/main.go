package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/inkify/engine/internal/cache"
	"github.com/inkify/engine/internal/config"
	"github.com/inkify/engine/internal/database"
	"github.com/inkify/engine/internal/engagement"
	"github.com/inkify/engine/internal/feed"
	"github.com/inkify/engine/internal/handlers"
	"github.com/inkify/engine/internal/identity"
	"github.com/inkify/engine/internal/logger"
	"github.com/inkify/engine/internal/metrics"
	"github.com/inkify/engine/internal/middleware"
	"github.com/inkify/engine/internal/notify"
	"github.com/inkify/engine/internal/store"
	"github.com/inkify/engine/internal/telemetry"
	"github.com/inkify/engine/internal/thread"
	"github.com/inkify/engine/internal/websocket"
)

func main() {
	// .env is optional, system environment wins
	_ = godotenv.Load()

	cfg := config.Load()

	if err := logger.Initialize(cfg.LogLevel, cfg.LogFile); err != nil {
		os.Exit(1)
	}
	defer logger.Close()

	logger.Log.Info("=== Inkify engine starting ===",
		zap.String("environment", cfg.Environment),
		zap.String("port", cfg.Port))

	if err := database.Initialize(); err != nil {
		logger.FatalWithFields("Failed to initialize database", err)
	}
	defer database.Close()

	if err := database.Migrate(); err != nil {
		logger.FatalWithFields("Failed to run migrations", err)
	}

	// Redis is optional: the resolver and view guard degrade gracefully
	redisClient, err := cache.NewRedisClient(cfg.RedisHost, cfg.RedisPort, cfg.RedisPassword)
	if err != nil {
		logger.Log.Warn("Redis unavailable, continuing without cache", zap.Error(err))
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	metrics.Initialize()

	tp, err := telemetry.InitTracer(telemetry.Config{
		ServiceName:  "inkify-engine",
		Environment:  cfg.Environment,
		OTLPEndpoint: cfg.OTLPEndpoint,
		Enabled:      cfg.TracingEnabled,
		SamplingRate: 1.0,
	})
	if err != nil {
		logger.Log.Warn("tracing disabled", zap.Error(err))
	}
	if tp != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tp.Shutdown(ctx)
		}()
	}

	docStore := store.NewGormStore(database.DB)
	resolver := identity.NewResolver(docStore, redisClient, cfg.ResolverTTL)

	jwtSecret := []byte(cfg.JWTSecret)
	wsHub := websocket.NewHub()
	wsHandler := websocket.NewHandler(wsHub, jwtSecret)

	notifications := notify.NewService(docStore, cfg.NotificationCap, wsHandler)
	wsHandler.SetNotificationService(notifications)
	wsHandler.RegisterDefaultHandlers()

	ledger := engagement.NewLedger(docStore, notifications, resolver, redisClient, cfg.ViewDebounce)
	threads := thread.NewService(docStore, notifications, resolver)
	feedSvc := feed.NewService(docStore, resolver, cfg.FeedPageSize)

	go wsHub.Run()

	bridgeCtx, bridgeCancel := context.WithCancel(context.Background())
	defer bridgeCancel()
	go websocket.NewBridge(docStore, wsHub).Run(bridgeCtx)

	h := handlers.NewHandlers(docStore, feedSvc, threads, ledger, notifications, resolver, jwtSecret)
	h.SetWebSocketHandler(wsHandler)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.GinLoggerMiddleware())
	r.Use(middleware.MetricsMiddleware())
	r.Use(gzip.Gzip(gzip.DefaultCompression))
	if cfg.TracingEnabled {
		r.Use(middleware.TracingMiddleware("inkify-engine"))
	}

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"*"} // Configure properly for production
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-Request-ID"}
	r.Use(cors.New(corsConfig))

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		status := "ok"
		code := http.StatusOK
		if err := database.Health(); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":    status,
			"timestamp": time.Now().UTC(),
			"service":   "inkify-engine",
		})
	})

	// Prometheus scrape endpoint
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API routes
	api := r.Group("/api/v1")
	{
		// Public routes (no auth)
		public := api.Group("/public")
		{
			public.GET("/feed", h.GetPublicFeed)
		}
		api.GET("/posts/recent", h.GetRecentPosts)
		api.GET("/categories", h.GetCategories)

		// Feed routes
		api.GET("/feed", h.AuthMiddleware(), h.GetFeed)

		// Post routes
		posts := api.Group("/posts")
		{
			posts.Use(h.AuthMiddleware())
			posts.POST("", middleware.RateLimitSmartWrites(), h.CreatePost)
			posts.GET("/saved", h.GetSavedPosts)
			posts.GET("/:id", h.GetPost)
			posts.PATCH("/:id", h.UpdatePost)
			posts.DELETE("/:id", h.DeletePost)

			// Engagement
			posts.POST("/:id/like", h.ToggleLike)
			posts.POST("/:id/save", h.ToggleSave)
			posts.POST("/:id/share", h.SharePost)
			posts.POST("/:id/view", h.RecordView)

			// Comments
			posts.GET("/:id/comments", h.GetComments)
			posts.POST("/:id/comments", middleware.RateLimitSmartWrites(), h.AddComment)
			posts.POST("/:id/comments/reply", middleware.RateLimitSmartWrites(), h.AddReply)
			posts.DELETE("/:id/comments", h.DeleteComment)
		}

		// User routes
		users := api.Group("/users")
		{
			users.Use(h.AuthMiddleware())
			users.GET("/:id", h.GetUser)
			users.GET("/:id/stats", h.GetUserStats)
			users.POST("/:id/follow", h.FollowUser)
			users.DELETE("/:id/follow", h.UnfollowUser)
		}

		// Profile routes
		api.GET("/profile", h.AuthMiddleware(), h.GetProfile)
		api.PATCH("/profile", h.AuthMiddleware(), h.UpdateProfile)

		// Notification routes
		notifs := api.Group("/notifications")
		{
			notifs.Use(h.AuthMiddleware())
			notifs.GET("", h.GetNotifications)
			notifs.GET("/counts", h.GetNotificationCounts)
			notifs.POST("/read", h.MarkNotificationsRead)
			notifs.POST("/seen", h.MarkNotificationsSeen)
		}
	}

	// WebSocket routes - auth via query param ?token=... or Authorization header
	r.GET("/ws", wsHandler.HandleWebSocket)
	r.GET("/ws/metrics", h.AuthMiddleware(), wsHandler.HandleMetrics)
	r.POST("/ws/online", h.AuthMiddleware(), wsHandler.HandleOnlineStatus)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		logger.Log.Info("engine listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.FatalWithFields("Failed to start server", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("shutting down server")

	// Give outstanding requests 30 seconds to complete
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := wsHandler.Shutdown(ctx); err != nil {
		logger.Log.Warn("websocket shutdown", zap.Error(err))
	}
	if err := srv.Shutdown(ctx); err != nil {
		logger.FatalWithFields("Server forced to shutdown", err)
	}

	logger.Log.Info("server exited")
}
