package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"
	"time"

	"github.com/Baaaki/parley/internal/broker"
	"github.com/Baaaki/parley/internal/config"
	"github.com/Baaaki/parley/internal/database"
	"github.com/Baaaki/parley/internal/handler"
	"github.com/Baaaki/parley/internal/middleware"
	"github.com/Baaaki/parley/internal/notify"
	"github.com/Baaaki/parley/internal/realtime"
	"github.com/Baaaki/parley/internal/repository"
	"github.com/Baaaki/parley/internal/service"
	"github.com/Baaaki/parley/internal/wal"
	"github.com/Baaaki/parley/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const notifyBuffer = 1024

func main() {
	cfg, cfgErr := config.Load()
	if err := logger.Init(!cfg.IsProduction()); err != nil {
		panic(err)
	}
	defer logger.Sync()

	if cfgErr != nil {
		logger.Log.Fatal("Invalid configuration", zap.Error(cfgErr))
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(ctx, cfg)
	if err != nil {
		logger.Log.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		logger.Log.Fatal("Failed to run migrations", zap.Error(err))
	}

	// Broadcast group: Redis when configured, in-process otherwise.
	hub := broker.NewHub()
	var (
		group       broker.Broadcaster = broker.NewLocalBroadcaster(hub)
		notifier    service.Notifier
		redisClient *redis.Client
		background  = make(chan struct{})
	)
	close(background)

	if cfg.RedisURL != "" {
		redisClient, err = broker.ConnectRedis(ctx, cfg.RedisURL, cfg.StoreConnectAttempts, cfg.StoreConnectMaxWait)
		if err != nil {
			logger.Log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()

		redisGroup, err := broker.NewRedisBroadcaster(ctx, redisClient, hub)
		if err != nil {
			logger.Log.Fatal("Failed to subscribe to conversation groups", zap.Error(err))
		}
		defer redisGroup.Close()
		group = redisGroup

		if err := os.MkdirAll(filepath.Dir(cfg.WALPath), 0o755); err != nil {
			logger.Log.Fatal("Failed to create outbox directory", zap.Error(err))
		}
		outbox, err := wal.Open(cfg.WALPath)
		if err != nil {
			logger.Log.Fatal("Failed to open notification outbox", zap.Error(err))
		}
		defer outbox.Close()

		dispatcher := notify.NewDispatcher(outbox, notifyBuffer)
		defer dispatcher.Close()
		notifier = dispatcher

		forwarder := notify.NewForwarder(outbox, notify.NewRedisPublisher(redisClient), cfg.OutboxFlushInterval)
		background = make(chan struct{})
		go func() {
			defer close(background)
			forwarder.Run(ctx)
		}()
		logger.Log.Info("Redis broadcast and notification outbox enabled", zap.String("outbox", cfg.WALPath))
	} else {
		logger.Log.Warn("REDIS_URL not set; broadcasting in-process only and notifications disabled")
	}

	// Repositories
	userRepo := repository.NewUserRepository(db)
	conversationRepo := repository.NewConversationRepository(db)
	messageRepo := repository.NewMessageRepository(db)

	// Services
	authService := service.NewAuthService(userRepo, cfg.JWTSecret, cfg.JWTExpiry, cfg.Environment)
	conversationService := service.NewConversationService(conversationRepo)
	presenceService := service.NewPresenceService(userRepo)
	messageService := service.NewMessageService(messageRepo, conversationRepo, notifier, service.MessageLimits{
		PageDefault: cfg.PageDefaultLimit,
		PageMax:     cfg.PageMaxLimit,
		TextMax:     cfg.MaxMessageLength,
	})

	// Realtime
	eventRouter := realtime.NewRouter(messageService, group, cfg.BroadcastPins)
	gateway := realtime.NewGateway(authService, conversationService, presenceService, eventRouter, group, realtime.GatewayConfig{
		FrameRate:   cfg.WSFrameRate,
		FrameBurst:  cfg.WSFrameBurst,
		SendBuffer:  cfg.WSSendBuffer,
		CheckOrigin: originChecker(cfg.CORSAllowedOrigins),
	})

	var limiter *middleware.RateLimiter
	if redisClient != nil {
		limiter = middleware.NewRateLimiter(redisClient, middleware.RateLimiterConfig{
			MaxRequests: cfg.RateLimitMaxRequests,
			Window:      cfg.RateLimitWindow,
			BlockTime:   cfg.RateLimitBlockTime,
		})
	}

	router := handler.NewRouter(handler.RouterConfig{
		Auth:           handler.NewAuthHandler(authService),
		Conversations:  handler.NewConversationHandler(conversationService),
		Messages:       handler.NewMessageHandler(conversationService, messageService, eventRouter),
		WebSocket:      handler.NewWebSocketHandler(gateway),
		Authenticator:  authService,
		RateLimiter:    limiter,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		IsProduction:   cfg.IsProduction(),
	})

	srv := &http.Server{
		Addr:              cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Log.Info("Server starting",
			zap.String("addr", cfg.ServerPort),
			zap.String("environment", cfg.Environment),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	// Hijacked websocket connections are not tracked by Shutdown; they end
	// when the process exits and clients reconnect elsewhere.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("Graceful shutdown failed", zap.Error(err))
	}
	<-background
}

// originChecker allows browser upgrades only from the configured origins.
// Non-browser clients send no Origin header and are allowed.
func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || slices.Contains(allowed, "*") {
			return true
		}
		return slices.Contains(allowed, origin)
	}
}
