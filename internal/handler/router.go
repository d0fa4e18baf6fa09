package handler

import (
	"net/http"
	"time"

	"github.com/Baaaki/parley/internal/metrics"
	"github.com/Baaaki/parley/internal/middleware"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterConfig carries everything the HTTP surface is assembled from.
// RateLimiter is optional.
type RouterConfig struct {
	Auth          *AuthHandler
	Conversations *ConversationHandler
	Messages      *MessageHandler
	WebSocket     *WebSocketHandler
	Authenticator middleware.Authenticator
	RateLimiter   *middleware.RateLimiter

	AllowedOrigins []string
	IsProduction   bool
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(metrics.HTTP())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.HSTS(cfg.IsProduction))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Upgrades must not pass through gzip or the REST rate limiter.
	router.GET("/ws/conversation/:id", cfg.WebSocket.HandleWebSocket)
	router.GET("/ws/chat/:id", cfg.WebSocket.HandleWebSocket)

	api := router.Group("/api")
	api.Use(gzip.Gzip(gzip.DefaultCompression))
	if cfg.RateLimiter != nil {
		api.Use(cfg.RateLimiter.Middleware())
	}

	auth := api.Group("/auth")
	{
		auth.POST("/register", cfg.Auth.Register)
		auth.POST("/login", cfg.Auth.Login)
	}

	protected := api.Group("/conversations")
	protected.Use(middleware.Auth(cfg.Authenticator))
	{
		protected.GET("", cfg.Conversations.List)
		protected.POST("/direct", cfg.Conversations.StartDirect)
		protected.POST("/group", cfg.Conversations.CreateGroup)

		protected.GET("/:id/messages", cfg.Messages.Page)
		protected.POST("/:id/messages", cfg.Messages.Send)
		protected.POST("/:id/messages/read", cfg.Messages.MarkRead)
		protected.PATCH("/:id/messages/:message_id", cfg.Messages.Edit)
		protected.DELETE("/:id/messages/:message_id", cfg.Messages.Delete)
		protected.POST("/:id/messages/:message_id/pin", cfg.Messages.Pin)
		protected.DELETE("/:id/messages/:message_id/pin", cfg.Messages.Unpin)
		protected.GET("/:id/pinned", cfg.Messages.Pinned)
	}

	return router
}
