package router

import (
	"signaling-service/internal/config"
	"signaling-service/internal/handler"
	"signaling-service/internal/middleware"
	"signaling-service/internal/signaling"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func Setup(
	cfg *config.Config,
	logger *zap.Logger,
	hub *signaling.Hub,
	presenceHandler *handler.PresenceHandler,
	historyHandler *handler.HistoryHandler,
	corsOrigins string,
) *gin.Engine {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS(corsOrigins))
	r.Use(middleware.MetricsMiddleware())

	validator := middleware.NewAuthServiceValidator(cfg.Auth.ServiceURL, cfg.Auth.SecretKey, logger)
	healthHandler := handler.NewHealthHandler()

	// Health endpoints (no auth)
	r.GET("/health", healthHandler.Health)
	r.GET("/ready", healthHandler.Ready)
	r.GET("/metrics", middleware.MetricsHandler())

	// API routes with base path
	api := r.Group(cfg.Server.BasePath)
	{
		api.GET("/health", healthHandler.Health)
		api.GET("/ready", healthHandler.Ready)

		// Signaling WebSocket: credential rides in the handshake, the
		// hub authenticates before upgrading.
		api.GET("/ws", hub.HandleWebSocket)

		authenticated := api.Group("")
		authenticated.Use(middleware.AuthMiddleware(validator))
		{
			authenticated.GET("/presence/online", presenceHandler.GetOnlineUsers)
			authenticated.GET("/presence/status/:userId", presenceHandler.GetUserStatus)

			authenticated.GET("/calls/history", historyHandler.GetMyCallHistory)
		}
	}

	return r
}
