// @title           Signaling Service API
// @version         1.0
// @description     1:1 영상 통화 시그널링/프레즌스 서비스 API

// @host      localhost:8002
// @BasePath  /api/signaling

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"signaling-service/internal/client"
	"signaling-service/internal/config"
	"signaling-service/internal/database"
	"signaling-service/internal/handler"
	"signaling-service/internal/router"
	"signaling-service/internal/service"
	"signaling-service/internal/signaling"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load(getEnv("CONFIG_PATH", "config.yaml"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	var logger *zap.Logger
	if cfg.Server.Env == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	userServiceURL := getEnv("USER_SERVICE_URL", "http://localhost:8080/api/users")
	if cfg.Services.UserServiceURL != "" {
		userServiceURL = cfg.Services.UserServiceURL
	}
	authServiceURL := getEnv("AUTH_SERVICE_URL", "http://localhost:8090")
	if cfg.Auth.ServiceURL != "" {
		authServiceURL = cfg.Auth.ServiceURL
	}
	corsOrigins := getEnv("CORS_ORIGINS", "*")

	logger.Info("🔧 Starting Signaling Service",
		zap.Int("port", cfg.Server.Port),
		zap.String("userServiceURL", userServiceURL),
		zap.String("authServiceURL", authServiceURL),
		zap.Int("ringTimeoutSeconds", cfg.Signaling.RingTimeoutSeconds))

	// PostgreSQL 연결 시도 (실패해도 앱은 시작됨 - 통화 기록만 영향)
	if _, err := database.InitPostgres(); err != nil {
		logger.Warn("⚠️  Failed to connect to PostgreSQL on startup, will retry in background",
			zap.Error(err))
		database.InitPostgresAsync(5 * time.Second)
	} else {
		logger.Info("✅ PostgreSQL connected")
	}

	// Redis 연결 (presence mirror, 없어도 동작)
	database.InitRedis()

	userClient := client.NewUserClient(userServiceURL, authServiceURL, 10*time.Second)
	historyService := service.NewHistoryService(logger)

	hub := signaling.NewHub(userClient, historyService, logger, signaling.Options{
		RingTimeout: time.Duration(cfg.Signaling.RingTimeoutSeconds) * time.Second,
		SendBuffer:  cfg.Signaling.SendBufferSize,
	})

	presenceHandler := handler.NewPresenceHandler(hub, logger)
	historyHandler := handler.NewHistoryHandler(historyService, logger)

	r := router.Setup(cfg, logger, hub, presenceHandler, historyHandler, corsOrigins)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Info("🚀 Signaling Service started successfully",
		zap.String("address", addr))

	if err := r.Run(addr); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
