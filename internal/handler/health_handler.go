package handler

import (
	"context"
	"net/http"
	"time"

	"signaling-service/internal/database"

	"github.com/gin-gonic/gin"
)

type HealthHandler struct{}

func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "signaling-service",
	})
}

// Ready reports dependency health. Postgres and Redis are auxiliary
// (history and presence mirror); the socket plane runs without them, so
// the probe reports their state but always answers 200.
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	dbStatus := "down"
	if db := database.GetDB(); db != nil {
		if sqlDB, err := db.DB(); err == nil {
			if err := sqlDB.PingContext(ctx); err == nil {
				dbStatus = "up"
			}
		}
	}

	redisStatus := "down"
	if rdb := database.GetRedis(); rdb != nil {
		if err := rdb.Ping(ctx).Err(); err == nil {
			redisStatus = "up"
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "ready",
		"database": dbStatus,
		"redis":    redisStatus,
	})
}
