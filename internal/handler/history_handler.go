package handler

import (
	"errors"
	"net/http"
	"strconv"

	"signaling-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type HistoryHandler struct {
	historyService *service.HistoryService
	logger         *zap.Logger
}

func NewHistoryHandler(historyService *service.HistoryService, logger *zap.Logger) *HistoryHandler {
	return &HistoryHandler{
		historyService: historyService,
		logger:         logger,
	}
}

// GetMyCallHistory godoc
// @Summary      내 통화 기록 조회
// @Tags         calls
// @Security     BearerAuth
// @Param        limit query int false "Page size" default(20)
// @Param        offset query int false "Offset" default(0)
// @Success      200 {object} map[string]interface{}
// @Router       /calls/history [get]
func (h *HistoryHandler) GetMyCallHistory(c *gin.Context) {
	userID, ok := c.Get("user_id")
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error":   gin.H{"code": "UNAUTHORIZED", "message": "Missing user context"},
		})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	records, total, err := h.historyService.ListByUser(userID.(uuid.UUID), limit, offset)
	if err != nil {
		if errors.Is(err, service.ErrHistoryUnavailable) {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"success": false,
				"error":   gin.H{"code": "UNAVAILABLE", "message": "Call history is temporarily unavailable"},
			})
			return
		}
		h.logger.Error("Failed to list call history", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   gin.H{"code": "INTERNAL_ERROR", "message": "Failed to get call history"},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"calls": records,
		"total": total,
	})
}
