package handler

import (
	"net/http"

	"signaling-service/internal/signaling"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PresenceHandler exposes the hub's in-memory presence registry over
// REST, for UI surfaces that do not hold a socket.
type PresenceHandler struct {
	hub    *signaling.Hub
	logger *zap.Logger
}

func NewPresenceHandler(hub *signaling.Hub, logger *zap.Logger) *PresenceHandler {
	return &PresenceHandler{
		hub:    hub,
		logger: logger,
	}
}

// GetOnlineUsers godoc
// @Summary      온라인 사용자 목록
// @Tags         presence
// @Security     BearerAuth
// @Success      200 {object} signaling.OnlineUsersPayload
// @Router       /presence/online [get]
func (h *PresenceHandler) GetOnlineUsers(c *gin.Context) {
	c.JSON(http.StatusOK, signaling.OnlineUsersPayload{
		Users: h.hub.OnlineUsers(),
	})
}

// GetUserStatus godoc
// @Summary      특정 사용자 온라인 상태
// @Tags         presence
// @Security     BearerAuth
// @Param        userId path string true "User ID"
// @Success      200 {object} signaling.OnlineUser
// @Failure      404 {object} map[string]interface{}
// @Router       /presence/status/{userId} [get]
func (h *PresenceHandler) GetUserStatus(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   gin.H{"code": "BAD_REQUEST", "message": "Invalid user ID"},
		})
		return
	}

	status, ok := h.hub.UserStatus(userID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   gin.H{"code": "NOT_FOUND", "message": "User is not online"},
		})
		return
	}

	c.JSON(http.StatusOK, status)
}
