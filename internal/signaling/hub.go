// internal/signaling/hub.go
package signaling

import (
	"context"
	"net/http"
	"sync"
	"time"

	"signaling-service/internal/client"
	"signaling-service/internal/database"
	"signaling-service/internal/middleware"
	"signaling-service/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// CallRecorder persists finished calls. The hub tolerates a nil recorder;
// history is an auxiliary concern and must never block signaling.
type CallRecorder interface {
	Record(record *model.CallHistory)
}

// Options tune the hub. Zero values fall back to defaults.
type Options struct {
	// RingTimeout bounds the RINGING state. <= 0 disables the timer.
	RingTimeout time.Duration
	// SendBuffer is the per-client outbound queue length.
	SendBuffer int
}

const defaultSendBuffer = 256

// Hub owns the presence registry and the room ledger. A single mutex
// serializes every transition (register, initiate, respond, end,
// disconnect), so each one is atomic across both structures; the relay
// only reads under the same lock. This is the single-writer discipline
// the whole subsystem's consistency rests on.
type Hub struct {
	mu       sync.Mutex
	registry *registry
	rooms    *ledger

	users    client.UserClient
	recorder CallRecorder
	logger   *zap.Logger

	ringTimeout time.Duration
	sendBuffer  int
}

func NewHub(users client.UserClient, recorder CallRecorder, logger *zap.Logger, opts Options) *Hub {
	sendBuffer := opts.SendBuffer
	if sendBuffer <= 0 {
		sendBuffer = defaultSendBuffer
	}
	return &Hub{
		registry:    newRegistry(),
		rooms:       newLedger(),
		users:       users,
		recorder:    recorder,
		logger:      logger,
		ringTimeout: opts.RingTimeout,
		sendBuffer:  sendBuffer,
	}
}

// HandleWebSocket godoc
// @Summary      Signaling WebSocket 연결
// @Description  토큰 검증 후 시그널링/프레즌스 WebSocket에 연결합니다
// @Tags         websocket
// @Param        token query string true "JWT Access Token"
// @Success      101 {string} string "Switching Protocols"
// @Failure      401 {object} map[string]string
// @Router       /ws [get]
func (h *Hub) HandleWebSocket(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Token required"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	validationResp, err := h.users.ValidateToken(ctx, token)
	if err != nil || !validationResp.Valid {
		h.logger.Warn("Invalid token for signaling socket", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
		return
	}

	userID, err := uuid.Parse(validationResp.UserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	userInfo, err := h.users.GetUserInfo(ctx, validationResp.UserID, token)
	if err != nil {
		h.logger.Warn("Failed to get user info", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User lookup failed"})
		return
	}
	if !userInfo.IsActive {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Account is inactive"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade connection", zap.Error(err))
		return
	}

	cl := newClient(h, conn, userID, userInfo.NickName, userInfo.ProfileImageURL, h.sendBuffer)
	h.register(cl)

	go cl.writePump()
	go cl.readPump()
}

// register binds a fresh connection to its user. If the user already has
// a live entry the prior connection is evicted first: any in-progress
// call is ended and the old socket is closed, so at most one entry per
// user ever exists.
func (h *Hub) register(c *Client) {
	h.mu.Lock()
	if prior := h.registry.get(c.userID); prior != nil {
		h.logger.Info("Evicting prior connection",
			zap.String("userId", c.userID.String()))
		for room := h.rooms.byUser(c.userID); room != nil; room = h.rooms.byUser(c.userID) {
			h.endRoomLocked(room, c.userID, "reconnect")
		}
		h.registry.remove(c.userID)
		h.closeClientLocked(prior.client)
	}

	h.registry.add(&PresenceEntry{
		UserID:     c.userID,
		Name:       c.userName,
		ProfilePic: c.profilePic,
		client:     c,
	})
	middleware.RecordWebSocketConnection()
	middleware.SetOnlineUsers(float64(h.registry.size()))
	h.broadcastPresenceLocked()
	h.mu.Unlock()

	h.logger.Info("User connected",
		zap.String("userId", c.userID.String()),
		zap.String("userName", c.userName))

	go database.SetUserOnline(c.userID.String())
}

// disconnect is the teardown cascade: end any call this user is part of
// (the peer gets exactly one call-ended), drop the presence entry,
// rebroadcast. A stale connection that was already evicted is ignored.
func (h *Hub) disconnect(c *Client) {
	h.mu.Lock()
	entry := h.registry.get(c.userID)
	if entry == nil || entry.client != c {
		h.closeClientLocked(c)
		h.mu.Unlock()
		return
	}

	// Sweep every binding this user is part of: besides their own call, a
	// still-ringing invite from a second caller may reference them as
	// callee.
	for room := h.rooms.byUser(c.userID); room != nil; room = h.rooms.byUser(c.userID) {
		h.endRoomLocked(room, c.userID, "disconnect")
	}

	h.registry.remove(c.userID)
	h.closeClientLocked(c)
	middleware.RecordWebSocketDisconnection()
	middleware.SetOnlineUsers(float64(h.registry.size()))
	h.broadcastPresenceLocked()
	h.mu.Unlock()

	h.logger.Info("User disconnected", zap.String("userId", c.userID.String()))

	go database.SetUserOffline(c.userID.String())
}

func (h *Hub) dispatch(c *Client, env *Envelope) {
	switch env.Event {
	case EventInitiateCall:
		h.handleInitiateCall(c, env)
	case EventCallResponse:
		h.handleCallResponse(c, env)
	case EventEndCall:
		h.handleEndCall(c, env)
	case EventWebRTCOffer, EventWebRTCAnswer, EventWebRTCCandidate:
		h.handleRelay(c, env)
	case EventScreenShareStart:
		h.handleScreenShare(c, env, true)
	case EventScreenShareStop:
		h.handleScreenShare(c, env, false)
	default:
		h.logger.Warn("Unknown event",
			zap.String("event", env.Event),
			zap.String("userId", c.userID.String()))
	}
}

// closeClientLocked marks the client dead and closes its send channel.
// Must hold h.mu: the closed flag is what keeps sendRawLocked off a
// closed channel.
func (h *Hub) closeClientLocked(c *Client) {
	if c == nil {
		return
	}
	c.close()
}

// sendRawLocked queues a frame for one client, dropping on a full queue.
// A slow consumer loses frames rather than stalling the hub; presence is
// snapshot-based so the next broadcast repairs it.
func (h *Hub) sendRawLocked(e *PresenceEntry, frame []byte) {
	if e == nil || e.client == nil || e.client.closed {
		return
	}
	select {
	case e.client.send <- frame:
	default:
		middleware.RecordFrameDropped()
		h.logger.Warn("Send queue full, dropping frame",
			zap.String("userId", e.UserID.String()))
	}
}

func (h *Hub) sendEventLocked(e *PresenceEntry, event string, data interface{}) {
	frame, err := encodeEvent(event, data)
	if err != nil {
		h.logger.Error("Failed to encode event",
			zap.String("event", event), zap.Error(err))
		return
	}
	h.sendRawLocked(e, frame)
}

func (h *Hub) sendErrorLocked(e *PresenceEntry, message string) {
	h.sendEventLocked(e, EventCallError, CallErrorPayload{Message: message})
}

// broadcastPresenceLocked pushes the full online list to every client
// and mirrors it to Redis for the REST tier and the notification
// service. Fired after any register/unregister and after every call
// transition that flips someone's on-call bit.
func (h *Hub) broadcastPresenceLocked() {
	frame, err := encodeEvent(EventOnlineUsers, OnlineUsersPayload{Users: h.registry.snapshot()})
	if err != nil {
		h.logger.Error("Failed to encode presence snapshot", zap.Error(err))
		return
	}
	for _, e := range h.registry.entries {
		h.sendRawLocked(e, frame)
	}

	go database.PublishPresence(frame)
}

// OnlineUsers returns the current presence snapshot, for the REST tier.
func (h *Hub) OnlineUsers() []OnlineUser {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.registry.snapshot()
}

// UserStatus reports one user's presence, if connected.
func (h *Hub) UserStatus(userID uuid.UUID) (OnlineUser, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e := h.registry.get(userID)
	if e == nil {
		return OnlineUser{}, false
	}
	return OnlineUser{
		UserID:     e.UserID.String(),
		UserName:   e.Name,
		ProfilePic: e.ProfilePic,
		IsOnCall:   e.OnCall(),
	}, true
}
