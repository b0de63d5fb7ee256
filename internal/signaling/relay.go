// internal/signaling/relay.go
package signaling

import (
	"encoding/json"

	"signaling-service/internal/middleware"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// handleRelay forwards an opaque negotiation payload (SDP offer/answer,
// ICE candidate) to the addressed peer under the same event name. Only
// the addressing fields are read; the payload is never validated. A
// missing target means the peer disconnected mid-negotiation: the frame
// is dropped silently and the disconnect cascade is the recovery path.
func (h *Hub) handleRelay(c *Client, env *Envelope) {
	var addr relayAddress
	if err := json.Unmarshal(env.Data, &addr); err != nil {
		h.logger.Warn("Malformed relay payload",
			zap.String("event", env.Event), zap.Error(err))
		return
	}

	targetID, err := uuid.Parse(addr.TargetUserID)
	if err != nil {
		h.logger.Warn("Relay with invalid target",
			zap.String("event", env.Event),
			zap.String("targetUserId", addr.TargetUserID))
		return
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		return
	}
	delete(payload, "targetUserId")
	payload["fromUserId"] = c.userID.String()
	payload["roomId"] = addr.RoomID

	h.mu.Lock()
	defer h.mu.Unlock()

	target := h.registry.get(targetID)
	if target == nil {
		middleware.RecordRelayDropped()
		return
	}
	h.sendEventLocked(target, env.Event, payload)
}

// handleScreenShare relays the share start/stop markers. Same addressing
// as the WebRTC relay, but the outbound event is renamed to the peer-*
// form so the receiver can tell its own toggles from the remote ones.
func (h *Hub) handleScreenShare(c *Client, env *Envelope, start bool) {
	var addr relayAddress
	if err := json.Unmarshal(env.Data, &addr); err != nil {
		h.logger.Warn("Malformed screen-share payload", zap.Error(err))
		return
	}

	targetID, err := uuid.Parse(addr.TargetUserID)
	if err != nil {
		return
	}

	event := EventPeerScreenShareStop
	if start {
		event = EventPeerScreenShareStart
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	target := h.registry.get(targetID)
	if target == nil {
		middleware.RecordRelayDropped()
		return
	}
	h.sendEventLocked(target, event, ScreenSharePayload{
		FromUserID: c.userID.String(),
		RoomID:     addr.RoomID,
	})
}
