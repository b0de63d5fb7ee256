// internal/signaling/calls.go
package signaling

import (
	"encoding/json"
	"time"

	"signaling-service/internal/middleware"
	"signaling-service/internal/model"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	msgUserOffline    = "user not online"
	msgUserBusy       = "user already on a call"
	msgCallerBusy     = "you are already on a call"
	msgInvalidTarget  = "invalid target user id"
	msgCallerGone     = "caller is no longer online"
	msgCallUnanswered = "call not answered"
)

// handleInitiateCall drives IDLE -> RINGING. The target must be online
// and idle; on success the caller is marked ringing, a room is bound
// under a server-issued id and the target gets incoming-call. Validation
// failures mutate nothing and surface as call-error to the caller only.
func (h *Hub) handleInitiateCall(c *Client, env *Envelope) {
	var req InitiateCallRequest
	if err := json.Unmarshal(env.Data, &req); err != nil {
		h.logger.Warn("Malformed initiate-call", zap.Error(err))
		return
	}

	targetID, err := uuid.Parse(req.TargetUserID)
	if err != nil {
		h.sendErrorTo(c, msgInvalidTarget)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	caller := h.entryFor(c)
	if caller == nil {
		return
	}
	if caller.OnCall() {
		h.sendErrorLocked(caller, msgCallerBusy)
		return
	}

	target := h.registry.get(targetID)
	if target == nil {
		h.sendErrorLocked(caller, msgUserOffline)
		return
	}
	if target.OnCall() {
		h.sendErrorLocked(caller, msgUserBusy)
		return
	}

	// Room ids are opaque server-issued tokens; a client-supplied id is
	// ignored.
	roomID := uuid.NewString()
	room, err := h.rooms.create(roomID, caller.UserID, target.UserID)
	if err != nil {
		h.sendErrorLocked(caller, "failed to create call")
		return
	}

	caller.setCall(CallRinging, roomID, target.UserID)

	if h.ringTimeout > 0 {
		room.ringTimer = time.AfterFunc(h.ringTimeout, func() {
			h.ringTimeoutFired(roomID)
		})
	}

	h.sendEventLocked(target, EventIncomingCall, IncomingCallPayload{
		CallerID:         caller.UserID.String(),
		CallerName:       caller.Name,
		CallerProfilePic: caller.ProfilePic,
		RoomID:           roomID,
	})
	middleware.RecordCallInitiated()
	h.broadcastPresenceLocked()

	h.logger.Info("Call initiated",
		zap.String("callerId", caller.UserID.String()),
		zap.String("targetId", target.UserID.String()),
		zap.String("roomId", roomID))
}

// handleCallResponse drives RINGING -> ACTIVE (accept) or RINGING -> IDLE
// (reject). Only the addressed callee of the ringing room may respond;
// anything else is ignored as a stale race.
func (h *Hub) handleCallResponse(c *Client, env *Envelope) {
	var req CallResponseRequest
	if err := json.Unmarshal(env.Data, &req); err != nil {
		h.logger.Warn("Malformed call-response", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	responder := h.entryFor(c)
	if responder == nil {
		return
	}

	room := h.rooms.get(req.RoomID)
	if room == nil || room.State != RoomRinging || room.CalleeID != responder.UserID {
		h.logger.Debug("Stale call-response",
			zap.String("roomId", req.RoomID),
			zap.String("userId", responder.UserID.String()))
		return
	}

	room.stopRingTimer()
	caller := h.registry.get(room.CallerID)

	if !req.Accepted {
		if caller != nil {
			caller.clearCall()
			h.sendEventLocked(caller, EventCallRejected, CallRejectedPayload{
				RejectedBy: responder.Name,
			})
		}
		h.recordCall(room, model.CallStatusRejected, responder.UserID)
		h.rooms.destroy(room.ID)
		h.broadcastPresenceLocked()

		h.logger.Info("Call rejected",
			zap.String("roomId", room.ID),
			zap.String("responderId", responder.UserID.String()))
		return
	}

	// Several invites can ring one callee at once (a ringing callee is
	// not on-call). Once the responder went active elsewhere, accepting
	// this invite is refused and counts as rejecting it.
	if responder.OnCall() {
		if caller != nil {
			caller.clearCall()
			h.sendEventLocked(caller, EventCallRejected, CallRejectedPayload{
				RejectedBy: responder.Name,
			})
		}
		h.sendErrorLocked(responder, msgCallerBusy)
		h.recordCall(room, model.CallStatusRejected, responder.UserID)
		h.rooms.destroy(room.ID)
		h.broadcastPresenceLocked()

		h.logger.Info("Call accept refused, responder busy",
			zap.String("roomId", room.ID),
			zap.String("responderId", responder.UserID.String()))
		return
	}

	if caller == nil {
		// Caller dropped between ring and accept; its disconnect cascade
		// already tore the room down or is about to.
		h.rooms.destroy(room.ID)
		h.sendErrorLocked(responder, msgCallerGone)
		return
	}

	room.State = RoomActive
	room.AnsweredAt = time.Now()
	caller.setCall(CallActive, room.ID, responder.UserID)
	responder.setCall(CallActive, room.ID, caller.UserID)

	// Two distinct events: the caller creates the WebRTC offer, the
	// callee waits for it.
	h.sendEventLocked(caller, EventCallAccepted, CallAcceptedPayload{
		RoomID:       room.ID,
		ReceiverID:   responder.UserID.String(),
		ReceiverName: responder.Name,
	})
	h.sendEventLocked(responder, EventCallStarted, CallStartedPayload{
		RoomID:   room.ID,
		PeerID:   caller.UserID.String(),
		PeerName: caller.Name,
	})
	middleware.RecordCallStarted()
	h.broadcastPresenceLocked()

	h.logger.Info("Call accepted",
		zap.String("roomId", room.ID),
		zap.String("callerId", caller.UserID.String()),
		zap.String("responderId", responder.UserID.String()))
}

// handleEndCall drives ACTIVE (or RINGING) -> IDLE from either party.
// Idempotent: a missing room is a no-op, never an error.
func (h *Hub) handleEndCall(c *Client, env *Envelope) {
	var req EndCallRequest
	if err := json.Unmarshal(env.Data, &req); err != nil {
		h.logger.Warn("Malformed end-call", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	room := h.rooms.get(req.RoomID)
	if room == nil || !room.has(c.userID) {
		return
	}
	h.endRoomLocked(room, c.userID, "hangup")
	h.broadcastPresenceLocked()
}

// endRoomLocked is the single teardown path shared by explicit hangup,
// rejection-by-timeout, disconnect and eviction: notify the surviving
// peer once, reset the presence entries bound to this room, record
// history, drop the binding. An entry whose RoomID points at a
// different room (the callee of a still-unanswered invite, or a party
// already active elsewhere) is left untouched. Callers hold h.mu and
// trigger their own presence broadcast.
func (h *Hub) endRoomLocked(room *RoomBinding, endedBy uuid.UUID, reason string) {
	room.stopRingTimer()

	endedByName := endedBy.String()
	if e := h.registry.get(endedBy); e != nil {
		endedByName = e.Name
		if e.RoomID == room.ID {
			e.clearCall()
		}
	}

	if other := h.registry.get(room.other(endedBy)); other != nil {
		if other.RoomID == room.ID {
			other.clearCall()
		}
		h.sendEventLocked(other, EventCallEnded, CallEndedPayload{
			EndedBy: endedByName,
			RoomID:  room.ID,
		})
	}

	status := model.CallStatusCompleted
	if room.State == RoomRinging {
		status = model.CallStatusMissed
	}
	h.recordCall(room, status, endedBy)

	if room.State == RoomActive {
		middleware.RecordCallEnded()
	}
	h.rooms.destroy(room.ID)

	h.logger.Info("Call ended",
		zap.String("roomId", room.ID),
		zap.String("endedBy", endedBy.String()),
		zap.String("reason", reason))
}

// ringTimeoutFired auto-clears a call nobody answered. The caller learns
// via call-error, the callee's ringing UI is dismissed via call-ended.
func (h *Hub) ringTimeoutFired(roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room := h.rooms.get(roomID)
	if room == nil || room.State != RoomRinging {
		return
	}

	caller := h.registry.get(room.CallerID)
	callerName := room.CallerID.String()
	if caller != nil {
		callerName = caller.Name
		caller.clearCall()
		h.sendErrorLocked(caller, msgCallUnanswered)
	}

	if callee := h.registry.get(room.CalleeID); callee != nil {
		h.sendEventLocked(callee, EventCallEnded, CallEndedPayload{
			EndedBy: callerName,
			RoomID:  room.ID,
		})
	}

	h.recordCall(room, model.CallStatusMissed, room.CallerID)
	h.rooms.destroy(room.ID)
	h.broadcastPresenceLocked()

	h.logger.Info("Call timed out", zap.String("roomId", roomID))
}

func (h *Hub) recordCall(room *RoomBinding, status model.CallStatus, endedBy uuid.UUID) {
	if h.recorder == nil {
		return
	}
	now := time.Now()
	rec := &model.CallHistory{
		RoomID:    room.ID,
		CallerID:  room.CallerID,
		CalleeID:  room.CalleeID,
		Status:    status,
		StartedAt: room.CreatedAt,
		EndedAt:   now,
		EndedBy:   endedBy,
	}
	if room.State == RoomActive {
		answered := room.AnsweredAt
		rec.AnsweredAt = &answered
		rec.DurationSeconds = int(now.Sub(answered) / time.Second)
	}
	h.recorder.Record(rec)
}

// entryFor resolves a client to its live presence entry, ignoring stale
// connections that were evicted by a reconnect.
func (h *Hub) entryFor(c *Client) *PresenceEntry {
	e := h.registry.get(c.userID)
	if e == nil || e.client != c {
		return nil
	}
	return e
}

// sendErrorTo is the unlocked variant used before any state is touched.
func (h *Hub) sendErrorTo(c *Client, message string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if e := h.entryFor(c); e != nil {
		h.sendErrorLocked(e, message)
	}
}
