// internal/signaling/events.go
package signaling

import "encoding/json"

// Inbound event names (client -> server)
const (
	EventInitiateCall     = "initiate-call"
	EventCallResponse     = "call-response"
	EventWebRTCOffer      = "webrtc-offer"
	EventWebRTCAnswer     = "webrtc-answer"
	EventWebRTCCandidate  = "webrtc-ice-candidate"
	EventScreenShareStart = "screen-share-start"
	EventScreenShareStop  = "screen-share-stop"
	EventEndCall          = "end-call"
)

// Outbound event names (server -> client)
const (
	EventOnlineUsers          = "online-users-updated"
	EventIncomingCall         = "incoming-call"
	EventCallAccepted         = "call-accepted"
	EventCallStarted          = "call-started"
	EventCallRejected         = "call-rejected"
	EventCallEnded            = "call-ended"
	EventCallError            = "call-error"
	EventPeerScreenShareStart = "peer-screen-share-start"
	EventPeerScreenShareStop  = "peer-screen-share-stop"
)

// Envelope is the single frame format on the socket: an event name plus
// an event-specific JSON payload. Relay payloads stay opaque RawMessage
// until (and unless) the relay needs to re-address them.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// InitiateCallRequest starts a call toward targetUserId. A client-supplied
// roomId is accepted for wire compatibility but ignored: room ids are
// issued server-side.
type InitiateCallRequest struct {
	TargetUserID string `json:"targetUserId"`
	RoomID       string `json:"roomId,omitempty"`
}

// CallResponseRequest is the callee's accept/reject of a ringing call.
type CallResponseRequest struct {
	Accepted bool   `json:"accepted"`
	CallerID string `json:"callerId"`
	RoomID   string `json:"roomId"`
}

// EndCallRequest tears down a pending or active call.
type EndCallRequest struct {
	RoomID       string `json:"roomId"`
	TargetUserID string `json:"targetUserId,omitempty"`
}

// relayAddress is the addressing subset the relay reads out of an
// otherwise opaque payload.
type relayAddress struct {
	TargetUserID string `json:"targetUserId"`
	RoomID       string `json:"roomId"`
}

type OnlineUser struct {
	UserID     string `json:"userId"`
	UserName   string `json:"userName"`
	ProfilePic string `json:"profilePic"`
	IsOnCall   bool   `json:"isOnCall"`
}

type OnlineUsersPayload struct {
	Users []OnlineUser `json:"users"`
}

type IncomingCallPayload struct {
	CallerID         string `json:"callerId"`
	CallerName       string `json:"callerName"`
	CallerProfilePic string `json:"callerProfilePic"`
	RoomID           string `json:"roomId"`
}

type CallAcceptedPayload struct {
	RoomID       string `json:"roomId"`
	ReceiverID   string `json:"receiverId"`
	ReceiverName string `json:"receiverName"`
}

type CallStartedPayload struct {
	RoomID   string `json:"roomId"`
	PeerID   string `json:"peerId"`
	PeerName string `json:"peerName"`
}

type CallRejectedPayload struct {
	RejectedBy string `json:"rejectedBy"`
}

type CallEndedPayload struct {
	EndedBy string `json:"endedBy"`
	RoomID  string `json:"roomId"`
}

type CallErrorPayload struct {
	Message string `json:"message"`
}

type ScreenSharePayload struct {
	FromUserID string `json:"fromUserId"`
	RoomID     string `json:"roomId"`
}

func encodeEvent(event string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}
