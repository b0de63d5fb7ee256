// internal/signaling/rooms.go
package signaling

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrRoomExists = errors.New("room id already bound")

type RoomState int

const (
	RoomRinging RoomState = iota
	RoomActive
)

// RoomBinding pairs two users under a server-issued call-session id,
// from initiate until reject/end/disconnect. There is no background
// expiry; stale bindings are cleaned up reactively by the ring timer or
// the disconnect cascade.
type RoomBinding struct {
	ID         string
	CallerID   uuid.UUID
	CalleeID   uuid.UUID
	State      RoomState
	CreatedAt  time.Time
	AnsweredAt time.Time

	ringTimer *time.Timer
}

// other resolves the remote party of a binding.
func (b *RoomBinding) other(userID uuid.UUID) uuid.UUID {
	if b.CallerID == userID {
		return b.CalleeID
	}
	return b.CallerID
}

func (b *RoomBinding) has(userID uuid.UUID) bool {
	return b.CallerID == userID || b.CalleeID == userID
}

func (b *RoomBinding) stopRingTimer() {
	if b.ringTimer != nil {
		b.ringTimer.Stop()
		b.ringTimer = nil
	}
}

// ledger tracks active and pending call bindings. Like the registry it is
// unlocked; the hub serializes access.
type ledger struct {
	rooms map[string]*RoomBinding
}

func newLedger() *ledger {
	return &ledger{rooms: make(map[string]*RoomBinding)}
}

func (l *ledger) create(roomID string, caller, callee uuid.UUID) (*RoomBinding, error) {
	if _, ok := l.rooms[roomID]; ok {
		return nil, ErrRoomExists
	}
	b := &RoomBinding{
		ID:        roomID,
		CallerID:  caller,
		CalleeID:  callee,
		State:     RoomRinging,
		CreatedAt: time.Now(),
	}
	l.rooms[roomID] = b
	return b, nil
}

func (l *ledger) get(roomID string) *RoomBinding {
	return l.rooms[roomID]
}

// byUser finds a binding the user participates in, if any. Normally at
// most one exists (the on-call check at initiate), but a callee can sit
// in several ringing bindings at once; callers that need all of them
// loop until nil.
func (l *ledger) byUser(userID uuid.UUID) *RoomBinding {
	for _, b := range l.rooms {
		if b.has(userID) {
			return b
		}
	}
	return nil
}

func (l *ledger) destroy(roomID string) {
	if b, ok := l.rooms[roomID]; ok {
		b.stopRingTimer()
		delete(l.rooms, roomID)
	}
}

func (l *ledger) size() int {
	return len(l.rooms)
}
