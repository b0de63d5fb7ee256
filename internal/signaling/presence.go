// internal/signaling/presence.go
package signaling

import "github.com/google/uuid"

// CallState is the per-user call phase. Idle means "not in any call";
// Ringing means an outgoing or answered-pending call exists for this user;
// Active means the call handshake completed.
type CallState int

const (
	CallIdle CallState = iota
	CallRinging
	CallActive
)

// PresenceEntry is the in-memory record of a currently-connected user.
// Exactly one entry exists per user at any time; a reconnect replaces the
// prior entry. DisplayName and ProfilePic are a snapshot taken at connect
// time and never refreshed.
type PresenceEntry struct {
	UserID     uuid.UUID
	Name       string
	ProfilePic string

	client *Client

	State  CallState
	RoomID string
	PeerID uuid.UUID
}

func (e *PresenceEntry) OnCall() bool {
	return e.State != CallIdle
}

func (e *PresenceEntry) setCall(state CallState, roomID string, peerID uuid.UUID) {
	e.State = state
	e.RoomID = roomID
	e.PeerID = peerID
}

func (e *PresenceEntry) clearCall() {
	e.State = CallIdle
	e.RoomID = ""
	e.PeerID = uuid.Nil
}

// registry is the authoritative set of reachable users. It is a plain map
// on purpose: all access goes through the hub, whose mutex makes every
// call transition atomic across registry and ledger together.
type registry struct {
	entries map[uuid.UUID]*PresenceEntry
}

func newRegistry() *registry {
	return &registry{entries: make(map[uuid.UUID]*PresenceEntry)}
}

func (r *registry) add(e *PresenceEntry) {
	r.entries[e.UserID] = e
}

func (r *registry) get(userID uuid.UUID) *PresenceEntry {
	return r.entries[userID]
}

func (r *registry) remove(userID uuid.UUID) {
	delete(r.entries, userID)
}

func (r *registry) size() int {
	return len(r.entries)
}

// snapshot builds the full presence list sent on every change. Full
// snapshots, not diffs: presence lists are small and snapshots are easy
// to reason about on the client.
func (r *registry) snapshot() []OnlineUser {
	users := make([]OnlineUser, 0, len(r.entries))
	for _, e := range r.entries {
		users = append(users, OnlineUser{
			UserID:     e.UserID.String(),
			UserName:   e.Name,
			ProfilePic: e.ProfilePic,
			IsOnCall:   e.OnCall(),
		})
	}
	return users
}
