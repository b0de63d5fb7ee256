package signaling

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"signaling-service/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRecorder struct {
	mu      sync.Mutex
	records []*model.CallHistory
}

func (f *fakeRecorder) Record(record *model.CallHistory) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, record)
}

func (f *fakeRecorder) all() []*model.CallHistory {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*model.CallHistory, len(f.records))
	copy(out, f.records)
	return out
}

func newTestHub(opts Options) (*Hub, *fakeRecorder) {
	rec := &fakeRecorder{}
	return NewHub(nil, rec, zap.NewNop(), opts), rec
}

// connect registers a channel-backed client with no real socket; frames
// land in c.send where tests can inspect them.
func connect(h *Hub, name string) *Client {
	c := newClient(h, nil, uuid.New(), name, "pic-"+name, 64)
	h.register(c)
	return c
}

type frame struct {
	Event string
	Data  map[string]interface{}
}

// drain empties a client's outbound queue.
func drain(t *testing.T, c *Client) []frame {
	t.Helper()
	var frames []frame
	for {
		select {
		case raw, ok := <-c.send:
			if !ok {
				return frames
			}
			var env Envelope
			require.NoError(t, json.Unmarshal(raw, &env))
			f := frame{Event: env.Event}
			if len(env.Data) > 0 {
				require.NoError(t, json.Unmarshal(env.Data, &f.Data))
			}
			frames = append(frames, f)
		default:
			return frames
		}
	}
}

func findEvents(frames []frame, event string) []frame {
	var out []frame
	for _, f := range frames {
		if f.Event == event {
			out = append(out, f)
		}
	}
	return out
}

func send(t *testing.T, h *Hub, c *Client, event string, data interface{}) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	h.dispatch(c, &Envelope{Event: event, Data: raw})
}

// initiate runs the initiate handshake and returns the issued room id.
func initiate(t *testing.T, h *Hub, caller, callee *Client) string {
	t.Helper()
	send(t, h, caller, EventInitiateCall, InitiateCallRequest{
		TargetUserID: callee.userID.String(),
	})
	incoming := findEvents(drain(t, callee), EventIncomingCall)
	require.Len(t, incoming, 1)
	roomID, _ := incoming[0].Data["roomId"].(string)
	require.NotEmpty(t, roomID)
	require.Equal(t, caller.userID.String(), incoming[0].Data["callerId"])
	return roomID
}

func accept(t *testing.T, h *Hub, callee *Client, callerID uuid.UUID, roomID string) {
	t.Helper()
	send(t, h, callee, EventCallResponse, CallResponseRequest{
		Accepted: true,
		CallerID: callerID.String(),
		RoomID:   roomID,
	})
}

func callState(h *Hub, userID uuid.UUID) CallState {
	h.mu.Lock()
	defer h.mu.Unlock()
	e := h.registry.get(userID)
	if e == nil {
		return CallIdle
	}
	return e.State
}

func roomCount(h *Hub) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rooms.size()
}

func TestRegisterBroadcastsPresence(t *testing.T) {
	h, _ := newTestHub(Options{})

	alice := connect(h, "alice")
	drain(t, alice)
	bob := connect(h, "bob")

	for _, c := range []*Client{alice, bob} {
		updates := findEvents(drain(t, c), EventOnlineUsers)
		require.NotEmpty(t, updates)
		last := updates[len(updates)-1]
		users := last.Data["users"].([]interface{})
		assert.Len(t, users, 2)
	}
}

func TestReconnectReplacesEntry(t *testing.T) {
	h, _ := newTestHub(Options{})

	first := connect(h, "alice")
	second := newClient(h, nil, first.userID, "alice", "pic-alice", 64)
	h.register(second)

	h.mu.Lock()
	entry := h.registry.get(first.userID)
	size := h.registry.size()
	h.mu.Unlock()

	require.Equal(t, 1, size)
	assert.Same(t, second, entry.client)
	assert.True(t, first.closed)

	// The stale connection's disconnect must not remove the new entry.
	h.disconnect(first)
	h.mu.Lock()
	stillThere := h.registry.get(first.userID)
	h.mu.Unlock()
	assert.NotNil(t, stillThere)
}

func TestInitiateToOfflineUser(t *testing.T) {
	h, _ := newTestHub(Options{})

	alice := connect(h, "alice")
	drain(t, alice)

	send(t, h, alice, EventInitiateCall, InitiateCallRequest{
		TargetUserID: uuid.NewString(),
	})

	errs := findEvents(drain(t, alice), EventCallError)
	require.Len(t, errs, 1)
	assert.Equal(t, msgUserOffline, errs[0].Data["message"])
	assert.Equal(t, 0, roomCount(h))
	assert.Equal(t, CallIdle, callState(h, alice.userID))
}

func TestInitiateToBusyUser(t *testing.T) {
	h, _ := newTestHub(Options{})

	alice := connect(h, "alice")
	bob := connect(h, "bob")
	carol := connect(h, "carol")

	roomID := initiate(t, h, alice, bob)
	accept(t, h, bob, alice.userID, roomID)
	drain(t, carol)

	send(t, h, carol, EventInitiateCall, InitiateCallRequest{
		TargetUserID: bob.userID.String(),
	})

	errs := findEvents(drain(t, carol), EventCallError)
	require.Len(t, errs, 1)
	assert.Equal(t, msgUserBusy, errs[0].Data["message"])
	assert.Equal(t, 1, roomCount(h))
	// Bob never saw a second incoming-call.
	assert.Empty(t, findEvents(drain(t, bob), EventIncomingCall))
}

func TestCallAcceptFlow(t *testing.T) {
	h, _ := newTestHub(Options{})

	alice := connect(h, "alice")
	bob := connect(h, "bob")
	drain(t, alice)

	roomID := initiate(t, h, alice, bob)
	accept(t, h, bob, alice.userID, roomID)

	accepted := findEvents(drain(t, alice), EventCallAccepted)
	require.Len(t, accepted, 1)
	assert.Equal(t, roomID, accepted[0].Data["roomId"])
	assert.Equal(t, bob.userID.String(), accepted[0].Data["receiverId"])
	assert.Equal(t, "bob", accepted[0].Data["receiverName"])

	started := findEvents(drain(t, bob), EventCallStarted)
	require.Len(t, started, 1)
	assert.Equal(t, alice.userID.String(), started[0].Data["peerId"])

	assert.Equal(t, CallActive, callState(h, alice.userID))
	assert.Equal(t, CallActive, callState(h, bob.userID))

	h.mu.Lock()
	a := h.registry.get(alice.userID)
	b := h.registry.get(bob.userID)
	h.mu.Unlock()
	assert.Equal(t, bob.userID, a.PeerID)
	assert.Equal(t, alice.userID, b.PeerID)
}

func TestCallRejectResetsBothParties(t *testing.T) {
	h, rec := newTestHub(Options{})

	alice := connect(h, "alice")
	bob := connect(h, "bob")
	drain(t, alice)

	roomID := initiate(t, h, alice, bob)
	send(t, h, bob, EventCallResponse, CallResponseRequest{
		Accepted: false,
		CallerID: alice.userID.String(),
		RoomID:   roomID,
	})

	rejected := findEvents(drain(t, alice), EventCallRejected)
	require.Len(t, rejected, 1)
	assert.Equal(t, "bob", rejected[0].Data["rejectedBy"])

	assert.Equal(t, CallIdle, callState(h, alice.userID))
	assert.Equal(t, CallIdle, callState(h, bob.userID))
	assert.Equal(t, 0, roomCount(h))

	records := rec.all()
	require.Len(t, records, 1)
	assert.Equal(t, model.CallStatusRejected, records[0].Status)

	// A fresh initiate between the same pair must succeed.
	roomID2 := initiate(t, h, alice, bob)
	assert.NotEqual(t, roomID, roomID2)
}

func TestEndCallIsIdempotent(t *testing.T) {
	h, _ := newTestHub(Options{})

	alice := connect(h, "alice")
	bob := connect(h, "bob")

	roomID := initiate(t, h, alice, bob)
	accept(t, h, bob, alice.userID, roomID)
	drain(t, alice)
	drain(t, bob)

	send(t, h, alice, EventEndCall, EndCallRequest{RoomID: roomID})
	send(t, h, alice, EventEndCall, EndCallRequest{RoomID: roomID})

	ended := findEvents(drain(t, bob), EventCallEnded)
	require.Len(t, ended, 1)
	assert.Equal(t, "alice", ended[0].Data["endedBy"])
	assert.Empty(t, findEvents(drain(t, alice), EventCallError))
	assert.Equal(t, 0, roomCount(h))
}

func TestDisconnectMidCallNotifiesPeer(t *testing.T) {
	h, rec := newTestHub(Options{})

	alice := connect(h, "alice")
	bob := connect(h, "bob")

	roomID := initiate(t, h, alice, bob)
	accept(t, h, bob, alice.userID, roomID)
	drain(t, alice)

	h.disconnect(bob)

	ended := findEvents(drain(t, alice), EventCallEnded)
	require.Len(t, ended, 1)
	assert.Equal(t, "bob", ended[0].Data["endedBy"])
	assert.Equal(t, roomID, ended[0].Data["roomId"])

	assert.Equal(t, CallIdle, callState(h, alice.userID))
	assert.Equal(t, 0, roomCount(h))

	h.mu.Lock()
	gone := h.registry.get(bob.userID)
	h.mu.Unlock()
	assert.Nil(t, gone)

	records := rec.all()
	require.Len(t, records, 1)
	assert.Equal(t, model.CallStatusCompleted, records[0].Status)
}

func TestCallerDisconnectWhileRinging(t *testing.T) {
	h, rec := newTestHub(Options{})

	alice := connect(h, "alice")
	bob := connect(h, "bob")

	initiate(t, h, alice, bob)
	h.disconnect(alice)

	ended := findEvents(drain(t, bob), EventCallEnded)
	require.Len(t, ended, 1)
	assert.Equal(t, "alice", ended[0].Data["endedBy"])
	assert.Equal(t, 0, roomCount(h))

	records := rec.all()
	require.Len(t, records, 1)
	assert.Equal(t, model.CallStatusMissed, records[0].Status)
}

func TestRelayForwardsOfferWithSenderIdentity(t *testing.T) {
	h, _ := newTestHub(Options{})

	alice := connect(h, "alice")
	bob := connect(h, "bob")

	roomID := initiate(t, h, alice, bob)
	accept(t, h, bob, alice.userID, roomID)
	drain(t, bob)

	send(t, h, alice, EventWebRTCOffer, map[string]interface{}{
		"offer":        map[string]interface{}{"type": "offer", "sdp": "v=0..."},
		"targetUserId": bob.userID.String(),
		"roomId":       roomID,
	})

	offers := findEvents(drain(t, bob), EventWebRTCOffer)
	require.Len(t, offers, 1)
	assert.Equal(t, alice.userID.String(), offers[0].Data["fromUserId"])
	assert.Equal(t, roomID, offers[0].Data["roomId"])
	assert.NotContains(t, offers[0].Data, "targetUserId")

	offer := offers[0].Data["offer"].(map[string]interface{})
	assert.Equal(t, "v=0...", offer["sdp"])
}

func TestRelayToDisconnectedTargetIsDropped(t *testing.T) {
	h, _ := newTestHub(Options{})

	alice := connect(h, "alice")
	drain(t, alice)

	send(t, h, alice, EventWebRTCCandidate, map[string]interface{}{
		"candidate":    map[string]interface{}{"candidate": "candidate:1"},
		"targetUserId": uuid.NewString(),
		"roomId":       uuid.NewString(),
	})

	// Silent drop: no error back to the sender either.
	assert.Empty(t, drain(t, alice))
}

func TestScreenShareRelayRenamesEvent(t *testing.T) {
	h, _ := newTestHub(Options{})

	alice := connect(h, "alice")
	bob := connect(h, "bob")

	roomID := initiate(t, h, alice, bob)
	accept(t, h, bob, alice.userID, roomID)
	drain(t, bob)

	send(t, h, alice, EventScreenShareStart, map[string]interface{}{
		"targetUserId": bob.userID.String(),
		"roomId":       roomID,
	})
	send(t, h, alice, EventScreenShareStop, map[string]interface{}{
		"targetUserId": bob.userID.String(),
		"roomId":       roomID,
	})

	frames := drain(t, bob)
	starts := findEvents(frames, EventPeerScreenShareStart)
	stops := findEvents(frames, EventPeerScreenShareStop)
	require.Len(t, starts, 1)
	require.Len(t, stops, 1)
	assert.Equal(t, alice.userID.String(), starts[0].Data["fromUserId"])
}

func TestRingTimeoutClearsPendingCall(t *testing.T) {
	h, rec := newTestHub(Options{RingTimeout: 50 * time.Millisecond})

	alice := connect(h, "alice")
	bob := connect(h, "bob")
	drain(t, alice)

	initiate(t, h, alice, bob)

	require.Eventually(t, func() bool {
		return roomCount(h) == 0
	}, time.Second, 10*time.Millisecond)

	errs := findEvents(drain(t, alice), EventCallError)
	require.Len(t, errs, 1)
	assert.Equal(t, msgCallUnanswered, errs[0].Data["message"])

	ended := findEvents(drain(t, bob), EventCallEnded)
	require.Len(t, ended, 1)
	assert.Equal(t, "alice", ended[0].Data["endedBy"])

	assert.Equal(t, CallIdle, callState(h, alice.userID))

	records := rec.all()
	require.Len(t, records, 1)
	assert.Equal(t, model.CallStatusMissed, records[0].Status)
}

func TestRingTimerCancelledByAccept(t *testing.T) {
	h, _ := newTestHub(Options{RingTimeout: 50 * time.Millisecond})

	alice := connect(h, "alice")
	bob := connect(h, "bob")

	roomID := initiate(t, h, alice, bob)
	accept(t, h, bob, alice.userID, roomID)
	drain(t, alice)
	drain(t, bob)

	time.Sleep(150 * time.Millisecond)

	assert.Equal(t, 1, roomCount(h))
	assert.Equal(t, CallActive, callState(h, alice.userID))
	assert.Empty(t, findEvents(drain(t, alice), EventCallError))
}

func TestPresenceSnapshotReflectsCallState(t *testing.T) {
	h, _ := newTestHub(Options{})

	alice := connect(h, "alice")
	bob := connect(h, "bob")
	carol := connect(h, "carol")

	roomID := initiate(t, h, alice, bob)
	accept(t, h, bob, alice.userID, roomID)

	updates := findEvents(drain(t, carol), EventOnlineUsers)
	require.NotEmpty(t, updates)
	last := updates[len(updates)-1]

	onCall := map[string]bool{}
	for _, u := range last.Data["users"].([]interface{}) {
		user := u.(map[string]interface{})
		onCall[user["userId"].(string)] = user["isOnCall"].(bool)
	}
	assert.True(t, onCall[alice.userID.String()])
	assert.True(t, onCall[bob.userID.String()])
	assert.False(t, onCall[carol.userID.String()])
}

func TestUserStatusAPI(t *testing.T) {
	h, _ := newTestHub(Options{})

	alice := connect(h, "alice")

	status, ok := h.UserStatus(alice.userID)
	require.True(t, ok)
	assert.Equal(t, "alice", status.UserName)
	assert.False(t, status.IsOnCall)

	_, ok = h.UserStatus(uuid.New())
	assert.False(t, ok)

	h.disconnect(alice)
	_, ok = h.UserStatus(alice.userID)
	assert.False(t, ok)
}

func TestCallerCannotInitiateWhileBusy(t *testing.T) {
	h, _ := newTestHub(Options{})

	alice := connect(h, "alice")
	bob := connect(h, "bob")
	carol := connect(h, "carol")

	initiate(t, h, alice, bob)
	drain(t, alice)

	send(t, h, alice, EventInitiateCall, InitiateCallRequest{
		TargetUserID: carol.userID.String(),
	})

	errs := findEvents(drain(t, alice), EventCallError)
	require.Len(t, errs, 1)
	assert.Equal(t, msgCallerBusy, errs[0].Data["message"])
	assert.Empty(t, findEvents(drain(t, carol), EventIncomingCall))
}

func TestResponseFromWrongUserIgnored(t *testing.T) {
	h, _ := newTestHub(Options{})

	alice := connect(h, "alice")
	bob := connect(h, "bob")
	mallory := connect(h, "mallory")

	roomID := initiate(t, h, alice, bob)
	drain(t, alice)

	// Only the addressed callee may respond.
	accept(t, h, mallory, alice.userID, roomID)

	assert.Empty(t, findEvents(drain(t, alice), EventCallAccepted))
	assert.Equal(t, CallRinging, callState(h, alice.userID))
	assert.Equal(t, 1, roomCount(h))
}

func TestSecondAcceptWhileActiveIsRefused(t *testing.T) {
	h, rec := newTestHub(Options{})

	alice := connect(h, "alice")
	bob := connect(h, "bob")
	carol := connect(h, "carol")

	// Two invites ring bob at once; he accepts alice's first.
	room1 := initiate(t, h, alice, bob)
	room2 := initiate(t, h, carol, bob)
	accept(t, h, bob, alice.userID, room1)
	drain(t, alice)
	drain(t, bob)
	drain(t, carol)

	accept(t, h, bob, carol.userID, room2)

	rejected := findEvents(drain(t, carol), EventCallRejected)
	require.Len(t, rejected, 1)
	assert.Equal(t, "bob", rejected[0].Data["rejectedBy"])

	errs := findEvents(drain(t, bob), EventCallError)
	require.Len(t, errs, 1)
	assert.Equal(t, msgCallerBusy, errs[0].Data["message"])

	// The first call is untouched and both parties still point at each
	// other.
	assert.Equal(t, 1, roomCount(h))
	assert.Equal(t, CallActive, callState(h, bob.userID))
	assert.Equal(t, CallActive, callState(h, alice.userID))
	assert.Equal(t, CallIdle, callState(h, carol.userID))

	h.mu.Lock()
	b := h.registry.get(bob.userID)
	a := h.registry.get(alice.userID)
	active := h.rooms.get(room1)
	h.mu.Unlock()
	require.NotNil(t, active)
	assert.Equal(t, RoomActive, active.State)
	assert.Equal(t, alice.userID, b.PeerID)
	assert.Equal(t, bob.userID, a.PeerID)
	assert.Equal(t, room1, b.RoomID)

	records := rec.all()
	require.Len(t, records, 1)
	assert.Equal(t, model.CallStatusRejected, records[0].Status)
	assert.Equal(t, room2, records[0].RoomID)
}

func TestRingingInviteTeardownPreservesActiveCall(t *testing.T) {
	h, _ := newTestHub(Options{})

	alice := connect(h, "alice")
	bob := connect(h, "bob")
	carol := connect(h, "carol")

	room1 := initiate(t, h, alice, bob)
	room2 := initiate(t, h, carol, bob)
	accept(t, h, bob, alice.userID, room1)
	drain(t, bob)

	// Carol's unanswered invite dies with her connection; bob's active
	// call with alice must survive its teardown.
	h.disconnect(carol)

	ended := findEvents(drain(t, bob), EventCallEnded)
	require.Len(t, ended, 1)
	assert.Equal(t, room2, ended[0].Data["roomId"])

	assert.Equal(t, CallActive, callState(h, bob.userID))
	assert.Equal(t, 1, roomCount(h))

	h.mu.Lock()
	b := h.registry.get(bob.userID)
	active := h.rooms.get(room1)
	h.mu.Unlock()
	require.NotNil(t, active)
	assert.Equal(t, RoomActive, active.State)
	assert.Equal(t, alice.userID, b.PeerID)
	assert.Equal(t, room1, b.RoomID)
}
