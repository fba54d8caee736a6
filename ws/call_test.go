package ws

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func callFrame(t *testing.T, req CallRequest) []byte {
	t.Helper()
	data, err := json.Marshal(req)
	require.NoError(t, err)
	return data
}

func newCallHarness(t *testing.T) (*CallHub, *PresenceHub) {
	users := newFakeUserStore("alice", "bob", "carol")
	presence := newTestPresenceHub(users, time.Second)
	return newTestCallHub(presence, time.Minute), presence
}

func TestCall_InitiateToOfflineTarget(t *testing.T) {
	hub, _ := newCallHarness(t)

	aliceConn, aliceClient := dialTestConn(t, "alice")
	hub.HandleConnect(aliceConn)

	hub.HandleMessage(aliceConn, callFrame(t, CallRequest{
		Type: TypeCallInitiate, CallID: "c1", CallType: CallTypeVideo, TargetID: "bob",
	}))

	// Caller alone is told the target is offline; no call record persists.
	ev := readUntilType(t, aliceClient, TypeUserOffline)
	assert.Equal(t, "c1", ev["call_id"])
	_, live := hub.ActiveCall("c1")
	assert.False(t, live)
}

func TestCall_FullLifecycle(t *testing.T) {
	hub, _ := newCallHarness(t)

	aliceConn, aliceClient := dialTestConn(t, "alice")
	bobConn, bobClient := dialTestConn(t, "bob")
	hub.HandleConnect(aliceConn)
	hub.HandleConnect(bobConn)

	hub.HandleMessage(aliceConn, callFrame(t, CallRequest{
		Type: TypeCallInitiate, CallID: "c1", CallType: CallTypeVoice,
		TargetID: "bob", CallerName: "Alice", CallerPhoto: "alice.jpg",
	}))

	incoming := readUntilType(t, bobClient, TypeIncomingCall)
	assert.Equal(t, "c1", incoming["call_id"])
	assert.Equal(t, CallTypeVoice, incoming["call_type"])
	assert.Equal(t, "alice", incoming["caller_id"])
	assert.Equal(t, "Alice", incoming["caller_name"])

	state, live := hub.ActiveCall("c1")
	require.True(t, live)
	assert.Equal(t, CallRinging, state)

	hub.HandleMessage(bobConn, callFrame(t, CallRequest{Type: TypeCallAccept, CallID: "c1"}))
	accepted := readUntilType(t, aliceClient, TypeCallAccepted)
	assert.Equal(t, "c1", accepted["call_id"])

	state, live = hub.ActiveCall("c1")
	require.True(t, live)
	assert.Equal(t, CallConnected, state)

	hub.HandleMessage(aliceConn, callFrame(t, CallRequest{Type: TypeCallEnd, CallID: "c1"}))
	ended := readUntilType(t, bobClient, TypeCallEnded)
	assert.Equal(t, "c1", ended["call_id"])
	_, live = hub.ActiveCall("c1")
	assert.False(t, live)

	// Ending again is a no-op: no second notification to either side.
	hub.HandleMessage(bobConn, callFrame(t, CallRequest{Type: TypeCallEnd, CallID: "c1"}))
	hub.HandleMessage(aliceConn, callFrame(t, CallRequest{Type: TypeCallEnd, CallID: "c1"}))
	expectNoFrame(t, aliceClient, 200*time.Millisecond)
	expectNoFrame(t, bobClient, 200*time.Millisecond)
}

func TestCall_RejectAndBusy(t *testing.T) {
	hub, _ := newCallHarness(t)

	aliceConn, aliceClient := dialTestConn(t, "alice")
	bobConn, bobClient := dialTestConn(t, "bob")
	hub.HandleConnect(aliceConn)
	hub.HandleConnect(bobConn)

	hub.HandleMessage(aliceConn, callFrame(t, CallRequest{
		Type: TypeCallInitiate, CallID: "c1", TargetID: "bob",
	}))
	readUntilType(t, bobClient, TypeIncomingCall)

	hub.HandleMessage(bobConn, callFrame(t, CallRequest{Type: TypeCallReject, CallID: "c1"}))
	rejected := readUntilType(t, aliceClient, TypeCallRejected)
	assert.Equal(t, "c1", rejected["call_id"])
	_, live := hub.ActiveCall("c1")
	assert.False(t, live)

	// Second call answered with busy.
	hub.HandleMessage(aliceConn, callFrame(t, CallRequest{
		Type: TypeCallInitiate, CallID: "c2", TargetID: "bob",
	}))
	readUntilType(t, bobClient, TypeIncomingCall)
	hub.HandleMessage(bobConn, callFrame(t, CallRequest{Type: TypeCallBusy, CallID: "c2"}))
	busy := readUntilType(t, aliceClient, TypeCallBusyOut)
	assert.Equal(t, "c2", busy["call_id"])
	_, live = hub.ActiveCall("c2")
	assert.False(t, live)
}

func TestCall_ReusedCallIDDoesNotMergeState(t *testing.T) {
	hub, _ := newCallHarness(t)

	aliceConn, _ := dialTestConn(t, "alice")
	bobConn, bobClient := dialTestConn(t, "bob")
	carolConn, _ := dialTestConn(t, "carol")
	hub.HandleConnect(aliceConn)
	hub.HandleConnect(bobConn)
	hub.HandleConnect(carolConn)

	hub.HandleMessage(aliceConn, callFrame(t, CallRequest{
		Type: TypeCallInitiate, CallID: "c1", TargetID: "bob",
	}))
	readUntilType(t, bobClient, TypeIncomingCall)

	// Carol reuses the live call ID; the existing record must be untouched
	// and bob must not be rung a second time.
	hub.HandleMessage(carolConn, callFrame(t, CallRequest{
		Type: TypeCallInitiate, CallID: "c1", TargetID: "bob",
	}))
	expectNoFrame(t, bobClient, 200*time.Millisecond)

	state, live := hub.ActiveCall("c1")
	require.True(t, live)
	assert.Equal(t, CallRinging, state)

	// The original caller still controls the call.
	hub.HandleMessage(bobConn, callFrame(t, CallRequest{Type: TypeCallAccept, CallID: "c1"}))
	state, _ = hub.ActiveCall("c1")
	assert.Equal(t, CallConnected, state)
}

func TestCall_DisconnectCleanup(t *testing.T) {
	hub, _ := newCallHarness(t)

	aliceConn, aliceClient := dialTestConn(t, "alice")
	bobConn, bobClient := dialTestConn(t, "bob")
	hub.HandleConnect(aliceConn)
	hub.HandleConnect(bobConn)

	hub.HandleMessage(aliceConn, callFrame(t, CallRequest{
		Type: TypeCallInitiate, CallID: "c1", TargetID: "bob",
	}))
	readUntilType(t, bobClient, TypeIncomingCall)
	hub.HandleMessage(bobConn, callFrame(t, CallRequest{Type: TypeCallAccept, CallID: "c1"}))
	readUntilType(t, aliceClient, TypeCallAccepted)

	// Bob's connection drops mid-call: alice gets exactly one call_ended
	// and the record is gone.
	hub.HandleDisconnect(bobConn)
	ended := readUntilType(t, aliceClient, TypeCallEnded)
	assert.Equal(t, "c1", ended["call_id"])
	_, live := hub.ActiveCall("c1")
	assert.False(t, live)
	expectNoFrame(t, aliceClient, 200*time.Millisecond)
}

func TestCall_SignalingAuthorization(t *testing.T) {
	hub, _ := newCallHarness(t)

	aliceConn, aliceClient := dialTestConn(t, "alice")
	bobConn, bobClient := dialTestConn(t, "bob")
	carolConn, _ := dialTestConn(t, "carol")
	hub.HandleConnect(aliceConn)
	hub.HandleConnect(bobConn)
	hub.HandleConnect(carolConn)

	hub.HandleMessage(aliceConn, callFrame(t, CallRequest{
		Type: TypeCallInitiate, CallID: "c1", TargetID: "bob",
	}))
	readUntilType(t, bobClient, TypeIncomingCall)

	// Accept/Reject/Busy from anyone but the receiver have no effect.
	for _, msgType := range []string{TypeCallAccept, TypeCallReject, TypeCallBusy} {
		hub.HandleMessage(carolConn, callFrame(t, CallRequest{Type: msgType, CallID: "c1"}))
		hub.HandleMessage(aliceConn, callFrame(t, CallRequest{Type: msgType, CallID: "c1"}))
	}
	state, live := hub.ActiveCall("c1")
	require.True(t, live)
	assert.Equal(t, CallRinging, state)

	// When the real receiver accepts, call_accepted is the very next frame
	// alice sees: none of the unauthorized attempts produced a
	// notification.
	hub.HandleMessage(bobConn, callFrame(t, CallRequest{Type: TypeCallAccept, CallID: "c1"}))
	frame := readFrame(t, aliceClient)
	assert.Equal(t, TypeCallAccepted, frame["type"])

	// Accept after the connected transition is equally ignored.
	hub.HandleMessage(bobConn, callFrame(t, CallRequest{Type: TypeCallAccept, CallID: "c1"}))
	expectNoFrame(t, aliceClient, 200*time.Millisecond)
}

func TestCall_IgnoresMalformedAndUnknown(t *testing.T) {
	hub, _ := newCallHarness(t)

	aliceConn, aliceClient := dialTestConn(t, "alice")
	hub.HandleConnect(aliceConn)

	hub.HandleMessage(aliceConn, []byte("not json"))
	hub.HandleMessage(aliceConn, callFrame(t, CallRequest{Type: "dance_request", CallID: "c9"}))
	hub.HandleMessage(aliceConn, callFrame(t, CallRequest{Type: TypeCallInitiate})) // no call ID
	hub.HandleMessage(aliceConn, callFrame(t, CallRequest{
		Type: TypeCallInitiate, CallID: "c1", TargetID: "alice", // self-call
	}))

	expectNoFrame(t, aliceClient, 200*time.Millisecond)
}

func TestCall_StaleRingingReaped(t *testing.T) {
	users := newFakeUserStore("alice", "bob")
	presence := newTestPresenceHub(users, time.Second)
	hub := newTestCallHub(presence, 50*time.Millisecond)

	aliceConn, aliceClient := dialTestConn(t, "alice")
	bobConn, bobClient := dialTestConn(t, "bob")
	hub.HandleConnect(aliceConn)
	hub.HandleConnect(bobConn)

	hub.HandleMessage(aliceConn, callFrame(t, CallRequest{
		Type: TypeCallInitiate, CallID: "c1", TargetID: "bob",
	}))
	readUntilType(t, bobClient, TypeIncomingCall)

	time.Sleep(100 * time.Millisecond)
	hub.reapStaleRinging()

	// Both parties hear the teardown and the record is gone.
	assert.Equal(t, "c1", readUntilType(t, aliceClient, TypeCallEnded)["call_id"])
	assert.Equal(t, "c1", readUntilType(t, bobClient, TypeCallEnded)["call_id"])
	_, live := hub.ActiveCall("c1")
	assert.False(t, live)

	// Connected calls are never reaped.
	hub.HandleMessage(aliceConn, callFrame(t, CallRequest{
		Type: TypeCallInitiate, CallID: "c2", TargetID: "bob",
	}))
	readUntilType(t, bobClient, TypeIncomingCall)
	hub.HandleMessage(bobConn, callFrame(t, CallRequest{Type: TypeCallAccept, CallID: "c2"}))
	time.Sleep(100 * time.Millisecond)
	hub.reapStaleRinging()
	state, live := hub.ActiveCall("c2")
	require.True(t, live)
	assert.Equal(t, CallConnected, state)
}

func TestCall_RingsTargetOverPresenceSocket(t *testing.T) {
	hub, presence := newCallHarness(t)

	aliceConn, aliceClient := dialTestConn(t, "alice")
	hub.HandleConnect(aliceConn)

	// Bob holds a presence connection but no call connection, the normal
	// shape for an idle client. The initiate must not come back as
	// user_offline and the ring must arrive on the connection bob actually
	// has open.
	bobPresence, bobPresenceClient := dialTestConn(t, "bob")
	presence.HandleConnect(bobPresence)
	readUntilType(t, bobPresenceClient, TypePresence)

	hub.HandleMessage(aliceConn, callFrame(t, CallRequest{
		Type: TypeCallInitiate, CallID: "c1", CallType: CallTypeVideo,
		TargetID: "bob", CallerName: "Alice",
	}))

	incoming := readUntilType(t, bobPresenceClient, TypeIncomingCall)
	assert.Equal(t, "c1", incoming["call_id"])
	assert.Equal(t, CallTypeVideo, incoming["call_type"])
	assert.Equal(t, "alice", incoming["caller_id"])

	state, live := hub.ActiveCall("c1")
	require.True(t, live)
	assert.Equal(t, CallRinging, state)

	// Bob opens the call socket to answer; from here events route over it.
	bobCall, bobCallClient := dialTestConn(t, "bob")
	hub.HandleConnect(bobCall)
	hub.HandleMessage(bobCall, callFrame(t, CallRequest{Type: TypeCallAccept, CallID: "c1"}))
	assert.Equal(t, "c1", readUntilType(t, aliceClient, TypeCallAccepted)["call_id"])

	hub.HandleMessage(aliceConn, callFrame(t, CallRequest{Type: TypeCallEnd, CallID: "c1"}))
	assert.Equal(t, "c1", readUntilType(t, bobCallClient, TypeCallEnded)["call_id"])
	_, live = hub.ActiveCall("c1")
	assert.False(t, live)
}

func TestCall_TeardownReachesPresenceOnlyParticipant(t *testing.T) {
	hub, presence := newCallHarness(t)

	aliceConn, _ := dialTestConn(t, "alice")
	hub.HandleConnect(aliceConn)

	bobPresence, bobPresenceClient := dialTestConn(t, "bob")
	presence.HandleConnect(bobPresence)
	readUntilType(t, bobPresenceClient, TypePresence)

	hub.HandleMessage(aliceConn, callFrame(t, CallRequest{
		Type: TypeCallInitiate, CallID: "c1", TargetID: "bob",
	}))
	readUntilType(t, bobPresenceClient, TypeIncomingCall)

	// The caller hangs up before bob ever opens a call socket; the teardown
	// still reaches bob's presence connection so the client can stop ringing.
	hub.HandleMessage(aliceConn, callFrame(t, CallRequest{Type: TypeCallEnd, CallID: "c1"}))
	assert.Equal(t, "c1", readUntilType(t, bobPresenceClient, TypeCallEnded)["call_id"])
	_, live := hub.ActiveCall("c1")
	assert.False(t, live)
}
