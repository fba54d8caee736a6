package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/MnsrSfx/lan-chat-web/broker"
	"github.com/MnsrSfx/lan-chat-web/metrics"
)

// CallState is a live call's position in its lifecycle. Terminal outcomes
// (ended, rejected, busy, timed out) have no state: the call is removed from
// the live set the instant it reaches one.
type CallState string

const (
	CallRinging   CallState = "ringing"
	CallConnected CallState = "connected"
)

// Call is a bilateral session between a caller and a receiver, keyed by a
// caller-supplied call ID.
type Call struct {
	ID         string
	Type       string // voice | video
	CallerID   string
	ReceiverID string
	State      CallState
	CreatedAt  time.Time
}

// CallHub brokers call setup and teardown handshakes between two peers. It
// owns its own connection registry for the call socket; a target reachable
// only through the presence socket receives call events over that socket
// instead, since clients do not hold a call connection open between calls.
type CallHub struct {
	registry *Registry
	presence *PresenceHub
	events   *eventPublisher

	maxRinging time.Duration

	mu    sync.Mutex
	calls map[string]*Call
}

// NewCallHub creates the hub. maxRinging bounds how long an unanswered
// ringing call may live server-side; the caller's client enforces its own,
// shorter, answer timeout.
func NewCallHub(presence *PresenceHub, events broker.MessageBroker, topic, serverID string, maxRinging time.Duration) *CallHub {
	return &CallHub{
		registry:   NewRegistry(),
		presence:   presence,
		events:     newEventPublisher(events, topic, serverID),
		maxRinging: maxRinging,
		calls:      make(map[string]*Call),
	}
}

// Registry exposes the hub's connection registry for liveness sweeping.
func (h *CallHub) Registry() *Registry { return h.registry }

// HandleConnect registers an authenticated call-socket connection.
func (h *CallHub) HandleConnect(c *Conn) {
	h.registry.Register(c.UserID, c)
	metrics.ActiveConnections.WithLabelValues("call").Inc()
	metrics.TotalConnections.WithLabelValues("call").Inc()
}

// HandleDisconnect unregisters a connection. Once the user has no call
// connections left, every live call they participate in is torn down and the
// other party notified, so no call ever outlives both its participants'
// connections.
func (h *CallHub) HandleDisconnect(c *Conn) {
	last := h.registry.Unregister(c.UserID, c)
	metrics.ActiveConnections.WithLabelValues("call").Dec()
	if last {
		h.cleanupUser(c.UserID)
	}
}

// HandleMessage decodes and dispatches one inbound frame. The sender's
// identity comes from the connection, never the payload. Malformed frames
// and unknown types are logged or ignored; signaling for stale or foreign
// calls is an expected race, not a fault, so it never draws an error reply.
func (h *CallHub) HandleMessage(c *Conn, raw []byte) {
	var req CallRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		log.Printf("Malformed call message from %s: %v", c.UserID, err)
		return
	}
	if req.CallID == "" {
		return
	}

	switch req.Type {
	case TypeCallInitiate:
		h.initiate(c, req)
	case TypeCallAccept:
		h.accept(c, req.CallID)
	case TypeCallReject:
		h.terminateRinging(c, req.CallID, TypeCallRejected, "rejected")
	case TypeCallBusy:
		h.terminateRinging(c, req.CallID, TypeCallBusyOut, "busy")
	case TypeCallEnd:
		h.end(c, req.CallID)
	default:
		// Unrecognized types are ignored silently.
	}
}

// initiate creates a ringing call and rings every connection the target has
// open. An unreachable target yields a user_offline reply to the caller only
// and no call record.
func (h *CallHub) initiate(c *Conn, req CallRequest) {
	if req.TargetID == "" || req.TargetID == c.UserID {
		return
	}

	if !h.registry.IsOnline(req.TargetID) && !h.presence.IsOnline(req.TargetID) {
		if err := c.WriteJSON(CallEvent{Type: TypeUserOffline, CallID: req.CallID}); err != nil {
			log.Printf("Failed to send user_offline to %s: %v", c.UserID, err)
		}
		return
	}

	callType := req.CallType
	if callType == "" {
		callType = CallTypeVoice
	}

	h.mu.Lock()
	if _, exists := h.calls[req.CallID]; exists {
		// Reused call ID while the original call is still live. The caller
		// is responsible for unique IDs; the existing record is left alone.
		h.mu.Unlock()
		return
	}
	h.calls[req.CallID] = &Call{
		ID:         req.CallID,
		Type:       callType,
		CallerID:   c.UserID,
		ReceiverID: req.TargetID,
		State:      CallRinging,
		CreatedAt:  time.Now(),
	}
	h.mu.Unlock()

	metrics.CallsInitiated.Inc()
	metrics.ActiveCalls.Inc()
	h.events.publish("call_initiated", c.UserID, req.CallID, req.TargetID)
	log.Printf("Call %s: %s ringing %s (%s)", req.CallID, c.UserID, req.TargetID, callType)

	h.sendToUser(req.TargetID, CallEvent{
		Type:        TypeIncomingCall,
		CallID:      req.CallID,
		CallType:    callType,
		CallerID:    c.UserID,
		CallerName:  req.CallerName,
		CallerPhoto: req.CallerPhoto,
	})
}

// accept transitions ringing → connected. Only the receiver of a ringing
// call may accept; anything else is a no-op.
func (h *CallHub) accept(c *Conn, callID string) {
	h.mu.Lock()
	call, ok := h.calls[callID]
	if !ok || call.ReceiverID != c.UserID || call.State != CallRinging {
		h.mu.Unlock()
		return
	}
	call.State = CallConnected
	callerID := call.CallerID
	h.mu.Unlock()

	h.events.publish("call_connected", c.UserID, callID, callerID)
	log.Printf("Call %s: accepted by %s", callID, c.UserID)
	h.sendToUser(callerID, CallEvent{Type: TypeCallAccepted, CallID: callID})
}

// terminateRinging handles reject and busy: receiver-only, ringing-only
// terminal transitions that notify the caller.
func (h *CallHub) terminateRinging(c *Conn, callID, eventType, outcome string) {
	h.mu.Lock()
	call, ok := h.calls[callID]
	if !ok || call.ReceiverID != c.UserID || call.State != CallRinging {
		h.mu.Unlock()
		return
	}
	delete(h.calls, callID)
	callerID := call.CallerID
	h.mu.Unlock()

	metrics.ActiveCalls.Dec()
	metrics.CallsEnded.WithLabelValues(outcome).Inc()
	h.events.publish("call_"+outcome, c.UserID, callID, callerID)
	log.Printf("Call %s: %s by %s", callID, outcome, c.UserID)
	h.sendToUser(callerID, CallEvent{Type: eventType, CallID: callID})
}

// end removes a call in any non-terminal state. Either party may end;
// ending an already-absent call is a no-op, which makes the operation
// idempotent.
func (h *CallHub) end(c *Conn, callID string) {
	h.mu.Lock()
	call, ok := h.calls[callID]
	if !ok || (call.CallerID != c.UserID && call.ReceiverID != c.UserID) {
		h.mu.Unlock()
		return
	}
	delete(h.calls, callID)
	peerID := call.peerOf(c.UserID)
	h.mu.Unlock()

	metrics.ActiveCalls.Dec()
	metrics.CallsEnded.WithLabelValues("ended").Inc()
	h.events.publish(TypeCallEnded, c.UserID, callID, peerID)
	log.Printf("Call %s: ended by %s", callID, c.UserID)
	h.sendToUser(peerID, CallEvent{Type: TypeCallEnded, CallID: callID})
}

// cleanupUser tears down every live call the user participates in after
// their last call connection closed.
func (h *CallHub) cleanupUser(userID string) {
	type orphan struct {
		callID string
		peerID string
	}

	h.mu.Lock()
	var orphans []orphan
	for id, call := range h.calls {
		if call.CallerID == userID || call.ReceiverID == userID {
			delete(h.calls, id)
			orphans = append(orphans, orphan{callID: id, peerID: call.peerOf(userID)})
		}
	}
	h.mu.Unlock()

	for _, o := range orphans {
		metrics.ActiveCalls.Dec()
		metrics.CallsEnded.WithLabelValues("disconnect").Inc()
		h.events.publish(TypeCallEnded, userID, o.callID, o.peerID)
		log.Printf("Call %s: participant %s disconnected", o.callID, userID)
		h.sendToUser(o.peerID, CallEvent{Type: TypeCallEnded, CallID: o.callID})
	}
}

// RunSweeper reaps ringing calls whose caller never received an answer and
// also never sent an explicit end, e.g. because the caller vanished without
// a clean close. Both parties are notified.
func (h *CallHub) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.reapStaleRinging()
		}
	}
}

func (h *CallHub) reapStaleRinging() {
	cutoff := time.Now().Add(-h.maxRinging)

	h.mu.Lock()
	var stale []*Call
	for id, call := range h.calls {
		if call.State == CallRinging && call.CreatedAt.Before(cutoff) {
			delete(h.calls, id)
			stale = append(stale, call)
		}
	}
	h.mu.Unlock()

	for _, call := range stale {
		metrics.ActiveCalls.Dec()
		metrics.CallsEnded.WithLabelValues("timeout").Inc()
		h.events.publish(TypeCallEnded, call.CallerID, call.ID, call.ReceiverID)
		log.Printf("Call %s: reaped after ringing for over %s", call.ID, h.maxRinging)
		h.sendToUser(call.CallerID, CallEvent{Type: TypeCallEnded, CallID: call.ID})
		h.sendToUser(call.ReceiverID, CallEvent{Type: TypeCallEnded, CallID: call.ID})
	}
}

// ActiveCall reports whether the call is still in the live set, and its
// state if so.
func (h *CallHub) ActiveCall(callID string) (CallState, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	call, ok := h.calls[callID]
	if !ok {
		return "", false
	}
	return call.State, true
}

// sendToUser delivers an event to every call connection the user currently
// has open. A user with no call connection is reached over their presence
// connections instead; that is the normal path for incoming_call, since
// clients open the call socket only once a call involves them. Sends are
// best-effort against a snapshot; failures are swallowed, never retried past
// the write path's own bounded retry.
func (h *CallHub) sendToUser(userID string, event CallEvent) {
	conns := h.registry.ConnectionsFor(userID)
	if len(conns) == 0 {
		conns = h.presence.Registry().ConnectionsFor(userID)
	}
	for _, c := range conns {
		if err := c.WriteJSON(event); err != nil {
			log.Printf("Failed to send %s for call %s to %s: %v", event.Type, event.CallID, userID, err)
		}
	}
}

// Shutdown closes all call connections and drains event publishes.
func (h *CallHub) Shutdown(code int, reason string) {
	h.registry.CloseAll(code, reason)
	h.events.wait()
}

func (c *Call) peerOf(userID string) string {
	if c.CallerID == userID {
		return c.ReceiverID
	}
	return c.CallerID
}
