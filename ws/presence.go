package ws

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/MnsrSfx/lan-chat-web/broker"
	"github.com/MnsrSfx/lan-chat-web/metrics"
	"github.com/MnsrSfx/lan-chat-web/store"
)

const persistTimeout = 5 * time.Second

// PresenceHub tracks which users are online and fans status transitions out
// to every connected client. Per user the lifecycle is
//
//	offline → (first connection) → online
//	online  → (last connection gone) → pending-offline (grace timer)
//	pending-offline → online (reconnect) | offline (timer fires)
//
// The grace period absorbs app backgrounding, page reloads and short network
// blips without flapping the status other users see.
type PresenceHub struct {
	registry *Registry
	users    store.UserStore
	events   *eventPublisher
	grace    time.Duration

	mu            sync.Mutex
	closed        bool
	offlineTimers map[string]*time.Timer
}

// NewPresenceHub creates the hub around its own connection registry.
func NewPresenceHub(users store.UserStore, events broker.MessageBroker, topic, serverID string, grace time.Duration) *PresenceHub {
	return &PresenceHub{
		registry:      NewRegistry(),
		users:         users,
		events:        newEventPublisher(events, topic, serverID),
		grace:         grace,
		offlineTimers: make(map[string]*time.Timer),
	}
}

// Registry exposes the hub's connection registry for liveness sweeping and
// read-only reachability checks. Callers must not mutate through it except
// via the hub.
func (h *PresenceHub) Registry() *Registry { return h.registry }

// IsOnline reports current reachability, the query surface for the HTTP
// side.
func (h *PresenceHub) IsOnline(userID string) bool { return h.registry.IsOnline(userID) }

// OnlineUsers returns a snapshot of all currently-online user IDs.
func (h *PresenceHub) OnlineUsers() []string { return h.registry.OnlineUsers() }

// HandleConnect registers an authenticated connection. Only the true
// offline→online edge persists and broadcasts; a second device joining an
// already-online user does neither. The new connection always receives the
// online-users snapshot immediately so the client can render presence
// without waiting for events.
func (h *PresenceHub) HandleConnect(c *Conn) {
	h.mu.Lock()
	first := !h.registry.IsOnline(c.UserID)
	h.registry.Register(c.UserID, c)
	graceCancelled := false
	if t, ok := h.offlineTimers[c.UserID]; ok {
		graceCancelled = true
		t.Stop()
		delete(h.offlineTimers, c.UserID)
	}
	h.mu.Unlock()

	metrics.ActiveConnections.WithLabelValues("presence").Inc()
	metrics.TotalConnections.WithLabelValues("presence").Inc()

	if first {
		// A reconnect inside the grace window never counted as offline, so
		// the gauge only moves on the cold edge.
		if !graceCancelled {
			metrics.OnlineUsers.Inc()
		}
		h.persistOnline(c.UserID)
		h.events.publish(StatusOnline, c.UserID, "", "")
		h.broadcast(UserStatus{Type: TypeUserStatus, UserID: c.UserID, Status: StatusOnline})
		log.Printf("User %s is now online", c.UserID)
	}

	if err := c.WriteJSON(PresenceSnapshot{Type: TypePresence, Online: h.registry.OnlineUsers()}); err != nil {
		log.Printf("Failed to send presence snapshot to %s: %v", c.UserID, err)
	}
}

// HandleDisconnect unregisters a connection. When it was the user's last
// one, the offline transition is deferred by the grace period instead of
// firing immediately; a reconnect inside the window cancels it.
func (h *PresenceHub) HandleDisconnect(c *Conn) {
	h.mu.Lock()
	last := h.registry.Unregister(c.UserID, c)
	if last && !h.closed {
		if t, ok := h.offlineTimers[c.UserID]; ok {
			t.Stop()
		}
		userID := c.UserID
		h.offlineTimers[userID] = time.AfterFunc(h.grace, func() {
			h.offlineExpired(userID)
		})
	}
	h.mu.Unlock()

	metrics.ActiveConnections.WithLabelValues("presence").Dec()
}

// offlineExpired runs when a grace timer fires. The live connection count is
// re-checked here rather than trusting the scheduling decision, so a
// reconnect that raced the timer always wins.
func (h *PresenceHub) offlineExpired(userID string) {
	h.mu.Lock()
	delete(h.offlineTimers, userID)
	if h.closed || h.registry.IsOnline(userID) {
		h.mu.Unlock()
		return
	}
	h.mu.Unlock()

	lastSeen := time.Now()
	metrics.OnlineUsers.Dec()
	h.persistOffline(userID, lastSeen)
	h.events.publish(StatusOffline, userID, "", "")
	h.broadcast(UserStatus{
		Type:     TypeUserStatus,
		UserID:   userID,
		Status:   StatusOffline,
		LastSeen: lastSeen.Unix(),
	})
	log.Printf("User %s is now offline", userID)
}

// broadcast delivers a status event to every open connection across all
// users. Presence is a global public signal, not a per-relationship one.
// Sends run against a snapshot, outside the hub lock; failures are
// swallowed.
func (h *PresenceHub) broadcast(status UserStatus) {
	metrics.StatusBroadcasts.WithLabelValues(status.Status).Inc()
	for _, c := range h.registry.All() {
		if err := c.WriteJSON(status); err != nil {
			log.Printf("Failed to broadcast %s status of %s to %s: %v", status.Status, status.UserID, c.UserID, err)
		}
	}
}

// persistOnline and persistOffline are best-effort relative to the durable
// store; the in-memory registry stays authoritative for reachability.
func (h *PresenceHub) persistOnline(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := h.users.SetOnline(ctx, userID); err != nil {
		log.Printf("Failed to persist online status for %s: %v", userID, err)
	}
}

func (h *PresenceHub) persistOffline(userID string, lastSeen time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := h.users.SetOffline(ctx, userID, lastSeen); err != nil {
		log.Printf("Failed to persist offline status for %s: %v", userID, err)
	}
}

// Shutdown stops pending grace timers, closes all connections and drains
// event publishes. Once the closed flag is set, disconnects trickling in
// from the read loops unregister without arming fresh timers, so no offline
// transition or publish races the drain.
func (h *PresenceHub) Shutdown(code int, reason string) {
	h.mu.Lock()
	h.closed = true
	for userID, t := range h.offlineTimers {
		t.Stop()
		delete(h.offlineTimers, userID)
	}
	h.mu.Unlock()

	h.registry.CloseAll(code, reason)
	h.events.wait()
}
