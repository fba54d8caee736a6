package ws

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MnsrSfx/lan-chat-web/metrics"
)

// Registry maps user identities to their currently open connections. A user
// may hold several at once (multiple devices). The map is the sole source of
// truth for "is this user reachable right now": a user ID is a key exactly
// as long as its connection set is non-empty.
//
// The presence hub and the call hub each own an independent Registry; the
// raw map is never handed out, only snapshots.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]map[*Conn]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]map[*Conn]struct{}),
	}
}

// Register adds a connection under the user's set, creating the set if
// absent.
func (r *Registry) Register(userID string, c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[userID]
	if !ok {
		set = make(map[*Conn]struct{})
		r.conns[userID] = set
	}
	set[c] = struct{}{}
}

// Unregister removes a connection from the user's set. It returns true when
// this was the user's last connection, so the caller can trigger dependent
// cleanup (grace timer, call teardown). The user's entry is dropped the
// instant its set becomes empty.
func (r *Registry) Unregister(userID string, c *Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[userID]
	if !ok {
		return false
	}
	delete(set, c)
	if len(set) == 0 {
		delete(r.conns, userID)
		return true
	}
	return false
}

// ConnectionsFor returns a snapshot of the user's open connections, empty if
// none. Iterating the snapshot tolerates concurrent removal; sends to a
// connection that has since closed simply fail and are swallowed by the
// caller.
func (r *Registry) ConnectionsFor(userID string) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.conns[userID]
	out := make([]*Conn, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}

// IsOnline reports whether the user has at least one registered connection.
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[userID]
	return ok
}

// OnlineUsers returns a snapshot of all user IDs with open connections.
func (r *Registry) OnlineUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.conns))
	for userID := range r.conns {
		out = append(out, userID)
	}
	return out
}

// All returns a snapshot of every open connection across all users, for
// broadcasts and the liveness sweep.
func (r *Registry) All() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Conn
	for _, set := range r.conns {
		for c := range set {
			out = append(out, c)
		}
	}
	return out
}

// CloseAll force-closes every connection, used during shutdown. Unregister
// happens in each connection's read loop as the closes are observed.
func (r *Registry) CloseAll(code int, reason string) {
	for _, c := range r.All() {
		c.Close(code, reason)
	}
}

// RunSweeper probes every connection on a fixed interval. A connection whose
// liveness flag was not refreshed since the previous pass is force-closed,
// which the read loop treats exactly like a client-initiated close. This
// bounds how long a silently-dead connection (phone killed without a clean
// close) can occupy registry state to roughly two intervals.
func (r *Registry) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, c := range r.All() {
				if !c.SweepAlive() {
					log.Printf("Liveness sweep closing dead connection for user %s", c.UserID)
					metrics.ConnectionsReaped.Inc()
					c.Close(websocket.ClosePolicyViolation, "liveness timeout")
					continue
				}
				if err := c.Ping(); err != nil {
					log.Printf("Failed to ping user %s: %v", c.UserID, err)
				}
			}
		}
	}
}
