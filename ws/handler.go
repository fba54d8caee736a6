package ws

import (
	"errors"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MnsrSfx/lan-chat-web/config"
)

// Handler owns the two upgrade endpoints: /ws/presence and /ws/call. The two
// sockets are distinguished at the transport layer, never multiplexed.
type Handler struct {
	presence *PresenceHub
	calls    *CallHub
	verifier *TokenVerifier
	cfg      *config.WebSocketConfig
	authCfg  *config.AuthConfig

	upgrader websocket.Upgrader
}

// NewHandler creates the websocket handler.
func NewHandler(presence *PresenceHub, calls *CallHub, verifier *TokenVerifier, cfg *config.WebSocketConfig, authCfg *config.AuthConfig) *Handler {
	return &Handler{
		presence: presence,
		calls:    calls,
		verifier: verifier,
		cfg:      cfg,
		authCfg:  authCfg,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: time.Duration(cfg.HandshakeTimeout) * time.Second,
			CheckOrigin:      func(r *http.Request) bool { return true },
		},
	}
}

// Register mounts both endpoints on the given mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/ws/presence", h.HandlePresence)
	mux.HandleFunc("/ws/call", h.HandleCall)
}

// HandlePresence accepts a presence connection and runs its read loop. The
// client sends no application frames on this socket; reads exist to observe
// liveness and the close.
func (h *Handler) HandlePresence(w http.ResponseWriter, r *http.Request) {
	c := h.accept(w, r)
	if c == nil {
		return
	}

	h.presence.HandleConnect(c)
	defer h.presence.HandleDisconnect(c)

	for {
		if _, err := c.ReadMessage(); err != nil {
			h.logReadError(c, err)
			c.Close(websocket.CloseNormalClosure, "client disconnected")
			return
		}
		// Inbound frames on the presence socket carry no meaning; receiving
		// one still refreshes the liveness flag.
	}
}

// HandleCall accepts a call-signaling connection and dispatches its frames.
func (h *Handler) HandleCall(w http.ResponseWriter, r *http.Request) {
	c := h.accept(w, r)
	if c == nil {
		return
	}

	h.calls.HandleConnect(c)
	defer h.calls.HandleDisconnect(c)

	for {
		msg, err := c.ReadMessage()
		if err != nil {
			h.logReadError(c, err)
			c.Close(websocket.CloseNormalClosure, "client disconnected")
			return
		}
		h.calls.HandleMessage(c, msg)
	}
}

// accept upgrades the request and authenticates the token supplied as a
// query parameter (the upgrade request of this transport cannot always carry
// custom headers from every client runtime). Authentication failures close
// the fresh connection with a distinguishing reason code and no further
// exchange.
func (h *Handler) accept(w http.ResponseWriter, r *http.Request) *Conn {
	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed for %s: %v", r.RemoteAddr, err)
		return nil
	}

	token := r.URL.Query().Get(h.authCfg.TokenQueryParam)
	user, authErr := h.verifier.Verify(r.Context(), token)
	if authErr != nil {
		log.Printf("Auth failed for %s: %s", r.RemoteAddr, authErr.Reason)
		deadline := time.Now().Add(time.Duration(h.cfg.WriteTimeout) * time.Second)
		wsConn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(authErr.Code, authErr.Reason),
			deadline,
		)
		wsConn.Close()
		return nil
	}

	return NewConn(user.ID, wsConn, h.cfg)
}

func (h *Handler) logReadError(c *Conn, err error) {
	if websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) ||
		errors.Is(err, net.ErrClosed) {
		return
	}
	log.Printf("Read error from %s: %v", c.UserID, err)
}
