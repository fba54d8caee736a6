package ws

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/MnsrSfx/lan-chat-web/config"
)

const (
	writeRetryDelay = 200 * time.Millisecond
	writeMaxRetries = 2
)

// Conn is one authenticated client connection. It is bound to a single user
// identity for its whole lifetime and owned by exactly one registry.
type Conn struct {
	UserID string

	ws    *websocket.Conn
	cfg   *config.WebSocketConfig
	alive atomic.Bool
	mu    sync.Mutex // serializes all writes to the transport

	closeOnce sync.Once
}

// NewConn wraps an upgraded websocket connection for the given user. The
// connection starts out alive; the pong handler keeps it that way between
// liveness sweeps.
func NewConn(userID string, wsConn *websocket.Conn, cfg *config.WebSocketConfig) *Conn {
	c := &Conn{
		UserID: userID,
		ws:     wsConn,
		cfg:    cfg,
	}
	c.alive.Store(true)
	wsConn.SetPongHandler(func(string) error {
		c.alive.Store(true)
		return nil
	})
	if cfg.MessageSizeLimit > 0 {
		wsConn.SetReadLimit(int64(cfg.MessageSizeLimit))
	}
	return c
}

// WriteJSON writes a frame with bounded retry. Failures after the retries
// are exhausted are returned to the caller, which is expected to swallow
// them; the liveness sweep is what reaps a dead connection, not the send
// path.
func (c *Conn) WriteJSON(data interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	operation := func() error {
		c.ws.SetWriteDeadline(time.Now().Add(time.Duration(c.cfg.WriteTimeout) * time.Second))
		return c.ws.WriteJSON(data)
	}

	backoffStrategy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(writeRetryDelay), writeMaxRetries),
		context.Background(),
	)

	return backoff.RetryNotify(operation, backoffStrategy, func(err error, d time.Duration) {
		log.Printf("Retrying WebSocket write to %s: %v (next attempt in %s)", c.UserID, err, d)
	})
}

// ReadMessage blocks until the next frame from the client. Any received
// frame also counts as liveness.
func (c *Conn) ReadMessage() ([]byte, error) {
	_, msg, err := c.ws.ReadMessage()
	if err == nil {
		c.alive.Store(true)
	}
	return msg, err
}

// Ping sends a liveness probe control frame.
func (c *Conn) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteControl(
		websocket.PingMessage,
		nil,
		time.Now().Add(time.Duration(c.cfg.WriteTimeout)*time.Second),
	)
}

// SweepAlive clears the liveness flag and reports whether it was set since
// the previous sweep.
func (c *Conn) SweepAlive() bool {
	return c.alive.Swap(false)
}

// Close sends a close frame with the given reason code and tears the
// transport down. Safe to call more than once; only the first call does
// anything.
func (c *Conn) Close(code int, text string) error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		deadline := time.Now().Add(time.Duration(c.cfg.WriteTimeout) * time.Second)
		if werr := c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(code, text),
			deadline,
		); werr != nil {
			log.Printf("Error sending close message to %s: %v", c.UserID, werr)
		}
		err = c.ws.Close()
	})
	return err
}
