package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/MnsrSfx/lan-chat-web/config"
	"github.com/MnsrSfx/lan-chat-web/store"
)

const testReadTimeout = 2 * time.Second

func testWSConfig() *config.WebSocketConfig {
	return &config.WebSocketConfig{
		MessageSizeLimit: 4096,
		HandshakeTimeout: 5,
		PingInterval:     30,
		WriteTimeout:     2,
	}
}

// dialTestConn builds a real websocket pair and wraps the server side in a
// Conn for the given user. The client side is returned for reading what the
// hubs send.
func dialTestConn(t *testing.T, userID string) (*Conn, *websocket.Conn) {
	t.Helper()

	upgrader := websocket.Upgrader{}
	serverSide := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serverSide <- c
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	select {
	case sc := <-serverSide:
		return NewConn(userID, sc, testWSConfig()), client
	case <-time.After(testReadTimeout):
		t.Fatal("timed out waiting for server-side connection")
		return nil, nil
	}
}

// readFrame reads the next JSON frame from the client side.
func readFrame(t *testing.T, c *websocket.Conn) map[string]interface{} {
	t.Helper()
	c.SetReadDeadline(time.Now().Add(testReadTimeout))
	var m map[string]interface{}
	require.NoError(t, c.ReadJSON(&m))
	return m
}

// readUntilType drains frames until one with the wanted type arrives.
func readUntilType(t *testing.T, c *websocket.Conn, wantType string) map[string]interface{} {
	t.Helper()
	deadline := time.Now().Add(testReadTimeout)
	for time.Now().Before(deadline) {
		m := readFrame(t, c)
		if m["type"] == wantType {
			return m
		}
	}
	t.Fatalf("never received frame of type %q", wantType)
	return nil
}

// expectNoFrame asserts the client sees nothing for the given window.
func expectNoFrame(t *testing.T, c *websocket.Conn, window time.Duration) {
	t.Helper()
	c.SetReadDeadline(time.Now().Add(window))
	var m map[string]interface{}
	err := c.ReadJSON(&m)
	if err == nil {
		t.Fatalf("expected no frame, got %v", m)
	}
}

// fakeUserStore is an in-memory UserStore that records status flips.
type fakeUserStore struct {
	mu           sync.Mutex
	users        map[string]*store.User
	onlineCalls  []string
	offlineCalls []string
	fail         bool
}

func newFakeUserStore(userIDs ...string) *fakeUserStore {
	users := make(map[string]*store.User, len(userIDs))
	for _, id := range userIDs {
		users[id] = &store.User{ID: id, Username: id}
	}
	return &fakeUserStore{users: users}
}

func (f *fakeUserStore) GetUser(_ context.Context, userID string) (*store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, context.DeadlineExceeded
	}
	u, ok := f.users[userID]
	if !ok {
		return nil, nil
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUserStore) SetOnline(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return context.DeadlineExceeded
	}
	f.onlineCalls = append(f.onlineCalls, userID)
	return nil
}

func (f *fakeUserStore) SetOffline(_ context.Context, userID string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return context.DeadlineExceeded
	}
	f.offlineCalls = append(f.offlineCalls, userID)
	return nil
}

func (f *fakeUserStore) offlineCount(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, id := range f.offlineCalls {
		if id == userID {
			n++
		}
	}
	return n
}

func newTestPresenceHub(users store.UserStore, grace time.Duration) *PresenceHub {
	return NewPresenceHub(users, nil, "presence-events", "test-server", grace)
}

func newTestCallHub(presence *PresenceHub, maxRinging time.Duration) *CallHub {
	return NewCallHub(presence, nil, "call-events", "test-server", maxRinging)
}
