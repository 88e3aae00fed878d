package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-key-api/internal/models"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// eventServer upgrades each connection and writes the given events as
// text frames, then keeps the connection open until the test ends.
func eventServer(t *testing.T, events []models.KeyEvent) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		for _, event := range events {
			payload, _ := json.Marshal(event)
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}
		<-r.Context().Done()
	}))
}

func TestNewSocketBuildsWSURL(t *testing.T) {
	sock, err := NewSocket(SocketConfig{BaseURL: "https://keys.campus.edu", Token: "abc def"})
	require.NoError(t, err)
	assert.Equal(t, "wss://keys.campus.edu/ws?token=abc+def", sock.wsURL)

	sock, err = NewSocket(SocketConfig{BaseURL: "http://localhost:8080", Token: "t"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sock.wsURL, "ws://localhost:8080/ws"))
}

func TestSocketDeliversEventsInOrder(t *testing.T) {
	sent := []models.KeyEvent{
		{Action: models.EventTake, Key: models.KeyView{Key: models.Key{ID: "key-1"}}},
		{Action: models.EventReturn, Key: models.KeyView{Key: models.Key{ID: "key-1"}}},
		{Action: models.EventTake, Key: models.KeyView{Key: models.Key{ID: "key-2"}}},
	}
	server := eventServer(t, sent)
	defer server.Close()

	var mu sync.Mutex
	var connected bool
	var received []models.KeyEvent
	done := make(chan struct{})

	sock, err := NewSocket(SocketConfig{
		BaseURL: server.URL,
		Token:   "t",
		OnConnect: func() {
			mu.Lock()
			connected = true
			mu.Unlock()
		},
		OnEvent: func(event models.KeyEvent) {
			mu.Lock()
			received = append(received, event)
			if len(received) == len(sent) {
				close(done)
			}
			mu.Unlock()
		},
	})
	require.NoError(t, err)

	require.NoError(t, sock.Connect(context.Background()))
	defer sock.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected all events to arrive")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, connected)
	require.Len(t, received, 3)
	assert.Equal(t, models.EventTake, received[0].Action)
	assert.Equal(t, models.EventReturn, received[1].Action)
	assert.Equal(t, "key-2", received[2].Key.ID)
}

func TestSocketConnectFailsWhenServerDown(t *testing.T) {
	server := eventServer(t, nil)
	server.Close()

	sock, err := NewSocket(SocketConfig{BaseURL: server.URL, Token: "t"})
	require.NoError(t, err)

	err = sock.Connect(context.Background())
	require.Error(t, err)
	assert.False(t, sock.Terminal())
}

func TestSocketConnectIsIdempotent(t *testing.T) {
	server := eventServer(t, nil)
	defer server.Close()

	sock, err := NewSocket(SocketConfig{BaseURL: server.URL, Token: "t"})
	require.NoError(t, err)

	require.NoError(t, sock.Connect(context.Background()))
	defer sock.Close()

	// A second Connect on a running socket is a no-op.
	require.NoError(t, sock.Connect(context.Background()))
}
