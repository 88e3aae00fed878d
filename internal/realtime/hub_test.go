package realtime

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-key-api/internal/models"
	"github.com/noah-isme/campus-key-api/pkg/config"
)

func testHub(metrics Metrics) *Hub {
	return NewHub(config.RealtimeConfig{
		MaxConnections: 4,
		SendBufferSize: 8,
		WriteWait:      time.Second,
		PongWait:       time.Second,
	}, zap.NewNop(), metrics)
}

func takeEvent(keyID, userID string) models.KeyEvent {
	holderID := userID
	return models.KeyEvent{
		Action: models.EventTake,
		Key: models.KeyView{
			Key:       models.Key{ID: keyID, KeyNumber: "K-" + keyID, Status: models.KeyStatusUnavailable},
			HolderRef: &models.KeyHolder{ID: holderID},
		},
		UserID:     userID,
		OccurredAt: time.Now().UTC(),
	}
}

func TestHubDeliversToKeysRoom(t *testing.T) {
	hub := testHub(nil)
	events, cancel := hub.Subscribe(RoomKeys)
	defer cancel()

	hub.Publish(takeEvent("key-1", "user-1"))

	select {
	case event := <-events:
		assert.Equal(t, models.EventTake, event.Action)
		assert.Equal(t, "key-1", event.Key.ID)
	case <-time.After(time.Second):
		t.Fatal("expected event on keys room")
	}
}

func TestHubDeliversToActorUserRoom(t *testing.T) {
	hub := testHub(nil)
	mine, cancelMine := hub.Subscribe(RoomUser("user-1"))
	defer cancelMine()
	other, cancelOther := hub.Subscribe(RoomUser("user-2"))
	defer cancelOther()

	hub.Publish(takeEvent("key-1", "user-1"))

	select {
	case event := <-mine:
		assert.Equal(t, "user-1", event.UserID)
	case <-time.After(time.Second):
		t.Fatal("expected event on actor's room")
	}

	select {
	case <-other:
		t.Fatal("unrelated user room must not receive the event")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubDeliversToSecurityRoleRoom(t *testing.T) {
	hub := testHub(nil)
	security, cancelSec := hub.Subscribe(RoomRole(models.RoleSecurity))
	defer cancelSec()
	faculty, cancelFac := hub.Subscribe(RoomRole(models.RoleFaculty))
	defer cancelFac()

	hub.Publish(takeEvent("key-1", "user-1"))

	select {
	case <-security:
	case <-time.After(time.Second):
		t.Fatal("expected event on security role room")
	}

	select {
	case <-faculty:
		t.Fatal("faculty role room must not receive the event")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubNotifiesOriginalHolderOnCollectiveReturn(t *testing.T) {
	hub := testHub(nil)
	holder, cancel := hub.Subscribe(RoomUser("user-1"))
	defer cancel()

	hub.Publish(models.KeyEvent{
		Action:         models.EventCollectiveReturn,
		Key:            models.KeyView{Key: models.Key{ID: "key-1", Status: models.KeyStatusAvailable}},
		UserID:         "sec-1",
		OriginalHolder: &models.KeyHolder{ID: "user-1", Name: "Dewi"},
		Reason:         "holder absent",
		OccurredAt:     time.Now().UTC(),
	})

	select {
	case event := <-holder:
		assert.Equal(t, models.EventCollectiveReturn, event.Action)
		require.NotNil(t, event.OriginalHolder)
		assert.Equal(t, "user-1", event.OriginalHolder.ID)
		assert.Equal(t, "holder absent", event.Reason)
	case <-time.After(time.Second):
		t.Fatal("original holder must be notified")
	}
}

func TestHubCancelDetachesSubscriber(t *testing.T) {
	hub := testHub(nil)
	events, cancel := hub.Subscribe(RoomKeys)
	cancel()

	hub.Publish(takeEvent("key-1", "user-1"))

	select {
	case <-events:
		t.Fatal("cancelled subscriber must not receive events")
	case <-time.After(50 * time.Millisecond):
	}
}

type recordingMetrics struct {
	published   []models.EventAction
	connections int
}

func (m *recordingMetrics) ObserveEventPublished(action models.EventAction) {
	m.published = append(m.published, action)
}

func (m *recordingMetrics) SetRealtimeConnections(n int) {
	m.connections = n
}

func TestHubReportsMetrics(t *testing.T) {
	metrics := &recordingMetrics{}
	hub := testHub(metrics)

	hub.Publish(takeEvent("key-1", "user-1"))
	require.Len(t, metrics.published, 1)
	assert.Equal(t, models.EventTake, metrics.published[0])
}

func wsTestServer(t *testing.T, hub *Hub, claims *models.JWTClaims) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, claims)
	}))
}

func dialWS(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	return conn
}

func TestHubEndToEndWebsocketDelivery(t *testing.T) {
	hub := testHub(nil)
	claims := &models.JWTClaims{UserID: "user-1", Role: models.RoleFaculty}
	server := wsTestServer(t, hub, claims)
	defer server.Close()

	conn := dialWS(t, server)
	defer conn.Close()

	// Wait for the session to register before publishing.
	require.Eventually(t, func() bool {
		return hub.ActiveConnections() == 1
	}, time.Second, 10*time.Millisecond)

	hub.Publish(takeEvent("key-1", "user-1"))

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var event models.KeyEvent
	require.NoError(t, json.Unmarshal(payload, &event))
	assert.Equal(t, models.EventTake, event.Action)
	assert.Equal(t, "key-1", event.Key.ID)
}

func TestHubRejectsOverMaxConnections(t *testing.T) {
	hub := NewHub(config.RealtimeConfig{
		MaxConnections: 1,
		SendBufferSize: 8,
		WriteWait:      time.Second,
		PongWait:       time.Second,
	}, zap.NewNop(), nil)
	claims := &models.JWTClaims{UserID: "user-1", Role: models.RoleFaculty}
	server := wsTestServer(t, hub, claims)
	defer server.Close()

	first := dialWS(t, server)
	defer first.Close()
	require.Eventually(t, func() bool {
		return hub.ActiveConnections() == 1
	}, time.Second, 10*time.Millisecond)

	second := dialWS(t, server)
	defer second.Close()

	// The server closes the second session immediately with a close frame.
	_ = second.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err := second.ReadMessage()
	require.Error(t, err)
	assert.Equal(t, 1, hub.ActiveConnections())
}
