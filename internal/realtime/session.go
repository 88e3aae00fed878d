package realtime

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-key-api/internal/models"
)

const maxMessageSize = 512

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Cross-origin policy is enforced by the CORS middleware in front of
	// the upgrade; the handshake itself accepts any origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Session is one connected websocket client subscribed to its rooms.
type Session struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	rooms     []string
	closeOnce sync.Once
}

// ServeWS upgrades the request and registers a session for the claims'
// rooms: the personal room, the role room, and the global keys room.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, claims *models.JWTClaims) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	session := &Session{
		hub:  h,
		conn: conn,
		send: make(chan []byte, h.cfg.SendBufferSize),
		done: make(chan struct{}),
		rooms: []string{
			RoomKeys,
			RoomRole(claims.Role),
			RoomUser(claims.UserID),
		},
	}

	if !h.register(session) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too many connections"),
			time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}

	h.logger.Info("websocket session registered",
		zap.String("user_id", claims.UserID),
		zap.String("role", string(claims.Role)),
		zap.String("remote_addr", conn.RemoteAddr().String()))

	go session.writePump()
	go session.readPump()
}

// enqueue places a payload on the session's send channel. A full buffer
// means the consumer is too slow; the session is dropped rather than
// blocking the publisher.
func (s *Session) enqueue(payload []byte) {
	select {
	case s.send <- payload:
	default:
		s.hub.logger.Warn("session send buffer full, dropping connection",
			zap.String("remote_addr", s.conn.RemoteAddr().String()))
		s.hub.unregister(s)
		s.closeOnce.Do(func() { close(s.done) })
	}
}

func (s *Session) writePump() {
	pingPeriod := (s.hub.cfg.PongWait * 9) / 10
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case payload := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.hub.cfg.WriteWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-s.done:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.hub.cfg.WriteWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.hub.cfg.WriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards client frames; the channel is server-push only. Its job
// is pong handling and noticing closed connections.
func (s *Session) readPump() {
	defer func() {
		s.hub.unregister(s)
		_ = s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(s.hub.cfg.PongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.hub.cfg.PongWait))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.hub.logger.Debug("websocket session closed unexpectedly", zap.Error(err))
			}
			return
		}
	}
}
