package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-key-api/internal/models"
)

const (
	reconnectBaseDelay = time.Second
	maxReconnects      = 5
)

// ErrSocketTerminal is returned when the socket exhausted its reconnect
// attempts and needs an explicit Reconnect call.
var ErrSocketTerminal = errors.New("socket is terminal, call Reconnect")

// SocketConfig configures the event listener.
type SocketConfig struct {
	BaseURL string
	Token   string
	Logger  *zap.Logger

	// OnConnect fires after every successful (re)connect. The consumer is
	// expected to run a full fetch here; events missed while disconnected
	// are not replayed.
	OnConnect func()

	// OnEvent receives events strictly in arrival order.
	OnEvent func(models.KeyEvent)
}

// Socket maintains the websocket connection to the event channel.
type Socket struct {
	cfg    SocketConfig
	logger *zap.Logger
	wsURL  string

	mu       sync.Mutex
	cancel   context.CancelFunc
	terminal bool
	running  bool
}

// NewSocket builds a Socket. Call Connect to start listening.
func NewSocket(cfg SocketConfig) (*Socket, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	scheme := "ws"
	if base.Scheme == "https" {
		scheme = "wss"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	wsURL := fmt.Sprintf("%s://%s/ws?token=%s", scheme, base.Host, url.QueryEscape(cfg.Token))
	return &Socket{cfg: cfg, logger: logger, wsURL: wsURL}, nil
}

// Connect starts the listen loop. It returns once the first connection
// attempt resolves; reconnects happen in the background.
func (s *Socket) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.terminal {
		s.mu.Unlock()
		return ErrSocketTerminal
	}
	if s.running {
		s.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.mu.Unlock()

	conn, err := s.dial(runCtx)
	if err != nil {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		cancel()
		return err
	}

	go s.listen(runCtx, conn)
	return nil
}

// Reconnect clears the terminal state and connects again.
func (s *Socket) Reconnect(ctx context.Context) error {
	s.mu.Lock()
	s.terminal = false
	s.mu.Unlock()
	return s.Connect(ctx)
}

// Close stops the listen loop.
func (s *Socket) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.running = false
}

// Terminal reports whether reconnect attempts have been exhausted.
func (s *Socket) Terminal() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminal
}

func (s *Socket) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: defaultTimeout}
	conn, resp, err := dialer.DialContext(ctx, s.wsURL, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	if s.cfg.OnConnect != nil {
		s.cfg.OnConnect()
	}
	return conn, nil
}

// listen reads frames until the connection drops, then walks the backoff
// ladder. Dispatch is single-goroutine, so events reach the consumer in
// the order the server sent them.
func (s *Socket) listen(ctx context.Context, conn *websocket.Conn) {
	for {
		err := s.readLoop(ctx, conn)
		if ctx.Err() != nil {
			_ = conn.Close()
			return
		}
		s.logger.Warn("websocket connection lost", zap.Error(err))
		_ = conn.Close()

		next, reconnectErr := s.reconnectWithBackoff(ctx)
		if reconnectErr != nil {
			s.mu.Lock()
			s.terminal = errors.Is(reconnectErr, ErrSocketTerminal)
			s.running = false
			s.mu.Unlock()
			s.logger.Error("websocket reconnect abandoned", zap.Error(reconnectErr))
			return
		}
		conn = next
	}
}

func (s *Socket) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var event models.KeyEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			s.logger.Warn("discarding undecodable event",
				zap.Error(err),
				zap.String("payload", truncate(string(payload), 128)))
			continue
		}
		if s.cfg.OnEvent != nil {
			s.cfg.OnEvent(event)
		}
	}
}

func (s *Socket) reconnectWithBackoff(ctx context.Context) (*websocket.Conn, error) {
	delay := reconnectBaseDelay
	for attempt := 1; attempt <= maxReconnects; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}

		conn, err := s.dial(ctx)
		if err == nil {
			s.logger.Info("websocket reconnected", zap.Int("attempt", attempt))
			return conn, nil
		}
		s.logger.Warn("websocket reconnect attempt failed",
			zap.Int("attempt", attempt),
			zap.Duration("next_delay", delay*2),
			zap.Error(err))
		delay *= 2
	}
	return nil, ErrSocketTerminal
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.TrimSpace(s[:n]) + "..."
}
