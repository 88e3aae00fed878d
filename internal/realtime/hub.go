package realtime

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-key-api/internal/models"
	"github.com/noah-isme/campus-key-api/pkg/config"
)

// Room names. Membership is derived from the client's claims at connect
// time and is not remembered across disconnects.
const RoomKeys = "keys"

// RoomRole names the room shared by every client with the given role.
func RoomRole(role models.UserRole) string {
	return "role:" + string(role)
}

// RoomUser names the personal room for targeted notifications.
func RoomUser(userID string) string {
	return "user:" + userID
}

// Metrics is the narrow observability surface the hub reports into.
type Metrics interface {
	ObserveEventPublished(action models.EventAction)
	SetRealtimeConnections(n int)
}

// Hub is the publish/subscribe fan-out channel for key events. Delivery is
// best-effort, at-most-once per connected session: there is no replay
// buffer, and a slow session has its connection dropped rather than
// blocking the publisher. Clients that miss events recover with a full
// fetch.
type Hub struct {
	cfg     config.RealtimeConfig
	logger  *zap.Logger
	metrics Metrics

	mu       sync.RWMutex
	sessions map[string]map[*Session]struct{}
	locals   map[string]map[chan models.KeyEvent]struct{}
	active   int
}

// NewHub constructs the fan-out hub.
func NewHub(cfg config.RealtimeConfig, logger *zap.Logger, metrics Metrics) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = 256
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 1024
	}
	return &Hub{
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		sessions: make(map[string]map[*Session]struct{}),
		locals:   make(map[string]map[chan models.KeyEvent]struct{}),
	}
}

// Publish delivers the event to the global keys room, the security role
// room, and the personal rooms of the acting user and (for collective
// returns) the original holder. One event per successful mutation.
func (h *Hub) Publish(event models.KeyEvent) {
	rooms := map[string]struct{}{
		RoomKeys:                      {},
		RoomRole(models.RoleSecurity): {},
	}
	if event.UserID != "" {
		rooms[RoomUser(event.UserID)] = struct{}{}
	}
	if event.OriginalHolder != nil {
		rooms[RoomUser(event.OriginalHolder.ID)] = struct{}{}
	}

	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to marshal key event", zap.Error(err))
		return
	}

	h.mu.RLock()
	targets := make(map[*Session]struct{})
	var localTargets []chan models.KeyEvent
	for room := range rooms {
		for s := range h.sessions[room] {
			targets[s] = struct{}{}
		}
		for ch := range h.locals[room] {
			localTargets = append(localTargets, ch)
		}
	}
	h.mu.RUnlock()

	for s := range targets {
		s.enqueue(payload)
	}
	for _, ch := range localTargets {
		select {
		case ch <- event:
		default:
			h.logger.Warn("local subscriber buffer full, event dropped",
				zap.String("action", string(event.Action)))
		}
	}

	if h.metrics != nil {
		h.metrics.ObserveEventPublished(event.Action)
	}
	h.logger.Debug("key event published",
		zap.String("action", string(event.Action)),
		zap.String("key_id", event.Key.ID),
		zap.Int("sessions", len(targets)))
}

// Subscribe attaches an in-process consumer to a room. The returned cancel
// func must be called to release the subscription.
func (h *Hub) Subscribe(room string) (<-chan models.KeyEvent, func()) {
	ch := make(chan models.KeyEvent, h.cfg.SendBufferSize)

	h.mu.Lock()
	if _, ok := h.locals[room]; !ok {
		h.locals[room] = make(map[chan models.KeyEvent]struct{})
	}
	h.locals[room][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if subs, ok := h.locals[room]; ok {
			delete(subs, ch)
			if len(subs) == 0 {
				delete(h.locals, room)
			}
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// ActiveConnections reports the number of registered websocket sessions.
func (h *Hub) ActiveConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.active
}

func (h *Hub) register(s *Session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.active >= h.cfg.MaxConnections {
		h.logger.Warn("max websocket connections reached, rejecting session",
			zap.Int("active", h.active), zap.Int("max", h.cfg.MaxConnections))
		return false
	}
	h.active++
	for _, room := range s.rooms {
		if _, ok := h.sessions[room]; !ok {
			h.sessions[room] = make(map[*Session]struct{})
		}
		h.sessions[room][s] = struct{}{}
	}
	if h.metrics != nil {
		h.metrics.SetRealtimeConnections(h.active)
	}
	return true
}

func (h *Hub) unregister(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	removed := false
	for _, room := range s.rooms {
		if subs, ok := h.sessions[room]; ok {
			if _, present := subs[s]; present {
				delete(subs, s)
				removed = true
				if len(subs) == 0 {
					delete(h.sessions, room)
				}
			}
		}
	}
	if removed {
		h.active--
		if h.metrics != nil {
			h.metrics.SetRealtimeConnections(h.active)
		}
	}
}
