package realtime

import (
	"go.uber.org/zap"

	"github.com/noah-isme/campus-key-api/internal/models"
)

// AuditSink is a fire-and-forget subscriber that writes every key event to
// the structured log. It rides the same fan-out as websocket clients, so a
// dropped event here never affects the mutation that produced it.
type AuditSink struct {
	logger *zap.Logger
	cancel func()
	done   chan struct{}
}

// NewAuditSink subscribes to the global keys room and starts consuming.
func NewAuditSink(hub *Hub, logger *zap.Logger) *AuditSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	events, cancel := hub.Subscribe(RoomKeys)
	sink := &AuditSink{logger: logger, cancel: cancel, done: make(chan struct{})}
	go sink.run(events)
	return sink
}

// Close detaches the sink from the hub.
func (a *AuditSink) Close() {
	a.cancel()
	close(a.done)
}

func (a *AuditSink) run(events <-chan models.KeyEvent) {
	for {
		select {
		case event := <-events:
			fields := []zap.Field{
				zap.String("action", string(event.Action)),
				zap.String("key_id", event.Key.ID),
				zap.String("key_number", event.Key.KeyNumber),
				zap.String("user_id", event.UserID),
				zap.Time("occurred_at", event.OccurredAt),
			}
			if event.OriginalHolder != nil {
				fields = append(fields, zap.String("original_holder_id", event.OriginalHolder.ID))
			}
			if event.Reason != "" {
				fields = append(fields, zap.String("reason", event.Reason))
			}
			a.logger.Info("key_audit", fields...)
		case <-a.done:
			return
		}
	}
}
