package models

import "time"

// EventAction enumerates the broadcast actions for key state changes.
type EventAction string

const (
	EventTake             EventAction = "take"
	EventReturn           EventAction = "return"
	EventCollectiveReturn EventAction = "collective-return"
	EventQRRequest        EventAction = "qr-request"
	EventQRReturn         EventAction = "qr-return"
	EventCreate           EventAction = "create"
	EventUpdate           EventAction = "update"
	EventDelete           EventAction = "delete"
	EventToggleFrequent   EventAction = "toggle-frequent"
)

// KeyEvent is the ephemeral message published once per successful
// mutation. It is not a durable log entry; disconnected clients recover
// through a full fetch.
type KeyEvent struct {
	Action         EventAction `json:"action"`
	Key            KeyView     `json:"key"`
	UserID         string      `json:"user_id,omitempty"`
	OriginalHolder *KeyHolder  `json:"original_holder,omitempty"`
	Reason         string      `json:"reason,omitempty"`
	OccurredAt     time.Time   `json:"occurred_at"`
}
