package models

import "time"

// HandoffKind discriminates the handoff token union. Anything outside the
// three known kinds is rejected at the parse boundary.
type HandoffKind string

const (
	HandoffRequest     HandoffKind = "request"
	HandoffReturn      HandoffKind = "return"
	HandoffBatchReturn HandoffKind = "batch-return"
)

// Valid reports whether the kind is one of the known discriminants.
func (k HandoffKind) Valid() bool {
	switch k {
	case HandoffRequest, HandoffReturn, HandoffBatchReturn:
		return true
	}
	return false
}

// HandoffToken is the single-use capability embedded in a QR code. A
// request/return token carries exactly one KeyID; a batch-return token
// carries KeyIDs and no KeyID.
type HandoffToken struct {
	Kind      HandoffKind `json:"kind"`
	TokenID   string      `json:"token_id"`
	UserID    string      `json:"user_id"`
	KeyID     string      `json:"key_id,omitempty"`
	KeyIDs    []string    `json:"key_ids,omitempty"`
	IssuedAt  time.Time   `json:"issued_at"`
	ExpiresAt time.Time   `json:"expires_at"`
}

// HandoffValidation reports the structural check outcome for a token.
type HandoffValidation struct {
	Valid  bool        `json:"valid"`
	Kind   HandoffKind `json:"kind"`
	Errors []string    `json:"errors,omitempty"`
}

// IssuedToken is returned to the client that opened a handoff flow. The
// countdown is advisory UI state; the server enforces ExpiresAt itself.
type IssuedToken struct {
	Token     string      `json:"token"`
	Kind      HandoffKind `json:"kind"`
	TokenID   string      `json:"token_id"`
	ExpiresAt time.Time   `json:"expires_at"`
	TTL       int64       `json:"ttl_seconds"`
}
