package models

import "time"

// KeyStatus is the mutually exclusive availability state of a physical key.
type KeyStatus string

const (
	KeyStatusAvailable   KeyStatus = "AVAILABLE"
	KeyStatusUnavailable KeyStatus = "UNAVAILABLE"
)

// Key represents a physical key tracked by the system.
// Invariant: Status == UNAVAILABLE exactly when the holder columns are set.
type Key struct {
	ID             string     `db:"id" json:"id"`
	KeyNumber      string     `db:"key_number" json:"key_number"`
	Name           string     `db:"name" json:"name"`
	Location       string     `db:"location" json:"location"`
	Category       string     `db:"category" json:"category"`
	Block          string     `db:"block" json:"block"`
	Description    string     `db:"description" json:"description,omitempty"`
	Status         KeyStatus  `db:"status" json:"status"`
	HolderID       *string    `db:"holder_id" json:"-"`
	HolderName     *string    `db:"holder_name" json:"-"`
	HolderEmail    *string    `db:"holder_email" json:"-"`
	TakenAt        *time.Time `db:"taken_at" json:"taken_at,omitempty"`
	ReturnedAt     *time.Time `db:"returned_at" json:"returned_at,omitempty"`
	FrequentlyUsed bool       `db:"frequently_used" json:"frequently_used"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// KeyHolder identifies the person currently holding a key.
type KeyHolder struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Holder assembles the holder reference from the nullable columns.
func (k *Key) Holder() *KeyHolder {
	if k.HolderID == nil {
		return nil
	}
	h := &KeyHolder{ID: *k.HolderID}
	if k.HolderName != nil {
		h.Name = *k.HolderName
	}
	if k.HolderEmail != nil {
		h.Email = *k.HolderEmail
	}
	return h
}

// KeyView is the wire representation of a key with the holder folded in.
type KeyView struct {
	Key
	HolderRef *KeyHolder `json:"holder"`
}

// View returns the key with its holder projected for JSON responses.
func (k Key) View() KeyView {
	return KeyView{Key: k, HolderRef: k.Holder()}
}

// KeyFilter captures filtering criteria for listing keys.
type KeyFilter struct {
	Block     string
	Category  string
	Status    KeyStatus
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// ReleasedKey is a key after a return transition together with the
// holder it was released from, captured atomically by the store.
type ReleasedKey struct {
	Key
	PrevHolderID    *string `db:"prev_holder_id"`
	PrevHolderName  *string `db:"prev_holder_name"`
	PrevHolderEmail *string `db:"prev_holder_email"`
}

// OriginalHolder assembles the pre-return holder reference.
func (r *ReleasedKey) OriginalHolder() *KeyHolder {
	if r.PrevHolderID == nil {
		return nil
	}
	h := &KeyHolder{ID: *r.PrevHolderID}
	if r.PrevHolderName != nil {
		h.Name = *r.PrevHolderName
	}
	if r.PrevHolderEmail != nil {
		h.Email = *r.PrevHolderEmail
	}
	return h
}

// BatchReturnItem reports the outcome of one key inside a batch return.
type BatchReturnItem struct {
	KeyID string   `json:"key_id"`
	Key   *KeyView `json:"key,omitempty"`
	Error string   `json:"error,omitempty"`
}

// BatchReturnResult aggregates per-key outcomes; partial success is allowed.
type BatchReturnResult struct {
	Returned []BatchReturnItem `json:"returned"`
	Failed   []BatchReturnItem `json:"failed"`
}
