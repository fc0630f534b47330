package model

import "time"

// WaitlistEntry asks to be notified when a sold-out session frees capacity.
// Notified flips false -> true exactly once; entries are never deleted and
// simply stop matching once ExpiresAt passes.
type WaitlistEntry struct {
	ID             string     `db:"id" json:"id"`
	EventSessionID string     `db:"event_session_id" json:"event_session_id"`
	Email          string     `db:"email" json:"email"`
	Name           string     `db:"name" json:"name"`
	Phone          *string    `db:"phone" json:"phone,omitempty"`
	Quantity       int        `db:"quantity" json:"quantity"`
	Notified       bool       `db:"notified" json:"notified"`
	NotifiedAt     *time.Time `db:"notified_at" json:"notified_at,omitempty"`
	ExpiresAt      time.Time  `db:"expires_at" json:"expires_at"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}
