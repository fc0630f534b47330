package model

import "time"

// ReservationStatus is the lifecycle state of a reservation.
type ReservationStatus string

const (
	ReservationPending    ReservationStatus = "pending"
	ReservationProcessing ReservationStatus = "processing"
	ReservationConfirmed  ReservationStatus = "confirmed"
	ReservationCancelled  ReservationStatus = "cancelled"
	ReservationExpired    ReservationStatus = "expired"
)

// Holding reports whether the reservation still holds unconfirmed capacity
// (pending or processing).  Only holding reservations may expire.
func (s ReservationStatus) Holding() bool {
	return s == ReservationPending || s == ReservationProcessing
}

// Terminal reports whether no automatic transition leaves this status.
func (s ReservationStatus) Terminal() bool {
	return s == ReservationConfirmed || s == ReservationCancelled || s == ReservationExpired
}

// Reservation is a guest's claim on Quantity tickets of one session.
// TotalAmount is snapshotted at booking time and never recomputed.
type Reservation struct {
	ID             string            `db:"id" json:"id"`
	EventSessionID string            `db:"event_session_id" json:"event_session_id"`
	GuestEmail     string            `db:"guest_email" json:"guest_email"`
	GuestName      string            `db:"guest_name" json:"guest_name"`
	GuestPhone     *string           `db:"guest_phone" json:"guest_phone,omitempty"`
	UserID         *string           `db:"user_id" json:"user_id,omitempty"`
	Quantity       int               `db:"quantity" json:"quantity"`
	TotalAmount    int64             `db:"total_amount" json:"total_amount"`
	Currency       string            `db:"currency" json:"currency"`
	Status         ReservationStatus `db:"status" json:"status"`
	AccessToken    string            `db:"access_token" json:"-"`
	ExpiresAt      time.Time         `db:"expires_at" json:"expires_at"`
	ConfirmedAt    *time.Time        `db:"confirmed_at" json:"confirmed_at,omitempty"`
	CancelledAt    *time.Time        `db:"cancelled_at" json:"cancelled_at,omitempty"`
	IPAddress      *string           `db:"ip_address" json:"-"`
	UserAgent      *string           `db:"user_agent" json:"-"`
	CreatedAt      time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time         `db:"updated_at" json:"updated_at"`
}

// ReservationDetail joins a reservation with its session, event and
// payment.  Payment is nil when no payment row exists.
type ReservationDetail struct {
	Reservation Reservation  `json:"reservation"`
	Session     EventSession `json:"session"`
	Event       Event        `json:"event"`
	Payment     *Payment     `json:"payment,omitempty"`
}

// ExpiredReservation pairs a reservation selected by the sweep with its
// payment, if any.
type ExpiredReservation struct {
	Reservation Reservation
	Payment     *Payment
}
