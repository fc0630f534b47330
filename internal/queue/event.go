// Package queue carries domain events and operator alerts over RabbitMQ.
// Publishing is best effort and happens after the database commit; the
// audit consumer appends every message to logs/booking.log.
package queue

import "time"

// Queue names.  Each is a durable queue on the default exchange.
const (
	QueueReservationConfirmed = "reservation.confirmed"
	QueueReservationExpired   = "reservation.expired"
	QueueReservationCancelled = "reservation.cancelled"
	QueueOpsAlerts            = "ops.alerts"
)

// ReservationEvent is published when a reservation reaches a terminal
// state.  Type is one of the reservation.* queue names and selects the
// routing key.  It carries enough to log or notify without reading the
// primary database.
type ReservationEvent struct {
	Type           string    `json:"type"`
	ReservationID  string    `json:"reservation_id"`
	EventSessionID string    `json:"event_session_id"`
	EventTitle     string    `json:"event_title,omitempty"`
	SessionTitle   string    `json:"session_title,omitempty"`
	StartsAt       string    `json:"starts_at,omitempty"`
	GuestEmail     string    `json:"guest_email,omitempty"`
	Quantity       int       `json:"quantity"`
	TotalAmount    int64     `json:"total_amount"`
	Currency       string    `json:"currency"`
	Reason         string    `json:"reason,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// OpsAlert is a condition an operator must look at, such as an orphaned
// payment-intent or a payment that arrived after its reservation expired.
type OpsAlert struct {
	Kind       string            `json:"kind"`
	Message    string            `json:"message"`
	Fields     map[string]string `json:"fields,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}
