package model

import "time"

// PaymentStatus mirrors the gateway's view of a payment.
type PaymentStatus string

const (
	PaymentPending           PaymentStatus = "pending"
	PaymentProcessing        PaymentStatus = "processing"
	PaymentSucceeded         PaymentStatus = "succeeded"
	PaymentFailed            PaymentStatus = "failed"
	PaymentRefunded          PaymentStatus = "refunded"
	PaymentPartiallyRefunded PaymentStatus = "partially_refunded"
)

// Payment is the local record of an external payment-intent, 1:1 with a
// reservation.  WebhookProcessedAt is set once the success webhook has been
// applied and guards against redelivery.
type Payment struct {
	ID                 string        `db:"id" json:"id"`
	ReservationID      string        `db:"reservation_id" json:"reservation_id"`
	PaymentIntentID    string        `db:"payment_intent_id" json:"payment_intent_id"`
	ClientSecret       *string       `db:"client_secret" json:"-"`
	Amount             int64         `db:"amount" json:"amount"`
	Currency           string        `db:"currency" json:"currency"`
	Status             PaymentStatus `db:"status" json:"status"`
	RefundedAmount     int64         `db:"refunded_amount" json:"refunded_amount"`
	IdempotencyKey     string        `db:"idempotency_key" json:"-"`
	LastError          *string       `db:"last_error" json:"last_error,omitempty"`
	WebhookProcessedAt *time.Time    `db:"webhook_processed_at" json:"webhook_processed_at,omitempty"`
	CreatedAt          time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time     `db:"updated_at" json:"updated_at"`
}
