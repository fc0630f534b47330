package utils

import (
	"crypto/rand"
	"encoding/hex"
)

// accessTokenBytes gives the ticket access token 256 bits of entropy.
const accessTokenBytes = 32

// NewTicketToken returns the unguessable token that grants access to a
// reservation's ticket page.  It is 64 hex characters.
func NewTicketToken() (string, error) {
	return randomHex(accessTokenBytes)
}

// ReservationIdempotencyKey derives the payment-intent idempotency key from
// a reservation id, so a retried create can never charge twice.
func ReservationIdempotencyKey(reservationID string) string {
	return "reservation-" + reservationID
}

// RefundIdempotencyKey derives the refund idempotency key for an intent.
func RefundIdempotencyKey(paymentIntentID string) string {
	return "refund-" + paymentIntentID
}

// randomHex returns a hex-encoded string generated from n bytes of
// cryptographically secure random data.
func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
