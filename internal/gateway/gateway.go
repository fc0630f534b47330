// Package gateway adapts the external card-payment provider.  The booking
// core depends on the Gateway interface only; Stripe is the production
// implementation and Fake serves tests and demo mode.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

var (
	// ErrSignatureInvalid is returned when a webhook payload does not carry
	// a valid signature for the configured secret.  Callers must reject
	// the delivery so the provider retries it.
	ErrSignatureInvalid = errors.New("webhook signature invalid")
	// ErrNotConfigured is returned when the gateway lacks credentials.
	ErrNotConfigured = errors.New("payment gateway not configured")
	// ErrUndecodable is returned together with a verified Event (ID and
	// Kind only) when the event's object does not decode.
	ErrUndecodable = errors.New("webhook object undecodable")
)

// Gateway is the narrow surface the booking core needs from the payment
// provider.
type Gateway interface {
	// CreatePaymentIntent opens an intent.  Retrying with the same
	// idempotency key returns the original intent.
	CreatePaymentIntent(ctx context.Context, req IntentRequest) (*Intent, error)
	// CancelPaymentIntent cancels an open intent.  An intent already in a
	// terminal state counts as cancelled.
	CancelPaymentIntent(ctx context.Context, intentID string) error
	// CreateRefund refunds amount minor units; zero refunds in full.
	CreateRefund(ctx context.Context, intentID string, amount int64, idempotencyKey string) (*Refund, error)
	// VerifyWebhook checks the signature header and decodes the event.  A
	// verified event whose object does not decode is returned with an error
	// wrapping ErrUndecodable.
	VerifyWebhook(payload []byte, signatureHeader string) (*Event, error)
}

// IntentRequest describes a payment-intent to create.
type IntentRequest struct {
	Amount         int64
	Currency       string
	IdempotencyKey string
	Metadata       map[string]string
}

// Intent is the provider's handle for an attempted charge.
type Intent struct {
	ID           string
	ClientSecret string
	Status       string
}

// Refund is the result of a refund call.
type Refund struct {
	ID     string
	Amount int64
	Status string
}

// EventKind classifies verified webhook events.
type EventKind string

const (
	EventPaymentSucceeded  EventKind = "payment_intent.succeeded"
	EventPaymentFailed     EventKind = "payment_intent.payment_failed"
	EventPaymentProcessing EventKind = "payment_intent.processing"
	EventChargeRefunded    EventKind = "charge.refunded"
)

// Event is a verified webhook delivery reduced to what the booking core
// reads.  Kinds outside the constants above are passed through with only
// ID and Kind set.
type Event struct {
	ID             string
	Kind           EventKind
	IntentID       string
	FailureMessage string
	Amount         int64 // charge amount, refund events only
	AmountRefunded int64 // cumulative refunded amount, refund events only
}

// parseEvent verifies a Stripe-signed payload and maps it onto Event.
func parseEvent(payload []byte, header, secret string) (*Event, error) {
	if secret == "" {
		return nil, ErrNotConfigured
	}
	se, err := webhook.ConstructEventWithOptions(payload, header, secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	ev := &Event{ID: se.ID, Kind: EventKind(se.Type)}
	if se.Data == nil {
		return ev, nil
	}

	switch ev.Kind {
	case EventPaymentSucceeded, EventPaymentFailed, EventPaymentProcessing:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(se.Data.Raw, &pi); err != nil {
			return ev, fmt.Errorf("%w: payment intent: %v", ErrUndecodable, err)
		}
		ev.IntentID = pi.ID
		if pi.LastPaymentError != nil {
			ev.FailureMessage = pi.LastPaymentError.Msg
		}
	case EventChargeRefunded:
		var ch stripe.Charge
		if err := json.Unmarshal(se.Data.Raw, &ch); err != nil {
			return ev, fmt.Errorf("%w: charge: %v", ErrUndecodable, err)
		}
		if ch.PaymentIntent != nil {
			ev.IntentID = ch.PaymentIntent.ID
		}
		ev.Amount = ch.Amount
		ev.AmountRefunded = ch.AmountRefunded
	}
	return ev, nil
}
