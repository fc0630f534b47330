package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v76/webhook"
)

// Fake is an in-memory Gateway.  It signs and verifies webhook payloads in
// the provider's format, so the HTTP webhook path can be driven end to end
// without network access.
type Fake struct {
	secret string

	mu        sync.Mutex
	intents   map[string]*Intent // by id
	byKey     map[string]string  // idempotency key -> intent id
	cancelled map[string]int
	refunds   []Refund

	// Failure injection for tests.
	CreateErr error
	CancelErr error
	RefundErr error
}

// NewFake returns a Fake that signs webhooks with secret.
func NewFake(secret string) *Fake {
	return &Fake{
		secret:    secret,
		intents:   map[string]*Intent{},
		byKey:     map[string]string{},
		cancelled: map[string]int{},
	}
}

func (f *Fake) CreatePaymentIntent(_ context.Context, req IntentRequest) (*Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	if id, ok := f.byKey[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		in := *f.intents[id]
		return &in, nil
	}
	id := "pi_" + uuid.NewString()
	in := &Intent{ID: id, ClientSecret: id + "_secret_" + uuid.NewString()[:8], Status: "requires_payment_method"}
	f.intents[id] = in
	if req.IdempotencyKey != "" {
		f.byKey[req.IdempotencyKey] = id
	}
	out := *in
	return &out, nil
}

func (f *Fake) CancelPaymentIntent(_ context.Context, intentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CancelErr != nil {
		return f.CancelErr
	}
	in, ok := f.intents[intentID]
	if !ok {
		return fmt.Errorf("no such payment intent: %s", intentID)
	}
	if in.Status != "succeeded" {
		in.Status = "canceled"
	}
	f.cancelled[intentID]++
	return nil
}

func (f *Fake) CreateRefund(_ context.Context, intentID string, amount int64, _ string) (*Refund, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RefundErr != nil {
		return nil, f.RefundErr
	}
	if _, ok := f.intents[intentID]; !ok {
		return nil, fmt.Errorf("no such payment intent: %s", intentID)
	}
	r := Refund{ID: "re_" + uuid.NewString(), Amount: amount, Status: "succeeded"}
	f.refunds = append(f.refunds, r)
	return &r, nil
}

func (f *Fake) VerifyWebhook(payload []byte, signatureHeader string) (*Event, error) {
	return parseEvent(payload, signatureHeader, f.secret)
}

// CancelCount reports how many times intentID was cancelled.
func (f *Fake) CancelCount(intentID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled[intentID]
}

// TotalCancels reports cancel calls across all intents.
func (f *Fake) TotalCancels() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.cancelled {
		n += c
	}
	return n
}

// Refunds returns the refunds issued so far.
func (f *Fake) Refunds() []Refund {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Refund(nil), f.refunds...)
}

// IntentCount reports how many distinct intents were created.
func (f *Fake) IntentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.intents)
}

// SignedEvent builds a provider-shaped event payload of the given kind for
// intentID and signs it.  failureMessage applies to failure events, amount
// and refunded to refund events.
func (f *Fake) SignedEvent(kind EventKind, intentID, failureMessage string, amount, refunded int64) ([]byte, string, error) {
	var object map[string]interface{}
	switch kind {
	case EventChargeRefunded:
		object = map[string]interface{}{
			"id":              "ch_" + uuid.NewString(),
			"object":          "charge",
			"amount":          amount,
			"amount_refunded": refunded,
			"payment_intent":  intentID,
		}
	default:
		object = map[string]interface{}{
			"id":     intentID,
			"object": "payment_intent",
		}
		if failureMessage != "" {
			object["last_payment_error"] = map[string]interface{}{"message": failureMessage}
		}
	}
	payload, err := json.Marshal(map[string]interface{}{
		"id":      "evt_" + uuid.NewString(),
		"object":  "event",
		"type":    string(kind),
		"created": time.Now().Unix(),
		"data":    map[string]interface{}{"object": object},
	})
	if err != nil {
		return nil, "", err
	}
	header, err := f.Sign(payload)
	if err != nil {
		return nil, "", err
	}
	return payload, header, nil
}

// Sign returns the signature header for an arbitrary payload.
func (f *Fake) Sign(payload []byte) (string, error) {
	if f.secret == "" {
		return "", errors.New("fake gateway has no webhook secret")
	}
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    f.secret,
		Timestamp: time.Now(),
	})
	return signed.Header, nil
}
