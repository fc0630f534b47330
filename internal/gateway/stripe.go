package gateway

import (
	"context"
	"errors"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// Stripe implements Gateway with the Stripe API.
type Stripe struct {
	api           *client.API
	webhookSecret string
}

// NewStripe builds a client for secretKey.  webhookSecret verifies
// incoming deliveries.
func NewStripe(secretKey, webhookSecret string) (*Stripe, error) {
	if secretKey == "" {
		return nil, ErrNotConfigured
	}
	return &Stripe{api: client.New(secretKey, nil), webhookSecret: webhookSecret}, nil
}

func (s *Stripe) CreatePaymentIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return nil, err
	}
	return &Intent{ID: pi.ID, ClientSecret: pi.ClientSecret, Status: string(pi.Status)}, nil
}

// CancelPaymentIntent treats payment_intent_unexpected_state as success:
// the intent already succeeded, failed or was cancelled on the provider side.
func (s *Stripe) CancelPaymentIntent(ctx context.Context, intentID string) error {
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	_, err := s.api.PaymentIntents.Cancel(intentID, params)
	if err == nil {
		return nil
	}
	var se *stripe.Error
	if errors.As(err, &se) && se.Code == stripe.ErrorCodePaymentIntentUnexpectedState {
		return nil
	}
	return err
}

func (s *Stripe) CreateRefund(ctx context.Context, intentID string, amount int64, idempotencyKey string) (*Refund, error) {
	params := &stripe.RefundParams{PaymentIntent: stripe.String(intentID)}
	if amount > 0 {
		params.Amount = stripe.Int64(amount)
	}
	params.Context = ctx
	if idempotencyKey != "" {
		params.SetIdempotencyKey(idempotencyKey)
	}
	r, err := s.api.Refunds.New(params)
	if err != nil {
		return nil, err
	}
	return &Refund{ID: r.ID, Amount: r.Amount, Status: string(r.Status)}, nil
}

func (s *Stripe) VerifyWebhook(payload []byte, signatureHeader string) (*Event, error) {
	return parseEvent(payload, signatureHeader, s.webhookSecret)
}
