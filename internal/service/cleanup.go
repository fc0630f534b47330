package service

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// CleanupResult summarises one sweep of expired reservations.  Errors are
// collected per reservation; one failure never stops the batch.
type CleanupResult struct {
	Found            int
	Expired          int
	IntentsCancelled int
	Errors           []error
}

// CleanupExpired expires every pending reservation past its hold window
// and cancels its payment-intent.  Each failure is forwarded to the alert
// sink.
func (e *Engine) CleanupExpired(ctx context.Context) (CleanupResult, error) {
	var out CleanupResult
	due, err := e.FindExpiredReservations(ctx)
	if err != nil {
		return out, fmt.Errorf("find expired reservations: %w", err)
	}
	out.Found = len(due)

	for _, item := range due {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		r := item.Reservation
		expired, err := e.ExpireReservation(ctx, r.ID)
		if err != nil {
			out.Errors = append(out.Errors, fmt.Errorf("expire %s: %w", r.ID, err))
			e.alerts.Raise(ctx, AlertCleanupFailed, "expire reservation failed", logrus.Fields{
				"reservation_id": r.ID,
				"error":          err.Error(),
			})
			continue
		}
		if !expired {
			continue
		}
		out.Expired++

		if item.Payment == nil {
			continue
		}
		if err := e.gw.CancelPaymentIntent(ctx, item.Payment.PaymentIntentID); err != nil {
			out.Errors = append(out.Errors, fmt.Errorf("cancel intent %s: %w", item.Payment.PaymentIntentID, err))
			e.alerts.Raise(ctx, AlertOrphanedIntent, "cancel payment intent of expired reservation failed", logrus.Fields{
				"reservation_id":    r.ID,
				"payment_intent_id": item.Payment.PaymentIntentID,
				"error":             err.Error(),
			})
			continue
		}
		out.IntentsCancelled++
	}

	if out.Found > 0 {
		e.log.WithFields(logrus.Fields{
			"found":             out.Found,
			"expired":           out.Expired,
			"intents_cancelled": out.IntentsCancelled,
			"errors":            len(out.Errors),
		}).Info("expired reservations cleaned up")
	}
	return out, nil
}
