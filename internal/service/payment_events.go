package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/event-booking/internal/gateway"
	"github.com/iliyamo/event-booking/internal/model"
	"github.com/iliyamo/event-booking/internal/queue"
	"github.com/iliyamo/event-booking/internal/repository"
)

// Outcome names what a webhook delivery did.
type Outcome string

const (
	OutcomeConfirmed         Outcome = "confirmed"
	OutcomeDuplicate         Outcome = "duplicate"
	OutcomePaidAfterExpiry   Outcome = "paid_after_expiry"
	OutcomeExpired           Outcome = "expired"
	OutcomeProcessing        Outcome = "processing"
	OutcomeRefunded          Outcome = "refunded"
	OutcomePartiallyRefunded Outcome = "partially_refunded"
	OutcomeStale             Outcome = "stale"
	OutcomePaymentNotFound   Outcome = "payment_not_found"
	OutcomeIgnored           Outcome = "ignored"
	OutcomeUndecodable       Outcome = "undecodable"
)

// PaymentEvents applies verified gateway webhooks to payments and
// reservations.
type PaymentEvents struct {
	store    repository.Store
	gw       gateway.Gateway
	ledger   Ledger
	outbox   *Outbox
	waitlist *Waitlist
	alerts   *Alerts
	pub      Publisher
	log      *logrus.Logger
	now      func() time.Time
}

// NewPaymentEvents wires the webhook handler.  pub may be nil.
func NewPaymentEvents(store repository.Store, gw gateway.Gateway, outbox *Outbox, waitlist *Waitlist, alerts *Alerts, pub Publisher, log *logrus.Logger) *PaymentEvents {
	if pub == nil {
		pub = queue.NopPublisher{}
	}
	return &PaymentEvents{
		store:    store,
		gw:       gw,
		outbox:   outbox,
		waitlist: waitlist,
		alerts:   alerts,
		pub:      pub,
		log:      log,
		now:      time.Now,
	}
}

// WebhookResult is reported back to the provider in the response body.
type WebhookResult struct {
	EventID string  `json:"event_id"`
	Kind    string  `json:"type"`
	Outcome Outcome `json:"outcome"`
}

// HandleWebhook verifies and applies one delivery.  A bad signature returns
// an error wrapping gateway.ErrSignatureInvalid; the caller must reject the
// delivery.  Every other error happened after verification and is only
// reported, never a reason to make the provider redeliver.
func (h *PaymentEvents) HandleWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	ev, err := h.gw.VerifyWebhook(payload, signature)
	if errors.Is(err, gateway.ErrUndecodable) && ev != nil {
		h.log.WithError(err).WithFields(logrus.Fields{
			"event_id": ev.ID,
			"type":     ev.Kind,
		}).Error("webhook object undecodable")
		return &WebhookResult{EventID: ev.ID, Kind: string(ev.Kind), Outcome: OutcomeUndecodable}, err
	}
	if err != nil {
		return nil, err
	}
	res := &WebhookResult{EventID: ev.ID, Kind: string(ev.Kind)}
	res.Outcome, err = h.Handle(ctx, ev)
	entry := h.log.WithFields(logrus.Fields{
		"event_id":          ev.ID,
		"type":              ev.Kind,
		"payment_intent_id": ev.IntentID,
		"outcome":           res.Outcome,
	})
	if err != nil {
		entry.WithError(err).Error("webhook handling failed")
	} else {
		entry.Info("webhook handled")
	}
	return res, err
}

// Handle dispatches a verified event.
func (h *PaymentEvents) Handle(ctx context.Context, ev *gateway.Event) (Outcome, error) {
	switch ev.Kind {
	case gateway.EventPaymentSucceeded:
		return h.succeeded(ctx, ev)
	case gateway.EventPaymentFailed:
		return h.failed(ctx, ev)
	case gateway.EventPaymentProcessing:
		return h.processing(ctx, ev)
	case gateway.EventChargeRefunded:
		return h.refunded(ctx, ev)
	}
	return OutcomeIgnored, nil
}

// lookup returns nil without an error when no payment matches.
func (h *PaymentEvents) lookup(ctx context.Context, intentID string) (*model.Payment, error) {
	if intentID == "" {
		return nil, nil
	}
	p, err := h.store.GetPaymentByIntent(ctx, intentID)
	if errors.Is(err, repository.ErrNotFound) {
		h.log.WithField("payment_intent_id", intentID).Warn("webhook for unknown payment intent")
		return nil, nil
	}
	return p, err
}

// succeeded confirms the reservation once.  webhook_processed_at guards
// against redelivery; the guarded status transition guards against two
// deliveries racing past that check.  Confirmation ignores expires_at: a
// pending or processing reservation is confirmed whenever payment lands.
func (h *PaymentEvents) succeeded(ctx context.Context, ev *gateway.Event) (Outcome, error) {
	p, err := h.lookup(ctx, ev.IntentID)
	if err != nil || p == nil {
		return OutcomePaymentNotFound, err
	}
	if p.WebhookProcessedAt != nil {
		return OutcomeDuplicate, nil
	}

	outcome := OutcomeConfirmed
	var res *model.Reservation
	err = h.store.WithTx(ctx, func(tx repository.Tx) error {
		cur, err := tx.LockPaymentByIntent(ctx, ev.IntentID)
		if err != nil {
			return err
		}
		if cur.WebhookProcessedAt != nil {
			outcome = OutcomeDuplicate
			return nil
		}
		now := h.now().UTC()
		cur.Status = model.PaymentSucceeded
		cur.WebhookProcessedAt = &now
		if err := tx.UpdatePayment(ctx, cur); err != nil {
			return fmt.Errorf("update payment: %w", err)
		}

		confirmed, err := tx.TransitionReservation(ctx, cur.ReservationID,
			[]model.ReservationStatus{model.ReservationPending, model.ReservationProcessing},
			model.ReservationConfirmed, now)
		if err != nil {
			return err
		}
		res, err = tx.GetReservation(ctx, cur.ReservationID)
		if err != nil {
			return err
		}
		if !confirmed {
			if res.Status == model.ReservationConfirmed {
				outcome = OutcomeDuplicate
			} else {
				outcome = OutcomePaidAfterExpiry
			}
		}
		return nil
	})
	if err != nil {
		return outcome, err
	}

	switch outcome {
	case OutcomePaidAfterExpiry:
		h.alerts.Raise(ctx, AlertPaidAfterExpiry, "payment succeeded for a reservation that is no longer holding capacity", logrus.Fields{
			"reservation_id":    res.ID,
			"status":            res.Status,
			"payment_intent_id": ev.IntentID,
		})
	case OutcomeConfirmed:
		h.afterConfirm(ctx, res)
	}
	return outcome, nil
}

// afterConfirm queues the ticket email and publishes the event.  Neither
// failure reaches the provider.
func (h *PaymentEvents) afterConfirm(ctx context.Context, r *model.Reservation) {
	d, err := h.store.GetReservationDetail(ctx, r.ID)
	if err == nil {
		err = h.outbox.TicketConfirmation(ctx, d)
	}
	if err != nil {
		h.alerts.Raise(ctx, AlertEmailEnqueue, "ticket confirmation not queued", logrus.Fields{
			"reservation_id": r.ID,
			"error":          err.Error(),
		})
	}
	var s *model.EventSession
	if d != nil {
		s = &d.Session
	}
	publishReservation(ctx, h.pub, h.store, h.log, queue.QueueReservationConfirmed, r, s, "")
}

// failed expires a reservation that is still holding capacity and returns
// its tickets.  A reservation already confirmed, cancelled or expired is
// left alone.
func (h *PaymentEvents) failed(ctx context.Context, ev *gateway.Event) (Outcome, error) {
	p, err := h.lookup(ctx, ev.IntentID)
	if err != nil || p == nil {
		return OutcomePaymentNotFound, err
	}
	r, err := h.store.GetReservation(ctx, p.ReservationID)
	if err != nil {
		return OutcomeIgnored, fmt.Errorf("load reservation: %w", err)
	}
	if !r.Status.Holding() {
		return OutcomeStale, nil
	}

	outcome := OutcomeExpired
	var session *model.EventSession
	err = h.store.WithTx(ctx, func(tx repository.Tx) error {
		s, err := h.ledger.Lock(ctx, tx, r.EventSessionID)
		if err != nil {
			return err
		}
		session = s
		now := h.now().UTC()
		expired, err := tx.TransitionReservation(ctx, r.ID,
			[]model.ReservationStatus{model.ReservationPending, model.ReservationProcessing},
			model.ReservationExpired, now)
		if err != nil {
			return err
		}
		if !expired {
			outcome = OutcomeStale
			return nil
		}

		cur, err := tx.LockPaymentByIntent(ctx, ev.IntentID)
		if err != nil {
			return err
		}
		cur.Status = model.PaymentFailed
		msg := ev.FailureMessage
		if msg == "" {
			msg = "payment failed"
		}
		cur.LastError = &msg
		if err := tx.UpdatePayment(ctx, cur); err != nil {
			return fmt.Errorf("update payment: %w", err)
		}
		return h.ledger.Release(ctx, tx, s.ID, r.Quantity)
	})
	if err != nil {
		return outcome, err
	}
	if outcome == OutcomeExpired {
		publishReservation(ctx, h.pub, h.store, h.log, queue.QueueReservationExpired, r, session, ev.FailureMessage)
		notifyWaitlist(ctx, h.waitlist, h.log, session, r.Quantity)
	}
	return outcome, nil
}

// processing marks a pending payment as in flight.  The sweep only selects
// pending reservations, so this keeps the hold alive until the final event.
func (h *PaymentEvents) processing(ctx context.Context, ev *gateway.Event) (Outcome, error) {
	p, err := h.lookup(ctx, ev.IntentID)
	if err != nil || p == nil {
		return OutcomePaymentNotFound, err
	}
	outcome := OutcomeProcessing
	err = h.store.WithTx(ctx, func(tx repository.Tx) error {
		moved, err := tx.TransitionReservation(ctx, p.ReservationID,
			[]model.ReservationStatus{model.ReservationPending}, model.ReservationProcessing, h.now().UTC())
		if err != nil {
			return err
		}
		if !moved {
			outcome = OutcomeStale
			return nil
		}
		cur, err := tx.LockPaymentByIntent(ctx, ev.IntentID)
		if err != nil {
			return err
		}
		if cur.Status == model.PaymentPending {
			cur.Status = model.PaymentProcessing
			return tx.UpdatePayment(ctx, cur)
		}
		return nil
	})
	return outcome, err
}

// refunded records the provider's cumulative refund on the payment.  The
// reservation is not touched; returning capacity requires the admin cancel.
func (h *PaymentEvents) refunded(ctx context.Context, ev *gateway.Event) (Outcome, error) {
	p, err := h.lookup(ctx, ev.IntentID)
	if err != nil || p == nil {
		return OutcomePaymentNotFound, err
	}
	outcome := OutcomeRefunded
	err = h.store.WithTx(ctx, func(tx repository.Tx) error {
		cur, err := tx.LockPaymentByIntent(ctx, ev.IntentID)
		if err != nil {
			return err
		}
		refunded := ev.AmountRefunded
		if refunded > cur.Amount {
			refunded = cur.Amount
		}
		if refunded < cur.RefundedAmount {
			// an older delivery; keep the larger cumulative amount
			refunded = cur.RefundedAmount
		}
		cur.RefundedAmount = refunded
		if refunded >= cur.Amount {
			cur.Status = model.PaymentRefunded
		} else {
			cur.Status = model.PaymentPartiallyRefunded
			outcome = OutcomePartiallyRefunded
		}
		return tx.UpdatePayment(ctx, cur)
	})
	return outcome, err
}
