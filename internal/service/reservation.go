package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/event-booking/internal/config"
	"github.com/iliyamo/event-booking/internal/gateway"
	"github.com/iliyamo/event-booking/internal/model"
	"github.com/iliyamo/event-booking/internal/queue"
	"github.com/iliyamo/event-booking/internal/repository"
	"github.com/iliyamo/event-booking/internal/utils"
)

// Engine runs the reservation lifecycle: create with a capacity hold and a
// payment-intent, expire unpaid holds, and cancel paid reservations with a
// refund.  All capacity changes go through the Ledger under the session row
// lock.
type Engine struct {
	store    repository.Store
	gw       gateway.Gateway
	ledger   Ledger
	waitlist *Waitlist
	alerts   *Alerts
	pub      Publisher
	cfg      config.BookingConfig
	log      *logrus.Logger
	now      func() time.Time
}

// NewEngine wires an Engine.  pub may be nil.
func NewEngine(store repository.Store, gw gateway.Gateway, waitlist *Waitlist, alerts *Alerts, pub Publisher, cfg config.BookingConfig, log *logrus.Logger) *Engine {
	if pub == nil {
		pub = queue.NopPublisher{}
	}
	return &Engine{
		store:    store,
		gw:       gw,
		waitlist: waitlist,
		alerts:   alerts,
		pub:      pub,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
}

// CreateInput is a guest's booking request.
type CreateInput struct {
	SessionID string
	Email     string
	Name      string
	Phone     *string
	UserID    *string
	Quantity  int
	Honeypot  string
	IPAddress string
	UserAgent string
}

// CreateResult is returned to the guest so they can complete payment.
type CreateResult struct {
	Reservation  model.Reservation
	ClientSecret string
	ExpiresAt    time.Time
}

// CreateReservation holds quantity tickets and opens a payment-intent in one
// transaction.  A gateway failure aborts the transaction and releases the
// hold.  If the transaction fails after the intent was created, the intent
// is cancelled outside the transaction; a failed cancel raises an alert.
func (e *Engine) CreateReservation(ctx context.Context, in CreateInput) (*CreateResult, error) {
	if in.Honeypot != "" {
		return nil, ErrSpamDetected
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	name := strings.TrimSpace(in.Name)
	if email == "" || name == "" {
		return nil, fmt.Errorf("%w: name and email are required", ErrValidation)
	}
	if in.Quantity < 1 || in.Quantity > e.cfg.MaxTickets {
		return nil, fmt.Errorf("%w: quantity must be between 1 and %d", ErrValidation, e.cfg.MaxTickets)
	}

	now := e.now().UTC()
	var (
		res    model.Reservation
		intent *gateway.Intent
	)
	err := e.store.WithTx(ctx, func(tx repository.Tx) error {
		s, err := e.ledger.Lock(ctx, tx, in.SessionID)
		if err != nil {
			return err
		}
		if !s.Published {
			return ErrNotFound
		}
		if !s.StartTime.After(now) {
			return ErrSessionStarted
		}
		if err := e.ledger.Acquire(ctx, tx, s, in.Quantity); err != nil {
			return err
		}

		token, err := utils.NewTicketToken()
		if err != nil {
			return fmt.Errorf("ticket token: %w", err)
		}
		res = model.Reservation{
			ID:             uuid.NewString(),
			EventSessionID: s.ID,
			GuestEmail:     email,
			GuestName:      name,
			GuestPhone:     in.Phone,
			UserID:         in.UserID,
			Quantity:       in.Quantity,
			TotalAmount:    int64(in.Quantity) * s.PriceAmount,
			Currency:       s.Currency,
			Status:         model.ReservationPending,
			AccessToken:    token,
			ExpiresAt:      now.Add(e.cfg.HoldDuration),
			IPAddress:      optional(in.IPAddress),
			UserAgent:      optional(in.UserAgent),
		}
		if err := tx.InsertReservation(ctx, &res); err != nil {
			return fmt.Errorf("insert reservation: %w", err)
		}

		key := utils.ReservationIdempotencyKey(res.ID)
		intent, err = e.gw.CreatePaymentIntent(ctx, gateway.IntentRequest{
			Amount:         res.TotalAmount,
			Currency:       res.Currency,
			IdempotencyKey: key,
			Metadata: map[string]string{
				"reservation_id":   res.ID,
				"event_session_id": s.ID,
				"quantity":         fmt.Sprint(res.Quantity),
			},
		})
		if err != nil {
			intent = nil
			return fmt.Errorf("%w: create payment intent: %v", ErrGateway, err)
		}

		p := &model.Payment{
			ID:              uuid.NewString(),
			ReservationID:   res.ID,
			PaymentIntentID: intent.ID,
			ClientSecret:    optional(intent.ClientSecret),
			Amount:          res.TotalAmount,
			Currency:        res.Currency,
			Status:          model.PaymentPending,
			IdempotencyKey:  key,
		}
		if err := tx.InsertPayment(ctx, p); err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}
		return nil
	})
	if err != nil {
		if intent != nil {
			e.cancelOrphanedIntent(ctx, res.ID, intent.ID, err)
		}
		return nil, err
	}

	e.log.WithFields(logrus.Fields{
		"reservation_id":   res.ID,
		"event_session_id": res.EventSessionID,
		"quantity":         res.Quantity,
		"total_amount":     res.TotalAmount,
	}).Info("reservation created")
	return &CreateResult{Reservation: res, ClientSecret: intent.ClientSecret, ExpiresAt: res.ExpiresAt}, nil
}

// cancelOrphanedIntent cancels an intent whose reservation never committed.
// The request context may already be done, so the cancel gets its own
// deadline.
func (e *Engine) cancelOrphanedIntent(ctx context.Context, reservationID, intentID string, cause error) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	fields := logrus.Fields{"reservation_id": reservationID, "payment_intent_id": intentID, "cause": cause.Error()}
	if err := e.gw.CancelPaymentIntent(cctx, intentID); err != nil {
		fields["cancel_error"] = err.Error()
		e.alerts.Raise(cctx, AlertOrphanedIntent, "payment intent orphaned; manual reconciliation required", fields)
		return
	}
	e.log.WithFields(fields).Warn("cancelled payment intent of rolled back reservation")
}

// ExpireReservation releases the hold of a pending reservation and marks it
// expired.  A missing or no longer pending reservation is a no-op; the
// return value reports whether this call expired it.
func (e *Engine) ExpireReservation(ctx context.Context, id string) (bool, error) {
	r, err := e.store.GetReservation(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	var (
		expired bool
		session *model.EventSession
	)
	err = e.store.WithTx(ctx, func(tx repository.Tx) error {
		s, err := e.ledger.Lock(ctx, tx, r.EventSessionID)
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: reservation %s references missing session %s", ErrIntegrity, r.ID, r.EventSessionID)
		}
		if err != nil {
			return err
		}
		session = s
		expired, err = tx.TransitionReservation(ctx, r.ID,
			[]model.ReservationStatus{model.ReservationPending}, model.ReservationExpired, e.now().UTC())
		if err != nil || !expired {
			return err
		}
		return e.ledger.Release(ctx, tx, s.ID, r.Quantity)
	})
	if err != nil {
		if errors.Is(err, ErrIntegrity) {
			e.alerts.Raise(ctx, AlertIntegrity, err.Error(), logrus.Fields{"reservation_id": r.ID})
		}
		return false, err
	}
	if !expired {
		return false, nil
	}

	e.log.WithFields(logrus.Fields{"reservation_id": r.ID, "quantity": r.Quantity}).Info("reservation expired")
	e.publish(ctx, queue.QueueReservationExpired, r, session, "payment window elapsed")
	e.notifyWaitlist(ctx, session, r.Quantity)
	return true, nil
}

// FindExpiredReservations lists pending reservations past their hold
// window, with their payments.  It has no side effects.
func (e *Engine) FindExpiredReservations(ctx context.Context) ([]model.ExpiredReservation, error) {
	limit := e.cfg.CleanupBatchSize
	if limit <= 0 {
		limit = 100
	}
	return e.store.ListExpiredReservations(ctx, e.now().UTC(), limit)
}

// RefundResult describes a completed admin cancellation.
type RefundResult struct {
	ReservationID string `json:"reservation_id"`
	RefundID      string `json:"refund_id,omitempty"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	Status        string `json:"status"`
}

// CancelReservationWithRefund refunds a confirmed reservation in full,
// returns its tickets to the session and marks it cancelled.  Any other
// status fails ErrInvalidState.
func (e *Engine) CancelReservationWithRefund(ctx context.Context, id string) (*RefundResult, error) {
	r, err := e.store.GetReservation(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if r.Status != model.ReservationConfirmed {
		return nil, fmt.Errorf("%w: reservation is %s", ErrInvalidState, r.Status)
	}

	var (
		result  RefundResult
		session *model.EventSession
		refund  *gateway.Refund
	)
	err = e.store.WithTx(ctx, func(tx repository.Tx) error {
		s, err := e.ledger.Lock(ctx, tx, r.EventSessionID)
		if err != nil {
			return err
		}
		session = s
		p, err := tx.GetPaymentByReservation(ctx, r.ID)
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: reservation has no payment", ErrInvalidState)
		}
		if err != nil {
			return err
		}

		now := e.now().UTC()
		cancelled, err := tx.TransitionReservation(ctx, r.ID,
			[]model.ReservationStatus{model.ReservationConfirmed}, model.ReservationCancelled, now)
		if err != nil {
			return err
		}
		if !cancelled {
			return fmt.Errorf("%w: reservation is no longer confirmed", ErrInvalidState)
		}

		if remaining := p.Amount - p.RefundedAmount; remaining > 0 {
			refund, err = e.gw.CreateRefund(ctx, p.PaymentIntentID, remaining, utils.RefundIdempotencyKey(p.PaymentIntentID))
			if err != nil {
				return fmt.Errorf("%w: refund: %v", ErrGateway, err)
			}
		}
		p.Status = model.PaymentRefunded
		p.RefundedAmount = p.Amount
		if err := tx.UpdatePayment(ctx, p); err != nil {
			return fmt.Errorf("update payment: %w", err)
		}
		if err := e.ledger.Release(ctx, tx, s.ID, r.Quantity); err != nil {
			return err
		}

		result = RefundResult{ReservationID: r.ID, Amount: p.Amount, Currency: p.Currency, Status: string(p.Status)}
		if refund != nil {
			result.RefundID = refund.ID
		}
		return nil
	})
	if err != nil {
		if refund != nil {
			e.alerts.Raise(ctx, AlertRefundNotApplied, "refund issued but cancellation not committed", logrus.Fields{
				"reservation_id": r.ID,
				"refund_id":      refund.ID,
				"error":          err.Error(),
			})
		}
		return nil, err
	}

	e.log.WithFields(logrus.Fields{"reservation_id": r.ID, "amount": result.Amount}).Info("reservation cancelled with refund")
	e.publish(ctx, queue.QueueReservationCancelled, r, session, "admin refund")
	e.notifyWaitlist(ctx, session, r.Quantity)
	return &result, nil
}

// GetReservationByToken backs the public ticket page.  An unknown token
// returns nil without an error.
func (e *Engine) GetReservationByToken(ctx context.Context, token string) (*model.ReservationDetail, error) {
	if token == "" {
		return nil, nil
	}
	d, err := e.store.GetReservationDetailByToken(ctx, token)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return d, err
}

// GetReservationByID returns the full reservation view or ErrNotFound.
func (e *Engine) GetReservationByID(ctx context.Context, id string) (*model.ReservationDetail, error) {
	d, err := e.store.GetReservationDetail(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	return d, err
}

// GetReservation returns the bare reservation row or ErrNotFound.
func (e *Engine) GetReservation(ctx context.Context, id string) (*model.Reservation, error) {
	r, err := e.store.GetReservation(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	return r, err
}

// notifyWaitlist runs after commit.  Its failure never undoes the release.
func (e *Engine) notifyWaitlist(ctx context.Context, s *model.EventSession, qty int) {
	notifyWaitlist(ctx, e.waitlist, e.log, s, qty)
}

func (e *Engine) publish(ctx context.Context, typ string, r *model.Reservation, s *model.EventSession, reason string) {
	publishReservation(ctx, e.pub, e.store, e.log, typ, r, s, reason)
}

func notifyWaitlist(ctx context.Context, w *Waitlist, log *logrus.Logger, s *model.EventSession, qty int) {
	if w == nil || s == nil || !s.AllowWaitlist || qty <= 0 {
		return
	}
	if _, err := w.Notify(ctx, s.ID, qty); err != nil {
		log.WithError(err).WithField("event_session_id", s.ID).Error("waitlist notification failed")
	}
}

func publishReservation(ctx context.Context, pub Publisher, store repository.Store, log *logrus.Logger, typ string, r *model.Reservation, s *model.EventSession, reason string) {
	ev := queue.ReservationEvent{
		Type:           typ,
		ReservationID:  r.ID,
		EventSessionID: r.EventSessionID,
		GuestEmail:     r.GuestEmail,
		Quantity:       r.Quantity,
		TotalAmount:    r.TotalAmount,
		Currency:       r.Currency,
		Reason:         reason,
		OccurredAt:     time.Now().UTC(),
	}
	if s != nil {
		ev.SessionTitle = s.Title
		ev.StartsAt = s.StartTime.UTC().Format(time.RFC3339)
		if event, err := store.GetEvent(ctx, s.EventID); err == nil {
			ev.EventTitle = event.Title
		}
	}
	if err := pub.PublishReservationEvent(ctx, ev); err != nil {
		log.WithError(err).WithFields(logrus.Fields{"reservation_id": r.ID, "type": typ}).Error("publish reservation event")
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
