package repository

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/event-booking/internal/model"
)

// Reader holds the lookups that never lock.  Both Store and Tx expose it;
// inside a transaction the reads see the transaction's own writes.
type Reader interface {
	GetEvent(ctx context.Context, id string) (*model.Event, error)
	GetSession(ctx context.Context, id string) (*model.EventSession, error)
	// ListSessionsByEvent returns every session of the event ordered by
	// start time.
	ListSessionsByEvent(ctx context.Context, eventID string) ([]model.EventSession, error)
	GetReservation(ctx context.Context, id string) (*model.Reservation, error)
	GetReservationDetail(ctx context.Context, id string) (*model.ReservationDetail, error)
	GetReservationDetailByToken(ctx context.Context, token string) (*model.ReservationDetail, error)
	GetPaymentByIntent(ctx context.Context, intentID string) (*model.Payment, error)
	GetPaymentByReservation(ctx context.Context, reservationID string) (*model.Payment, error)
	// ListExpiredReservations returns pending reservations whose hold
	// window closed before now, oldest first.
	ListExpiredReservations(ctx context.Context, now time.Time, limit int) ([]model.ExpiredReservation, error)
	CountConfirmedReservations(ctx context.Context, sessionID string) (int, error)
	// CountActiveReservations counts reservations still holding capacity
	// or carrying a live payment: pending, processing and confirmed.
	CountActiveReservations(ctx context.Context, sessionID string) (int, error)
	// ListOpenWaitlist returns un-notified entries that have not expired,
	// in creation order.
	ListOpenWaitlist(ctx context.Context, sessionID string, now time.Time) ([]model.WaitlistEntry, error)
	HasOpenWaitlistEntry(ctx context.Context, sessionID, email string, now time.Time) (bool, error)
}

// Tx is the capability set available inside a transaction.  Every
// capacity mutation goes through LockSession first; the lock is held until
// the surrounding WithTx returns.
type Tx interface {
	Reader

	// LockSession reads the session row under an exclusive lock.
	LockSession(ctx context.Context, id string) (*model.EventSession, error)
	// ReserveCapacity decrements available capacity by qty only when at
	// least qty is available.  It reports false when the guard failed.
	ReserveCapacity(ctx context.Context, sessionID string, qty int) (bool, error)
	// ReleaseCapacity increments available capacity by qty, clamped to the
	// session's total capacity.
	ReleaseCapacity(ctx context.Context, sessionID string, qty int) error
	UpdateSessionCapacity(ctx context.Context, sessionID string, total, available int) error
	DeleteSession(ctx context.Context, id string) error

	InsertReservation(ctx context.Context, r *model.Reservation) error
	// TransitionReservation moves the reservation to status `to` only if
	// its current status is one of `from`.  It reports whether the row
	// changed; callers restore capacity only when it did.
	TransitionReservation(ctx context.Context, id string, from []model.ReservationStatus, to model.ReservationStatus, at time.Time) (bool, error)

	// LockPaymentByIntent reads the payment under an exclusive row lock so
	// concurrent webhook deliveries for one intent apply in turn, each
	// seeing the previous one's committed writes.
	LockPaymentByIntent(ctx context.Context, intentID string) (*model.Payment, error)
	InsertPayment(ctx context.Context, p *model.Payment) error
	UpdatePayment(ctx context.Context, p *model.Payment) error

	EnqueueEmail(ctx context.Context, m *model.EmailMessage) error
}

// Store is the process-wide storage handle.
type Store interface {
	Reader

	// WithTx runs fn in a transaction.  The transaction commits when fn
	// returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	InsertEvent(ctx context.Context, e *model.Event) error
	InsertSession(ctx context.Context, s *model.EventSession) error

	InsertWaitlistEntry(ctx context.Context, e *model.WaitlistEntry) error
	// ClaimWaitlistEntry flips notified from false to true.  It reports
	// false when another caller claimed the entry first.
	ClaimWaitlistEntry(ctx context.Context, id string, at time.Time) (bool, error)

	EnqueueEmail(ctx context.Context, m *model.EmailMessage) error
	// ListDueEmails returns pending messages with attempts left whose
	// backoff (retryBase * 2^attempts since the last attempt) has elapsed.
	ListDueEmails(ctx context.Context, now time.Time, retryBase time.Duration, limit int) ([]model.EmailMessage, error)
	MarkEmailSent(ctx context.Context, id string, at time.Time) error
	// MarkEmailAttemptFailed records a failed attempt; the message becomes
	// failed once its attempts reach max_attempts.
	MarkEmailAttemptFailed(ctx context.Context, id, reason string, at time.Time) error

	Ping(ctx context.Context) error
	Close() error
}

// loadDetail completes a reservation with its session, event and optional
// payment.
func loadDetail(ctx context.Context, r Reader, res *model.Reservation) (*model.ReservationDetail, error) {
	sess, err := r.GetSession(ctx, res.EventSessionID)
	if err != nil {
		return nil, err
	}
	ev, err := r.GetEvent(ctx, sess.EventID)
	if err != nil {
		return nil, err
	}
	d := &model.ReservationDetail{Reservation: *res, Session: *sess, Event: *ev}
	p, err := r.GetPaymentByReservation(ctx, res.ID)
	switch {
	case err == nil:
		d.Payment = p
	case errors.Is(err, ErrNotFound):
	default:
		return nil, err
	}
	return d, nil
}
