package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/event-booking/internal/gateway"
	"github.com/iliyamo/event-booking/internal/model"
	"github.com/iliyamo/event-booking/internal/queue"
	"github.com/iliyamo/event-booking/internal/repository"
)

func TestReservationLifecycleEndToEnd(t *testing.T) {
	f := newFixture(t)
	s := f.session(t, 10, 2500)

	before := time.Now()
	res := f.reserve(t, s.ID, 2)

	assert.EqualValues(t, 5000, res.Reservation.TotalAmount)
	assert.Equal(t, "EUR", res.Reservation.Currency)
	assert.Equal(t, model.ReservationPending, res.Reservation.Status)
	assert.Equal(t, "guest@example.com", res.Reservation.GuestEmail)
	assert.Len(t, res.Reservation.AccessToken, 64)
	assert.NotEmpty(t, res.ClientSecret)
	assert.WithinDuration(t, before.Add(15*time.Minute), res.ExpiresAt, 5*time.Second)
	assert.Equal(t, 8, f.available(t, s.ID))

	p := f.payment(t, res.Reservation.ID)
	assert.Equal(t, model.PaymentPending, p.Status)
	assert.Equal(t, "reservation-"+res.Reservation.ID, p.IdempotencyKey)
	assert.EqualValues(t, 5000, p.Amount)

	out := f.deliver(t, gateway.EventPaymentSucceeded, res.Reservation.ID, "", 0, 0)
	assert.Equal(t, OutcomeConfirmed, out.Outcome)

	r := f.reservation(t, res.Reservation.ID)
	assert.Equal(t, model.ReservationConfirmed, r.Status)
	assert.NotNil(t, r.ConfirmedAt)
	assert.Equal(t, 8, f.available(t, s.ID), "confirmation must not restore capacity")

	p = f.payment(t, res.Reservation.ID)
	assert.Equal(t, model.PaymentSucceeded, p.Status)
	assert.NotNil(t, p.WebhookProcessedAt)

	out = f.deliver(t, gateway.EventChargeRefunded, res.Reservation.ID, "", 5000, 5000)
	assert.Equal(t, OutcomeRefunded, out.Outcome)
	p = f.payment(t, res.Reservation.ID)
	assert.Equal(t, model.PaymentRefunded, p.Status)
	assert.EqualValues(t, 5000, p.RefundedAmount)
	assert.Equal(t, model.ReservationConfirmed, f.reservation(t, res.Reservation.ID).Status)
	assert.Equal(t, 8, f.available(t, s.ID))

	assert.Len(t, f.emailsOfType(model.EmailTicketConfirmation), 1)
	assert.Equal(t, []string{queue.QueueReservationConfirmed}, f.pub.eventTypes())
}

func TestCreateReservationHoneypot(t *testing.T) {
	f := newFixture(t)
	s := f.session(t, 5, 1000)

	_, err := f.engine.CreateReservation(f.ctx, CreateInput{
		SessionID: s.ID, Email: "bot@example.com", Name: "Bot", Quantity: 1, Honeypot: "http://spam",
	})
	assert.ErrorIs(t, err, ErrSpamDetected)
	assert.Equal(t, 5, f.available(t, s.ID))
	assert.Zero(t, f.gw.IntentCount())
}

func TestCreateReservationRejectsInput(t *testing.T) {
	f := newFixture(t)
	s := f.session(t, 20, 1000)

	for _, qty := range []int{0, -1, 11} {
		_, err := f.engine.CreateReservation(f.ctx, CreateInput{SessionID: s.ID, Email: "a@b.c", Name: "A", Quantity: qty})
		assert.ErrorIs(t, err, ErrValidation, "quantity %d", qty)
	}
	_, err := f.engine.CreateReservation(f.ctx, CreateInput{SessionID: s.ID, Email: " ", Name: "A", Quantity: 1})
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, 20, f.available(t, s.ID))
}

func TestCreateReservationSessionChecks(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.CreateReservation(f.ctx, CreateInput{SessionID: "missing", Email: "a@b.c", Name: "A", Quantity: 1})
	assert.ErrorIs(t, err, ErrNotFound)

	hidden := f.session(t, 5, 1000, unpublished)
	_, err = f.engine.CreateReservation(f.ctx, CreateInput{SessionID: hidden.ID, Email: "a@b.c", Name: "A", Quantity: 1})
	assert.ErrorIs(t, err, ErrNotFound)

	s := f.session(t, 2, 1000)
	_, err = f.engine.CreateReservation(f.ctx, CreateInput{SessionID: s.ID, Email: "a@b.c", Name: "A", Quantity: 3})
	assert.ErrorIs(t, err, ErrSoldOut)

	f.advance(72 * time.Hour)
	_, err = f.engine.CreateReservation(f.ctx, CreateInput{SessionID: s.ID, Email: "a@b.c", Name: "A", Quantity: 1})
	assert.ErrorIs(t, err, ErrSessionStarted)
	assert.Equal(t, 2, f.available(t, s.ID))
}

func TestLastSeatHasExactlyOneWinner(t *testing.T) {
	f := newFixture(t)
	s := f.session(t, 1, 1000)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.engine.CreateReservation(context.Background(), CreateInput{
				SessionID: s.ID, Email: "a@b.c", Name: "A", Quantity: 1,
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, errors.Is(err, ErrSoldOut) || errors.Is(err, ErrRaceLost), "unexpected error %v", err)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 0, f.available(t, s.ID))
}

func TestConcurrentReservationsNeverOversell(t *testing.T) {
	f := newFixture(t)
	s := f.session(t, 10, 1000)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		sold int
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func(qty int) {
			defer wg.Done()
			res, err := f.engine.CreateReservation(context.Background(), CreateInput{
				SessionID: s.ID, Email: "a@b.c", Name: "A", Quantity: qty,
			})
			if err != nil {
				return
			}
			mu.Lock()
			sold += res.Reservation.Quantity
			mu.Unlock()
		}(i%3 + 1)
	}
	wg.Wait()

	assert.LessOrEqual(t, sold, 10)
	assert.Equal(t, 10-sold, f.available(t, s.ID))
}

func TestGatewayFailureRollsBackHold(t *testing.T) {
	f := newFixture(t)
	s := f.session(t, 4, 1000)
	f.gw.CreateErr = errors.New("provider down")

	_, err := f.engine.CreateReservation(f.ctx, CreateInput{SessionID: s.ID, Email: "a@b.c", Name: "A", Quantity: 2})
	assert.ErrorIs(t, err, ErrGateway)
	assert.Equal(t, KindExternalDependency, KindOf(err))
	assert.Equal(t, 4, f.available(t, s.ID))

	expired, err := f.store.ListExpiredReservations(f.ctx, time.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, expired)
}

type failPaymentStore struct{ repository.Store }

func (s failPaymentStore) WithTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	return s.Store.WithTx(ctx, func(tx repository.Tx) error { return fn(failPaymentTx{tx}) })
}

type failPaymentTx struct{ repository.Tx }

func (failPaymentTx) InsertPayment(context.Context, *model.Payment) error {
	return errors.New("disk full")
}

func failPayments(s repository.Store) repository.Store { return failPaymentStore{s} }

func TestOrphanedIntentIsCancelled(t *testing.T) {
	f := newFixtureWithStore(t, repository.NewMemoryStore(), failPayments)
	s := f.session(t, 4, 1000)

	_, err := f.engine.CreateReservation(f.ctx, CreateInput{SessionID: s.ID, Email: "a@b.c", Name: "A", Quantity: 1})
	require.Error(t, err)
	assert.Equal(t, 4, f.available(t, s.ID))
	assert.Equal(t, 1, f.gw.IntentCount())
	assert.Equal(t, 1, f.gw.TotalCancels())
	assert.Empty(t, f.pub.alertKinds())
}

func TestOrphanedIntentCancelFailureRaisesAlert(t *testing.T) {
	f := newFixtureWithStore(t, repository.NewMemoryStore(), failPayments)
	s := f.session(t, 4, 1000)
	f.gw.CancelErr = errors.New("timeout")

	_, err := f.engine.CreateReservation(f.ctx, CreateInput{SessionID: s.ID, Email: "a@b.c", Name: "A", Quantity: 1})
	require.Error(t, err)
	assert.Equal(t, []string{AlertOrphanedIntent}, f.pub.alertKinds())
}

func TestCapacityRoundTripThroughSweep(t *testing.T) {
	for _, qty := range []int{1, 4, 10} {
		f := newFixture(t)
		s := f.session(t, 10, 1000)
		res := f.reserve(t, s.ID, qty)
		assert.Equal(t, 10-qty, f.available(t, s.ID))

		f.advance(16 * time.Minute)
		out, err := f.engine.CleanupExpired(f.ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, out.Found)
		assert.Equal(t, 1, out.Expired)
		assert.Equal(t, 1, out.IntentsCancelled)
		assert.Empty(t, out.Errors)

		assert.Equal(t, 10, f.available(t, s.ID), "qty %d", qty)
		assert.Equal(t, model.ReservationExpired, f.reservation(t, res.Reservation.ID).Status)
		assert.Equal(t, 1, f.gw.CancelCount(f.payment(t, res.Reservation.ID).PaymentIntentID))
	}
}

func TestExpireReleasesExactlyOnce(t *testing.T) {
	f := newFixture(t)
	s := f.session(t, 5, 1000)
	res := f.reserve(t, s.ID, 3)

	ok, err := f.engine.ExpireReservation(f.ctx, res.Reservation.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = f.engine.ExpireReservation(f.ctx, res.Reservation.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 5, f.available(t, s.ID))

	ok, err = f.engine.ExpireReservation(f.ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSweepSkipsConfirmedReservations(t *testing.T) {
	f := newFixture(t)
	s := f.session(t, 5, 1000)
	res := f.reserve(t, s.ID, 2)
	f.deliver(t, gateway.EventPaymentSucceeded, res.Reservation.ID, "", 0, 0)

	f.advance(time.Hour)
	due, err := f.engine.FindExpiredReservations(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, due)

	out, err := f.engine.CleanupExpired(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, out.Expired)
	assert.Equal(t, model.ReservationConfirmed, f.reservation(t, res.Reservation.ID).Status)
	assert.Equal(t, 3, f.available(t, s.ID))
}

func TestCancelWithRefund(t *testing.T) {
	f := newFixture(t)
	s := f.session(t, 5, 1500)
	res := f.reserve(t, s.ID, 2)
	f.deliver(t, gateway.EventPaymentSucceeded, res.Reservation.ID, "", 0, 0)

	out, err := f.engine.CancelReservationWithRefund(f.ctx, res.Reservation.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3000, out.Amount)
	assert.NotEmpty(t, out.RefundID)

	r := f.reservation(t, res.Reservation.ID)
	assert.Equal(t, model.ReservationCancelled, r.Status)
	assert.NotNil(t, r.CancelledAt)
	p := f.payment(t, res.Reservation.ID)
	assert.Equal(t, model.PaymentRefunded, p.Status)
	assert.EqualValues(t, 3000, p.RefundedAmount)
	assert.Equal(t, 5, f.available(t, s.ID))
	require.Len(t, f.gw.Refunds(), 1)
	assert.EqualValues(t, 3000, f.gw.Refunds()[0].Amount)

	_, err = f.engine.CancelReservationWithRefund(f.ctx, res.Reservation.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Len(t, f.gw.Refunds(), 1)
	assert.Equal(t, 5, f.available(t, s.ID))
}

func TestCancelRequiresConfirmed(t *testing.T) {
	f := newFixture(t)
	s := f.session(t, 5, 1500)
	pending := f.reserve(t, s.ID, 1)

	_, err := f.engine.CancelReservationWithRefund(f.ctx, pending.Reservation.ID)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = f.engine.ExpireReservation(f.ctx, pending.Reservation.ID)
	require.NoError(t, err)
	_, err = f.engine.CancelReservationWithRefund(f.ctx, pending.Reservation.ID)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = f.engine.CancelReservationWithRefund(f.ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCancelRefundFailureKeepsReservation(t *testing.T) {
	f := newFixture(t)
	s := f.session(t, 5, 1500)
	res := f.reserve(t, s.ID, 1)
	f.deliver(t, gateway.EventPaymentSucceeded, res.Reservation.ID, "", 0, 0)
	f.gw.RefundErr = errors.New("card network down")

	_, err := f.engine.CancelReservationWithRefund(f.ctx, res.Reservation.ID)
	assert.ErrorIs(t, err, ErrGateway)
	assert.Equal(t, model.ReservationConfirmed, f.reservation(t, res.Reservation.ID).Status)
	assert.Equal(t, model.PaymentSucceeded, f.payment(t, res.Reservation.ID).Status)
	assert.Equal(t, 4, f.available(t, s.ID))
}

func TestReservationLookups(t *testing.T) {
	f := newFixture(t)
	s := f.session(t, 5, 1500)
	res := f.reserve(t, s.ID, 1)

	d, err := f.engine.GetReservationByToken(f.ctx, res.Reservation.AccessToken)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, res.Reservation.ID, d.Reservation.ID)
	assert.Equal(t, "Jazz Night", d.Event.Title)
	require.NotNil(t, d.Payment)

	d, err = f.engine.GetReservationByToken(f.ctx, "nope")
	assert.NoError(t, err)
	assert.Nil(t, d)

	_, err = f.engine.GetReservationByID(f.ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}
