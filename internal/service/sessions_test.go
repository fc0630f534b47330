package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/event-booking/internal/gateway"
	"github.com/iliyamo/event-booking/internal/model"
)

func TestCreateSessionValidation(t *testing.T) {
	f := newFixture(t)
	start := time.Now().Add(24 * time.Hour)
	valid := SessionInput{
		EventID: f.event.ID, Title: "Matinee", StartTime: start, EndTime: start.Add(time.Hour),
		TotalCapacity: 10, PriceAmount: 1500, Currency: "eur", Published: true,
	}

	s, err := f.catalog.CreateSession(f.ctx, valid)
	require.NoError(t, err)
	assert.Equal(t, "EUR", s.Currency)
	assert.Equal(t, 10, s.AvailableCapacity)

	tests := []struct {
		name   string
		mutate func(*SessionInput)
		want   error
	}{
		{"end before start", func(in *SessionInput) { in.EndTime = in.StartTime }, ErrValidation},
		{"zero capacity", func(in *SessionInput) { in.TotalCapacity = 0 }, ErrValidation},
		{"huge capacity", func(in *SessionInput) { in.TotalCapacity = MaxSessionCapacity + 1 }, ErrValidation},
		{"negative price", func(in *SessionInput) { in.PriceAmount = -1 }, ErrValidation},
		{"unknown currency", func(in *SessionInput) { in.Currency = "XYZ" }, ErrValidation},
		{"missing event", func(in *SessionInput) { in.EventID = "nope" }, ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)
			_, err := f.catalog.CreateSession(f.ctx, in)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCreateEventRejectsDuplicateSlug(t *testing.T) {
	f := newFixture(t)
	_, err := f.catalog.CreateEvent(f.ctx, EventInput{Title: "Other", Slug: "JAZZ-NIGHT"})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.catalog.CreateEvent(f.ctx, EventInput{Title: "", Slug: "x"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestUpdateCapacityKeepsSoldCount(t *testing.T) {
	f := newFixture(t)
	s := f.session(t, 10, 1000)
	f.reserve(t, s.ID, 4)

	out, err := f.catalog.UpdateCapacity(f.ctx, s.ID, 20)
	require.NoError(t, err)
	assert.Equal(t, 20, out.TotalCapacity)
	assert.Equal(t, 16, out.AvailableCapacity)

	out, err = f.catalog.UpdateCapacity(f.ctx, s.ID, 4)
	require.NoError(t, err)
	assert.Zero(t, out.AvailableCapacity)

	_, err = f.catalog.UpdateCapacity(f.ctx, s.ID, 3)
	assert.ErrorIs(t, err, ErrCapacityBelowSold)
	assert.Zero(t, f.available(t, s.ID))

	_, err = f.catalog.UpdateCapacity(f.ctx, "missing", 5)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteSession(t *testing.T) {
	f := newFixture(t)
	s := f.session(t, 5, 1000)
	res := f.reserve(t, s.ID, 1)
	f.deliver(t, gateway.EventPaymentSucceeded, res.Reservation.ID, "", 0, 0)

	err := f.catalog.DeleteSession(f.ctx, s.ID)
	assert.ErrorIs(t, err, ErrSessionInUse)

	other := f.session(t, 5, 1000)
	held := f.reserve(t, other.ID, 1)
	err = f.catalog.DeleteSession(f.ctx, other.ID)
	assert.ErrorIs(t, err, ErrSessionInUse, "a pending reservation still has a live payment intent")

	f.deliver(t, gateway.EventPaymentProcessing, held.Reservation.ID, "", 0, 0)
	assert.ErrorIs(t, f.catalog.DeleteSession(f.ctx, other.ID), ErrSessionInUse)

	f.deliver(t, gateway.EventPaymentFailed, held.Reservation.ID, "declined", 0, 0)
	require.NoError(t, f.catalog.DeleteSession(f.ctx, other.ID))
	_, err = f.catalog.GetPublicSession(f.ctx, other.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, f.gw.TotalCancels(), "no intent was left open to cancel")
}

func TestPublicSessionListing(t *testing.T) {
	f := newFixture(t)
	open := f.session(t, 5, 1000)
	hidden := f.session(t, 5, 1000, unpublished)

	_, err := f.catalog.GetPublicSession(f.ctx, hidden.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := f.catalog.ListPublishedSessions(f.ctx, f.event.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, open.ID, list[0].ID)

	f.advance(72 * time.Hour)
	list, err = f.catalog.ListPublishedSessions(f.ctx, f.event.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestAdminSessionSummary(t *testing.T) {
	f := newFixture(t)
	s := f.session(t, 5, 1000)
	paid := f.reserve(t, s.ID, 2)
	f.reserve(t, s.ID, 1)
	f.deliver(t, gateway.EventPaymentSucceeded, paid.Reservation.ID, "", 0, 0)

	list, err := f.catalog.ListSessionsForAdmin(f.ctx, f.event.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 3, list[0].SoldCount)
	assert.Equal(t, 1, list[0].ConfirmedBookings)

	_, err = f.catalog.ListSessionsForAdmin(f.ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReservationDetailCarriesSession(t *testing.T) {
	f := newFixture(t)
	s := f.session(t, 5, 1000)
	res := f.reserve(t, s.ID, 1)

	d, err := f.engine.GetReservationByToken(f.ctx, res.Reservation.AccessToken)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, s.ID, d.Session.ID)
	assert.Equal(t, "Jazz Night", d.Event.Title)
	assert.Equal(t, model.ReservationPending, d.Reservation.Status)
}
