package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/event-booking/internal/config"
	"github.com/iliyamo/event-booking/internal/gateway"
	"github.com/iliyamo/event-booking/internal/model"
	"github.com/iliyamo/event-booking/internal/queue"
	"github.com/iliyamo/event-booking/internal/repository"
)

const webhookSecret = "whsec_test"

type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.ReservationEvent
	alerts []queue.OpsAlert
}

func (p *recordingPublisher) PublishReservationEvent(_ context.Context, ev queue.ReservationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) PublishAlert(_ context.Context, a queue.OpsAlert) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alerts = append(p.alerts, a)
	return nil
}

func (p *recordingPublisher) alertKinds() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, a := range p.alerts {
		out = append(out, a.Kind)
	}
	return out
}

func (p *recordingPublisher) eventTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	ctx      context.Context
	store    *repository.MemoryStore
	gw       *gateway.Fake
	pub      *recordingPublisher
	log      *logrus.Logger
	logs     *logtest.Hook
	engine   *Engine
	payments *PaymentEvents
	waitlist *Waitlist
	catalog  *Catalog
	outbox   *Outbox
	event    *model.Event
}

func bookingConfig() config.BookingConfig {
	return config.BookingConfig{
		HoldDuration:        15 * time.Minute,
		MaxTickets:          10,
		WaitlistTTL:         7 * 24 * time.Hour,
		SupportedCurrencies: []string{"EUR", "USD", "GBP", "CHF", "JPY", "CAD", "AUD"},
		CleanupBatchSize:    100,
	}
}

func emailConfig() config.EmailQueueConfig {
	return config.EmailQueueConfig{MaxAttempts: 3, RetryBase: 5 * time.Minute, BatchSize: 10}
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithStore(t, repository.NewMemoryStore())
}

func newFixtureWithStore(t *testing.T, mem *repository.MemoryStore, wrap ...func(repository.Store) repository.Store) *fixture {
	t.Helper()
	log, hook := logtest.NewNullLogger()
	var store repository.Store = mem
	for _, w := range wrap {
		store = w(store)
	}

	f := &fixture{
		ctx:   context.Background(),
		store: mem,
		gw:    gateway.NewFake(webhookSecret),
		pub:   &recordingPublisher{},
		log:   log,
		logs:  hook,
	}
	alerts := NewAlerts(log, f.pub)
	f.outbox = NewOutbox(store, NewRenderer("https://tickets.example.com"), emailConfig(), "ops@example.com")
	f.waitlist = NewWaitlist(store, f.outbox, bookingConfig().WaitlistTTL, log)
	f.engine = NewEngine(store, f.gw, f.waitlist, alerts, f.pub, bookingConfig(), log)
	f.payments = NewPaymentEvents(store, f.gw, f.outbox, f.waitlist, alerts, f.pub, log)
	f.catalog = NewCatalog(store, bookingConfig(), log)

	ev, err := f.catalog.CreateEvent(f.ctx, EventInput{Title: "Jazz Night", Slug: "jazz-night", VenueName: "Blue Room", Location: "Berlin"})
	require.NoError(t, err)
	f.event = ev
	return f
}

type sessionOpt func(*SessionInput)

func withWaitlist(in *SessionInput) { in.AllowWaitlist = true }

func unpublished(in *SessionInput) { in.Published = false }

func (f *fixture) session(t *testing.T, capacity int, price int64, opts ...sessionOpt) *model.EventSession {
	t.Helper()
	start := time.Now().Add(48 * time.Hour)
	in := SessionInput{
		EventID:       f.event.ID,
		Title:         "Evening",
		StartTime:     start,
		EndTime:       start.Add(2 * time.Hour),
		TotalCapacity: capacity,
		PriceAmount:   price,
		Currency:      "EUR",
		Published:     true,
	}
	for _, o := range opts {
		o(&in)
	}
	s, err := f.catalog.CreateSession(f.ctx, in)
	require.NoError(t, err)
	return s
}

func (f *fixture) reserve(t *testing.T, sessionID string, qty int) *CreateResult {
	t.Helper()
	res, err := f.engine.CreateReservation(f.ctx, CreateInput{
		SessionID: sessionID,
		Email:     "Guest@Example.com",
		Name:      "Guest",
		Quantity:  qty,
		IPAddress: "203.0.113.7",
	})
	require.NoError(t, err)
	return res
}

func (f *fixture) available(t *testing.T, sessionID string) int {
	t.Helper()
	s, err := f.store.GetSession(f.ctx, sessionID)
	require.NoError(t, err)
	return s.AvailableCapacity
}

func (f *fixture) reservation(t *testing.T, id string) *model.Reservation {
	t.Helper()
	r, err := f.store.GetReservation(f.ctx, id)
	require.NoError(t, err)
	return r
}

func (f *fixture) payment(t *testing.T, reservationID string) *model.Payment {
	t.Helper()
	p, err := f.store.GetPaymentByReservation(f.ctx, reservationID)
	require.NoError(t, err)
	return p
}

// deliver signs and applies a webhook for the reservation's intent.
func (f *fixture) deliver(t *testing.T, kind gateway.EventKind, reservationID string, failure string, amount, refunded int64) *WebhookResult {
	t.Helper()
	p := f.payment(t, reservationID)
	payload, header, err := f.gw.SignedEvent(kind, p.PaymentIntentID, failure, amount, refunded)
	require.NoError(t, err)
	res, err := f.payments.HandleWebhook(f.ctx, payload, header)
	require.NoError(t, err)
	return res
}

// advance moves every service clock forward by d.
func (f *fixture) advance(d time.Duration) {
	now := func() time.Time { return time.Now().Add(d) }
	f.engine.now = now
	f.payments.now = now
	f.waitlist.now = now
	f.catalog.now = now
}

func (f *fixture) emailsOfType(typ model.EmailType) []model.EmailMessage {
	var out []model.EmailMessage
	for _, m := range f.store.Emails() {
		if m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}
