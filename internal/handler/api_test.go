package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/event-booking/internal/config"
	"github.com/iliyamo/event-booking/internal/gateway"
	"github.com/iliyamo/event-booking/internal/handler"
	"github.com/iliyamo/event-booking/internal/model"
	"github.com/iliyamo/event-booking/internal/queue"
	"github.com/iliyamo/event-booking/internal/repository"
	"github.com/iliyamo/event-booking/internal/router"
	"github.com/iliyamo/event-booking/internal/service"
	"github.com/iliyamo/event-booking/internal/utils"
)

const jwtSecret = "test-secret"

type api struct {
	t       *testing.T
	e       *echo.Echo
	store   *repository.MemoryStore
	gw      *gateway.Fake
	catalog *service.Catalog
	event   *model.Event
}

func newAPI(t *testing.T) *api {
	t.Helper()
	log, _ := logtest.NewNullLogger()
	store := repository.NewMemoryStore()
	gw := gateway.NewFake("whsec_test")
	pub := queue.NopPublisher{}
	booking := config.BookingConfig{
		HoldDuration: 15 * time.Minute, MaxTickets: 10, WaitlistTTL: 24 * time.Hour,
		SupportedCurrencies: []string{"EUR", "USD"}, CleanupBatchSize: 100,
	}

	alerts := service.NewAlerts(log, pub)
	outbox := service.NewOutbox(store, service.NewRenderer("https://tickets.example.com"),
		config.EmailQueueConfig{MaxAttempts: 3, RetryBase: time.Minute, BatchSize: 10}, "ops@example.com")
	waitlist := service.NewWaitlist(store, outbox, booking.WaitlistTTL, log)
	engine := service.NewEngine(store, gw, waitlist, alerts, pub, booking, log)
	payments := service.NewPaymentEvents(store, gw, outbox, waitlist, alerts, pub, log)
	catalog := service.NewCatalog(store, booking, log)

	e := router.New(store, router.Handlers{
		Reservations: handler.NewReservationHandler(engine, log),
		Waitlist:     handler.NewWaitlistHandler(waitlist, log),
		Contact:      handler.NewContactHandler(service.NewContact(outbox), log),
		Webhooks:     handler.NewWebhookHandler(payments, log),
		Public:       handler.NewPublicHandler(catalog, log),
		Admin:        handler.NewAdminHandler(engine, catalog, log),
	}, router.Options{JWTSecret: jwtSecret, Log: log})

	ev, err := catalog.CreateEvent(context.Background(), service.EventInput{Title: "Jazz Night", Slug: "jazz"})
	require.NoError(t, err)
	return &api{t: t, e: e, store: store, gw: gw, catalog: catalog, event: ev}
}

func (a *api) session(capacity int, waitlist bool) *model.EventSession {
	a.t.Helper()
	start := time.Now().Add(48 * time.Hour)
	s, err := a.catalog.CreateSession(context.Background(), service.SessionInput{
		EventID: a.event.ID, Title: "Evening", StartTime: start, EndTime: start.Add(2 * time.Hour),
		TotalCapacity: capacity, PriceAmount: 2500, Currency: "EUR", Published: true, AllowWaitlist: waitlist,
	})
	require.NoError(a.t, err)
	return s
}

func (a *api) do(method, path string, body interface{}, header map[string]string) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case []byte:
			buf.Write(b)
		default:
			require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func bearer(t *testing.T, role string) map[string]string {
	tok, err := utils.NewAccessToken(jwtSecret, "ops-1", role, 5)
	require.NoError(t, err)
	return map[string]string{echo.HeaderAuthorization: "Bearer " + tok.Token}
}

func reservationBody(sessionID string, qty int) map[string]interface{} {
	return map[string]interface{}{
		"session_id": sessionID, "email": "guest@example.com", "name": "Guest", "quantity": qty,
	}
}

func TestHealth(t *testing.T) {
	a := newAPI(t)
	rec := a.do(http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestReservationFlow(t *testing.T) {
	a := newAPI(t)
	s := a.session(5, false)

	rec := a.do(http.MethodPost, "/v1/reservations", reservationBody(s.ID, 2), nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode(t, rec)
	id := created["reservation_id"].(string)
	token := created["access_token"].(string)
	assert.NotEmpty(t, created["client_secret"])
	assert.EqualValues(t, 5000, created["total_amount"])

	rec = a.do(http.MethodGet, "/v1/reservations/"+id+"/status", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode(t, rec)
	assert.Equal(t, "pending", status["status"])
	assert.Nil(t, status["confirmed_at"])

	p, err := a.store.GetPaymentByReservation(context.Background(), id)
	require.NoError(t, err)
	payload, sig, err := a.gw.SignedEvent(gateway.EventPaymentSucceeded, p.PaymentIntentID, "", 0, 0)
	require.NoError(t, err)
	rec = a.do(http.MethodPost, "/v1/webhooks/payment", payload, map[string]string{"Stripe-Signature": sig})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "confirmed", decode(t, rec)["outcome"])

	rec = a.do(http.MethodPost, "/v1/webhooks/payment", payload, map[string]string{"Stripe-Signature": sig})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "duplicate", decode(t, rec)["outcome"])

	rec = a.do(http.MethodGet, "/v1/tickets/"+token, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ticket := decode(t, rec)
	assert.Equal(t, "succeeded", ticket["payment_status"])
	assert.NotContains(t, rec.Body.String(), token, "access token is not echoed back")
	assert.Equal(t, "confirmed", ticket["reservation"].(map[string]interface{})["status"])

	rec = a.do(http.MethodGet, "/v1/tickets/unknown", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateReservationErrors(t *testing.T) {
	a := newAPI(t)
	s := a.session(1, false)

	bot := reservationBody(s.ID, 1)
	bot["website"] = "http://spam.example"
	rec := a.do(http.MethodPost, "/v1/reservations", bot, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "SPAM_DETECTED", decode(t, rec)["code"])

	bad := reservationBody(s.ID, 1)
	bad["email"] = "nope"
	rec = a.do(http.MethodPost, "/v1/reservations", bad, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "VALIDATION_FAILED", body["code"])
	assert.Contains(t, body["error"], "email must be a valid email")

	rec = a.do(http.MethodPost, "/v1/reservations", reservationBody(s.ID, 11), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(http.MethodPost, "/v1/reservations", reservationBody("missing", 1), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.Equal(t, http.StatusCreated, a.do(http.MethodPost, "/v1/reservations", reservationBody(s.ID, 1), nil).Code)
	rec = a.do(http.MethodPost, "/v1/reservations", reservationBody(s.ID, 1), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "tickets are no longer available", decode(t, rec)["error"])
}

func TestGatewayFailureIsBadGateway(t *testing.T) {
	a := newAPI(t)
	s := a.session(3, false)
	a.gw.CreateErr = assert.AnError

	rec := a.do(http.MethodPost, "/v1/reservations", reservationBody(s.ID, 1), nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	got, err := a.store.GetSession(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.AvailableCapacity)
}

func TestWebhookSignature(t *testing.T) {
	a := newAPI(t)
	payload, _, err := a.gw.SignedEvent(gateway.EventPaymentSucceeded, "pi_x", "", 0, 0)
	require.NoError(t, err)

	rec := a.do(http.MethodPost, "/v1/webhooks/payment", payload, map[string]string{"Stripe-Signature": "t=1,v1=bad"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	_, sig, err := a.gw.SignedEvent(gateway.EventPaymentSucceeded, "pi_unknown", "", 0, 0)
	require.NoError(t, err)
	rec = a.do(http.MethodPost, "/v1/webhooks/payment", payload, map[string]string{"Stripe-Signature": sig})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "signature belongs to another payload")
}

func TestWaitlistAndContact(t *testing.T) {
	a := newAPI(t)
	closed := a.session(2, false)
	open := a.session(2, true)

	join := map[string]interface{}{"session_id": closed.ID, "email": "w@x.io", "name": "W", "quantity": 1}
	rec := a.do(http.MethodPost, "/v1/waitlist", join, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "WAITLIST_DISABLED", decode(t, rec)["code"])

	join["session_id"] = open.ID
	assert.Equal(t, http.StatusCreated, a.do(http.MethodPost, "/v1/waitlist", join, nil).Code)
	rec = a.do(http.MethodPost, "/v1/waitlist", join, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	msg := map[string]interface{}{"name": "Ann", "email": "ann@x.io", "message": "Parking?"}
	assert.Equal(t, http.StatusAccepted, a.do(http.MethodPost, "/v1/contact", msg, nil).Code)
	msg["website"] = "x"
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPost, "/v1/contact", msg, nil).Code)
}

func TestPublicSessions(t *testing.T) {
	a := newAPI(t)
	s := a.session(2, false)

	rec := a.do(http.MethodGet, "/v1/events/"+a.event.ID+"/sessions", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["sessions"], 1)

	rec = a.do(http.MethodGet, "/v1/sessions/"+s.ID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, decode(t, rec)["available_capacity"])

	assert.Equal(t, http.StatusNotFound, a.do(http.MethodGet, "/v1/sessions/missing", nil, nil).Code)
}

func TestAdminRequiresAdminRole(t *testing.T) {
	a := newAPI(t)
	body := map[string]interface{}{"title": "Opera", "slug": "opera"}

	assert.Equal(t, http.StatusUnauthorized, a.do(http.MethodPost, "/v1/admin/events", body, nil).Code)
	assert.Equal(t, http.StatusForbidden, a.do(http.MethodPost, "/v1/admin/events", body, bearer(t, "CUSTOMER")).Code)

	rec := a.do(http.MethodPost, "/v1/admin/events", body, bearer(t, utils.RoleAdmin))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "opera", decode(t, rec)["slug"])
}

func TestAdminSessionLifecycle(t *testing.T) {
	a := newAPI(t)
	admin := bearer(t, utils.RoleAdmin)
	start := time.Now().Add(72 * time.Hour).UTC()

	rec := a.do(http.MethodPost, "/v1/admin/sessions", map[string]interface{}{
		"event_id": a.event.ID, "title": "Matinee",
		"start_time": start.Format(time.RFC3339), "end_time": start.Add(-time.Hour).Format(time.RFC3339),
		"total_capacity": 4, "price_amount": 1000, "currency": "EUR",
	}, admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "end before start")

	rec = a.do(http.MethodPost, "/v1/admin/sessions", map[string]interface{}{
		"event_id": a.event.ID, "title": "Matinee",
		"start_time": start.Format(time.RFC3339), "end_time": start.Add(time.Hour).Format(time.RFC3339),
		"total_capacity": 4, "price_amount": 1000, "currency": "EUR",
	}, admin)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sessionID := decode(t, rec)["id"].(string)

	rec = a.do(http.MethodPost, "/v1/reservations", reservationBody(sessionID, 3), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	resID := decode(t, rec)["reservation_id"].(string)

	rec = a.do(http.MethodPatch, "/v1/admin/sessions/"+sessionID+"/capacity", map[string]interface{}{"total_capacity": 2}, admin)
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = a.do(http.MethodPatch, "/v1/admin/sessions/"+sessionID+"/capacity", map[string]interface{}{"total_capacity": 6}, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 3, decode(t, rec)["available_capacity"])

	rec = a.do(http.MethodPost, "/v1/admin/reservations/"+resID+"/cancel", nil, admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "pending reservations cannot be refunded")

	p, err := a.store.GetPaymentByReservation(context.Background(), resID)
	require.NoError(t, err)
	payload, sig, err := a.gw.SignedEvent(gateway.EventPaymentSucceeded, p.PaymentIntentID, "", 0, 0)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, a.do(http.MethodPost, "/v1/webhooks/payment", payload, map[string]string{"Stripe-Signature": sig}).Code)

	assert.Equal(t, http.StatusConflict, a.do(http.MethodDelete, "/v1/admin/sessions/"+sessionID, nil, admin).Code)

	rec = a.do(http.MethodGet, "/v1/admin/events/"+a.event.ID+"/sessions", nil, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode(t, rec)["sessions"].([]interface{})[0].(map[string]interface{})
	assert.EqualValues(t, 3, summary["sold_count"])
	assert.EqualValues(t, 1, summary["confirmed_bookings"])

	rec = a.do(http.MethodPost, "/v1/admin/reservations/"+resID+"/cancel", nil, admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "refunded", decode(t, rec)["status"])

	rec = a.do(http.MethodGet, "/v1/admin/reservations/"+resID, nil, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cancelled", decode(t, rec)["reservation"].(map[string]interface{})["status"])

	assert.Equal(t, http.StatusNoContent, a.do(http.MethodDelete, "/v1/admin/sessions/"+sessionID, nil, admin).Code)
}

func TestWebhookUndecodableObjectIsAcknowledged(t *testing.T) {
	a := newAPI(t)
	payload := []byte(`{"id":"evt_odd","object":"event","type":"payment_intent.succeeded","data":{"object":{"id":42}}}`)
	sig, err := a.gw.Sign(payload)
	require.NoError(t, err)

	rec := a.do(http.MethodPost, "/v1/webhooks/payment", payload, map[string]string{"Stripe-Signature": sig})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "undecodable", body["outcome"])
	assert.Equal(t, "evt_odd", body["event_id"])
	assert.NotEmpty(t, body["error"])
}

func TestWebhookOversizePayloadIsRejected(t *testing.T) {
	a := newAPI(t)
	payload := append([]byte(`{"id":"evt_big","pad":"`), bytes.Repeat([]byte("x"), 300<<10)...)
	payload = append(payload, []byte(`"}`)...)
	sig, err := a.gw.Sign(payload)
	require.NoError(t, err)

	rec := a.do(http.MethodPost, "/v1/webhooks/payment", payload, map[string]string{"Stripe-Signature": sig})
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "PAYLOAD_TOO_LARGE", decode(t, rec)["code"])
}
