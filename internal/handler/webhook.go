package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/event-booking/internal/gateway"
	"github.com/iliyamo/event-booking/internal/service"
)

// maxWebhookBytes bounds the payload read for signature verification.
// Provider events are a few KB; anything larger is rejected outright rather
// than truncated into a signature mismatch.
const maxWebhookBytes = 256 << 10

type WebhookHandler struct {
	events *service.PaymentEvents
	log    *logrus.Logger
}

func NewWebhookHandler(events *service.PaymentEvents, log *logrus.Logger) *WebhookHandler {
	return &WebhookHandler{events: events, log: log}
}

// Payment handles POST /v1/webhooks/payment.  Only an unverifiable delivery
// is rejected.  Once the signature checks out the provider always gets a
// 200 so it does not redeliver an event that was handled; a processing
// error is reported in the body instead.
func (h *WebhookHandler) Payment(c echo.Context) error {
	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBytes+1))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unreadable body", "code": "BAD_REQUEST"})
	}
	if len(payload) > maxWebhookBytes {
		h.log.WithField("limit", maxWebhookBytes).Error("webhook payload too large")
		return c.JSON(http.StatusRequestEntityTooLarge, echo.Map{"error": "payload too large", "code": "PAYLOAD_TOO_LARGE"})
	}
	sig := c.Request().Header.Get("Stripe-Signature")

	res, err := h.events.HandleWebhook(c.Request().Context(), payload, sig)
	switch {
	case errors.Is(err, gateway.ErrSignatureInvalid):
		h.log.WithError(err).Warn("webhook signature rejected")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid signature", "code": "INVALID_SIGNATURE"})
	case errors.Is(err, gateway.ErrNotConfigured):
		return fail(c, h.log, err)
	case res == nil:
		return fail(c, h.log, err)
	}

	body := echo.Map{
		"received": true,
		"event_id": res.EventID,
		"type":     res.Kind,
		"outcome":  res.Outcome,
	}
	if err != nil {
		body["error"] = err.Error()
	}
	return c.JSON(http.StatusOK, body)
}
