package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/event-booking/internal/model"
	"github.com/iliyamo/event-booking/internal/service"
)

// ReservationHandler serves the guest booking endpoints.
type ReservationHandler struct {
	engine *service.Engine
	log    *logrus.Logger
}

func NewReservationHandler(engine *service.Engine, log *logrus.Logger) *ReservationHandler {
	if engine == nil {
		panic("nil engine passed to NewReservationHandler")
	}
	return &ReservationHandler{engine: engine, log: log}
}

type createReservationRequest struct {
	SessionID string  `json:"session_id" validate:"required,max=36"`
	Email     string  `json:"email" validate:"required,email,max=255"`
	Name      string  `json:"name" validate:"required,max=200"`
	Phone     *string `json:"phone" validate:"omitempty,max=40"`
	Quantity  int     `json:"quantity" validate:"required,min=1"`
	// Website is the honeypot; the form hides it from humans.
	Website string `json:"website"`
}

type createReservationResponse struct {
	ReservationID string    `json:"reservation_id"`
	AccessToken   string    `json:"access_token"`
	ClientSecret  string    `json:"client_secret"`
	TotalAmount   int64     `json:"total_amount"`
	Currency      string    `json:"currency"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Create handles POST /v1/reservations.  On success the guest receives the
// payment client secret and the access token for the ticket page.
func (h *ReservationHandler) Create(c echo.Context) error {
	var req createReservationRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, h.log, service.ErrValidation)
	}
	// check the honeypot before field validation so bots get the spam answer
	if req.Website != "" {
		return fail(c, h.log, service.ErrSpamDetected)
	}
	if err := c.Validate(&req); err != nil {
		return fail(c, h.log, err)
	}

	res, err := h.engine.CreateReservation(c.Request().Context(), service.CreateInput{
		SessionID: req.SessionID,
		Email:     req.Email,
		Name:      req.Name,
		Phone:     req.Phone,
		UserID:    callerID(c),
		Quantity:  req.Quantity,
		Honeypot:  req.Website,
		IPAddress: c.RealIP(),
		UserAgent: c.Request().UserAgent(),
	})
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, createReservationResponse{
		ReservationID: res.Reservation.ID,
		AccessToken:   res.Reservation.AccessToken,
		ClientSecret:  res.ClientSecret,
		TotalAmount:   res.Reservation.TotalAmount,
		Currency:      res.Reservation.Currency,
		ExpiresAt:     res.ExpiresAt,
	})
}

// Status handles GET /v1/reservations/:id/status, polled by the checkout
// page while the payment webhook is in flight.
func (h *ReservationHandler) Status(c echo.Context) error {
	r, err := h.engine.GetReservation(c.Request().Context(), c.Param("id"))
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"reservation_id": r.ID,
		"status":         r.Status,
		"expires_at":     r.ExpiresAt,
		"confirmed_at":   r.ConfirmedAt,
	})
}

type ticketResponse struct {
	Reservation   model.Reservation   `json:"reservation"`
	Session       model.EventSession  `json:"session"`
	Event         model.Event         `json:"event"`
	PaymentStatus model.PaymentStatus `json:"payment_status,omitempty"`
}

// Ticket handles GET /v1/tickets/:token.
func (h *ReservationHandler) Ticket(c echo.Context) error {
	d, err := h.engine.GetReservationByToken(c.Request().Context(), c.Param("token"))
	if err != nil {
		return fail(c, h.log, err)
	}
	if d == nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "ticket not found", "code": "NOT_FOUND"})
	}
	out := ticketResponse{Reservation: d.Reservation, Session: d.Session, Event: d.Event}
	if d.Payment != nil {
		out.PaymentStatus = d.Payment.Status
	}
	return c.JSON(http.StatusOK, out)
}
