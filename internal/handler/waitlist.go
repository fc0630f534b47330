package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/event-booking/internal/service"
)

type WaitlistHandler struct {
	waitlist *service.Waitlist
	log      *logrus.Logger
}

func NewWaitlistHandler(w *service.Waitlist, log *logrus.Logger) *WaitlistHandler {
	return &WaitlistHandler{waitlist: w, log: log}
}

type joinWaitlistRequest struct {
	SessionID string  `json:"session_id" validate:"required,max=36"`
	Email     string  `json:"email" validate:"required,email,max=255"`
	Name      string  `json:"name" validate:"required,max=200"`
	Phone     *string `json:"phone" validate:"omitempty,max=40"`
	Quantity  int     `json:"quantity" validate:"required,min=1,max=50"`
}

// Join handles POST /v1/waitlist.
func (h *WaitlistHandler) Join(c echo.Context) error {
	var req joinWaitlistRequest
	if err := bindAndValidate(c, &req); err != nil {
		return fail(c, h.log, err)
	}
	e, err := h.waitlist.Join(c.Request().Context(), service.JoinInput{
		SessionID: req.SessionID,
		Email:     req.Email,
		Name:      req.Name,
		Phone:     req.Phone,
		Quantity:  req.Quantity,
	})
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"id":         e.ID,
		"session_id": e.EventSessionID,
		"quantity":   e.Quantity,
		"expires_at": e.ExpiresAt,
	})
}
