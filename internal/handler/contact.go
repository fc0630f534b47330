package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/event-booking/internal/service"
)

type ContactHandler struct {
	contact *service.Contact
	log     *logrus.Logger
}

func NewContactHandler(contact *service.Contact, log *logrus.Logger) *ContactHandler {
	return &ContactHandler{contact: contact, log: log}
}

type contactRequest struct {
	Name    string `json:"name" validate:"required,max=200"`
	Email   string `json:"email" validate:"required,email,max=255"`
	Message string `json:"message" validate:"required,max=5000"`
	Website string `json:"website"`
}

// Submit handles POST /v1/contact.
func (h *ContactHandler) Submit(c echo.Context) error {
	var req contactRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, h.log, service.ErrValidation)
	}
	if req.Website != "" {
		return fail(c, h.log, service.ErrSpamDetected)
	}
	if err := c.Validate(&req); err != nil {
		return fail(c, h.log, err)
	}
	err := h.contact.Submit(c.Request().Context(), service.ContactInput{
		Name: req.Name, Email: req.Email, Message: req.Message, Honeypot: req.Website,
	})
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusAccepted, echo.Map{"status": "received"})
}
