package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/event-booking/internal/service"
)

// AdminHandler exposes the operator endpoints.  Routes are mounted behind
// the JWT guard with the ADMIN role.
type AdminHandler struct {
	engine  *service.Engine
	catalog *service.Catalog
	log     *logrus.Logger
}

func NewAdminHandler(engine *service.Engine, catalog *service.Catalog, log *logrus.Logger) *AdminHandler {
	if engine == nil || catalog == nil {
		panic("nil service passed to NewAdminHandler")
	}
	return &AdminHandler{engine: engine, catalog: catalog, log: log}
}

// callerID returns the authenticated subject, if any.
func callerID(c echo.Context) *string {
	if s, ok := c.Get("user_id").(string); ok && s != "" {
		return &s
	}
	return nil
}

func (h *AdminHandler) audit(c echo.Context, action string, fields logrus.Fields) {
	entry := h.log.WithFields(fields).WithField("action", action)
	if id := callerID(c); id != nil {
		entry = entry.WithField("admin", *id)
	}
	entry.Info("admin action")
}

// CancelReservation handles POST /v1/admin/reservations/:id/cancel.
func (h *AdminHandler) CancelReservation(c echo.Context) error {
	id := c.Param("id")
	res, err := h.engine.CancelReservationWithRefund(c.Request().Context(), id)
	if err != nil {
		return fail(c, h.log, err)
	}
	h.audit(c, "cancel_reservation", logrus.Fields{"reservation_id": id, "refund_id": res.RefundID})
	return c.JSON(http.StatusOK, res)
}

// GetReservation handles GET /v1/admin/reservations/:id.
func (h *AdminHandler) GetReservation(c echo.Context) error {
	d, err := h.engine.GetReservationByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusOK, d)
}

type createEventRequest struct {
	Title     string `json:"title" validate:"required,max=255"`
	Slug      string `json:"slug" validate:"required,max=255"`
	Location  string `json:"location" validate:"max=255"`
	VenueName string `json:"venue_name" validate:"max=255"`
}

// CreateEvent handles POST /v1/admin/events.
func (h *AdminHandler) CreateEvent(c echo.Context) error {
	var req createEventRequest
	if err := bindAndValidate(c, &req); err != nil {
		return fail(c, h.log, err)
	}
	ev, err := h.catalog.CreateEvent(c.Request().Context(), service.EventInput{
		Title: req.Title, Slug: req.Slug, Location: req.Location, VenueName: req.VenueName,
	})
	if err != nil {
		return fail(c, h.log, err)
	}
	h.audit(c, "create_event", logrus.Fields{"event_id": ev.ID})
	return c.JSON(http.StatusCreated, ev)
}

type createSessionRequest struct {
	EventID       string    `json:"event_id" validate:"required"`
	Title         string    `json:"title" validate:"max=255"`
	StartTime     time.Time `json:"start_time" validate:"required"`
	EndTime       time.Time `json:"end_time" validate:"required,gtfield=StartTime"`
	TotalCapacity int       `json:"total_capacity" validate:"required,min=1,max=10000"`
	PriceAmount   int64     `json:"price_amount" validate:"min=0"`
	Currency      string    `json:"currency" validate:"required,len=3"`
	Published     *bool     `json:"published"`
	AllowWaitlist bool      `json:"allow_waitlist"`
}

// CreateSession handles POST /v1/admin/sessions.  Sessions are published
// unless the request says otherwise.
func (h *AdminHandler) CreateSession(c echo.Context) error {
	var req createSessionRequest
	if err := bindAndValidate(c, &req); err != nil {
		return fail(c, h.log, err)
	}
	published := true
	if req.Published != nil {
		published = *req.Published
	}
	s, err := h.catalog.CreateSession(c.Request().Context(), service.SessionInput{
		EventID:       req.EventID,
		Title:         req.Title,
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
		TotalCapacity: req.TotalCapacity,
		PriceAmount:   req.PriceAmount,
		Currency:      req.Currency,
		Published:     published,
		AllowWaitlist: req.AllowWaitlist,
	})
	if err != nil {
		return fail(c, h.log, err)
	}
	h.audit(c, "create_session", logrus.Fields{"event_session_id": s.ID, "event_id": s.EventID})
	return c.JSON(http.StatusCreated, s)
}

type updateCapacityRequest struct {
	TotalCapacity int `json:"total_capacity" validate:"required,min=1,max=10000"`
}

// UpdateCapacity handles PATCH /v1/admin/sessions/:id/capacity.
func (h *AdminHandler) UpdateCapacity(c echo.Context) error {
	var req updateCapacityRequest
	if err := bindAndValidate(c, &req); err != nil {
		return fail(c, h.log, err)
	}
	s, err := h.catalog.UpdateCapacity(c.Request().Context(), c.Param("id"), req.TotalCapacity)
	if err != nil {
		return fail(c, h.log, err)
	}
	h.audit(c, "update_capacity", logrus.Fields{"event_session_id": s.ID, "total": s.TotalCapacity})
	return c.JSON(http.StatusOK, s)
}

// DeleteSession handles DELETE /v1/admin/sessions/:id.
func (h *AdminHandler) DeleteSession(c echo.Context) error {
	id := c.Param("id")
	if err := h.catalog.DeleteSession(c.Request().Context(), id); err != nil {
		return fail(c, h.log, err)
	}
	h.audit(c, "delete_session", logrus.Fields{"event_session_id": id})
	return c.NoContent(http.StatusNoContent)
}

// ListSessions handles GET /v1/admin/events/:id/sessions.
func (h *AdminHandler) ListSessions(c echo.Context) error {
	list, err := h.catalog.ListSessionsForAdmin(c.Request().Context(), c.Param("id"))
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"sessions": list})
}
