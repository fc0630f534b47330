package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/event-booking/internal/service"
)

// PublicHandler serves the read-only session listings.  The responses are
// display data and may be served from the response cache.
type PublicHandler struct {
	catalog *service.Catalog
	log     *logrus.Logger
}

func NewPublicHandler(catalog *service.Catalog, log *logrus.Logger) *PublicHandler {
	return &PublicHandler{catalog: catalog, log: log}
}

// ListSessions handles GET /v1/events/:id/sessions.
func (h *PublicHandler) ListSessions(c echo.Context) error {
	list, err := h.catalog.ListPublishedSessions(c.Request().Context(), c.Param("id"))
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"sessions": list})
}

// GetSession handles GET /v1/sessions/:id.
func (h *PublicHandler) GetSession(c echo.Context) error {
	s, err := h.catalog.GetPublicSession(c.Request().Context(), c.Param("id"))
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusOK, s)
}
