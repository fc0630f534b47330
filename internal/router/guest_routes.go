package router

import (
	"github.com/labstack/echo/v4"
)

// RegisterGuest registers the unauthenticated booking endpoints.  The
// write endpoints that a bot could hammer go through the rate limiter.
// The payment webhook is authenticated by its signature instead and is
// never rate limited, so provider redeliveries always get through.
func RegisterGuest(e *echo.Echo, h Handlers, limit echo.MiddlewareFunc) {
	g := e.Group("/v1")

	g.POST("/reservations", h.Reservations.Create, limit)
	g.GET("/reservations/:id/status", h.Reservations.Status)
	g.GET("/tickets/:token", h.Reservations.Ticket)

	g.POST("/waitlist", h.Waitlist.Join, limit)
	g.POST("/contact", h.Contact.Submit, limit)

	g.POST("/webhooks/payment", h.Webhooks.Payment)
}
