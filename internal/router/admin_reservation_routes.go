package router

// This file registers admin routes for managing reservations.  They are
// separate from the catalog routes to keep concerns isolated.

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-booking/internal/handler"
	"github.com/iliyamo/event-booking/internal/middleware"
	"github.com/iliyamo/event-booking/internal/utils"
)

// RegisterAdminReservations registers the reservation lookup and the
// cancel-with-refund override.  Both require a JWT with the ADMIN role.
func RegisterAdminReservations(e *echo.Echo, a *handler.AdminHandler, jwtSecret string) {
	g := e.Group(
		"/v1/admin/reservations",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(utils.RoleAdmin),
	)
	g.GET("/:id", a.GetReservation)
	g.POST("/:id/cancel", a.CancelReservation)
}
