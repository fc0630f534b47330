package router // router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-booking/internal/handler"    // admin handlers
	"github.com/iliyamo/event-booking/internal/middleware" // JWT + role middlewares
	"github.com/iliyamo/event-booking/internal/utils"
)

// RegisterAdmin registers ADMIN-scoped catalog endpoints under /v1/admin.
// All routes require a valid JWT and the ADMIN role.
func RegisterAdmin(e *echo.Echo, a *handler.AdminHandler, jwtSecret string) {
	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(utils.RoleAdmin),
	)

	// ---- Events ----
	g.POST("/events", a.CreateEvent)
	g.GET("/events/:id/sessions", a.ListSessions)

	// ---- Sessions ----
	g.POST("/sessions", a.CreateSession)
	g.PATCH("/sessions/:id/capacity", a.UpdateCapacity)
	g.DELETE("/sessions/:id", a.DeleteSession)
}
