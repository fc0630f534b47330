package middleware

// identity.go holds the caller identification shared by the rate limiter
// and the request logger.  Guests are identified by IP; admin requests by
// the JWT subject stored by JWTAuth.

import (
	"github.com/labstack/echo/v4"
)

// userID returns the authenticated subject, or "guest" when the request
// carries no token.
func userID(c echo.Context) string {
	if v, ok := c.Get("user_id").(string); ok && v != "" {
		return v
	}
	return "guest"
}

// clientIP returns the caller address echo resolved from the proxy headers.
func clientIP(c echo.Context) string {
	if ip := c.RealIP(); ip != "" {
		return ip
	}
	return "unknown"
}
