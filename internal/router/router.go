package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/event-booking/internal/config"
	"github.com/iliyamo/event-booking/internal/handler"
	"github.com/iliyamo/event-booking/internal/middleware"
	"github.com/iliyamo/event-booking/internal/repository"
)

// Handlers bundles every HTTP handler the API mounts.
type Handlers struct {
	Reservations *handler.ReservationHandler
	Waitlist     *handler.WaitlistHandler
	Contact      *handler.ContactHandler
	Webhooks     *handler.WebhookHandler
	Public       *handler.PublicHandler
	Admin        *handler.AdminHandler
}

// Options carries the settings of the cross-cutting middleware.  Redis may
// be nil, which turns rate limiting and caching into pass-throughs.
type Options struct {
	JWTSecret string
	RateLimit config.RateLimitConfig
	Cache     config.CacheConfig
	Redis     *redis.Client
	Log       *logrus.Logger
}

// New builds the echo instance with the validator, the shared middleware
// and all routes registered.
func New(store repository.Store, h Handlers, o Options) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewRequestValidator()

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(o.Log))

	RegisterRoutes(e, store)
	RegisterPublic(e, h.Public, middleware.NewRedisCache(o.Cache, o.Redis, o.Log))
	RegisterGuest(e, h, middleware.NewTokenBucket(o.RateLimit, o.Redis, o.Log))
	RegisterAdmin(e, h.Admin, o.JWTSecret)
	RegisterAdminReservations(e, h.Admin, o.JWTSecret)
	return e
}

// RegisterRoutes registers routes that do not require authentication and
// are not part of the booking API.  Currently it exposes only a health
// check used by load balancers.
func RegisterRoutes(e *echo.Echo, store repository.Store) {
	e.GET("/healthz", handler.Health(store))
}

// RegisterPublic registers the read-only session listings.  They sit
// behind the response cache; capacity shown there is informational.
func RegisterPublic(e *echo.Echo, p *handler.PublicHandler, cache echo.MiddlewareFunc) {
	e.GET("/v1/events/:id/sessions", p.ListSessions, cache)
	e.GET("/v1/sessions/:id", p.GetSession, cache)
}
