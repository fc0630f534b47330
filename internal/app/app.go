// Package app assembles the booking services from configuration.  The HTTP
// server and the bookingctl maintenance commands share it so both run the
// same store, gateway and outbox wiring.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/event-booking/internal/config"
	"github.com/iliyamo/event-booking/internal/database"
	"github.com/iliyamo/event-booking/internal/gateway"
	"github.com/iliyamo/event-booking/internal/handler"
	"github.com/iliyamo/event-booking/internal/mailer"
	"github.com/iliyamo/event-booking/internal/queue"
	"github.com/iliyamo/event-booking/internal/repository"
	"github.com/iliyamo/event-booking/internal/router"
	"github.com/iliyamo/event-booking/internal/service"
)

// App holds the wired services.
type App struct {
	Config    config.Config
	Log       *logrus.Logger
	Store     repository.Store
	Gateway   gateway.Gateway
	Publisher service.Publisher

	Engine   *service.Engine
	Payments *service.PaymentEvents
	Waitlist *service.Waitlist
	Catalog  *service.Catalog
	Contact  *service.Contact
	Drainer  *service.EmailDrainer
}

// New opens the configured store (running migrations for MySQL) and builds
// every service on top of it.
func New(cfg config.Config, log *logrus.Logger) (*App, error) {
	store, err := openStore(cfg, log)
	if err != nil {
		return nil, err
	}
	gw, err := openGateway(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	var pub service.Publisher = queue.NopPublisher{}
	if cfg.EventsEnabled {
		pub = queue.NewPublisher(cfg.AMQPURL, log)
	}

	var sender service.EmailSender
	smtp, err := mailer.NewSMTP(cfg.SMTP)
	switch {
	case errors.Is(err, mailer.ErrNotConfigured):
		log.Warn("SMTP_HOST not set; queued emails stay pending")
	case err != nil:
		_ = store.Close()
		return nil, fmt.Errorf("smtp: %w", err)
	default:
		sender = smtp
	}

	alerts := service.NewAlerts(log, pub)
	outbox := service.NewOutbox(store, service.NewRenderer(cfg.PublicURL), cfg.Email, cfg.SMTP.ContactEmail)
	waitlist := service.NewWaitlist(store, outbox, cfg.Booking.WaitlistTTL, log)

	return &App{
		Config:    cfg,
		Log:       log,
		Store:     store,
		Gateway:   gw,
		Publisher: pub,
		Engine:    service.NewEngine(store, gw, waitlist, alerts, pub, cfg.Booking, log),
		Payments:  service.NewPaymentEvents(store, gw, outbox, waitlist, alerts, pub, log),
		Waitlist:  waitlist,
		Catalog:   service.NewCatalog(store, cfg.Booking, log),
		Contact:   service.NewContact(outbox),
		Drainer:   service.NewEmailDrainer(store, sender, cfg.Email, log),
	}, nil
}

// Handlers builds the HTTP handlers over the services.
func (a *App) Handlers() router.Handlers {
	return router.Handlers{
		Reservations: handler.NewReservationHandler(a.Engine, a.Log),
		Waitlist:     handler.NewWaitlistHandler(a.Waitlist, a.Log),
		Contact:      handler.NewContactHandler(a.Contact, a.Log),
		Webhooks:     handler.NewWebhookHandler(a.Payments, a.Log),
		Public:       handler.NewPublicHandler(a.Catalog, a.Log),
		Admin:        handler.NewAdminHandler(a.Engine, a.Catalog, a.Log),
	}
}

// Close releases the store.
func (a *App) Close() error { return a.Store.Close() }

// Ping checks the store.
func (a *App) Ping(ctx context.Context) error { return a.Store.Ping(ctx) }

func openStore(cfg config.Config, log *logrus.Logger) (repository.Store, error) {
	if cfg.StoreDriver == config.StoreMemory {
		log.Warn("using the in-memory store; data is lost on restart")
		return repository.NewMemoryStore(), nil
	}
	db, err := database.Open(DatabaseOptions(cfg))
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	if err := database.Migrate(db.DB, log); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return repository.NewMySQLStore(db), nil
}

func openGateway(cfg config.Config) (gateway.Gateway, error) {
	if cfg.PaymentGateway == config.GatewayFake {
		return gateway.NewFake(cfg.StripeWebhookSecret), nil
	}
	return gateway.NewStripe(cfg.StripeSecretKey, cfg.StripeWebhookSecret)
}

// DatabaseOptions maps the DB settings onto database.Options.
func DatabaseOptions(cfg config.Config) database.Options {
	return database.Options{
		User:            cfg.DB.User,
		Pass:            cfg.DB.Pass,
		Host:            cfg.DB.Host,
		Port:            cfg.DB.Port,
		Name:            cfg.DB.Name,
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
	}
}
