package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/event-booking/internal/app"
	"github.com/iliyamo/event-booking/internal/config"
	"github.com/iliyamo/event-booking/internal/queue"
	"github.com/iliyamo/event-booking/internal/router"
	"github.com/iliyamo/event-booking/internal/scheduler"
)

func main() {
	cfg, err := config.Load() // Load environment config
	if err != nil {
		logrus.WithError(err).Fatal("config")
	}
	log := config.NewLogger(cfg)

	a, err := app.New(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("startup failed")
	}
	defer func() { _ = a.Close() }()

	rdb := config.NewRedisClient(log) // nil disables the limiter and the cache
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
	}

	e := router.New(a.Store, a.Handlers(), router.Options{
		JWTSecret: cfg.JWTSecret,
		RateLimit: config.LoadRateLimitConfig(),
		Cache:     config.LoadCacheConfig(),
		Redis:     rdb,
		Log:       log,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Port
		log.WithFields(logrus.Fields{"addr": addr, "env": cfg.Env, "store": cfg.StoreDriver, "gateway": cfg.PaymentGateway}).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})
	if cfg.Scheduler.Enabled {
		g.Go(func() error {
			scheduler.New(a.Engine, a.Drainer, cfg.Scheduler, log).Start(ctx)
			return nil
		})
	}
	if cfg.EventsEnabled {
		g.Go(func() error {
			return queue.NewAuditConsumer(cfg.AMQPURL, "logs", log).Run(ctx)
		})
	}

	if err := g.Wait(); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
	log.Info("shutdown complete")
}
