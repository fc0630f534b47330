// Package scheduler drives the periodic background jobs: the expired
// reservation sweep and the outbound email queue.
package scheduler

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/event-booking/internal/config"
	"github.com/iliyamo/event-booking/internal/service"
)

type reservationCleaner interface {
	CleanupExpired(ctx context.Context) (service.CleanupResult, error)
}

type emailDrainer interface {
	DrainOnce(ctx context.Context) (service.DrainResult, error)
}

type Scheduler struct {
	cleaner         reservationCleaner
	drainer         emailDrainer
	cleanupInterval time.Duration
	emailInterval   time.Duration
	log             *logrus.Logger
}

func New(cleaner reservationCleaner, drainer emailDrainer, cfg config.SchedulerConfig, log *logrus.Logger) *Scheduler {
	return &Scheduler{
		cleaner:         cleaner,
		drainer:         drainer,
		cleanupInterval: cfg.CleanupInterval,
		emailInterval:   cfg.EmailInterval,
		log:             log,
	}
}

// Start runs both jobs until ctx is cancelled.  A job whose interval is not
// positive is not started.  Ticks never overlap within one job.
func (s *Scheduler) Start(ctx context.Context) {
	s.log.WithFields(logrus.Fields{
		"cleanup_interval": s.cleanupInterval.String(),
		"email_interval":   s.emailInterval.String(),
	}).Info("scheduler started")

	g, ctx := errgroup.WithContext(ctx)
	if s.cleaner != nil && s.cleanupInterval > 0 {
		g.Go(func() error { s.every(ctx, s.cleanupInterval, s.cleanup); return nil })
	}
	if s.drainer != nil && s.emailInterval > 0 {
		g.Go(func() error { s.every(ctx, s.emailInterval, s.drain); return nil })
	}
	_ = g.Wait()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) every(ctx context.Context, interval time.Duration, tick func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick(ctx)
		}
	}
}

func (s *Scheduler) cleanup(ctx context.Context) {
	res, err := s.cleaner.CleanupExpired(ctx)
	if err != nil {
		s.log.WithError(err).Error("cleanup expired reservations failed")
		return
	}
	for _, e := range res.Errors {
		s.log.WithError(e).Warn("cleanup item failed")
	}
}

func (s *Scheduler) drain(ctx context.Context) {
	res, err := s.drainer.DrainOnce(ctx)
	if err != nil {
		s.log.WithError(err).Error("email queue drain failed")
		return
	}
	if res.Processed > 0 {
		s.log.WithFields(logrus.Fields{
			"processed": res.Processed,
			"sent":      res.Sent,
			"failed":    res.Failed,
		}).Info("email queue drained")
	}
}
