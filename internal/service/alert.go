package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/event-booking/internal/queue"
)

// Alert kinds raised to operators.
const (
	AlertOrphanedIntent   = "orphaned_payment_intent"
	AlertPaidAfterExpiry  = "paid_after_expiry"
	AlertRefundNotApplied = "refund_not_applied"
	AlertIntegrity        = "integrity"
	AlertCleanupFailed    = "cleanup_failed"
	AlertEmailEnqueue     = "email_enqueue_failed"
)

// Publisher is the outbound message bus.  queue.Publisher implements it.
type Publisher interface {
	PublishReservationEvent(ctx context.Context, ev queue.ReservationEvent) error
	PublishAlert(ctx context.Context, a queue.OpsAlert) error
}

// Alerts is the operator-visible sink for failures the request path has
// already recovered from.  Every alert is logged at Error and forwarded to
// the ops.alerts queue.
type Alerts struct {
	log *logrus.Logger
	pub Publisher
}

// NewAlerts returns a sink logging to log and publishing to pub.
func NewAlerts(log *logrus.Logger, pub Publisher) *Alerts {
	if pub == nil {
		pub = queue.NopPublisher{}
	}
	return &Alerts{log: log, pub: pub}
}

// Raise records an alert.  Publishing failures are logged only.
func (a *Alerts) Raise(ctx context.Context, kind, msg string, fields logrus.Fields) {
	a.log.WithFields(fields).WithField("alert", kind).Error(msg)

	flat := make(map[string]string, len(fields))
	for k, v := range fields {
		flat[k] = fmt.Sprint(v)
	}
	err := a.pub.PublishAlert(ctx, queue.OpsAlert{
		Kind:       kind,
		Message:    msg,
		Fields:     flat,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		a.log.WithError(err).WithField("alert", kind).Warn("alert publish failed")
	}
}
