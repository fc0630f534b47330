package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/event-booking/internal/config"
	"github.com/iliyamo/event-booking/internal/model"
	"github.com/iliyamo/event-booking/internal/repository"
)

// EmailSender delivers one queued message.  mailer.SMTP implements it.
type EmailSender interface {
	Send(ctx context.Context, m model.EmailMessage) error
}

// Outbox writes messages to the durable email queue.  Nothing on the
// reservation or webhook path sends mail directly.
type Outbox struct {
	store        repository.Store
	render       *Renderer
	maxAttempts  int
	contactEmail string
}

// NewOutbox returns an Outbox queueing with the configured retry budget.
func NewOutbox(store repository.Store, render *Renderer, cfg config.EmailQueueConfig, contactEmail string) *Outbox {
	return &Outbox{store: store, render: render, maxAttempts: cfg.MaxAttempts, contactEmail: contactEmail}
}

// Enqueue queues a message of type typ.  metadata is stored as JSON.
func (o *Outbox) Enqueue(ctx context.Context, typ model.EmailType, recipient string, r Rendered, metadata map[string]string) error {
	m := &model.EmailMessage{
		ID:          uuid.NewString(),
		Type:        typ,
		Recipient:   recipient,
		Subject:     r.Subject,
		TextBody:    r.Text,
		HTMLBody:    r.HTML,
		Status:      model.EmailPending,
		MaxAttempts: o.maxAttempts,
	}
	if len(metadata) > 0 {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return err
		}
		s := string(raw)
		m.Metadata = &s
	}
	if err := o.store.EnqueueEmail(ctx, m); err != nil {
		return fmt.Errorf("enqueue %s email: %w", typ, err)
	}
	return nil
}

// TicketConfirmation queues the ticket email for a confirmed reservation.
func (o *Outbox) TicketConfirmation(ctx context.Context, d *model.ReservationDetail) error {
	r, err := o.render.TicketConfirmation(d)
	if err != nil {
		return fmt.Errorf("render ticket email: %w", err)
	}
	return o.Enqueue(ctx, model.EmailTicketConfirmation, d.Reservation.GuestEmail, r, map[string]string{
		"reservation_id": d.Reservation.ID,
	})
}

// WaitlistAvailable queues the availability notice for a waitlist entry.
func (o *Outbox) WaitlistAvailable(ctx context.Context, e model.WaitlistEntry, s model.EventSession, ev model.Event) error {
	r, err := o.render.WaitlistAvailable(e, s, ev)
	if err != nil {
		return fmt.Errorf("render waitlist email: %w", err)
	}
	return o.Enqueue(ctx, model.EmailContactNotification, e.Email, r, map[string]string{
		"waitlist_entry_id": e.ID,
		"event_session_id":  s.ID,
	})
}

// ContactNotification forwards a contact form submission to the operator
// inbox.
func (o *Outbox) ContactNotification(ctx context.Context, name, email, message string) error {
	if o.contactEmail == "" {
		return fmt.Errorf("%w: CONTACT_EMAIL not configured", ErrValidation)
	}
	r, err := o.render.ContactNotification(name, email, message)
	if err != nil {
		return fmt.Errorf("render contact email: %w", err)
	}
	return o.Enqueue(ctx, model.EmailContactNotification, o.contactEmail, r, map[string]string{
		"reply_to": email,
	})
}

// DrainResult summarises one pass over the email queue.
type DrainResult struct {
	Processed int
	Sent      int
	Failed    int
}

// EmailDrainer sends due messages from the queue with exponential backoff.
type EmailDrainer struct {
	store  repository.Store
	sender EmailSender
	cfg    config.EmailQueueConfig
	log    *logrus.Logger
	now    func() time.Time
}

// NewEmailDrainer returns a drainer.  A nil sender makes DrainOnce a no-op,
// leaving messages pending until SMTP is configured.
func NewEmailDrainer(store repository.Store, sender EmailSender, cfg config.EmailQueueConfig, log *logrus.Logger) *EmailDrainer {
	return &EmailDrainer{store: store, sender: sender, cfg: cfg, log: log, now: time.Now}
}

// DrainOnce sends up to BatchSize due messages.  A failed send increments
// the attempt counter; the message turns failed at MaxAttempts.  Per-message
// failures never abort the pass.
func (d *EmailDrainer) DrainOnce(ctx context.Context) (DrainResult, error) {
	var res DrainResult
	if d.sender == nil {
		return res, nil
	}
	due, err := d.store.ListDueEmails(ctx, d.now().UTC(), d.cfg.RetryBase, d.cfg.BatchSize)
	if err != nil {
		return res, fmt.Errorf("list due emails: %w", err)
	}
	for _, m := range due {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		res.Processed++
		entry := d.log.WithFields(logrus.Fields{"email_id": m.ID, "type": m.Type, "attempt": m.Attempts + 1})

		if sendErr := d.sender.Send(ctx, m); sendErr != nil {
			res.Failed++
			entry.WithError(sendErr).Warn("email send failed")
			if err := d.store.MarkEmailAttemptFailed(ctx, m.ID, sendErr.Error(), d.now().UTC()); err != nil {
				entry.WithError(err).Error("record email failure")
			}
			continue
		}
		res.Sent++
		if err := d.store.MarkEmailSent(ctx, m.ID, d.now().UTC()); err != nil {
			entry.WithError(err).Error("mark email sent")
		}
	}
	return res, nil
}
