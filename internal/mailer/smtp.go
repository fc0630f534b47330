// Package mailer delivers queued email over SMTP.
package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/iliyamo/event-booking/internal/config"
	"github.com/iliyamo/event-booking/internal/model"
)

var ErrNotConfigured = errors.New("smtp not configured")

// SMTP sends one message per connection.  The drainer calls it at most
// once per queued message per pass, so pooling would not pay off.
type SMTP struct {
	cfg     config.SMTPConfig
	timeout time.Duration
}

// NewSMTP returns a sender for cfg, or ErrNotConfigured when no relay is
// set.
func NewSMTP(cfg config.SMTPConfig) (*SMTP, error) {
	if !cfg.Configured() {
		return nil, ErrNotConfigured
	}
	return &SMTP{cfg: cfg, timeout: 15 * time.Second}, nil
}

// Send delivers m.  Port 465 uses implicit TLS; other ports require
// STARTTLS unless no credentials are configured.
func (s *SMTP) Send(ctx context.Context, m model.EmailMessage) error {
	msg, err := s.build(m)
	if err != nil {
		return err
	}
	c, err := mail.NewClient(s.cfg.Host, s.options()...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := c.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func (s *SMTP) options() []mail.Option {
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithTimeout(s.timeout),
	}
	switch {
	case s.cfg.Port == 465:
		opts = append(opts, mail.WithSSLPort(false))
	case s.cfg.User == "":
		opts = append(opts, mail.WithTLSPortPolicy(mail.TLSOpportunistic))
	default:
		opts = append(opts, mail.WithTLSPortPolicy(mail.TLSMandatory))
	}
	if s.cfg.User != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.User),
			mail.WithPassword(s.cfg.Password),
		)
	}
	return opts
}

// build turns a queued row into a multipart message.  A reply_to entry in
// the metadata becomes the Reply-To header.
func (s *SMTP) build(m model.EmailMessage) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.FromFormat(s.cfg.FromName, s.cfg.FromEmail); err != nil {
		return nil, fmt.Errorf("from address: %w", err)
	}
	if err := msg.To(m.Recipient); err != nil {
		return nil, fmt.Errorf("recipient %q: %w", m.Recipient, err)
	}
	if m.Metadata != nil {
		var meta map[string]string
		if json.Unmarshal([]byte(*m.Metadata), &meta) == nil && meta["reply_to"] != "" {
			if err := msg.ReplyTo(meta["reply_to"]); err != nil {
				return nil, fmt.Errorf("reply-to: %w", err)
			}
		}
	}
	msg.Subject(m.Subject)
	msg.SetMessageIDWithValue(m.ID + "@" + s.cfg.Host)
	msg.SetBodyString(mail.TypeTextPlain, m.TextBody)
	if m.HTMLBody != "" {
		msg.AddAlternativeString(mail.TypeTextHTML, m.HTMLBody)
	}
	return msg, nil
}
