package model

import "time"

// EmailType classifies outbound messages.
type EmailType string

const (
	EmailTicketConfirmation  EmailType = "ticket_confirmation"
	EmailContactNotification EmailType = "contact_notification"
)

// EmailStatus is the delivery state of a queued message.
type EmailStatus string

const (
	EmailPending EmailStatus = "pending"
	EmailSent    EmailStatus = "sent"
	EmailFailed  EmailStatus = "failed"
)

// EmailMessage is a row of the outbound email queue.  Metadata holds a
// JSON object describing what triggered the message.
type EmailMessage struct {
	ID            string      `db:"id"`
	Type          EmailType   `db:"type"`
	Recipient     string      `db:"recipient"`
	Subject       string      `db:"subject"`
	TextBody      string      `db:"text_body"`
	HTMLBody      string      `db:"html_body"`
	Metadata      *string     `db:"metadata"`
	Status        EmailStatus `db:"status"`
	Attempts      int         `db:"attempts"`
	MaxAttempts   int         `db:"max_attempts"`
	LastError     *string     `db:"last_error"`
	LastAttemptAt *time.Time  `db:"last_attempt_at"`
	SentAt        *time.Time  `db:"sent_at"`
	CreatedAt     time.Time   `db:"created_at"`
}
