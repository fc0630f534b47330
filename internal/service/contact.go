package service

import (
	"context"
	"fmt"
	"strings"
)

// Contact forwards contact form submissions to the operator inbox through
// the email queue.
type Contact struct {
	outbox *Outbox
}

func NewContact(outbox *Outbox) *Contact { return &Contact{outbox: outbox} }

// ContactInput is a contact form submission.  Honeypot is a hidden field
// that humans leave empty.
type ContactInput struct {
	Name     string
	Email    string
	Message  string
	Honeypot string
}

func (c *Contact) Submit(ctx context.Context, in ContactInput) error {
	if in.Honeypot != "" {
		return ErrSpamDetected
	}
	name, email, msg := strings.TrimSpace(in.Name), strings.TrimSpace(in.Email), strings.TrimSpace(in.Message)
	if name == "" || email == "" || msg == "" {
		return fmt.Errorf("%w: name, email and message are required", ErrValidation)
	}
	return c.outbox.ContactNotification(ctx, name, email, msg)
}
