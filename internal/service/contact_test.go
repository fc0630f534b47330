package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/event-booking/internal/model"
)

func TestContactSubmit(t *testing.T) {
	f := newFixture(t)
	c := NewContact(f.outbox)

	err := c.Submit(f.ctx, ContactInput{Name: "Bot", Email: "b@x.io", Message: "buy", Honeypot: "http://spam"})
	assert.ErrorIs(t, err, ErrSpamDetected)

	err = c.Submit(f.ctx, ContactInput{Name: "Ann", Email: "", Message: "hi"})
	assert.ErrorIs(t, err, ErrValidation)
	assert.Empty(t, f.store.Emails())

	require.NoError(t, c.Submit(f.ctx, ContactInput{Name: "Ann", Email: "ann@x.io", Message: "Is there parking?"}))
	mails := f.emailsOfType(model.EmailContactNotification)
	require.Len(t, mails, 1)
	assert.Equal(t, "ops@example.com", mails[0].Recipient)
	assert.Contains(t, mails[0].TextBody, "Is there parking?")
	assert.Contains(t, *mails[0].Metadata, "ann@x.io")
}
