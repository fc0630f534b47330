package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/event-booking/internal/model"
	"github.com/iliyamo/event-booking/internal/repository"
)

// Waitlist manages waitlist entries and hands freed capacity to them in
// arrival order.
type Waitlist struct {
	store  repository.Store
	outbox *Outbox
	ttl    time.Duration
	log    *logrus.Logger
	now    func() time.Time
}

// NewWaitlist returns a Waitlist whose entries live for ttl.
func NewWaitlist(store repository.Store, outbox *Outbox, ttl time.Duration, log *logrus.Logger) *Waitlist {
	return &Waitlist{store: store, outbox: outbox, ttl: ttl, log: log, now: time.Now}
}

// JoinInput is a request to be notified about a session.
type JoinInput struct {
	SessionID string
	Email     string
	Name      string
	Phone     *string
	Quantity  int
}

// Join adds an entry for the session.  It fails ErrWaitlistDisabled when the
// session does not take a waitlist and ErrAlreadyWaitlisted when the email
// already holds an open entry for it.
func (w *Waitlist) Join(ctx context.Context, in JoinInput) (*model.WaitlistEntry, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if in.Quantity < 1 || email == "" || strings.TrimSpace(in.Name) == "" {
		return nil, ErrValidation
	}
	s, err := w.store.GetSession(ctx, in.SessionID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && !s.Published) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !s.AllowWaitlist {
		return nil, ErrWaitlistDisabled
	}

	now := w.now().UTC()
	exists, err := w.store.HasOpenWaitlistEntry(ctx, s.ID, email, now)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrAlreadyWaitlisted
	}

	e := &model.WaitlistEntry{
		ID:             uuid.NewString(),
		EventSessionID: s.ID,
		Email:          email,
		Name:           strings.TrimSpace(in.Name),
		Phone:          in.Phone,
		Quantity:       in.Quantity,
		ExpiresAt:      now.Add(w.ttl),
		CreatedAt:      now,
	}
	if err := w.store.InsertWaitlistEntry(ctx, e); err != nil {
		return nil, fmt.Errorf("insert waitlist entry: %w", err)
	}
	return e, nil
}

// SelectEntries picks, in order, the entries whose quantities fit in
// capacity.  An entry larger than the remaining budget is skipped; the scan
// stops once the budget reaches zero.
func SelectEntries(entries []model.WaitlistEntry, capacity int) []model.WaitlistEntry {
	var out []model.WaitlistEntry
	remaining := capacity
	for _, e := range entries {
		if remaining <= 0 {
			break
		}
		if e.Quantity > remaining {
			continue
		}
		out = append(out, e)
		remaining -= e.Quantity
	}
	return out
}

// Notify offers capacity freed on a session to the waitlist.  Each selected
// entry is claimed with a compare-and-swap on its notified flag and only a
// successful claim queues the email, so concurrent releases never notify
// the same entry twice.  It returns the number of entries notified.
func (w *Waitlist) Notify(ctx context.Context, sessionID string, capacity int) (int, error) {
	if capacity <= 0 {
		return 0, nil
	}
	now := w.now().UTC()
	entries, err := w.store.ListOpenWaitlist(ctx, sessionID, now)
	if err != nil {
		return 0, fmt.Errorf("list waitlist: %w", err)
	}
	selected := SelectEntries(entries, capacity)
	if len(selected) == 0 {
		return 0, nil
	}

	s, err := w.store.GetSession(ctx, sessionID)
	if err != nil {
		return 0, fmt.Errorf("load session: %w", err)
	}
	ev, err := w.store.GetEvent(ctx, s.EventID)
	if err != nil {
		return 0, fmt.Errorf("load event: %w", err)
	}

	notified := 0
	for _, e := range selected {
		claimed, err := w.store.ClaimWaitlistEntry(ctx, e.ID, now)
		if err != nil {
			return notified, fmt.Errorf("claim waitlist entry %s: %w", e.ID, err)
		}
		if !claimed {
			continue
		}
		notified++
		if err := w.outbox.WaitlistAvailable(ctx, e, *s, *ev); err != nil {
			w.log.WithError(err).WithFields(logrus.Fields{
				"waitlist_entry_id": e.ID,
				"event_session_id":  sessionID,
			}).Error("queue waitlist email")
		}
	}
	w.log.WithFields(logrus.Fields{
		"event_session_id": sessionID,
		"capacity":         capacity,
		"notified":         notified,
	}).Info("waitlist notified")
	return notified, nil
}
