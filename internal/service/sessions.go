package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/event-booking/internal/config"
	"github.com/iliyamo/event-booking/internal/model"
	"github.com/iliyamo/event-booking/internal/repository"
)

// Session capacity bounds accepted by the admin API.
const (
	MinSessionCapacity = 1
	MaxSessionCapacity = 10000
)

// Catalog administers events and sessions and serves the public read
// models.
type Catalog struct {
	store      repository.Store
	ledger     Ledger
	currencies map[string]bool
	log        *logrus.Logger
	now        func() time.Time
}

// NewCatalog returns a Catalog accepting the configured currencies.
func NewCatalog(store repository.Store, cfg config.BookingConfig, log *logrus.Logger) *Catalog {
	cur := make(map[string]bool, len(cfg.SupportedCurrencies))
	for _, c := range cfg.SupportedCurrencies {
		cur[strings.ToUpper(c)] = true
	}
	return &Catalog{store: store, currencies: cur, log: log, now: time.Now}
}

// EventInput creates an event.
type EventInput struct {
	Title     string
	Slug      string
	Location  string
	VenueName string
}

func (c *Catalog) CreateEvent(ctx context.Context, in EventInput) (*model.Event, error) {
	title := strings.TrimSpace(in.Title)
	slug := strings.ToLower(strings.TrimSpace(in.Slug))
	if title == "" || slug == "" {
		return nil, fmt.Errorf("%w: title and slug are required", ErrValidation)
	}
	e := &model.Event{
		ID:        uuid.NewString(),
		Title:     title,
		Slug:      slug,
		Location:  strings.TrimSpace(in.Location),
		VenueName: strings.TrimSpace(in.VenueName),
	}
	if err := c.store.InsertEvent(ctx, e); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%w: slug already in use", ErrValidation)
		}
		return nil, err
	}
	return e, nil
}

// SessionInput creates a session.
type SessionInput struct {
	EventID       string
	Title         string
	StartTime     time.Time
	EndTime       time.Time
	TotalCapacity int
	PriceAmount   int64
	Currency      string
	Published     bool
	AllowWaitlist bool
}

// CreateSession validates the window, capacity, price and currency and
// stores the session with all of its capacity available.
func (c *Catalog) CreateSession(ctx context.Context, in SessionInput) (*model.EventSession, error) {
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	switch {
	case !in.EndTime.After(in.StartTime):
		return nil, fmt.Errorf("%w: end time must be after start time", ErrValidation)
	case in.TotalCapacity < MinSessionCapacity || in.TotalCapacity > MaxSessionCapacity:
		return nil, fmt.Errorf("%w: capacity must be between %d and %d", ErrValidation, MinSessionCapacity, MaxSessionCapacity)
	case in.PriceAmount < 0:
		return nil, fmt.Errorf("%w: price must not be negative", ErrValidation)
	case !c.currencies[currency]:
		return nil, fmt.Errorf("%w: unsupported currency %q", ErrValidation, in.Currency)
	}
	if _, err := c.store.GetEvent(ctx, in.EventID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	s := &model.EventSession{
		ID:                uuid.NewString(),
		EventID:           in.EventID,
		Title:             strings.TrimSpace(in.Title),
		StartTime:         in.StartTime.UTC(),
		EndTime:           in.EndTime.UTC(),
		TotalCapacity:     in.TotalCapacity,
		AvailableCapacity: in.TotalCapacity,
		PriceAmount:       in.PriceAmount,
		Currency:          currency,
		Published:         in.Published,
		AllowWaitlist:     in.AllowWaitlist,
	}
	if err := c.store.InsertSession(ctx, s); err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return s, nil
}

// UpdateCapacity changes a session's total capacity under the row lock.
func (c *Catalog) UpdateCapacity(ctx context.Context, sessionID string, total int) (*model.EventSession, error) {
	if total < MinSessionCapacity || total > MaxSessionCapacity {
		return nil, fmt.Errorf("%w: capacity must be between %d and %d", ErrValidation, MinSessionCapacity, MaxSessionCapacity)
	}
	var out model.EventSession
	err := c.store.WithTx(ctx, func(tx repository.Tx) error {
		s, err := c.ledger.Lock(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if err := c.ledger.Resize(ctx, tx, s, total); err != nil {
			return err
		}
		out = *s
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.log.WithFields(logrus.Fields{
		"event_session_id": sessionID,
		"total":            out.TotalCapacity,
		"available":        out.AvailableCapacity,
	}).Info("session capacity updated")
	return &out, nil
}

// DeleteSession removes a session that no pending, processing or confirmed
// reservation references.  Reservations still waiting on a payment would
// otherwise lose their row while the provider can still charge the guest.
func (c *Catalog) DeleteSession(ctx context.Context, sessionID string) error {
	return c.store.WithTx(ctx, func(tx repository.Tx) error {
		if _, err := c.ledger.Lock(ctx, tx, sessionID); err != nil {
			return err
		}
		n, err := tx.CountActiveReservations(ctx, sessionID)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: %d active reservations", ErrSessionInUse, n)
		}
		return tx.DeleteSession(ctx, sessionID)
	})
}

// GetPublicSession returns a published session or ErrNotFound.
func (c *Catalog) GetPublicSession(ctx context.Context, sessionID string) (*model.EventSession, error) {
	s, err := c.store.GetSession(ctx, sessionID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && !s.Published) {
		return nil, ErrNotFound
	}
	return s, err
}

// ListPublishedSessions returns the event's published sessions that have
// not started, by start time.
func (c *Catalog) ListPublishedSessions(ctx context.Context, eventID string) ([]model.EventSession, error) {
	all, err := c.store.ListSessionsByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	now := c.now().UTC()
	out := make([]model.EventSession, 0, len(all))
	for _, s := range all {
		if s.Published && s.StartTime.After(now) {
			out = append(out, s)
		}
	}
	return out, nil
}

// ListSessionsForAdmin returns every session of the event with sold and
// confirmed counts.
func (c *Catalog) ListSessionsForAdmin(ctx context.Context, eventID string) ([]model.SessionSummary, error) {
	if _, err := c.store.GetEvent(ctx, eventID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	all, err := c.store.ListSessionsByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	out := make([]model.SessionSummary, 0, len(all))
	for _, s := range all {
		n, err := c.store.CountConfirmedReservations(ctx, s.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, model.SessionSummary{EventSession: s, SoldCount: s.SoldCount(), ConfirmedBookings: n})
	}
	return out, nil
}
