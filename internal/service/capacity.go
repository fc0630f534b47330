package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/iliyamo/event-booking/internal/model"
	"github.com/iliyamo/event-booking/internal/repository"
)

// Ledger owns every write to a session's available capacity.  Each method
// runs inside the caller's transaction and takes the session row lock
// before reading the counter; no capacity value is ever cached.
type Ledger struct{}

// Lock reads the session under its row lock.  A missing session is
// ErrNotFound.
func (Ledger) Lock(ctx context.Context, tx repository.Tx, sessionID string) (*model.EventSession, error) {
	s, err := tx.LockSession(ctx, sessionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock session: %w", err)
	}
	return s, nil
}

// Acquire takes qty tickets from a session already locked by Lock.  It
// fails ErrSoldOut when the locked read shows too little capacity and
// ErrRaceLost when the guarded decrement matches no row.
func (Ledger) Acquire(ctx context.Context, tx repository.Tx, s *model.EventSession, qty int) error {
	if s.AvailableCapacity < qty {
		return ErrSoldOut
	}
	ok, err := tx.ReserveCapacity(ctx, s.ID, qty)
	if err != nil {
		return fmt.Errorf("reserve capacity: %w", err)
	}
	if !ok {
		return ErrRaceLost
	}
	s.AvailableCapacity -= qty
	return nil
}

// Release returns qty tickets to the session, clamped to its total.  The
// caller must have locked the session and must call Release only after a
// guarded status transition succeeded, so each hold is released once.
func (Ledger) Release(ctx context.Context, tx repository.Tx, sessionID string, qty int) error {
	if qty <= 0 {
		return nil
	}
	if err := tx.ReleaseCapacity(ctx, sessionID, qty); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: session %s vanished while locked", ErrIntegrity, sessionID)
		}
		return fmt.Errorf("release capacity: %w", err)
	}
	return nil
}

// Resize sets a new total capacity on a locked session, keeping the sold
// count: available becomes total minus sold.  Total may never drop below
// the sold count.
func (Ledger) Resize(ctx context.Context, tx repository.Tx, s *model.EventSession, total int) error {
	sold := s.SoldCount()
	if total < sold {
		return fmt.Errorf("%w: %d sold, requested %d", ErrCapacityBelowSold, sold, total)
	}
	if err := tx.UpdateSessionCapacity(ctx, s.ID, total, total-sold); err != nil {
		return fmt.Errorf("update capacity: %w", err)
	}
	s.TotalCapacity, s.AvailableCapacity = total, total-sold
	return nil
}
