package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/event-booking/internal/model"
)

const eventColumns = `id, title, slug, location, venue_name, created_at`

const sessionColumns = `id, event_id, title, start_time, end_time, total_capacity,
	available_capacity, price_amount, currency, published, allow_waitlist,
	created_at, updated_at`

func (r reader) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	var e model.Event
	err := sqlx.GetContext(ctx, r.q, &e, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	if err != nil {
		return nil, translate(err)
	}
	return &e, nil
}

func (r reader) GetSession(ctx context.Context, id string) (*model.EventSession, error) {
	var s model.EventSession
	err := sqlx.GetContext(ctx, r.q, &s, `SELECT `+sessionColumns+` FROM event_sessions WHERE id = ?`, id)
	if err != nil {
		return nil, translate(err)
	}
	return &s, nil
}

func (r reader) ListSessionsByEvent(ctx context.Context, eventID string) ([]model.EventSession, error) {
	out := []model.EventSession{}
	err := sqlx.SelectContext(ctx, r.q, &out,
		`SELECT `+sessionColumns+` FROM event_sessions WHERE event_id = ? ORDER BY start_time, id`, eventID)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r reader) CountConfirmedReservations(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, r.q, &n,
		`SELECT COUNT(*) FROM reservations WHERE event_session_id = ? AND status = ?`,
		sessionID, model.ReservationConfirmed)
	return n, err
}

func (r reader) CountActiveReservations(ctx context.Context, sessionID string) (int, error) {
	q, args, err := sqlx.In(`SELECT COUNT(*) FROM reservations WHERE event_session_id = ? AND status IN (?)`,
		sessionID, []string{
			string(model.ReservationPending),
			string(model.ReservationProcessing),
			string(model.ReservationConfirmed),
		})
	if err != nil {
		return 0, err
	}
	var n int
	err = sqlx.GetContext(ctx, r.q, &n, r.q.Rebind(q), args...)
	return n, err
}

// InsertEvent stores a new event.  CreatedAt defaults to now.
func (s *MySQLStore) InsertEvent(ctx context.Context, e *model.Event) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO events (`+eventColumns+`)
		 VALUES (:id, :title, :slug, :location, :venue_name, :created_at)`, e)
	return translate(err)
}

// InsertSession stores a new session.  The caller sets AvailableCapacity.
func (s *MySQLStore) InsertSession(ctx context.Context, es *model.EventSession) error {
	now := time.Now().UTC()
	if es.CreatedAt.IsZero() {
		es.CreatedAt = now
	}
	es.UpdatedAt = now
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO event_sessions (`+sessionColumns+`)
		 VALUES (:id, :event_id, :title, :start_time, :end_time, :total_capacity,
		         :available_capacity, :price_amount, :currency, :published, :allow_waitlist,
		         :created_at, :updated_at)`, es)
	return translate(err)
}

// LockSession takes the per-session row lock.  It is the only entry point
// to capacity decisions.
func (t *mysqlTx) LockSession(ctx context.Context, id string) (*model.EventSession, error) {
	var s model.EventSession
	err := t.tx.GetContext(ctx, &s,
		`SELECT `+sessionColumns+` FROM event_sessions WHERE id = ? FOR UPDATE`, id)
	if err != nil {
		return nil, translate(err)
	}
	return &s, nil
}

// ReserveCapacity re-checks the guard in the UPDATE itself so a second
// transaction that read the same counter cannot drive it negative.
func (t *mysqlTx) ReserveCapacity(ctx context.Context, sessionID string, qty int) (bool, error) {
	return affected(t.tx.ExecContext(ctx,
		`UPDATE event_sessions
		    SET available_capacity = available_capacity - ?, updated_at = ?
		  WHERE id = ? AND available_capacity >= ?`,
		qty, time.Now().UTC(), sessionID, qty))
}

func (t *mysqlTx) ReleaseCapacity(ctx context.Context, sessionID string, qty int) error {
	return mustAffect(t.tx.ExecContext(ctx,
		`UPDATE event_sessions
		    SET available_capacity = LEAST(available_capacity + ?, total_capacity), updated_at = ?
		  WHERE id = ?`,
		qty, time.Now().UTC(), sessionID))
}

func (t *mysqlTx) UpdateSessionCapacity(ctx context.Context, sessionID string, total, available int) error {
	return mustAffect(t.tx.ExecContext(ctx,
		`UPDATE event_sessions SET total_capacity = ?, available_capacity = ?, updated_at = ? WHERE id = ?`,
		total, available, time.Now().UTC(), sessionID))
}

// DeleteSession removes the session together with its unconfirmed
// reservations, payments and waitlist entries.
func (t *mysqlTx) DeleteSession(ctx context.Context, id string) error {
	stmts := []string{
		`DELETE p FROM payments p JOIN reservations r ON r.id = p.reservation_id WHERE r.event_session_id = ?`,
		`DELETE FROM reservations WHERE event_session_id = ?`,
		`DELETE FROM waitlist_entries WHERE event_session_id = ?`,
	}
	for _, q := range stmts {
		if _, err := t.tx.ExecContext(ctx, q, id); err != nil {
			return err
		}
	}
	return mustAffect(t.tx.ExecContext(ctx, `DELETE FROM event_sessions WHERE id = ?`, id))
}
