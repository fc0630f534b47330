package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/event-booking/internal/model"
)

const waitlistColumns = `id, event_session_id, email, name, phone, quantity, notified,
	notified_at, expires_at, created_at`

func (r reader) ListOpenWaitlist(ctx context.Context, sessionID string, now time.Time) ([]model.WaitlistEntry, error) {
	out := []model.WaitlistEntry{}
	err := sqlx.SelectContext(ctx, r.q, &out,
		`SELECT `+waitlistColumns+` FROM waitlist_entries
		  WHERE event_session_id = ? AND notified = FALSE AND expires_at > ?
		  ORDER BY created_at, seq`, sessionID, now)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r reader) HasOpenWaitlistEntry(ctx context.Context, sessionID, email string, now time.Time) (bool, error) {
	var n int
	err := sqlx.GetContext(ctx, r.q, &n,
		`SELECT COUNT(*) FROM waitlist_entries
		  WHERE event_session_id = ? AND email = ? AND notified = FALSE AND expires_at > ?`,
		sessionID, email, now)
	return n > 0, err
}

func (s *MySQLStore) InsertWaitlistEntry(ctx context.Context, e *model.WaitlistEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO waitlist_entries (`+waitlistColumns+`)
		 VALUES (:id, :event_session_id, :email, :name, :phone, :quantity, :notified,
		         :notified_at, :expires_at, :created_at)`, e)
	return translate(err)
}

// ClaimWaitlistEntry is a compare-and-swap on the notified flag.
func (s *MySQLStore) ClaimWaitlistEntry(ctx context.Context, id string, at time.Time) (bool, error) {
	return affected(s.db.ExecContext(ctx,
		`UPDATE waitlist_entries SET notified = TRUE, notified_at = ? WHERE id = ? AND notified = FALSE`,
		at, id))
}
