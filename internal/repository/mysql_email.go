package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/event-booking/internal/model"
)

const emailColumns = `id, type, recipient, subject, text_body, html_body, metadata, status,
	attempts, max_attempts, last_error, last_attempt_at, sent_at, created_at`

const insertEmail = `INSERT INTO email_queue (` + emailColumns + `)
	VALUES (:id, :type, :recipient, :subject, :text_body, :html_body, :metadata, :status,
	        :attempts, :max_attempts, :last_error, :last_attempt_at, :sent_at, :created_at)`

func (s *MySQLStore) EnqueueEmail(ctx context.Context, m *model.EmailMessage) error {
	return enqueueEmail(ctx, s.db, m)
}

func (t *mysqlTx) EnqueueEmail(ctx context.Context, m *model.EmailMessage) error {
	return enqueueEmail(ctx, t.tx, m)
}

func enqueueEmail(ctx context.Context, e sqlx.ExtContext, m *model.EmailMessage) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if m.Status == "" {
		m.Status = model.EmailPending
	}
	_, err := sqlx.NamedExecContext(ctx, e, insertEmail, m)
	return translate(err)
}

func (s *MySQLStore) ListDueEmails(ctx context.Context, now time.Time, retryBase time.Duration, limit int) ([]model.EmailMessage, error) {
	out := []model.EmailMessage{}
	err := s.db.SelectContext(ctx, &out,
		`SELECT `+emailColumns+` FROM email_queue
		  WHERE status = ? AND attempts < max_attempts
		    AND (last_attempt_at IS NULL
		         OR TIMESTAMPADD(SECOND, CAST(? * POW(2, attempts) AS SIGNED), last_attempt_at) <= ?)
		  ORDER BY created_at, id LIMIT ?`,
		model.EmailPending, int64(retryBase/time.Second), now, limit)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *MySQLStore) MarkEmailSent(ctx context.Context, id string, at time.Time) error {
	return mustAffect(s.db.ExecContext(ctx,
		`UPDATE email_queue
		    SET status = ?, sent_at = ?, last_attempt_at = ?, attempts = attempts + 1
		  WHERE id = ?`,
		model.EmailSent, at, at, id))
}

// MarkEmailAttemptFailed evaluates the status before the attempts
// increment; MySQL applies single-table SET clauses left to right.
func (s *MySQLStore) MarkEmailAttemptFailed(ctx context.Context, id, reason string, at time.Time) error {
	return mustAffect(s.db.ExecContext(ctx,
		`UPDATE email_queue
		    SET status = IF(attempts + 1 >= max_attempts, ?, status),
		        attempts = attempts + 1, last_error = ?, last_attempt_at = ?
		  WHERE id = ?`,
		model.EmailFailed, reason, at, id))
}
