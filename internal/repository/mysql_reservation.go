package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/event-booking/internal/model"
)

const reservationColumns = `id, event_session_id, guest_email, guest_name, guest_phone, user_id,
	quantity, total_amount, currency, status, access_token, expires_at, confirmed_at,
	cancelled_at, ip_address, user_agent, created_at, updated_at`

const paymentColumns = `id, reservation_id, payment_intent_id, client_secret, amount, currency,
	status, refunded_amount, idempotency_key, last_error, webhook_processed_at,
	created_at, updated_at`

func (r reader) GetReservation(ctx context.Context, id string) (*model.Reservation, error) {
	var res model.Reservation
	err := sqlx.GetContext(ctx, r.q, &res, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id)
	if err != nil {
		return nil, translate(err)
	}
	return &res, nil
}

func (r reader) GetReservationDetail(ctx context.Context, id string) (*model.ReservationDetail, error) {
	res, err := r.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	return loadDetail(ctx, r, res)
}

func (r reader) GetReservationDetailByToken(ctx context.Context, token string) (*model.ReservationDetail, error) {
	var res model.Reservation
	err := sqlx.GetContext(ctx, r.q, &res,
		`SELECT `+reservationColumns+` FROM reservations WHERE access_token = ?`, token)
	if err != nil {
		return nil, translate(err)
	}
	return loadDetail(ctx, r, &res)
}

func (r reader) GetPaymentByIntent(ctx context.Context, intentID string) (*model.Payment, error) {
	var p model.Payment
	err := sqlx.GetContext(ctx, r.q, &p,
		`SELECT `+paymentColumns+` FROM payments WHERE payment_intent_id = ?`, intentID)
	if err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (r reader) GetPaymentByReservation(ctx context.Context, reservationID string) (*model.Payment, error) {
	var p model.Payment
	err := sqlx.GetContext(ctx, r.q, &p,
		`SELECT `+paymentColumns+` FROM payments WHERE reservation_id = ?`, reservationID)
	if err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (r reader) ListExpiredReservations(ctx context.Context, now time.Time, limit int) ([]model.ExpiredReservation, error) {
	var rows []model.Reservation
	err := sqlx.SelectContext(ctx, r.q, &rows,
		`SELECT `+reservationColumns+` FROM reservations
		  WHERE status = ? AND expires_at < ?
		  ORDER BY expires_at, id LIMIT ?`,
		model.ReservationPending, now, limit)
	if err != nil {
		return nil, err
	}
	out := make([]model.ExpiredReservation, 0, len(rows))
	if len(rows) == 0 {
		return out, nil
	}

	ids := make([]string, len(rows))
	for i, res := range rows {
		ids[i] = res.ID
	}
	q, args, err := sqlx.In(`SELECT `+paymentColumns+` FROM payments WHERE reservation_id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	var payments []model.Payment
	if err := sqlx.SelectContext(ctx, r.q, &payments, r.q.Rebind(q), args...); err != nil {
		return nil, err
	}
	byReservation := make(map[string]model.Payment, len(payments))
	for _, p := range payments {
		byReservation[p.ReservationID] = p
	}
	for _, res := range rows {
		item := model.ExpiredReservation{Reservation: res}
		if p, ok := byReservation[res.ID]; ok {
			item.Payment = &p
		}
		out = append(out, item)
	}
	return out, nil
}

func (t *mysqlTx) InsertReservation(ctx context.Context, res *model.Reservation) error {
	now := time.Now().UTC()
	res.CreatedAt, res.UpdatedAt = now, now
	_, err := t.tx.NamedExecContext(ctx,
		`INSERT INTO reservations (`+reservationColumns+`)
		 VALUES (:id, :event_session_id, :guest_email, :guest_name, :guest_phone, :user_id,
		         :quantity, :total_amount, :currency, :status, :access_token, :expires_at,
		         :confirmed_at, :cancelled_at, :ip_address, :user_agent, :created_at, :updated_at)`, res)
	return translate(err)
}

func (t *mysqlTx) TransitionReservation(ctx context.Context, id string, from []model.ReservationStatus, to model.ReservationStatus, at time.Time) (bool, error) {
	set := `status = ?, updated_at = ?`
	args := []interface{}{to, at}
	switch to {
	case model.ReservationConfirmed:
		set += `, confirmed_at = ?`
		args = append(args, at)
	case model.ReservationCancelled:
		set += `, cancelled_at = ?`
		args = append(args, at)
	}
	states := make([]string, len(from))
	for i, s := range from {
		states[i] = string(s)
	}
	args = append(args, id, states)
	q, args, err := sqlx.In(`UPDATE reservations SET `+set+` WHERE id = ? AND status IN (?)`, args...)
	if err != nil {
		return false, err
	}
	return affected(t.tx.ExecContext(ctx, t.tx.Rebind(q), args...))
}

func (t *mysqlTx) LockPaymentByIntent(ctx context.Context, intentID string) (*model.Payment, error) {
	var p model.Payment
	err := t.tx.GetContext(ctx, &p,
		`SELECT `+paymentColumns+` FROM payments WHERE payment_intent_id = ? FOR UPDATE`, intentID)
	if err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (t *mysqlTx) InsertPayment(ctx context.Context, p *model.Payment) error {
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	_, err := t.tx.NamedExecContext(ctx,
		`INSERT INTO payments (`+paymentColumns+`)
		 VALUES (:id, :reservation_id, :payment_intent_id, :client_secret, :amount, :currency,
		         :status, :refunded_amount, :idempotency_key, :last_error, :webhook_processed_at,
		         :created_at, :updated_at)`, p)
	return translate(err)
}

func (t *mysqlTx) UpdatePayment(ctx context.Context, p *model.Payment) error {
	p.UpdatedAt = time.Now().UTC()
	res, err := t.tx.NamedExecContext(ctx,
		`UPDATE payments
		    SET status = :status, refunded_amount = :refunded_amount, last_error = :last_error,
		        webhook_processed_at = :webhook_processed_at, updated_at = :updated_at
		  WHERE id = :id`, p)
	return mustAffect(res, err)
}
