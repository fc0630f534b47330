package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/event-booking/internal/model"
)

// MemoryStore is an in-process Store used by tests and demo mode.
// Transactions are serialized by a single mutex and roll back by restoring
// a snapshot, which gives the same observable capacity guarantees as the
// row lock in MySQL.
//
// Callbacks passed to WithTx must only use the Tx they receive; calling
// back into the MemoryStore from inside a transaction deadlocks.
type MemoryStore struct {
	mu sync.Mutex
	st *memState
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Tx    = (*memTx)(nil)
)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{st: newMemState()}
}

type memState struct {
	events       map[string]model.Event
	sessions     map[string]model.EventSession
	reservations map[string]model.Reservation
	payments     map[string]model.Payment
	waitlist     []model.WaitlistEntry
	emails       []model.EmailMessage
}

func newMemState() *memState {
	return &memState{
		events:       map[string]model.Event{},
		sessions:     map[string]model.EventSession{},
		reservations: map[string]model.Reservation{},
		payments:     map[string]model.Payment{},
	}
}

func (m *memState) clone() *memState {
	c := newMemState()
	for k, v := range m.events {
		c.events[k] = v
	}
	for k, v := range m.sessions {
		c.sessions[k] = v
	}
	for k, v := range m.reservations {
		c.reservations[k] = v
	}
	for k, v := range m.payments {
		c.payments[k] = v
	}
	c.waitlist = append([]model.WaitlistEntry(nil), m.waitlist...)
	c.emails = append([]model.EmailMessage(nil), m.emails...)
	return c
}

func (s *MemoryStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.st.clone()
	committed := false
	defer func() {
		if !committed {
			s.st = snapshot
		}
	}()
	if err := fn(&memTx{memState: s.st}); err != nil {
		return err
	}
	committed = true
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

func (s *MemoryStore) Close() error { return nil }

// locked runs fn against the current state under the store mutex.
func (s *MemoryStore) locked(fn func(st *memState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.st)
}

func (s *MemoryStore) GetEvent(ctx context.Context, id string) (e *model.Event, err error) {
	s.locked(func(st *memState) { e, err = st.GetEvent(ctx, id) })
	return
}

func (s *MemoryStore) GetSession(ctx context.Context, id string) (es *model.EventSession, err error) {
	s.locked(func(st *memState) { es, err = st.GetSession(ctx, id) })
	return
}

func (s *MemoryStore) ListSessionsByEvent(ctx context.Context, eventID string) (out []model.EventSession, err error) {
	s.locked(func(st *memState) { out, err = st.ListSessionsByEvent(ctx, eventID) })
	return
}

func (s *MemoryStore) GetReservation(ctx context.Context, id string) (r *model.Reservation, err error) {
	s.locked(func(st *memState) { r, err = st.GetReservation(ctx, id) })
	return
}

func (s *MemoryStore) GetReservationDetail(ctx context.Context, id string) (d *model.ReservationDetail, err error) {
	s.locked(func(st *memState) { d, err = st.GetReservationDetail(ctx, id) })
	return
}

func (s *MemoryStore) GetReservationDetailByToken(ctx context.Context, token string) (d *model.ReservationDetail, err error) {
	s.locked(func(st *memState) { d, err = st.GetReservationDetailByToken(ctx, token) })
	return
}

func (s *MemoryStore) GetPaymentByIntent(ctx context.Context, intentID string) (p *model.Payment, err error) {
	s.locked(func(st *memState) { p, err = st.GetPaymentByIntent(ctx, intentID) })
	return
}

func (s *MemoryStore) GetPaymentByReservation(ctx context.Context, reservationID string) (p *model.Payment, err error) {
	s.locked(func(st *memState) { p, err = st.GetPaymentByReservation(ctx, reservationID) })
	return
}

func (s *MemoryStore) CountActiveReservations(ctx context.Context, sessionID string) (n int, err error) {
	s.locked(func(st *memState) { n, err = st.CountActiveReservations(ctx, sessionID) })
	return
}

func (s *MemoryStore) ListExpiredReservations(ctx context.Context, now time.Time, limit int) (out []model.ExpiredReservation, err error) {
	s.locked(func(st *memState) { out, err = st.ListExpiredReservations(ctx, now, limit) })
	return
}

func (s *MemoryStore) CountConfirmedReservations(ctx context.Context, sessionID string) (n int, err error) {
	s.locked(func(st *memState) { n, err = st.CountConfirmedReservations(ctx, sessionID) })
	return
}

func (s *MemoryStore) ListOpenWaitlist(ctx context.Context, sessionID string, now time.Time) (out []model.WaitlistEntry, err error) {
	s.locked(func(st *memState) { out, err = st.ListOpenWaitlist(ctx, sessionID, now) })
	return
}

func (s *MemoryStore) HasOpenWaitlistEntry(ctx context.Context, sessionID, email string, now time.Time) (ok bool, err error) {
	s.locked(func(st *memState) { ok, err = st.HasOpenWaitlistEntry(ctx, sessionID, email, now) })
	return
}

func (s *MemoryStore) InsertEvent(_ context.Context, e *model.Event) error {
	var err error
	s.locked(func(st *memState) {
		if _, ok := st.events[e.ID]; ok {
			err = ErrConflict
			return
		}
		for _, other := range st.events {
			if other.Slug == e.Slug {
				err = ErrConflict
				return
			}
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = time.Now().UTC()
		}
		st.events[e.ID] = *e
	})
	return err
}

func (s *MemoryStore) InsertSession(_ context.Context, es *model.EventSession) error {
	var err error
	s.locked(func(st *memState) {
		if _, ok := st.sessions[es.ID]; ok {
			err = ErrConflict
			return
		}
		now := time.Now().UTC()
		if es.CreatedAt.IsZero() {
			es.CreatedAt = now
		}
		es.UpdatedAt = now
		st.sessions[es.ID] = *es
	})
	return err
}

func (s *MemoryStore) InsertWaitlistEntry(_ context.Context, e *model.WaitlistEntry) error {
	s.locked(func(st *memState) {
		if e.CreatedAt.IsZero() {
			e.CreatedAt = time.Now().UTC()
		}
		st.waitlist = append(st.waitlist, *e)
	})
	return nil
}

func (s *MemoryStore) ClaimWaitlistEntry(_ context.Context, id string, at time.Time) (claimed bool, err error) {
	s.locked(func(st *memState) {
		for i := range st.waitlist {
			e := &st.waitlist[i]
			if e.ID != id {
				continue
			}
			if e.Notified {
				return
			}
			e.Notified = true
			e.NotifiedAt = &at
			claimed = true
			return
		}
	})
	return claimed, nil
}

func (s *MemoryStore) EnqueueEmail(ctx context.Context, m *model.EmailMessage) (err error) {
	s.locked(func(st *memState) { err = st.enqueueEmail(m) })
	return
}

func (s *MemoryStore) ListDueEmails(_ context.Context, now time.Time, retryBase time.Duration, limit int) ([]model.EmailMessage, error) {
	out := []model.EmailMessage{}
	s.locked(func(st *memState) {
		for _, m := range st.emails {
			if len(out) >= limit {
				break
			}
			if m.Status != model.EmailPending || m.Attempts >= m.MaxAttempts {
				continue
			}
			if m.LastAttemptAt != nil && m.LastAttemptAt.Add(retryBase*time.Duration(1<<m.Attempts)).After(now) {
				continue
			}
			out = append(out, m)
		}
	})
	return out, nil
}

func (s *MemoryStore) MarkEmailSent(_ context.Context, id string, at time.Time) error {
	return s.updateEmail(id, func(m *model.EmailMessage) {
		m.Status = model.EmailSent
		m.SentAt = &at
		m.LastAttemptAt = &at
		m.Attempts++
	})
}

func (s *MemoryStore) MarkEmailAttemptFailed(_ context.Context, id, reason string, at time.Time) error {
	return s.updateEmail(id, func(m *model.EmailMessage) {
		m.Attempts++
		if m.Attempts >= m.MaxAttempts {
			m.Status = model.EmailFailed
		}
		m.LastError = &reason
		m.LastAttemptAt = &at
	})
}

func (s *MemoryStore) updateEmail(id string, fn func(m *model.EmailMessage)) error {
	err := ErrNotFound
	s.locked(func(st *memState) {
		for i := range st.emails {
			if st.emails[i].ID == id {
				fn(&st.emails[i])
				err = nil
				return
			}
		}
	})
	return err
}

// Emails returns a copy of the email queue in insertion order.
func (s *MemoryStore) Emails() []model.EmailMessage {
	var out []model.EmailMessage
	s.locked(func(st *memState) { out = append(out, st.emails...) })
	return out
}

// memState implements Reader without locking; MemoryStore wraps it with the
// mutex and memTx uses it directly while the transaction holds the mutex.

func (m *memState) GetEvent(_ context.Context, id string) (*model.Event, error) {
	e, ok := m.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

func (m *memState) GetSession(_ context.Context, id string) (*model.EventSession, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (m *memState) ListSessionsByEvent(_ context.Context, eventID string) ([]model.EventSession, error) {
	out := []model.EventSession{}
	for _, s := range m.sessions {
		if s.EventID == eventID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out, nil
}

func (m *memState) GetReservation(_ context.Context, id string) (*model.Reservation, error) {
	r, ok := m.reservations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (m *memState) GetReservationDetail(ctx context.Context, id string) (*model.ReservationDetail, error) {
	r, err := m.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	return loadDetail(ctx, m, r)
}

func (m *memState) GetReservationDetailByToken(ctx context.Context, token string) (*model.ReservationDetail, error) {
	for _, r := range m.reservations {
		if r.AccessToken == token {
			r := r
			return loadDetail(ctx, m, &r)
		}
	}
	return nil, ErrNotFound
}

func (m *memState) GetPaymentByIntent(_ context.Context, intentID string) (*model.Payment, error) {
	for _, p := range m.payments {
		if p.PaymentIntentID == intentID {
			p := p
			return &p, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memState) GetPaymentByReservation(_ context.Context, reservationID string) (*model.Payment, error) {
	for _, p := range m.payments {
		if p.ReservationID == reservationID {
			p := p
			return &p, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memState) ListExpiredReservations(ctx context.Context, now time.Time, limit int) ([]model.ExpiredReservation, error) {
	var rows []model.Reservation
	for _, r := range m.reservations {
		if r.Status == model.ReservationPending && r.ExpiresAt.Before(now) {
			rows = append(rows, r)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].ExpiresAt.Equal(rows[j].ExpiresAt) {
			return rows[i].ID < rows[j].ID
		}
		return rows[i].ExpiresAt.Before(rows[j].ExpiresAt)
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	out := make([]model.ExpiredReservation, 0, len(rows))
	for _, r := range rows {
		item := model.ExpiredReservation{Reservation: r}
		if p, err := m.GetPaymentByReservation(ctx, r.ID); err == nil {
			item.Payment = p
		}
		out = append(out, item)
	}
	return out, nil
}

func (m *memState) CountConfirmedReservations(_ context.Context, sessionID string) (int, error) {
	n := 0
	for _, r := range m.reservations {
		if r.EventSessionID == sessionID && r.Status == model.ReservationConfirmed {
			n++
		}
	}
	return n, nil
}

func (m *memState) CountActiveReservations(_ context.Context, sessionID string) (int, error) {
	n := 0
	for _, r := range m.reservations {
		if r.EventSessionID != sessionID {
			continue
		}
		switch r.Status {
		case model.ReservationPending, model.ReservationProcessing, model.ReservationConfirmed:
			n++
		}
	}
	return n, nil
}

func (m *memState) ListOpenWaitlist(_ context.Context, sessionID string, now time.Time) ([]model.WaitlistEntry, error) {
	out := []model.WaitlistEntry{}
	for _, e := range m.waitlist {
		if e.EventSessionID == sessionID && !e.Notified && e.ExpiresAt.After(now) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memState) HasOpenWaitlistEntry(_ context.Context, sessionID, email string, now time.Time) (bool, error) {
	for _, e := range m.waitlist {
		if e.EventSessionID == sessionID && e.Email == email && !e.Notified && e.ExpiresAt.After(now) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memState) enqueueEmail(msg *model.EmailMessage) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	if msg.Status == "" {
		msg.Status = model.EmailPending
	}
	m.emails = append(m.emails, *msg)
	return nil
}

// memTx mutates the state while MemoryStore.WithTx holds the mutex.
type memTx struct {
	*memState
}

func (t *memTx) LockSession(ctx context.Context, id string) (*model.EventSession, error) {
	return t.GetSession(ctx, id)
}

func (t *memTx) ReserveCapacity(_ context.Context, sessionID string, qty int) (bool, error) {
	s, ok := t.sessions[sessionID]
	if !ok || s.AvailableCapacity < qty {
		return false, nil
	}
	s.AvailableCapacity -= qty
	s.UpdatedAt = time.Now().UTC()
	t.sessions[sessionID] = s
	return true, nil
}

func (t *memTx) ReleaseCapacity(_ context.Context, sessionID string, qty int) error {
	s, ok := t.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	s.AvailableCapacity += qty
	if s.AvailableCapacity > s.TotalCapacity {
		s.AvailableCapacity = s.TotalCapacity
	}
	s.UpdatedAt = time.Now().UTC()
	t.sessions[sessionID] = s
	return nil
}

func (t *memTx) UpdateSessionCapacity(_ context.Context, sessionID string, total, available int) error {
	s, ok := t.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	s.TotalCapacity, s.AvailableCapacity = total, available
	s.UpdatedAt = time.Now().UTC()
	t.sessions[sessionID] = s
	return nil
}

func (t *memTx) DeleteSession(_ context.Context, id string) error {
	if _, ok := t.sessions[id]; !ok {
		return ErrNotFound
	}
	for rid, r := range t.reservations {
		if r.EventSessionID != id {
			continue
		}
		for pid, p := range t.payments {
			if p.ReservationID == rid {
				delete(t.payments, pid)
			}
		}
		delete(t.reservations, rid)
	}
	kept := t.waitlist[:0]
	for _, e := range t.waitlist {
		if e.EventSessionID != id {
			kept = append(kept, e)
		}
	}
	t.waitlist = kept
	delete(t.sessions, id)
	return nil
}

func (t *memTx) InsertReservation(_ context.Context, r *model.Reservation) error {
	if _, ok := t.reservations[r.ID]; ok {
		return ErrConflict
	}
	for _, other := range t.reservations {
		if other.AccessToken == r.AccessToken {
			return ErrConflict
		}
	}
	now := time.Now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now
	t.reservations[r.ID] = *r
	return nil
}

func (t *memTx) TransitionReservation(_ context.Context, id string, from []model.ReservationStatus, to model.ReservationStatus, at time.Time) (bool, error) {
	r, ok := t.reservations[id]
	if !ok {
		return false, nil
	}
	allowed := false
	for _, s := range from {
		if r.Status == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return false, nil
	}
	r.Status = to
	r.UpdatedAt = at
	switch to {
	case model.ReservationConfirmed:
		r.ConfirmedAt = &at
	case model.ReservationCancelled:
		r.CancelledAt = &at
	}
	t.reservations[id] = r
	return true, nil
}

func (t *memTx) LockPaymentByIntent(ctx context.Context, intentID string) (*model.Payment, error) {
	return t.GetPaymentByIntent(ctx, intentID)
}

func (t *memTx) InsertPayment(_ context.Context, p *model.Payment) error {
	for _, other := range t.payments {
		if other.ID == p.ID || other.ReservationID == p.ReservationID ||
			other.PaymentIntentID == p.PaymentIntentID || other.IdempotencyKey == p.IdempotencyKey {
			return ErrConflict
		}
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	t.payments[p.ID] = *p
	return nil
}

func (t *memTx) UpdatePayment(_ context.Context, p *model.Payment) error {
	cur, ok := t.payments[p.ID]
	if !ok {
		return ErrNotFound
	}
	cur.Status = p.Status
	cur.RefundedAmount = p.RefundedAmount
	cur.LastError = p.LastError
	cur.WebhookProcessedAt = p.WebhookProcessedAt
	cur.UpdatedAt = time.Now().UTC()
	p.UpdatedAt = cur.UpdatedAt
	t.payments[p.ID] = cur
	return nil
}

func (t *memTx) EnqueueEmail(_ context.Context, m *model.EmailMessage) error {
	return t.enqueueEmail(m)
}
