package model

import "time"

// EventSession is a bookable time slot of an event.  It owns the
// available_capacity counter; nothing outside the capacity ledger writes it.
//
// Invariants enforced on every write:
//
//	EndTime > StartTime
//	TotalCapacity >= 1
//	0 <= AvailableCapacity <= TotalCapacity
//	PriceAmount >= 0 (minor currency units)
type EventSession struct {
	ID                string    `db:"id" json:"id"`
	EventID           string    `db:"event_id" json:"event_id"`
	Title             string    `db:"title" json:"title"`
	StartTime         time.Time `db:"start_time" json:"start_time"`
	EndTime           time.Time `db:"end_time" json:"end_time"`
	TotalCapacity     int       `db:"total_capacity" json:"total_capacity"`
	AvailableCapacity int       `db:"available_capacity" json:"available_capacity"`
	PriceAmount       int64     `db:"price_amount" json:"price_amount"`
	Currency          string    `db:"currency" json:"currency"`
	Published         bool      `db:"published" json:"published"`
	AllowWaitlist     bool      `db:"allow_waitlist" json:"allow_waitlist"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// SoldCount is the number of tickets currently held or sold.
func (s EventSession) SoldCount() int {
	return s.TotalCapacity - s.AvailableCapacity
}

// SessionSummary is the admin view of a session with its sold count.
type SessionSummary struct {
	EventSession
	SoldCount         int `json:"sold_count"`
	ConfirmedBookings int `json:"confirmed_bookings"`
}
