package model

import "time"

// Event is the public listing a session belongs to.  Only the fields the
// booking core projects onto tickets and emails are modelled here.
type Event struct {
	ID        string    `db:"id" json:"id"`
	Title     string    `db:"title" json:"title"`
	Slug      string    `db:"slug" json:"slug"`
	Location  string    `db:"location" json:"location"`
	VenueName string    `db:"venue_name" json:"venue"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
