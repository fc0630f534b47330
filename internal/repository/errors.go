// Package repository is the storage boundary of the booking core.  It
// defines the Store and Tx capability sets used by the services together
// with two implementations: a MySQL store (sqlx) and an in-memory store
// used in tests and demo mode.
//
// The sentinel values below let higher layers distinguish failure
// scenarios without inspecting driver errors.
package repository

import "errors"

// ErrNotFound is returned when a lookup by key matches no row.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an insert violates a unique constraint,
// such as a second payment row for the same reservation or a reused
// idempotency key.
var ErrConflict = errors.New("conflict")
