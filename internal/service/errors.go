package service

import (
	"errors"

	"github.com/iliyamo/event-booking/internal/gateway"
)

// Errors returned by the booking services.  Handlers map them to HTTP
// responses with errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
	ErrSpamDetected      = errors.New("submission rejected")
	ErrSessionStarted    = errors.New("session has already started")
	ErrSoldOut           = errors.New("sold out")
	ErrRaceLost          = errors.New("capacity taken by a concurrent reservation")
	ErrInvalidState      = errors.New("invalid state transition")
	ErrAlreadyWaitlisted = errors.New("already on the waitlist")
	ErrWaitlistDisabled  = errors.New("waitlist not available for this session")
	ErrCapacityBelowSold = errors.New("capacity below sold tickets")
	ErrSessionInUse      = errors.New("session has confirmed reservations")
	ErrIntegrity         = errors.New("integrity violation")
	ErrGateway           = errors.New("payment gateway error")
)

// Kind is the coarse class of a service error.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindNotFound
	KindExternalDependency
	KindIntegrity
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindExternalDependency:
		return "external_dependency"
	case KindIntegrity:
		return "integrity"
	}
	return "internal"
}

// KindOf classifies err.  Unknown errors are KindInternal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrValidation), errors.Is(err, ErrSpamDetected),
		errors.Is(err, ErrSessionStarted), errors.Is(err, ErrWaitlistDisabled):
		return KindValidation
	case errors.Is(err, ErrSoldOut), errors.Is(err, ErrRaceLost), errors.Is(err, ErrInvalidState),
		errors.Is(err, ErrAlreadyWaitlisted), errors.Is(err, ErrCapacityBelowSold),
		errors.Is(err, ErrSessionInUse):
		return KindConflict
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrGateway), errors.Is(err, gateway.ErrNotConfigured):
		return KindExternalDependency
	case errors.Is(err, ErrIntegrity):
		return KindIntegrity
	}
	return KindInternal
}
