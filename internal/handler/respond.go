package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/event-booking/internal/gateway"
	"github.com/iliyamo/event-booking/internal/service"
)

// msgUnavailable is shared by sold-out and race-lost so clients cannot tell
// the two apart.
const msgUnavailable = "tickets are no longer available"

// fail maps a service error onto an HTTP response.  The body is always
// {"error": message, "code": CODE}.
func fail(c echo.Context, log *logrus.Logger, err error) error {
	status, code, msg := classify(err)
	if status >= http.StatusInternalServerError {
		entry := log.WithError(err).WithFields(logrus.Fields{
			"method": c.Request().Method,
			"path":   c.Path(),
			"code":   code,
		})
		entry.Error("request failed")
	}
	return c.JSON(status, echo.Map{"error": msg, "code": code})
}

func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, service.ErrSpamDetected):
		return http.StatusBadRequest, "SPAM_DETECTED", "submission rejected"
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest, "VALIDATION_FAILED", validationMessage(err)
	case errors.Is(err, service.ErrSessionStarted):
		return http.StatusBadRequest, "SESSION_STARTED", "this session has already started"
	case errors.Is(err, service.ErrInvalidState):
		return http.StatusBadRequest, "INVALID_STATE", err.Error()
	case errors.Is(err, service.ErrWaitlistDisabled):
		return http.StatusBadRequest, "WAITLIST_DISABLED", "this session does not take a waitlist"
	case errors.Is(err, service.ErrSoldOut), errors.Is(err, service.ErrRaceLost):
		return http.StatusConflict, "SOLD_OUT", msgUnavailable
	case errors.Is(err, service.ErrAlreadyWaitlisted):
		return http.StatusConflict, "ALREADY_WAITLISTED", "you are already on the waitlist for this session"
	case errors.Is(err, service.ErrCapacityBelowSold):
		return http.StatusConflict, "CAPACITY_BELOW_SOLD", err.Error()
	case errors.Is(err, service.ErrSessionInUse):
		return http.StatusConflict, "SESSION_IN_USE", err.Error()
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "not found"
	case errors.Is(err, service.ErrGateway), errors.Is(err, gateway.ErrNotConfigured):
		return http.StatusBadGateway, "PAYMENT_GATEWAY", "payment provider unavailable, please retry"
	case errors.Is(err, service.ErrIntegrity):
		return http.StatusInternalServerError, "INTEGRITY", "internal error"
	}
	return http.StatusInternalServerError, "INTERNAL", "internal error"
}

// validationMessage strips the sentinel prefix so the client sees only the
// field details.
func validationMessage(err error) string {
	msg := strings.TrimPrefix(err.Error(), service.ErrValidation.Error()+": ")
	if msg == service.ErrValidation.Error() {
		return "invalid request"
	}
	return msg
}

// bindAndValidate decodes the JSON body into dst and runs the struct tags.
func bindAndValidate(c echo.Context, dst interface{}) error {
	if err := c.Bind(dst); err != nil {
		return service.ErrValidation
	}
	return c.Validate(dst)
}
