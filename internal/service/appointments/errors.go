package appointments

import (
	"fmt"
	"strings"

	"schedula/internal/domain"
	"schedula/internal/store"
)

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

// ConflictError lists the scheduled appointments a requested interval
// overlaps, in start-time order.
type ConflictError struct {
	Conflicts []domain.Appointment
}

func (e *ConflictError) Error() string {
	if len(e.Conflicts) == 0 {
		return "appointment conflicts with an existing appointment"
	}
	parts := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		parts = append(parts, fmt.Sprintf("#%d %q at %s (%d min)", c.ID, c.Title, c.Time, c.DurationMinutes))
	}
	return "appointment conflicts with " + strings.Join(parts, ", ")
}

func (e *ConflictError) Unwrap() error {
	return store.ErrConflict
}

// NotFoundError covers both missing ids and appointments in a state the
// operation does not accept.
type NotFoundError struct {
	ID     int64
	Reason string
}

func (e *NotFoundError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "not found"
	}
	return fmt.Sprintf("appointment %d %s", e.ID, reason)
}

func (e *NotFoundError) Unwrap() error {
	return store.ErrNotFound
}
