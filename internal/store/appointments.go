package store

import (
	"context"

	"schedula/internal/domain"
)

// AppointmentRepository persists the appointment collection. Implementations
// hold no business rules: overlap checks live in the scheduling service.
type AppointmentRepository interface {
	// Load returns every appointment in insertion order.
	Load(ctx context.Context) ([]domain.Appointment, error)
	// Save assigns the next id and stores appt.
	Save(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	Get(ctx context.Context, id int64) (domain.Appointment, error)
	Update(ctx context.Context, id int64, changes domain.AppointmentChanges) (domain.Appointment, error)
	Delete(ctx context.Context, id int64) error
	FilterByDate(ctx context.Context, date domain.Date) ([]domain.Appointment, error)
}
