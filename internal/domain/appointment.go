package domain

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/uptrace/bun"
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCancelled Status = "cancelled"
)

const DefaultDurationMinutes = 60

func (s Status) Valid() bool {
	return s == StatusScheduled || s == StatusCancelled
}

type Appointment struct {
	bun.BaseModel `bun:"table:appointments" json:"-"`

	ID              int64      `bun:"id,pk,autoincrement" json:"id"`
	Title           string     `bun:"title,notnull" json:"title"`
	Date            Date       `bun:"date,notnull" json:"date"`
	Time            TimeOfDay  `bun:"start_time,notnull" json:"time"`
	DurationMinutes int        `bun:"duration_minutes,notnull" json:"duration_minutes"`
	ClientName      string     `bun:"client_name" json:"client_name"`
	Description     string     `bun:"description" json:"description"`
	Status          Status     `bun:"status,notnull" json:"status"`
	CreatedAt       time.Time  `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt       *time.Time `bun:"updated_at" json:"updated_at,omitempty"`
}

func (a *Appointment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
	case *bun.UpdateQuery:
		a.UpdatedAt = &now
	}
	return nil
}

func (a Appointment) IsScheduled() bool {
	return a.Status == StatusScheduled
}

func (a Appointment) Start() TimeOfDay {
	return a.Time
}

func (a Appointment) End() TimeOfDay {
	return a.Time.Add(a.DurationMinutes)
}

// Overlaps compares half-open intervals, so back-to-back bookings do not
// overlap. Dates are not compared.
func (a Appointment) Overlaps(other Appointment) bool {
	return a.Start() < other.End() && other.Start() < a.End()
}

// AppointmentChanges is a partial update; nil fields are left untouched.
type AppointmentChanges struct {
	Title           *string
	Date            *Date
	Time            *TimeOfDay
	DurationMinutes *int
	ClientName      *string
	Description     *string
	Status          *Status
}

func (c AppointmentChanges) IsEmpty() bool {
	return len(c.Columns()) == 0
}

// Columns lists the storage columns touched by the change set.
func (c AppointmentChanges) Columns() []string {
	var cols []string
	if c.Title != nil {
		cols = append(cols, "title")
	}
	if c.Date != nil {
		cols = append(cols, "date")
	}
	if c.Time != nil {
		cols = append(cols, "start_time")
	}
	if c.DurationMinutes != nil {
		cols = append(cols, "duration_minutes")
	}
	if c.ClientName != nil {
		cols = append(cols, "client_name")
	}
	if c.Description != nil {
		cols = append(cols, "description")
	}
	if c.Status != nil {
		cols = append(cols, "status")
	}
	return cols
}

func (c AppointmentChanges) Apply(a *Appointment) {
	if c.Title != nil {
		a.Title = *c.Title
	}
	if c.Date != nil {
		a.Date = *c.Date
	}
	if c.Time != nil {
		a.Time = *c.Time
	}
	if c.DurationMinutes != nil {
		a.DurationMinutes = *c.DurationMinutes
	}
	if c.ClientName != nil {
		a.ClientName = *c.ClientName
	}
	if c.Description != nil {
		a.Description = *c.Description
	}
	if c.Status != nil {
		a.Status = *c.Status
	}
}

// SortByDateTime orders by date, then start time, then id.
func SortByDateTime(appts []Appointment) {
	slices.SortFunc(appts, func(a, b Appointment) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Time, b.Time); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
