// Package cli implements the interactive terminal menu over the scheduler.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"schedula/internal/domain"
	"schedula/internal/service/appointments"
)

type scheduler interface {
	Create(ctx context.Context, in appointments.CreateInput) (domain.Appointment, error)
	Reschedule(ctx context.Context, id int64, in appointments.RescheduleInput) (domain.Appointment, error)
	Cancel(ctx context.Context, id int64) (domain.Appointment, error)
	Get(ctx context.Context, id int64) (domain.Appointment, error)
	List(ctx context.Context, includeCancelled bool) ([]domain.Appointment, error)
	AvailableSlots(ctx context.Context, date string, q appointments.SlotQuery) ([]domain.TimeOfDay, error)
	DaySchedule(ctx context.Context, date string) ([]domain.Appointment, error)
	Upcoming(ctx context.Context, today domain.Date, horizonDays int) ([]domain.Appointment, error)
	Defaults() appointments.Defaults
}

const rule = "=================================================="

type Menu struct {
	svc scheduler
	in  *bufio.Scanner
	out io.Writer
	log *slog.Logger
}

func NewMenu(svc scheduler, in io.Reader, out io.Writer, log *slog.Logger) *Menu {
	if log == nil {
		log = slog.Default()
	}
	return &Menu{
		svc: svc,
		in:  bufio.NewScanner(in),
		out: out,
		log: log.With(slog.String("component", "cli.menu")),
	}
}

// Run loops until the user picks exit, input ends, or ctx is cancelled.
func (m *Menu) Run(ctx context.Context) error {
	m.println("\nWelcome to the Appointment Agent!")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		m.displayMenu()
		choice, ok := m.prompt("Select option (1-8): ")
		if !ok {
			m.println("\nGoodbye!")
			return m.in.Err()
		}

		var err error
		switch choice {
		case "1":
			err = m.create(ctx)
		case "2":
			err = m.listAll(ctx)
		case "3":
			err = m.availableSlots(ctx)
		case "4":
			err = m.reschedule(ctx)
		case "5":
			err = m.cancel(ctx)
		case "6":
			err = m.daySchedule(ctx)
		case "7":
			err = m.upcoming(ctx)
		case "8":
			m.println("\nGoodbye!")
			return nil
		default:
			m.println("Invalid option. Please try again.")
		}

		if errors.Is(err, io.EOF) {
			m.println("\nGoodbye!")
			return m.in.Err()
		}
		if err != nil {
			m.reportError(err)
		}
	}
}

func (m *Menu) displayMenu() {
	m.println("\n" + rule)
	m.println("APPOINTMENT AGENT")
	m.println(rule)
	m.println("1. Create new appointment")
	m.println("2. View appointments")
	m.println("3. Check available slots")
	m.println("4. Reschedule appointment")
	m.println("5. Cancel appointment")
	m.println("6. View day schedule")
	m.println("7. View upcoming appointments")
	m.println("8. Exit")
	m.println(rule)
}

func (m *Menu) create(ctx context.Context) error {
	m.println("\n--- Create New Appointment ---")

	title, ok := m.prompt("Appointment title: ")
	if !ok {
		return io.EOF
	}
	if title == "" {
		m.println("Title cannot be empty.")
		return nil
	}

	var in appointments.CreateInput
	in.Title = title
	if in.Date, ok = m.prompt("Date (YYYY-MM-DD): "); !ok {
		return io.EOF
	}
	if in.Time, ok = m.prompt("Time (HH:MM): "); !ok {
		return io.EOF
	}
	if in.DurationMinutes, ok = m.promptDuration(); !ok {
		return io.EOF
	}
	if in.ClientName, ok = m.prompt("Client name (optional): "); !ok {
		return io.EOF
	}
	if in.Description, ok = m.prompt("Description (optional): "); !ok {
		return io.EOF
	}

	appt, err := m.svc.Create(ctx, in)
	if err != nil {
		return err
	}
	m.println("\n✓ Appointment created successfully!")
	m.printf("  ID: %d\n", appt.ID)
	return nil
}

func (m *Menu) listAll(ctx context.Context) error {
	appts, err := m.svc.List(ctx, false)
	if err != nil {
		return err
	}
	if len(appts) == 0 {
		m.println("\nNo appointments found.")
		return nil
	}

	m.println("\n--- All Appointments ---")
	for _, a := range appts {
		m.printf("\nID: %d\n", a.ID)
		m.printf("  Title: %s\n", a.Title)
		m.printf("  Date: %s\n", a.Date)
		m.printf("  Time: %s\n", a.Time)
		m.printf("  Duration: %d minutes\n", a.DurationMinutes)
		if a.ClientName != "" {
			m.printf("  Client: %s\n", a.ClientName)
		}
		if a.Description != "" {
			m.printf("  Description: %s\n", a.Description)
		}
	}
	return nil
}

func (m *Menu) availableSlots(ctx context.Context) error {
	m.println("\n--- Check Available Slots ---")

	date, ok := m.prompt("Date (YYYY-MM-DD): ")
	if !ok {
		return io.EOF
	}
	duration, ok := m.promptDuration()
	if !ok {
		return io.EOF
	}

	slots, err := m.svc.AvailableSlots(ctx, date, appointments.SlotQuery{DurationMinutes: duration})
	if err != nil {
		return err
	}
	if len(slots) == 0 {
		minutes := m.svc.Defaults().DurationMinutes
		if duration != nil {
			minutes = *duration
		}
		m.printf("\nNo available slots for %s with %d minute duration.\n", date, minutes)
		return nil
	}

	m.printf("\nAvailable slots for %s:\n", date)
	for _, s := range slots {
		m.printf("  • %s\n", s)
	}
	return nil
}

func (m *Menu) reschedule(ctx context.Context) error {
	m.println("\n--- Reschedule Appointment ---")

	id, ok, valid := m.promptID("Appointment ID: ")
	if !ok {
		return io.EOF
	}
	if !valid {
		m.println("Invalid ID.")
		return nil
	}

	current, err := m.svc.Get(ctx, id)
	if err != nil {
		var nErr *appointments.NotFoundError
		if errors.As(err, &nErr) {
			m.println("Appointment not found.")
			return nil
		}
		return err
	}
	m.printf("\nCurrent: %s at %s\n", current.Date, current.Time)

	var in appointments.RescheduleInput
	if in.Date, ok = m.prompt("New date (YYYY-MM-DD): "); !ok {
		return io.EOF
	}
	if in.Time, ok = m.prompt("New time (HH:MM): "); !ok {
		return io.EOF
	}

	if _, err := m.svc.Reschedule(ctx, id, in); err != nil {
		return err
	}
	m.println("\n✓ Appointment rescheduled successfully")
	return nil
}

func (m *Menu) cancel(ctx context.Context) error {
	m.println("\n--- Cancel Appointment ---")

	id, ok, valid := m.promptID("Appointment ID to cancel: ")
	if !ok {
		return io.EOF
	}
	if !valid {
		m.println("Invalid ID.")
		return nil
	}

	if _, err := m.svc.Cancel(ctx, id); err != nil {
		return err
	}
	m.println("\n✓ Appointment cancelled")
	return nil
}

func (m *Menu) daySchedule(ctx context.Context) error {
	m.println("\n--- Day Schedule ---")

	date, ok := m.prompt("Date (YYYY-MM-DD): ")
	if !ok {
		return io.EOF
	}
	appts, err := m.svc.DaySchedule(ctx, date)
	if err != nil {
		return err
	}
	if len(appts) == 0 {
		m.printf("\nNo appointments on %s.\n", date)
		return nil
	}

	m.printf("\nSchedule for %s:\n", date)
	for _, a := range appts {
		m.printf("\n  %s - %s\n", a.Time, a.Title)
		if a.ClientName != "" {
			m.printf("    Client: %s\n", a.ClientName)
		}
		m.printf("    Duration: %d minutes\n", a.DurationMinutes)
	}
	return nil
}

func (m *Menu) upcoming(ctx context.Context) error {
	m.println("\n--- Upcoming Appointments ---")

	days := m.svc.Defaults().UpcomingDays
	appts, err := m.svc.Upcoming(ctx, domain.Date{}, days)
	if err != nil {
		return err
	}
	if len(appts) == 0 {
		m.printf("\nNo upcoming appointments in the next %d days.\n", days)
		return nil
	}

	m.printf("\nUpcoming appointments (next %d days):\n", days)
	for _, a := range appts {
		m.printf("\n  %s at %s - %s\n", a.Date, a.Time, a.Title)
		if a.ClientName != "" {
			m.printf("    Client: %s\n", a.ClientName)
		}
	}
	return nil
}

func (m *Menu) reportError(err error) {
	var (
		vErr *appointments.ValidationError
		cErr *appointments.ConflictError
		nErr *appointments.NotFoundError
	)
	switch {
	case errors.As(err, &cErr):
		m.println("\n✗ Error: Appointment conflicts with existing slots")
		m.println("  Conflicting appointments:")
		for _, c := range cErr.Conflicts {
			m.printf("    - %s at %s\n", c.Title, c.Time)
		}
	case errors.As(err, &vErr), errors.As(err, &nErr):
		m.printf("\n✗ Error: %s\n", err)
	default:
		m.log.Error("menu operation failed", slog.Any("err", err))
		m.printf("\n✗ Error: %s\n", err)
	}
}

// prompt returns false once input is exhausted.
func (m *Menu) prompt(label string) (string, bool) {
	m.printf("%s", label)
	if !m.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(m.in.Text()), true
}

// promptDuration maps blank or non-numeric input to nil, which the
// scheduler resolves to its default duration. Numbers pass through as typed.
func (m *Menu) promptDuration() (*int, bool) {
	label := fmt.Sprintf("Duration (minutes, default %d): ", m.svc.Defaults().DurationMinutes)
	raw, ok := m.prompt(label)
	if !ok {
		return nil, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, true
	}
	return &n, true
}

func (m *Menu) promptID(label string) (id int64, ok, valid bool) {
	raw, ok := m.prompt(label)
	if !ok {
		return 0, false, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, true, false
	}
	return id, true, true
}

func (m *Menu) println(s string) {
	_, _ = fmt.Fprintln(m.out, s)
}

func (m *Menu) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(m.out, format, args...)
}
