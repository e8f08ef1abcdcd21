package appointments

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"schedula/internal/domain"
	"schedula/internal/metrics"
	"schedula/internal/store"
)

// Defaults are the fallbacks for zero-valued inputs.
type Defaults struct {
	DurationMinutes int
	DayStart        domain.TimeOfDay
	DayEnd          domain.TimeOfDay
	StepMinutes     int
	UpcomingDays    int
}

func DefaultDefaults() Defaults {
	return Defaults{
		DurationMinutes: domain.DefaultDurationMinutes,
		DayStart:        domain.Clock(9, 0),
		DayEnd:          domain.Clock(17, 0),
		StepMinutes:     30,
		UpcomingDays:    7,
	}
}

type Option func(*Service)

func WithDefaults(d Defaults) Option {
	return func(s *Service) { s.defaults = d }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// Service enforces the scheduling invariants on top of a repository. Every
// mutation reloads state, decides, and writes once while holding mu.
type Service struct {
	repo     store.AppointmentRepository
	defaults Defaults
	now      func() time.Time
	log      *slog.Logger

	mu sync.Mutex
}

func NewService(repo store.AppointmentRepository, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		defaults: DefaultDefaults(),
		now:      time.Now,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(slog.String("component", "service.appointments"))
	return s
}

func (s *Service) Defaults() Defaults {
	return s.defaults
}

// Today is the current calendar date according to the service clock.
func (s *Service) Today() domain.Date {
	return domain.DateOf(s.now())
}

type CreateInput struct {
	Title string
	Date  string
	Time  string
	// DurationMinutes selects the configured default when nil.
	DurationMinutes *int
	ClientName      string
	Description     string
}

func (s *Service) Create(ctx context.Context, in CreateInput) (appt domain.Appointment, err error) {
	defer func() { observe("create", err) }()

	title := strings.TrimSpace(in.Title)
	if title == "" {
		return domain.Appointment{}, validationError("title is required")
	}
	date, at, err := parseSlot(in.Date, in.Time)
	if err != nil {
		return domain.Appointment{}, err
	}
	duration, err := s.duration(in.DurationMinutes)
	if err != nil {
		return domain.Appointment{}, err
	}

	candidate := domain.Appointment{
		Title:           title,
		Date:            date,
		Time:            at,
		DurationMinutes: duration,
		ClientName:      strings.TrimSpace(in.ClientName),
		Description:     strings.TrimSpace(in.Description),
		Status:          domain.StatusScheduled,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureNoConflicts(ctx, candidate, 0); err != nil {
		return domain.Appointment{}, err
	}

	candidate.CreatedAt = s.now().UTC()
	saved, err := s.repo.Save(ctx, candidate)
	if err != nil {
		return domain.Appointment{}, err
	}

	s.log.Info(
		"appointment created",
		slog.Int64("appointment_id", saved.ID),
		slog.String("date", saved.Date.String()),
		slog.String("time", saved.Time.String()),
		slog.Int("duration_minutes", saved.DurationMinutes),
	)
	return saved, nil
}

type RescheduleInput struct {
	Date string
	Time string
	// DurationMinutes keeps the current duration when nil.
	DurationMinutes *int
}

func (s *Service) Reschedule(ctx context.Context, id int64, in RescheduleInput) (appt domain.Appointment, err error) {
	defer func() { observe("reschedule", err) }()

	date, at, err := parseSlot(in.Date, in.Time)
	if err != nil {
		return domain.Appointment{}, err
	}
	if in.DurationMinutes != nil && *in.DurationMinutes <= 0 {
		return domain.Appointment{}, validationError("duration_minutes must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.get(ctx, id)
	if err != nil {
		return domain.Appointment{}, err
	}
	if !current.IsScheduled() {
		return domain.Appointment{}, &NotFoundError{ID: id, Reason: "is " + string(current.Status)}
	}

	changes := domain.AppointmentChanges{Date: &date, Time: &at}
	if in.DurationMinutes != nil {
		d := *in.DurationMinutes
		changes.DurationMinutes = &d
	}
	candidate := current
	changes.Apply(&candidate)

	if err := s.ensureNoConflicts(ctx, candidate, id); err != nil {
		return domain.Appointment{}, err
	}

	updated, err := s.repo.Update(ctx, id, changes)
	if err != nil {
		return domain.Appointment{}, s.notFound(err, id)
	}

	s.log.Info(
		"appointment rescheduled",
		slog.Int64("appointment_id", id),
		slog.String("from", current.Date.String()+" "+current.Time.String()),
		slog.String("to", updated.Date.String()+" "+updated.Time.String()),
		slog.Int("duration_minutes", updated.DurationMinutes),
	)
	return updated, nil
}

// Cancel is idempotent: cancelling a cancelled appointment returns it unchanged.
func (s *Service) Cancel(ctx context.Context, id int64) (appt domain.Appointment, err error) {
	defer func() { observe("cancel", err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.get(ctx, id)
	if err != nil {
		return domain.Appointment{}, err
	}
	if current.Status == domain.StatusCancelled {
		return current, nil
	}

	cancelled := domain.StatusCancelled
	updated, err := s.repo.Update(ctx, id, domain.AppointmentChanges{Status: &cancelled})
	if err != nil {
		return domain.Appointment{}, s.notFound(err, id)
	}

	s.log.Info("appointment cancelled", slog.Int64("appointment_id", id))
	return updated, nil
}

// Delete removes the record permanently.
func (s *Service) Delete(ctx context.Context, id int64) (err error) {
	defer func() { observe("delete", err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.Delete(ctx, id); err != nil {
		return s.notFound(err, id)
	}
	s.log.Info("appointment deleted", slog.Int64("appointment_id", id))
	return nil
}

func (s *Service) Get(ctx context.Context, id int64) (domain.Appointment, error) {
	return s.get(ctx, id)
}

// List returns appointments ordered by date and time.
func (s *Service) List(ctx context.Context, includeCancelled bool) ([]domain.Appointment, error) {
	all, err := s.repo.Load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Appointment, 0, len(all))
	for _, a := range all {
		if includeCancelled || a.IsScheduled() {
			out = append(out, a)
		}
	}
	domain.SortByDateTime(out)
	return out, nil
}

type SlotQuery struct {
	// Nil duration and zero values elsewhere select the configured defaults.
	DurationMinutes *int
	DayStart        string
	DayEnd          string
	StepMinutes     int
}

func (s *Service) AvailableSlots(ctx context.Context, date string, q SlotQuery) (slots []domain.TimeOfDay, err error) {
	defer func() { observe("available_slots", err) }()

	day, err := parseDate(date)
	if err != nil {
		return nil, err
	}
	duration, err := s.duration(q.DurationMinutes)
	if err != nil {
		return nil, err
	}

	dayStart := s.defaults.DayStart
	if strings.TrimSpace(q.DayStart) != "" {
		if dayStart, err = parseTime(q.DayStart); err != nil {
			return nil, err
		}
	}
	dayEnd := s.defaults.DayEnd
	if strings.TrimSpace(q.DayEnd) != "" {
		if dayEnd, err = parseTime(q.DayEnd); err != nil {
			return nil, err
		}
	}
	if dayEnd <= dayStart {
		return nil, validationError("day_end must be after day_start")
	}

	step := q.StepMinutes
	if step == 0 {
		step = s.defaults.StepMinutes
	}
	if step < 0 {
		return nil, validationError("step_minutes must be positive")
	}

	busy, err := s.scheduledOn(ctx, day)
	if err != nil {
		return nil, err
	}
	return availableSlots(dayStart, dayEnd, duration, step, busy), nil
}

// DaySchedule returns the scheduled appointments on date by start time.
func (s *Service) DaySchedule(ctx context.Context, date string) ([]domain.Appointment, error) {
	day, err := parseDate(date)
	if err != nil {
		return nil, err
	}
	appts, err := s.scheduledOn(ctx, day)
	if err != nil {
		return nil, err
	}
	domain.SortByDateTime(appts)
	return appts, nil
}

// Upcoming returns scheduled appointments dated in [today, today+horizonDays).
// A zero horizon selects the configured default.
func (s *Service) Upcoming(ctx context.Context, today domain.Date, horizonDays int) ([]domain.Appointment, error) {
	if horizonDays == 0 {
		horizonDays = s.defaults.UpcomingDays
	}
	if horizonDays < 0 {
		return nil, validationError("horizon_days must be positive")
	}
	if today.IsZero() {
		today = s.Today()
	}
	end := today.AddDays(horizonDays)

	all, err := s.repo.Load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Appointment, 0, len(all))
	for _, a := range all {
		if !a.IsScheduled() || a.Date.Before(today) || !a.Date.Before(end) {
			continue
		}
		out = append(out, a)
	}
	domain.SortByDateTime(out)
	return out, nil
}

func (s *Service) ensureNoConflicts(ctx context.Context, candidate domain.Appointment, excludeID int64) error {
	sameDay, err := s.repo.FilterByDate(ctx, candidate.Date)
	if err != nil {
		return err
	}
	conflicts := conflictsWith(candidate, sameDay, excludeID)
	if len(conflicts) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(conflicts))
	for _, c := range conflicts {
		ids = append(ids, c.ID)
	}
	s.log.Info(
		"appointment conflict",
		slog.String("date", candidate.Date.String()),
		slog.String("time", candidate.Time.String()),
		slog.Int("duration_minutes", candidate.DurationMinutes),
		slog.Any("conflicting_ids", ids),
	)
	return &ConflictError{Conflicts: conflicts}
}

func (s *Service) scheduledOn(ctx context.Context, day domain.Date) ([]domain.Appointment, error) {
	sameDay, err := s.repo.FilterByDate(ctx, day)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Appointment, 0, len(sameDay))
	for _, a := range sameDay {
		if a.IsScheduled() {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *Service) get(ctx context.Context, id int64) (domain.Appointment, error) {
	appt, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.Appointment{}, s.notFound(err, id)
	}
	return appt, nil
}

func (s *Service) notFound(err error, id int64) error {
	if errors.Is(err, store.ErrNotFound) {
		return &NotFoundError{ID: id, Reason: "not found"}
	}
	return err
}

func (s *Service) duration(requested *int) (int, error) {
	minutes := s.defaults.DurationMinutes
	if requested != nil {
		minutes = *requested
	}
	if minutes <= 0 {
		return 0, validationError("duration_minutes must be positive")
	}
	return minutes, nil
}

func parseSlot(date, at string) (domain.Date, domain.TimeOfDay, error) {
	d, err := parseDate(date)
	if err != nil {
		return domain.Date{}, 0, err
	}
	t, err := parseTime(at)
	if err != nil {
		return domain.Date{}, 0, err
	}
	return d, t, nil
}

func parseDate(s string) (domain.Date, error) {
	d, err := domain.ParseDate(strings.TrimSpace(s))
	if err != nil {
		return domain.Date{}, validationError(err.Error())
	}
	return d, nil
}

func parseTime(s string) (domain.TimeOfDay, error) {
	t, err := domain.ParseTimeOfDay(strings.TrimSpace(s))
	if err != nil {
		return 0, validationError(err.Error())
	}
	return t, nil
}

func observe(operation string, err error) {
	metrics.AppointmentOperations.WithLabelValues(operation, resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	var (
		vErr *ValidationError
		cErr *ConflictError
		nErr *NotFoundError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &vErr):
		return "validation"
	case errors.As(err, &cErr), errors.Is(err, store.ErrConflict):
		return "conflict"
	case errors.As(err, &nErr), errors.Is(err, store.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
