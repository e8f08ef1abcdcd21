package grpc

import (
	"context"
	"errors"
	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"schedula/internal/domain"
	"schedula/internal/service/appointments"
	"schedula/internal/store"
)

type AppointmentsServer struct {
	svc appointmentsService
	log *slog.Logger
}

type appointmentsService interface {
	Create(ctx context.Context, in appointments.CreateInput) (domain.Appointment, error)
	Reschedule(ctx context.Context, id int64, in appointments.RescheduleInput) (domain.Appointment, error)
	Cancel(ctx context.Context, id int64) (domain.Appointment, error)
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (domain.Appointment, error)
	List(ctx context.Context, includeCancelled bool) ([]domain.Appointment, error)
	AvailableSlots(ctx context.Context, date string, q appointments.SlotQuery) ([]domain.TimeOfDay, error)
	DaySchedule(ctx context.Context, date string) ([]domain.Appointment, error)
	Upcoming(ctx context.Context, today domain.Date, horizonDays int) ([]domain.Appointment, error)
}

func NewAppointmentsServer(svc appointmentsService, log *slog.Logger) *AppointmentsServer {
	if log == nil {
		log = slog.Default()
	}
	return &AppointmentsServer{
		svc: svc,
		log: log.With(slog.String("component", "grpc.appointments")),
	}
}

func (s *AppointmentsServer) CreateAppointment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.rpcLogger(ctx, "CreateAppointment")

	var in appointments.CreateInput
	var err error
	if in.Title, err = stringField(req, "title"); err != nil {
		return nil, invalidArgument(log, err)
	}
	if in.Date, err = stringField(req, "date"); err != nil {
		return nil, invalidArgument(log, err)
	}
	if in.Time, err = stringField(req, "time"); err != nil {
		return nil, invalidArgument(log, err)
	}
	if in.ClientName, err = stringField(req, "client_name"); err != nil {
		return nil, invalidArgument(log, err)
	}
	if in.Description, err = stringField(req, "description"); err != nil {
		return nil, invalidArgument(log, err)
	}
	if in.DurationMinutes, err = optionalIntField(req, "duration_minutes"); err != nil {
		return nil, invalidArgument(log, err)
	}

	appt, err := s.svc.Create(ctx, in)
	if err != nil {
		return nil, s.statusError(log, "appointment create failed", err, slog.String("date", in.Date), slog.String("time", in.Time))
	}

	log.Info("appointment created", slog.Int64("appointment_id", appt.ID))
	return structpb.NewStruct(map[string]any{"appointment": appointmentFields(appt)})
}

func (s *AppointmentsServer) RescheduleAppointment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.rpcLogger(ctx, "RescheduleAppointment")

	id, err := idField(req)
	if err != nil {
		return nil, invalidArgument(log, err)
	}
	var in appointments.RescheduleInput
	if in.Date, err = stringField(req, "date"); err != nil {
		return nil, invalidArgument(log, err)
	}
	if in.Time, err = stringField(req, "time"); err != nil {
		return nil, invalidArgument(log, err)
	}
	if in.DurationMinutes, err = optionalIntField(req, "duration_minutes"); err != nil {
		return nil, invalidArgument(log, err)
	}

	appt, err := s.svc.Reschedule(ctx, id, in)
	if err != nil {
		return nil, s.statusError(log, "appointment reschedule failed", err, slog.Int64("appointment_id", id))
	}

	log.Info("appointment rescheduled", slog.Int64("appointment_id", id))
	return structpb.NewStruct(map[string]any{"appointment": appointmentFields(appt)})
}

func (s *AppointmentsServer) CancelAppointment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.rpcLogger(ctx, "CancelAppointment")

	id, err := idField(req)
	if err != nil {
		return nil, invalidArgument(log, err)
	}
	appt, err := s.svc.Cancel(ctx, id)
	if err != nil {
		return nil, s.statusError(log, "appointment cancel failed", err, slog.Int64("appointment_id", id))
	}

	log.Info("appointment cancelled", slog.Int64("appointment_id", id))
	return structpb.NewStruct(map[string]any{"appointment": appointmentFields(appt)})
}

func (s *AppointmentsServer) DeleteAppointment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.rpcLogger(ctx, "DeleteAppointment")

	id, err := idField(req)
	if err != nil {
		return nil, invalidArgument(log, err)
	}
	if err := s.svc.Delete(ctx, id); err != nil {
		return nil, s.statusError(log, "appointment delete failed", err, slog.Int64("appointment_id", id))
	}

	log.Info("appointment deleted", slog.Int64("appointment_id", id))
	return &structpb.Struct{Fields: map[string]*structpb.Value{}}, nil
}

func (s *AppointmentsServer) GetAppointment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.rpcLogger(ctx, "GetAppointment")

	id, err := idField(req)
	if err != nil {
		return nil, invalidArgument(log, err)
	}
	appt, err := s.svc.Get(ctx, id)
	if err != nil {
		return nil, s.statusError(log, "appointment get failed", err, slog.Int64("appointment_id", id))
	}
	return structpb.NewStruct(map[string]any{"appointment": appointmentFields(appt)})
}

func (s *AppointmentsServer) ListAppointments(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.rpcLogger(ctx, "ListAppointments")

	includeCancelled, err := boolField(req, "include_cancelled")
	if err != nil {
		return nil, invalidArgument(log, err)
	}
	appts, err := s.svc.List(ctx, includeCancelled)
	if err != nil {
		return nil, s.statusError(log, "appointments list failed", err)
	}

	log.Debug("appointments listed", slog.Int("count", len(appts)), slog.Bool("include_cancelled", includeCancelled))
	return structpb.NewStruct(map[string]any{"appointments": appointmentList(appts)})
}

func (s *AppointmentsServer) AvailableSlots(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.rpcLogger(ctx, "AvailableSlots")

	date, err := stringField(req, "date")
	if err != nil {
		return nil, invalidArgument(log, err)
	}
	var q appointments.SlotQuery
	if q.DurationMinutes, err = optionalIntField(req, "duration_minutes"); err != nil {
		return nil, invalidArgument(log, err)
	}
	step, _, err := intField(req, "step_minutes")
	if err != nil {
		return nil, invalidArgument(log, err)
	}
	q.StepMinutes = int(step)
	if q.DayStart, err = stringField(req, "day_start"); err != nil {
		return nil, invalidArgument(log, err)
	}
	if q.DayEnd, err = stringField(req, "day_end"); err != nil {
		return nil, invalidArgument(log, err)
	}

	slots, err := s.svc.AvailableSlots(ctx, date, q)
	if err != nil {
		return nil, s.statusError(log, "available slots failed", err, slog.String("date", date))
	}

	log.Debug("available slots listed", slog.String("date", date), slog.Int("count", len(slots)))
	return structpb.NewStruct(map[string]any{"date": date, "slots": slotList(slots)})
}

func (s *AppointmentsServer) DaySchedule(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.rpcLogger(ctx, "DaySchedule")

	date, err := stringField(req, "date")
	if err != nil {
		return nil, invalidArgument(log, err)
	}
	appts, err := s.svc.DaySchedule(ctx, date)
	if err != nil {
		return nil, s.statusError(log, "day schedule failed", err, slog.String("date", date))
	}
	return structpb.NewStruct(map[string]any{"date": date, "appointments": appointmentList(appts)})
}

func (s *AppointmentsServer) UpcomingAppointments(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.rpcLogger(ctx, "UpcomingAppointments")

	from, err := stringField(req, "from")
	if err != nil {
		return nil, invalidArgument(log, err)
	}
	var today domain.Date
	if from != "" {
		if today, err = domain.ParseDate(from); err != nil {
			return nil, invalidArgument(log, err)
		}
	}
	days, _, err := intField(req, "days")
	if err != nil {
		return nil, invalidArgument(log, err)
	}

	appts, err := s.svc.Upcoming(ctx, today, int(days))
	if err != nil {
		return nil, s.statusError(log, "upcoming appointments failed", err)
	}
	return structpb.NewStruct(map[string]any{"appointments": appointmentList(appts)})
}

func (s *AppointmentsServer) rpcLogger(ctx context.Context, rpc string) *slog.Logger {
	log := s.log.With(slog.String("rpc", rpc))
	if id := RequestIDFromContext(ctx); id != "" {
		log = log.With(slog.String("request_id", id))
	}
	return log
}

func invalidArgument(log *slog.Logger, err error) error {
	log.Warn("invalid request", slog.Any("err", err))
	return status.Error(codes.InvalidArgument, err.Error())
}

// statusError maps service errors onto gRPC codes. Unexpected errors are
// logged and hidden behind codes.Internal.
func (s *AppointmentsServer) statusError(log *slog.Logger, msg string, err error, args ...any) error {
	var (
		vErr *appointments.ValidationError
		cErr *appointments.ConflictError
		nErr *appointments.NotFoundError
	)
	switch {
	case errors.As(err, &vErr):
		log.Warn("invalid request", append([]any{slog.Any("err", err)}, args...)...)
		return status.Error(codes.InvalidArgument, vErr.Error())
	case errors.As(err, &cErr):
		log.Info("appointment conflict", append([]any{slog.Int("conflicts", len(cErr.Conflicts))}, args...)...)
		return status.Error(codes.FailedPrecondition, cErr.Error())
	case errors.Is(err, store.ErrConflict):
		log.Info("appointment conflict", args...)
		return status.Error(codes.FailedPrecondition, "That time overlaps an existing appointment. Pick a different slot.")
	case errors.As(err, &nErr):
		log.Info("appointment not found", args...)
		return status.Error(codes.NotFound, nErr.Error())
	case errors.Is(err, store.ErrNotFound):
		log.Info("appointment not found", args...)
		return status.Error(codes.NotFound, "appointment not found")
	case errors.Is(err, context.DeadlineExceeded):
		log.Warn(msg, append([]any{slog.Any("err", err)}, args...)...)
		return status.Error(codes.DeadlineExceeded, "request timed out")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request cancelled")
	}
	log.Error(msg, append([]any{slog.Any("err", err)}, args...)...)
	return status.Error(codes.Internal, "internal error")
}
