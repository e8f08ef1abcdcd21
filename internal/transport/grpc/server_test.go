package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"schedula/internal/metrics"
	"schedula/internal/service/appointments"
	"schedula/internal/store/file"
)

func startBufconnServer(t *testing.T) *grpc.ClientConn {
	t.Helper()

	repo := file.NewAppointmentRepo(afero.NewMemMapFs(), "/data/appointments.json")
	svc := appointments.NewService(repo, appointments.WithLogger(quietLogger()), appointments.WithClock(func() time.Time {
		return time.Date(2026, 1, 20, 8, 0, 0, 0, time.UTC)
	}))
	server, _ := NewServer(svc, quietLogger(), ServerOptions{RequestTimeout: 5 * time.Second})

	lis := bufconn.Listen(1 << 20)
	go func() {
		_ = server.Serve(lis)
	}()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient(
		"passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func invoke(ctx context.Context, conn *grpc.ClientConn, method string, body map[string]any, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(body)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := conn.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func TestBufconn_BookingLifecycle(t *testing.T) {
	conn := startBufconnServer(t)
	ctx := context.Background()

	created, err := invoke(ctx, conn, "CreateAppointment", map[string]any{
		"title": "Consult", "date": "2026-01-20", "time": "10:00", "duration_minutes": 60,
	})
	if err != nil {
		t.Fatalf("CreateAppointment error: %v", err)
	}
	id := created.GetFields()["appointment"].GetStructValue().GetFields()["id"].GetNumberValue()
	if id != 1 {
		t.Fatalf("id = %v, want 1", id)
	}

	_, err = invoke(ctx, conn, "CreateAppointment", map[string]any{
		"title": "Overlap", "date": "2026-01-20", "time": "10:30", "duration_minutes": 30,
	})
	if status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("overlap code = %v, want %v", status.Code(err), codes.FailedPrecondition)
	}

	slots, err := invoke(ctx, conn, "AvailableSlots", map[string]any{"date": "2026-01-20", "duration_minutes": 60})
	if err != nil {
		t.Fatalf("AvailableSlots error: %v", err)
	}
	for _, v := range slots.GetFields()["slots"].GetListValue().GetValues() {
		if v.GetStringValue() == "09:30" || v.GetStringValue() == "10:00" {
			t.Fatalf("slot %s overlaps the booking", v.GetStringValue())
		}
	}

	cancelled, err := invoke(ctx, conn, "CancelAppointment", map[string]any{"id": 1})
	if err != nil {
		t.Fatalf("CancelAppointment error: %v", err)
	}
	if st := cancelled.GetFields()["appointment"].GetStructValue().GetFields()["status"].GetStringValue(); st != "cancelled" {
		t.Fatalf("status = %q, want cancelled", st)
	}

	_, err = invoke(ctx, conn, "RescheduleAppointment", map[string]any{"id": 1, "date": "2026-01-21", "time": "10:00"})
	if status.Code(err) != codes.NotFound {
		t.Fatalf("reschedule cancelled code = %v, want %v", status.Code(err), codes.NotFound)
	}

	if _, err := invoke(ctx, conn, "DeleteAppointment", map[string]any{"id": 1}); err != nil {
		t.Fatalf("DeleteAppointment error: %v", err)
	}
	_, err = invoke(ctx, conn, "GetAppointment", map[string]any{"id": 1})
	if status.Code(err) != codes.NotFound {
		t.Fatalf("get deleted code = %v, want %v", status.Code(err), codes.NotFound)
	}
}

func TestBufconn_ExplicitZeroDurationIsRejected(t *testing.T) {
	conn := startBufconnServer(t)
	ctx := context.Background()

	_, err := invoke(ctx, conn, "CreateAppointment", map[string]any{
		"title": "Consult", "date": "2026-01-20", "time": "10:00", "duration_minutes": 0,
	})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("create code = %v, want %v", status.Code(err), codes.InvalidArgument)
	}
	_, err = invoke(ctx, conn, "AvailableSlots", map[string]any{"date": "2026-01-20", "duration_minutes": 0})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("slots code = %v, want %v", status.Code(err), codes.InvalidArgument)
	}

	created, err := invoke(ctx, conn, "CreateAppointment", map[string]any{
		"title": "Consult", "date": "2026-01-20", "time": "10:00",
	})
	if err != nil {
		t.Fatalf("CreateAppointment error: %v", err)
	}
	if d := created.GetFields()["appointment"].GetStructValue().GetFields()["duration_minutes"].GetNumberValue(); d != 60 {
		t.Fatalf("duration_minutes = %v, want 60", d)
	}
}

func TestBufconn_RequestIDIsEchoed(t *testing.T) {
	conn := startBufconnServer(t)

	ctx := metadata.AppendToOutgoingContext(context.Background(), RequestIDMetadataKey, "req-123")
	var header metadata.MD
	if _, err := invoke(ctx, conn, "ListAppointments", map[string]any{}, grpc.Header(&header)); err != nil {
		t.Fatalf("ListAppointments error: %v", err)
	}
	if got := header.Get(RequestIDMetadataKey); len(got) != 1 || got[0] != "req-123" {
		t.Fatalf("x-request-id = %v, want [req-123]", got)
	}

	header = nil
	if _, err := invoke(context.Background(), conn, "ListAppointments", map[string]any{}, grpc.Header(&header)); err != nil {
		t.Fatalf("ListAppointments error: %v", err)
	}
	if got := header.Get(RequestIDMetadataKey); len(got) != 1 || len(got[0]) != 36 {
		t.Fatalf("generated x-request-id = %v, want a uuid", got)
	}
}

func TestBufconn_HealthAndMetrics(t *testing.T) {
	conn := startBufconnServer(t)
	ctx := context.Background()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		t.Fatalf("health Check error: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("health = %v, want SERVING", resp.GetStatus())
	}

	counter := metrics.RPCRequests.WithLabelValues("GetAppointment", codes.NotFound.String())
	before := testutil.ToFloat64(counter)
	if _, err := invoke(ctx, conn, "GetAppointment", map[string]any{"id": 42}); status.Code(err) != codes.NotFound {
		t.Fatalf("code = %v, want %v", status.Code(err), codes.NotFound)
	}
	if after := testutil.ToFloat64(counter); after != before+1 {
		t.Fatalf("requests counter = %v, want %v", after, before+1)
	}
}

func TestDefaultTimeoutInterceptor_AddsDeadline(t *testing.T) {
	interceptor := DefaultTimeoutInterceptor(time.Second)

	_, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{}, func(ctx context.Context, req any) (any, error) {
		if _, ok := ctx.Deadline(); !ok {
			t.Fatalf("expected deadline")
		}
		return nil, nil
	})
	if err != nil {
		t.Fatalf("interceptor error: %v", err)
	}

	parent, cancel := context.WithTimeout(context.Background(), time.Hour)
	defer cancel()
	want, _ := parent.Deadline()
	_, _ = interceptor(parent, nil, &grpc.UnaryServerInfo{}, func(ctx context.Context, req any) (any, error) {
		if got, _ := ctx.Deadline(); !got.Equal(want) {
			t.Fatalf("deadline = %v, want caller's %v", got, want)
		}
		return nil, nil
	})
}
