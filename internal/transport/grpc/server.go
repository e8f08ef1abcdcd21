package grpc

import (
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type ServerOptions struct {
	RequestTimeout time.Duration
}

// NewServer builds a grpc.Server with the scheduler service and the standard
// health service registered. The returned health server is already SERVING.
func NewServer(svc appointmentsService, log *slog.Logger, opts ServerOptions) (*grpc.Server, *health.Server) {
	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			RequestIDInterceptor(),
			MetricsInterceptor(),
			DefaultTimeoutInterceptor(opts.RequestTimeout),
		),
	)
	RegisterSchedulerServiceServer(server, NewAppointmentsServer(svc, log))

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, hs)

	return server, hs
}
