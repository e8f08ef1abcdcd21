package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"schedula/internal/cli"
	"schedula/internal/config"
	"schedula/internal/metrics"
	"schedula/internal/service/appointments"
	"schedula/internal/store"
	"schedula/internal/store/file"
	"schedula/internal/store/postgres"
	"schedula/internal/store/sqlite"
	grpcTransport "schedula/internal/transport/grpc"
)

func main() {
	args := os.Args[1:]
	serve := len(args) > 0 && args[0] == "serve"
	if serve {
		args = args[1:]
	}

	fs := pflag.NewFlagSet("schedula", pflag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: schedula [serve] [flags]")
		fs.PrintDefaults()
	}
	config.RegisterFlags(fs)
	_ = fs.Parse(args)

	// The menu owns stdout, so logs go to stderr unless serving.
	var logOut io.Writer = os.Stderr
	if serve {
		logOut = os.Stdout
	}

	log := newLogger(logOut, slog.LevelInfo)
	slog.SetDefault(log)

	cfg, err := config.Load(fs)
	if err != nil {
		log.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	log = newLogger(logOut, parseLogLevel(cfg.LogLevel))
	slog.SetDefault(log)

	// The menu blocks on stdin, so only serve traps signals; Ctrl-C ends the
	// menu the default way.
	ctx, stop := context.Background(), func() {}
	if serve {
		ctx, stop = signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	}
	defer stop()

	repo, closeRepo, err := openStore(ctx, log, cfg)
	if err != nil {
		log.Error("store open failed", slog.Any("err", err), slog.String("driver", cfg.StoreDriver))
		os.Exit(1)
	}
	defer func() {
		if err := closeRepo(); err != nil {
			log.Warn("store close failed", slog.Any("err", err))
		}
	}()

	svc := appointments.NewService(repo,
		appointments.WithLogger(log),
		appointments.WithDefaults(appointments.Defaults{
			DurationMinutes: cfg.DefaultDurationMinutes,
			DayStart:        cfg.DayStart,
			DayEnd:          cfg.DayEnd,
			StepMinutes:     cfg.StepMinutes,
			UpcomingDays:    cfg.UpcomingDays,
		}),
	)

	if serve {
		err = runServer(ctx, log, cfg, svc)
	} else {
		err = cli.NewMenu(svc, os.Stdin, os.Stdout, log).Run(ctx)
	}
	if err != nil {
		log.Error("schedula stopped with error", slog.Any("err", err))
		stop()
		os.Exit(1)
	}
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})).With(
		slog.String("service", "schedula"),
	)
}

func openStore(ctx context.Context, log *slog.Logger, cfg config.Config) (store.AppointmentRepository, func() error, error) {
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		log.Info("opening sqlite store", slog.String("path", cfg.SQLitePath))
		repo, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return repo, repo.Close, nil

	case config.DriverPostgres:
		log.Info("connecting to database", databaseLogArgs(cfg.DatabaseURL)...)
		connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		db, err := postgres.Open(connectCtx, cfg.DatabaseURL, postgres.PoolConfig{
			MaxOpenConns:    cfg.DBMaxOpenConns,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			ConnMaxLifetime: cfg.DBConnMaxLifetime,
			ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
		}, cfg.DBMigrate)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		return postgres.NewAppointmentRepo(db), func() error { return postgres.Close(db) }, nil

	default:
		log.Info("opening file store", slog.String("path", cfg.StorePath))
		return file.NewAppointmentRepo(nil, cfg.StorePath), func() error { return nil }, nil
	}
}

func runServer(ctx context.Context, log *slog.Logger, cfg config.Config, svc *appointments.Service) error {
	grpcAddr := cfg.GRPCAddr()
	log.Info("starting", slog.String("grpc_addr", grpcAddr), slog.String("log_level", cfg.LogLevel))

	grpcServer, healthServer := grpcTransport.NewServer(svc, log, grpcTransport.ServerOptions{
		RequestTimeout: cfg.GRPCRequestTimeout,
	})

	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		log.Error("grpc listen failed", slog.Any("err", err), slog.String("grpc_addr", grpcAddr))
		return err
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- grpcServer.Serve(lis)
	}()
	log.Info("grpc server started", slog.String("grpc_addr", grpcAddr))

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsServer = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
		log.Info("metrics server started", slog.String("metrics_addr", cfg.MetricsAddr))
	}

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
		shutdown(log, grpcServer, healthServer, metricsServer, cfg.ShutdownTimeout)
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Error("server stopped with error", slog.Any("err", err))
			shutdown(log, grpcServer, healthServer, metricsServer, cfg.ShutdownTimeout)
			return err
		}
		return nil
	}
}

func shutdown(log *slog.Logger, s *grpc.Server, hs *health.Server, metricsServer *http.Server, timeout time.Duration) {
	log.Info("shutting down grpc server", slog.Duration("timeout", timeout))
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(grpcTransport.ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	if metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		if err := metricsServer.Shutdown(ctx); err != nil {
			log.Warn("metrics server shutdown failed", slog.Any("err", err))
		}
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		log.Info("grpc server stopped")
	case <-timer.C:
		log.Warn("grpc graceful shutdown timed out; forcing stop")
		s.Stop()
	}
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func databaseLogArgs(databaseURL string) []any {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return []any{slog.String("db_url", "invalid")}
	}
	name := strings.TrimPrefix(u.Path, "/")
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "default"
	}
	if host == "" {
		host = "unknown"
	}
	if name == "" {
		name = "unknown"
	}
	return []any{
		slog.String("db_host", host),
		slog.String("db_port", port),
		slog.String("db_name", name),
	}
}
