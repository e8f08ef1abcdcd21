// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// AppointmentOperations counts scheduler operations by outcome
	// (ok, validation, conflict, not_found, error).
	AppointmentOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schedula_appointment_operations_total",
			Help: "Scheduler operations by operation and result",
		},
		[]string{"operation", "result"},
	)

	RPCRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schedula_grpc_requests_total",
			Help: "gRPC requests by method and status code",
		},
		[]string{"method", "code"},
	)

	RPCDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "schedula_grpc_request_duration_seconds",
			Help:    "gRPC request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

func Handler() http.Handler {
	return promhttp.Handler()
}
