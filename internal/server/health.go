package server

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/triage-ai/inspection/internal/lifecycle"
)

// ServiceName is the gRPC health service name reported for inspection.
const ServiceName = "inspection.v1.InspectionService"

// NewHealthServer returns a health server that reports NOT_SERVING until
// the hook from HealthHook sees StateReady.
func NewHealthServer() *health.Server {
	h := health.NewServer()
	h.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	h.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

// HealthHook mirrors lifecycle transitions into h. Pass it as
// lifecycle.Config.OnStateChange.
func HealthHook(h *health.Server) func(lifecycle.State) {
	return func(s lifecycle.State) {
		status := healthpb.HealthCheckResponse_NOT_SERVING
		if s == lifecycle.StateReady {
			status = healthpb.HealthCheckResponse_SERVING
		}
		h.SetServingStatus("", status)
		h.SetServingStatus(ServiceName, status)
	}
}

// NewGRPCServer returns a gRPC server exposing the health service.
func NewGRPCServer(h *health.Server, opts ...grpc.ServerOption) *grpc.Server {
	s := grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(s, h)
	return s
}
