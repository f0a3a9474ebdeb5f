package grpchealth

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/stats"
)

// ServiceName is the health-check service name reported for the whole
// process. A single aggregate service, rather than one per component,
// matches how the HTTP /healthz endpoint (see internal/httpapi) reports
// a single process-wide health verdict.
const ServiceName = "incidentforge"

// Server wraps the standard grpc.health.v1.Health service and the gRPC
// server that exposes it. No hand-written service descriptor is used: the
// health protocol is served entirely through grpc-go's pre-generated
// grpc_health_v1 package.
type Server struct {
	health *health.Server
	grpc   *grpc.Server
}

// New builds a Server with the given stats.Handler attached (see
// ServerHandler/ServerHandlerWithProviders). The health service starts in
// the NOT_SERVING state for ServiceName until SetServing is called.
func New(handler stats.Handler) *Server {
	gs := grpc.NewServer(grpc.StatsHandler(handler))

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(gs, hs)

	return &Server{health: hs, grpc: gs}
}

// SetServing marks the process as healthy/ready.
func (s *Server) SetServing() {
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
}

// SetNotServing marks the process as unhealthy/not-ready, e.g. while the
// store connection is down or a run is tearing down.
func (s *Server) SetNotServing() {
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
}

// GRPCServer returns the underlying *grpc.Server so callers can attach it to
// a listener with Serve.
func (s *Server) GRPCServer() *grpc.Server {
	return s.grpc
}

// GracefulStop stops accepting new RPCs and blocks until pending RPCs finish.
func (s *Server) GracefulStop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
