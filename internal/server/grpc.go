package server

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// HealthServiceName is the service name reported alongside the overall ("")
// status.
const HealthServiceName = "cbam.v1.Estimator"

// NewGRPCServer returns a gRPC server carrying only the standard health
// service and reflection, with every status set to SERVING.
func NewGRPCServer(opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	gs := grpc.NewServer(opts...)

	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(gs, hs)
	hs.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	hs.SetServingStatus(HealthServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	// reflection for grpcurl
	reflection.Register(gs)
	return gs, hs
}
