package health

import (
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// NewGRPCServer returns a gRPC server exposing the standard health service.
// Its serving status follows the checker after every run.
func NewGRPCServer(c *Checker, opts ...grpc.ServerOption) *grpc.Server {
	srv := grpc.NewServer(opts...)
	hs := grpchealth.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	c.mutex.Lock()
	c.grpc = hs
	healthy := c.healthyLocked()
	c.mutex.Unlock()

	hs.SetServingStatus("", servingStatus(healthy))
	return srv
}
