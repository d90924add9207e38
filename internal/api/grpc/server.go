// Package grpc serves the standard gRPC health service for the leader.
package grpc

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health service name the leader reports under
const ServiceName = "trunkgate.Leader"

// Probe reports whether a dependency is reachable
type Probe func(ctx context.Context) error

// Server wraps a gRPC server exposing health status
type Server struct {
	server *grpc.Server
	health *health.Server
	logger *zap.Logger
}

// NewServer creates a new gRPC server. It reports NOT_SERVING until
// SetServing is called.
func NewServer(logger *zap.Logger) *Server {
	s := &Server{
		server: grpc.NewServer(),
		health: health.NewServer(),
		logger: logger,
	}
	healthpb.RegisterHealthServer(s.server, s.health)
	reflection.Register(s.server)
	s.SetServing(false)
	return s
}

// SetServing sets the status of the leader and the overall server
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(ServiceName, status)
	s.health.SetServingStatus("", status)
}

// Watch runs probe every interval and reflects its outcome in the health
// status until ctx is done.
func (s *Server) Watch(ctx context.Context, probe Probe, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s.check(ctx, probe)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) check(ctx context.Context, probe Probe) {
	if err := probe(ctx); err != nil {
		s.logger.Warn("health probe failed", zap.Error(err))
		s.SetServing(false)
		return
	}
	s.SetServing(true)
}

// Serve accepts connections on lis until Stop is called
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("starting grpc server", zap.String("addr", lis.Addr().String()))
	if err := s.server.Serve(lis); err != nil {
		return fmt.Errorf("failed to serve grpc: %w", err)
	}
	return nil
}

// Stop marks the server as shutting down and stops it gracefully
func (s *Server) Stop() {
	s.health.Shutdown()
	s.server.GracefulStop()
}
