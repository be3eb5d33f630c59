// Package grpc exposes model readiness through the standard gRPC health service.
package grpc

import (
	"errors"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthgrpc "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/ekisa-team/speakpaint/internal/model"
)

// ServiceName is the health service name reported alongside the server-wide "" entry.
const ServiceName = "speakpaint"

const stopTimeout = 5 * time.Second

// HealthServer serves grpc.health.v1.Health. It reports SERVING only while
// the models are ready.
type HealthServer struct {
	server *grpc.Server
	health *health.Server
}

// NewHealthServer creates a health server that starts as NOT_SERVING.
func NewHealthServer() *HealthServer {
	s := &HealthServer{
		server: grpc.NewServer(),
		health: health.NewServer(),
	}
	healthgrpc.RegisterHealthServer(s.server, s.health)
	s.SetReady(false)

	return s
}

// SetReady updates the serving status.
func (s *HealthServer) SetReady(ready bool) {
	status := healthgrpc.HealthCheckResponse_NOT_SERVING
	if ready {
		status = healthgrpc.HealthCheckResponse_SERVING
	}

	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Observe follows model state changes; use it with model.WithStateObserver.
func (s *HealthServer) Observe(state model.State) {
	s.SetReady(state == model.StateReady)
}

// Serve accepts connections on l until Stop is called.
func (s *HealthServer) Serve(l net.Listener) error {
	if err := s.server.Serve(l); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Stop marks the service as not serving and stops the server, forcing it
// after a grace period.
func (s *HealthServer) Stop() {
	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(stopTimeout):
		slog.Warn("gRPC graceful stop timed out, forcing stop")
		s.server.Stop()
	}
}
