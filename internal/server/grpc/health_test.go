package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthgrpc "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/ekisa-team/speakpaint/internal/model"
)

const bufSize = 1024 * 1024

func startHealth(t *testing.T) (*HealthServer, healthgrpc.HealthClient) {
	t.Helper()

	lis := bufconn.Listen(bufSize)
	srv := NewHealthServer()

	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufconn",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
			return lis.Dial()
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return srv, healthgrpc.NewHealthClient(conn)
}

func check(t *testing.T, client healthgrpc.HealthClient, service string) healthgrpc.HealthCheckResponse_ServingStatus {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := client.Check(ctx, &healthgrpc.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestHealthServer_FollowsModelState(t *testing.T) {
	srv, client := startHealth(t)

	assert.Equal(t, healthgrpc.HealthCheckResponse_NOT_SERVING, check(t, client, ""))
	assert.Equal(t, healthgrpc.HealthCheckResponse_NOT_SERVING, check(t, client, ServiceName))

	srv.Observe(model.StateLoading)
	assert.Equal(t, healthgrpc.HealthCheckResponse_NOT_SERVING, check(t, client, ServiceName))

	srv.Observe(model.StateReady)
	assert.Equal(t, healthgrpc.HealthCheckResponse_SERVING, check(t, client, ""))
	assert.Equal(t, healthgrpc.HealthCheckResponse_SERVING, check(t, client, ServiceName))

	srv.Observe(model.StateFailed)
	assert.Equal(t, healthgrpc.HealthCheckResponse_NOT_SERVING, check(t, client, ServiceName))
}
