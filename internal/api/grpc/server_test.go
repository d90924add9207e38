package grpc

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

func startServer(t *testing.T) (*Server, healthpb.HealthClient) {
	t.Helper()
	lis := bufconn.Listen(1024 * 1024)
	s := NewServer(zap.NewNop())
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return s, healthpb.NewHealthClient(conn)
}

func status(t *testing.T, client healthpb.HealthClient) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestServer_HealthStatus(t *testing.T) {
	s, client := startServer(t)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status(t, client))

	s.SetServing(true)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status(t, client))

	resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestServer_Watch(t *testing.T) {
	s, client := startServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	healthy := make(chan bool, 1)
	healthy <- true
	probe := func(context.Context) error {
		select {
		case ok := <-healthy:
			if !ok {
				return errors.New("temporal unreachable")
			}
			return nil
		default:
			return errors.New("temporal unreachable")
		}
	}

	s.check(ctx, probe)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status(t, client))

	go s.Watch(ctx, probe, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
		return err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_NOT_SERVING
	}, time.Second, 10*time.Millisecond)
}
