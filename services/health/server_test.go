package health

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

type flagChecker struct{ ready atomic.Bool }

func (f *flagChecker) Ready() bool { return f.ready.Load() }

func startServer(t *testing.T, checker Checker) (*Server, healthpb.HealthClient) {
	t.Helper()
	listener := bufconn.Listen(1 << 20)
	srv := NewServer(checker, nil)
	go func() {
		if err := srv.Serve(listener); err != nil {
			t.Errorf("serve bufconn: %v", err)
		}
	}()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Stop(ctx)
	})

	conn, err := grpc.DialContext(context.Background(), "bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return listener.Dial()
	}), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return srv, healthpb.NewHealthClient(conn)
}

func check(t *testing.T, client healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestStatusFollowsChecker(t *testing.T) {
	checker := &flagChecker{}
	srv, client := startServer(t, checker)

	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, client, ""))

	checker.ready.Store(true)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, srv.Refresh())
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, client, ""))
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, client, ServiceName))

	checker.ready.Store(false)
	srv.Refresh()
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, client, ServiceName))
}

func TestWatchRefreshesUntilCancelled(t *testing.T) {
	checker := &flagChecker{}
	checker.ready.Store(true)
	srv, client := startServer(t, checker)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		srv.Watch(ctx, 10*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool {
		resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{})
		return err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_SERVING
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watch did not stop")
	}
}

type sinkFlagChecker struct {
	flagChecker
	sinksOK atomic.Bool
}

func (s *sinkFlagChecker) SinksHealthy() bool { return s.sinksOK.Load() }

func TestArchiveStatusTracksSinkBacklog(t *testing.T) {
	checker := &sinkFlagChecker{}
	checker.ready.Store(true)
	checker.sinksOK.Store(true)
	srv, client := startServer(t, checker)

	srv.Refresh()
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, client, ArchiveServiceName))

	checker.sinksOK.Store(false)
	srv.Refresh()
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, client, ArchiveServiceName))
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, client, ServiceName))
}
