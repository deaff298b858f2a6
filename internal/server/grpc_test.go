package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

func startGRPC(t *testing.T, hs *health.Server, token string) healthpb.HealthClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := NewGRPCServer(hs, token, slog.New(slog.DiscardHandler))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return healthpb.NewHealthClient(conn)
}

// checkStatus returns UNKNOWN when the service is not registered yet.
func checkStatus(c healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	resp, err := c.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN
	}
	return resp.GetStatus()
}

func TestWatchUpstream(t *testing.T) {
	srv, fc, _, _ := newTestServer(t)
	hs := health.NewServer()
	// Auth is on; health checks stay reachable without a token.
	client := startGRPC(t, hs, "secret")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.WatchUpstream(ctx, hs, 10*time.Millisecond)

	eventually(t, "serving status", func() bool {
		return checkStatus(client, ServiceName) == healthpb.HealthCheckResponse_SERVING
	})
	if got := checkStatus(client, ""); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected overall SERVING, got %v", got)
	}

	fc.mu.Lock()
	fc.healthErr = errors.New("connection refused")
	fc.mu.Unlock()

	eventually(t, "not serving status", func() bool {
		return checkStatus(client, ServiceName) == healthpb.HealthCheckResponse_NOT_SERVING
	})
}
