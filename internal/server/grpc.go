package server

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health-checked service reported by the gRPC health
// server in addition to the overall ("") status.
const ServiceName = "discovery.Pipeline"

// NewGRPCServer returns a gRPC server exposing hs and reflection behind
// recovery, logging and bearer auth.
func NewGRPCServer(hs *health.Server, authToken string, logger *slog.Logger) *grpc.Server {
	if logger == nil {
		logger = slog.Default()
	}
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			recoveryInterceptor(logger),
			loggingInterceptor(logger),
			AuthInterceptor(authToken),
		),
	)

	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	return srv
}

// WatchUpstream checks the discovery API every interval and mirrors its
// availability into hs until ctx is done.
func (s *DiscoveryServer) WatchUpstream(ctx context.Context, hs *health.Server, interval time.Duration) {
	check := func() {
		pctx, cancel := context.WithTimeout(ctx, healthTimeout)
		defer cancel()
		st := healthpb.HealthCheckResponse_SERVING
		if _, err := s.client.Health(pctx); err != nil {
			st = healthpb.HealthCheckResponse_NOT_SERVING
			s.logger.Warn("upstream health check failed", "error", err)
		}
		hs.SetServingStatus(ServiceName, st)
	}

	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	check()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-ticker.C:
			check()
		}
	}
}
