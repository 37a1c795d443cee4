package grpc

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	pkglog "tutorhub/internal/log"
	"tutorhub/internal/observability"
)

// ServiceName is the health service name reported next to the overall status.
const ServiceName = "tutorhub.Hub"

// Pinger is satisfied by *sqlx.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthServer serves grpc.health.v1 and tracks database reachability.
type HealthServer struct {
	server   *grpc.Server
	health   *health.Server
	db       Pinger
	interval time.Duration
}

func NewHealthServer(db Pinger, interval time.Duration) *HealthServer {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	s := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.UnaryInterceptor(observability.GRPCServerMetricsUnaryInterceptor()),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)

	return &HealthServer{server: s, health: hs, db: db, interval: interval}
}

// Check pings the database once and updates the served status.
func (h *HealthServer) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := h.db.PingContext(pingCtx); err != nil {
		l := pkglog.L()
		l.Warn().Err(err).Msg("database ping failed")
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(ServiceName, status)
	return status
}

// Watch refreshes the status every interval until ctx is done.
func (h *HealthServer) Watch(ctx context.Context) {
	h.Check(ctx)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Check(ctx)
		}
	}
}

// Start listens on addr and serves in the background.
func (h *HealthServer) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return h.Serve(lis)
}

func (h *HealthServer) Serve(lis net.Listener) error {
	go func() {
		l := pkglog.L()
		l.Info().Str("address", lis.Addr().String()).Msg("grpc health server listening")
		if err := h.server.Serve(lis); err != nil {
			l.Error().Err(err).Msg("grpc server error")
		}
	}()
	return nil
}

// Stop marks the service as shutting down and drains in-flight calls.
func (h *HealthServer) Stop() {
	h.health.Shutdown()
	h.server.GracefulStop()
}
