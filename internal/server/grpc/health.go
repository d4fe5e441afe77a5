// Package grpcserver runs the gRPC health endpoint of furni-api.
package grpcserver

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name of the REST API.
const ServiceName = "furni.api"

// Pinger reports database reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Health serves grpc.health.v1 with a status driven by database pings.
type Health struct {
	srv    *grpc.Server
	status *health.Server
	db     Pinger
	log    *zap.Logger
}

// NewHealth builds the server. Status starts as NOT_SERVING until Check
// succeeds.
func NewHealth(db Pinger, log *zap.Logger) *Health {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("grpc")
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(
		RecoverUnary(log),
		LoggingUnary(log),
	))
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return &Health{srv: srv, status: hs, db: db, log: log}
}

// Check pings the database and publishes the result.
func (h *Health) Check(ctx context.Context) bool {
	st := healthpb.HealthCheckResponse_SERVING
	if err := h.db.Ping(ctx); err != nil {
		h.log.Warn("database ping failed", zap.Error(err))
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.status.SetServingStatus("", st)
	h.status.SetServingStatus(ServiceName, st)
	return st == healthpb.HealthCheckResponse_SERVING
}

// Watch repeats Check every interval until ctx is done.
func (h *Health) Watch(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, interval)
			h.Check(pctx)
			cancel()
		}
	}
}

// Serve blocks serving on lis.
func (h *Health) Serve(lis net.Listener) error {
	return h.srv.Serve(lis)
}

// Shutdown reports NOT_SERVING to every watcher and stops gracefully.
func (h *Health) Shutdown() {
	h.status.Shutdown()
	h.srv.GracefulStop()
}
