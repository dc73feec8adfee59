package main

import (
	"context"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/banshee-data/arpositioning/internal/monitoring"
)

// healthService is the service name reported alongside the server-wide
// ("") status.
const healthService = "arpos.session"

// sessionHealth reports whether the tracker session is usable.
// *session.Controller implements it.
type sessionHealth interface {
	Unrecoverable() bool
}

// serveHealth runs a gRPC health server on lis until ctx is cancelled. The
// serving status is NOT_SERVING while the session is unrecoverable and is
// refreshed every interval.
func serveHealth(ctx context.Context, lis net.Listener, src sessionHealth, interval time.Duration) error {
	server := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(server, hs)

	last := healthpb.HealthCheckResponse_UNKNOWN
	update := func() {
		status := healthpb.HealthCheckResponse_SERVING
		if src.Unrecoverable() {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		if status == last {
			return
		}
		last = status
		hs.SetServingStatus("", status)
		hs.SetServingStatus(healthService, status)
		monitoring.Logf("health: %s", status)
	}
	update()

	errCh := make(chan error, 1)
	go func() { errCh <- server.Serve(lis) }()
	monitoring.Logf("health server listening on %s", lis.Addr())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			hs.Shutdown()
			server.GracefulStop()
			<-errCh
			return nil
		case err := <-errCh:
			return err
		case <-ticker.C:
			update()
		}
	}
}
