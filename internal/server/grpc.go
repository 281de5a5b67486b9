package server

import (
	"context"
	"log"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// PipelineService is the health service name reported for the consumer pipeline.
const PipelineService = "ledger.Pipeline"

// NewGRPCServer creates a gRPC server with health and reflection registered
func NewGRPCServer() (*grpc.Server, *health.Server) {
	opts := []grpc.ServerOption{
		grpc.MaxRecvMsgSize(1024 * 1024 * 4), // 4MB max receive message size
		grpc.MaxSendMsgSize(1024 * 1024 * 4), // 4MB max send message size
	}

	s := grpc.NewServer(opts...)
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(s, healthServer)
	reflection.Register(s)

	return s, healthServer
}

// WatchLiveness updates the pipeline health status every interval until ctx is done.
// The pipeline is SERVING while at least one consumer is alive or none are configured.
func WatchLiveness(ctx context.Context, healthServer *health.Server, liveness Liveness, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := healthpb.HealthCheckResponse_UNKNOWN
	for {
		status := livenessStatus(liveness)
		if status != last {
			log.Printf("Pipeline health changed: status=%s", status)
			healthServer.SetServingStatus(PipelineService, status)
			healthServer.SetServingStatus("", status)
			last = status
		}

		select {
		case <-ctx.Done():
			healthServer.Shutdown()
			return
		case <-ticker.C:
		}
	}
}

func livenessStatus(liveness Liveness) healthpb.HealthCheckResponse_ServingStatus {
	if len(liveness.Topics()) > 0 && liveness.Alive() == 0 {
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
	return healthpb.HealthCheckResponse_SERVING
}
