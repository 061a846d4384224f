package grpc

import (
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"

	"github.com/patidost/listing-service/internal/adapter/grpc/middleware"
	"github.com/patidost/listing-service/internal/platform/logger"
)

// NewGRPCServer builds a server exposing the standard health service. The
// returned cleanup marks everything NOT_SERVING and stops gracefully.
func NewGRPCServer(appLogger *logger.Logger, maxConnectionIdle time.Duration) (*grpc.Server, *health.Server, func()) {
	server := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(middleware.LoggingInterceptor(appLogger)),
		grpc.KeepaliveParams(keepalive.ServerParameters{MaxConnectionIdle: maxConnectionIdle}),
	)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(server, healthServer)
	healthServer.SetServingStatus(CacheServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	appLogger.Info("gRPC server configured with health service and interceptors: Tracing, Logging")

	cleanup := func() {
		appLogger.Info("Calling gRPC server's GracefulStop...")
		healthServer.Shutdown()
		server.GracefulStop()
		appLogger.Info("gRPC server GracefulStop completed.")
	}

	return server, healthServer, cleanup
}
