package middleware

import (
	"context"
	"strings"
	"time"

	"google.golang.org/grpc"

	"github.com/patidost/listing-service/internal/platform/logger"
)

// LoggingInterceptor logs every unary call. Health probes are logged at
// debug level.
func LoggingInterceptor(logger *logger.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		duration := time.Since(start)

		switch {
		case err != nil:
			logger.Error("gRPC request failed", "method", info.FullMethod, "duration", duration, "error", err)
		case strings.HasPrefix(info.FullMethod, "/grpc.health.v1."):
			logger.Debug("gRPC health probe", "method", info.FullMethod, "duration", duration)
		default:
			logger.Info("gRPC request completed", "method", info.FullMethod, "duration", duration)
		}
		return resp, err
	}
}
