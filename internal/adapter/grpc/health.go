package grpc

import (
	"context"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/patidost/listing-service/internal/platform/logger"
)

// CacheServiceName is the health service name that follows the listing
// cache: SERVING while it is active.
const CacheServiceName = "patidost.ListingCache"

type StatusSetter interface {
	SetServingStatus(service string, status healthpb.HealthCheckResponse_ServingStatus)
}

type ActiveReporter interface {
	Active() bool
}

type CacheHealth struct {
	setter StatusSetter
	cache  ActiveReporter
	logger *logger.Logger
	last   healthpb.HealthCheckResponse_ServingStatus
}

func NewCacheHealth(setter StatusSetter, cache ActiveReporter, log *logger.Logger) *CacheHealth {
	return &CacheHealth{
		setter: setter,
		cache:  cache,
		logger: log.Named("CacheHealth"),
		last:   healthpb.HealthCheckResponse_UNKNOWN,
	}
}

// Sync publishes the current cache state.
func (h *CacheHealth) Sync() {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if h.cache.Active() {
		status = healthpb.HealthCheckResponse_SERVING
	}
	if status == h.last {
		return
	}
	h.setter.SetServingStatus(CacheServiceName, status)
	h.logger.Info("CacheHealth: status changed", "service", CacheServiceName, "status", status.String())
	h.last = status
}

// Run syncs every interval until ctx is done.
func (h *CacheHealth) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	h.Sync()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Sync()
		}
	}
}
