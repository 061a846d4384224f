// Package connect retries the first connection to a backing service while
// the process starts. Request paths never retry automatically.
package connect

import (
	"context"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"github.com/patidost/listing-service/internal/platform/logger"
)

// Policy bounds the startup attempts.
type Policy struct {
	Attempts uint
	Delay    time.Duration
	MaxDelay time.Duration
}

func DefaultPolicy() Policy {
	return Policy{Attempts: 8, Delay: 500 * time.Millisecond, MaxDelay: 15 * time.Second}
}

// Do calls dial until it succeeds, the attempts run out or ctx ends.
func Do(ctx context.Context, log *logger.Logger, service string, p Policy, dial func() error) error {
	return retry.Do(
		dial,
		retry.Attempts(p.Attempts),
		retry.Delay(p.Delay),
		retry.MaxDelay(p.MaxDelay),
		retry.MaxJitter(p.Delay),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			log.Warn("connect: attempt failed, retrying", "service", service, "attempt", n+1, "error", err)
		}),
	)
}
