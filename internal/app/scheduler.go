package app

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"github.com/patidost/listing-service/internal/platform/logger"
)

// RunResync calls refresh at every tick of cronExpr until ctx is done. The
// expression is validated before anything is scheduled.
func RunResync(ctx context.Context, cronExpr string, refresh func(context.Context), log *logger.Logger) error {
	if !gronx.IsValid(cronExpr) {
		return fmt.Errorf("invalid resync cron expression: %q", cronExpr)
	}
	log.Info("resync scheduler started", "cron", cronExpr)
	go func() {
		for {
			next, err := gronx.NextTickAfter(cronExpr, time.Now().UTC(), false)
			if err != nil {
				log.Error("resync: next tick failed", "cron", cronExpr, "error", err)
				select {
				case <-time.After(30 * time.Second):
					continue
				case <-ctx.Done():
					return
				}
			}
			select {
			case <-time.After(time.Until(next)):
				log.Debug("resync: refreshing listing cache")
				refresh(ctx)
			case <-ctx.Done():
				log.Info("resync scheduler stopping")
				return
			}
		}
	}()
	return nil
}
