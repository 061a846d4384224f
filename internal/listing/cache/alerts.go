package cache

import (
	"context"
	"sync"

	"github.com/patidost/listing-service/internal/platform/logger"
)

// AlertLog remembers the most recent alerts for display.
type AlertLog struct {
	mu     sync.Mutex
	size   int
	alerts []Alert
}

func NewAlertLog(size int) *AlertLog {
	if size <= 0 {
		size = defaultAlertBuffer
	}
	return &AlertLog{size: size}
}

func (l *AlertLog) Record(a Alert) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.alerts = append(l.alerts, a)
	if over := len(l.alerts) - l.size; over > 0 {
		l.alerts = append([]Alert(nil), l.alerts[over:]...)
	}
}

// Recent returns the kept alerts, newest first.
func (l *AlertLog) Recent() []Alert {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Alert, len(l.alerts))
	for i, a := range l.alerts {
		out[len(out)-1-i] = a
	}
	return out
}

// DrainAlerts logs every alert of c and records it in sink until ctx is done.
func DrainAlerts(ctx context.Context, c *Cache, sink *AlertLog, log *logger.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case a := <-c.Alerts():
			log.Warn("ListingCache alert", "error", a.Err, "at", a.At)
			if sink != nil {
				sink.Record(a)
			}
		}
	}
}
