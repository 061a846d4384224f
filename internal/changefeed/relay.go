package changefeed

import (
	"context"
	"errors"
	"sync"

	"github.com/patidost/listing-service/internal/platform/logger"
)

// Publisher is satisfied by the NATS publisher.
type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
}

// Relay forwards the events of one feed to a message bus so that processes
// without direct database access can follow the same tables.
type Relay struct {
	source        Feed
	publisher     Publisher
	subjectPrefix string
	logger        *logger.Logger
}

func NewRelay(source Feed, publisher Publisher, subjectPrefix string, log *logger.Logger) *Relay {
	return &Relay{
		source:        source,
		publisher:     publisher,
		subjectPrefix: subjectPrefix,
		logger:        log.Named("Relay"),
	}
}

// Subject returns the bus subject used for table.
func Subject(prefix, table string) string {
	return prefix + "." + table
}

// Run relays the given tables until ctx is cancelled or a source
// subscription ends. It returns the first subscription error.
func (r *Relay) Run(ctx context.Context, tables ...string) error {
	subs := make([]Subscription, 0, len(tables))
	defer func() {
		for _, s := range subs {
			_ = s.Close()
		}
	}()
	for _, table := range tables {
		sub, err := r.source.Subscribe(ctx, table)
		if err != nil {
			return err
		}
		subs = append(subs, sub)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	for i, sub := range subs {
		wg.Add(1)
		go func(table string, sub Subscription) {
			defer wg.Done()
			subject := Subject(r.subjectPrefix, table)
			for ev := range sub.Events() {
				if err := r.publisher.Publish(ctx, subject, ev); err != nil {
					r.logger.Warn("Relay.Run: publish failed", "subject", subject, "error", err)
				}
			}
			if err := sub.Err(); err != nil && !errors.Is(err, ErrClosed) {
				once.Do(func() { firstErr = err })
				r.logger.Error("Relay.Run: source subscription ended", "table", table, "error", err)
			}
			cancel()
		}(tables[i], sub)
	}

	<-ctx.Done()
	for _, s := range subs {
		_ = s.Close()
	}
	wg.Wait()
	return firstErr
}
