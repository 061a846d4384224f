package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/patidost/listing-service/internal/changefeed"
	"github.com/patidost/listing-service/internal/platform/logger"
)

// Feed follows change events a relay publishes under
// "<prefix>.<table>". It lets processes without database access run a
// listing cache.
type Feed struct {
	conn   *nats.Conn
	prefix string
	logger *logger.Logger
}

func NewFeed(conn *nats.Conn, subjectPrefix string, log *logger.Logger) *Feed {
	return &Feed{conn: conn, prefix: subjectPrefix, logger: log.Named("NATSFeed")}
}

func (f *Feed) Subscribe(ctx context.Context, table string) (changefeed.Subscription, error) {
	s := &natsSubscription{
		events: make(chan changefeed.Event, changefeed.DefaultBuffer),
		done:   make(chan struct{}),
		logger: f.logger,
	}
	subject := changefeed.Subject(f.prefix, table)
	sub, err := f.conn.Subscribe(subject, s.handle)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	s.sub = sub
	go s.watch(sub.StatusChanged(nats.SubscriptionClosed))
	f.logger.Info("NATSFeed.Subscribe: subscribed", "subject", subject)
	return s, nil
}

type natsSubscription struct {
	sub    *nats.Subscription
	events chan changefeed.Event
	done   chan struct{}
	logger *logger.Logger

	mu     sync.Mutex
	closed bool
	err    error
}

func (s *natsSubscription) handle(msg *nats.Msg) {
	var ev changefeed.Event
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		s.logger.Warn("NATSFeed: malformed event", "subject", msg.Subject, "error", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	changefeed.Offer(s.events, ev)
}

func (s *natsSubscription) Events() <-chan changefeed.Event { return s.events }

func (s *natsSubscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// watch ends the subscription when the server side closes it, which happens
// when the connection is closed for good.
func (s *natsSubscription) watch(status <-chan nats.SubStatus) {
	select {
	case <-status:
	case <-s.done:
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.err = nats.ErrConnectionClosed
	close(s.events)
	s.logger.Warn("NATSFeed: subscription closed by connection", "subject", s.sub.Subject)
}

func (s *natsSubscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.err = changefeed.ErrClosed
	close(s.done)
	err := s.sub.Unsubscribe()
	close(s.events)
	if err != nil && err != nats.ErrConnectionClosed && err != nats.ErrBadSubscription {
		return err
	}
	return nil
}
