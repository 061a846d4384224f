package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/patidost/listing-service/internal/changefeed"
	"github.com/patidost/listing-service/internal/platform/logger"
)

// NotifyChannel is the channel the notify_table_change trigger writes to.
const NotifyChannel = "table_changes"

// Feed turns LISTEN/NOTIFY messages into change events. Every subscription
// holds one pooled connection for as long as it lives.
type Feed struct {
	pool   *pgxpool.Pool
	logger *logger.Logger
}

func NewFeed(pool *pgxpool.Pool, log *logger.Logger) *Feed {
	return &Feed{pool: pool, logger: log.Named("PgFeed")}
}

func (f *Feed) Subscribe(ctx context.Context, table string) (changefeed.Subscription, error) {
	conn, err := f.pool.Acquire(ctx)
	if err != nil {
		return nil, classify(err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{NotifyChannel}.Sanitize()); err != nil {
		conn.Release()
		return nil, classify(err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s := &pgSubscription{
		table:  table,
		conn:   conn,
		cancel: cancel,
		events: make(chan changefeed.Event, changefeed.DefaultBuffer),
		done:   make(chan struct{}),
		logger: f.logger,
	}
	go s.run(runCtx)
	f.logger.Info("PgFeed.Subscribe: listening", "table", table)
	return s, nil
}

type pgSubscription struct {
	table  string
	conn   *pgxpool.Conn
	cancel context.CancelFunc
	events chan changefeed.Event
	done   chan struct{}
	logger *logger.Logger

	mu  sync.Mutex
	err error
}

func (s *pgSubscription) Events() <-chan changefeed.Event { return s.events }

func (s *pgSubscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *pgSubscription) Close() error {
	s.setErr(changefeed.ErrClosed)
	s.cancel()
	<-s.done
	return nil
}

func (s *pgSubscription) setErr(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
}

func (s *pgSubscription) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.events)
	defer s.release()

	for {
		n, err := s.conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				s.setErr(changefeed.ErrClosed)
				return
			}
			s.setErr(fmt.Errorf("listen on %s: %w", NotifyChannel, classify(err)))
			s.logger.Warn("PgFeed: notification wait failed", "table", s.table, "error", err)
			return
		}
		var ev changefeed.Event
		if err := json.Unmarshal([]byte(n.Payload), &ev); err != nil {
			s.logger.Warn("PgFeed: malformed notification payload", "payload", n.Payload, "error", err)
			continue
		}
		if ev.Table != s.table {
			continue
		}
		if !changefeed.Offer(s.events, ev) {
			s.logger.Debug("PgFeed: event buffer full, dropping", "table", s.table)
		}
	}
}

// release returns the connection to the pool, or destroys it when it can no
// longer be cleaned up.
func (s *pgSubscription) release() {
	conn := s.conn.Conn()
	if conn.IsClosed() {
		s.conn.Release()
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := conn.Exec(ctx, "UNLISTEN *"); err != nil {
		s.logger.Debug("PgFeed: UNLISTEN failed, closing connection", "error", err)
		_ = conn.Close(ctx)
	}
	s.conn.Release()
}
