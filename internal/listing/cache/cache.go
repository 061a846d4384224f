// Package cache keeps a local, ordered copy of the pets table for the
// signed-in user. Every change notification triggers a full refetch; the cache
// never patches rows in place.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/patidost/listing-service/internal/changefeed"
	"github.com/patidost/listing-service/internal/listing/domain"
	"github.com/patidost/listing-service/internal/platform/logger"
	"github.com/patidost/listing-service/internal/platform/metrics"
	"github.com/patidost/listing-service/internal/session"
)

const (
	DefaultTable        = "pets"
	defaultAlertBuffer  = 32
	defaultFetchTimeout = 15 * time.Second
)

// ErrFeedLost is carried by an alert when the standing subscription ended
// without being cancelled. The cache does not resubscribe on its own.
var ErrFeedLost = errors.New("listing change feed lost")

// Alert is a side-channel report of a failure the cache absorbed.
type Alert struct {
	Err error
	At  time.Time
}

// SnapshotStore persists the last-known-good snapshot between runs. A user's
// snapshot is deleted when they sign out.
type SnapshotStore interface {
	Load(ctx context.Context, userID string) ([]*domain.Listing, error)
	Save(ctx context.Context, userID string, listings []*domain.Listing) error
	Delete(ctx context.Context, userID string) error
}

// SessionSource is implemented by *session.Manager.
type SessionSource interface {
	OnAuthStateChanged(fn session.Listener) (unsubscribe func())
}

type Option func(*Cache)

func WithTable(table string) Option {
	return func(c *Cache) { c.table = table }
}

func WithSnapshotStore(store SnapshotStore) Option {
	return func(c *Cache) { c.store = store }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

func WithAlertBuffer(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.alerts = make(chan Alert, n)
		}
	}
}

func WithFetchTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.fetchTimeout = d
		}
	}
}

type Cache struct {
	repo         domain.ListingRepository
	feed         changefeed.Feed
	table        string
	store        SnapshotStore
	metrics      *metrics.Metrics
	logger       *logger.Logger
	fetchTimeout time.Duration

	mu       sync.RWMutex
	listings []*domain.Listing
	identity *session.Identity
	epoch    uint64

	// lifecycle guards the subscription and consumer handles.
	lifecycle sync.Mutex
	cancel    context.CancelFunc
	sub       changefeed.Subscription
	done      chan struct{}

	refreshMu sync.Mutex

	alerts chan Alert
}

func New(repo domain.ListingRepository, feed changefeed.Feed, log *logger.Logger, opts ...Option) *Cache {
	c := &Cache{
		repo:         repo,
		feed:         feed,
		table:        DefaultTable,
		logger:       log.Named("ListingCache"),
		fetchTimeout: defaultFetchTimeout,
		listings:     []*domain.Listing{},
		alerts:       make(chan Alert, defaultAlertBuffer),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Activate binds the cache to identity: any previous subscription is torn
// down, the table is fetched in full and a new subscription is opened. A
// failed fetch is reported on Alerts and does not fail the activation.
func (c *Cache) Activate(ctx context.Context, identity *session.Identity) error {
	if identity == nil {
		return domain.ErrUnauthorized
	}

	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.stopLocked()

	c.mu.Lock()
	c.epoch++
	epoch := c.epoch
	sameUser := c.identity != nil && c.identity.UserID == identity.UserID
	id := *identity
	c.identity = &id
	if !sameUser {
		c.listings = []*domain.Listing{}
	}
	c.mu.Unlock()

	if !sameUser {
		c.seed(ctx, epoch, identity.UserID)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	sub, err := c.feed.Subscribe(runCtx, c.table)
	if err != nil {
		cancel()
		c.mu.Lock()
		c.identity = nil
		c.listings = []*domain.Listing{}
		c.epoch++
		c.mu.Unlock()
		c.metrics.SnapshotCleared()
		c.logger.Error("ListingCache.Activate: subscription failed", "table", c.table, "error", err)
		return fmt.Errorf("failed to subscribe to %s changes: %w", c.table, err)
	}
	c.metrics.SubscriptionOpened()

	c.cancel = cancel
	c.sub = sub
	c.done = make(chan struct{})

	c.logger.Info("ListingCache.Activate: activated", "user_id", identity.UserID, "epoch", epoch)

	// The initial fetch happens after subscribing so that a change landing
	// between the two is not missed.
	_ = c.refresh(ctx, epoch)

	go c.consume(runCtx, epoch, sub, c.done)
	return nil
}

// Deactivate cancels the subscription and empties the cache. Calling it on an
// inactive cache is a no-op.
func (c *Cache) Deactivate() {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	wasActive := c.stopLocked()

	c.mu.Lock()
	c.epoch++
	c.identity = nil
	c.listings = []*domain.Listing{}
	c.mu.Unlock()
	c.metrics.SnapshotCleared()

	if wasActive {
		c.logger.Info("ListingCache.Deactivate: deactivated")
	}
}

// Read returns the current snapshot, newest first. The slice and its
// elements are copies.
func (c *Cache) Read() []*domain.Listing {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*domain.Listing, len(c.listings))
	for i, l := range c.listings {
		out[i] = l.Clone()
	}
	return out
}

// Get returns one listing from the snapshot.
func (c *Cache) Get(id int64) (*domain.Listing, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, l := range c.listings {
		if l.ID == id {
			return l.Clone(), true
		}
	}
	return nil, false
}

// Refresh re-runs the full fetch. Failures only reach Alerts.
func (c *Cache) Refresh(ctx context.Context) {
	c.mu.RLock()
	active := c.identity != nil
	epoch := c.epoch
	c.mu.RUnlock()
	if !active {
		return
	}
	_ = c.refresh(ctx, epoch)
}

func (c *Cache) Active() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identity != nil
}

// Alerts delivers absorbed failures. When nobody drains it the oldest alerts
// are dropped.
func (c *Cache) Alerts() <-chan Alert {
	return c.alerts
}

// FollowSession activates the cache on every sign-in and deactivates it on
// sign-out, dropping the persisted snapshot. The returned func stops following.
func (c *Cache) FollowSession(ctx context.Context, src SessionSource) (unsubscribe func()) {
	return src.OnAuthStateChanged(func(identity *session.Identity) {
		if identity == nil {
			c.signOut(ctx)
			return
		}
		c.mu.RLock()
		same := c.identity != nil && c.identity.UserID == identity.UserID
		c.mu.RUnlock()
		if same {
			// profile edits do not need a new subscription
			c.mu.Lock()
			id := *identity
			c.identity = &id
			c.mu.Unlock()
			return
		}
		if err := c.Activate(ctx, identity); err != nil {
			c.alert(err)
		}
	})
}

// signOut deactivates and drops the persisted snapshot of the user who left.
// Plain Deactivate keeps it for the next run.
func (c *Cache) signOut(ctx context.Context) {
	c.mu.RLock()
	var userID string
	if c.identity != nil {
		userID = c.identity.UserID
	}
	c.mu.RUnlock()

	c.Deactivate()

	if c.store == nil || userID == "" {
		return
	}
	if err := c.store.Delete(ctx, userID); err != nil {
		c.logger.Warn("ListingCache: persisted snapshot not dropped", "user_id", userID, "error", err)
	}
}

// stopLocked tears down the subscription and waits for the consumer. It
// reports whether there was anything to stop. Callers hold lifecycle.
func (c *Cache) stopLocked() bool {
	if c.cancel == nil {
		return false
	}
	c.cancel()
	if err := c.sub.Close(); err != nil && !errors.Is(err, changefeed.ErrClosed) {
		c.logger.Warn("ListingCache: closing subscription failed", "error", err)
	}
	<-c.done
	c.metrics.SubscriptionClosed()
	c.cancel = nil
	c.sub = nil
	c.done = nil
	return true
}

// consume turns notifications into refetches. Notifications that arrive while
// a refetch is pending are folded into it.
func (c *Cache) consume(ctx context.Context, epoch uint64, sub changefeed.Subscription, done chan struct{}) {
	defer close(done)
	events := sub.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				if ctx.Err() == nil {
					err := sub.Err()
					if err == nil || errors.Is(err, changefeed.ErrClosed) {
						err = ErrFeedLost
					} else {
						err = fmt.Errorf("%w: %v", ErrFeedLost, err)
					}
					c.logger.Warn("ListingCache: change feed ended", "table", c.table, "error", err)
					c.alert(err)
				}
				return
			}
			pending := 1
		drain:
			for {
				select {
				case _, ok := <-events:
					if !ok {
						break drain
					}
					pending++
				default:
					break drain
				}
			}
			c.logger.Debug("ListingCache: change notification", "table", ev.Table, "op", ev.Kind, "coalesced", pending)
			_ = c.refresh(ctx, epoch)
		}
	}
}

// refresh fetches the whole table and swaps it in unless the cache moved on
// to another epoch in the meantime.
func (c *Cache) refresh(ctx context.Context, epoch uint64) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	if c.currentEpoch() != epoch {
		return nil
	}

	ctx, span := otel.Tracer("listing-cache").Start(ctx, "ListingCache.Refresh")
	defer span.End()

	fetchCtx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	listings, err := c.repo.List(fetchCtx)
	c.metrics.RefetchDone(len(listings), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return nil
		}
		c.logger.Warn("ListingCache.Refresh: fetch failed, keeping last snapshot", "error", err)
		c.alert(err)
		return err
	}
	if listings == nil {
		listings = []*domain.Listing{}
	}
	domain.SortListings(listings)
	span.SetAttributes(attribute.Int("listings.count", len(listings)))

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		c.logger.Debug("ListingCache.Refresh: discarding stale result", "epoch", epoch)
		return nil
	}
	c.listings = listings
	var userID string
	if c.identity != nil {
		userID = c.identity.UserID
	}
	c.mu.Unlock()

	c.persist(ctx, userID, listings)
	return nil
}

func (c *Cache) seed(ctx context.Context, epoch uint64, userID string) {
	if c.store == nil {
		return
	}
	listings, err := c.store.Load(ctx, userID)
	if err != nil {
		c.logger.Warn("ListingCache: snapshot seed unavailable", "user_id", userID, "error", err)
		return
	}
	if len(listings) == 0 {
		return
	}
	domain.SortListings(listings)
	c.mu.Lock()
	if c.epoch == epoch {
		c.listings = listings
	}
	c.mu.Unlock()
	c.logger.Debug("ListingCache: seeded from persisted snapshot", "user_id", userID, "count", len(listings))
}

func (c *Cache) persist(ctx context.Context, userID string, listings []*domain.Listing) {
	if c.store == nil || userID == "" {
		return
	}
	if err := c.store.Save(ctx, userID, listings); err != nil {
		c.logger.Warn("ListingCache: snapshot not persisted", "user_id", userID, "error", err)
	}
}

func (c *Cache) currentEpoch() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.epoch
}

func (c *Cache) alert(err error) {
	a := Alert{Err: err, At: time.Now()}
	for {
		select {
		case c.alerts <- a:
			return
		default:
		}
		select {
		case <-c.alerts:
		default:
		}
	}
}
