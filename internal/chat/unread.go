package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/patidost/listing-service/internal/changefeed"
	"github.com/patidost/listing-service/internal/listing/domain"
	"github.com/patidost/listing-service/internal/platform/logger"
	"github.com/patidost/listing-service/internal/platform/metrics"
	"github.com/patidost/listing-service/internal/session"
)

const ChatsTable = "chats"

// SessionSource is implemented by *session.Manager.
type SessionSource interface {
	OnAuthStateChanged(fn session.Listener) (unsubscribe func())
}

// UnreadTracker keeps the signed-in user's total unread count. Like the
// listing cache it recomputes from scratch whenever the chats feed reports a
// change.
type UnreadTracker struct {
	repo    Repository
	feed    changefeed.Feed
	metrics *metrics.Metrics
	logger  *logger.Logger

	mu     sync.RWMutex
	userID string
	total  int
	epoch  uint64

	lifecycle sync.Mutex
	cancel    context.CancelFunc
	sub       changefeed.Subscription
	done      chan struct{}
}

func NewUnreadTracker(repo Repository, feed changefeed.Feed, m *metrics.Metrics, log *logger.Logger) *UnreadTracker {
	return &UnreadTracker{repo: repo, feed: feed, metrics: m, logger: log.Named("UnreadTracker")}
}

func (t *UnreadTracker) Total() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.total
}

func (t *UnreadTracker) Activate(ctx context.Context, identity *session.Identity) error {
	if identity == nil {
		return domain.ErrUnauthorized
	}
	t.lifecycle.Lock()
	defer t.lifecycle.Unlock()
	t.stopLocked()

	t.mu.Lock()
	t.epoch++
	epoch := t.epoch
	t.userID = identity.UserID
	t.total = 0
	t.mu.Unlock()

	runCtx, cancel := context.WithCancel(context.Background())
	sub, err := t.feed.Subscribe(runCtx, ChatsTable)
	if err != nil {
		cancel()
		// forget the user so the next transition retries
		t.mu.Lock()
		t.epoch++
		t.userID = ""
		t.total = 0
		t.mu.Unlock()
		t.metrics.SetUnread(0)
		return fmt.Errorf("failed to subscribe to chat changes: %w", err)
	}
	t.cancel, t.sub, t.done = cancel, sub, make(chan struct{})

	t.recompute(ctx, epoch)
	go t.consume(runCtx, epoch, sub, t.done)
	return nil
}

func (t *UnreadTracker) Deactivate() {
	t.lifecycle.Lock()
	defer t.lifecycle.Unlock()
	t.stopLocked()

	t.mu.Lock()
	t.epoch++
	t.userID = ""
	t.total = 0
	t.mu.Unlock()
	t.metrics.SetUnread(0)
}

func (t *UnreadTracker) FollowSession(ctx context.Context, src SessionSource) (unsubscribe func()) {
	return src.OnAuthStateChanged(func(identity *session.Identity) {
		if identity == nil {
			t.Deactivate()
			return
		}
		t.mu.RLock()
		same := t.userID == identity.UserID
		t.mu.RUnlock()
		if same {
			return
		}
		if err := t.Activate(ctx, identity); err != nil {
			t.logger.Error("UnreadTracker: activation failed", "user_id", identity.UserID, "error", err)
		}
	})
}

func (t *UnreadTracker) stopLocked() {
	if t.cancel == nil {
		return
	}
	t.cancel()
	_ = t.sub.Close()
	<-t.done
	t.cancel, t.sub, t.done = nil, nil, nil
}

func (t *UnreadTracker) consume(ctx context.Context, epoch uint64, sub changefeed.Subscription, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-sub.Events():
			if !ok {
				if err := sub.Err(); err != nil && !errors.Is(err, changefeed.ErrClosed) {
					t.logger.Warn("UnreadTracker: chat feed ended", "error", err)
				}
				return
			}
			t.recompute(ctx, epoch)
		}
	}
}

func (t *UnreadTracker) recompute(ctx context.Context, epoch uint64) {
	t.mu.RLock()
	userID := t.userID
	t.mu.RUnlock()

	chats, err := t.repo.ListForUser(ctx, userID)
	if err != nil {
		if ctx.Err() == nil {
			t.logger.Warn("UnreadTracker: recount failed, keeping previous total", "user_id", userID, "error", err)
		}
		return
	}
	total := TotalUnread(chats, userID)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.epoch != epoch {
		return
	}
	t.total = total
	t.metrics.SetUnread(total)
}
