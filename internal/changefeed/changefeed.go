// Package changefeed describes the push notifications the remote store emits
// when a table changes. Consumers only learn that something changed; row
// payloads are deliberately not carried.
package changefeed

import (
	"context"
	"errors"
)

type Kind string

const (
	KindInsert Kind = "INSERT"
	KindUpdate Kind = "UPDATE"
	KindDelete Kind = "DELETE"
)

type Event struct {
	Table string `json:"table"`
	Kind  Kind   `json:"op"`
}

// Feed opens subscriptions scoped to one table. Every event kind is
// delivered; there is no row-level filtering.
type Feed interface {
	Subscribe(ctx context.Context, table string) (Subscription, error)
}

// Subscription is a cancellable handle on a standing feed. Events is closed
// once the subscription ends, either through Close or because the underlying
// connection dropped; Err then reports why. Close is idempotent.
type Subscription interface {
	Events() <-chan Event
	Err() error
	Close() error
}

// ErrClosed is reported by Err after a regular Close.
var ErrClosed = errors.New("changefeed: subscription closed")

// DefaultBuffer is the event channel capacity used by the adapters. A full
// buffer drops the new event: a pending one already forces a refetch that
// will observe the newer change.
const DefaultBuffer = 16

// Offer sends ev without blocking and reports whether it was queued.
func Offer(ch chan<- Event, ev Event) bool {
	select {
	case ch <- ev:
		return true
	default:
		return false
	}
}
