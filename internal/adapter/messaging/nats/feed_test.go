package nats

import (
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patidost/listing-service/internal/changefeed"
	"github.com/patidost/listing-service/internal/platform/logger"
)

func newTestSubscription() *natsSubscription {
	return &natsSubscription{
		events: make(chan changefeed.Event, 2),
		done:   make(chan struct{}),
		logger: logger.NewNop(),
	}
}

func TestHandleDecodesEvents(t *testing.T) {
	s := newTestSubscription()

	s.handle(&nats.Msg{Subject: "patidost.changes.pets", Data: []byte(`{"table":"pets","op":"UPDATE"}`)})
	s.handle(&nats.Msg{Subject: "patidost.changes.pets", Data: []byte(`not json`)})

	require.Len(t, s.events, 1)
	assert.Equal(t, changefeed.Event{Table: "pets", Kind: changefeed.KindUpdate}, <-s.events)
}

func TestHandleDropsWhenFullOrClosed(t *testing.T) {
	s := newTestSubscription()
	msg := &nats.Msg{Data: []byte(`{"table":"pets","op":"INSERT"}`)}

	for i := 0; i < 5; i++ {
		s.handle(msg)
	}
	assert.Len(t, s.events, 2)

	s.closed = true
	<-s.events
	s.handle(msg)
	assert.Len(t, s.events, 1)
}

func TestHeaderCarrier(t *testing.T) {
	h := nats.Header{}
	c := HeaderCarrier(h)

	c.Set("traceparent", "00-abc-def-01")

	assert.Equal(t, "00-abc-def-01", c.Get("traceparent"))
	assert.Equal(t, []string{"traceparent"}, c.Keys())
}
