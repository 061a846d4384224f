package mongodb

import (
	"context"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/patidost/listing-service/internal/changefeed"
	"github.com/patidost/listing-service/internal/platform/logger"
)

// Feed reports collection changes through change streams. The deployment
// must be a replica set.
type Feed struct {
	db     *mongo.Database
	logger *logger.Logger
}

func NewFeed(db *mongo.Database, log *logger.Logger) *Feed {
	return &Feed{db: db, logger: log.Named("MongoFeed")}
}

func (f *Feed) Subscribe(ctx context.Context, collection string) (changefeed.Subscription, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"operationType": bson.M{"$in": bson.A{"insert", "update", "replace", "delete"}}}}},
		{{Key: "$project", Value: bson.M{"operationType": 1}}},
	}
	stream, err := f.db.Collection(collection).Watch(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to watch %s: %w", collection, classify(err))
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s := &streamSubscription{
		table:  collection,
		stream: stream,
		cancel: cancel,
		events: make(chan changefeed.Event, changefeed.DefaultBuffer),
		done:   make(chan struct{}),
		logger: f.logger,
	}
	go s.run(runCtx)
	return s, nil
}

type streamSubscription struct {
	table  string
	stream *mongo.ChangeStream
	cancel context.CancelFunc
	events chan changefeed.Event
	done   chan struct{}
	logger *logger.Logger

	mu  sync.Mutex
	err error
}

func (s *streamSubscription) Events() <-chan changefeed.Event { return s.events }

func (s *streamSubscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *streamSubscription) Close() error {
	s.setErr(changefeed.ErrClosed)
	s.cancel()
	<-s.done
	return nil
}

func (s *streamSubscription) setErr(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
}

func (s *streamSubscription) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.events)
	defer s.stream.Close(context.Background()) //nolint:errcheck

	for s.stream.Next(ctx) {
		var change struct {
			OperationType string `bson:"operationType"`
		}
		if err := s.stream.Decode(&change); err != nil {
			s.logger.Warn("MongoFeed: undecodable change event", "collection", s.table, "error", err)
			continue
		}
		ev := changefeed.Event{Table: s.table, Kind: kindOf(change.OperationType)}
		if !changefeed.Offer(s.events, ev) {
			s.logger.Debug("MongoFeed: event buffer full, dropping", "collection", s.table)
		}
	}
	if ctx.Err() != nil {
		s.setErr(changefeed.ErrClosed)
		return
	}
	err := s.stream.Err()
	if err == nil {
		err = fmt.Errorf("change stream on %s ended", s.table)
	}
	s.setErr(classify(err))
	s.logger.Warn("MongoFeed: change stream ended", "collection", s.table, "error", err)
}

func kindOf(operationType string) changefeed.Kind {
	switch operationType {
	case "insert":
		return changefeed.KindInsert
	case "delete":
		return changefeed.KindDelete
	default:
		return changefeed.KindUpdate
	}
}
