// Package app wires the adapters, the session manager, the listing cache and
// the servers into one process.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	gcsclient "cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/patidost/listing-service/internal/adapter/auth/gotrue"
	grpcAdapter "github.com/patidost/listing-service/internal/adapter/grpc"
	"github.com/patidost/listing-service/internal/adapter/httpapi"
	natsAdapter "github.com/patidost/listing-service/internal/adapter/messaging/nats"
	snapshotCache "github.com/patidost/listing-service/internal/adapter/repository/cache"
	"github.com/patidost/listing-service/internal/adapter/repository/mongodb"
	"github.com/patidost/listing-service/internal/adapter/repository/postgres"
	"github.com/patidost/listing-service/internal/adapter/storage/gcs"
	"github.com/patidost/listing-service/internal/adapter/storage/s3"
	"github.com/patidost/listing-service/internal/changefeed"
	"github.com/patidost/listing-service/internal/chat"
	"github.com/patidost/listing-service/internal/config"
	"github.com/patidost/listing-service/internal/listing/cache"
	"github.com/patidost/listing-service/internal/listing/domain"
	"github.com/patidost/listing-service/internal/listing/usecase"
	"github.com/patidost/listing-service/internal/mailer"
	"github.com/patidost/listing-service/internal/platform/connect"
	"github.com/patidost/listing-service/internal/platform/logger"
	"github.com/patidost/listing-service/internal/platform/metrics"
	"github.com/patidost/listing-service/internal/platform/tracer"
	"github.com/patidost/listing-service/internal/session"
)

const (
	ServiceName     = "patidost-listing-service"
	metricsNS       = "patidost"
	profilesTable   = "profiles"
	healthSyncEvery = time.Second
)

// App owns every long-lived resource of the process.
type App struct {
	cfg    *config.Config
	logger *logger.Logger

	closers []func(context.Context)

	Sessions  *session.Manager
	Listings  *cache.Cache
	Mutations *usecase.ListingUsecase
	Chats     *chat.Service
	Unread    *chat.UnreadTracker
	Alerts    *cache.AlertLog

	metrics    *metrics.Metrics
	pool       *pgxpool.Pool
	natsConn   *nats.Conn
	relay      *changefeed.Relay
	httpServer *http.Server
	grpcServer *grpc.Server
	grpcStop   func()
	health     *grpcAdapter.CacheHealth
}

// New connects to every backing service. On error, whatever was opened is
// closed again.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (a *App, err error) {
	a = &App{cfg: cfg, logger: log, metrics: metrics.New(metricsNS)}
	defer func() {
		if err != nil {
			a.close(context.Background())
		}
	}()
	policy := connect.DefaultPolicy()

	tp, err := tracer.InitTracer(ctx, cfg.Tracing.Endpoint, cfg.Tracing.ServiceName)
	if err != nil {
		return nil, fmt.Errorf("failed to init tracer: %w", err)
	}
	a.onClose(func(ctx context.Context) {
		if err := tp.Shutdown(ctx); err != nil {
			log.Error("Failed to shutdown tracer provider", "error", err)
		}
	})

	// remote store
	err = connect.Do(ctx, log, "postgres", policy, func() error {
		a.pool, err = postgres.Connect(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns, log)
		return err
	})
	if err != nil {
		return nil, err
	}
	a.onClose(func(context.Context) { a.pool.Close() })
	if cfg.Postgres.Migrate {
		if err := postgres.Migrate(cfg.Postgres.DSN, log); err != nil {
			return nil, err
		}
	}
	listingRepo := postgres.NewListingRepository(a.pool, log)
	profileRepo := postgres.NewProfileRepository(a.pool, log)

	// chats
	var mongoClient *mongo.Client
	err = connect.Do(ctx, log, "mongodb", policy, func() error {
		mongoClient, err = mongodb.Connect(ctx, cfg.MongoDB.URI, log)
		return err
	})
	if err != nil {
		return nil, err
	}
	a.onClose(func(ctx context.Context) {
		if err := mongoClient.Disconnect(ctx); err != nil {
			log.Error("Error disconnecting from MongoDB", "error", err)
		}
	})
	mongoDB := mongoClient.Database(cfg.MongoDB.Database)
	chatRepo := mongodb.NewChatRepository(mongoDB, log)
	if err := chatRepo.EnsureIndexes(ctx); err != nil {
		return nil, err
	}

	// change feeds
	if cfg.Changefeed.Driver == config.ChangefeedNATS || cfg.Changefeed.Relay {
		err = connect.Do(ctx, log, "nats", policy, func() error {
			a.natsConn, err = natsAdapter.Connect(cfg.NATS.URL, ServiceName, log)
			return err
		})
		if err != nil {
			return nil, err
		}
		a.onClose(func(context.Context) {
			if err := a.natsConn.Drain(); err != nil {
				log.Warn("NATS drain failed", "error", err)
			}
		})
	}
	pgFeed := postgres.NewFeed(a.pool, log)
	var listingFeed changefeed.Feed = pgFeed
	if cfg.Changefeed.Driver == config.ChangefeedNATS {
		listingFeed = natsAdapter.NewFeed(a.natsConn, cfg.Changefeed.SubjectPrefix, log)
	}
	if cfg.Changefeed.Relay {
		a.relay = changefeed.NewRelay(pgFeed, natsAdapter.NewPublisher(a.natsConn, log), cfg.Changefeed.SubjectPrefix, log)
	}

	// object storage
	listingStorage, avatarStorage, err := a.openStorage(ctx)
	if err != nil {
		return nil, err
	}

	// listing cache
	cacheOpts := []cache.Option{
		cache.WithMetrics(a.metrics),
		cache.WithFetchTimeout(cfg.Sync.FetchTimeout),
		cache.WithAlertBuffer(cfg.Sync.AlertBuffer),
	}
	if !cfg.Redis.Disabled {
		var snapshots *snapshotCache.ListingCache
		err := connect.Do(ctx, log, "redis", connect.Policy{Attempts: 3, Delay: time.Second, MaxDelay: 5 * time.Second}, func() error {
			var dialErr error
			snapshots, dialErr = snapshotCache.NewListingCache(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.SnapshotTTL, log)
			return dialErr
		})
		if err != nil {
			log.Warn("Snapshot store unavailable, continuing without persisted snapshots", "error", err)
		} else {
			cacheOpts = append(cacheOpts, cache.WithSnapshotStore(snapshots))
			a.onClose(func(context.Context) { _ = snapshots.Close() })
		}
	}

	verifier := session.NewTokenVerifier(cfg.Auth.JWTSecret)
	authClient := gotrue.NewClient(cfg.Auth.URL, cfg.Auth.AnonKey, nil, log)
	a.Sessions = session.NewManager(authClient, profileRepo, avatarStorage, verifier, log)
	a.Listings = cache.New(listingRepo, listingFeed, log, cacheOpts...)
	a.Alerts = cache.NewAlertLog(cfg.Sync.AlertBuffer)

	var notifier usecase.Notifier
	if cfg.SMTP.Enabled() {
		notifier = mailer.NewSMTPMailer(mailer.Config{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			From:     cfg.SMTP.From,
			Password: cfg.SMTP.Password,
		})
	}
	photos := usecase.NewPhotoUsecase(listingStorage, a.metrics, log)
	a.Mutations = usecase.NewListingUsecase(listingRepo, photos, a.Sessions, notifier, a.metrics, log)

	a.Chats = chat.NewService(chatRepo, a.Sessions, log)
	a.Unread = chat.NewUnreadTracker(chatRepo, mongodb.NewFeed(mongoDB, log), a.metrics, log)

	// servers
	a.httpServer = &http.Server{
		Addr: cfg.HTTP.Addr,
		Handler: httpapi.NewRouter(httpapi.Deps{
			Sessions:       a.Sessions,
			Verifier:       verifier,
			Listings:       a.Listings,
			Mutations:      a.Mutations,
			Chats:          a.Chats,
			Unread:         a.Unread,
			Alerts:         a.Alerts,
			Readiness:      postgres.NewReadinessChecker(a.pool),
			Metrics:        a.metrics.Handler(),
			MaxUploadBytes: cfg.HTTP.MaxUploadBytes,
		}, log),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}
	grpcServer, healthServer, grpcStop := grpcAdapter.NewGRPCServer(log, cfg.GRPCServer.MaxConnectionIdle)
	a.grpcServer, a.grpcStop = grpcServer, grpcStop
	a.health = grpcAdapter.NewCacheHealth(healthServer, a.Listings, log)

	return a, nil
}

func (a *App) openStorage(ctx context.Context) (listings, avatars domain.ObjectStorage, err error) {
	sc := a.cfg.Storage
	switch sc.Driver {
	case config.StorageGCS:
		client, err := gcsclient.NewClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create storage client: %w", err)
		}
		a.onClose(func(context.Context) { _ = client.Close() })
		return gcs.New(client, sc.ListingBucket, sc.PublicBaseURL, a.logger),
			gcs.New(client, sc.AvatarBucket, sc.PublicBaseURL, a.logger), nil
	default:
		client, err := s3.NewClient(sc.MinIOEndpoint, sc.MinIOAccessKey, sc.MinIOSecretKey, sc.MinIOUseSSL)
		if err != nil {
			return nil, nil, err
		}
		var l, av *s3.S3Storage
		err = connect.Do(ctx, a.logger, "minio", connect.DefaultPolicy(), func() error {
			var dialErr error
			if l, dialErr = s3.NewS3Storage(ctx, client, sc.ListingBucket, sc.PublicBaseURL, a.logger); dialErr != nil {
				return dialErr
			}
			av, dialErr = s3.NewS3Storage(ctx, client, sc.AvatarBucket, sc.PublicBaseURL, a.logger)
			return dialErr
		})
		if err != nil {
			return nil, nil, err
		}
		return l, av, nil
	}
}

// Run serves until ctx is cancelled, then shuts everything down.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	unfollowCache := a.Listings.FollowSession(ctx, a.Sessions)
	defer unfollowCache()
	unfollowUnread := a.Unread.FollowSession(ctx, a.Sessions)
	defer unfollowUnread()

	if a.cfg.Sync.ResyncCron != "" {
		if err := RunResync(ctx, a.cfg.Sync.ResyncCron, a.Listings.Refresh, a.logger); err != nil {
			return err
		}
	}

	lis, err := net.Listen("tcp", ":"+a.cfg.GRPCServer.Port)
	if err != nil {
		return fmt.Errorf("failed to listen for gRPC on port %s: %w", a.cfg.GRPCServer.Port, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cache.DrainAlerts(gctx, a.Listings, a.Alerts, a.logger)
		return nil
	})
	g.Go(func() error {
		a.health.Run(gctx, healthSyncEvery)
		return nil
	})
	if a.relay != nil {
		g.Go(func() error {
			a.logger.Info("Relaying store changes to NATS", "prefix", a.cfg.Changefeed.SubjectPrefix)
			if err := a.relay.Run(gctx, cache.DefaultTable, profilesTable); err != nil && gctx.Err() == nil {
				a.logger.Error("Change relay stopped", "error", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		a.logger.Info("Starting gRPC server", "port", a.cfg.GRPCServer.Port)
		if err := a.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("gRPC server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		a.logger.Info("Starting HTTP server", "addr", a.cfg.HTTP.Addr)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.shutdown()
		return nil
	})

	err = g.Wait()
	a.logger.Info("Application shutting down...")
	return err
}

func (a *App) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
	defer cancel()

	a.logger.Info("Shutting down HTTP server...")
	if err := a.httpServer.Shutdown(ctx); err != nil {
		a.logger.Error("HTTP server shutdown failed", "error", err)
	}
	a.grpcStop()
	a.Listings.Deactivate()
	a.Unread.Deactivate()
	a.close(ctx)
}

func (a *App) onClose(fn func(context.Context)) {
	a.closers = append(a.closers, fn)
}

// close runs closers in reverse order of registration.
func (a *App) close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i](ctx)
	}
	a.closers = nil
}
