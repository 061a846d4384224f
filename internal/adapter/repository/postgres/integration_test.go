package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/patidost/listing-service/internal/changefeed"
	"github.com/patidost/listing-service/internal/listing/domain"
	"github.com/patidost/listing-service/internal/platform/logger"
	"github.com/patidost/listing-service/internal/session"
)

// setupTestDB starts PostgreSQL in a container and applies the migrations.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("skipping integration test: TEST_INTEGRATION not set")
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		tcpostgres.WithDatabase("patidost_test"),
		tcpostgres.WithUsername("patidost"),
		tcpostgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to stop container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	log := logger.NewNop()
	require.NoError(t, Migrate(dsn, log))

	pool, err := Connect(ctx, dsn, 8, log)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func createProfile(t *testing.T, repo *ProfileRepository, name string) string {
	t.Helper()
	id := uuid.NewString()
	require.NoError(t, repo.Create(context.Background(), id, &session.Profile{DisplayName: name}))
	return id
}

func TestListingRepository_Integration(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	log := logger.NewNop()
	profiles := NewProfileRepository(pool, log)
	listings := NewListingRepository(pool, log)

	owner := createProfile(t, profiles, "Ayse")
	stranger := createProfile(t, profiles, "Mehmet")

	empty, err := listings.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	first := &domain.Listing{
		Name: "Luna", Species: domain.SpeciesCat, Breed: "Van", Age: 2, Purpose: domain.PurposeAdoption,
		Description: "calm", Location: "Izmir", ImageURL: "https://cdn/a.jpg",
		Gallery: []string{"https://cdn/a.jpg", "https://cdn/b.jpg"},
	}
	require.NoError(t, listings.Insert(ctx, owner, first))
	assert.NotZero(t, first.ID)
	assert.False(t, first.CreatedAt.IsZero())

	second := &domain.Listing{
		Name: "Karabas", Species: domain.SpeciesDog, Breed: "Kangal", Age: 4, Purpose: domain.PurposeBreeding,
		Description: "guard", Location: "Sivas", ImageURL: "https://cdn/c.jpg", Gallery: []string{"https://cdn/c.jpg"},
	}
	require.NoError(t, listings.Insert(ctx, owner, second))

	all, err := listings.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID)
	assert.Equal(t, "Ayse", all[1].OwnerName)
	assert.Equal(t, []string{"https://cdn/a.jpg", "https://cdn/b.jpg"}, all[1].Gallery)

	age := 3
	require.NoError(t, listings.Update(ctx, owner, first.ID, domain.Patch{Age: &age}))
	got, err := listings.FindByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Age)
	assert.Equal(t, "Luna", got.Name)
	assert.Equal(t, "https://cdn/a.jpg", got.ImageURL)

	err = listings.Update(ctx, stranger, first.ID, domain.Patch{Age: &age})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	err = listings.Delete(ctx, stranger, first.ID)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	require.NoError(t, listings.Delete(ctx, owner, first.ID))
	_, err = listings.FindByID(ctx, first.ID)
	assert.ErrorIs(t, err, domain.ErrListingNotFound)

	// a second device deleting the same listing
	err = listings.Delete(ctx, owner, first.ID)
	assert.ErrorIs(t, err, domain.ErrListingNotFound)
	err = listings.Update(ctx, owner, first.ID, domain.Patch{Age: &age})
	assert.ErrorIs(t, err, domain.ErrListingNotFound)
}

func TestProfileRepository_Integration(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	profiles := NewProfileRepository(pool, logger.NewNop())

	_, err := profiles.FindByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, session.ErrProfileNotFound)

	id := createProfile(t, profiles, "Ayse")
	require.NoError(t, profiles.Update(ctx, id, &session.Profile{DisplayName: "Ayse K", City: "Ankara"}))

	got, err := profiles.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Ayse K", got.DisplayName)
	assert.Equal(t, "Ankara", got.City)
}

func TestFeed_Integration(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	log := logger.NewNop()
	profiles := NewProfileRepository(pool, log)
	listings := NewListingRepository(pool, log)
	owner := createProfile(t, profiles, "Ayse")

	sub, err := NewFeed(pool, log).Subscribe(ctx, "pets")
	require.NoError(t, err)

	require.NoError(t, listings.Insert(ctx, owner, &domain.Listing{
		Name: "Luna", Species: domain.SpeciesCat, Breed: "Van", Age: 1, Purpose: domain.PurposeAdoption,
		Description: "d", Location: "l", ImageURL: "u",
	}))

	select {
	case ev := <-sub.Events():
		assert.Equal(t, changefeed.Event{Table: "pets", Kind: changefeed.KindInsert}, ev)
	case <-time.After(5 * time.Second):
		t.Fatal("no notification received")
	}

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	assert.ErrorIs(t, sub.Err(), changefeed.ErrClosed)
	_, open := <-sub.Events()
	assert.False(t, open)
}
