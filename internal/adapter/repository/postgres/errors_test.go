package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/patidost/listing-service/internal/listing/domain"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"nil", nil, nil},
		{"no rows", pgx.ErrNoRows, domain.ErrListingNotFound},
		{"policy rejection", &pgconn.PgError{Code: "42501", Message: "new row violates row-level security policy"}, domain.ErrUnauthorized},
		{"check violation", &pgconn.PgError{Code: "23514", ConstraintName: "pets_age_check"}, domain.ErrValidation},
		{"missing owner profile", &pgconn.PgError{Code: "23503"}, domain.ErrUnauthorized},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, domain.ErrUnavailable},
		{"connection failure", &pgconn.PgError{Code: "08006"}, domain.ErrUnavailable},
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), domain.ErrUnavailable},
		{"passthrough", domain.ErrUnauthorized, domain.ErrUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)
			if tt.want == nil {
				assert.NoError(t, got)
				return
			}
			assert.ErrorIs(t, got, tt.want)
		})
	}
}

func TestClassify_UnknownPgErrorKept(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "42P01"}

	got := classify(pgErr)

	assert.True(t, errors.Is(got, pgErr))
	assert.False(t, domain.IsRetryable(got))
}

func TestPatchColumns(t *testing.T) {
	age := 4
	url := "https://cdn/new.jpg"

	set, args := patchColumns(domain.Patch{Age: &age, ImageURL: &url, Gallery: []string{url}})

	assert.Equal(t, []string{"age = $1", "image_url = $2", "gallery = $3"}, set)
	assert.Equal(t, []any{4, url, []string{url}}, args)
}

func TestMigrateURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@db:5432/pets?sslmode=disable", migrateURL("postgres://u:p@db:5432/pets?sslmode=disable"))
	assert.Equal(t, "pgx5://u@db/pets", migrateURL("postgresql://u@db/pets"))
	assert.Equal(t, "pgx5://already", migrateURL("pgx5://already"))
}
