package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/patidost/listing-service/internal/listing/domain"
)

// classify maps driver errors onto the domain taxonomy. Errors already in
// the taxonomy pass through unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrUnauthorized) || errors.Is(err, domain.ErrUnavailable) ||
		errors.Is(err, domain.ErrListingNotFound) || errors.Is(err, domain.ErrValidation) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrListingNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "42501": // insufficient_privilege, raised by row-level security
			return fmt.Errorf("%w: %s", domain.ErrUnauthorized, pgErr.Message)
		case pgErr.Code == "23514" || pgErr.Code == "23502" || pgErr.Code == "22P02": // check, not null, bad text representation
			return &domain.ValidationError{Fields: []string{violatedField(pgErr)}}
		case pgErr.Code == "23503": // foreign key: owner has no profile row
			return fmt.Errorf("%w: %s", domain.ErrUnauthorized, pgErr.Message)
		case len(pgErr.Code) == 5 && (pgErr.Code[:2] == "08" || pgErr.Code[:2] == "57"): // connection exception, operator intervention
			return fmt.Errorf("%w: %s", domain.ErrUnavailable, pgErr.Message)
		}
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) || pgconn.SafeToRetry(err) || pgconn.Timeout(err) ||
		errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	}
	return err
}

func violatedField(pgErr *pgconn.PgError) string {
	switch {
	case pgErr.ColumnName != "":
		return pgErr.ColumnName
	case pgErr.ConstraintName != "":
		return pgErr.ConstraintName
	}
	return "row"
}
