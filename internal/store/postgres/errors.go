package postgres

import (
	"errors"
	"fmt"

	"github.com/huskyapply/gateway/internal/store"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// mapPostgresError maps PostgreSQL errors onto the store's sentinel errors.
// Anything that isn't a recognized PostgreSQL condition passes through
// unchanged.
func mapPostgresError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		switch pgErr.ConstraintName {
		case "jobs_pkey":
			return fmt.Errorf("%w: %s", store.ErrJobExists, pgErr.Detail)
		case "artifacts_job_id_key":
			return fmt.Errorf("%w: %s", store.ErrArtifactExists, pgErr.Detail)
		}
		return fmt.Errorf("unique constraint violation: %s: %w", pgErr.ConstraintName, err)

	case pgerrcode.ForeignKeyViolation:
		// Inserting an artifact for a job row that does not exist.
		return fmt.Errorf("%w: %s", store.ErrJobNotFound, pgErr.Detail)

	case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected:
		return fmt.Errorf("transaction conflict (retryable): %w", err)

	case pgerrcode.ConnectionException,
		pgerrcode.ConnectionDoesNotExist,
		pgerrcode.ConnectionFailure,
		pgerrcode.CannotConnectNow,
		pgerrcode.TooManyConnections:
		return fmt.Errorf("database connection error: %w", err)

	case pgerrcode.QueryCanceled:
		return fmt.Errorf("query canceled: %w", err)

	default:
		return fmt.Errorf("postgres error [%s]: %s: %w", pgErr.Code, pgErr.Message, err)
	}
}
