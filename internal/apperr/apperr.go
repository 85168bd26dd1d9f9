package apperr

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	// ErrNotFound indicates the referenced row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates caller input validation failure.
	ErrValidation = errors.New("validation")
	// ErrInvariant indicates a structural invariant violation (cycle,
	// index discontinuity, inconsistent calc-state fields). Fatal to the
	// enclosing transaction.
	ErrInvariant = errors.New("invariant violation")
	// ErrConflict indicates an optimistic/concurrency conflict.
	ErrConflict = errors.New("conflict")
	// ErrRetryable indicates a transient failure the caller may retry.
	ErrRetryable = errors.New("retryable")
)

func NotFoundError(msg string) error {
	return errors.Join(ErrNotFound, errors.New(strings.TrimSpace(msg)))
}

func ValidationError(msg string) error {
	return errors.Join(ErrValidation, errors.New(strings.TrimSpace(msg)))
}

func InvariantError(msg string) error {
	return errors.Join(ErrInvariant, errors.New(strings.TrimSpace(msg)))
}

func ConflictError(msg string) error {
	return errors.Join(ErrConflict, errors.New(strings.TrimSpace(msg)))
}

func RetryableError(msg string) error {
	return errors.Join(ErrRetryable, errors.New(strings.TrimSpace(msg)))
}

// Map normalizes infrastructure failures into the taxonomy above. Postgres
// error codes come through pgconn regardless of whether GORM or raw SQL
// produced them.
func Map(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrValidation),
		errors.Is(err, ErrInvariant),
		errors.Is(err, ErrConflict),
		errors.Is(err, ErrRetryable):
		return err
	case errors.Is(err, gorm.ErrRecordNotFound):
		return errors.Join(ErrNotFound, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return errors.Join(ErrRetryable, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch strings.TrimSpace(pgErr.Code) {
		case "23505": // unique_violation
			return errors.Join(ErrConflict, err)
		case "23503": // foreign_key_violation
			return errors.Join(ErrValidation, err)
		case "23514": // check_violation
			return errors.Join(ErrInvariant, err)
		case "40001", "40P01", "55P03": // serialization/deadlock/lock_not_available
			return errors.Join(ErrRetryable, err)
		}
	}
	return err
}
