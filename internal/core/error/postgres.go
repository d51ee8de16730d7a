package errx

import (
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// pgUniqueViolation is the SQLSTATE class for unique constraint violations.
const pgUniqueViolation = "23505"

// WrapPostgres maps pgx errors to the unified AppError type. Missing rows are
// 404s, constraint conflicts 409s, everything else a 502.
func WrapPostgres(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return New(err, http.StatusNotFound, "not found")
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return New(err, http.StatusConflict, "already exists")
	}

	return New(err, http.StatusBadGateway, PostgresErrorMessage)
}
