package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/koustreak/pgtree/internal/errs"
)

// PostgreSQL SQLSTATE codes that change how a failure is reported.
// Full list: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	pgClassConnection       = "08"
	pgInsufficientPrivilege = "42501"
	pgQueryCanceled         = "57014" // raised by statement_timeout
	pgInvalidRegex          = "2201B"
	pgAdminShutdown         = "57P01"
)

// mapError translates a pgx / pgconn error into an *errs.Error whose message
// is the purpose of the failed operation.
func mapError(err error, purpose string) *errs.Error {
	if err == nil {
		return nil
	}

	var already *errs.Error
	if errors.As(err, &already) {
		return already
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, purpose, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return errs.Wrap(kindOfCode(pgErr.Code), purpose, err)
	}

	if pgconn.Timeout(err) {
		return errs.Wrap(errs.ErrKindTimeout, purpose, err)
	}

	// Anything without a SQLSTATE failed below the protocol (network, TLS, auth).
	return errs.Wrap(errs.ErrKindConnectionFailed, purpose, err)
}

func kindOfCode(code string) errs.ErrKind {
	switch {
	case strings.HasPrefix(code, pgClassConnection), code == pgAdminShutdown:
		return errs.ErrKindConnectionFailed
	case code == pgInsufficientPrivilege:
		return errs.ErrKindPermissionDenied
	case code == pgQueryCanceled:
		return errs.ErrKindTimeout
	case code == pgInvalidRegex:
		return errs.ErrKindInvalidInput
	default:
		return errs.ErrKindQueryFailed
	}
}

// connectError reports a failure while establishing the session. Whatever
// the underlying cause (auth, TLS, bad DSN, refused BEGIN) it is a
// connection error: nothing has been traversed yet.
func connectError(err error, purpose string) *errs.Error {
	return errs.Wrap(errs.ErrKindConnectionFailed, purpose, err)
}

// scanError reports a row that arrived but could not be decoded.
func scanError(err error, purpose string) *errs.Error {
	return errs.Wrap(errs.ErrKindQueryFailed, purpose, fmt.Errorf("scan: %w", err))
}
