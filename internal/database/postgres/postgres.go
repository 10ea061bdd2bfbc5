// Package postgres implements database.Session on a single pgx connection.
//
// A session owns exactly one connection and one transaction opened as
// REPEATABLE READ, READ ONLY: every catalog query of a run observes the same
// snapshot and none of them can write.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/koustreak/pgtree/internal/database"
	"github.com/koustreak/pgtree/internal/errs"
)

// Session implements database.Session for PostgreSQL.
type Session struct {
	conn      *pgx.Conn
	tx        pgx.Tx
	fetchSize int

	cursors int   // sequence for cursor names
	broken  error // set when a cursor failed to close; poisons later calls
}

var _ database.Session = (*Session)(nil)

// Open connects with cfg, begins the read-only transaction and applies the
// statement timeout. Any failure is reported as a connection error and
// leaves nothing open.
func Open(ctx context.Context, cfg *database.Config) (*Session, error) {
	connCfg, err := connConfig(cfg)
	if err != nil {
		return nil, connectError(err, "parse connection string")
	}

	conn, err := pgx.ConnectConfig(ctx, connCfg)
	if err != nil {
		return nil, connectError(err, "connect")
	}

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		_ = conn.Close(ctx)
		return nil, connectError(err, "begin read-only transaction")
	}

	if cfg.StatementTimeout > 0 {
		ms := strconv.FormatInt(cfg.StatementTimeout.Milliseconds(), 10)
		if _, err := tx.Exec(ctx, "SELECT set_config('statement_timeout', $1, true)", ms); err != nil {
			_ = tx.Rollback(ctx)
			_ = conn.Close(ctx)
			return nil, connectError(err, "set statement_timeout")
		}
	}

	fetch := cfg.FetchSize
	if fetch <= 0 {
		fetch = database.DefaultFetchSize
	}

	return &Session{conn: conn, tx: tx, fetchSize: fetch}, nil
}

// Query runs sql inside the session transaction.
func (s *Session) Query(ctx context.Context, purpose, sql string, args ...any) (database.Rows, error) {
	if s.broken != nil {
		return nil, s.broken
	}
	rows, err := s.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapError(err, purpose)
	}
	return &pgRows{rows: rows, purpose: purpose}, nil
}

// QueryOne runs sql and scans its single row into dest.
func (s *Session) QueryOne(ctx context.Context, purpose, sql string, args []any, dest ...any) (bool, error) {
	if s.broken != nil {
		return false, s.broken
	}
	err := s.tx.QueryRow(ctx, sql, args...).Scan(dest...)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, mapError(err, purpose)
	}
	return true, nil
}

// Cursor declares a NO SCROLL cursor for sql. Arguments are interpolated
// client-side by pgx because DECLARE cannot be prepared with parameters.
func (s *Session) Cursor(ctx context.Context, purpose, sql string, args ...any) (database.Rows, error) {
	if s.broken != nil {
		return nil, s.broken
	}
	s.cursors++
	name := pgx.Identifier{fmt.Sprintf("pgtree_c%d", s.cursors)}.Sanitize()

	declare := "DECLARE " + name + " NO SCROLL CURSOR FOR " + sql
	execArgs := append([]any{pgx.QueryExecModeSimpleProtocol}, args...)
	if _, err := s.tx.Exec(ctx, declare, execArgs...); err != nil {
		return nil, mapError(err, purpose)
	}

	return &cursor{
		ctx:     ctx,
		session: s,
		name:    name,
		purpose: purpose,
	}, nil
}

// Close rolls back the read-only transaction and closes the connection.
func (s *Session) Close(ctx context.Context) error {
	rbErr := s.tx.Rollback(ctx)
	if errors.Is(rbErr, pgx.ErrTxClosed) {
		rbErr = nil
	}
	closeErr := s.conn.Close(ctx)

	if rbErr != nil {
		return mapError(rbErr, "end read-only transaction")
	}
	if closeErr != nil {
		return mapError(closeErr, "close connection")
	}
	return nil
}

// --- pgx type wrappers ---

// pgRows wraps pgx.Rows to satisfy database.Rows.
type pgRows struct {
	rows    pgx.Rows
	purpose string
}

func (r *pgRows) Next() bool { return r.rows.Next() }
func (r *pgRows) Close()     { r.rows.Close() }

func (r *pgRows) Scan(dest ...any) error {
	if err := r.rows.Scan(dest...); err != nil {
		return scanError(err, r.purpose)
	}
	return nil
}

func (r *pgRows) Err() error {
	if err := r.rows.Err(); err != nil {
		return mapError(err, r.purpose)
	}
	return nil
}

func poison(err error) error {
	return errs.Wrap(errs.ErrKindConnectionFailed, "session unusable after failed cursor close", err)
}
