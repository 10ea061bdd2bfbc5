package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// cursor streams a server-side cursor in batches of Session.fetchSize rows.
//
// Each FETCH is drained into memory before Next returns, so the connection
// is free for other statements (detail queries, nested cursors) while the
// caller holds a row.
type cursor struct {
	ctx     context.Context
	session *Session
	name    string
	purpose string

	fields []pgconn.FieldDescription
	batch  [][][]byte
	pos    int  // index of the current row in batch
	done   bool // last FETCH returned fewer rows than requested
	closed bool
	err    error
}

// Next advances to the next row, fetching a new batch when the current one
// is exhausted.
func (c *cursor) Next() bool {
	if c.closed || c.err != nil {
		return false
	}
	c.pos++
	if c.pos < len(c.batch) {
		return true
	}
	if c.done {
		return false
	}
	if err := c.fetch(); err != nil {
		c.err = err
		return false
	}
	c.pos = 0
	return len(c.batch) > 0
}

func (c *cursor) fetch() error {
	sql := fmt.Sprintf("FETCH FORWARD %d FROM %s", c.session.fetchSize, c.name)
	rows, err := c.session.tx.Query(c.ctx, sql, pgx.QueryExecModeSimpleProtocol)
	if err != nil {
		return mapError(err, c.purpose)
	}
	defer rows.Close()

	if c.fields == nil {
		// pgconn reuses the description buffer across statements.
		c.fields = append([]pgconn.FieldDescription(nil), rows.FieldDescriptions()...)
	}

	batch := c.batch[:0]
	for rows.Next() {
		raw := rows.RawValues()
		row := make([][]byte, len(raw))
		for i, v := range raw {
			if v != nil {
				// RawValues are only valid until the next call to Next.
				row[i] = append([]byte{}, v...)
			}
		}
		batch = append(batch, row)
	}
	if err := rows.Err(); err != nil {
		return mapError(err, c.purpose)
	}

	c.batch = batch
	c.done = len(batch) < c.session.fetchSize
	return nil
}

// Scan decodes the current row with the connection's type map, exactly as
// pgx.Rows.Scan would.
func (c *cursor) Scan(dest ...any) error {
	if c.pos < 0 || c.pos >= len(c.batch) {
		return scanError(fmt.Errorf("scan called without a current row"), c.purpose)
	}
	row := c.batch[c.pos]
	if len(dest) != len(row) {
		return scanError(fmt.Errorf("%d destinations for %d columns", len(dest), len(row)), c.purpose)
	}

	tm := c.session.conn.TypeMap()
	for i, d := range dest {
		f := c.fields[i]
		if err := tm.Scan(f.DataTypeOID, f.Format, row[i], d); err != nil {
			return scanError(fmt.Errorf("column %q: %w", f.Name, err), c.purpose)
		}
	}
	return nil
}

// Close releases the server-side cursor. A failing CLOSE leaves the
// transaction aborted, so the session refuses further work.
func (c *cursor) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.batch = nil
	if c.session.broken != nil {
		return
	}
	if _, err := c.session.tx.Exec(c.ctx, "CLOSE "+c.name, pgx.QueryExecModeSimpleProtocol); err != nil {
		c.session.broken = poison(err)
	}
}

func (c *cursor) Err() error {
	return c.err
}
