// Package catalog reads PostgreSQL catalog metadata through a
// database.Session: schemas, relations, their details and functions.
//
// Listings that can be arbitrarily long (schemas, relations of a schema,
// columns, functions) go through server-side cursors. Per-relation details
// that are small by nature (indexes, foreign keys, triggers) use plain
// queries. Nothing here caches across calls.
package catalog

import (
	"context"
	"fmt"
	"strconv"

	"github.com/koustreak/pgtree/internal/database"
	"github.com/koustreak/pgtree/internal/errs"
)

// Iterator is a pull-based stream of catalog entries backed by a cursor.
// Callers must Close it, even after Next returned false.
type Iterator[T any] interface {
	Next() bool
	Value() T
	Err() error
	Close()
}

// Catalog issues read-only catalog queries on one session.
type Catalog struct {
	session database.Session
	q       queries
}

// New returns a Catalog using query variants suited to caps.
func New(session database.Session, caps Capabilities) *Catalog {
	return &Catalog{session: session, q: newQueries(caps)}
}

// Schemas streams schema names in name order. Unless includeSystem is set,
// pg_* namespaces and information_schema are left out.
func (c *Catalog) Schemas(ctx context.Context, includeSystem bool) (Iterator[string], error) {
	rows, err := c.session.Cursor(ctx, "list schemas", c.q.schemas(includeSystem))
	if err != nil {
		return nil, err
	}
	return newRowIterator(rows, func(r database.Rows) (string, error) {
		var name string
		err := r.Scan(&name)
		return name, err
	}), nil
}

// SchemaExists reports whether a schema with exactly this name exists.
func (c *Catalog) SchemaExists(ctx context.Context, name string) (bool, error) {
	var got string
	purpose := fmt.Sprintf("look up schema %s", strconv.Quote(name))
	return c.session.QueryOne(ctx, purpose, qSchemaExists, []any{name}, &got)
}

// Relations streams the relations of schema whose kind is listed in kinds,
// in name order.
func (c *Catalog) Relations(ctx context.Context, schema string, kinds []Kind) (Iterator[Relation], error) {
	purpose := fmt.Sprintf("list relations of schema %s", strconv.Quote(schema))
	rows, err := c.session.Cursor(ctx, purpose, c.q.relations(kinds), schema)
	if err != nil {
		return nil, err
	}
	return newRowIterator(rows, func(r database.Rows) (Relation, error) {
		rel := Relation{Schema: schema}
		var relkind string
		if err := r.Scan(&rel.OID, &rel.Name, &relkind); err != nil {
			return Relation{}, err
		}
		kind, ok := kindOf(relkind)
		if !ok {
			return Relation{}, errs.New(errs.ErrKindQueryFailed,
				fmt.Sprintf("%s: unexpected relkind %q for %s", purpose, relkind, rel.QualifiedName()))
		}
		rel.Kind = kind
		return rel, nil
	}), nil
}

// Columns returns the live columns of rel in attribute order. Dropped
// columns are skipped, so ordinals may have gaps but the output does not.
func (c *Catalog) Columns(ctx context.Context, rel Relation) ([]Column, error) {
	rows, err := c.session.Cursor(ctx, "columns of "+rel.QualifiedName(), qColumns, rel.OID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var col Column
		if err := rows.Scan(&col.Name, &col.Type, &col.NotNull, &col.Default); err != nil {
			return nil, err
		}
		if col.Default != nil {
			col.DefaultFunc = ExtractDefaultFunc(*col.Default)
		}
		cols = append(cols, col)
	}
	return cols, rows.Err()
}

// Indexes returns the indexes of rel in name order.
func (c *Catalog) Indexes(ctx context.Context, rel Relation) ([]Index, error) {
	rows, err := c.session.Query(ctx, "indexes of "+rel.QualifiedName(), qIndexes, rel.OID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var idxs []Index
	for rows.Next() {
		var idx Index
		if err := rows.Scan(&idx.Name, &idx.Primary, &idx.Unique, &idx.Invalid, &idx.Definition); err != nil {
			return nil, err
		}
		idx.Definition = oneLine(idx.Definition)
		idxs = append(idxs, idx)
	}
	return idxs, rows.Err()
}

// ForeignKeys returns the keys declared on rel and the keys referencing
// rel. The two sides are separate queries: a referencing relation may live
// in a schema that is not being walked.
func (c *Catalog) ForeignKeys(ctx context.Context, rel Relation) (ForeignKeys, error) {
	out, err := c.foreignKeys(ctx, "outgoing foreign keys of "+rel.QualifiedName(), qForeignKeysOut, rel.OID)
	if err != nil {
		return ForeignKeys{}, err
	}
	in, err := c.foreignKeys(ctx, "incoming foreign keys of "+rel.QualifiedName(), qForeignKeysIn, rel.OID)
	if err != nil {
		return ForeignKeys{}, err
	}
	return ForeignKeys{Outgoing: out, Incoming: in}, nil
}

func (c *Catalog) foreignKeys(ctx context.Context, purpose, sql string, oid uint32) ([]ForeignKey, error) {
	rows, err := c.session.Query(ctx, purpose, sql, oid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fks []ForeignKey
	for rows.Next() {
		var fk ForeignKey
		if err := rows.Scan(&fk.Name, &fk.Other, &fk.Definition); err != nil {
			return nil, err
		}
		fk.Definition = oneLine(fk.Definition)
		fks = append(fks, fk)
	}
	return fks, rows.Err()
}

// Triggers returns the user-defined triggers of rel in name order. Internal
// triggers, such as those enforcing foreign keys, are excluded.
func (c *Catalog) Triggers(ctx context.Context, rel Relation) ([]Trigger, error) {
	rows, err := c.session.Query(ctx, "triggers of "+rel.QualifiedName(), qTriggers, rel.OID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trgs []Trigger
	for rows.Next() {
		var trg Trigger
		if err := rows.Scan(&trg.Name, &trg.Function, &trg.Definition); err != nil {
			return nil, err
		}
		trg.Definition = oneLine(trg.Definition)
		trgs = append(trgs, trg)
	}
	return trgs, rows.Err()
}

// Functions streams the functions and procedures of schema ordered by name
// and then by argument list.
func (c *Catalog) Functions(ctx context.Context, schema string) (Iterator[Function], error) {
	purpose := fmt.Sprintf("list functions of schema %s", strconv.Quote(schema))
	rows, err := c.session.Cursor(ctx, purpose, c.q.functions(), schema)
	if err != nil {
		return nil, err
	}
	return newRowIterator(rows, func(r database.Rows) (Function, error) {
		var fn Function
		err := r.Scan(&fn.Name, &fn.Args, &fn.Returns)
		return fn, err
	}), nil
}

// rowIterator adapts database.Rows to Iterator[T].
type rowIterator[T any] struct {
	rows database.Rows
	scan func(database.Rows) (T, error)
	cur  T
	err  error
}

func newRowIterator[T any](rows database.Rows, scan func(database.Rows) (T, error)) *rowIterator[T] {
	return &rowIterator[T]{rows: rows, scan: scan}
}

func (it *rowIterator[T]) Next() bool {
	if it.err != nil || !it.rows.Next() {
		return false
	}
	v, err := it.scan(it.rows)
	if err != nil {
		it.err = err
		return false
	}
	it.cur = v
	return true
}

func (it *rowIterator[T]) Value() T { return it.cur }

func (it *rowIterator[T]) Err() error {
	if it.err != nil {
		return it.err
	}
	return it.rows.Err()
}

func (it *rowIterator[T]) Close() { it.rows.Close() }
