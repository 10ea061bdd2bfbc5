// Package walk drives the catalog traversal: it resolves the selected
// schemas and turns each one into a fixed sequence of events.
//
// For every schema, in name order:
//
//	SchemaEnter
//	  for every relation, in name order:
//	    RelationEnter, Columns, [Indexes], [ForeignKeys], [Triggers], RelationExit
//	  [FunctionsEnter, Function..., FunctionsExit]
//	SchemaExit
//
// Every emitter relies on this order. Bracketed steps appear only when the
// matching filter is enabled.
package walk

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/koustreak/pgtree/internal/catalog"
	"github.com/koustreak/pgtree/internal/errs"
	"github.com/koustreak/pgtree/internal/logger"
)

// Filters selects optional relation kinds and detail categories. Tables
// and columns are always reported.
type Filters struct {
	Views             bool
	MaterializedViews bool
	ForeignTables     bool

	Indexes     bool
	ForeignKeys bool
	Triggers    bool
	Functions   bool
}

// Kinds returns the relation kinds to list.
func (f Filters) Kinds() []catalog.Kind {
	kinds := []catalog.Kind{catalog.KindTable}
	if f.Views {
		kinds = append(kinds, catalog.KindView)
	}
	if f.MaterializedViews {
		kinds = append(kinds, catalog.KindMatView)
	}
	if f.ForeignTables {
		kinds = append(kinds, catalog.KindForeignTable)
	}
	return kinds
}

// ParseFilters enables the filters named in a comma-separated list:
// views, matviews, foreign_tables, indexes, foreign_keys, triggers,
// functions, or all (foreign and fkeys are accepted as short forms).
// Names are case-insensitive and blanks are ignored.
func ParseFilters(list string) (Filters, error) {
	var f Filters
	for _, name := range strings.Split(list, ",") {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "":
		case "views":
			f.Views = true
		case "matviews", "materialized_views":
			f.MaterializedViews = true
		case "foreign", "foreign_tables":
			f.ForeignTables = true
		case "indexes":
			f.Indexes = true
		case "fkeys", "foreign_keys":
			f.ForeignKeys = true
		case "triggers":
			f.Triggers = true
		case "functions":
			f.Functions = true
		case "all":
			f = Filters{
				Views: true, MaterializedViews: true, ForeignTables: true,
				Indexes: true, ForeignKeys: true, Triggers: true, Functions: true,
			}
		default:
			return Filters{}, errs.New(errs.ErrKindInvalidInput, fmt.Sprintf("unknown include %q", name))
		}
	}
	return f, nil
}

// Source is the catalog the walker reads from.
type Source interface {
	Schemas(ctx context.Context, includeSystem bool) (catalog.Iterator[string], error)
	SchemaExists(ctx context.Context, name string) (bool, error)
	Relations(ctx context.Context, schema string, kinds []catalog.Kind) (catalog.Iterator[catalog.Relation], error)
	Columns(ctx context.Context, rel catalog.Relation) ([]catalog.Column, error)
	Indexes(ctx context.Context, rel catalog.Relation) ([]catalog.Index, error)
	ForeignKeys(ctx context.Context, rel catalog.Relation) (catalog.ForeignKeys, error)
	Triggers(ctx context.Context, rel catalog.Relation) ([]catalog.Trigger, error)
	Functions(ctx context.Context, schema string) (catalog.Iterator[catalog.Function], error)
}

var _ Source = (*catalog.Catalog)(nil)

// Walker turns a Source into a stream of events. It issues one query at a
// time and keeps at most one relation's details in memory.
type Walker struct {
	src Source
	log *logger.Logger
}

// New creates a Walker. A nil logger disables logging.
func New(src Source, log *logger.Logger) *Walker {
	if log == nil {
		log = logger.Nop()
	}
	return &Walker{src: src, log: log}
}

// errStop signals that the consumer stopped ranging over the events.
var errStop = errors.New("walk: consumer stopped")

// Walk validates sel and returns the event stream. A malformed selector is
// reported here, before any query runs. A failure during the walk is
// yielded once, as the final element, with a zero Event.
func (w *Walker) Walk(ctx context.Context, sel Selector, f Filters) (iter.Seq2[Event, error], error) {
	match, err := sel.matcher()
	if err != nil {
		return nil, err
	}

	return func(yield func(Event, error) bool) {
		emit := func(ev Event) error {
			if !yield(ev, nil) {
				return errStop
			}
			return nil
		}
		if err := w.run(ctx, sel, match, f, emit); err != nil && !errors.Is(err, errStop) {
			yield(Event{}, err)
		}
	}, nil
}

func (w *Walker) run(ctx context.Context, sel Selector, match func(string) bool, f Filters, emit func(Event) error) error {
	if sel.literal() {
		found, err := w.src.SchemaExists(ctx, sel.Value)
		if err != nil {
			return err
		}
		if !found {
			w.log.DebugWith("schema not found", map[string]any{"schema": sel.Value})
			return nil
		}
		return w.schema(ctx, sel.Value, f, emit)
	}

	schemas, err := w.src.Schemas(ctx, sel.IncludeSystem)
	if err != nil {
		return err
	}
	defer schemas.Close()

	for schemas.Next() {
		name := schemas.Value()
		if !match(name) {
			continue
		}
		if err := w.schema(ctx, name, f, emit); err != nil {
			return err
		}
	}
	return schemas.Err()
}

func (w *Walker) schema(ctx context.Context, name string, f Filters, emit func(Event) error) error {
	if err := emit(Event{Kind: SchemaEnter, Schema: name}); err != nil {
		return err
	}

	relations, err := w.relations(ctx, name, f, emit)
	if err != nil {
		return err
	}

	functions := 0
	if f.Functions {
		if functions, err = w.functions(ctx, name, emit); err != nil {
			return err
		}
	}

	w.log.DebugWith("schema walked", map[string]any{
		"schema":    name,
		"relations": relations,
		"functions": functions,
	})
	return emit(Event{Kind: SchemaExit, Schema: name})
}

// relations walks every relation of schema with one row of lookahead so
// that the final relation can be flagged Last.
func (w *Walker) relations(ctx context.Context, schema string, f Filters, emit func(Event) error) (int, error) {
	it, err := w.src.Relations(ctx, schema, f.Kinds())
	if err != nil {
		return 0, err
	}
	defer it.Close()

	n := 0
	more := it.Next()
	for more {
		rel := it.Value()
		more = it.Next()
		if !more {
			if err := it.Err(); err != nil {
				return n, err
			}
		}
		if err := w.relation(ctx, rel, !more && !f.Functions, f, emit); err != nil {
			return n, err
		}
		n++
	}
	return n, it.Err()
}

func (w *Walker) relation(ctx context.Context, rel catalog.Relation, last bool, f Filters, emit func(Event) error) error {
	base := Event{Schema: rel.Schema, Relation: rel}

	ev := base
	ev.Kind, ev.Last = RelationEnter, last
	if err := emit(ev); err != nil {
		return err
	}

	cols, err := w.src.Columns(ctx, rel)
	if err != nil {
		return err
	}
	ev = base
	ev.Kind, ev.Columns = Columns, cols
	ev.Last = !f.Indexes && !f.ForeignKeys && !f.Triggers
	if err := emit(ev); err != nil {
		return err
	}

	if f.Indexes {
		idxs, err := w.src.Indexes(ctx, rel)
		if err != nil {
			return err
		}
		ev = base
		ev.Kind, ev.Indexes = Indexes, idxs
		ev.Last = !f.ForeignKeys && !f.Triggers
		if err := emit(ev); err != nil {
			return err
		}
	}

	if f.ForeignKeys {
		fks, err := w.src.ForeignKeys(ctx, rel)
		if err != nil {
			return err
		}
		ev = base
		ev.Kind, ev.ForeignKeys = ForeignKeys, fks
		ev.Last = !f.Triggers
		if err := emit(ev); err != nil {
			return err
		}
	}

	if f.Triggers {
		trgs, err := w.src.Triggers(ctx, rel)
		if err != nil {
			return err
		}
		ev = base
		ev.Kind, ev.Triggers, ev.Last = Triggers, trgs, true
		if err := emit(ev); err != nil {
			return err
		}
	}

	ev = base
	ev.Kind = RelationExit
	return emit(ev)
}

func (w *Walker) functions(ctx context.Context, schema string, emit func(Event) error) (int, error) {
	it, err := w.src.Functions(ctx, schema)
	if err != nil {
		return 0, err
	}
	defer it.Close()

	if err := emit(Event{Kind: FunctionsEnter, Schema: schema, Last: true}); err != nil {
		return 0, err
	}

	n := 0
	more := it.Next()
	for more {
		fn := it.Value()
		more = it.Next()
		if !more {
			if err := it.Err(); err != nil {
				return n, err
			}
		}
		if err := emit(Event{Kind: Function, Schema: schema, Function: fn, Last: !more}); err != nil {
			return n, err
		}
		n++
	}
	if err := it.Err(); err != nil {
		return n, err
	}
	return n, emit(Event{Kind: FunctionsExit, Schema: schema})
}
