// Package walktest provides an in-memory walk.Source for tests of the
// layers above the walker.
package walktest

import (
	"context"
	"slices"
	"strings"

	"github.com/koustreak/pgtree/internal/catalog"
)

// Schema is one schema of a Memory catalog.
type Schema struct {
	Name      string
	Relations []Relation
	Functions []catalog.Function
}

// Relation is one relation with its details.
type Relation struct {
	Name        string
	Kind        catalog.Kind
	Columns     []catalog.Column
	Indexes     []catalog.Index
	ForeignKeys catalog.ForeignKeys
	Triggers    []catalog.Trigger
}

// Memory serves the schemas in Data. Schemas and relations are returned
// sorted by name, like the real catalog. Close is recorded.
type Memory struct {
	Data   []Schema
	Err    error // returned by every call when set
	Closed bool
}

func (m *Memory) find(name string) *Schema {
	for i := range m.Data {
		if m.Data[i].Name == name {
			return &m.Data[i]
		}
	}
	return nil
}

func (m *Memory) relation(rel catalog.Relation) Relation {
	if s := m.find(rel.Schema); s != nil {
		for _, r := range s.Relations {
			if r.Name == rel.Name {
				return r
			}
		}
	}
	return Relation{}
}

func (m *Memory) Schemas(_ context.Context, includeSystem bool) (catalog.Iterator[string], error) {
	if m.Err != nil {
		return nil, m.Err
	}
	var names []string
	for _, s := range m.Data {
		if includeSystem || (!strings.HasPrefix(s.Name, "pg_") && s.Name != "information_schema") {
			names = append(names, s.Name)
		}
	}
	slices.Sort(names)
	return Iter(names...), nil
}

func (m *Memory) SchemaExists(_ context.Context, name string) (bool, error) {
	if m.Err != nil {
		return false, m.Err
	}
	return m.find(name) != nil, nil
}

func (m *Memory) Relations(_ context.Context, schema string, kinds []catalog.Kind) (catalog.Iterator[catalog.Relation], error) {
	if m.Err != nil {
		return nil, m.Err
	}
	var rels []catalog.Relation
	if s := m.find(schema); s != nil {
		for i, r := range s.Relations {
			if slices.Contains(kinds, r.Kind) {
				rels = append(rels, catalog.Relation{OID: uint32(i + 1), Schema: schema, Name: r.Name, Kind: r.Kind})
			}
		}
	}
	slices.SortFunc(rels, func(a, b catalog.Relation) int { return strings.Compare(a.Name, b.Name) })
	return Iter(rels...), nil
}

func (m *Memory) Columns(_ context.Context, rel catalog.Relation) ([]catalog.Column, error) {
	return m.relation(rel).Columns, m.Err
}

func (m *Memory) Indexes(_ context.Context, rel catalog.Relation) ([]catalog.Index, error) {
	return m.relation(rel).Indexes, m.Err
}

func (m *Memory) ForeignKeys(_ context.Context, rel catalog.Relation) (catalog.ForeignKeys, error) {
	return m.relation(rel).ForeignKeys, m.Err
}

func (m *Memory) Triggers(_ context.Context, rel catalog.Relation) ([]catalog.Trigger, error) {
	return m.relation(rel).Triggers, m.Err
}

func (m *Memory) Functions(_ context.Context, schema string) (catalog.Iterator[catalog.Function], error) {
	if m.Err != nil {
		return nil, m.Err
	}
	var fns []catalog.Function
	if s := m.find(schema); s != nil {
		fns = s.Functions
	}
	return Iter(fns...), nil
}

// Close marks the catalog closed.
func (m *Memory) Close(context.Context) error {
	m.Closed = true
	return nil
}

// Iter returns an iterator over items.
func Iter[T any](items ...T) catalog.Iterator[T] {
	return &sliceIter[T]{items: items}
}

type sliceIter[T any] struct {
	items []T
	pos   int
}

func (it *sliceIter[T]) Next() bool {
	if it.pos >= len(it.items) {
		return false
	}
	it.pos++
	return true
}

func (it *sliceIter[T]) Value() T   { return it.items[it.pos-1] }
func (it *sliceIter[T]) Err() error { return nil }
func (it *sliceIter[T]) Close()     {}
