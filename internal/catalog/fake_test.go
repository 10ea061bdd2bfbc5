package catalog

import (
	"context"
	"fmt"
	"reflect"

	"github.com/koustreak/pgtree/internal/database"
)

// fakeSession serves canned rows keyed by query purpose.
type fakeSession struct {
	results map[string][][]any
	fail    map[string]error
	calls   []fakeCall
}

type fakeCall struct {
	method  string
	purpose string
	sql     string
	args    []any
}

var _ database.Session = (*fakeSession)(nil)

func newFakeSession() *fakeSession {
	return &fakeSession{results: map[string][][]any{}, fail: map[string]error{}}
}

func (f *fakeSession) on(purpose string, rows ...[]any) *fakeSession {
	f.results[purpose] = rows
	return f
}

func (f *fakeSession) rows(method, purpose, sql string, args []any) (*fakeRows, error) {
	f.calls = append(f.calls, fakeCall{method: method, purpose: purpose, sql: sql, args: args})
	if err, ok := f.fail[purpose]; ok {
		return nil, err
	}
	return &fakeRows{data: f.results[purpose]}, nil
}

func (f *fakeSession) Query(_ context.Context, purpose, sql string, args ...any) (database.Rows, error) {
	return f.rows("query", purpose, sql, args)
}

func (f *fakeSession) Cursor(_ context.Context, purpose, sql string, args ...any) (database.Rows, error) {
	return f.rows("cursor", purpose, sql, args)
}

func (f *fakeSession) QueryOne(_ context.Context, purpose, sql string, args []any, dest ...any) (bool, error) {
	r, err := f.rows("queryOne", purpose, sql, args)
	if err != nil {
		return false, err
	}
	if !r.Next() {
		return false, nil
	}
	return true, r.Scan(dest...)
}

func (f *fakeSession) Close(context.Context) error { return nil }

type fakeRows struct {
	data   [][]any
	pos    int
	closed bool
}

func (r *fakeRows) Next() bool {
	if r.closed || r.pos >= len(r.data) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Close()     { r.closed = true }
func (r *fakeRows) Err() error { return nil }

// Scan assigns row values to dest by reflection, converting between
// compatible kinds and wrapping into pointers for nullable columns.
func (r *fakeRows) Scan(dest ...any) error {
	row := r.data[r.pos-1]
	if len(row) != len(dest) {
		return fmt.Errorf("fake scan: %d values for %d destinations", len(row), len(dest))
	}
	for i, d := range dest {
		dv := reflect.ValueOf(d).Elem()
		if row[i] == nil {
			dv.Set(reflect.Zero(dv.Type()))
			continue
		}
		sv := reflect.ValueOf(row[i])
		if dv.Kind() == reflect.Pointer {
			p := reflect.New(dv.Type().Elem())
			p.Elem().Set(sv.Convert(dv.Type().Elem()))
			dv.Set(p)
			continue
		}
		dv.Set(sv.Convert(dv.Type()))
	}
	return nil
}
