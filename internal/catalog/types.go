package catalog

import (
	"strconv"
	"strings"
)

// Kind is the relation kind reported for a pg_class entry.
type Kind string

const (
	KindTable        Kind = "table"
	KindView         Kind = "view"
	KindMatView      Kind = "materialized view"
	KindForeignTable Kind = "foreign table"
)

// Tag returns the bracketed label used in both output formats, e.g. "[table]".
func (k Kind) Tag() string {
	return "[" + string(k) + "]"
}

// relkinds lists the pg_class.relkind codes backing each Kind.
// Partitioned tables ('p') are reported as tables.
var relkinds = map[Kind][]string{
	KindTable:        {"r", "p"},
	KindView:         {"v"},
	KindMatView:      {"m"},
	KindForeignTable: {"f"},
}

func kindOf(relkind string) (Kind, bool) {
	switch relkind {
	case "r", "p":
		return KindTable, true
	case "v":
		return KindView, true
	case "m":
		return KindMatView, true
	case "f":
		return KindForeignTable, true
	}
	return "", false
}

// Relation identifies one table-like object inside a schema.
type Relation struct {
	OID    uint32
	Schema string
	Name   string
	Kind   Kind
}

// QualifiedName renders the relation as "schema"."name" for diagnostics.
func (r Relation) QualifiedName() string {
	return strconv.Quote(r.Schema) + "." + strconv.Quote(r.Name)
}

// Column describes a single column in a relation
type Column struct {
	Name    string
	Type    string // format_type output: integer, character varying(40), ...
	NotNull bool

	Default     *string // nil if no default
	DefaultFunc *string // function called at the head of Default, if any
}

// Index describes an index of a relation.
type Index struct {
	Name       string
	Primary    bool
	Unique     bool
	Invalid    bool   // NOT indisvalid: failed or in-progress concurrent build
	Definition string // pg_get_indexdef, collapsed to one line
}

// ForeignKey is one foreign-key constraint seen from one side.
// Other is the relation on the opposite side, as rendered by regclass.
type ForeignKey struct {
	Name       string
	Other      string
	Definition string
}

// ForeignKeys holds the keys defined on a relation (Outgoing) and the keys
// defined elsewhere that reference it (Incoming).
type ForeignKeys struct {
	Outgoing []ForeignKey
	Incoming []ForeignKey
}

// Trigger describes a user-defined trigger.
type Trigger struct {
	Name       string
	Function   *string // nil when the trigger function cannot be resolved
	Definition string
}

// Function describes an ordinary function or procedure.
type Function struct {
	Name    string
	Args    string
	Returns string
}

// oneLine collapses every run of whitespace in a rendered definition into a
// single space.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
