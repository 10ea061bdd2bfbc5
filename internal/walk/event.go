package walk

import "github.com/koustreak/pgtree/internal/catalog"

// EventKind identifies a step of the traversal.
type EventKind int

const (
	SchemaEnter EventKind = iota
	RelationEnter
	Columns
	Indexes
	ForeignKeys
	Triggers
	RelationExit
	FunctionsEnter
	Function
	FunctionsExit
	SchemaExit
)

var eventNames = [...]string{
	SchemaEnter:    "schema_enter",
	RelationEnter:  "relation_enter",
	Columns:        "columns",
	Indexes:        "indexes",
	ForeignKeys:    "foreign_keys",
	Triggers:       "triggers",
	RelationExit:   "relation_exit",
	FunctionsEnter: "functions_enter",
	Function:       "function",
	FunctionsExit:  "functions_exit",
	SchemaExit:     "schema_exit",
}

func (k EventKind) String() string {
	if int(k) < len(eventNames) {
		return eventNames[k]
	}
	return "unknown"
}

// Event is one step of a walk. Only the fields relevant to Kind are set.
//
// Last is true when the node is the final sibling at its level:
//   - RelationEnter: no more relations follow and functions are not listed
//   - Columns, Indexes, ForeignKeys, Triggers: no further detail category
//     follows for this relation
//   - Function: no more functions follow in this schema
//
// FunctionsEnter is always the last child of its schema.
type Event struct {
	Kind EventKind
	Last bool

	Schema   string
	Relation catalog.Relation

	Columns     []catalog.Column
	Indexes     []catalog.Index
	ForeignKeys catalog.ForeignKeys
	Triggers    []catalog.Trigger
	Function    catalog.Function
}
