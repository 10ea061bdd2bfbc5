package emit

import (
	"bufio"
	"io"
	"strings"

	"github.com/koustreak/pgtree/internal/catalog"
	"github.com/koustreak/pgtree/internal/walk"
)

// Connector glyphs. Every prefix segment is three cells wide.
const (
	glyphBranch = "├─ "
	glyphLast   = "└─ "
	glyphPipe   = "│  "
	glyphBlank  = "   "
)

// Tree renders events as an indented ASCII tree, one node per line:
//
//	app
//	├─ users [table]
//	│  ├─ columns
//	│  │  ├─ id: integer NOT NULL DEFAULT nextval('users_id_seq'::regclass) [func: nextval]
//	│  │  └─ email: text
//	│  └─ indexes
//	│     └─ users_pkey [PK] :: CREATE UNIQUE INDEX users_pkey ON app.users USING btree (id)
//	└─ functions
//	   └─ touch() -> trigger
//
// Consecutive schemas are separated by a blank line. Lines are written as
// events arrive; only the current line is buffered.
type Tree struct {
	w *bufio.Writer

	schemas   int
	relPrefix string // prefix of the current relation's children
	fnPrefix  string
	fnCount   int
}

// NewTree returns a tree emitter writing to w.
func NewTree(w io.Writer) *Tree {
	return &Tree{w: bufio.NewWriter(w)}
}

func (t *Tree) Begin() error { return nil }

func (t *Tree) End() error {
	if err := t.w.Flush(); err != nil {
		return writeError(err)
	}
	return nil
}

func (t *Tree) Emit(ev walk.Event) error {
	switch ev.Kind {
	case walk.SchemaEnter:
		if t.schemas > 0 {
			t.w.WriteString("\n")
		}
		t.schemas++
		t.w.WriteString(ev.Schema + "\n")

	case walk.RelationEnter:
		t.node("", ev.Last, ev.Relation.Name+" "+ev.Relation.Kind.Tag())
		t.relPrefix = childPrefix("", ev.Last)

	case walk.Columns:
		lines := make([]string, len(ev.Columns))
		for i, c := range ev.Columns {
			lines[i] = columnLine(c)
		}
		t.group(t.relPrefix, ev.Last, "columns", lines)

	case walk.Indexes:
		lines := make([]string, len(ev.Indexes))
		for i, idx := range ev.Indexes {
			lines[i] = indexLine(idx)
		}
		t.group(t.relPrefix, ev.Last, "indexes", lines)

	case walk.ForeignKeys:
		t.node(t.relPrefix, ev.Last, "foreign_keys")
		p := childPrefix(t.relPrefix, ev.Last)
		t.group(p, false, "outgoing", fkLines(ev.ForeignKeys.Outgoing, "->"))
		t.group(p, true, "incoming", fkLines(ev.ForeignKeys.Incoming, "<-"))

	case walk.Triggers:
		lines := make([]string, len(ev.Triggers))
		for i, trg := range ev.Triggers {
			lines[i] = triggerLine(trg)
		}
		t.group(t.relPrefix, ev.Last, "triggers", lines)

	case walk.FunctionsEnter:
		t.node("", true, "functions")
		t.fnPrefix = childPrefix("", true)
		t.fnCount = 0

	case walk.Function:
		fn := ev.Function
		t.node(t.fnPrefix, ev.Last, fn.Name+"("+fn.Args+") -> "+fn.Returns)
		t.fnCount++

	case walk.FunctionsExit:
		if t.fnCount == 0 {
			t.node(t.fnPrefix, true, "(none)")
		}

	case walk.SchemaExit:
		if err := t.w.Flush(); err != nil {
			return writeError(err)
		}
	}
	return nil
}

// node writes one line. Write errors are sticky in bufio.Writer and
// surface at the next Flush.
func (t *Tree) node(prefix string, last bool, text string) {
	glyph := glyphBranch
	if last {
		glyph = glyphLast
	}
	t.w.WriteString(prefix + glyph + text + "\n")
}

// group writes a category node and its leaves, or a "(none)" leaf when
// the category is empty.
func (t *Tree) group(prefix string, last bool, name string, leaves []string) {
	t.node(prefix, last, name)
	p := childPrefix(prefix, last)
	if len(leaves) == 0 {
		t.node(p, true, "(none)")
		return
	}
	for i, l := range leaves {
		t.node(p, i == len(leaves)-1, l)
	}
}

func childPrefix(prefix string, last bool) string {
	if last {
		return prefix + glyphBlank
	}
	return prefix + glyphPipe
}

// columnLine folds whitespace in the default so the column stays one line.
// The JSON document keeps the expression as the server rendered it.
func columnLine(c catalog.Column) string {
	var b strings.Builder
	b.WriteString(c.Name + ": " + c.Type)
	if c.NotNull {
		b.WriteString(" NOT NULL")
	}
	if c.Default != nil {
		b.WriteString(" DEFAULT " + strings.Join(strings.Fields(*c.Default), " "))
	}
	if c.DefaultFunc != nil {
		b.WriteString(" [func: " + *c.DefaultFunc + "]")
	}
	return b.String()
}

func indexLine(idx catalog.Index) string {
	var tags []string
	if idx.Primary {
		tags = append(tags, "PK")
	}
	if idx.Unique && !idx.Primary {
		tags = append(tags, "UNIQ")
	}
	if idx.Invalid {
		tags = append(tags, "INVALID")
	}

	line := idx.Name
	if len(tags) > 0 {
		line += " [" + strings.Join(tags, "|") + "]"
	}
	return line + " :: " + idx.Definition
}

func fkLines(fks []catalog.ForeignKey, arrow string) []string {
	lines := make([]string, len(fks))
	for i, fk := range fks {
		lines[i] = fk.Name + " " + arrow + " " + fk.Other + " :: " + fk.Definition
	}
	return lines
}

func triggerLine(trg catalog.Trigger) string {
	line := trg.Name
	if trg.Function != nil {
		line += " [func: " + *trg.Function + "]"
	}
	return line + " :: " + trg.Definition
}
