package emit

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"strings"

	"github.com/koustreak/pgtree/internal/catalog"
	"github.com/koustreak/pgtree/internal/walk"
)

const jsonIndent = "  "

// Document nesting depths, used for indentation in pretty mode.
const (
	depthSchemasKey = 1 // "schemas": [
	depthSchema     = 2 // { "name": ... }
	depthSchemaKey  = 3 // "relations": [ / "functions": [
	depthItem       = 4 // relation and function objects
)

// JSON writes the document
//
//	{"schemas": [{"name": ..., "relations": [...], "functions": [...]}]}
//
// incrementally. Only the current relation is held in memory; it is
// encoded when its RelationExit arrives. Pretty output is laid out exactly
// as json.MarshalIndent with a two-space indent would lay out the whole
// document. Both forms end with a newline.
type JSON struct {
	w      *bufio.Writer
	pretty bool
	buf    bytes.Buffer

	schemas   int
	relations int
	relsDone  bool // "relations" array written and closed
	functions int
	rel       *relationDoc
}

// NewJSON returns a JSON emitter writing to w.
func NewJSON(w io.Writer, pretty bool) *JSON {
	return &JSON{w: bufio.NewWriter(w), pretty: pretty}
}

type relationDoc struct {
	Name        string          `json:"name"`
	Kind        string          `json:"kind"`
	Columns     []columnDoc     `json:"columns"`
	Indexes     *[]indexDoc     `json:"indexes,omitempty"`
	ForeignKeys *foreignKeysDoc `json:"foreign_keys,omitempty"`
	Triggers    *[]triggerDoc   `json:"triggers,omitempty"`
}

type columnDoc struct {
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	NotNull     bool    `json:"not_null"`
	Default     *string `json:"default,omitempty"`
	DefaultFunc *string `json:"default_func,omitempty"`
}

type indexDoc struct {
	Name       string `json:"name"`
	Primary    bool   `json:"primary"`
	Unique     bool   `json:"unique"`
	Invalid    bool   `json:"invalid"`
	Definition string `json:"definition"`
}

type foreignKeysDoc struct {
	Outgoing []foreignKeyDoc `json:"outgoing"`
	Incoming []foreignKeyDoc `json:"incoming"`
}

type foreignKeyDoc struct {
	Name       string `json:"name"`
	RefTable   string `json:"ref_table"`
	Definition string `json:"definition"`
}

type triggerDoc struct {
	Name       string  `json:"name"`
	Function   *string `json:"function,omitempty"`
	Definition string  `json:"definition"`
}

type functionDoc struct {
	Name       string `json:"name"`
	Args       string `json:"args"`
	ReturnType string `json:"return_type"`
}

func (j *JSON) Begin() error {
	j.w.WriteString("{" + j.nl(depthSchemasKey) + `"schemas":` + j.sp() + "[")
	return nil
}

func (j *JSON) End() error {
	if j.schemas > 0 {
		j.w.WriteString(j.nl(depthSchemasKey))
	}
	j.w.WriteString("]" + j.nl(0) + "}\n")
	if err := j.w.Flush(); err != nil {
		return writeError(err)
	}
	return nil
}

func (j *JSON) Emit(ev walk.Event) error {
	switch ev.Kind {
	case walk.SchemaEnter:
		if j.schemas > 0 {
			j.w.WriteString(",")
		}
		j.schemas++
		j.relations, j.relsDone, j.functions = 0, false, 0
		j.w.WriteString(j.nl(depthSchema) + "{" + j.nl(depthSchemaKey) + `"name":` + j.sp())
		return j.value(ev.Schema, 0)

	case walk.RelationEnter:
		j.rel = &relationDoc{
			Name:    ev.Relation.Name,
			Kind:    ev.Relation.Kind.Tag(),
			Columns: []columnDoc{},
		}

	case walk.Columns:
		for _, c := range ev.Columns {
			j.rel.Columns = append(j.rel.Columns, columnDoc{
				Name:        c.Name,
				Type:        c.Type,
				NotNull:     c.NotNull,
				Default:     c.Default,
				DefaultFunc: c.DefaultFunc,
			})
		}

	case walk.Indexes:
		idxs := make([]indexDoc, 0, len(ev.Indexes))
		for _, idx := range ev.Indexes {
			idxs = append(idxs, indexDoc{
				Name:       idx.Name,
				Primary:    idx.Primary,
				Unique:     idx.Unique,
				Invalid:    idx.Invalid,
				Definition: idx.Definition,
			})
		}
		j.rel.Indexes = &idxs

	case walk.ForeignKeys:
		j.rel.ForeignKeys = &foreignKeysDoc{
			Outgoing: foreignKeyDocs(ev.ForeignKeys.Outgoing),
			Incoming: foreignKeyDocs(ev.ForeignKeys.Incoming),
		}

	case walk.Triggers:
		trgs := make([]triggerDoc, 0, len(ev.Triggers))
		for _, trg := range ev.Triggers {
			trgs = append(trgs, triggerDoc{Name: trg.Name, Function: trg.Function, Definition: trg.Definition})
		}
		j.rel.Triggers = &trgs

	case walk.RelationExit:
		if j.relations == 0 {
			j.w.WriteString("," + j.nl(depthSchemaKey) + `"relations":` + j.sp() + "[")
		} else {
			j.w.WriteString(",")
		}
		j.relations++
		j.w.WriteString(j.nl(depthItem))
		rel := j.rel
		j.rel = nil
		return j.value(rel, depthItem)

	case walk.FunctionsEnter:
		j.closeRelations()
		j.w.WriteString("," + j.nl(depthSchemaKey) + `"functions":` + j.sp() + "[")

	case walk.Function:
		if j.functions > 0 {
			j.w.WriteString(",")
		}
		j.functions++
		j.w.WriteString(j.nl(depthItem))
		return j.value(functionDoc{Name: ev.Function.Name, Args: ev.Function.Args, ReturnType: ev.Function.Returns}, depthItem)

	case walk.FunctionsExit:
		if j.functions > 0 {
			j.w.WriteString(j.nl(depthSchemaKey))
		}
		j.w.WriteString("]")

	case walk.SchemaExit:
		j.closeRelations()
		j.w.WriteString(j.nl(depthSchema) + "}")
	}
	return nil
}

// closeRelations ends the schema's "relations" array, writing an empty one
// when the schema had no relation.
func (j *JSON) closeRelations() {
	if j.relsDone {
		return
	}
	j.relsDone = true
	if j.relations == 0 {
		j.w.WriteString("," + j.nl(depthSchemaKey) + `"relations":` + j.sp() + "[]")
		return
	}
	j.w.WriteString(j.nl(depthSchemaKey) + "]")
}

// value encodes v as it would appear at depth inside the whole document.
func (j *JSON) value(v any, depth int) error {
	j.buf.Reset()
	enc := json.NewEncoder(&j.buf)
	enc.SetEscapeHTML(false)
	if j.pretty {
		enc.SetIndent(strings.Repeat(jsonIndent, depth), jsonIndent)
	}
	if err := enc.Encode(v); err != nil {
		return writeError(err)
	}
	j.w.Write(bytes.TrimSuffix(j.buf.Bytes(), []byte("\n")))
	return nil
}

func (j *JSON) nl(depth int) string {
	if !j.pretty {
		return ""
	}
	return "\n" + strings.Repeat(jsonIndent, depth)
}

func (j *JSON) sp() string {
	if j.pretty {
		return " "
	}
	return ""
}

func foreignKeyDocs(fks []catalog.ForeignKey) []foreignKeyDoc {
	docs := make([]foreignKeyDoc, 0, len(fks))
	for _, fk := range fks {
		docs = append(docs, foreignKeyDoc{Name: fk.Name, RefTable: fk.Other, Definition: fk.Definition})
	}
	return docs
}
