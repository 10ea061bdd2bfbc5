// Package emit renders walk events. The tree and JSON emitters consume the
// same event stream, so both formats always describe the same nodes.
package emit

import (
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/koustreak/pgtree/internal/errs"
	"github.com/koustreak/pgtree/internal/walk"
)

// Emitter consumes walk events in order.
type Emitter interface {
	// Begin is called once before the first event.
	Begin() error
	// Emit handles one event.
	Emit(ev walk.Event) error
	// End is called once after the last event of a successful walk.
	End() error
}

// Format selects an output encoding.
type Format string

const (
	FormatTree Format = "tree"
	FormatJSON Format = "json"
)

// ParseFormat accepts "tree" (or "ascii") and "json".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "tree", "ascii":
		return FormatTree, nil
	case "json":
		return FormatJSON, nil
	}
	return "", errs.New(errs.ErrKindInvalidInput, fmt.Sprintf("unknown output format %q (want tree or json)", s))
}

// Structured reports whether a partial output would be invalid, so the
// output must be held back until the walk succeeded.
func (f Format) Structured() bool {
	return f == FormatJSON
}

// ContentType is the media type of the rendered output.
func (f Format) ContentType() string {
	if f == FormatJSON {
		return "application/json"
	}
	return "text/plain; charset=utf-8"
}

// New returns the emitter for format writing to w.
func New(format Format, w io.Writer, pretty bool) Emitter {
	if format == FormatJSON {
		return NewJSON(w, pretty)
	}
	return NewTree(w)
}

// Run feeds every event of events to each emitter. It stops at the first
// walk or emitter error; End is only called when the walk completed.
func Run(events iter.Seq2[walk.Event, error], emitters ...Emitter) error {
	for _, e := range emitters {
		if err := e.Begin(); err != nil {
			return err
		}
	}
	for ev, err := range events {
		if err != nil {
			return err
		}
		for _, e := range emitters {
			if err := e.Emit(ev); err != nil {
				return err
			}
		}
	}
	for _, e := range emitters {
		if err := e.End(); err != nil {
			return err
		}
	}
	return nil
}

// writeError wraps a failed write to the output sink.
func writeError(err error) error {
	return errs.Wrap(errs.ErrKindUnknown, "write output", err)
}
