package emit

import "github.com/koustreak/pgtree/internal/walk"

// Counts tallies the nodes seen during a walk.
type Counts struct {
	Schemas     int
	Relations   int
	Columns     int
	Indexes     int
	ForeignKeys int // outgoing keys; each constraint is counted once
	Incoming    int
	Triggers    int
	Functions   int
}

// Fields returns the counts as structured log fields.
func (c Counts) Fields() map[string]any {
	return map[string]any{
		"schemas":      c.Schemas,
		"relations":    c.Relations,
		"columns":      c.Columns,
		"indexes":      c.Indexes,
		"foreign_keys": c.ForeignKeys,
		"incoming_fks": c.Incoming,
		"triggers":     c.Triggers,
		"functions":    c.Functions,
	}
}

// Counter is an Emitter that only counts.
type Counter struct {
	Counts Counts
}

func (c *Counter) Begin() error { return nil }
func (c *Counter) End() error   { return nil }

func (c *Counter) Emit(ev walk.Event) error {
	switch ev.Kind {
	case walk.SchemaEnter:
		c.Counts.Schemas++
	case walk.RelationEnter:
		c.Counts.Relations++
	case walk.Columns:
		c.Counts.Columns += len(ev.Columns)
	case walk.Indexes:
		c.Counts.Indexes += len(ev.Indexes)
	case walk.ForeignKeys:
		c.Counts.ForeignKeys += len(ev.ForeignKeys.Outgoing)
		c.Counts.Incoming += len(ev.ForeignKeys.Incoming)
	case walk.Triggers:
		c.Counts.Triggers += len(ev.Triggers)
	case walk.Function:
		c.Counts.Functions++
	}
	return nil
}
