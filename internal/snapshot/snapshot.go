// Package snapshot ties the layers together: it opens a catalog session,
// walks it and renders the events to an output.
//
// The CLI and the HTTP server both go through Write, so a snapshot served
// over HTTP is byte-identical to one written by `pgtree`.
package snapshot

import (
	"context"
	"io"

	"github.com/koustreak/pgtree/internal/catalog"
	"github.com/koustreak/pgtree/internal/database"
	"github.com/koustreak/pgtree/internal/database/postgres"
	"github.com/koustreak/pgtree/internal/emit"
	"github.com/koustreak/pgtree/internal/filestore"
	"github.com/koustreak/pgtree/internal/logger"
	"github.com/koustreak/pgtree/internal/sink"
	"github.com/koustreak/pgtree/internal/walk"
)

// Catalog is an open, read-only view of one database.
type Catalog interface {
	walk.Source
	Close(ctx context.Context) error
}

// Opener opens a Catalog. Every call returns an independent session.
type Opener func(ctx context.Context) (Catalog, error)

// Postgres returns an Opener that connects with cfg and probes the server
// version before handing out the catalog.
func Postgres(cfg *database.Config, log *logger.Logger) Opener {
	return func(ctx context.Context) (Catalog, error) {
		session, err := postgres.Open(ctx, cfg)
		if err != nil {
			return nil, err
		}

		caps, err := catalog.Probe(ctx, session)
		if err != nil {
			_ = session.Close(ctx)
			return nil, err
		}
		log.DebugWith("connected", map[string]any{
			"server_version":     caps.ServerVersion,
			"partitioned_tables": caps.PartitionedTables,
			"prokind":            caps.ProKind,
		})

		return &pgCatalog{Catalog: catalog.New(session, caps), session: session}, nil
	}
}

type pgCatalog struct {
	*catalog.Catalog
	session *postgres.Session
}

func (c *pgCatalog) Close(ctx context.Context) error {
	return c.session.Close(ctx)
}

// Request describes one snapshot.
type Request struct {
	Selector walk.Selector
	Filters  walk.Filters
	Format   emit.Format
	Pretty   bool
}

// Write walks src and renders the events to out. out is committed only
// when both the walk and the rendering succeeded; otherwise it is aborted.
// The counts cover what was emitted, also on failure.
func Write(ctx context.Context, src walk.Source, req Request, out sink.Output, log *logger.Logger) (emit.Counts, error) {
	events, err := walk.New(src, log).Walk(ctx, req.Selector, req.Filters)
	if err != nil {
		_ = out.Abort()
		return emit.Counts{}, err
	}

	counter := &emit.Counter{}
	if err := emit.Run(events, emit.New(req.Format, out, req.Pretty), counter); err != nil {
		_ = out.Abort()
		return counter.Counts, err
	}
	if err := out.Commit(); err != nil {
		return counter.Counts, err
	}
	return counter.Counts, nil
}

// Upload stores size bytes of rendered output from r at loc.
func Upload(ctx context.Context, store filestore.Store, loc filestore.Location, r io.Reader, size int64, format emit.Format) (*filestore.ObjectInfo, error) {
	return store.PutObject(ctx, loc, r, size, format.ContentType())
}
