package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/koustreak/pgtree/internal/config"
	"github.com/koustreak/pgtree/internal/emit"
	"github.com/koustreak/pgtree/internal/filestore"
	"github.com/koustreak/pgtree/internal/logger"
	"github.com/koustreak/pgtree/internal/sink"
	"github.com/koustreak/pgtree/internal/snapshot"
)

// snapshotFlags are the flags of the root command.
type snapshotFlags struct {
	schema        string
	match         string
	includeSystem bool

	views, matViews, foreignTables        bool
	indexes, foreignKeys, triggers, funcs bool
	all                                   bool

	format  string
	pretty  bool
	output  string
	upload  string
	presign time.Duration
}

func (s *snapshotFlags) register(fl *pflag.FlagSet) {
	fl.StringVarP(&s.schema, "schema", "s", "", "Schema name, or pattern with --match substring|regex")
	fl.StringVarP(&s.match, "match", "m", "exact", "How --schema is matched (exact, substring, regex)")
	fl.BoolVar(&s.includeSystem, "include-system", false, "Include pg_* schemas and information_schema")

	fl.BoolVar(&s.views, "views", false, "Include views")
	fl.BoolVar(&s.matViews, "matviews", false, "Include materialized views")
	fl.BoolVar(&s.foreignTables, "foreign-tables", false, "Include foreign tables")
	fl.BoolVar(&s.indexes, "indexes", false, "Report indexes")
	fl.BoolVar(&s.foreignKeys, "foreign-keys", false, "Report outgoing and incoming foreign keys")
	fl.BoolVar(&s.triggers, "triggers", false, "Report triggers")
	fl.BoolVar(&s.funcs, "functions", false, "Report functions and procedures")
	fl.BoolVarP(&s.all, "all", "a", false, "Enable every relation kind and detail category")

	fl.StringVarP(&s.format, "format", "f", "tree", "Output format (tree, json)")
	fl.BoolVar(&s.pretty, "pretty", false, "Indent JSON output")
	fl.StringVarP(&s.output, "output", "o", "", "Write the snapshot to FILE instead of stdout")
	fl.StringVar(&s.upload, "upload", "", "Also upload the snapshot to s3://bucket/key")
	fl.DurationVar(&s.presign, "presign", 0, "Log a download URL for the upload, valid this long (e.g. 1h)")
}

// apply copies the flags the user set onto cfg. A positional schema wins
// over --schema.
func (s *snapshotFlags) apply(cmd *cobra.Command, cfg *config.Config, args []string) {
	fl := cmd.Flags()
	set := func(name string, dst *bool, v bool) {
		if fl.Changed(name) {
			*dst = v
		}
	}

	if fl.Changed("schema") {
		cfg.Walk.Schema = s.schema
	}
	if len(args) == 1 {
		cfg.Walk.Schema = args[0]
	}
	if fl.Changed("match") {
		cfg.Walk.Match = s.match
	}
	set("include-system", &cfg.Walk.IncludeSystem, s.includeSystem)

	w := &cfg.Walk
	if s.all {
		w.Views, w.MaterializedViews, w.ForeignTables = true, true, true
		w.Indexes, w.ForeignKeys, w.Triggers, w.Functions = true, true, true, true
	}
	set("views", &w.Views, s.views)
	set("matviews", &w.MaterializedViews, s.matViews)
	set("foreign-tables", &w.ForeignTables, s.foreignTables)
	set("indexes", &w.Indexes, s.indexes)
	set("foreign-keys", &w.ForeignKeys, s.foreignKeys)
	set("triggers", &w.Triggers, s.triggers)
	set("functions", &w.Functions, s.funcs)

	if fl.Changed("format") {
		cfg.Output.Format = s.format
	}
	set("pretty", &cfg.Output.Pretty, s.pretty)
	if fl.Changed("output") {
		cfg.Output.Path = s.output
	}
	if fl.Changed("upload") {
		cfg.Output.Upload = s.upload
	}
	if fl.Changed("presign") {
		cfg.Output.Presign = s.presign
	}
}

// runSnapshot renders one snapshot of the configured database. cfg must
// have been validated.
func runSnapshot(ctx context.Context, e *env, cfg *config.Config) error {
	start := time.Now()
	log := logger.New(loggerConfig(cfg, e))
	ctx = log.WithContext(ctx)

	sel, err := cfg.Selector()
	if err != nil {
		return err
	}
	format, err := emit.ParseFormat(cfg.Output.Format)
	if err != nil {
		return err
	}
	req := snapshot.Request{Selector: sel, Filters: cfg.Filters(), Format: format, Pretty: cfg.Output.Pretty}

	var (
		loc   filestore.Location
		store filestore.Store
	)
	if cfg.Output.Upload != "" {
		if loc, err = filestore.ParseLocation(cfg.Output.Upload); err != nil {
			return err
		}
		if store, err = e.newStore(&cfg.Storage); err != nil {
			return err
		}
		defer store.Close()
	}

	cat, err := e.open(cfg.Session(), log)(ctx)
	if err != nil {
		return err
	}
	defer closeQuietly(ctx, cat, log)

	var dst sink.Output = sink.Stream(e.stdout)
	if cfg.Output.Path != "" {
		f, err := sink.CreateFile(cfg.Output.Path)
		if err != nil {
			return err
		}
		dst = f
	}

	out := dst
	var spool *sink.Spool
	if format.Structured() || store != nil {
		if spool, err = sink.NewSpool(dst, ""); err != nil {
			_ = dst.Abort()
			return err
		}
		defer spool.Close()
		out = spool
	}

	counts, err := snapshot.Write(ctx, cat, req, out, log)
	if err != nil {
		return err
	}

	if store != nil {
		info, err := snapshot.Upload(ctx, store, loc, spool.Open(), spool.Size(), format)
		if err != nil {
			return err
		}
		fields := map[string]any{
			"location": loc.String(),
			"size":     info.Size,
			"etag":     info.ETag,
		}
		if cfg.Output.Presign > 0 {
			u, err := store.PresignGet(ctx, loc, cfg.Output.Presign)
			if err != nil {
				return err
			}
			fields["url"] = u
			fields["expires"] = time.Now().Add(cfg.Output.Presign).UTC().Format(time.RFC3339)
		}
		log.InfoWith("snapshot uploaded", fields)
	}

	fields := counts.Fields()
	fields["elapsed"] = time.Since(start).String()
	log.InfoWith("snapshot complete", fields)
	return nil
}

func loggerConfig(cfg *config.Config, e *env) *logger.Config {
	lc := cfg.Logger()
	lc.Output = e.stderr
	return lc
}
