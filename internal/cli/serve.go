package cli

import (
	"github.com/spf13/cobra"

	"github.com/koustreak/pgtree/internal/logger"
	"github.com/koustreak/pgtree/internal/server"
)

func newServeCmd(e *env, f *flags) *cobra.Command {
	var (
		listen    string
		rateLimit float64
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve snapshots over HTTP",
		Long: `serve answers GET /v1/snapshot with a fresh snapshot per request.
Query parameters mirror the command-line flags: format, pretty, schema,
match, include_system and include (a comma-separated list such as
views,indexes,foreign_keys or all).`,
		Args: invalidArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.resolve(cmd, e)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("listen") {
				cfg.Server.Listen = listen
			}
			if cmd.Flags().Changed("rate-limit") {
				cfg.Server.RateLimit = rateLimit
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			log := logger.New(loggerConfig(cfg, e))
			srv := server.New(e.open(cfg.Session(), log), log, server.Options{
				RateLimit:   cfg.Server.RateLimit,
				Burst:       cfg.Server.Burst,
				CORSOrigins: cfg.Server.CORSOrigins,
			})
			return srv.ListenAndServe(cmd.Context(), cfg.Server.Listen, cfg.Server.ShutdownTimeout)
		},
	}
	cmd.Flags().StringVarP(&listen, "listen", "l", ":8080", "Address to listen on")
	cmd.Flags().Float64Var(&rateLimit, "rate-limit", 0, "Snapshot requests per second across all clients; 0 disables")
	return cmd
}
