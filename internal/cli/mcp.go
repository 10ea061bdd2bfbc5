package cli

import (
	"github.com/spf13/cobra"

	"github.com/koustreak/pgtree/internal/logger"
	"github.com/koustreak/pgtree/internal/mcpserver"
)

func newMCPCmd(e *env, f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve snapshots as MCP tools over stdio",
		Long: `mcp speaks the Model Context Protocol on stdin and stdout and offers two
tools: snapshot, with the same options as the command line, and
list_schemas. Logs go to stderr.`,
		Args: invalidArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.resolve(cmd, e)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			log := logger.New(loggerConfig(cfg, e))
			srv := mcpserver.New(e.open(cfg.Session(), log), log, version)
			return srv.Serve(cmd.Context(), e.stdin, e.stdout)
		},
	}
}
