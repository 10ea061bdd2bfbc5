package postgres

import (
	"github.com/jackc/pgx/v5"

	"github.com/koustreak/pgtree/internal/database"
)

// connConfig turns a database.Config into a pgx connection config. An empty
// DSN is valid: pgx then reads PGHOST, PGUSER, PGDATABASE, … like libpq.
func connConfig(cfg *database.Config) (*pgx.ConnConfig, error) {
	connCfg, err := pgx.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, err
	}

	if cfg.ApplicationName != "" {
		connCfg.RuntimeParams["application_name"] = cfg.ApplicationName
	}
	if cfg.ConnectTimeout > 0 {
		connCfg.ConnectTimeout = cfg.ConnectTimeout
	}
	return connCfg, nil
}
