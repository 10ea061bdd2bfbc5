package catalog

import (
	"context"

	"github.com/koustreak/pgtree/internal/database"
	"github.com/koustreak/pgtree/internal/errs"
)

// Capabilities records the catalog features a server offers. Query variants
// are chosen from it, never from version strings.
type Capabilities struct {
	ServerVersion int // server_version_num, e.g. 160002

	PartitionedTables bool // relkind 'p' (PostgreSQL 10+)
	ProKind           bool // pg_proc.prokind (PostgreSQL 11+)
}

// CapabilitiesFor derives capabilities from a server_version_num value.
func CapabilitiesFor(version int) Capabilities {
	return Capabilities{
		ServerVersion:     version,
		PartitionedTables: version >= 100000,
		ProKind:           version >= 110000,
	}
}

// Probe asks the server for its version once per session.
func Probe(ctx context.Context, s database.Session) (Capabilities, error) {
	var version int
	found, err := s.QueryOne(ctx, "probe server version", qServerVersion, nil, &version)
	if err != nil {
		return Capabilities{}, err
	}
	if !found {
		return Capabilities{}, errs.New(errs.ErrKindQueryFailed, "probe server version: no result")
	}
	return CapabilitiesFor(version), nil
}
