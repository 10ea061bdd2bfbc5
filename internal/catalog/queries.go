package catalog

import (
	"fmt"
	"sort"
	"strings"
)

// queries holds the SQL text selected for one server's capabilities.
// Every branch on server features lives in newQueries.
type queries struct {
	caps Capabilities
}

func newQueries(caps Capabilities) queries {
	return queries{caps: caps}
}

const qServerVersion = `SELECT current_setting('server_version_num')::int`

const qUserSchemas = `
	SELECT n.nspname
	FROM pg_catalog.pg_namespace n
	WHERE left(n.nspname, 3) <> 'pg_'
	  AND n.nspname <> 'information_schema'
	ORDER BY n.nspname`

const qAllSchemas = `
	SELECT n.nspname
	FROM pg_catalog.pg_namespace n
	ORDER BY n.nspname`

const qSchemaExists = `
	SELECT n.nspname
	FROM pg_catalog.pg_namespace n
	WHERE n.nspname = $1`

const qColumns = `
	SELECT a.attname,
	       pg_catalog.format_type(a.atttypid, a.atttypmod),
	       a.attnotnull,
	       pg_catalog.pg_get_expr(d.adbin, d.adrelid)
	FROM pg_catalog.pg_attribute a
	LEFT JOIN pg_catalog.pg_attrdef d
	       ON d.adrelid = a.attrelid AND d.adnum = a.attnum
	WHERE a.attrelid = $1
	  AND a.attnum > 0
	  AND NOT a.attisdropped
	ORDER BY a.attnum`

const qIndexes = `
	SELECT ic.relname,
	       i.indisprimary,
	       i.indisunique,
	       NOT i.indisvalid,
	       pg_catalog.pg_get_indexdef(i.indexrelid)
	FROM pg_catalog.pg_index i
	JOIN pg_catalog.pg_class ic ON ic.oid = i.indexrelid
	WHERE i.indrelid = $1
	ORDER BY ic.relname`

const qForeignKeysOut = `
	SELECT con.conname,
	       con.confrelid::pg_catalog.regclass::text,
	       pg_catalog.pg_get_constraintdef(con.oid, true)
	FROM pg_catalog.pg_constraint con
	WHERE con.conrelid = $1
	  AND con.contype = 'f'
	ORDER BY con.conname, con.confrelid::pg_catalog.regclass::text`

const qForeignKeysIn = `
	SELECT con.conname,
	       con.conrelid::pg_catalog.regclass::text,
	       pg_catalog.pg_get_constraintdef(con.oid, true)
	FROM pg_catalog.pg_constraint con
	WHERE con.confrelid = $1
	  AND con.contype = 'f'
	ORDER BY con.conname, con.conrelid::pg_catalog.regclass::text`

const qTriggers = `
	SELECT t.tgname,
	       p.proname,
	       pg_catalog.pg_get_triggerdef(t.oid, true)
	FROM pg_catalog.pg_trigger t
	LEFT JOIN pg_catalog.pg_proc p ON p.oid = t.tgfoid
	WHERE t.tgrelid = $1
	  AND NOT t.tgisinternal
	ORDER BY t.tgname`

// schemas returns the schema listing, with or without system namespaces.
func (q queries) schemas(includeSystem bool) string {
	if includeSystem {
		return qAllSchemas
	}
	return qUserSchemas
}

// relations lists the relations of schema $1 whose kind is in kinds.
// The relkind list is built from fixed codes only, never from input.
func (q queries) relations(kinds []Kind) string {
	var codes []string
	for _, k := range kinds {
		for _, code := range relkinds[k] {
			if code == "p" && !q.caps.PartitionedTables {
				continue
			}
			codes = append(codes, "'"+code+"'")
		}
	}
	sort.Strings(codes)

	return fmt.Sprintf(`
	SELECT c.oid, c.relname, c.relkind::text
	FROM pg_catalog.pg_class c
	JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
	WHERE n.nspname = $1
	  AND c.relkind IN (%s)
	ORDER BY c.relname`, strings.Join(codes, ", "))
}

// functions lists plain functions and procedures of schema $1, skipping
// aggregates, window functions and routines owned by an extension.
func (q queries) functions() string {
	kindFilter := "p.prokind IN ('f', 'p')"
	if !q.caps.ProKind {
		kindFilter = "NOT p.proisagg AND NOT p.proiswindow"
	}

	return fmt.Sprintf(`
	SELECT p.proname,
	       pg_catalog.pg_get_function_identity_arguments(p.oid),
	       COALESCE(pg_catalog.pg_get_function_result(p.oid),
	                pg_catalog.format_type(p.prorettype, NULL))
	FROM pg_catalog.pg_proc p
	JOIN pg_catalog.pg_namespace n ON n.oid = p.pronamespace
	WHERE n.nspname = $1
	  AND %s
	  AND NOT EXISTS (
	        SELECT 1 FROM pg_catalog.pg_depend d
	        WHERE d.classid = 'pg_catalog.pg_proc'::pg_catalog.regclass
	          AND d.objid = p.oid
	          AND d.deptype = 'e')
	ORDER BY 1, 2`, kindFilter)
}
