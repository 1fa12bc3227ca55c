// Package infoschema builds the information_schema virtual tables
// spec §4.6.4 says SHOW rewrites into: SHOW DATABASES becomes a SELECT
// against <catalog>.information_schema.databases, and so on for
// SCHEMATA, TABLES, and COLUMNS.
//
// Grounded on
// original_source/crates/df-catalog/src/information_schema/config.rs's
// InformationSchemaConfig.make_databases/make_schemata/make_tables/make_columns:
// the same four views, walking the same catalog/schema/table
// hierarchy, translated from DataFusion's CatalogProviderList walk to
// this core's internal/metastore.Metastore. The original's
// views/df_settings/routines/parameters virtual tables are DataFusion
// function-registry and session-config introspection with no
// counterpart here (this core has no UDF registry and no DataFusion
// ConfigOptions), so they are not built; navigation_tree is a UI-tree
// convenience the original's own management UI consumes and has no
// SQL-visible counterpart, so it is dropped too.
package infoschema

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/embucket/embucket/internal/icebergmeta"
	"github.com/embucket/embucket/internal/metastore"
)

// View names this package knows how to build, matching the identifiers
// spec §4.6.4's SHOW rewrite looks up by.
const (
	ViewDatabases = "databases"
	ViewSchemata  = "schemata"
	ViewTables    = "tables"
	ViewColumns   = "columns"
)

// Views lists every supported view name, in the order SHOW <kind>
// without a target normally enumerates them.
var Views = []string{ViewDatabases, ViewSchemata, ViewTables, ViewColumns}

// Build renders one information_schema view as an Arrow record,
// scoped to databaseFilter when non-empty (SCHEMATA/TABLES/COLUMNS are
// naturally scoped to a database; DATABASES never is).
func Build(ctx context.Context, ms *metastore.Metastore, view string, databaseFilter string) (arrow.Record, error) {
	switch view {
	case ViewDatabases:
		return buildDatabases(ctx, ms)
	case ViewSchemata:
		return buildSchemata(ctx, ms, databaseFilter)
	case ViewTables:
		return buildTables(ctx, ms, databaseFilter)
	case ViewColumns:
		return buildColumns(ctx, ms, databaseFilter)
	default:
		return nil, errUnknownView(view)
	}
}

func currentSchemaOf(md icebergmeta.TableMetadata) icebergmeta.Schema {
	for _, s := range md.Schemas {
		if s.SchemaID == md.CurrentSchemaID {
			return s
		}
	}
	return icebergmeta.NewSchema(0, nil)
}

// stringBuilders is a small helper shared by every view builder below:
// a fixed set of named string columns built up row by row, then
// assembled into one arrow.Record.
type stringBuilders struct {
	names    []string
	builders []*array.StringBuilder
	mem      memory.Allocator
}

func newStringBuilders(names ...string) *stringBuilders {
	mem := memory.NewGoAllocator()
	sb := &stringBuilders{names: names, mem: mem}
	for range names {
		sb.builders = append(sb.builders, array.NewStringBuilder(mem))
	}
	return sb
}

func (sb *stringBuilders) appendRow(values ...string) {
	for i, v := range values {
		sb.builders[i].Append(v)
	}
}

func (sb *stringBuilders) appendRowWithNulls(values []*string) {
	for i, v := range values {
		if v == nil {
			sb.builders[i].AppendNull()
		} else {
			sb.builders[i].Append(*v)
		}
	}
}

func (sb *stringBuilders) build() arrow.Record {
	fields := make([]arrow.Field, len(sb.names))
	cols := make([]arrow.Array, len(sb.names))
	var n int64
	for i, name := range sb.names {
		fields[i] = arrow.Field{Name: name, Type: arrow.BinaryTypes.String, Nullable: true}
		cols[i] = sb.builders[i].NewArray()
		n = int64(cols[i].Len())
		sb.builders[i].Release()
	}
	schema := arrow.NewSchema(fields, nil)
	return array.NewRecord(schema, cols, n)
}
