package infoschema

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/embucket/embucket/internal/apperror"
	"github.com/embucket/embucket/internal/metastore"
)

func errUnknownView(view string) error {
	return apperror.Newf("infoschema.Build", apperror.KindSQLParser, "unknown information_schema view %q", view)
}

// buildDatabases implements information_schema.databases, mirroring
// make_databases's (name, owner, catalog_type) shape with VolumeIdent
// standing in for catalog_type, since this core's Database maps 1:1 to
// a volume rather than to a DataFusion catalog provider.
func buildDatabases(ctx context.Context, ms *metastore.Metastore) (arrow.Record, error) {
	dbs, err := ms.ListDatabases(ctx)
	if err != nil {
		return nil, err
	}
	sb := newStringBuilders("database_name", "volume_ident")
	for _, db := range dbs {
		sb.appendRow(db.Ident, db.VolumeIdent)
	}
	return sb.build(), nil
}

// buildSchemata implements information_schema.schemata: every schema
// in databaseFilter, or in every database if databaseFilter is empty
// (spec §4.6.4's SHOW SCHEMAS [IN DATABASE db] both need this).
func buildSchemata(ctx context.Context, ms *metastore.Metastore, databaseFilter string) (arrow.Record, error) {
	dbNames, err := databaseScope(ctx, ms, databaseFilter)
	if err != nil {
		return nil, err
	}

	sb := newStringBuilders("catalog_name", "schema_name")
	for _, dbName := range dbNames {
		schemas, err := ms.ListSchemas(ctx, dbName)
		if err != nil {
			return nil, err
		}
		for _, s := range schemas {
			sb.appendRow(dbName, s.Name)
		}
	}
	return sb.build(), nil
}

// buildTables implements information_schema.tables.
func buildTables(ctx context.Context, ms *metastore.Metastore, databaseFilter string) (arrow.Record, error) {
	dbNames, err := databaseScope(ctx, ms, databaseFilter)
	if err != nil {
		return nil, err
	}

	sb := newStringBuilders("table_catalog", "table_schema", "table_name", "table_type")
	for _, dbName := range dbNames {
		schemas, err := ms.ListSchemas(ctx, dbName)
		if err != nil {
			return nil, err
		}
		for _, s := range schemas {
			tables, err := ms.ListTables(ctx, metastore.SchemaIdent{Database: dbName, Schema: s.Name})
			if err != nil {
				return nil, err
			}
			for _, t := range tables {
				sb.appendRow(dbName, s.Name, t.Ident.Table, string(t.Format))
			}
		}
	}
	return sb.build(), nil
}

// buildColumns implements information_schema.columns, reading each
// table's current Iceberg schema the same way
// internal/query.currentSchemaOf does.
func buildColumns(ctx context.Context, ms *metastore.Metastore, databaseFilter string) (arrow.Record, error) {
	dbNames, err := databaseScope(ctx, ms, databaseFilter)
	if err != nil {
		return nil, err
	}

	mem := memory.NewGoAllocator()
	catalogB := array.NewStringBuilder(mem)
	schemaB := array.NewStringBuilder(mem)
	tableB := array.NewStringBuilder(mem)
	columnB := array.NewStringBuilder(mem)
	ordinalB := array.NewInt64Builder(mem)
	dataTypeB := array.NewStringBuilder(mem)
	nullableB := array.NewStringBuilder(mem)

	for _, dbName := range dbNames {
		schemas, err := ms.ListSchemas(ctx, dbName)
		if err != nil {
			return nil, err
		}
		for _, s := range schemas {
			tables, err := ms.ListTables(ctx, metastore.SchemaIdent{Database: dbName, Schema: s.Name})
			if err != nil {
				return nil, err
			}
			for _, t := range tables {
				current := currentSchemaOf(t.Metadata)
				for i, f := range current.Fields {
					catalogB.Append(dbName)
					schemaB.Append(s.Name)
					tableB.Append(t.Ident.Table)
					columnB.Append(f.Name)
					ordinalB.Append(int64(i + 1))
					dataTypeB.Append(string(f.Type))
					if f.Required {
						nullableB.Append("NO")
					} else {
						nullableB.Append("YES")
					}
				}
			}
		}
	}

	fields := []arrow.Field{
		{Name: "table_catalog", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "table_schema", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "table_name", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "column_name", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "ordinal_position", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
		{Name: "data_type", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "is_nullable", Type: arrow.BinaryTypes.String, Nullable: true},
	}
	cols := []arrow.Array{
		catalogB.NewArray(), schemaB.NewArray(), tableB.NewArray(), columnB.NewArray(),
		ordinalB.NewArray(), dataTypeB.NewArray(), nullableB.NewArray(),
	}
	n := int64(cols[0].Len())
	catalogB.Release()
	schemaB.Release()
	tableB.Release()
	columnB.Release()
	ordinalB.Release()
	dataTypeB.Release()
	nullableB.Release()

	return array.NewRecord(arrow.NewSchema(fields, nil), cols, n), nil
}

// databaseScope returns [databaseFilter] if set, otherwise every known
// database name.
func databaseScope(ctx context.Context, ms *metastore.Metastore, databaseFilter string) ([]string, error) {
	if databaseFilter != "" {
		return []string{databaseFilter}, nil
	}
	dbs, err := ms.ListDatabases(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(dbs))
	for i, db := range dbs {
		names[i] = db.Ident
	}
	return names, nil
}
