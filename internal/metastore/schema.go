package metastore

import (
	"context"

	"github.com/embucket/embucket/internal/apperror"
	"github.com/embucket/embucket/internal/kv"
)

// CreateSchema persists a new schema under an existing database.
func (m *Metastore) CreateSchema(ctx context.Context, s Schema) error {
	if _, err := m.GetDatabase(ctx, s.Database); err != nil {
		return err
	}

	id := SchemaIdent{Database: s.Database, Schema: s.Name}
	key := schemaKey(id)
	if _, ok, err := m.store.Get(ctx, key); err != nil {
		return apperror.New("Metastore.CreateSchema", apperror.KindUnknown, err)
	} else if ok {
		return apperror.Newf("Metastore.CreateSchema", apperror.KindAlreadyExists, "schema %q already exists", id)
	}

	obj := NewRwObject(s, m.now())
	data, err := marshalRw(obj)
	if err != nil {
		return apperror.New("Metastore.CreateSchema", apperror.KindUnknown, err)
	}
	return m.putOrWrap(ctx, "Metastore.CreateSchema", key, data)
}

// GetSchema returns one schema.
func (m *Metastore) GetSchema(ctx context.Context, id SchemaIdent) (Schema, error) {
	data, ok, err := m.store.Get(ctx, schemaKey(id))
	if err != nil {
		return Schema{}, apperror.New("Metastore.GetSchema", apperror.KindUnknown, err)
	}
	if !ok {
		return Schema{}, apperror.Newf("Metastore.GetSchema", apperror.KindSchemaNotFound, "schema %q not found", id)
	}
	obj, err := unmarshalRw[Schema](data)
	if err != nil {
		return Schema{}, apperror.New("Metastore.GetSchema", apperror.KindUnknown, err)
	}
	return obj.Data, nil
}

// ListSchemas returns every schema in a database, ordered by name.
func (m *Metastore) ListSchemas(ctx context.Context, database string) ([]Schema, error) {
	entries, err := m.store.Scan(ctx, kv.PrefixRange(schemaPrefixForDatabase(database)))
	if err != nil {
		return nil, apperror.New("Metastore.ListSchemas", apperror.KindUnknown, err)
	}
	out := make([]Schema, 0, len(entries))
	for _, e := range entries {
		obj, err := unmarshalRw[Schema](e.Value)
		if err != nil {
			return nil, apperror.New("Metastore.ListSchemas", apperror.KindUnknown, err)
		}
		out = append(out, obj.Data)
	}
	return out, nil
}

// DeleteSchema removes a schema. Unless cascade is true, it refuses if
// any table still exists under it.
func (m *Metastore) DeleteSchema(ctx context.Context, id SchemaIdent, cascade bool) error {
	tables, err := m.ListTables(ctx, id)
	if err != nil {
		return err
	}
	if len(tables) > 0 {
		if !cascade {
			return apperror.Newf("Metastore.DeleteSchema", apperror.KindVolumeInUse, "schema %q still has %d table(s)", id, len(tables))
		}
		for _, t := range tables {
			if err := m.DeleteTable(ctx, t.Ident, true); err != nil {
				return err
			}
		}
	}
	if err := m.store.Delete(ctx, schemaKey(id)); err != nil {
		return apperror.New("Metastore.DeleteSchema", apperror.KindUnknown, err)
	}
	return nil
}
