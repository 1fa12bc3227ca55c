package metastore

import (
	"context"

	"github.com/embucket/embucket/internal/apperror"
	"github.com/embucket/embucket/internal/kv"
)

// CreateDatabase persists a new database bound to an existing volume
// (spec §4.2: "create_database fails with VolumeNotFound if the named
// volume does not exist").
func (m *Metastore) CreateDatabase(ctx context.Context, db Database) error {
	if _, err := m.GetVolume(ctx, db.VolumeIdent); err != nil {
		return err
	}

	key := databaseKey(db.Ident)
	if _, ok, err := m.store.Get(ctx, key); err != nil {
		return apperror.New("Metastore.CreateDatabase", apperror.KindUnknown, err)
	} else if ok {
		return apperror.Newf("Metastore.CreateDatabase", apperror.KindAlreadyExists, "database %q already exists", db.Ident)
	}

	obj := NewRwObject(db, m.now())
	data, err := marshalRw(obj)
	if err != nil {
		return apperror.New("Metastore.CreateDatabase", apperror.KindUnknown, err)
	}
	return m.putOrWrap(ctx, "Metastore.CreateDatabase", key, data)
}

// GetDatabase returns the named database.
func (m *Metastore) GetDatabase(ctx context.Context, ident string) (Database, error) {
	data, ok, err := m.store.Get(ctx, databaseKey(ident))
	if err != nil {
		return Database{}, apperror.New("Metastore.GetDatabase", apperror.KindUnknown, err)
	}
	if !ok {
		return Database{}, apperror.Newf("Metastore.GetDatabase", apperror.KindDatabaseNotFound, "database %q not found", ident)
	}
	obj, err := unmarshalRw[Database](data)
	if err != nil {
		return Database{}, apperror.New("Metastore.GetDatabase", apperror.KindUnknown, err)
	}
	return obj.Data, nil
}

// ListDatabases returns every database, ordered by ident.
func (m *Metastore) ListDatabases(ctx context.Context) ([]Database, error) {
	entries, err := m.store.Scan(ctx, kv.PrefixRange(prefixDatabase))
	if err != nil {
		return nil, apperror.New("Metastore.ListDatabases", apperror.KindUnknown, err)
	}
	out := make([]Database, 0, len(entries))
	for _, e := range entries {
		obj, err := unmarshalRw[Database](e.Value)
		if err != nil {
			return nil, apperror.New("Metastore.ListDatabases", apperror.KindUnknown, err)
		}
		out = append(out, obj.Data)
	}
	return out, nil
}

// UpdateDatabase replaces a database's definition (e.g. to move it to
// a different volume or touch properties).
func (m *Metastore) UpdateDatabase(ctx context.Context, db Database) error {
	key := databaseKey(db.Ident)
	data, ok, err := m.store.Get(ctx, key)
	if err != nil {
		return apperror.New("Metastore.UpdateDatabase", apperror.KindUnknown, err)
	}
	if !ok {
		return apperror.Newf("Metastore.UpdateDatabase", apperror.KindDatabaseNotFound, "database %q not found", db.Ident)
	}
	existing, err := unmarshalRw[Database](data)
	if err != nil {
		return apperror.New("Metastore.UpdateDatabase", apperror.KindUnknown, err)
	}
	next := existing.Update(db, m.now())
	out, err := marshalRw(next)
	if err != nil {
		return apperror.New("Metastore.UpdateDatabase", apperror.KindUnknown, err)
	}
	return m.putOrWrap(ctx, "Metastore.UpdateDatabase", key, out)
}

// DeleteDatabase removes a database. Unless cascade is true, it
// refuses with KindVolumeInUse if any schema still
// exists under it.
func (m *Metastore) DeleteDatabase(ctx context.Context, ident string, cascade bool) error {
	schemas, err := m.ListSchemas(ctx, ident)
	if err != nil {
		return err
	}
	if len(schemas) > 0 {
		if !cascade {
			return apperror.Newf("Metastore.DeleteDatabase", apperror.KindVolumeInUse, "database %q still has %d schema(s)", ident, len(schemas))
		}
		for _, s := range schemas {
			if err := m.DeleteSchema(ctx, SchemaIdent{Database: ident, Schema: s.Name}, true); err != nil {
				return err
			}
		}
	}
	if err := m.store.Delete(ctx, databaseKey(ident)); err != nil {
		return apperror.New("Metastore.DeleteDatabase", apperror.KindUnknown, err)
	}
	return nil
}

func (m *Metastore) putOrWrap(ctx context.Context, op, key string, data []byte) error {
	if err := m.store.Put(ctx, key, data); err != nil {
		return apperror.New(op, apperror.KindUnknown, err)
	}
	return nil
}
