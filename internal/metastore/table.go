package metastore

import (
	"context"
	"fmt"

	"github.com/embucket/embucket/internal/apperror"
	"github.com/embucket/embucket/internal/icebergmeta"
	"github.com/embucket/embucket/internal/kv"
	"github.com/embucket/embucket/internal/objectstore"
	"github.com/embucket/embucket/internal/volume"
)

// resolveVolume returns the volume a table should live on: its own
// VolumeIdent override if set, otherwise its database's volume (spec
// §3: "if VolumeIdent is set it overrides the database's volume").
func (m *Metastore) resolveVolume(ctx context.Context, db Database, t Table) (volume.Volume, error) {
	ident := db.VolumeIdent
	if t.VolumeIdent != "" {
		ident = t.VolumeIdent
	}
	return m.GetVolume(ctx, ident)
}

func tableLocation(volPrefix string, id TableIdent) string {
	return fmt.Sprintf("%s/%s/%s/%s", volPrefix, id.Database, id.Schema, id.Table)
}

func metadataKey(location, fileName string) string {
	return fmt.Sprintf("%s/metadata/%s", location, fileName)
}

// CreateTable builds the initial Iceberg v2 metadata, writes it to the
// resolved volume, and persists the table record (spec §4.2). Fails
// with KindSchemaNotFound if the schema does not exist, or
// KindAlreadyExists if the table already does.
func (m *Metastore) CreateTable(ctx context.Context, id TableIdent, req CreateTableRequest) (Table, error) {
	if _, err := m.GetSchema(ctx, id.SchemaIdent()); err != nil {
		return Table{}, err
	}

	key := tableKey(id)
	if _, ok, err := m.store.Get(ctx, key); err != nil {
		return Table{}, apperror.New("Metastore.CreateTable", apperror.KindUnknown, err)
	} else if ok {
		return Table{}, apperror.Newf("Metastore.CreateTable", apperror.KindAlreadyExists, "table %q already exists", id)
	}

	db, err := m.GetDatabase(ctx, id.Database)
	if err != nil {
		return Table{}, err
	}

	format := req.Format
	if format == "" {
		format = FormatIceberg
	}

	table := Table{
		Ident:       id,
		Properties:  req.Properties,
		VolumeIdent: req.VolumeIdent,
		IsTemporary: req.IsTemporary,
		Format:      format,
	}

	vol, err := m.resolveVolume(ctx, db, table)
	if err != nil {
		return Table{}, err
	}

	location := req.Location
	if location == "" {
		location = tableLocation(vol.Prefix(), id)
	}
	table.VolumeLocation = location

	now := m.now()
	schema := req.Schema
	if schema.Fields == nil {
		schema = icebergmeta.NewSchema(0, nil)
	}
	metadata := icebergmeta.NewTableMetadata(icebergmeta.NewTableOptions{
		Location:      location,
		Schema:        schema,
		PartitionSpec: req.PartitionSpec,
		SortOrder:     req.SortOrder,
		Properties:    req.Properties,
		NowUnixMs:     now.UnixMilli(),
	})

	fileName := icebergmeta.NewMetadataFileName()
	metaKey := metadataKey(location, fileName)

	if err := m.writeMetadata(ctx, vol, metaKey, metadata); err != nil {
		return Table{}, err
	}

	table.Metadata = metadata
	table.MetadataLocation = metaKey

	obj := NewRwObject(table, now)
	data, err := marshalRw(obj)
	if err != nil {
		return Table{}, apperror.New("Metastore.CreateTable", apperror.KindUnknown, err)
	}
	if err := m.putOrWrap(ctx, "Metastore.CreateTable", key, data); err != nil {
		return Table{}, err
	}
	return table, nil
}

// ClientFor returns the object-store client a table's data/metadata
// should be read and written through, resolving the same volume
// CreateTable/UpdateTable use. Exported for the query engine's
// executor, which reads and writes a table's data files directly.
func (m *Metastore) ClientFor(ctx context.Context, t Table) (objectstore.Client, error) {
	db, err := m.GetDatabase(ctx, t.Ident.Database)
	if err != nil {
		return nil, err
	}
	vol, err := m.resolveVolume(ctx, db, t)
	if err != nil {
		return nil, err
	}
	return m.registry.Get(ctx, vol)
}

// GetTable returns one table record.
func (m *Metastore) GetTable(ctx context.Context, id TableIdent) (Table, error) {
	data, ok, err := m.store.Get(ctx, tableKey(id))
	if err != nil {
		return Table{}, apperror.New("Metastore.GetTable", apperror.KindUnknown, err)
	}
	if !ok {
		return Table{}, apperror.Newf("Metastore.GetTable", apperror.KindTableNotFound, "table %q not found", id)
	}
	obj, err := unmarshalRw[Table](data)
	if err != nil {
		return Table{}, apperror.New("Metastore.GetTable", apperror.KindUnknown, err)
	}
	return obj.Data, nil
}

// ListTables returns every table in a schema, ordered by name.
func (m *Metastore) ListTables(ctx context.Context, id SchemaIdent) ([]Table, error) {
	entries, err := m.store.Scan(ctx, kv.PrefixRange(tablePrefixForSchema(id)))
	if err != nil {
		return nil, apperror.New("Metastore.ListTables", apperror.KindUnknown, err)
	}
	out := make([]Table, 0, len(entries))
	for _, e := range entries {
		obj, err := unmarshalRw[Table](e.Value)
		if err != nil {
			return nil, apperror.New("Metastore.ListTables", apperror.KindUnknown, err)
		}
		out = append(out, obj.Data)
	}
	return out, nil
}

// UpdateTable validates req's requirements against the table's current
// metadata, applies req's updates, writes a fresh metadata file, and
// only then advances the table record to point at it (spec §4.2:
// requirement failure leaves the existing metadata file and record
// untouched).
func (m *Metastore) UpdateTable(ctx context.Context, id TableIdent, req TableUpdate) (Table, error) {
	current, err := m.GetTable(ctx, id)
	if err != nil {
		return Table{}, err
	}

	next, err := icebergmeta.ApplyAll(current.Metadata, req.Requirements, req.Updates)
	if err != nil {
		return Table{}, apperror.New("Metastore.UpdateTable", apperror.KindRequirementNotMet, err)
	}
	next.LastUpdatedMs = m.now().UnixMilli()
	next.MetadataLog = append(next.MetadataLog, icebergmeta.MetadataLogEntry{
		TimestampMs:  next.LastUpdatedMs,
		MetadataFile: current.MetadataLocation,
	})

	db, err := m.GetDatabase(ctx, id.Database)
	if err != nil {
		return Table{}, err
	}
	vol, err := m.resolveVolume(ctx, db, current)
	if err != nil {
		return Table{}, err
	}

	fileName := icebergmeta.NewMetadataFileName()
	metaKey := metadataKey(current.VolumeLocation, fileName)
	if err := m.writeMetadata(ctx, vol, metaKey, next); err != nil {
		return Table{}, err
	}

	current.Metadata = next
	current.MetadataLocation = metaKey

	return current, m.putTable(ctx, id, current)
}

// DeleteTable removes a table record. When cascade is set, the current
// Iceberg metadata object is deleted from its volume first (spec §4.2:
// "delete_table(ident, cascade) — when cascade, deletes the current
// metadata object; always removes the KV record"). Temporary tables
// additionally drop their hidden backing volume (spec §3).
func (m *Metastore) DeleteTable(ctx context.Context, id TableIdent, cascade bool) error {
	table, err := m.GetTable(ctx, id)
	if err != nil {
		return err
	}
	if cascade && table.MetadataLocation != "" {
		db, err := m.GetDatabase(ctx, id.Database)
		if err != nil {
			return err
		}
		vol, err := m.resolveVolume(ctx, db, table)
		if err != nil {
			return err
		}
		client, err := m.registry.Get(ctx, vol)
		if err != nil {
			return err
		}
		if err := client.Delete(ctx, table.MetadataLocation); err != nil {
			return apperror.New("Metastore.DeleteTable", apperror.KindObjectStore, err)
		}
	}
	if err := m.store.Delete(ctx, tableKey(id)); err != nil {
		return apperror.New("Metastore.DeleteTable", apperror.KindUnknown, err)
	}
	if table.IsTemporary && table.VolumeIdent != "" {
		if err := m.DeleteVolume(ctx, table.VolumeIdent, false); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metastore) putTable(ctx context.Context, id TableIdent, t Table) error {
	existingData, ok, err := m.store.Get(ctx, tableKey(id))
	if err != nil {
		return apperror.New("Metastore.UpdateTable", apperror.KindUnknown, err)
	}
	now := m.now()
	var obj RwObject[Table]
	if ok {
		prev, err := unmarshalRw[Table](existingData)
		if err != nil {
			return apperror.New("Metastore.UpdateTable", apperror.KindUnknown, err)
		}
		obj = prev.Update(t, now)
	} else {
		obj = NewRwObject(t, now)
	}
	data, err := marshalRw(obj)
	if err != nil {
		return apperror.New("Metastore.UpdateTable", apperror.KindUnknown, err)
	}
	return m.putOrWrap(ctx, "Metastore.UpdateTable", tableKey(id), data)
}

func (m *Metastore) writeMetadata(ctx context.Context, vol volume.Volume, key string, md icebergmeta.TableMetadata) error {
	client, err := m.registry.Get(ctx, vol)
	if err != nil {
		return err
	}
	data, err := icebergmeta.Marshal(md)
	if err != nil {
		return apperror.New("Metastore.writeMetadata", apperror.KindIceberg, err)
	}
	if err := client.Put(ctx, key, data); err != nil {
		return apperror.New("Metastore.writeMetadata", apperror.KindObjectStore, err)
	}
	return nil
}
