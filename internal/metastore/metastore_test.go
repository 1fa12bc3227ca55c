package metastore

import (
	"context"
	"testing"

	"github.com/embucket/embucket/internal/icebergmeta"
	"github.com/embucket/embucket/internal/kv"
	"github.com/embucket/embucket/internal/objectstore"
	"github.com/embucket/embucket/internal/volume"
	"github.com/stretchr/testify/require"
)

func newTestMetastore() *Metastore {
	return New(kv.NewMemoryStore(), objectstore.NewRegistry())
}

func createTestVolume(t *testing.T, m *Metastore, ident string) {
	t.Helper()
	require.NoError(t, m.CreateVolume(context.Background(), volume.Volume{
		Ident: ident,
		Kind:  volume.KindMemory,
	}))
}

func TestCreateAndGetVolume(t *testing.T) {
	ctx := context.Background()
	m := newTestMetastore()
	createTestVolume(t, m, "v1")

	got, err := m.GetVolume(ctx, "v1")
	require.NoError(t, err)
	require.Equal(t, "v1", got.Ident)

	err = m.CreateVolume(ctx, volume.Volume{Ident: "v1", Kind: volume.KindMemory})
	require.Error(t, err)
}

func TestDeleteVolumeInUseWithoutCascade(t *testing.T) {
	ctx := context.Background()
	m := newTestMetastore()
	createTestVolume(t, m, "v1")
	require.NoError(t, m.CreateDatabase(ctx, Database{Ident: "db1", VolumeIdent: "v1"}))

	err := m.DeleteVolume(ctx, "v1", false)
	require.Error(t, err)

	require.NoError(t, m.DeleteVolume(ctx, "v1", true))
	_, err = m.GetDatabase(ctx, "db1")
	require.Error(t, err)
}

func TestCreateTableWritesValidMetadataFile(t *testing.T) {
	ctx := context.Background()
	m := newTestMetastore()
	createTestVolume(t, m, "v1")
	require.NoError(t, m.CreateDatabase(ctx, Database{Ident: "db1", VolumeIdent: "v1"}))
	require.NoError(t, m.CreateSchema(ctx, Schema{Database: "db1", Name: "sch1"}))

	id := TableIdent{Database: "db1", Schema: "sch1", Table: "t1"}
	schema := icebergmeta.NewSchema(0, []icebergmeta.NestedField{
		{Name: "id", Type: icebergmeta.TypeLong, Required: true},
	})
	table, err := m.CreateTable(ctx, id, CreateTableRequest{Schema: schema})
	require.NoError(t, err)
	require.NotEmpty(t, table.MetadataLocation)

	vol, err := m.GetVolume(ctx, "v1")
	require.NoError(t, err)
	client, err := m.registry.Get(ctx, vol)
	require.NoError(t, err)

	raw, err := client.Get(ctx, table.MetadataLocation)
	require.NoError(t, err)

	parsed, err := icebergmeta.Unmarshal(raw)
	require.NoError(t, err)
	require.Equal(t, icebergmeta.FormatVersion, parsed.FormatVersion)
}

func TestListTablesMatchesGetTable(t *testing.T) {
	ctx := context.Background()
	m := newTestMetastore()
	createTestVolume(t, m, "v1")
	require.NoError(t, m.CreateDatabase(ctx, Database{Ident: "db1", VolumeIdent: "v1"}))
	require.NoError(t, m.CreateSchema(ctx, Schema{Database: "db1", Name: "sch1"}))

	schema := icebergmeta.NewSchema(0, []icebergmeta.NestedField{{Name: "id", Type: icebergmeta.TypeLong}})
	for _, name := range []string{"a", "b", "c"} {
		id := TableIdent{Database: "db1", Schema: "sch1", Table: name}
		_, err := m.CreateTable(ctx, id, CreateTableRequest{Schema: schema})
		require.NoError(t, err)
	}

	tables, err := m.ListTables(ctx, SchemaIdent{Database: "db1", Schema: "sch1"})
	require.NoError(t, err)
	require.Len(t, tables, 3)

	for _, table := range tables {
		again, err := m.GetTable(ctx, table.Ident)
		require.NoError(t, err)
		require.Equal(t, table, again)
	}
}

func TestUpdateTableAppliesRequirementsAndSnapshot(t *testing.T) {
	ctx := context.Background()
	m := newTestMetastore()
	createTestVolume(t, m, "v1")
	require.NoError(t, m.CreateDatabase(ctx, Database{Ident: "db1", VolumeIdent: "v1"}))
	require.NoError(t, m.CreateSchema(ctx, Schema{Database: "db1", Name: "sch1"}))

	schema := icebergmeta.NewSchema(0, []icebergmeta.NestedField{{Name: "id", Type: icebergmeta.TypeLong}})
	id := TableIdent{Database: "db1", Schema: "sch1", Table: "t1"}
	table, err := m.CreateTable(ctx, id, CreateTableRequest{Schema: schema})
	require.NoError(t, err)

	snap := icebergmeta.Snapshot{SnapshotID: 1, SequenceNumber: 1, ManifestList: "s1.avro"}
	updated, err := m.UpdateTable(ctx, id, TableUpdate{
		Requirements: []icebergmeta.Requirement{{Type: "assert-table-uuid", UUID: table.Metadata.TableUUID}},
		Updates: []icebergmeta.Update{
			{Type: "add-snapshot", Snapshot: &snap},
			{Type: "set-current-snapshot", SnapshotID: 1},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, updated.Metadata.CurrentSnapshot)
	require.Equal(t, int64(1), *updated.Metadata.CurrentSnapshot)
	require.NotEqual(t, table.MetadataLocation, updated.MetadataLocation)

	// A failing requirement must not advance the table's metadata pointer.
	rejected, err := m.UpdateTable(ctx, id, TableUpdate{
		Requirements: []icebergmeta.Requirement{{Type: "assert-table-uuid", UUID: "not-the-uuid"}},
	})
	require.Error(t, err)
	require.Empty(t, rejected)

	current, err := m.GetTable(ctx, id)
	require.NoError(t, err)
	require.Equal(t, updated.MetadataLocation, current.MetadataLocation)
}

func TestDeleteTableDropsTemporaryVolume(t *testing.T) {
	ctx := context.Background()
	m := newTestMetastore()
	createTestVolume(t, m, "v1")
	createTestVolume(t, m, "tmp-v1")
	require.NoError(t, m.CreateDatabase(ctx, Database{Ident: "db1", VolumeIdent: "v1"}))
	require.NoError(t, m.CreateSchema(ctx, Schema{Database: "db1", Name: "sch1"}))

	schema := icebergmeta.NewSchema(0, []icebergmeta.NestedField{{Name: "id", Type: icebergmeta.TypeLong}})
	id := TableIdent{Database: "db1", Schema: "sch1", Table: "t1"}
	_, err := m.CreateTable(ctx, id, CreateTableRequest{
		Schema:      schema,
		IsTemporary: true,
		VolumeIdent: "tmp-v1",
	})
	require.NoError(t, err)

	require.NoError(t, m.DeleteTable(ctx, id, true))
	_, err = m.GetTable(ctx, id)
	require.Error(t, err)
	_, err = m.GetVolume(ctx, "tmp-v1")
	require.Error(t, err)
}
