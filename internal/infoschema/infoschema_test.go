package infoschema

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/embucket/embucket/internal/icebergmeta"
	"github.com/embucket/embucket/internal/kv"
	"github.com/embucket/embucket/internal/metastore"
	"github.com/embucket/embucket/internal/objectstore"
	"github.com/embucket/embucket/internal/volume"
)

func newTestMetastore(t *testing.T) *metastore.Metastore {
	t.Helper()
	ctx := context.Background()
	ms := metastore.New(kv.NewMemoryStore(), objectstore.NewRegistry())
	require.NoError(t, ms.CreateVolume(ctx, volume.Volume{Ident: "v1", Kind: volume.KindMemory}))
	require.NoError(t, ms.CreateDatabase(ctx, metastore.Database{Ident: "db1", VolumeIdent: "v1"}))
	require.NoError(t, ms.CreateSchema(ctx, metastore.Schema{Database: "db1", Name: "sch1"}))
	_, err := ms.CreateTable(ctx, metastore.TableIdent{Database: "db1", Schema: "sch1", Table: "orders"}, metastore.CreateTableRequest{
		Schema: icebergmeta.NewSchema(0, []icebergmeta.NestedField{
			{Name: "id", Type: icebergmeta.TypeLong, Required: true},
			{Name: "name", Type: icebergmeta.TypeString},
		}),
	})
	require.NoError(t, err)
	return ms
}

func TestBuildDatabases(t *testing.T) {
	ms := newTestMetastore(t)
	rec, err := Build(context.Background(), ms, ViewDatabases, "")
	require.NoError(t, err)
	require.Equal(t, int64(1), rec.NumRows())
}

func TestBuildTablesScopedToDatabase(t *testing.T) {
	ms := newTestMetastore(t)
	rec, err := Build(context.Background(), ms, ViewTables, "db1")
	require.NoError(t, err)
	require.Equal(t, int64(1), rec.NumRows())
}

func TestBuildColumnsReflectsSchema(t *testing.T) {
	ms := newTestMetastore(t)
	rec, err := Build(context.Background(), ms, ViewColumns, "db1")
	require.NoError(t, err)
	require.Equal(t, int64(2), rec.NumRows())
}

func TestBuildUnknownView(t *testing.T) {
	ms := newTestMetastore(t)
	_, err := Build(context.Background(), ms, "bogus", "")
	require.Error(t, err)
}
