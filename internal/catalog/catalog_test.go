package catalog

import (
	"context"
	"testing"

	"github.com/embucket/embucket/internal/icebergmeta"
	"github.com/embucket/embucket/internal/kv"
	"github.com/embucket/embucket/internal/metastore"
	"github.com/embucket/embucket/internal/objectstore"
	"github.com/embucket/embucket/internal/volume"
	"github.com/stretchr/testify/require"
)

func setupCatalogFixture(t *testing.T) (*CatalogList, *metastore.Metastore) {
	t.Helper()
	ctx := context.Background()
	registry := objectstore.NewRegistry()
	ms := metastore.New(kv.NewMemoryStore(), registry)

	require.NoError(t, ms.CreateVolume(ctx, volume.Volume{Ident: "v1", Kind: volume.KindMemory}))
	require.NoError(t, ms.CreateDatabase(ctx, metastore.Database{Ident: "db1", VolumeIdent: "v1", ShouldRefresh: true}))
	require.NoError(t, ms.CreateSchema(ctx, metastore.Schema{Database: "db1", Name: "sch1"}))

	schema := icebergmeta.NewSchema(0, []icebergmeta.NestedField{
		{Name: "id", Type: icebergmeta.TypeLong, Required: true},
	})
	id := metastore.TableIdent{Database: "db1", Schema: "sch1", Table: "t1"}
	_, err := ms.CreateTable(ctx, id, metastore.CreateTableRequest{Schema: schema})
	require.NoError(t, err)

	return New(ms, registry, 2), ms
}

func TestRegisterCatalogsBuildsFullTree(t *testing.T) {
	ctx := context.Background()
	cl, _ := setupCatalogFixture(t)
	require.NoError(t, cl.RegisterCatalogs(ctx))

	cat, ok := cl.Catalog("db1")
	require.True(t, ok)
	require.Equal(t, TypeMemory, cat.Type)

	sch, ok := cat.Schema("sch1")
	require.True(t, ok)

	tbl, ok := sch.Table("t1")
	require.True(t, ok)

	schema, err := tbl.Schema(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, schema.NumFields())
	require.False(t, tbl.CaseSensitive())
}

func TestRefreshDropsDeletedSchemas(t *testing.T) {
	ctx := context.Background()
	cl, ms := setupCatalogFixture(t)
	require.NoError(t, cl.RegisterCatalogs(ctx))

	require.NoError(t, ms.DeleteSchema(ctx, metastore.SchemaIdent{Database: "db1", Schema: "sch1"}, true))
	require.NoError(t, cl.Refresh(ctx))

	cat, ok := cl.Catalog("db1")
	require.True(t, ok)
	_, ok = cat.Schema("sch1")
	require.False(t, ok)
}

func TestDropCatalogDeletesDatabase(t *testing.T) {
	ctx := context.Background()
	cl, ms := setupCatalogFixture(t)
	require.NoError(t, cl.RegisterCatalogs(ctx))

	require.NoError(t, cl.DropCatalog(ctx, "db1", true))
	_, ok := cl.Catalog("db1")
	require.False(t, ok)

	_, err := ms.GetDatabase(ctx, "db1")
	require.Error(t, err)
}
