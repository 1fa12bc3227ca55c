package kv

import (
	"context"
	"testing"

	"github.com/embucket/embucket/internal/objectstore"
	"github.com/stretchr/testify/require"
)

func TestLogStorePutGetDelete(t *testing.T) {
	ctx := context.Background()
	client := objectstore.NewMemoryClient()
	store, err := OpenLogStore(ctx, client, "_log")
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "vol/a", []byte(`{"x":1}`)))
	v, ok, err := store.Get(ctx, "vol/a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, `{"x":1}`, string(v))

	require.NoError(t, store.Delete(ctx, "vol/a"))
	_, ok, err = store.Get(ctx, "vol/a")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLogStoreRecoversFromSegments(t *testing.T) {
	ctx := context.Background()
	client := objectstore.NewMemoryClient()

	store, err := OpenLogStore(ctx, client, "_log")
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "db/a", []byte("1")))
	require.NoError(t, store.Put(ctx, "db/b", []byte("2")))
	require.NoError(t, store.Delete(ctx, "db/a"))

	reopened, err := OpenLogStore(ctx, client, "_log")
	require.NoError(t, err)

	_, ok, err := reopened.Get(ctx, "db/a")
	require.NoError(t, err)
	require.False(t, ok)

	v, ok, err := reopened.Get(ctx, "db/b")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "2", string(v))
}

func TestLogStoreScanPrefix(t *testing.T) {
	ctx := context.Background()
	client := objectstore.NewMemoryClient()
	store, err := OpenLogStore(ctx, client, "_log")
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "tbl/db/sch/a", []byte("1")))
	require.NoError(t, store.Put(ctx, "tbl/db/sch/b", []byte("2")))
	require.NoError(t, store.Put(ctx, "vol/x", []byte("3")))

	entries, err := store.Scan(ctx, PrefixRange("tbl/db/sch/"))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "tbl/db/sch/a", entries[0].Key)
	require.Equal(t, "tbl/db/sch/b", entries[1].Key)
}

func TestLogStoreCompact(t *testing.T) {
	ctx := context.Background()
	client := objectstore.NewMemoryClient()
	store, err := OpenLogStore(ctx, client, "_log")
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "a", []byte("1")))
	require.NoError(t, store.Put(ctx, "a", []byte("2")))
	require.NoError(t, store.Delete(ctx, "a"))
	require.NoError(t, store.Put(ctx, "b", []byte("3")))

	require.NoError(t, store.Compact(ctx))

	reopened, err := OpenLogStore(ctx, client, "_log")
	require.NoError(t, err)
	_, ok, err := reopened.Get(ctx, "a")
	require.NoError(t, err)
	require.False(t, ok)
	v, ok, err := reopened.Get(ctx, "b")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "3", string(v))
}
