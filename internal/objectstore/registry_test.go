package objectstore

import (
	"context"
	"testing"

	"github.com/embucket/embucket/internal/volume"
	"github.com/stretchr/testify/require"
)

func TestRegistryCachesMemoryClient(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()
	v := volume.Volume{Ident: "mem1", Kind: volume.KindMemory}

	c1, err := r.Get(ctx, v)
	require.NoError(t, err)
	c2, err := r.Get(ctx, v)
	require.NoError(t, err)
	require.Same(t, c1, c2)
}

func TestRegistryFileClientRoundTrip(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()
	v := volume.Volume{Ident: "f1", Kind: volume.KindFile, File: &volume.FileSpec{Path: t.TempDir()}}

	c, err := r.Get(ctx, v)
	require.NoError(t, err)

	require.NoError(t, c.Put(ctx, "a/b.txt", []byte("hello")))
	data, err := c.Get(ctx, "a/b.txt")
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))

	keys, err := c.List(ctx, "a/")
	require.NoError(t, err)
	require.Equal(t, []string{"a/b.txt"}, keys)

	require.NoError(t, c.Delete(ctx, "a/b.txt"))
	_, err = c.Get(ctx, "a/b.txt")
	require.Error(t, err)
}

func TestS3TablesBucketDerivation(t *testing.T) {
	arn := "arn:aws:s3tables:us-west-2:123456789012:bucket/my-table-bucket"
	require.Equal(t, "s3tables-us-west-2", s3TablesBucket(arn))
}
