package merge

import (
	"context"
	"fmt"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	written []arrow.Record
	next    int
}

func (w *fakeWriter) Write(_ context.Context, batch arrow.Record) (string, error) {
	w.written = append(w.written, batch)
	w.next++
	return fmt.Sprintf("data/file-%d.parquet", w.next), nil
}

type fakeCommitter struct {
	appended          []string
	overwriteNew      []string
	overwriteManifest map[string][]string
	mode              string
}

func (c *fakeCommitter) Append(_ context.Context, newDataFiles []string) error {
	c.mode = "append"
	c.appended = newDataFiles
	return nil
}

func (c *fakeCommitter) Overwrite(_ context.Context, newDataFiles []string, removedManifests map[string][]string) error {
	c.mode = "overwrite"
	c.overwriteNew = newDataFiles
	c.overwriteManifest = removedManifests
	return nil
}

func TestSinkRunOverwritesWhenFileNeededRewriting(t *testing.T) {
	sink, err := NewSink(&fakeWriter{}, &fakeCommitter{})
	require.NoError(t, err)

	input := make(chan RowBatch, 1)
	input <- buildBatchT(t, []bool{true, true}, []string{"f1", "f1"}, []string{"m1", "m1"})
	close(input)

	out, err := sink.Run(context.Background(), input, testSchema)
	require.NoError(t, err)
	require.Equal(t, int64(0), out.NumRows())

	committer := sink.Committer.(*fakeCommitter)
	require.Equal(t, "overwrite", committer.mode)
	require.Equal(t, map[string][]string{"m1": {"f1"}}, committer.overwriteManifest)
}

func TestSinkRunAppendsWhenNothingMatched(t *testing.T) {
	sink, err := NewSink(&fakeWriter{}, &fakeCommitter{})
	require.NoError(t, err)

	input := make(chan RowBatch)
	close(input)

	out, err := sink.Run(context.Background(), input, testSchema)
	require.NoError(t, err)
	require.Equal(t, int64(0), out.NumRows())

	committer := sink.Committer.(*fakeCommitter)
	require.Equal(t, "append", committer.mode)
	require.Empty(t, committer.appended)
}

// buildBatchT is buildBatch with synthetic ids filled in, for tests
// that don't care about the id column's values.
func buildBatchT(t *testing.T, se []bool, df, mf []string) RowBatch {
	ids := make([]int64, len(se))
	for i := range ids {
		ids[i] = int64(i)
	}
	return buildBatch(t, ids, se, df, mf)
}
