package merge

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/require"
)

func TestUniqueValuesFindsChangePoints(t *testing.T) {
	idx := uniqueValues([]string{"a", "a", "b", "b", "b", "c"})
	require.Equal(t, []int{0, 2, 5}, idx)
}

func TestUniqueValuesEmpty(t *testing.T) {
	require.Nil(t, uniqueValues(nil))
}

func TestUniqueFilesAndManifests(t *testing.T) {
	pairs := uniqueFilesAndManifests(
		[]string{"f1", "f1", "f2"},
		[]string{"m1", "m1", "m2"},
	)
	require.Equal(t, []fileManifestPair{{"f1", "m1"}, {"f2", "m2"}}, pairs)
}

var testSchema = arrow.NewSchema([]arrow.Field{
	{Name: "id", Type: arrow.PrimitiveTypes.Int64},
	{Name: ColSourceExists, Type: arrow.FixedWidthTypes.Boolean},
	{Name: ColDataFilePath, Type: arrow.BinaryTypes.String},
	{Name: ColManifestFilePath, Type: arrow.BinaryTypes.String},
}, nil)

// buildBatch constructs a merge input record from parallel row data.
func buildBatch(t *testing.T, ids []int64, se []bool, df, mf []string) RowBatch {
	t.Helper()
	mem := memory.NewGoAllocator()

	idB := array.NewInt64Builder(mem)
	defer idB.Release()
	idB.AppendValues(ids, nil)

	seB := array.NewBooleanBuilder(mem)
	defer seB.Release()
	seB.AppendValues(se, nil)

	dfB := array.NewStringBuilder(mem)
	defer dfB.Release()
	dfB.AppendValues(df, nil)

	mfB := array.NewStringBuilder(mem)
	defer mfB.Release()
	mfB.AppendValues(mf, nil)

	rec := array.NewRecord(testSchema, []arrow.Array{
		idB.NewArray(), seB.NewArray(), dfB.NewArray(), mfB.NewArray(),
	}, int64(len(ids)))

	rb, err := NewRowBatch(rec)
	require.NoError(t, err)
	return rb
}

func TestProcessBatchEmitsSourceMatchedFileWithoutBuffering(t *testing.T) {
	fs, err := NewFilterState()
	require.NoError(t, err)

	// Row exists in the source (se=true) but its file has never been
	// seen as matching before: matching_data_files ends up non-empty
	// from filtered_df itself, so it should be classified matching and
	// emitted under the predicate, not buffered.
	b := buildBatch(t, []int64{1, 2}, []bool{true, true}, []string{"f1", "f1"}, []string{"m1", "m1"})
	out, err := fs.ProcessBatch(b)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, 2, out[0].NumRows())
}

func TestProcessBatchSkipsWhenNoSourceMatchAndNotTracked(t *testing.T) {
	fs, err := NewFilterState()
	require.NoError(t, err)

	// No row has se=true, and f1 is not yet in matching_files: the
	// whole batch is buffered pending resolution, nothing emitted yet.
	b := buildBatch(t, []int64{1, 2}, []bool{false, false}, []string{"f1", "f1"}, []string{"m1", "m1"})
	out, err := fs.ProcessBatch(b)
	require.NoError(t, err)
	require.Empty(t, out)

	finished, err := fs.FinishedManifests()
	require.NoError(t, err)
	require.Empty(t, finished)
}

func TestProcessBatchPromotesBufferedFileOnceMatched(t *testing.T) {
	fs, err := NewFilterState()
	require.NoError(t, err)

	// First batch: f1 has no matching rows yet, gets buffered.
	b1 := buildBatch(t, []int64{1, 2}, []bool{false, false}, []string{"f1", "f1"}, []string{"m1", "m1"})
	out1, err := fs.ProcessBatch(b1)
	require.NoError(t, err)
	require.Empty(t, out1)

	// Second batch: a row for f1 now exists in the source, confirming
	// the file as matching. The buffered rows from b1 should be
	// released, restricted to f1.
	b2 := buildBatch(t, []int64{3}, []bool{true}, []string{"f1"}, []string{"m1"})
	out2, err := fs.ProcessBatch(b2)
	require.NoError(t, err)
	require.NotEmpty(t, out2)

	totalRows := 0
	for _, rb := range out2 {
		totalRows += rb.NumRows()
		for _, f := range rb.DataFilePath {
			require.Equal(t, "f1", f)
		}
	}
	require.Equal(t, 3, totalRows)

	finished, err := fs.FinishedManifests()
	require.NoError(t, err)
	require.Equal(t, map[string][]string{"m1": {"f1"}}, finished)
}

func TestFinishedManifestsFailsOnSecondCall(t *testing.T) {
	fs, err := NewFilterState()
	require.NoError(t, err)
	_, err = fs.FinishedManifests()
	require.NoError(t, err)
	_, err = fs.FinishedManifests()
	require.Error(t, err)
}
