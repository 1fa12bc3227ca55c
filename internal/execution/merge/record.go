package merge

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/embucket/embucket/internal/apperror"
)

// columnIndex returns the index of the field named name in schema.
func columnIndex(schema *arrow.Schema, name string) (int, bool) {
	for i, f := range schema.Fields() {
		if f.Name == name {
			return i, true
		}
	}
	return 0, false
}

// NewRowBatch unpacks rec's three synthetic columns into a RowBatch,
// keeping rec itself for emission once filtered.
func NewRowBatch(rec arrow.Record) (RowBatch, error) {
	schema := rec.Schema()

	seIdx, ok := columnIndex(schema, ColSourceExists)
	if !ok {
		return RowBatch{}, apperror.Newf("merge.NewRowBatch", apperror.KindArrow, "missing synthetic column %q", ColSourceExists)
	}
	dfIdx, ok := columnIndex(schema, ColDataFilePath)
	if !ok {
		return RowBatch{}, apperror.Newf("merge.NewRowBatch", apperror.KindArrow, "missing synthetic column %q", ColDataFilePath)
	}
	mfIdx, ok := columnIndex(schema, ColManifestFilePath)
	if !ok {
		return RowBatch{}, apperror.Newf("merge.NewRowBatch", apperror.KindArrow, "missing synthetic column %q", ColManifestFilePath)
	}

	se, ok := rec.Column(seIdx).(*array.Boolean)
	if !ok {
		return RowBatch{}, apperror.Newf("merge.NewRowBatch", apperror.KindArrow, "%s is not a boolean column", ColSourceExists)
	}
	df, ok := rec.Column(dfIdx).(*array.String)
	if !ok {
		return RowBatch{}, apperror.Newf("merge.NewRowBatch", apperror.KindArrow, "%s is not a string column", ColDataFilePath)
	}
	mf, ok := rec.Column(mfIdx).(*array.String)
	if !ok {
		return RowBatch{}, apperror.Newf("merge.NewRowBatch", apperror.KindArrow, "%s is not a string column", ColManifestFilePath)
	}

	n := int(rec.NumRows())
	b := RowBatch{
		Record:           rec,
		SourceExists:     make([]bool, n),
		DataFilePath:     make([]string, n),
		ManifestFilePath: make([]string, n),
	}
	for i := 0; i < n; i++ {
		b.SourceExists[i] = se.Value(i)
		b.DataFilePath[i] = df.Value(i)
		b.ManifestFilePath[i] = mf.Value(i)
	}
	return b, nil
}

// filterRowBatch returns the rows of b where keep[i] is true, as a new
// RowBatch backed by a freshly built arrow.Record.
func filterRowBatch(b RowBatch, keep []bool) (RowBatch, error) {
	rec, err := filterRecord(b.Record, keep)
	if err != nil {
		return RowBatch{}, err
	}
	out := RowBatch{Record: rec}
	for i, k := range keep {
		if !k {
			continue
		}
		out.SourceExists = append(out.SourceExists, b.SourceExists[i])
		out.DataFilePath = append(out.DataFilePath, b.DataFilePath[i])
		out.ManifestFilePath = append(out.ManifestFilePath, b.ManifestFilePath[i])
	}
	return out, nil
}

// filterRecord builds a new record containing only the rows where
// keep[i] is true, preserving rec's schema and column order. It copies
// values column by column through each column type's builder rather
// than a compute-kernel filter, since this core only needs to support
// the handful of primitive types internal/execution.ArrowSchema
// produces.
func filterRecord(rec arrow.Record, keep []bool) (arrow.Record, error) {
	mem := memory.NewGoAllocator()
	schema := rec.Schema()
	numCols := int(rec.NumCols())
	cols := make([]arrow.Array, numCols)

	var kept int64
	for _, k := range keep {
		if k {
			kept++
		}
	}

	for c := 0; c < numCols; c++ {
		field := schema.Field(c)
		builder := array.NewBuilder(mem, field.Type)
		src := rec.Column(c)
		for i, k := range keep {
			if !k {
				continue
			}
			if err := appendRow(builder, src, i); err != nil {
				builder.Release()
				return nil, err
			}
		}
		cols[c] = builder.NewArray()
		builder.Release()
	}

	return array.NewRecord(schema, cols, kept), nil
}

// appendRow copies row i of src onto builder, honoring nulls.
func appendRow(builder array.Builder, src arrow.Array, i int) error {
	if src.IsNull(i) {
		builder.AppendNull()
		return nil
	}
	switch v := src.(type) {
	case *array.Boolean:
		builder.(*array.BooleanBuilder).Append(v.Value(i))
	case *array.Int32:
		builder.(*array.Int32Builder).Append(v.Value(i))
	case *array.Int64:
		builder.(*array.Int64Builder).Append(v.Value(i))
	case *array.Float32:
		builder.(*array.Float32Builder).Append(v.Value(i))
	case *array.Float64:
		builder.(*array.Float64Builder).Append(v.Value(i))
	case *array.Date32:
		builder.(*array.Date32Builder).Append(v.Value(i))
	case *array.Time64:
		builder.(*array.Time64Builder).Append(v.Value(i))
	case *array.Timestamp:
		builder.(*array.TimestampBuilder).Append(v.Value(i))
	case *array.String:
		builder.(*array.StringBuilder).Append(v.Value(i))
	case *array.Binary:
		builder.(*array.BinaryBuilder).Append(v.Value(i))
	default:
		return apperror.Newf("merge.appendRow", apperror.KindArrow, "unsupported arrow column type %T", src)
	}
	return nil
}

// projectAway returns a copy of rec with the named columns removed,
// preserving the order of the remaining columns (spec §4.7.3 step 2:
// project away the three synthetic columns before writing data files).
func projectAway(rec arrow.Record, drop []string) arrow.Record {
	dropSet := make(map[string]bool, len(drop))
	for _, d := range drop {
		dropSet[d] = true
	}

	fields := rec.Schema().Fields()
	keepFields := make([]arrow.Field, 0, len(fields))
	keepCols := make([]arrow.Array, 0, len(fields))
	for i, f := range fields {
		if dropSet[f.Name] {
			continue
		}
		keepFields = append(keepFields, f)
		keepCols = append(keepCols, rec.Column(i))
	}
	schema := arrow.NewSchema(keepFields, nil)
	return array.NewRecord(schema, keepCols, rec.NumRows())
}
