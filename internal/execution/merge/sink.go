package merge

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/embucket/embucket/internal/apperror"
)

// syntheticColumns are projected away before a filtered batch is
// written as a data file (spec §4.7.3 step 2).
var syntheticColumns = []string{ColSourceExists, ColDataFilePath, ColManifestFilePath}

// DataFileWriter persists one filtered, synthetic-column-free record
// batch as a data file under the target table's location and
// returns the file's path. The data-file encoder and the object
// store it writes through live outside this package, the same
// boundary internal/execution.TableProvider draws around physical
// scans.
type DataFileWriter interface {
	Write(ctx context.Context, batch arrow.Record) (dataFilePath string, err error)
}

// TableCommitter commits the sink's resulting Iceberg transaction:
// append when no existing file needed rewriting, overwrite when one or
// more did (spec §4.7.3 step 4).
type TableCommitter interface {
	Append(ctx context.Context, newDataFiles []string) error
	Overwrite(ctx context.Context, newDataFiles []string, removedManifests map[string][]string) error
}

// Sink is the MERGE COW sink operator (spec §4.7.3): it drives a
// FilterState over the operator's input batches, writes every batch
// the filter decides to emit, and commits a single Iceberg transaction
// once the input is exhausted.
type Sink struct {
	Filter    *FilterState
	Writer    DataFileWriter
	Committer TableCommitter
}

// NewSink builds a Sink with a fresh FilterState.
func NewSink(writer DataFileWriter, committer TableCommitter) (*Sink, error) {
	fs, err := NewFilterState()
	if err != nil {
		return nil, err
	}
	return &Sink{Filter: fs, Writer: writer, Committer: committer}, nil
}

// Run consumes input to exhaustion, writing every batch the filter
// releases, then commits and emits one empty final record batch with
// outSchema (spec §4.7.3 step 5: "single-partition, bounded,
// final-emission").
func (s *Sink) Run(ctx context.Context, input <-chan RowBatch, outSchema *arrow.Schema) (arrow.Record, error) {
	var newFiles []string

	for b := range input {
		released, err := s.Filter.ProcessBatch(b)
		if err != nil {
			return nil, err
		}
		for _, rb := range released {
			if rb.NumRows() == 0 {
				continue
			}
			projected := projectAway(rb.Record, syntheticColumns)
			path, err := s.Writer.Write(ctx, projected)
			if err != nil {
				return nil, err
			}
			newFiles = append(newFiles, path)
		}
	}

	manifests, err := s.Filter.FinishedManifests()
	if err != nil {
		return nil, err
	}

	if len(manifests) == 0 {
		if err := s.Committer.Append(ctx, newFiles); err != nil {
			return nil, err
		}
	} else {
		if err := s.Committer.Overwrite(ctx, newFiles, manifests); err != nil {
			return nil, err
		}
	}

	return emptyRecord(outSchema), nil
}

// emptyRecord builds a zero-row record matching schema, with one
// zero-length array per field rather than a nil column slice (which
// would not satisfy schema's declared field count).
func emptyRecord(schema *arrow.Schema) arrow.Record {
	mem := memory.NewGoAllocator()
	cols := make([]arrow.Array, len(schema.Fields()))
	for i, f := range schema.Fields() {
		b := array.NewBuilder(mem, f.Type)
		cols[i] = b.NewArray()
		b.Release()
	}
	return array.NewRecord(schema, cols, 0)
}

// CheckChildCount validates the arity a merge physical-plan extension
// node requires: exactly one child (the MERGE join feeding the
// filter/sink). Plans that try to attach more or fewer children fail
// with KindLogicalExtensionChildCount (spec §4.7.4).
func CheckChildCount(n int) error {
	if n != 1 {
		return apperror.Newf("merge.CheckChildCount", apperror.KindLogicalExtensionChildCount, "merge extension node expects exactly 1 child, got %d", n)
	}
	return nil
}
