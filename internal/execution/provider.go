package execution

import (
	"context"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
)

// Statistics is the subset of table statistics the planner's cost
// model consumes.
type Statistics struct {
	NumRows   *int64
	TotalSize *int64
}

// RecordReader streams Arrow record batches, mirroring
// arrow/array.RecordReader's shape so providers can hand back whatever
// batch source is natural (a manifest walk, an in-memory slice).
type RecordReader interface {
	Next(ctx context.Context) (arrow.Record, error) // returns (nil, io.EOF) when exhausted
	Close() error
}

// TableProvider is the planner-facing contract every catalog entry
// implements: scan, schema, stats, and whether it accepts filter/limit
// pushdown (spec §4.4). Views, Iceberg tables, and the MERGE
// operator's synthetic projections all implement this.
type TableProvider interface {
	Schema(ctx context.Context) (*arrow.Schema, error)
	Scan(ctx context.Context, projection []string, filters []Expr, limit int) (RecordReader, error)
	Statistics(ctx context.Context) (Statistics, error)
	SupportsFilterPushdown() bool
	IsView() bool
	// Insert appends batch as a new committed snapshot. Providers that
	// cannot accept writes (views, read-only sources) return
	// apperror.KindNotImplemented.
	Insert(ctx context.Context, batch arrow.Record) error
}

// Expr is an opaque planner filter expression; providers that support
// pushdown type-switch on the concrete expressions their planner
// emits. Kept minimal here since expression representation belongs to
// the SQL front end, not the catalog.
type Expr interface {
	String() string
}

// Predicate is a "<column> <op> <literal>" filter expression, the only
// shape the generic-statement planner produces (spec §4.6.6). Op is
// one of "=", "!=", "<", "<=", ">", ">=".
type Predicate struct {
	Column string
	Op     string
	Value  any
}

func (p Predicate) String() string {
	return fmt.Sprintf("%s %s %v", p.Column, p.Op, p.Value)
}

// ViewResolvable is implemented by a TableProvider whose IsView() is
// true: Resolve returns the provider to scan right now, re-resolved
// from the view's definition so changes to the underlying table are
// immediately visible rather than pinned to whatever was cached at
// register time (spec §4.4, §9 "View re-resolution").
type ViewResolvable interface {
	Resolve(ctx context.Context) (TableProvider, error)
}

// sliceReader adapts a fixed slice of batches to RecordReader, used by
// providers whose data already lives in memory (Memory-volume tables,
// MERGE's synthetic outputs).
type sliceReader struct {
	batches []arrow.Record
	pos     int
}

// NewSliceReader returns a RecordReader over an in-memory batch slice.
func NewSliceReader(batches []arrow.Record) RecordReader {
	return &sliceReader{batches: batches}
}

func (r *sliceReader) Next(context.Context) (arrow.Record, error) {
	if r.pos >= len(r.batches) {
		return nil, io.EOF
	}
	b := r.batches[r.pos]
	r.pos++
	return b, nil
}

func (r *sliceReader) Close() error { return nil }
