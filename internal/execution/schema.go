// Package execution holds the planner-facing table abstraction (C4's
// TableProvider contract) and the Arrow record-batch plumbing the
// catalog layer and the MERGE COW operator share. It is intentionally
// narrow: full SQL physical execution lives in the planner this
// package is written to plug into, not here.
package execution

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/embucket/embucket/internal/icebergmeta"
)

// ArrowSchema converts an Iceberg schema to the Arrow schema the
// planner works with, per spec §4.4's "memoizes the underlying
// schema." Field nullability mirrors Iceberg's Required flag.
func ArrowSchema(s icebergmeta.Schema) (*arrow.Schema, error) {
	fields := make([]arrow.Field, 0, len(s.Fields))
	for _, f := range s.Fields {
		dt, err := arrowType(f.Type)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		fields = append(fields, arrow.Field{
			Name:     f.Name,
			Type:     dt,
			Nullable: !f.Required,
		})
	}
	return arrow.NewSchema(fields, nil), nil
}

func arrowType(t icebergmeta.PrimitiveType) (arrow.DataType, error) {
	switch t {
	case icebergmeta.TypeBoolean:
		return arrow.FixedWidthTypes.Boolean, nil
	case icebergmeta.TypeInt:
		return arrow.PrimitiveTypes.Int32, nil
	case icebergmeta.TypeLong:
		return arrow.PrimitiveTypes.Int64, nil
	case icebergmeta.TypeFloat:
		return arrow.PrimitiveTypes.Float32, nil
	case icebergmeta.TypeDouble:
		return arrow.PrimitiveTypes.Float64, nil
	case icebergmeta.TypeDate:
		return arrow.FixedWidthTypes.Date32, nil
	case icebergmeta.TypeTime:
		return arrow.FixedWidthTypes.Time64us, nil
	case icebergmeta.TypeTimestamp:
		return arrow.FixedWidthTypes.Timestamp_us, nil
	case icebergmeta.TypeTimestampTZ:
		return arrow.FixedWidthTypes.Timestamp_us, nil
	case icebergmeta.TypeString:
		return arrow.BinaryTypes.String, nil
	case icebergmeta.TypeUUID:
		return arrow.BinaryTypes.String, nil
	case icebergmeta.TypeBinary:
		return arrow.BinaryTypes.Binary, nil
	default:
		return nil, fmt.Errorf("unsupported iceberg type: %s", t)
	}
}

// IsCaseSensitive reports whether any field name would change under
// lower-case normalization (spec §4.4's CachingTable case check).
func IsCaseSensitive(schema *arrow.Schema) bool {
	for _, f := range schema.Fields() {
		if f.Name != lower(f.Name) {
			return true
		}
	}
	return false
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
