// Package icebergmeta models Iceberg table metadata (spec v2) as plain
// JSON-serializable Go structs, plus the handful of value types
// (PrimitiveType, NestedField, Schema, PartitionSpec, SortOrder)
// mirrored from github.com/apache/iceberg-go's public API shape so the
// metastore can assemble metadata using the same vocabulary the wider
// Iceberg-Go ecosystem uses, without requiring a running catalog
// implementation from that module. See DESIGN.md for why the metadata
// body itself is hand-written here rather than delegated wholesale to
// the library: the metastore (not a catalog binding) owns the file
// format per spec §4.2.
package icebergmeta

// PrimitiveType names an Iceberg primitive type, following
// iceberg-go's PrimitiveTypes vocabulary (boolean, int, long, float,
// double, decimal(p,s), date, time, timestamp, timestamptz, string,
// uuid, fixed(n), binary).
type PrimitiveType string

const (
	TypeBoolean     PrimitiveType = "boolean"
	TypeInt         PrimitiveType = "int"
	TypeLong        PrimitiveType = "long"
	TypeFloat       PrimitiveType = "float"
	TypeDouble      PrimitiveType = "double"
	TypeDate        PrimitiveType = "date"
	TypeTime        PrimitiveType = "time"
	TypeTimestamp   PrimitiveType = "timestamp"
	TypeTimestampTZ PrimitiveType = "timestamptz"
	TypeString      PrimitiveType = "string"
	TypeUUID        PrimitiveType = "uuid"
	TypeBinary      PrimitiveType = "binary"
)

// DecimalType returns the Iceberg type string for decimal(precision,scale).
func DecimalType(precision, scale int) PrimitiveType {
	return PrimitiveType(sprintfDecimal(precision, scale))
}

func sprintfDecimal(p, s int) string {
	return "decimal(" + itoa(p) + "," + itoa(s) + ")"
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// NestedField is one field of a Schema, mirroring iceberg-go's
// NestedField.
type NestedField struct {
	ID       int           `json:"id"`
	Name     string        `json:"name"`
	Type     PrimitiveType `json:"type"`
	Required bool          `json:"required"`
	Doc      string        `json:"doc,omitempty"`
}

// Schema is an Iceberg schema: an ordered list of fields plus the
// schema's own id (spec §4.6.4: "schema id 0" for the initial schema).
type Schema struct {
	SchemaID      int           `json:"schema-id"`
	IdentifierIDs []int         `json:"identifier-field-ids,omitempty"`
	Fields        []NestedField `json:"fields"`
	Type          string        `json:"type"` // always "struct"
}

// NewSchema assigns monotonically increasing field ids starting at 0,
// per spec §4.6.4's CREATE TABLE handling.
func NewSchema(schemaID int, fields []NestedField) Schema {
	for i := range fields {
		fields[i].ID = i
	}
	return Schema{SchemaID: schemaID, Fields: fields, Type: "struct"}
}

// Transform names a partition transform (identity, bucket[N],
// truncate[N], year, month, day, hour, void), mirroring iceberg-go's
// Transform vocabulary.
type Transform string

const (
	TransformIdentity Transform = "identity"
	TransformYear     Transform = "year"
	TransformMonth    Transform = "month"
	TransformDay      Transform = "day"
	TransformHour     Transform = "hour"
	TransformVoid     Transform = "void"
)

// PartitionField is one entry of a PartitionSpec.
type PartitionField struct {
	SourceID  int       `json:"source-id"`
	FieldID   int       `json:"field-id"`
	Name      string    `json:"name"`
	Transform Transform `json:"transform"`
}

// PartitionSpec is an ordered list of PartitionFields plus its own id.
type PartitionSpec struct {
	SpecID int              `json:"spec-id"`
	Fields []PartitionField `json:"fields"`
}

// SortDirection is asc or desc.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// NullOrder places nulls first or last.
type NullOrder string

const (
	NullsFirst NullOrder = "nulls-first"
	NullsLast  NullOrder = "nulls-last"
)

// SortField is one entry of a SortOrder.
type SortField struct {
	SourceID  int           `json:"source-id"`
	Transform Transform     `json:"transform"`
	Direction SortDirection `json:"direction"`
	NullOrder NullOrder     `json:"null-order"`
}

// SortOrder is an ordered list of SortFields plus its own id.
type SortOrder struct {
	OrderID int         `json:"order-id"`
	Fields  []SortField `json:"fields"`
}

// UnsortedOrder is the canonical empty sort order (order-id 0).
func UnsortedOrder() SortOrder { return SortOrder{OrderID: 0, Fields: []SortField{}} }

// UnpartitionedSpec is the canonical empty partition spec (spec-id 0).
func UnpartitionedSpec() PartitionSpec { return PartitionSpec{SpecID: 0, Fields: []PartitionField{}} }
