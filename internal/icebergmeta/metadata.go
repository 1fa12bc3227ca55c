package icebergmeta

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// FormatVersion is always 2 for tables this system creates (spec §4.2:
// "format V2").
const FormatVersion = 2

// Snapshot is one entry of TableMetadata.Snapshots.
type Snapshot struct {
	SnapshotID       int64             `json:"snapshot-id"`
	ParentSnapshotID *int64            `json:"parent-snapshot-id,omitempty"`
	SequenceNumber   int64             `json:"sequence-number"`
	TimestampMs      int64             `json:"timestamp-ms"`
	ManifestList     string            `json:"manifest-list"`
	Summary          map[string]string `json:"summary"`
	SchemaID         *int              `json:"schema-id,omitempty"`
}

// SnapshotLogEntry records one point in a table's snapshot history.
type SnapshotLogEntry struct {
	TimestampMs int64 `json:"timestamp-ms"`
	SnapshotID  int64 `json:"snapshot-id"`
}

// MetadataLogEntry records one prior metadata-file location.
type MetadataLogEntry struct {
	TimestampMs  int64  `json:"timestamp-ms"`
	MetadataFile string `json:"metadata-file"`
}

// TableMetadata is the JSON body of an Iceberg v2 table metadata file
// (spec §4.2/§6). Field names follow the Iceberg table spec wire
// format.
type TableMetadata struct {
	FormatVersion    int                `json:"format-version"`
	TableUUID        string             `json:"table-uuid"`
	Location         string             `json:"location"`
	LastSequenceNum  int64              `json:"last-sequence-number"`
	LastUpdatedMs    int64              `json:"last-updated-ms"`
	LastColumnID     int                `json:"last-column-id"`
	Schemas          []Schema           `json:"schemas"`
	CurrentSchemaID  int                `json:"current-schema-id"`
	PartitionSpecs   []PartitionSpec    `json:"partition-specs"`
	DefaultSpecID    int                `json:"default-spec-id"`
	LastPartitionID  int                `json:"last-partition-id"`
	Properties       map[string]string  `json:"properties,omitempty"`
	CurrentSnapshot  *int64             `json:"current-snapshot-id"`
	Snapshots        []Snapshot         `json:"snapshots"`
	SnapshotLog      []SnapshotLogEntry `json:"snapshot-log,omitempty"`
	MetadataLog      []MetadataLogEntry `json:"metadata-log,omitempty"`
	SortOrders       []SortOrder        `json:"sort-orders"`
	DefaultSortOrder int                `json:"default-sort-order-id"`
}

// NewTableOptions configures NewTableMetadata.
type NewTableOptions struct {
	Location      string
	Schema        Schema
	PartitionSpec *PartitionSpec
	SortOrder     *SortOrder
	Properties    map[string]string
	NowUnixMs     int64
}

// NewTableMetadata builds the initial v2 TableMetadata for a freshly
// created table: schema id 0 (or whatever the caller assigned),
// format v2, an optional partition spec / sort order / properties, no
// snapshots yet.
func NewTableMetadata(opts NewTableOptions) TableMetadata {
	spec := UnpartitionedSpec()
	if opts.PartitionSpec != nil {
		spec = *opts.PartitionSpec
	}
	order := UnsortedOrder()
	if opts.SortOrder != nil {
		order = *opts.SortOrder
	}

	lastColumnID := 0
	for _, f := range opts.Schema.Fields {
		if f.ID > lastColumnID {
			lastColumnID = f.ID
		}
	}

	return TableMetadata{
		FormatVersion:    FormatVersion,
		TableUUID:        uuid.NewString(),
		Location:         opts.Location,
		LastSequenceNum:  0,
		LastUpdatedMs:    opts.NowUnixMs,
		LastColumnID:     lastColumnID,
		Schemas:          []Schema{opts.Schema},
		CurrentSchemaID:  opts.Schema.SchemaID,
		PartitionSpecs:   []PartitionSpec{spec},
		DefaultSpecID:    spec.SpecID,
		LastPartitionID:  lastPartitionID(spec),
		Properties:       opts.Properties,
		CurrentSnapshot:  nil,
		Snapshots:        []Snapshot{},
		SortOrders:       []SortOrder{order},
		DefaultSortOrder: order.OrderID,
	}
}

func lastPartitionID(spec PartitionSpec) int {
	max := 999 // Iceberg reserves partition field ids starting at 1000
	for _, f := range spec.Fields {
		if f.FieldID > max {
			max = f.FieldID
		}
	}
	return max
}

// PatchMissingOperation applies the only schema fix-up the metastore is
// allowed to make on ingest (spec §4.2/§6): walk snapshots[].summary and
// insert operation = "append" if missing.
func PatchMissingOperation(md *TableMetadata) {
	for i := range md.Snapshots {
		if md.Snapshots[i].Summary == nil {
			md.Snapshots[i].Summary = map[string]string{}
		}
		if _, ok := md.Snapshots[i].Summary["operation"]; !ok {
			md.Snapshots[i].Summary["operation"] = "append"
		}
	}
}

// Marshal serializes TableMetadata as the JSON bytes to write to
// "<location>/metadata/<uuid>.metadata.json".
func Marshal(md TableMetadata) ([]byte, error) {
	return json.MarshalIndent(md, "", "  ")
}

// Unmarshal parses a metadata JSON file's bytes, applying the
// append-operation compatibility patch.
func Unmarshal(data []byte) (TableMetadata, error) {
	var md TableMetadata
	if err := json.Unmarshal(data, &md); err != nil {
		return TableMetadata{}, fmt.Errorf("parsing iceberg table metadata: %w", err)
	}
	PatchMissingOperation(&md)
	return md, nil
}

// NewMetadataFileName returns a random metadata file name with the
// required ".metadata.json" suffix (spec §4.2's key-derivation rule).
func NewMetadataFileName() string {
	return fmt.Sprintf("%s.metadata.json", uuid.NewString())
}
