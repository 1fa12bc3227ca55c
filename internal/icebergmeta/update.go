package icebergmeta

import "fmt"

// Requirement is an Iceberg "table requirement": an assertion the
// current metadata must satisfy before an update is applied (spec
// §4.2's update_table contract). Each variant mirrors the Iceberg REST
// spec's requirement vocabulary.
type Requirement struct {
	Type               string // "assert-table-uuid" | "assert-current-schema-id" | "assert-ref-snapshot-id" | "assert-last-assigned-field-id"
	UUID               string
	CurrentSchemaID    int
	Ref                string
	SnapshotID         *int64
	LastAssignedFieldID int
}

// Check validates one requirement against the current metadata,
// returning a descriptive error on mismatch.
func (r Requirement) Check(md TableMetadata) error {
	switch r.Type {
	case "assert-table-uuid":
		if md.TableUUID != r.UUID {
			return fmt.Errorf("table UUID mismatch: expected %s, got %s", r.UUID, md.TableUUID)
		}
	case "assert-current-schema-id":
		if md.CurrentSchemaID != r.CurrentSchemaID {
			return fmt.Errorf("current schema id mismatch: expected %d, got %d", r.CurrentSchemaID, md.CurrentSchemaID)
		}
	case "assert-ref-snapshot-id":
		var current *int64
		if r.Ref == "main" || r.Ref == "" {
			current = md.CurrentSnapshot
		}
		if (current == nil) != (r.SnapshotID == nil) {
			return fmt.Errorf("ref %q snapshot mismatch", r.Ref)
		}
		if current != nil && r.SnapshotID != nil && *current != *r.SnapshotID {
			return fmt.Errorf("ref %q snapshot mismatch: expected %d, got %d", r.Ref, *r.SnapshotID, *current)
		}
	case "assert-last-assigned-field-id":
		if md.LastColumnID != r.LastAssignedFieldID {
			return fmt.Errorf("last-assigned-field-id mismatch: expected %d, got %d", r.LastAssignedFieldID, md.LastColumnID)
		}
	default:
		return fmt.Errorf("unknown table requirement: %s", r.Type)
	}
	return nil
}

// Update is one metadata mutation (spec §4.2's update_table contract).
// Only the fields relevant to Apply are populated for a given Type.
type Update struct {
	Type string // "add-schema" | "set-current-schema" | "add-snapshot" | "set-current-snapshot" | "add-partition-spec" | "set-default-spec" | "set-properties" | "remove-properties"

	Schema        *Schema
	SchemaID      int
	Snapshot      *Snapshot
	SnapshotID    int64
	PartitionSpec *PartitionSpec
	SpecID        int
	Properties    map[string]string
	RemoveKeys    []string
}

// Apply mutates md in place according to the update, mirroring the
// Iceberg REST catalog's CommitTableRequest update vocabulary at the
// scope this system needs.
func Apply(md *TableMetadata, u Update) error {
	switch u.Type {
	case "add-schema":
		if u.Schema == nil {
			return fmt.Errorf("add-schema requires a Schema")
		}
		md.Schemas = append(md.Schemas, *u.Schema)
		if u.Schema.SchemaID > md.LastColumnID {
			for _, f := range u.Schema.Fields {
				if f.ID > md.LastColumnID {
					md.LastColumnID = f.ID
				}
			}
		}
	case "set-current-schema":
		md.CurrentSchemaID = u.SchemaID
	case "add-snapshot":
		if u.Snapshot == nil {
			return fmt.Errorf("add-snapshot requires a Snapshot")
		}
		snap := *u.Snapshot
		if snap.Summary == nil {
			snap.Summary = map[string]string{}
		}
		if _, ok := snap.Summary["operation"]; !ok {
			snap.Summary["operation"] = "append"
		}
		md.Snapshots = append(md.Snapshots, snap)
		md.LastSequenceNum = u.Snapshot.SequenceNumber
	case "set-current-snapshot":
		id := u.SnapshotID
		md.CurrentSnapshot = &id
		md.SnapshotLog = append(md.SnapshotLog, SnapshotLogEntry{
			TimestampMs: snapshotTimestamp(md, id),
			SnapshotID:  id,
		})
	case "add-partition-spec":
		if u.PartitionSpec == nil {
			return fmt.Errorf("add-partition-spec requires a PartitionSpec")
		}
		md.PartitionSpecs = append(md.PartitionSpecs, *u.PartitionSpec)
	case "set-default-spec":
		md.DefaultSpecID = u.SpecID
	case "set-properties":
		if md.Properties == nil {
			md.Properties = map[string]string{}
		}
		for k, v := range u.Properties {
			md.Properties[k] = v
		}
	case "remove-properties":
		for _, k := range u.RemoveKeys {
			delete(md.Properties, k)
		}
	default:
		return fmt.Errorf("unknown table update: %s", u.Type)
	}
	return nil
}

func snapshotTimestamp(md *TableMetadata, id int64) int64 {
	for _, s := range md.Snapshots {
		if s.SnapshotID == id {
			return s.TimestampMs
		}
	}
	return 0
}

// ApplyAll checks every requirement against md, then — only if all
// pass — applies every update in order. On any requirement failure, md
// is left untouched and no metadata file should be written (spec §4.2:
// "Requirement failure returns RequirementNotMet; the metadata file is
// not written in that case").
func ApplyAll(md TableMetadata, requirements []Requirement, updates []Update) (TableMetadata, error) {
	for _, r := range requirements {
		if err := r.Check(md); err != nil {
			return md, err
		}
	}
	next := md
	for _, u := range updates {
		if err := Apply(&next, u); err != nil {
			return md, err
		}
	}
	return next, nil
}
