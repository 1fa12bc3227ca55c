package icebergmeta

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewTableMetadataAssignsFieldIDs(t *testing.T) {
	schema := NewSchema(0, []NestedField{
		{Name: "id", Type: TypeInt, Required: true},
		{Name: "name", Type: TypeString},
	})
	require.Equal(t, 0, schema.Fields[0].ID)
	require.Equal(t, 1, schema.Fields[1].ID)

	md := NewTableMetadata(NewTableOptions{
		Location: "s3://bucket/db/sch/t",
		Schema:   schema,
	})

	require.Equal(t, FormatVersion, md.FormatVersion)
	require.Equal(t, 1, md.LastColumnID)
	require.Nil(t, md.CurrentSnapshot)
	require.Empty(t, md.Snapshots)
}

func TestPatchMissingOperation(t *testing.T) {
	md := TableMetadata{
		Snapshots: []Snapshot{
			{SnapshotID: 1, Summary: map[string]string{}},
			{SnapshotID: 2, Summary: map[string]string{"operation": "overwrite"}},
		},
	}
	PatchMissingOperation(&md)
	require.Equal(t, "append", md.Snapshots[0].Summary["operation"])
	require.Equal(t, "overwrite", md.Snapshots[1].Summary["operation"])
}

func TestApplyAllRejectsOnRequirementFailure(t *testing.T) {
	schema := NewSchema(0, []NestedField{{Name: "id", Type: TypeInt}})
	md := NewTableMetadata(NewTableOptions{Location: "memory://t", Schema: schema})
	md.TableUUID = "abc"

	_, err := ApplyAll(md, []Requirement{{Type: "assert-table-uuid", UUID: "wrong"}}, nil)
	require.Error(t, err)
}

func TestApplyAllAddsSnapshotAndMovesCurrent(t *testing.T) {
	schema := NewSchema(0, []NestedField{{Name: "id", Type: TypeInt}})
	md := NewTableMetadata(NewTableOptions{Location: "memory://t", Schema: schema})

	snap := Snapshot{SnapshotID: 100, SequenceNumber: 1, ManifestList: "s1.avro"}
	updated, err := ApplyAll(md, nil, []Update{
		{Type: "add-snapshot", Snapshot: &snap},
		{Type: "set-current-snapshot", SnapshotID: 100},
	})
	require.NoError(t, err)
	require.NotNil(t, updated.CurrentSnapshot)
	require.Equal(t, int64(100), *updated.CurrentSnapshot)
	require.Equal(t, "append", updated.Snapshots[0].Summary["operation"])
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	schema := NewSchema(0, []NestedField{{Name: "id", Type: TypeInt}})
	md := NewTableMetadata(NewTableOptions{Location: "memory://t", Schema: schema})

	data, err := Marshal(md)
	require.NoError(t, err)

	back, err := Unmarshal(data)
	require.NoError(t, err)
	require.Equal(t, md.TableUUID, back.TableUUID)
}
