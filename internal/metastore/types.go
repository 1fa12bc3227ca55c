// Package metastore implements C2: typed CRUD over volumes, databases,
// schemas, and tables on top of the C1 KV store, and owns the Iceberg
// metadata-file lifecycle (spec §4.2). Grounded on
// original_source/crates/metastore/src/metastore.rs.
package metastore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/embucket/embucket/internal/icebergmeta"
)

// RwObject wraps every persisted record with creation/update timestamps
// (spec §3). Update replaces Data and bumps UpdatedAt; Create
// initializes both to the same instant.
type RwObject[T any] struct {
	Data      T         `json:"data"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewRwObject wraps data for a fresh create.
func NewRwObject[T any](data T, now time.Time) RwObject[T] {
	return RwObject[T]{Data: data, CreatedAt: now, UpdatedAt: now}
}

// Update replaces Data and bumps UpdatedAt.
func (r RwObject[T]) Update(data T, now time.Time) RwObject[T] {
	return RwObject[T]{Data: data, CreatedAt: r.CreatedAt, UpdatedAt: now}
}

func marshalRw[T any](obj RwObject[T]) ([]byte, error) {
	return json.Marshal(obj)
}

func unmarshalRw[T any](data []byte) (RwObject[T], error) {
	var obj RwObject[T]
	if err := json.Unmarshal(data, &obj); err != nil {
		return obj, fmt.Errorf("decoding metastore record: %w", err)
	}
	return obj, nil
}

// TableFormat names the on-disk format of a Table (spec §3).
type TableFormat string

const (
	FormatIceberg TableFormat = "Iceberg"
	FormatCSV     TableFormat = "CSV"
	FormatParquet TableFormat = "Parquet"
)

// Database is {ident, volume_ident, properties, should_refresh} (spec
// §3). A database maps 1:1 to an Iceberg catalog.
type Database struct {
	Ident        string            `json:"ident"`
	VolumeIdent  string            `json:"volume_ident"`
	Properties   map[string]string `json:"properties,omitempty"`
	ShouldRefresh bool             `json:"should_refresh"`
}

// Schema is {ident=(db,schema), properties} (spec §3).
type Schema struct {
	Database   string            `json:"database"`
	Name       string            `json:"name"`
	Properties map[string]string `json:"properties,omitempty"`
}

// SchemaIdent identifies a schema as (database, schema).
type SchemaIdent struct {
	Database string
	Schema   string
}

func (s SchemaIdent) String() string { return s.Database + "." + s.Schema }

// TableIdent identifies a table as (database, schema, table).
type TableIdent struct {
	Database string
	Schema   string
	Table    string
}

func (t TableIdent) String() string { return t.Database + "." + t.Schema + "." + t.Table }

func (t TableIdent) SchemaIdent() SchemaIdent {
	return SchemaIdent{Database: t.Database, Schema: t.Schema}
}

// Table is the full table record (spec §3). Invariants:
//   - if VolumeIdent is set it overrides the database's volume.
//   - MetadataLocation always points to a JSON file on the chosen volume.
//   - temporary tables own a hidden Memory volume; dropping the table
//     drops that volume too.
type Table struct {
	Ident            TableIdent               `json:"ident"`
	Metadata         icebergmeta.TableMetadata `json:"metadata"`
	MetadataLocation string                   `json:"metadata_location"`
	Properties       map[string]string        `json:"properties,omitempty"`
	VolumeIdent      string                   `json:"volume_ident,omitempty"`
	VolumeLocation   string                   `json:"volume_location,omitempty"`
	IsTemporary      bool                     `json:"is_temporary"`
	Format           TableFormat              `json:"format"`
}

// CreateTableRequest is the input to CreateTable.
type CreateTableRequest struct {
	Schema        icebergmeta.Schema
	PartitionSpec *icebergmeta.PartitionSpec
	SortOrder     *icebergmeta.SortOrder
	Properties    map[string]string
	Location      string // explicit location override, optional
	VolumeIdent   string // table-level volume override, optional
	IsTemporary   bool
	Format        TableFormat
}

// TableUpdate is the input to UpdateTable: requirements must hold
// against the current metadata before updates are applied (spec §4.2).
type TableUpdate struct {
	Requirements []icebergmeta.Requirement
	Updates      []icebergmeta.Update
}

// Key layout (spec §3): a single ordered namespace.
const (
	prefixVolume   = "vol/"
	prefixDatabase = "db/"
	prefixSchema   = "sch/"
	prefixTable    = "tbl/"
)

func volumeKey(name string) string { return prefixVolume + name }
func databaseKey(name string) string { return prefixDatabase + name }
func schemaKey(id SchemaIdent) string { return fmt.Sprintf("%s%s/%s", prefixSchema, id.Database, id.Schema) }
func tableKey(id TableIdent) string {
	return fmt.Sprintf("%s%s/%s/%s", prefixTable, id.Database, id.Schema, id.Table)
}

func schemaPrefixForDatabase(db string) string { return fmt.Sprintf("%s%s/", prefixSchema, db) }
func tablePrefixForSchema(id SchemaIdent) string {
	return fmt.Sprintf("%s%s/%s/", prefixTable, id.Database, id.Schema)
}
