package execution

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/embucket/embucket/internal/apperror"
	"github.com/embucket/embucket/internal/icebergmeta"
	"github.com/embucket/embucket/internal/objectstore"
)

// IcebergTableProvider adapts a metastore Table's current Iceberg
// metadata to the planner's TableProvider contract. It owns schema and
// statistics derivation from the metadata file; reading a snapshot's
// actual data files and committing new ones is plugged in via
// DataScanner/Inserter (production wiring uses ScanTable and a
// CommitInsert wrapper from datafile.go).
type IcebergTableProvider struct {
	Metadata    icebergmeta.TableMetadata
	Client      objectstore.Client
	DataScanner func(ctx context.Context, md icebergmeta.TableMetadata, client objectstore.Client, projection []string, limit int) (RecordReader, error)
	Inserter    func(ctx context.Context, md icebergmeta.TableMetadata, client objectstore.Client, batch arrow.Record) error
}

func (p *IcebergTableProvider) currentSchema() (icebergmeta.Schema, bool) {
	for _, s := range p.Metadata.Schemas {
		if s.SchemaID == p.Metadata.CurrentSchemaID {
			return s, true
		}
	}
	return icebergmeta.Schema{}, false
}

func (p *IcebergTableProvider) Schema(context.Context) (*arrow.Schema, error) {
	schema, ok := p.currentSchema()
	if !ok {
		return arrow.NewSchema(nil, nil), nil
	}
	return ArrowSchema(schema)
}

func (p *IcebergTableProvider) Scan(ctx context.Context, projection []string, _ []Expr, limit int) (RecordReader, error) {
	if p.DataScanner == nil {
		return NewSliceReader(nil), nil
	}
	return p.DataScanner(ctx, p.Metadata, p.Client, projection, limit)
}

func (p *IcebergTableProvider) Statistics(context.Context) (Statistics, error) {
	if p.Metadata.CurrentSnapshot == nil {
		return Statistics{}, nil
	}
	for _, s := range p.Metadata.Snapshots {
		if s.SnapshotID == *p.Metadata.CurrentSnapshot {
			stats := Statistics{}
			if v, ok := s.Summary["total-records"]; ok {
				stats.NumRows = parseStatInt(v)
			}
			if v, ok := s.Summary["total-files-size"]; ok {
				stats.TotalSize = parseStatInt(v)
			}
			return stats, nil
		}
	}
	return Statistics{}, nil
}

func (p *IcebergTableProvider) SupportsFilterPushdown() bool { return false }

func (p *IcebergTableProvider) IsView() bool { return false }

// Insert commits batch as a new snapshot via the injected Inserter.
// Tables registered without one (read-only wiring, tests) report
// KindNotImplemented rather than silently dropping the write.
func (p *IcebergTableProvider) Insert(ctx context.Context, batch arrow.Record) error {
	if p.Inserter == nil {
		return apperror.Newf("execution.IcebergTableProvider.Insert", apperror.KindNotImplemented, "table %s has no insert path wired", p.Metadata.TableUUID)
	}
	return p.Inserter(ctx, p.Metadata, p.Client, batch)
}

func parseStatInt(s string) *int64 {
	var n int64
	neg := false
	i := 0
	if len(s) > 0 && s[0] == '-' {
		neg = true
		i = 1
	}
	for ; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return nil
		}
		n = n*10 + int64(s[i]-'0')
	}
	if neg {
		n = -n
	}
	return &n
}

var _ TableProvider = (*IcebergTableProvider)(nil)
