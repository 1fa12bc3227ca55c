// Package catalog implements C4: the caching presentation of the
// metastore's contents to the SQL planner, with per-table schema
// memoization and bounded-concurrency periodic refresh (spec §4.4).
package catalog

import (
	"context"
	"strings"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/embucket/embucket/internal/apperror"
	"github.com/embucket/embucket/internal/execution"
	"github.com/embucket/embucket/internal/metastore"
	"github.com/embucket/embucket/internal/objectstore"
	"github.com/embucket/embucket/internal/volume"
)

// Type names a catalog's backing store, per spec §4.4.
type Type string

const (
	TypeEmbucket Type = "Embucket"
	TypeMemory   Type = "Memory"
	TypeS3Tables Type = "S3Tables"
)

// CachingTable wraps a TableProvider, memoizing its Arrow schema and
// whether the underlying schema is case-sensitive. No case-normalized
// copy of the schema is kept; Scan lower-cases field names batch by
// batch instead (see lowerCaseReader).
type CachingTable struct {
	Provider execution.TableProvider

	mu            sync.RWMutex
	schemaLoaded  bool
	schema        *arrow.Schema
	caseSensitive bool
}

func newCachingTable(provider execution.TableProvider) *CachingTable {
	return &CachingTable{Provider: provider}
}

// EnsureSchema loads and memoizes the table's schema and case
// sensitivity on first use.
func (t *CachingTable) EnsureSchema(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.schemaLoaded {
		return nil
	}
	schema, err := t.Provider.Schema(ctx)
	if err != nil {
		return apperror.New("CachingTable.EnsureSchema", apperror.KindIceberg, err)
	}
	t.schema = schema
	t.schemaLoaded = true
	t.caseSensitive = execution.IsCaseSensitive(schema)
	return nil
}

// Schema returns the memoized schema, loading it first if needed.
func (t *CachingTable) Schema(ctx context.Context) (*arrow.Schema, error) {
	if err := t.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.schema, nil
}

// CaseSensitive reports whether the underlying schema has any
// non-lower-case field name, requiring the filter-rewrite-then-rename
// path on scan (spec §4.4).
func (t *CachingTable) CaseSensitive() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.caseSensitive
}

// Scan re-resolves views to their current provider before scanning
// (spec §9 "View re-resolution": a view's definition may point at a
// table that has since changed, so a cached provider is never scanned
// directly), then, if the underlying schema is case-sensitive,
// rewrites projection/filter column names to the schema's stored case
// before calling the wrapped provider and renames the result back to
// the normalized (lower) case the rest of the core expects (spec
// §4.4's CachingTable scan semantics).
func (t *CachingTable) Scan(ctx context.Context, projection []string, filters []execution.Expr, limit int) (execution.RecordReader, error) {
	provider := t.Provider
	if provider.IsView() {
		if resolvable, ok := provider.(execution.ViewResolvable); ok {
			resolved, err := resolvable.Resolve(ctx)
			if err != nil {
				return nil, apperror.New("CachingTable.Scan", apperror.KindIceberg, err)
			}
			provider = resolved
		}
	}

	if err := t.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	t.mu.RLock()
	caseSensitive := t.caseSensitive
	schema := t.schema
	t.mu.RUnlock()

	if !caseSensitive {
		return provider.Scan(ctx, projection, filters, limit)
	}

	storedProjection := rewriteProjectionCase(schema, projection)
	storedFilters := rewriteFilterCase(schema, filters)

	reader, err := provider.Scan(ctx, storedProjection, storedFilters, limit)
	if err != nil {
		return nil, err
	}
	return newLowerCaseReader(reader), nil
}

// Statistics delegates to the wrapped provider (spec §4.4: "Statistics
// ... delegate to the wrapped provider").
func (t *CachingTable) Statistics(ctx context.Context) (execution.Statistics, error) {
	return t.Provider.Statistics(ctx)
}

// SupportsFilterPushdown delegates to the wrapped provider (spec
// §4.4).
func (t *CachingTable) SupportsFilterPushdown() bool {
	return t.Provider.SupportsFilterPushdown()
}

// IsView delegates to the wrapped provider (spec §4.4).
func (t *CachingTable) IsView() bool {
	return t.Provider.IsView()
}

// Insert delegates to the wrapped provider (spec §4.4: "... and insert
// delegate to the wrapped provider").
func (t *CachingTable) Insert(ctx context.Context, batch arrow.Record) error {
	return t.Provider.Insert(ctx, batch)
}

// rewriteProjectionCase maps each normalized (lower-case) projection
// column to the schema's stored-case field name, leaving names with no
// match untouched so the provider surfaces its own "unknown column"
// error.
func rewriteProjectionCase(schema *arrow.Schema, projection []string) []string {
	if len(projection) == 0 {
		return projection
	}
	out := make([]string, len(projection))
	for i, name := range projection {
		out[i] = storedCaseName(schema, name)
	}
	return out
}

// rewriteFilterCase rewrites the column name of every execution.Predicate
// in filters to its stored case; other expression kinds pass through
// unchanged since only Predicate is planner-produced today.
func rewriteFilterCase(schema *arrow.Schema, filters []execution.Expr) []execution.Expr {
	if len(filters) == 0 {
		return filters
	}
	out := make([]execution.Expr, len(filters))
	for i, f := range filters {
		if p, ok := f.(execution.Predicate); ok {
			p.Column = storedCaseName(schema, p.Column)
			out[i] = p
			continue
		}
		out[i] = f
	}
	return out
}

// storedCaseName returns schema's field name matching name
// case-insensitively, or name unchanged if there is no match.
func storedCaseName(schema *arrow.Schema, name string) string {
	for _, f := range schema.Fields() {
		if strings.EqualFold(f.Name, name) {
			return f.Name
		}
	}
	return name
}

// lowerCaseReader wraps a RecordReader, renaming each batch's schema
// fields to their lower-case form before handing it back, undoing the
// stored-case rewrite Scan applied on the way in.
type lowerCaseReader struct {
	inner execution.RecordReader
}

func newLowerCaseReader(inner execution.RecordReader) execution.RecordReader {
	return &lowerCaseReader{inner: inner}
}

func (r *lowerCaseReader) Next(ctx context.Context) (arrow.Record, error) {
	rec, err := r.inner.Next(ctx)
	if err != nil || rec == nil {
		return rec, err
	}
	fields := rec.Schema().Fields()
	lowerFields := make([]arrow.Field, len(fields))
	cols := make([]arrow.Array, len(fields))
	for i, f := range fields {
		lowerFields[i] = f
		lowerFields[i].Name = strings.ToLower(f.Name)
		cols[i] = rec.Column(i)
	}
	renamed := arrow.NewSchema(lowerFields, nil)
	return array.NewRecord(renamed, cols, rec.NumRows()), nil
}

func (r *lowerCaseReader) Close() error { return r.inner.Close() }

// CachingSchema is one Embucket/Iceberg schema's table cache (spec
// §4.4).
type CachingSchema struct {
	Name string

	mu     sync.RWMutex
	tables map[string]*CachingTable
}

func newCachingSchema(name string) *CachingSchema {
	return &CachingSchema{Name: name, tables: make(map[string]*CachingTable)}
}

func (s *CachingSchema) Table(name string) (*CachingTable, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[name]
	return t, ok
}

func (s *CachingSchema) TableNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.tables))
	for name := range s.tables {
		out = append(out, name)
	}
	return out
}

func (s *CachingSchema) setTable(name string, t *CachingTable) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[name] = t
}

func (s *CachingSchema) deleteTable(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tables, name)
}

// CachingCatalog is one database's schema cache (spec §4.4).
type CachingCatalog struct {
	Name          string
	Type          Type
	Properties    map[string]string
	ShouldRefresh bool

	mu      sync.RWMutex
	schemas map[string]*CachingSchema
}

func newCachingCatalog(name string, typ Type, shouldRefresh bool, properties map[string]string) *CachingCatalog {
	return &CachingCatalog{
		Name:          name,
		Type:          typ,
		ShouldRefresh: shouldRefresh,
		Properties:    properties,
		schemas:       make(map[string]*CachingSchema),
	}
}

func (c *CachingCatalog) Schema(name string) (*CachingSchema, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.schemas[name]
	return s, ok
}

func (c *CachingCatalog) SchemaNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.schemas))
	for name := range c.schemas {
		out = append(out, name)
	}
	return out
}

func (c *CachingCatalog) setSchema(name string, s *CachingSchema) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.schemas[name] = s
}

func (c *CachingCatalog) deleteSchema(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.schemas, name)
}

// catalogTypeForVolume classifies a database's backing volume into the
// catalog type the planner dispatches on (spec §4.4).
func catalogTypeForVolume(v volume.Volume) Type {
	switch v.Kind {
	case volume.KindMemory:
		return TypeMemory
	case volume.KindS3Tables:
		return TypeS3Tables
	default:
		return TypeEmbucket
	}
}

// CatalogList is the top-level C4 entry point: catalog name →
// CachingCatalog, backed by the metastore and the object-store
// registry.
type CatalogList struct {
	metastore                *metastore.Metastore
	registry                 *objectstore.Registry
	maxConcurrentTableFetches int

	mu       sync.RWMutex
	catalogs map[string]*CachingCatalog
}

// New builds an empty CatalogList; call RegisterCatalogs to populate it
// from the metastore.
func New(ms *metastore.Metastore, registry *objectstore.Registry, maxConcurrentTableFetches int) *CatalogList {
	if maxConcurrentTableFetches <= 0 {
		maxConcurrentTableFetches = 4
	}
	return &CatalogList{
		metastore:                ms,
		registry:                 registry,
		maxConcurrentTableFetches: maxConcurrentTableFetches,
		catalogs:                 make(map[string]*CachingCatalog),
	}
}

func (l *CatalogList) Catalog(name string) (*CachingCatalog, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	c, ok := l.catalogs[name]
	return c, ok
}

func (l *CatalogList) CatalogNames() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, 0, len(l.catalogs))
	for name := range l.catalogs {
		out = append(out, name)
	}
	return out
}
