package catalog

import (
	"context"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/embucket/embucket/internal/apperror"
	"github.com/embucket/embucket/internal/execution"
	"github.com/embucket/embucket/internal/icebergmeta"
	"github.com/embucket/embucket/internal/metastore"
	"github.com/embucket/embucket/internal/objectstore"
	"github.com/embucket/embucket/internal/volume"
)

// RegisterCatalogs scans every database in the metastore and inserts a
// CachingCatalog for each, classified by its volume's kind (spec
// §4.4).
func (l *CatalogList) RegisterCatalogs(ctx context.Context) error {
	databases, err := l.metastore.ListDatabases(ctx)
	if err != nil {
		return err
	}

	for _, db := range databases {
		vol, err := l.metastore.GetVolume(ctx, db.VolumeIdent)
		if err != nil {
			return err
		}
		cat := newCachingCatalog(db.Ident, catalogTypeForVolume(vol), db.ShouldRefresh, db.Properties)
		if err := l.loadCatalog(ctx, db.Ident, cat); err != nil {
			return err
		}
		l.mu.Lock()
		l.catalogs[db.Ident] = cat
		l.mu.Unlock()
	}
	return nil
}

func (l *CatalogList) loadCatalog(ctx context.Context, database string, cat *CachingCatalog) error {
	schemas, err := l.metastore.ListSchemas(ctx, database)
	if err != nil {
		return err
	}

	sem := make(chan struct{}, l.maxConcurrentTableFetches)
	var wg sync.WaitGroup
	errs := make(chan error, len(schemas))

	for _, sch := range schemas {
		wg.Add(1)
		go func(sch metastore.Schema) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			cs := newCachingSchema(sch.Name)
			if err := l.loadSchema(ctx, database, sch.Name, cs); err != nil {
				errs <- err
				return
			}
			cat.setSchema(sch.Name, cs)
		}(sch)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (l *CatalogList) loadSchema(ctx context.Context, database, schemaName string, cs *CachingSchema) error {
	id := metastore.SchemaIdent{Database: database, Schema: schemaName}
	tables, err := l.metastore.ListTables(ctx, id)
	if err != nil {
		return err
	}

	sem := make(chan struct{}, l.maxConcurrentTableFetches)
	var wg sync.WaitGroup
	errs := make(chan error, len(tables))

	for _, tbl := range tables {
		wg.Add(1)
		go func(tbl metastore.Table) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			vol, err := l.volumeForTable(ctx, database, tbl)
			if err != nil {
				errs <- err
				return
			}
			client, err := l.registry.Get(ctx, vol)
			if err != nil {
				errs <- err
				return
			}
			provider := &execution.IcebergTableProvider{
				Metadata:    tbl.Metadata,
				Client:      client,
				DataScanner: execution.ScanTable,
				Inserter:    l.inserterFor(tbl.Ident),
			}
			ct := newCachingTable(provider)
			if err := ct.EnsureSchema(ctx); err != nil {
				errs <- err
				return
			}
			cs.setTable(tbl.Ident.Table, ct)
		}(tbl)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// inserterFor binds a cached table's identity to CommitInsert so its
// CachingTable.Insert (spec §4.4's "insert delegate to the wrapped
// provider") commits against the live metastore record rather than the
// possibly-stale copy this cache entry was built from.
func (l *CatalogList) inserterFor(id metastore.TableIdent) func(ctx context.Context, md icebergmeta.TableMetadata, client objectstore.Client, batch arrow.Record) error {
	return func(ctx context.Context, _ icebergmeta.TableMetadata, client objectstore.Client, batch arrow.Record) error {
		current, err := l.metastore.GetTable(ctx, id)
		if err != nil {
			return err
		}
		return execution.CommitInsert(ctx, l.metastore, client, id, current, batch)
	}
}

func (l *CatalogList) volumeForTable(ctx context.Context, database string, tbl metastore.Table) (volume.Volume, error) {
	ident := tbl.VolumeIdent
	if ident == "" {
		db, err := l.metastore.GetDatabase(ctx, database)
		if err != nil {
			return volume.Volume{}, err
		}
		ident = db.VolumeIdent
	}
	return l.metastore.GetVolume(ctx, ident)
}

// Refresh walks every catalog with ShouldRefresh set, reloads its
// schemas/tables with bounded concurrency, and drops cache entries for
// schemas or tables that disappeared (spec §4.4).
func (l *CatalogList) Refresh(ctx context.Context) error {
	l.mu.RLock()
	cats := make([]*CachingCatalog, 0, len(l.catalogs))
	for _, c := range l.catalogs {
		if c.ShouldRefresh {
			cats = append(cats, c)
		}
	}
	l.mu.RUnlock()

	for _, cat := range cats {
		if err := l.refreshCatalog(ctx, cat); err != nil {
			return err
		}
	}
	return nil
}

func (l *CatalogList) refreshCatalog(ctx context.Context, cat *CachingCatalog) error {
	liveSchemas, err := l.metastore.ListSchemas(ctx, cat.Name)
	if err != nil {
		return err
	}
	live := make(map[string]bool, len(liveSchemas))

	sem := make(chan struct{}, l.maxConcurrentTableFetches)
	var wg sync.WaitGroup
	errs := make(chan error, len(liveSchemas))

	for _, sch := range liveSchemas {
		live[sch.Name] = true
		wg.Add(1)
		go func(sch metastore.Schema) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			cs := newCachingSchema(sch.Name)
			if err := l.loadSchema(ctx, cat.Name, sch.Name, cs); err != nil {
				errs <- err
				return
			}
			cat.setSchema(sch.Name, cs)
		}(sch)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			return err
		}
	}

	for _, name := range cat.SchemaNames() {
		if !live[name] {
			cat.deleteSchema(name)
		}
	}
	return nil
}

// DropCatalog removes a cached catalog. For Embucket/Memory catalogs it
// also deletes the underlying database through the metastore;
// S3-Tables-backed catalogs cannot be dropped here and return
// KindNotImplemented (spec §4.4).
func (l *CatalogList) DropCatalog(ctx context.Context, name string, cascade bool) error {
	l.mu.RLock()
	cat, ok := l.catalogs[name]
	l.mu.RUnlock()
	if !ok {
		return apperror.Newf("CatalogList.DropCatalog", apperror.KindDatabaseNotFound, "catalog %q not found", name)
	}

	if cat.Type == TypeS3Tables {
		return apperror.Newf("CatalogList.DropCatalog", apperror.KindNotImplemented, "dropping an S3Tables-backed catalog is not implemented")
	}

	if err := l.metastore.DeleteDatabase(ctx, name, cascade); err != nil {
		return err
	}

	l.mu.Lock()
	delete(l.catalogs, name)
	l.mu.Unlock()
	return nil
}
