package metastore

import "context"

// Reaper reconciles orphaned Iceberg metadata/data files left behind
// by failed or superseded commits. The spec leaves policy here
// intentionally open; the default Metastore applies no reclamation and
// callers may supply their own Reaper (e.g. a scheduled sweep keyed off
// each table's metadata-log history).
type Reaper interface {
	// ListOrphanCandidates returns object-store keys under a table's
	// location that are no longer referenced by its current metadata
	// file's schemas/snapshots/metadata-log, without deleting anything.
	ListOrphanCandidates(ctx context.Context, m *Metastore, id TableIdent) ([]string, error)
}

// NoopReaper never reports any candidate, matching today's default
// behavior: nothing is reclaimed automatically.
type NoopReaper struct{}

func (NoopReaper) ListOrphanCandidates(context.Context, *Metastore, TableIdent) ([]string, error) {
	return nil, nil
}

// ListOrphanCandidates compares a table's current metadata-log against
// the object-store listing of its metadata directory, returning every
// metadata file no longer reachable from the log. It does not consider
// manifest/data files, since those require parsing each retained
// metadata file's manifest list.
func (m *Metastore) ListOrphanCandidates(ctx context.Context, id TableIdent) ([]string, error) {
	table, err := m.GetTable(ctx, id)
	if err != nil {
		return nil, err
	}

	db, err := m.GetDatabase(ctx, id.Database)
	if err != nil {
		return nil, err
	}
	vol, err := m.resolveVolume(ctx, db, table)
	if err != nil {
		return nil, err
	}
	client, err := m.registry.Get(ctx, vol)
	if err != nil {
		return nil, err
	}

	metaDir := table.VolumeLocation + "/metadata/"
	keys, err := client.List(ctx, metaDir)
	if err != nil {
		return nil, err
	}

	referenced := map[string]bool{table.MetadataLocation: true}
	for _, e := range table.Metadata.MetadataLog {
		referenced[e.MetadataFile] = true
	}

	var orphans []string
	for _, k := range keys {
		if !referenced[k] {
			orphans = append(orphans, k)
		}
	}
	return orphans, nil
}
