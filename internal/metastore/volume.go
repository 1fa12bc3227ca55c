package metastore

import (
	"context"
	"time"

	"github.com/embucket/embucket/internal/apperror"
	"github.com/embucket/embucket/internal/kv"
	"github.com/embucket/embucket/internal/objectstore"
	"github.com/embucket/embucket/internal/volume"
)

// Metastore is the C2 typed-CRUD layer: volumes, databases, schemas,
// and tables over a single C1 Store, with the object-store registry
// used to write/read Iceberg metadata files.
type Metastore struct {
	store    kv.Store
	registry *objectstore.Registry
	now      func() time.Time
}

// New builds a Metastore over store, using registry to resolve volumes
// to object-store clients.
func New(store kv.Store, registry *objectstore.Registry) *Metastore {
	return &Metastore{store: store, registry: registry, now: time.Now}
}

// CreateVolume persists a new named Volume. Fails with KindAlreadyExists
// if the name is taken (spec §4.2).
func (m *Metastore) CreateVolume(ctx context.Context, v volume.Volume) error {
	key := volumeKey(v.Ident)
	if _, ok, err := m.store.Get(ctx, key); err != nil {
		return apperror.New("Metastore.CreateVolume", apperror.KindUnknown, err)
	} else if ok {
		return apperror.Newf("Metastore.CreateVolume", apperror.KindAlreadyExists, "volume %q already exists", v.Ident)
	}

	obj := NewRwObject(v, m.now())
	data, err := marshalRw(obj)
	if err != nil {
		return apperror.New("Metastore.CreateVolume", apperror.KindUnknown, err)
	}
	if err := m.store.Put(ctx, key, data); err != nil {
		return apperror.New("Metastore.CreateVolume", apperror.KindUnknown, err)
	}
	return nil
}

// GetVolume returns the named volume.
func (m *Metastore) GetVolume(ctx context.Context, ident string) (volume.Volume, error) {
	data, ok, err := m.store.Get(ctx, volumeKey(ident))
	if err != nil {
		return volume.Volume{}, apperror.New("Metastore.GetVolume", apperror.KindUnknown, err)
	}
	if !ok {
		return volume.Volume{}, apperror.Newf("Metastore.GetVolume", apperror.KindVolumeNotFound, "volume %q not found", ident)
	}
	obj, err := unmarshalRw[volume.Volume](data)
	if err != nil {
		return volume.Volume{}, apperror.New("Metastore.GetVolume", apperror.KindUnknown, err)
	}
	return obj.Data, nil
}

// ListVolumes returns every volume, ordered by ident.
func (m *Metastore) ListVolumes(ctx context.Context) ([]volume.Volume, error) {
	entries, err := m.store.Scan(ctx, kv.PrefixRange(prefixVolume))
	if err != nil {
		return nil, apperror.New("Metastore.ListVolumes", apperror.KindUnknown, err)
	}
	out := make([]volume.Volume, 0, len(entries))
	for _, e := range entries {
		obj, err := unmarshalRw[volume.Volume](e.Value)
		if err != nil {
			return nil, apperror.New("Metastore.ListVolumes", apperror.KindUnknown, err)
		}
		out = append(out, obj.Data)
	}
	return out, nil
}

// UpdateVolume replaces the stored volume definition and invalidates
// any cached object-store client for it, so the next access picks up
// new credentials/endpoint.
func (m *Metastore) UpdateVolume(ctx context.Context, v volume.Volume) error {
	key := volumeKey(v.Ident)
	data, ok, err := m.store.Get(ctx, key)
	if err != nil {
		return apperror.New("Metastore.UpdateVolume", apperror.KindUnknown, err)
	}
	if !ok {
		return apperror.Newf("Metastore.UpdateVolume", apperror.KindVolumeNotFound, "volume %q not found", v.Ident)
	}
	existing, err := unmarshalRw[volume.Volume](data)
	if err != nil {
		return apperror.New("Metastore.UpdateVolume", apperror.KindUnknown, err)
	}

	next := existing.Update(v, m.now())
	out, err := marshalRw(next)
	if err != nil {
		return apperror.New("Metastore.UpdateVolume", apperror.KindUnknown, err)
	}
	if err := m.store.Put(ctx, key, out); err != nil {
		return apperror.New("Metastore.UpdateVolume", apperror.KindUnknown, err)
	}
	m.registry.Invalidate(v.Ident)
	return nil
}

// DeleteVolume removes a volume. Unless cascade is true, it refuses
// with KindVolumeInUse if any database still references it (spec
// §4.2's cascade rule).
func (m *Metastore) DeleteVolume(ctx context.Context, ident string, cascade bool) error {
	databases, err := m.ListDatabases(ctx)
	if err != nil {
		return err
	}
	var referencing []Database
	for _, d := range databases {
		if d.VolumeIdent == ident {
			referencing = append(referencing, d)
		}
	}
	if len(referencing) > 0 {
		if !cascade {
			return apperror.Newf("Metastore.DeleteVolume", apperror.KindVolumeInUse, "volume %q is referenced by %d database(s)", ident, len(referencing))
		}
		for _, d := range referencing {
			if err := m.DeleteDatabase(ctx, d.Ident, true); err != nil {
				return err
			}
		}
	}
	if err := m.store.Delete(ctx, volumeKey(ident)); err != nil {
		return apperror.New("Metastore.DeleteVolume", apperror.KindUnknown, err)
	}
	m.registry.Invalidate(ident)
	return nil
}
