package storage

import (
	"context"

	"github.com/cuemby/vcp/pkg/apperr"
	"github.com/cuemby/vcp/pkg/types"
)

// backend is the common shape NFSBackend/LVMBackend/CephBackend/
// ISCSIBackend all satisfy; Dispatcher routes to one by pool.Type
// without the caller ever naming a concrete backend type.
type backend interface {
	CreateVolume(ctx context.Context, pool *types.StoragePool, spec *types.Volume) (string, error)
	ResizeVolume(ctx context.Context, pool *types.StoragePool, vol *types.Volume, newSizeGB float64) error
	CloneVolume(ctx context.Context, pool *types.StoragePool, source *types.Volume, newVolumeID string) (string, error)
	DeleteVolume(ctx context.Context, pool *types.StoragePool, vol *types.Volume) error
	Describe(ctx context.Context, pool *types.StoragePool, vol *types.Volume) (bool, error)
	CreateSnapshotOffline(ctx context.Context, pool *types.StoragePool, vol *types.Volume, snapshotID string) error
	DeleteSnapshot(ctx context.Context, pool *types.StoragePool, vol *types.Volume, snapshotID string) error
	RestoreSnapshot(ctx context.Context, pool *types.StoragePool, vol *types.Volume, snapshotID string) error
}

// Dispatcher implements Driver by routing each call to the backend
// matching the pool's type.
type Dispatcher struct {
	backends map[types.StoragePoolType]backend
}

// NewDispatcher builds a Dispatcher wired to all four backends.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{backends: map[types.StoragePoolType]backend{
		types.StoragePoolNFS:   &NFSBackend{},
		types.StoragePoolLVM:   &LVMBackend{},
		types.StoragePoolCeph:  &CephBackend{},
		types.StoragePoolISCSI: &ISCSIBackend{},
	}}
}

func (d *Dispatcher) backendFor(pool *types.StoragePool) (backend, error) {
	b, ok := d.backends[pool.Type]
	if !ok {
		return nil, apperr.New(apperr.StorageError, apperr.KindDriver, "unsupported pool type %q", pool.Type)
	}
	return b, nil
}

func (d *Dispatcher) CreateVolume(ctx context.Context, pool *types.StoragePool, spec *types.Volume) (string, error) {
	b, err := d.backendFor(pool)
	if err != nil {
		return "", err
	}
	return b.CreateVolume(ctx, pool, spec)
}

func (d *Dispatcher) ResizeVolume(ctx context.Context, pool *types.StoragePool, vol *types.Volume, newSizeGB float64) error {
	b, err := d.backendFor(pool)
	if err != nil {
		return err
	}
	return b.ResizeVolume(ctx, pool, vol, newSizeGB)
}

func (d *Dispatcher) CloneVolume(ctx context.Context, pool *types.StoragePool, source *types.Volume, newVolumeID string) (string, error) {
	b, err := d.backendFor(pool)
	if err != nil {
		return "", err
	}
	return b.CloneVolume(ctx, pool, source, newVolumeID)
}

func (d *Dispatcher) DeleteVolume(ctx context.Context, pool *types.StoragePool, vol *types.Volume) error {
	b, err := d.backendFor(pool)
	if err != nil {
		return err
	}
	return b.DeleteVolume(ctx, pool, vol)
}

func (d *Dispatcher) Describe(ctx context.Context, pool *types.StoragePool, vol *types.Volume) (bool, error) {
	b, err := d.backendFor(pool)
	if err != nil {
		return false, err
	}
	return b.Describe(ctx, pool, vol)
}

func (d *Dispatcher) CreateSnapshotOffline(ctx context.Context, pool *types.StoragePool, vol *types.Volume, snapshotID string) error {
	b, err := d.backendFor(pool)
	if err != nil {
		return err
	}
	return b.CreateSnapshotOffline(ctx, pool, vol, snapshotID)
}

func (d *Dispatcher) DeleteSnapshot(ctx context.Context, pool *types.StoragePool, vol *types.Volume, snapshotID string) error {
	b, err := d.backendFor(pool)
	if err != nil {
		return err
	}
	return b.DeleteSnapshot(ctx, pool, vol, snapshotID)
}

func (d *Dispatcher) RestoreSnapshot(ctx context.Context, pool *types.StoragePool, vol *types.Volume, snapshotID string) error {
	b, err := d.backendFor(pool)
	if err != nil {
		return err
	}
	return b.RestoreSnapshot(ctx, pool, vol, snapshotID)
}

var _ Driver = (*Dispatcher)(nil)
