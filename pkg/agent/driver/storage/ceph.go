package storage

import (
	"context"
	"fmt"

	"github.com/cuemby/vcp/pkg/apperr"
	"github.com/cuemby/vcp/pkg/types"
)

// CephBackend provisions volumes as RBD images via the rbd CLI,
// targeting the pool's monitors and (optionally) a cephx keyring.
type CephBackend struct{}

func (b *CephBackend) imageName(volumeID string) string {
	return "vcp-" + volumeID
}

func (b *CephBackend) rbdArgs(pool *types.StoragePool, args ...string) ([]string, error) {
	if pool.CephConfig == nil {
		return nil, apperr.New(apperr.StorageError, apperr.KindDriver, "pool %s has no ceph config", pool.ID)
	}
	base := []string{"--pool", pool.CephConfig.PoolName}
	for _, mon := range pool.CephConfig.Monitors {
		base = append(base, "-m", mon)
	}
	if pool.CephConfig.Keyring != "" {
		base = append(base, "--keyring", pool.CephConfig.Keyring)
	}
	return append(base, args...), nil
}

func (b *CephBackend) CreateVolume(ctx context.Context, pool *types.StoragePool, spec *types.Volume) (string, error) {
	args, err := b.rbdArgs(pool, "create", "--size", fmt.Sprintf("%.0fM", spec.SizeGB*1024), b.imageName(spec.ID))
	if err != nil {
		return "", err
	}
	if err := run(ctx, "rbd", args...); err != nil {
		return "", err
	}
	return fmt.Sprintf("rbd:%s/%s", pool.CephConfig.PoolName, b.imageName(spec.ID)), nil
}

func (b *CephBackend) ResizeVolume(ctx context.Context, pool *types.StoragePool, vol *types.Volume, newSizeGB float64) error {
	args, err := b.rbdArgs(pool, "resize", "--size", fmt.Sprintf("%.0fM", newSizeGB*1024), b.imageName(vol.ID))
	if err != nil {
		return err
	}
	return run(ctx, "rbd", args...)
}

func (b *CephBackend) CloneVolume(ctx context.Context, pool *types.StoragePool, source *types.Volume, newVolumeID string) (string, error) {
	args, err := b.rbdArgs(pool, "copy", b.imageName(source.ID), b.imageName(newVolumeID))
	if err != nil {
		return "", err
	}
	if err := run(ctx, "rbd", args...); err != nil {
		return "", err
	}
	return fmt.Sprintf("rbd:%s/%s", pool.CephConfig.PoolName, b.imageName(newVolumeID)), nil
}

func (b *CephBackend) DeleteVolume(ctx context.Context, pool *types.StoragePool, vol *types.Volume) error {
	args, err := b.rbdArgs(pool, "rm", b.imageName(vol.ID))
	if err != nil {
		return err
	}
	return run(ctx, "rbd", args...)
}

func (b *CephBackend) Describe(ctx context.Context, pool *types.StoragePool, vol *types.Volume) (bool, error) {
	args, err := b.rbdArgs(pool, "info", b.imageName(vol.ID))
	if err != nil {
		return false, err
	}
	if err := run(ctx, "rbd", args...); err != nil {
		return false, nil
	}
	return true, nil
}

func (b *CephBackend) snapshotSpec(volumeID, snapshotID string) string {
	return fmt.Sprintf("%s@%s", b.imageName(volumeID), snapshotID)
}

func (b *CephBackend) CreateSnapshotOffline(ctx context.Context, pool *types.StoragePool, vol *types.Volume, snapshotID string) error {
	args, err := b.rbdArgs(pool, "snap", "create", b.snapshotSpec(vol.ID, snapshotID))
	if err != nil {
		return err
	}
	return run(ctx, "rbd", args...)
}

func (b *CephBackend) DeleteSnapshot(ctx context.Context, pool *types.StoragePool, vol *types.Volume, snapshotID string) error {
	args, err := b.rbdArgs(pool, "snap", "rm", b.snapshotSpec(vol.ID, snapshotID))
	if err != nil {
		return err
	}
	return run(ctx, "rbd", args...)
}

func (b *CephBackend) RestoreSnapshot(ctx context.Context, pool *types.StoragePool, vol *types.Volume, snapshotID string) error {
	args, err := b.rbdArgs(pool, "snap", "rollback", b.snapshotSpec(vol.ID, snapshotID))
	if err != nil {
		return err
	}
	return run(ctx, "rbd", args...)
}
