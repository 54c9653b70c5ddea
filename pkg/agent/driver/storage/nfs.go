package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/diskfs/go-diskfs"

	"github.com/cuemby/vcp/pkg/apperr"
	"github.com/cuemby/vcp/pkg/types"
)

const bytesPerGB = 1 << 30

// NFSBackend provisions volumes as sparse raw image files underneath an
// NFS export already mounted on this node at the pool's configured
// export path (mounting the export itself is a node-provisioning
// concern, not something a volume operation repeats per call).
type NFSBackend struct{}

func (b *NFSBackend) volumePath(pool *types.StoragePool, volumeID string) (string, error) {
	if pool.NFSConfig == nil {
		return "", apperr.New(apperr.StorageError, apperr.KindDriver, "pool %s has no nfs config", pool.ID)
	}
	return filepath.Join(pool.NFSConfig.ExportPath, volumeID+".img"), nil
}

func (b *NFSBackend) CreateVolume(ctx context.Context, pool *types.StoragePool, spec *types.Volume) (string, error) {
	path, err := b.volumePath(pool, spec.ID)
	if err != nil {
		return "", err
	}
	size := int64(spec.SizeGB * bytesPerGB)
	d, err := diskfs.Create(path, size, diskfs.Raw, diskfs.SectorSizeDefault)
	if err != nil {
		return "", apperr.Wrap(apperr.StorageError, apperr.KindDriver, err, "create nfs volume %s", spec.ID)
	}
	defer d.File.Close()
	return path, nil
}

func (b *NFSBackend) ResizeVolume(ctx context.Context, pool *types.StoragePool, vol *types.Volume, newSizeGB float64) error {
	path, err := b.volumePath(pool, vol.ID)
	if err != nil {
		return err
	}
	if err := os.Truncate(path, int64(newSizeGB*bytesPerGB)); err != nil {
		return apperr.Wrap(apperr.StorageError, apperr.KindDriver, err, "resize nfs volume %s", vol.ID)
	}
	return nil
}

func (b *NFSBackend) CloneVolume(ctx context.Context, pool *types.StoragePool, source *types.Volume, newVolumeID string) (string, error) {
	srcPath, err := b.volumePath(pool, source.ID)
	if err != nil {
		return "", err
	}
	dstPath, err := b.volumePath(pool, newVolumeID)
	if err != nil {
		return "", err
	}
	if err := copyFile(srcPath, dstPath); err != nil {
		return "", apperr.Wrap(apperr.StorageError, apperr.KindDriver, err, "clone nfs volume %s", source.ID)
	}
	return dstPath, nil
}

func (b *NFSBackend) DeleteVolume(ctx context.Context, pool *types.StoragePool, vol *types.Volume) error {
	path, err := b.volumePath(pool, vol.ID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return apperr.Wrap(apperr.StorageError, apperr.KindDriver, err, "delete nfs volume %s", vol.ID)
	}
	return nil
}

func (b *NFSBackend) Describe(ctx context.Context, pool *types.StoragePool, vol *types.Volume) (bool, error) {
	path, err := b.volumePath(pool, vol.ID)
	if err != nil {
		return false, err
	}
	_, statErr := os.Stat(path)
	if statErr == nil {
		return true, nil
	}
	if os.IsNotExist(statErr) {
		return false, nil
	}
	return false, apperr.Wrap(apperr.StorageError, apperr.KindDriver, statErr, "stat nfs volume %s", vol.ID)
}

func (b *NFSBackend) snapshotPath(pool *types.StoragePool, snapshotID string) (string, error) {
	if pool.NFSConfig == nil {
		return "", apperr.New(apperr.StorageError, apperr.KindDriver, "pool %s has no nfs config", pool.ID)
	}
	return filepath.Join(pool.NFSConfig.ExportPath, "snapshots", snapshotID+".img"), nil
}

func (b *NFSBackend) CreateSnapshotOffline(ctx context.Context, pool *types.StoragePool, vol *types.Volume, snapshotID string) error {
	volPath, err := b.volumePath(pool, vol.ID)
	if err != nil {
		return err
	}
	snapPath, err := b.snapshotPath(pool, snapshotID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(snapPath), 0o755); err != nil {
		return apperr.Wrap(apperr.StorageError, apperr.KindDriver, err, "prepare snapshot dir for %s", snapshotID)
	}
	if err := copyFile(volPath, snapPath); err != nil {
		return apperr.Wrap(apperr.StorageError, apperr.KindDriver, err, "snapshot nfs volume %s", vol.ID)
	}
	return nil
}

func (b *NFSBackend) DeleteSnapshot(ctx context.Context, pool *types.StoragePool, vol *types.Volume, snapshotID string) error {
	path, err := b.snapshotPath(pool, snapshotID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return apperr.Wrap(apperr.StorageError, apperr.KindDriver, err, "delete nfs snapshot %s", snapshotID)
	}
	return nil
}

func (b *NFSBackend) RestoreSnapshot(ctx context.Context, pool *types.StoragePool, vol *types.Volume, snapshotID string) error {
	snapPath, err := b.snapshotPath(pool, snapshotID)
	if err != nil {
		return err
	}
	volPath, err := b.volumePath(pool, vol.ID)
	if err != nil {
		return err
	}
	if err := copyFile(snapPath, volPath); err != nil {
		return apperr.Wrap(apperr.StorageError, apperr.KindDriver, err, "restore nfs snapshot %s", snapshotID)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	defer out.Close()

	if _, err := out.ReadFrom(in); err != nil {
		return fmt.Errorf("copy %s to %s: %w", src, dst, err)
	}
	return nil
}
