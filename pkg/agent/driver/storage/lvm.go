package storage

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/cuemby/vcp/pkg/apperr"
	"github.com/cuemby/vcp/pkg/types"
)

// LVMBackend provisions volumes as logical volumes inside the pool's
// volume group via the lvm2 command-line tools.
type LVMBackend struct{}

func (b *LVMBackend) devicePath(pool *types.StoragePool, volumeID string) (string, error) {
	if pool.LVMConfig == nil {
		return "", apperr.New(apperr.StorageError, apperr.KindDriver, "pool %s has no lvm config", pool.ID)
	}
	return fmt.Sprintf("/dev/%s/%s", pool.LVMConfig.VolumeGroup, lvName(volumeID)), nil
}

// lvName sanitizes a volume id into a valid LV name: lvm2 rejects
// dashes at certain positions and some uuid characters, so ids are
// prefixed and dashes replaced with underscores.
func lvName(volumeID string) string {
	return strings.ReplaceAll("vcp-"+volumeID, "-", "_")
}

func (b *LVMBackend) CreateVolume(ctx context.Context, pool *types.StoragePool, spec *types.Volume) (string, error) {
	if pool.LVMConfig == nil {
		return "", apperr.New(apperr.StorageError, apperr.KindDriver, "pool %s has no lvm config", pool.ID)
	}
	lv := lvName(spec.ID)
	if err := run(ctx, "lvcreate", "-L", fmt.Sprintf("%.0fG", spec.SizeGB), "-n", lv, pool.LVMConfig.VolumeGroup); err != nil {
		return "", err
	}
	return b.devicePath(pool, spec.ID)
}

func (b *LVMBackend) ResizeVolume(ctx context.Context, pool *types.StoragePool, vol *types.Volume, newSizeGB float64) error {
	path, err := b.devicePath(pool, vol.ID)
	if err != nil {
		return err
	}
	return run(ctx, "lvresize", "-L", fmt.Sprintf("%.0fG", newSizeGB), path)
}

func (b *LVMBackend) CloneVolume(ctx context.Context, pool *types.StoragePool, source *types.Volume, newVolumeID string) (string, error) {
	if pool.LVMConfig == nil {
		return "", apperr.New(apperr.StorageError, apperr.KindDriver, "pool %s has no lvm config", pool.ID)
	}
	srcPath, err := b.devicePath(pool, source.ID)
	if err != nil {
		return "", err
	}
	newLV := lvName(newVolumeID)
	if err := run(ctx, "lvcreate", "-L", fmt.Sprintf("%.0fG", source.SizeGB), "-n", newLV, pool.LVMConfig.VolumeGroup); err != nil {
		return "", err
	}
	dstPath, err := b.devicePath(pool, newVolumeID)
	if err != nil {
		return "", err
	}
	if err := run(ctx, "dd", "if="+srcPath, "of="+dstPath, "bs=4M"); err != nil {
		return "", err
	}
	return dstPath, nil
}

func (b *LVMBackend) DeleteVolume(ctx context.Context, pool *types.StoragePool, vol *types.Volume) error {
	path, err := b.devicePath(pool, vol.ID)
	if err != nil {
		return err
	}
	if err := run(ctx, "lvremove", "-f", path); err != nil {
		return err
	}
	return nil
}

func (b *LVMBackend) Describe(ctx context.Context, pool *types.StoragePool, vol *types.Volume) (bool, error) {
	path, err := b.devicePath(pool, vol.ID)
	if err != nil {
		return false, err
	}
	if err := exec.CommandContext(ctx, "lvdisplay", path).Run(); err != nil {
		return false, nil
	}
	return true, nil
}

func (b *LVMBackend) snapshotLV(snapshotID string) string {
	return lvName(snapshotID) + "_snap"
}

func (b *LVMBackend) CreateSnapshotOffline(ctx context.Context, pool *types.StoragePool, vol *types.Volume, snapshotID string) error {
	if pool.LVMConfig == nil {
		return apperr.New(apperr.StorageError, apperr.KindDriver, "pool %s has no lvm config", pool.ID)
	}
	path, err := b.devicePath(pool, vol.ID)
	if err != nil {
		return err
	}
	return run(ctx, "lvcreate", "-s", "-L", fmt.Sprintf("%.0fG", vol.SizeGB), "-n", b.snapshotLV(snapshotID), path)
}

func (b *LVMBackend) DeleteSnapshot(ctx context.Context, pool *types.StoragePool, vol *types.Volume, snapshotID string) error {
	if pool.LVMConfig == nil {
		return apperr.New(apperr.StorageError, apperr.KindDriver, "pool %s has no lvm config", pool.ID)
	}
	path := fmt.Sprintf("/dev/%s/%s", pool.LVMConfig.VolumeGroup, b.snapshotLV(snapshotID))
	return run(ctx, "lvremove", "-f", path)
}

func (b *LVMBackend) RestoreSnapshot(ctx context.Context, pool *types.StoragePool, vol *types.Volume, snapshotID string) error {
	if pool.LVMConfig == nil {
		return apperr.New(apperr.StorageError, apperr.KindDriver, "pool %s has no lvm config", pool.ID)
	}
	snapPath := fmt.Sprintf("/dev/%s/%s", pool.LVMConfig.VolumeGroup, b.snapshotLV(snapshotID))
	return run(ctx, "lvconvert", "--merge", snapPath)
}
